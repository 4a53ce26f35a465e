package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"docrag/internal/usecase"
)

var (
	indexName string
	indexJSON bool
)

var indexCmd = &cobra.Command{
	Use:   "index <file|dir>",
	Short: "Index a document or a folder of documents",
	Long: `Extract, chunk and embed documents so they can be searched.
The index is stored in .rag/index.db within the --dir directory.

A folder is indexed file by file; a failed document is reported and the run
continues with the next one.

Examples:
  rag index ./documentos
  rag index informe.docx --name "Informe de Avance 2025"`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().StringVar(&indexName, "name", "", "display name for a single document (default is the file name)")
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "output as JSON")
}

func runIndex(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}

	app, err := OpenApp(GetConfig(), GetRootDir(), logger)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()

	if !info.IsDir() {
		result := app.Index.IndexDocument(ctx, path, indexName)
		if indexJSON {
			return printJSON(result)
		}
		if !result.OK {
			return fmt.Errorf("indexing failed: %s", result.Message)
		}
		fmt.Printf("Indexed %s\n", result.DocName)
		fmt.Printf("  Doc ID:         %s\n", result.DocID)
		fmt.Printf("  Chunks created: %d\n", result.ChunksCreated)
		return nil
	}

	if indexName != "" {
		return fmt.Errorf("--name applies to a single file, not a directory")
	}

	fmt.Printf("Scanning %s...\n", path)

	var bar *progressbar.ProgressBar
	var startTime time.Time

	progress := func(p usecase.CorpusProgress) {
		if indexJSON {
			return
		}
		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(p.Total,
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Indexing[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Println()
				}),
			)
		}

		bar.Set(p.Done)

		elapsed := time.Since(startTime)
		rate := float64(p.Done) / elapsed.Seconds()
		if rate > 0 && p.Done < p.Total {
			eta := time.Duration(float64(p.Total-p.Done)/rate) * time.Second
			bar.Describe(fmt.Sprintf("[cyan]Indexing[reset] ETA: %s", formatDuration(eta)))
		}
	}

	result := app.Index.IndexCorpus(ctx, path, progress)
	if indexJSON {
		return printJSON(result)
	}

	fmt.Printf("\nIndexing complete:\n")
	fmt.Printf("  Files processed: %d/%d\n", result.Processed, result.Total)
	fmt.Printf("  Succeeded:       %d\n", result.Succeeded)
	fmt.Printf("  Failed:          %d\n", result.Failed)
	fmt.Printf("  Chunks created:  %d\n", result.TotalChunks)
	if result.Processed > 0 {
		fmt.Printf("  Success rate:    %.1f%%\n", float64(result.Succeeded)/float64(result.Processed)*100)
	}

	if result.Failed > 0 {
		fmt.Printf("\nFailed files:\n")
		for _, r := range result.Results {
			if !r.OK {
				fmt.Printf("  - %s: %s\n", filepath.Base(r.Path), truncate(r.Message, 100))
			}
		}
	}
	if result.Cancelled {
		fmt.Println("\nIndexing was interrupted.")
	}
	if !result.OK && !result.Cancelled {
		return fmt.Errorf("indexing failed: %s", result.Message)
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
