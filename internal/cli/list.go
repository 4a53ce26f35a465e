package cli

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed documents",
	RunE:  runList,
}

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
}

func runList(cmd *cobra.Command, args []string) error {
	app, err := OpenApp(GetConfig(), GetRootDir(), logger)
	if err != nil {
		return err
	}
	defer app.Close()

	result := app.Retrieve.ListDocuments(cmd.Context())
	if listJSON {
		return printJSON(result)
	}
	if !result.OK {
		return fmt.Errorf("failed to list documents: %s", result.Message)
	}
	if result.TotalDocuments == 0 {
		fmt.Println("No documents indexed.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTYPE\tCHUNKS\tCREATED\tID")
	for _, d := range result.Documents {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", d.DocName, d.Type, d.TotalChunks, d.CreatedAt.Format("2006-01-02 15:04"), d.DocID)
	}
	w.Flush()
	fmt.Printf("\n%d documents\n", result.TotalDocuments)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	app, err := OpenApp(GetConfig(), GetRootDir(), logger)
	if err != nil {
		return err
	}
	defer app.Close()

	result := app.Retrieve.Stats(cmd.Context())
	if statsJSON {
		return printJSON(result)
	}
	if !result.OK {
		return fmt.Errorf("failed to compute stats: %s", result.Message)
	}

	fmt.Printf("Documents:       %d\n", result.TotalDocuments)
	fmt.Printf("Chunks:          %d\n", result.TotalChunks)
	fmt.Printf("Characters:      %d\n", result.TotalCharacters)
	fmt.Printf("Estimated words: %d\n", result.EstimatedWords)

	types := make([]string, 0, len(result.DocumentsByType))
	for t := range result.DocumentsByType {
		types = append(types, t)
	}
	sort.Strings(types)
	if len(types) > 0 {
		fmt.Println("\nBy type:")
		for _, t := range types {
			fmt.Printf("  %-6s %d\n", t, result.DocumentsByType[t])
		}
	}
	return nil
}
