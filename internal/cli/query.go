package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docrag/internal/usecase"
)

var (
	queryText      string
	queryDoc       string
	queryTopK      int
	queryThreshold float64
	queryJSON      bool
	queryNoRerank  bool
	queryContext   bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search indexed documents",
	Long: `Search for the passages most similar to a natural-language query.

Results below the similarity threshold are dropped. When re-ranking is enabled
in the config, the best candidates are re-scored by a relevance model.

Examples:
  rag query -q "meta de retención estudiantil"
  rag query -q "plazos de titulación" --doc "reglamento" -k 10 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().StringVar(&queryDoc, "doc", "", "restrict the search to documents matching this name")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().Float64Var(&queryThreshold, "threshold", 0, "minimum cosine similarity (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.Flags().BoolVar(&queryNoRerank, "no-rerank", false, "skip the re-ranking stage")
	queryCmd.Flags().BoolVar(&queryContext, "context", false, "print the packed context block only")
	queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	app, err := OpenApp(GetConfig(), GetRootDir(), logger)
	if err != nil {
		return err
	}
	defer app.Close()

	req := usecase.SearchRequest{
		Query:        queryText,
		DocumentName: queryDoc,
		TopK:         queryTopK,
		NoRerank:     queryNoRerank,
	}
	if cmd.Flags().Changed("threshold") {
		req.Threshold = &queryThreshold
	}

	result := app.Retrieve.Search(cmd.Context(), req)

	if queryJSON {
		return printJSON(result)
	}
	if queryContext {
		fmt.Println(result.ContextsText)
		return nil
	}

	if !result.OK {
		fmt.Println(result.Status)
		if len(result.AvailableDocuments) > 0 {
			fmt.Println("\nAvailable documents:")
			for _, name := range result.AvailableDocuments {
				fmt.Printf("  - %s\n", name)
			}
			return fmt.Errorf("no document matches %q", queryDoc)
		}
		return fmt.Errorf("search failed: %s", result.Message)
	}

	if len(result.Contexts) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results for: %s (searched %d documents, %d candidates)\n\n",
		len(result.Contexts), queryText, result.DocumentsSearched, result.CandidatesFound)
	for i, c := range result.Contexts {
		score := fmt.Sprintf("similarity: %.3f", c.SimilarityScore)
		if c.FinalScore != nil {
			score += fmt.Sprintf(", final: %.3f", *c.FinalScore)
		}
		fmt.Printf("--- [%d] %s #%d (%s) ---\n", i+1, c.DocName, c.ChunkIndex, score)
		fmt.Println(truncate(strings.TrimSpace(c.Text), 500))
		fmt.Println()
	}
	return nil
}
