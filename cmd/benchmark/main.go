package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"docrag/config"
	"docrag/internal/cli"
	"docrag/internal/logging"
	"docrag/internal/usecase"
)

func main() {
	indexPath := flag.String("index", ".", "Path to indexed directory")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 10, "Number of results")
	runs := flag.Int("n", 5, "Number of timed runs")
	rerank := flag.Bool("rerank", false, "Include the re-ranking stage")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -index ./corpus -q \"query\" [-k 10] [-n 5]")
		fmt.Println("\nReports:")
		fmt.Println("  1. Corpus size (documents, chunks)")
		fmt.Println("  2. Similarity of the returned contexts")
		fmt.Println("  3. Search latency (first run, median, max)")
		os.Exit(1)
	}

	if err := validateRuns(*runs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.LoadFromDir(*indexPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	// Repeated runs must not inflate access counts.
	cfg.Metrics.Enabled = false

	logger := logging.Setup(logging.Config{Level: "warn", Format: cfg.Logging.Format})

	app, err := cli.OpenApp(cfg, *indexPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening index: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	ctx := context.Background()
	stats := app.Retrieve.Stats(ctx)
	if !stats.OK || stats.TotalDocuments == 0 {
		fmt.Fprintln(os.Stderr, "No documents indexed - run 'rag index' first")
		os.Exit(1)
	}

	fmt.Println("SEARCH BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Documents: %d, chunks: %d\n", stats.TotalDocuments, stats.TotalChunks)
	fmt.Printf("Model: %s (%s)\n", cfg.Embedding.Model, cfg.Embedding.Provider)
	fmt.Printf("Query: %q\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	req := usecase.SearchRequest{Query: *query, TopK: *topK, NoRerank: !*rerank}

	var (
		latencies []time.Duration
		last      usecase.SearchResult
	)
	for i := 0; i < *runs; i++ {
		start := time.Now()
		last = app.Retrieve.Search(ctx, req)
		latencies = append(latencies, time.Since(start))
		if !last.OK {
			fmt.Fprintf(os.Stderr, "Search failed: %s %s\n", last.Status, last.Message)
			os.Exit(1)
		}
	}

	fmt.Printf("Top %d matches:\n\n", len(last.Contexts))
	totalScore := 0.0
	for i, c := range last.Contexts {
		preview := []rune(c.Text)
		if len(preview) > 150 {
			preview = append(preview[:150], []rune("...")...)
		}
		similarity := c.SimilarityScore
		totalScore += similarity

		rating := "LOW"
		if similarity > 0.7 {
			rating = "HIGH"
		} else if similarity > 0.5 {
			rating = "GOOD"
		}
		fmt.Printf("%d. [%s %.3f] %s #%d\n", i+1, rating, similarity, c.DocName, c.ChunkIndex)
		fmt.Printf("   %s\n\n", strings.ReplaceAll(string(preview), "\n", " "))
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Println("QUALITY METRICS:")
	if len(last.Contexts) > 0 {
		fmt.Printf("  Average similarity: %.3f\n", totalScore/float64(len(last.Contexts)))
		fmt.Printf("  Top-1 similarity:   %.3f\n", last.Contexts[0].SimilarityScore)
	} else {
		fmt.Println("  No contexts above the threshold")
	}

	stat, err := summarize(latencies)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Latency: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("LATENCY:")
	fmt.Printf("  First run: %s\n", stat.First.Round(time.Microsecond))
	fmt.Printf("  Median:    %s\n", stat.Median.Round(time.Microsecond))
	fmt.Printf("  Max:       %s\n", stat.Max.Round(time.Microsecond))
}

type latencyStats struct {
	First, Median, Max time.Duration
}

func summarize(latencies []time.Duration) (latencyStats, error) {
	if len(latencies) == 0 {
		return latencyStats{}, fmt.Errorf("no timed runs")
	}
	sorted := append([]time.Duration(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return latencyStats{
		First:  latencies[0],
		Median: sorted[len(sorted)/2],
		Max:    sorted[len(sorted)-1],
	}, nil
}

func validateRuns(n int) error {
	if n < 1 {
		return fmt.Errorf("-n must be at least 1, got %d", n)
	}
	return nil
}
