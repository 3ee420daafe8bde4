// Command kuzu-memory-bench drives a real embedded store through the
// write and read paths to validate the recall/generation latency budgets
// during development. It is not a CLI, an installer, or a transport server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	kuzumemory "github.com/kuzu-memory/kuzu-memory-go"
	"github.com/kuzu-memory/kuzu-memory-go/pkg/types"
)

func main() {
	dbPath := flag.String("db", "kuzu-memory-bench.db", "path to the SQLite database file")
	n := flag.Int("n", 500, "number of synthetic memories to generate before measuring recall")
	flag.Parse()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	store, err := kuzumemory.Open(ctx, *dbPath, kuzumemory.WithLogger(logger))
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	defer store.Close(ctx)

	fmt.Printf("generating %d memories...\n", *n)
	genStart := time.Now()
	for i := 0; i < *n; i++ {
		content := fmt.Sprintf("This project uses Go and SQLite for synthetic memory %d.", i)
		if _, err := store.GenerateMemories(ctx, content, "bench", "bench-agent", "", "", nil, types.DedupPolicySkip); err != nil {
			log.Fatalf("generate_memories[%d]: %v", i, err)
		}
	}
	fmt.Printf("generated %d memories in %s (%.3fms/op avg)\n", *n, time.Since(genStart), float64(time.Since(genStart).Milliseconds())/float64(*n))

	fmt.Println("measuring recall latency...")
	var total time.Duration
	const recallRuns = 50
	for i := 0; i < recallRuns; i++ {
		start := time.Now()
		ctxCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		_, err := store.AttachMemories(ctxCtx, "What does this project use?", 10, types.RecallStrategyAuto, "bench-agent", "", "")
		cancel()
		if err != nil {
			log.Fatalf("attach_memories[%d]: %v", i, err)
		}
		total += time.Since(start)
	}
	avgMS := float64(total.Milliseconds()) / float64(recallRuns)
	fmt.Printf("avg recall_time_ms over %d runs: %.3f\n", recallRuns, avgMS)
	if avgMS > 10 {
		fmt.Println("WARNING: average recall latency exceeds the 10ms budget")
	}
}
