package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/pulkyeet/flashloan-arb/internal/storage"
)

// export copies journaled cycles in a time window to a parquet file
func main() {
	var (
		dbPath  = flag.String("db", "data/journal.db", "path to the cycle journal")
		outPath = flag.String("out", "data/cycles.parquet", "parquet file to write")
		since   = flag.Duration("since", 24*time.Hour, "export cycles started within this window")
		verify  = flag.Bool("verify", true, "read the file back and compare row counts")
	)
	flag.Parse()

	journal, err := storage.NewJournal(*dbPath)
	if err != nil {
		log.Fatalf("failed to open journal: %v", err)
	}
	defer journal.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	to := time.Now()
	records, err := journal.Between(ctx, to.Add(-*since), to)
	if err != nil {
		log.Fatalf("failed to query journal: %v", err)
	}
	if len(records) == 0 {
		fmt.Println("no cycles in window, nothing to export")
		return
	}

	if err := storage.ExportParquet(*outPath, records); err != nil {
		log.Fatalf("export failed: %v", err)
	}

	if *verify {
		back, err := storage.ReadParquet(*outPath)
		if err != nil {
			log.Fatalf("verify failed: %v", err)
		}
		if len(back) != len(records) {
			log.Fatalf("verify failed: wrote %d rows, read %d", len(records), len(back))
		}
	}

	stats, err := journal.GetStats(ctx)
	if err != nil {
		log.Fatalf("failed to read stats: %v", err)
	}
	fmt.Printf("exported %d cycles to %s\n", len(records), *outPath)
	for outcome, n := range stats {
		fmt.Printf("  %-24s %d\n", outcome, n)
	}
}
