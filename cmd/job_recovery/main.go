// Command job_recovery fails jobs left in processing by a crashed API process.
// Run it before starting the API or on a schedule.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"segportal/internal/config"
	"segportal/internal/database"
	"segportal/internal/domain/job"
	"segportal/internal/pkg/logger"
)

func main() {
	olderThan := flag.Duration("older-than", 0, "fail jobs processing for longer than this (default: twice INFERENCE_TIMEOUT)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *olderThan <= 0 {
		*olderThan = 2 * cfg.Inference.Timeout
	}

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("db connect failed", "error", err)
	}

	cutoff := time.Now().UTC().Add(-*olderThan)
	n, err := job.NewRepository(db).FailStale(context.Background(), cutoff, "processing was interrupted")
	if err != nil {
		log.Fatal("job recovery failed", "error", err)
	}
	log.Info("job recovery completed", "failed_jobs", n, "cutoff", cutoff)
}
