package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"perflog/collector"
)

const chunksPerWorker = 8

// simulateLoad drives the collector from a small worker pool, mimicking
// one summarization run: a model load, concurrent chunk inferences, a
// preprocessing pass and a closing total. Useful for seeding demo data
// and smoke-testing the locking discipline under concurrency.
func simulateLoad(ctx context.Context, col *collector.Collector, workers int, log *zap.Logger) {
	_ = col.LogModelLoading(ctx, "t5-small", 3.5869, "cpu")

	numJobs := workers * chunksPerWorker
	jobs := make(chan int, numJobs)
	results := make(chan error, numJobs)

	for w := 0; w < workers; w++ {
		go func() {
			for i := range jobs {
				subject := fmt.Sprintf("chunk_%d", i)
				inputLen := 400 + i*13
				outputLen := 120 + i*5
				seconds := 0.5 + float64(i%7)*0.21
				results <- col.LogInference(ctx, "t5-small", seconds, inputLen, outputLen, subject)
			}
		}()
	}

	for i := 0; i < numJobs; i++ {
		jobs <- i
	}
	close(jobs)

	failed := 0
	for i := 0; i < numJobs; i++ {
		if err := <-results; err != nil {
			failed++
			_ = col.LogError(ctx, "simulation", err.Error(), map[string]any{"worker_pool": workers})
		}
	}

	_ = col.LogPreprocessing(ctx, "full_pipeline", 0.8342, numJobs*450, numJobs)
	_ = col.LogTotalProcessing(ctx, 12.47, numJobs, numJobs-failed, failed)

	log.Info("simulation finished",
		zap.Int("workers", workers),
		zap.Int("chunks", numJobs),
		zap.Int("failed", failed))
}
