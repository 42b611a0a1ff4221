package ingest

import (
	"context"
	"log/slog"
	"time"
)

// Job runs the scraper and then, when anything new was stored, the embedding
// backfill.
type Job struct {
	scraper    *Scraper
	embeddings *Embeddings
}

func (j *Job) Run(ctx context.Context) error {
	found, stored, err := j.scraper.Run(ctx)
	if err != nil {
		return err
	}

	processed, failed := 0, 0

	if stored > 0 {
		processed, failed, err = j.embeddings.ProcessAll(ctx)
		if err != nil {
			return err
		}
	}

	slog.InfoContext(ctx, "full job completed",
		"scraped", found,
		"stored", stored,
		"embedded", processed,
		"failed_embeddings", failed,
	)

	return nil
}

// Schedule reruns the full job on a fixed interval until ctx is cancelled.
// The first run happens immediately.
func (j *Job) Schedule(ctx context.Context, interval time.Duration) {
	slog.InfoContext(ctx, "scheduling ingestion job", "interval", interval)

	if err := j.Run(ctx); err != nil {
		slog.ErrorContext(ctx, "ingestion job failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				slog.ErrorContext(ctx, "ingestion job failed", "error", err)
			}
		}
	}
}

func NewJob(scraper *Scraper, embeddings *Embeddings) *Job {
	return &Job{
		scraper:    scraper,
		embeddings: embeddings,
	}
}
