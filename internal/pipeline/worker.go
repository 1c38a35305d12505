package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// PendingEmbedder embeds chunks that do not yet have vectors. It reports
// how many chunks succeeded and how many failed in the batch.
type PendingEmbedder interface {
	EmbedPending(ctx context.Context, batchSize int) (embedded, failed int, err error)
}

// EmbedWorker drives embedding generation in the background. Chunks are
// written by the ingestion pipeline with has_embedding false and picked
// up here on an interval, so an upload never waits on the embedding
// provider.
type EmbedWorker struct {
	embedder  PendingEmbedder
	interval  time.Duration
	batchSize int
	log       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEmbedWorker creates a background embedding worker.
func NewEmbedWorker(embedder PendingEmbedder, interval time.Duration, batchSize int, log *slog.Logger) *EmbedWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	return &EmbedWorker{
		embedder:  embedder,
		interval:  interval,
		batchSize: batchSize,
		log:       log,
	}
}

// Start launches the polling loop. One batch runs immediately so chunks
// left pending by a previous shutdown are not stuck for a full interval.
func (w *EmbedWorker) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.runBatch(workerCtx)

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				w.runBatch(workerCtx)
			}
		}
	}()
}

// Stop cancels the loop and waits for any in-flight batch to finish its
// current chunk. Partially processed batches are safe: each chunk's flag
// is only flipped after its vector is stored.
func (w *EmbedWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *EmbedWorker) runBatch(ctx context.Context) {
	embedded, failed, err := w.embedder.EmbedPending(ctx, w.batchSize)
	if err != nil {
		w.log.Error("embedding batch failed", "error", err)
		return
	}
	if embedded > 0 || failed > 0 {
		w.log.Info("embedding batch done", "embedded", embedded, "failed", failed)
	}
}
