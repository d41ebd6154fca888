package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/issuehound/internal/config"
	"github.com/kiranshivaraju/issuehound/pkg/models"
)

const queueDepth = 4096

// Archiver buffers accepted events and flushes them to S3 as JSONL.gz
// batches, either when a batch fills or on the flush interval. Enqueue never
// blocks the ingest path: when the queue is full the event is dropped and
// counted, archival being best effort by contract.
type Archiver struct {
	uploader  *Uploader
	prefix    string
	batchSize int
	interval  time.Duration

	events  chan *models.Event
	dropped atomic.Int64
}

// NewArchiver creates an Archiver; call Run to start the flush loop.
func NewArchiver(uploader *Uploader, cfg config.ArchiveConfig) *Archiver {
	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}
	return &Archiver{
		uploader:  uploader,
		prefix:    uploader.prefix,
		batchSize: batchSize,
		interval:  cfg.FlushInterval,
		events:    make(chan *models.Event, queueDepth),
	}
}

// Enqueue hands an event to the archiver without blocking. Safe for
// concurrent use from request goroutines.
func (a *Archiver) Enqueue(event *models.Event) {
	select {
	case a.events <- event:
	default:
		total := a.dropped.Add(1)
		slog.Warn("archive queue full, dropping event", "event_id", event.ID, "dropped_total", total)
	}
}

// Dropped reports how many events have been discarded because the queue
// was full.
func (a *Archiver) Dropped() int64 {
	return a.dropped.Load()
}

// Run drains the queue until ctx is cancelled, then flushes whatever is
// buffered before returning.
func (a *Archiver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	batch := make([]*models.Event, 0, a.batchSize)

	for {
		select {
		case ev := <-a.events:
			batch = append(batch, ev)
			if len(batch) >= a.batchSize {
				a.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			// Final drain; uploads get a short grace window independent of
			// the cancelled server context.
			for {
				select {
				case ev := <-a.events:
					batch = append(batch, ev)
					continue
				default:
				}
				break
			}
			if len(batch) > 0 {
				flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				a.flush(flushCtx, batch)
				cancel()
			}
			return
		}
	}
}

func (a *Archiver) flush(ctx context.Context, batch []*models.Event) {
	data, err := encodeJSONLGZ(batch)
	if err != nil {
		slog.Error("encoding archive batch failed", "events", len(batch), "error", err)
		return
	}

	key := a.batchKey(time.Now().UTC())
	if err := a.uploader.UploadBytes(ctx, key, "application/gzip", data); err != nil {
		slog.Error("uploading archive batch failed", "key", key, "events", len(batch), "error", err)
		return
	}
	slog.Debug("archived event batch", "key", key, "events", len(batch), "bytes", len(data))
}

func (a *Archiver) batchKey(now time.Time) string {
	return fmt.Sprintf("%s/events/%s/%s.jsonl.gz", a.prefix, now.Format("2006/01/02"), uuid.New())
}
