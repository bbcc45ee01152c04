// Package ingest drives the processing of upstream announcement messages,
// including the bounded re-check schedule that tolerates fields filling in
// after initial delivery.
package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/blackmichael/claimbot/internal/domain"
)

// Fetcher re-reads the latest state of an upstream message.
type Fetcher interface {
	FetchAnnouncement(ctx context.Context, sourceID string) (*domain.Announcement, error)
}

// defaultRecheckOffsets are measured from the first observation of a source
// message. Upstream embeds are often delivered sparse and filled in by edits
// within a few seconds; this schedule is a bounded catch-up, not a retry
// framework.
var defaultRecheckOffsets = []time.Duration{
	1500 * time.Millisecond,
	4 * time.Second,
	8 * time.Second,
}

// Ingestor feeds upstream announcement observations into the drop service
// and keeps one bounded re-check schedule per source message. Re-checks are
// cancelled as soon as the source is marked processed, so timers never
// accumulate across the process lifetime.
type Ingestor struct {
	svc     *domain.DropService
	fetcher Fetcher
	offsets []time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]context.CancelFunc
}

// NewIngestor creates an Ingestor with the default re-check schedule.
func NewIngestor(svc *domain.DropService, fetcher Fetcher, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		svc:     svc,
		fetcher: fetcher,
		offsets: defaultRecheckOffsets,
		logger:  logger,
		pending: make(map[string]context.CancelFunc),
	}
}

// Observe handles one observation of an upstream message: initial delivery
// or an edit. If the message is not yet publishable, a re-check schedule is
// started (at most one per source).
func (g *Ingestor) Observe(ctx context.Context, sourceID string, ann *domain.Announcement) {
	done, err := g.svc.IngestAnnouncement(ctx, sourceID, ann)
	if err != nil {
		// A transient fault must not strand the source: the re-check
		// schedule retries the whole ingestion from a fresh fetch.
		g.logger.Error("ingestion failed", "source_id", sourceID, "error", err)
		g.schedule(ctx, sourceID)
		return
	}
	if done {
		g.cancel(sourceID)
		return
	}
	g.schedule(ctx, sourceID)
}

// schedule starts the re-check goroutine for a source unless one is already
// running.
func (g *Ingestor) schedule(ctx context.Context, sourceID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.pending[sourceID]; ok {
		return
	}

	rctx, cancel := context.WithCancel(ctx)
	g.pending[sourceID] = cancel
	go g.recheck(rctx, sourceID)
}

// recheck re-fetches the message at each offset until it is processed or
// the schedule is exhausted.
func (g *Ingestor) recheck(ctx context.Context, sourceID string) {
	defer g.cancel(sourceID)

	start := time.Now()
	for _, offset := range g.offsets {
		wait := offset - time.Since(start)
		if wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}

		ann, err := g.fetcher.FetchAnnouncement(ctx, sourceID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			g.logger.Warn("re-check fetch failed", "source_id", sourceID, "error", err)
			continue
		}

		done, err := g.svc.IngestAnnouncement(ctx, sourceID, ann)
		if err != nil {
			g.logger.Error("re-check ingestion failed", "source_id", sourceID, "error", err)
			continue
		}
		if done {
			return
		}
	}

	g.logger.Info("source never became publishable", "source_id", sourceID)
}

// cancel stops and forgets the re-check schedule for a source, if any.
func (g *Ingestor) cancel(sourceID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cancelFn, ok := g.pending[sourceID]; ok {
		delete(g.pending, sourceID)
		cancelFn()
	}
}
