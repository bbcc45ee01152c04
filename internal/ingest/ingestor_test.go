package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/claimbot/internal/domain"
)

// memStore is the minimal thread-safe domain.Store needed to drive the
// ingestor through the drop service.
type memStore struct {
	mu      sync.Mutex
	drops   int
	sources map[string]*domain.SourceRecord

	// observeFailures makes the next N ObserveSource calls fail, to mimic
	// a transient store fault on delivery.
	observeFailures int
}

func newMemStore() *memStore {
	return &memStore{sources: make(map[string]*domain.SourceRecord)}
}

func (m *memStore) CreateDrop(_ context.Context, _ *domain.Drop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drops++
	return nil
}

func (m *memStore) GetDrop(_ context.Context, _ string) (*domain.Drop, error) {
	return nil, domain.ErrDropNotFound
}

func (m *memStore) InsertClaim(_ context.Context, _ *domain.Claim) error { return nil }

func (m *memStore) GetClaim(_ context.Context, _ string) (*domain.Claim, error) {
	return nil, nil
}

func (m *memStore) SetClaimTicket(_ context.Context, _, _ string) error { return nil }

func (m *memStore) ObserveSource(_ context.Context, sourceID string, seenAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.observeFailures > 0 {
		m.observeFailures--
		return errors.New("store unavailable")
	}
	if _, ok := m.sources[sourceID]; !ok {
		m.sources[sourceID] = &domain.SourceRecord{ID: sourceID, FirstSeenAt: seenAt}
	}
	return nil
}

func (m *memStore) SourceProcessed(_ context.Context, sourceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sources[sourceID]
	return ok && rec.Processed, nil
}

func (m *memStore) MarkSourceProcessed(_ context.Context, sourceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sources[sourceID]
	if !ok || rec.Processed {
		return false, nil
	}
	rec.Processed = true
	return true, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) dropCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drops
}

type nopPlatform struct{}

func (nopPlatform) PublishDrop(_ context.Context, _ string, _ domain.Extraction) (string, error) {
	return "msg-1", nil
}

func (nopPlatform) CreateTicket(_ context.Context, _, _, _ string) (string, error) {
	return "ticket-1", nil
}

func (nopPlatform) MarkClaimed(_ context.Context, _, _, _ string) error { return nil }

// fakeFetcher serves a sequence of announcement states, one per fetch, to
// mimic an embed filling in across edits.
type fakeFetcher struct {
	mu      sync.Mutex
	states  []*domain.Announcement
	fetches int
}

func (f *fakeFetcher) FetchAnnouncement(_ context.Context, _ string) (*domain.Announcement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.states[min(f.fetches, len(f.states)-1)]
	f.fetches++
	return state, nil
}

func (f *fakeFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func sparseAnnouncement() *domain.Announcement {
	return &domain.Announcement{
		Fields: []domain.Field{
			{Name: "Cookies link", Value: "https://pay.example.com/x"},
			{Name: "Event", Value: "Concert"},
		},
	}
}

func fullAnnouncement() *domain.Announcement {
	ann := sparseAnnouncement()
	ann.Fields = append(ann.Fields, domain.Field{Name: "Price", Value: "80 EUR"})
	return ann
}

func newTestIngestor(store domain.Store, fetcher Fetcher) *Ingestor {
	svc := domain.NewDropService(store, nopPlatform{}, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	ing := NewIngestor(svc, fetcher, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ing.offsets = []time.Duration{10 * time.Millisecond, 30 * time.Millisecond, 60 * time.Millisecond}
	return ing
}

func TestObserveReadyImmediately(t *testing.T) {
	store := newMemStore()
	fetcher := &fakeFetcher{states: []*domain.Announcement{fullAnnouncement()}}
	ing := newTestIngestor(store, fetcher)

	ing.Observe(context.Background(), "src-1", fullAnnouncement())

	assert.Equal(t, 1, store.dropCount())
	assert.Equal(t, 0, fetcher.fetchCount(), "no re-checks when ready on first sight")
	ing.mu.Lock()
	assert.Empty(t, ing.pending)
	ing.mu.Unlock()
}

func TestObserveSchedulesRechecksUntilReady(t *testing.T) {
	store := newMemStore()
	// First re-check still sparse, second sees the filled-in embed.
	fetcher := &fakeFetcher{states: []*domain.Announcement{
		sparseAnnouncement(),
		fullAnnouncement(),
	}}
	ing := newTestIngestor(store, fetcher)

	ing.Observe(context.Background(), "src-1", sparseAnnouncement())

	require.Eventually(t, func() bool {
		return store.dropCount() == 1
	}, time.Second, 5*time.Millisecond, "re-check should publish once the embed fills in")

	assert.Equal(t, 2, fetcher.fetchCount(), "schedule stops after the source is processed")
}

func TestObserveNeverReadyExhaustsSchedule(t *testing.T) {
	store := newMemStore()
	fetcher := &fakeFetcher{states: []*domain.Announcement{sparseAnnouncement()}}
	ing := newTestIngestor(store, fetcher)

	ing.Observe(context.Background(), "src-1", sparseAnnouncement())

	require.Eventually(t, func() bool {
		ing.mu.Lock()
		defer ing.mu.Unlock()
		return len(ing.pending) == 0
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, store.dropCount())
	assert.Equal(t, len(ing.offsets), fetcher.fetchCount())
}

func TestObserveEditCancelsRechecks(t *testing.T) {
	store := newMemStore()
	fetcher := &fakeFetcher{states: []*domain.Announcement{sparseAnnouncement()}}
	ing := newTestIngestor(store, fetcher)
	ing.offsets = []time.Duration{500 * time.Millisecond}

	ctx := context.Background()
	ing.Observe(ctx, "src-1", sparseAnnouncement())

	ing.mu.Lock()
	pending := len(ing.pending)
	ing.mu.Unlock()
	require.Equal(t, 1, pending)

	// The edit event arrives before the first re-check fires.
	ing.Observe(ctx, "src-1", fullAnnouncement())

	assert.Equal(t, 1, store.dropCount())
	require.Eventually(t, func() bool {
		ing.mu.Lock()
		defer ing.mu.Unlock()
		return len(ing.pending) == 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, fetcher.fetchCount(), "cancelled schedule never fetches")
}

func TestObserveTransientFaultStillSchedules(t *testing.T) {
	store := newMemStore()
	store.observeFailures = 1
	fetcher := &fakeFetcher{states: []*domain.Announcement{fullAnnouncement()}}
	ing := newTestIngestor(store, fetcher)

	// The delivery itself fails at the store; the re-check schedule must
	// still pick the source up and publish it.
	ing.Observe(context.Background(), "src-1", fullAnnouncement())
	assert.Equal(t, 0, store.dropCount())

	require.Eventually(t, func() bool {
		return store.dropCount() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, fetcher.fetchCount())
}

func TestObserveContextCancellationStopsSchedule(t *testing.T) {
	store := newMemStore()
	fetcher := &fakeFetcher{states: []*domain.Announcement{sparseAnnouncement()}}
	ing := newTestIngestor(store, fetcher)
	ing.offsets = []time.Duration{500 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	ing.Observe(ctx, "src-1", sparseAnnouncement())
	cancel()

	require.Eventually(t, func() bool {
		ing.mu.Lock()
		defer ing.mu.Unlock()
		return len(ing.pending) == 0
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, fetcher.fetchCount())
}
