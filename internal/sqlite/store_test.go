package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/claimbot/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "claimbot.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// TestOpenAppliesPragmas guards the DSN syntax: the modernc driver only
// honors _pragma=name(value) parameters and silently drops anything else,
// which would leave the database without WAL or a busy timeout.
func TestOpenAppliesPragmas(t *testing.T) {
	store := openTestStore(t)

	var journalMode string
	require.NoError(t, store.db.QueryRow(`PRAGMA journal_mode`).Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, store.db.QueryRow(`PRAGMA busy_timeout`).Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)
}

func TestDropRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	created := &domain.Drop{
		ID:        "drop-1",
		Link:      "https://pay.example.com/abc",
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.CreateDrop(ctx, created))

	got, err := store.GetDrop(ctx, "drop-1")
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = store.GetDrop(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrDropNotFound)
}

func TestInsertClaimConflict(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	claim := &domain.Claim{
		MessageID: "msg-1",
		DropID:    "drop-1",
		UserID:    "alice",
		ClaimedAt: time.Now().UTC(),
	}
	require.NoError(t, store.InsertClaim(ctx, claim))

	loser := &domain.Claim{
		MessageID: "msg-1",
		DropID:    "drop-1",
		UserID:    "bob",
		ClaimedAt: time.Now().UTC(),
	}
	err := store.InsertClaim(ctx, loser)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	got, err := store.GetClaim(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserID)
}

func TestInsertClaimConcurrent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	const attempts = 8
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for n := 0; n < attempts; n++ {
		n := n
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[n] = store.InsertClaim(ctx, &domain.Claim{
				MessageID: "msg-1",
				DropID:    "drop-1",
				UserID:    fmt.Sprintf("user-%d", n),
				ClaimedAt: time.Now().UTC(),
			})
		}()
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestClaimUnclaimedIsNil(t *testing.T) {
	store := openTestStore(t)

	claim, err := store.GetClaim(context.Background(), "never-claimed")
	require.NoError(t, err)
	assert.Nil(t, claim)
}

func TestSetClaimTicket(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertClaim(ctx, &domain.Claim{
		MessageID: "msg-1",
		DropID:    "drop-1",
		UserID:    "alice",
		ClaimedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.SetClaimTicket(ctx, "msg-1", "ticket-9"))

	claim, err := store.GetClaim(ctx, "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "ticket-9", claim.TicketChannelID)
}

func TestSourceLedger(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	processed, err := store.SourceProcessed(ctx, "src-1")
	require.NoError(t, err)
	assert.False(t, processed, "unknown source is unprocessed")

	seenAt := time.Now().UTC()
	require.NoError(t, store.ObserveSource(ctx, "src-1", seenAt))
	// Repeat observation is a no-op, not an error.
	require.NoError(t, store.ObserveSource(ctx, "src-1", seenAt.Add(time.Second)))

	flipped, err := store.MarkSourceProcessed(ctx, "src-1")
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = store.MarkSourceProcessed(ctx, "src-1")
	require.NoError(t, err)
	assert.False(t, flipped, "processed flips false to true exactly once")

	processed, err = store.SourceProcessed(ctx, "src-1")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestMarkSourceProcessedConcurrent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.ObserveSource(ctx, "src-1", time.Now().UTC()))

	const observers = 8
	flips := make([]bool, observers)

	var wg sync.WaitGroup
	for n := 0; n < observers; n++ {
		n := n
		wg.Add(1)
		go func() {
			defer wg.Done()
			flips[n], _ = store.MarkSourceProcessed(ctx, "src-1")
		}()
	}
	wg.Wait()

	winners := 0
	for _, flipped := range flips {
		if flipped {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestMarkUnknownSource(t *testing.T) {
	store := openTestStore(t)

	flipped, err := store.MarkSourceProcessed(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, flipped)
}
