// Package sqlite implements domain.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blackmichael/claimbot/internal/domain"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS drops (
	drop_id    TEXT PRIMARY KEY,
	link       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS claims (
	message_id        TEXT PRIMARY KEY,
	drop_id           TEXT NOT NULL,
	user_id           TEXT NOT NULL,
	ticket_channel_id TEXT,
	claimed_at        INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS source_messages (
	source_message_id TEXT PRIMARY KEY,
	processed         INTEGER NOT NULL DEFAULT 0,
	first_seen_at     INTEGER NOT NULL
);
`

// Store implements domain.Store using SQLite. The claims primary key is the
// arbiter for concurrent claim attempts: the first insert wins, every later
// one fails the uniqueness constraint.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and ensures
// the schema exists. The caller should call Close when done.
//
// WAL and a busy timeout are required: without them a losing concurrent
// claim insert can surface SQLITE_BUSY instead of the primary-key conflict
// that arbitration depends on. The pragmas use the modernc driver's
// _pragma=name(value) DSN form.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateDrop inserts a new drop.
func (s *Store) CreateDrop(ctx context.Context, drop *domain.Drop) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO drops (drop_id, link, created_at) VALUES (?, ?, ?)`,
		drop.ID,
		drop.Link,
		drop.CreatedAt.UnixMilli(),
	)
	return err
}

// GetDrop retrieves a drop by ID.
func (s *Store) GetDrop(ctx context.Context, id string) (*domain.Drop, error) {
	var (
		drop      domain.Drop
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT drop_id, link, created_at FROM drops WHERE drop_id = ?`, id,
	).Scan(&drop.ID, &drop.Link, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDropNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query drop: %w", err)
	}
	drop.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &drop, nil
}

// InsertClaim records a claim. The primary key on message_id makes this the
// atomic first-click-wins decision; a conflict means somebody already won.
func (s *Store) InsertClaim(ctx context.Context, claim *domain.Claim) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO claims (message_id, drop_id, user_id, claimed_at) VALUES (?, ?, ?, ?)`,
		claim.MessageID,
		claim.DropID,
		claim.UserID,
		claim.ClaimedAt.UnixMilli(),
	)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyClaimed
	}
	return err
}

// GetClaim retrieves the claim for an announcement message, or nil if the
// announcement is unclaimed.
func (s *Store) GetClaim(ctx context.Context, messageID string) (*domain.Claim, error) {
	var (
		claim     domain.Claim
		ticketID  sql.NullString
		claimedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT message_id, drop_id, user_id, ticket_channel_id, claimed_at
		 FROM claims WHERE message_id = ?`, messageID,
	).Scan(&claim.MessageID, &claim.DropID, &claim.UserID, &ticketID, &claimedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query claim: %w", err)
	}
	claim.TicketChannelID = ticketID.String
	claim.ClaimedAt = time.UnixMilli(claimedAt).UTC()
	return &claim, nil
}

// SetClaimTicket records the ticket channel created for a claim.
func (s *Store) SetClaimTicket(ctx context.Context, messageID, ticketChannelID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE claims SET ticket_channel_id = ? WHERE message_id = ?`,
		ticketChannelID, messageID,
	)
	return err
}

// ObserveSource records the first sighting of an upstream message. Repeat
// observations, including concurrent ones, are no-ops.
func (s *Store) ObserveSource(ctx context.Context, sourceID string, seenAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO source_messages (source_message_id, processed, first_seen_at)
		 VALUES (?, 0, ?)`,
		sourceID, seenAt.UnixMilli(),
	)
	return err
}

// SourceProcessed reports whether a drop was already derived from the source.
func (s *Store) SourceProcessed(ctx context.Context, sourceID string) (bool, error) {
	var processed bool
	err := s.db.QueryRowContext(ctx,
		`SELECT processed FROM source_messages WHERE source_message_id = ?`, sourceID,
	).Scan(&processed)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query source: %w", err)
	}
	return processed, nil
}

// MarkSourceProcessed flips processed from false to true. The conditional
// update means exactly one caller observes the flip, even when a fresh
// delivery races a scheduled re-check of the same message.
func (s *Store) MarkSourceProcessed(ctx context.Context, sourceID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE source_messages SET processed = 1
		 WHERE source_message_id = ? AND processed = 0`,
		sourceID,
	)
	if err != nil {
		return false, fmt.Errorf("update source: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
