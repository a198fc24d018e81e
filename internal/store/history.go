package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"mixcue/internal/core"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS recommendations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	seed_track_id TEXT NOT NULL,
	seed_name TEXT NOT NULL,
	track_id TEXT NOT NULL,
	track_name TEXT NOT NULL,
	track_artists TEXT NOT NULL,
	match_score REAL NOT NULL,
	verified INTEGER NOT NULL,
	confidence REAL,
	reason TEXT,
	in_queue INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recommendations_track_id ON recommendations(track_id);
CREATE INDEX IF NOT EXISTS idx_recommendations_created_at ON recommendations(created_at);
`

// HistoryStore persists every produced recommendation to SQLite so duplicate
// suppression survives restarts and past sessions stay inspectable.
type HistoryStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewHistoryStore(path string, logger *zap.Logger) (*HistoryStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if _, err := db.Exec(historySchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	return &HistoryStore{db: db, logger: logger}, nil
}

func (h *HistoryStore) Record(ctx context.Context, seed core.Track, rec core.Recommendation) error {
	var (
		verified   bool
		confidence sql.NullFloat64
		reason     sql.NullString
	)
	if rec.Verification != nil {
		verified = rec.Verification.IsValid
		confidence = sql.NullFloat64{Float64: rec.Verification.Confidence, Valid: true}
		reason = sql.NullString{String: rec.Verification.Reason, Valid: true}
	}

	_, err := h.db.ExecContext(ctx, `
		INSERT INTO recommendations
			(seed_track_id, seed_name, track_id, track_name, track_artists,
			 match_score, verified, confidence, reason, in_queue)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seed.ID, seed.Name,
		rec.Track.ID, rec.Track.Name, strings.Join(rec.Track.Artists, ", "),
		rec.MatchScore, verified, confidence, reason, rec.InQueue,
	)
	if err != nil {
		return fmt.Errorf("failed to record recommendation: %w", err)
	}

	h.logger.Debug("recommendation recorded",
		zap.String("seed", seed.Name),
		zap.String("track", rec.Track.Name))

	return nil
}

// RecentTrackIDs returns the most recently recommended track IDs, newest
// first, deduplicated. Used to warm the in-memory dedup store at startup.
func (h *HistoryStore) RecentTrackIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT track_id FROM recommendations
		ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (h *HistoryStore) Close() error {
	return h.db.Close()
}
