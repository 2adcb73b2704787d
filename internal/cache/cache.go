// Package cache persists resolved track identities across transfer runs.
//
// A match maps a track in one service to its counterpart in another. Reruns
// hit the cache before searching the destination catalog, which keeps
// repeated transfers cheap and spares the API rate budget.
package cache

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/amx/internal/shared"
)

// MatchRepository stores and retrieves track matches in SQLite.
//
// Duplicate matches are silently ignored via the UNIQUE constraint on
// (source_service, source_id, dest_service).
type MatchRepository struct {
	db *sql.DB
}

// NewMatchRepository creates a repository backed by the given connection.
func NewMatchRepository(db *sql.DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// Init creates the matches table if it does not exist.
func (r *MatchRepository) Init() error {
	query := `
		CREATE TABLE IF NOT EXISTS matches (
			id TEXT PRIMARY KEY,
			source_service TEXT NOT NULL,
			source_id TEXT NOT NULL,
			dest_service TEXT NOT NULL,
			dest_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			UNIQUE(source_service, source_id, dest_service)
		)
	`

	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create matches table: %w", err)
	}

	return nil
}

// Lookup retrieves a cached destination identifier. Storage errors are
// reported as a miss so a broken cache degrades to fresh catalog searches.
func (r *MatchRepository) Lookup(sourceService, sourceID, destService string) (string, bool) {
	query := `
		SELECT dest_id
		FROM matches
		WHERE source_service = ? AND source_id = ? AND dest_service = ?
	`

	var destID string
	err := r.db.QueryRow(query, sourceService, sourceID, destService).Scan(&destID)
	if err != nil {
		return "", false
	}

	return destID, true
}

// Store records a resolved match. Returns nil if the match already exists.
func (r *MatchRepository) Store(sourceService, sourceID, destService, destID string) error {
	query := `
		INSERT INTO matches (id, source_service, source_id, dest_service, dest_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query, shared.GenerateID(), sourceService, sourceID, destService, destID, time.Now())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return nil
		}
		return fmt.Errorf("failed to store match: %w", err)
	}

	return nil
}

// Stats summarizes the cache contents.
type Stats struct {
	Total int            `json:"total"`
	Pairs map[string]int `json:"pairs"` // "source -> destination" to match count
}

// Stats counts cached matches overall and per service pair.
func (r *MatchRepository) Stats() (Stats, error) {
	stats := Stats{Pairs: make(map[string]int)}

	query := `
		SELECT source_service, dest_service, COUNT(*)
		FROM matches
		GROUP BY source_service, dest_service
		ORDER BY source_service, dest_service
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return stats, fmt.Errorf("failed to query match stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var source, dest string
		var count int
		if err := rows.Scan(&source, &dest, &count); err != nil {
			return stats, fmt.Errorf("failed to scan match stats: %w", err)
		}
		stats.Pairs[source+" -> "+dest] = count
		stats.Total += count
	}

	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("row iteration error: %w", err)
	}

	return stats, nil
}

// Clear deletes every cached match and returns the number removed.
func (r *MatchRepository) Clear() (int64, error) {
	result, err := r.db.Exec(`DELETE FROM matches`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear matches: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return rows, nil
}
