// Package database persists terminal debate snapshots to SQLite. The live
// store stays authoritative; the archive is a durable record of finished
// debates that survives restarts.
package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/neo/arbiter_backend/internal/debate"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS debates (
    debate_id   TEXT PRIMARY KEY,
    topic       TEXT NOT NULL,
    status      TEXT NOT NULL,
    num_rounds  INTEGER NOT NULL,
    winner_id   TEXT,
    snapshot    TEXT NOT NULL,
    created_at  TEXT NOT NULL,
    archived_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_debates_status ON debates(status);
CREATE INDEX IF NOT EXISTS idx_debates_created_at ON debates(created_at);
`

// Archive stores terminal debate snapshots as JSON rows
type Archive struct {
	db *sql.DB
}

// ArchivedDebate is a summary row from the archive
type ArchivedDebate struct {
	DebateID   string `json:"debate_id"`
	Topic      string `json:"topic"`
	Status     string `json:"status"`
	NumRounds  int    `json:"num_rounds"`
	WinnerID   string `json:"winner_id,omitempty"`
	CreatedAt  string `json:"created_at"`
	ArchivedAt string `json:"archived_at"`
}

// NewArchive opens (or creates) the archive database under dataDir and
// initializes the schema
func NewArchive(dataDir string) (*Archive, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %v", err)
	}

	dbPath := filepath.Join(dataDir, "debates.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %v", err)
	}

	return &Archive{db: db}, nil
}

// Close closes the database connection
func (a *Archive) Close() error {
	return a.db.Close()
}

// SaveDebate upserts a terminal snapshot. Re-archiving the same debate
// replaces the previous row.
func (a *Archive) SaveDebate(state *debate.DebateState) error {
	snapshot, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal debate snapshot: %v", err)
	}

	winnerID := ""
	if state.JudgeResult != nil {
		winnerID = state.JudgeResult.WinnerID
	}

	query := `INSERT INTO debates (debate_id, topic, status, num_rounds, winner_id, snapshot, created_at, archived_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(debate_id) DO UPDATE SET
                  status = excluded.status,
                  winner_id = excluded.winner_id,
                  snapshot = excluded.snapshot,
                  archived_at = excluded.archived_at`

	_, err = a.db.Exec(query,
		state.DebateID,
		state.Config.Topic,
		state.Status.String(),
		state.Config.NumRounds,
		winnerID,
		string(snapshot),
		state.CreatedAt.Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to archive debate: %v", err)
	}
	return nil
}

// GetDebate loads an archived snapshot by ID
func (a *Archive) GetDebate(debateID string) (*debate.DebateState, error) {
	var snapshot string
	err := a.db.QueryRow(`SELECT snapshot FROM debates WHERE debate_id = ?`, debateID).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, debate.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get archived debate: %v", err)
	}

	var state debate.DebateState
	if err := json.Unmarshal([]byte(snapshot), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal debate snapshot: %v", err)
	}
	return &state, nil
}

// ListDebates returns summary rows for archived debates, newest first
func (a *Archive) ListDebates(limit int) ([]*ArchivedDebate, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := a.db.Query(`
		SELECT debate_id, topic, status, num_rounds, winner_id, created_at, archived_at
		FROM debates
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived debates: %v", err)
	}
	defer rows.Close()

	var debates []*ArchivedDebate
	for rows.Next() {
		var d ArchivedDebate
		if err := rows.Scan(&d.DebateID, &d.Topic, &d.Status, &d.NumRounds,
			&d.WinnerID, &d.CreatedAt, &d.ArchivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan archived debate: %v", err)
		}
		debates = append(debates, &d)
	}
	return debates, rows.Err()
}

// DeleteDebate removes an archived debate
func (a *Archive) DeleteDebate(debateID string) error {
	result, err := a.db.Exec(`DELETE FROM debates WHERE debate_id = ?`, debateID)
	if err != nil {
		return fmt.Errorf("failed to delete archived debate: %v", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return debate.ErrNotFound
	}
	return nil
}
