package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/voicetel/autotask-notifier/internal/models"
)

// Store persists the tracked ticket set. The set is small and treated as a
// single blob: Load reads it whole, Replace swaps it whole in one
// transaction. Callers serialize each read-modify-write cycle themselves.
type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// Set pragmas for better performance
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	return &Store{db: db}, nil
}

func (s *Store) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tickets (
		id INTEGER PRIMARY KEY,
		account TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		number INTEGER NOT NULL DEFAULT 0,
		due INTEGER NOT NULL,
		notif_time INTEGER NOT NULL DEFAULT 0,
		notif_id TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_tickets_due ON tickets(due);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Load returns the tracked set ordered ascending by due time.
func (s *Store) Load() ([]models.Ticket, error) {
	rows, err := s.db.Query(`
		SELECT id, account, title, number, due, notif_time, notif_id
		FROM tickets
		ORDER BY due ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load tickets: %w", err)
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		var t models.Ticket
		if err := rows.Scan(&t.ID, &t.Account, &t.Title, &t.Number, &t.Due, &t.NotifTime, &t.NotifID); err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed reading tickets: %w", err)
	}

	return tickets, nil
}

// Replace swaps the whole tracked set atomically.
func (s *Store) Replace(tickets []models.Ticket) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM tickets"); err != nil {
		return fmt.Errorf("failed to clear tickets: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO tickets (id, account, title, number, due, notif_time, notif_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range tickets {
		if _, err := stmt.Exec(t.ID, t.Account, t.Title, t.Number, t.Due, t.NotifTime, t.NotifID); err != nil {
			return fmt.Errorf("failed to insert ticket %d: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tickets: %w", err)
	}
	return nil
}

// FindByNotifID resolves the ticket a dispatched notification belongs to.
// Returns nil when no tracked ticket carries the handle.
func (s *Store) FindByNotifID(notifID string) (*models.Ticket, error) {
	if notifID == "" {
		return nil, nil
	}

	var t models.Ticket
	err := s.db.QueryRow(`
		SELECT id, account, title, number, due, notif_time, notif_id
		FROM tickets
		WHERE notif_id = ?
	`, notifID).Scan(&t.ID, &t.Account, &t.Title, &t.Number, &t.Due, &t.NotifTime, &t.NotifID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ticket by notification: %w", err)
	}
	return &t, nil
}

// Vacuum reclaims disk space after the tracked set has churned.
func (s *Store) Vacuum() error {
	if _, err := s.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
