package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// sqliteReceipts is an alternative receipts backend for deployments where the
// receipt count outgrows a whole-file JSON rewrite per grant. The state
// document stays a JSON file either way.
type sqliteReceipts struct {
	db *sql.DB
}

func openSQLiteReceipts(path string) (receiptBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store: receipts path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(
		`CREATE TABLE IF NOT EXISTS receipts (
			user_id    TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			PRIMARY KEY (user_id, channel_id)
		)`,
	); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate receipts: %w", err)
	}
	return &sqliteReceipts{db: db}, nil
}

func (s *sqliteReceipts) load() (map[ReceiptKey]struct{}, error) {
	rows, err := s.db.Query(`SELECT user_id, channel_id FROM receipts`)
	if err != nil {
		return nil, fmt.Errorf("load receipts: %w", err)
	}
	defer rows.Close()

	out := map[ReceiptKey]struct{}{}
	for rows.Next() {
		var k ReceiptKey
		if err := rows.Scan(&k.UserID, &k.ChannelID); err != nil {
			return nil, fmt.Errorf("load receipts: %w", err)
		}
		out[k] = struct{}{}
	}
	return out, rows.Err()
}

func (s *sqliteReceipts) put(k ReceiptKey, _ map[ReceiptKey]struct{}) error {
	_, err := s.db.Exec(
		`INSERT INTO receipts(user_id, channel_id) VALUES(?,?)
		 ON CONFLICT(user_id, channel_id) DO NOTHING`,
		k.UserID, k.ChannelID,
	)
	return err
}

func (s *sqliteReceipts) deleteUser(userID string, _ map[ReceiptKey]struct{}) error {
	_, err := s.db.Exec(`DELETE FROM receipts WHERE user_id = ?`, userID)
	return err
}

func (s *sqliteReceipts) close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
