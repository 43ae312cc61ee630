// mailattach
// Copyright 2025 Blue Static <https://www.bluestatic.org>
// This program is free software licensed under the GNU General Public License,
// version 3.0. The full text of the license can be found in LICENSE.txt.
// SPDX-License-Identifier: GPL-3.0-only

// Package journal records every attachment written to the target directory.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS deliveries (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	cycle_id TEXT    NOT NULL,
	sender   TEXT    NOT NULL,
	filename TEXT    NOT NULL,
	path     TEXT    NOT NULL,
	size     INTEGER NOT NULL,
	sha256   TEXT    NOT NULL,
	saved_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deliveries_saved_at ON deliveries(saved_at);
`

// Delivery is one attachment written to disk.
type Delivery struct {
	ID       int64     `db:"id"`
	CycleID  string    `db:"cycle_id"`
	Sender   string    `db:"sender"`
	Filename string    `db:"filename"`
	Path     string    `db:"path"`
	Size     int64     `db:"size"`
	SHA256   string    `db:"sha256"`
	SavedAt  time.Time `db:"saved_at"`
}

// Journal is a SQLite-backed list of deliveries.
type Journal struct {
	db *sqlx.DB
}

// Open opens or creates the journal database at `path`.
func Open(path string) (*Journal, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("Failed to open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("Failed to create journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends `d`. The ID is assigned by the database.
func (j *Journal) Record(ctx context.Context, d Delivery) error {
	_, err := j.db.NamedExecContext(ctx, `
		INSERT INTO deliveries (cycle_id, sender, filename, path, size, sha256, saved_at)
		VALUES (:cycle_id, :sender, :filename, :path, :size, :sha256, :saved_at)`, d)
	if err != nil {
		return fmt.Errorf("Failed to record delivery of %q: %w", d.Filename, err)
	}
	return nil
}

// Recent returns up to `limit` deliveries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Delivery, error) {
	var ds []Delivery
	err := j.db.SelectContext(ctx, &ds, `
		SELECT id, cycle_id, sender, filename, path, size, sha256, saved_at
		FROM deliveries ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("Failed to list deliveries: %w", err)
	}
	return ds, nil
}
