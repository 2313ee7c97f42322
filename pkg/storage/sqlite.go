package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"civharvest/pkg/records"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS images (
  id               INTEGER PRIMARY KEY,
  collection_id    INTEGER NOT NULL,
  url              TEXT NOT NULL,
  author           TEXT NOT NULL,
  model            TEXT,
  model_version_id INTEGER,
  base_model       TEXT,
  nsfw             INTEGER NOT NULL CHECK (nsfw IN (0,1)),
  created_at       TEXT,
  record_json      TEXT NOT NULL,
  record_sha256    TEXT NOT NULL,
  run_id           TEXT NOT NULL,
  first_seen_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_images_collection ON images(collection_id);
CREATE INDEX IF NOT EXISTS idx_images_model ON images(model_version_id);
CREATE TABLE IF NOT EXISTS tags (
  id   INTEGER PRIMARY KEY,
  name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS image_tags (
  image_id INTEGER NOT NULL REFERENCES images(id) ON DELETE CASCADE,
  tag_id   INTEGER NOT NULL REFERENCES tags(id),
  position INTEGER NOT NULL,
  PRIMARY KEY (image_id, tag_id)
);
CREATE TABLE IF NOT EXISTS runs (
  id            TEXT PRIMARY KEY,
  collection_id INTEGER NOT NULL,
  started_at    DATETIME NOT NULL,
  finished_at   DATETIME,
  status        TEXT NOT NULL,
  listed        INTEGER NOT NULL DEFAULT 0,
  records       INTEGER NOT NULL DEFAULT 0,
  skipped       INTEGER NOT NULL DEFAULT 0,
  error         TEXT
);
`

// UpsertResult says what an upsert did to a row.
type UpsertResult string

const (
	Inserted  UpsertResult = "inserted"
	Updated   UpsertResult = "updated"
	Unchanged UpsertResult = "unchanged"
)

// Run is one row of the runs table.
type Run struct {
	ID           string
	CollectionID int64
	StartedAt    time.Time
	FinishedAt   time.Time
	Status       string
	Listed       int
	Records      int
	Skipped      int
	Error        string
}

// DB is the SQLite harvest store.
type DB struct {
	sql *sql.DB
}

// OpenDB opens (creating if needed) the database at path.
func OpenDB(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}
	// one writer; the harvest is sequential anyway
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// RecordHash is the hex sha256 of the record's JSON export.
func RecordHash(rec *records.MergedRecord) (string, []byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode record %d: %w", rec.ImageID, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), data, nil
}

// UpsertRecord stores rec keyed by image id. A row whose stored hash
// matches is only stamped with the new run id.
func (d *DB) UpsertRecord(ctx context.Context, runID string, collectionID int64, rec *records.MergedRecord) (result UpsertResult, err error) {
	hash, data, err := RecordHash(rec)
	if err != nil {
		return "", err
	}

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT record_sha256 FROM images WHERE id = ?`, rec.ImageID).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		result = Inserted
	case err != nil:
		return "", fmt.Errorf("failed to look up image %d: %w", rec.ImageID, err)
	case existing == hash:
		result = Unchanged
	default:
		result = Updated
	}

	if result == Unchanged {
		_, err = tx.ExecContext(ctx, `UPDATE images SET run_id = ? WHERE id = ?`, runID, rec.ImageID)
		if err != nil {
			return "", err
		}
		return result, tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO images (id, collection_id, url, author, model, model_version_id, base_model, nsfw, created_at, record_json, record_sha256, run_id)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  collection_id    = excluded.collection_id,
  url              = excluded.url,
  author           = excluded.author,
  model            = excluded.model,
  model_version_id = excluded.model_version_id,
  base_model       = excluded.base_model,
  nsfw             = excluded.nsfw,
  created_at       = excluded.created_at,
  record_json      = excluded.record_json,
  record_sha256    = excluded.record_sha256,
  run_id           = excluded.run_id,
  updated_at       = CURRENT_TIMESTAMP`,
		rec.ImageID, collectionID, rec.URL, rec.Author, nullIfEmpty(rec.Model), nullIfZero(rec.ModelVersionID),
		nullIfEmpty(rec.BaseModel), boolToInt(rec.Nsfw), nullIfEmpty(rec.CreatedAt), string(data), hash, runID)
	if err != nil {
		return "", fmt.Errorf("failed to upsert image %d: %w", rec.ImageID, err)
	}

	if err = replaceTags(ctx, tx, rec.ImageID, rec.Tags); err != nil {
		return "", err
	}
	return result, tx.Commit()
}

func replaceTags(ctx context.Context, tx *sql.Tx, imageID int64, tags []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM image_tags WHERE image_id = ?`, imageID); err != nil {
		return fmt.Errorf("failed to clear tags of image %d: %w", imageID, err)
	}
	for pos, name := range tags {
		if _, err := tx.ExecContext(ctx, `INSERT INTO tags(name) VALUES(?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
			return fmt.Errorf("failed to insert tag %q: %w", name, err)
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO image_tags(image_id, tag_id, position)
SELECT ?, id, ? FROM tags WHERE name = ?
ON CONFLICT(image_id, tag_id) DO NOTHING`, imageID, pos, name)
		if err != nil {
			return fmt.Errorf("failed to link tag %q: %w", name, err)
		}
	}
	return nil
}

// StartRun records the beginning of a harvest.
func (d *DB) StartRun(ctx context.Context, runID string, collectionID int64, startedAt time.Time) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO runs(id, collection_id, started_at, status) VALUES(?, ?, ?, 'running')`,
		runID, collectionID, startedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record run start: %w", err)
	}
	return nil
}

// FinishRun stores the outcome of a harvest.
func (d *DB) FinishRun(ctx context.Context, run Run) error {
	_, err := d.sql.ExecContext(ctx, `
UPDATE runs SET finished_at = ?, status = ?, listed = ?, records = ?, skipped = ?, error = ?
WHERE id = ?`,
		run.FinishedAt.UTC(), run.Status, run.Listed, run.Records, run.Skipped, nullIfEmpty(run.Error), run.ID)
	if err != nil {
		return fmt.Errorf("failed to record run result: %w", err)
	}
	return nil
}

// GetRun loads one run, nil when unknown.
func (d *DB) GetRun(ctx context.Context, runID string) (*Run, error) {
	var (
		run      Run
		finished sql.NullTime
		errText  sql.NullString
	)
	err := d.sql.QueryRowContext(ctx, `
SELECT id, collection_id, started_at, finished_at, status, listed, records, skipped, error
FROM runs WHERE id = ?`, runID).Scan(
		&run.ID, &run.CollectionID, &run.StartedAt, &finished, &run.Status,
		&run.Listed, &run.Records, &run.Skipped, &errText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	run.FinishedAt = finished.Time
	run.Error = errText.String
	return &run, nil
}

// CountImages returns the number of stored images of a collection.
func (d *DB) CountImages(ctx context.Context, collectionID int64) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM images WHERE collection_id = ?`, collectionID).Scan(&n)
	return n, err
}

// HasImage reports whether an image row exists.
func (d *DB) HasImage(ctx context.Context, imageID int64) (bool, error) {
	var one int
	err := d.sql.QueryRowContext(ctx, `SELECT 1 FROM images WHERE id = ?`, imageID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// ImageTags returns the tags of an image in stored order.
func (d *DB) ImageTags(ctx context.Context, imageID int64) ([]string, error) {
	rows, err := d.sql.QueryContext(ctx, `
SELECT t.name FROM image_tags it JOIN tags t ON t.id = it.tag_id
WHERE it.image_id = ? ORDER BY it.position`, imageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

// RecordJSON returns the stored export of an image.
func (d *DB) RecordJSON(ctx context.Context, imageID int64) ([]byte, error) {
	var data string
	err := d.sql.QueryRowContext(ctx, `SELECT record_json FROM images WHERE id = ?`, imageID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return []byte(data), err
}

func nullIfEmpty(s string) any {
	if s == "" || s == "Unknown" {
		return nil
	}
	return s
}

func nullIfZero(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
