package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/screenflowr/internal/apperr"
)

// Recording is a row in the recordings table.
type Recording struct {
	Filename        string    `json:"filename"`
	ArtifactID      string    `json:"artifact_id,omitempty"`
	Checksum        string    `json:"checksum"`
	Size            int64     `json:"size"`
	MIMEType        string    `json:"mime_type"`
	DurationSeconds int       `json:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at"`
	SavedAt         time.Time `json:"saved_at"`
}

// MIMEForFilename guesses the MIME type of a recording from its extension.
func MIMEForFilename(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".webm":
		return "video/webm"
	case ".mp4":
		return "video/mp4"
	}
	return "application/octet-stream"
}

// Record inserts or updates a recording. A row without an artifact id (as
// produced by a disk scan) keeps the artifact fields already stored.
func (db *DB) Record(r Recording) error {
	if r.MIMEType == "" {
		r.MIMEType = MIMEForFilename(r.Filename)
	}
	if r.SavedAt.IsZero() {
		r.SavedAt = time.Now().UTC()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = r.SavedAt
	}
	_, err := db.conn.Exec(`
		INSERT INTO recordings (filename, artifact_id, checksum, size, mime_type, duration_seconds, created_at, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET
			artifact_id      = CASE WHEN excluded.artifact_id <> '' THEN excluded.artifact_id ELSE recordings.artifact_id END,
			duration_seconds = CASE WHEN excluded.artifact_id <> '' THEN excluded.duration_seconds ELSE recordings.duration_seconds END,
			created_at       = CASE WHEN excluded.artifact_id <> '' THEN excluded.created_at ELSE recordings.created_at END,
			checksum         = excluded.checksum,
			size             = excluded.size,
			mime_type        = excluded.mime_type,
			saved_at         = excluded.saved_at
	`, r.Filename, r.ArtifactID, r.Checksum, r.Size, r.MIMEType, r.DurationSeconds, r.CreatedAt.UTC(), r.SavedAt.UTC())
	if err != nil {
		return fmt.Errorf("catalog: record %s: %w", r.Filename, err)
	}
	return nil
}

// Delete removes a recording row. Deleting an unknown filename is not an error.
func (db *DB) Delete(filename string) error {
	if _, err := db.conn.Exec(`DELETE FROM recordings WHERE filename = ?`, filename); err != nil {
		return fmt.Errorf("catalog: delete %s: %w", filename, err)
	}
	return nil
}

const selectColumns = `filename, artifact_id, checksum, size, mime_type, duration_seconds, created_at, saved_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecording(s scanner) (Recording, error) {
	var r Recording
	err := s.Scan(&r.Filename, &r.ArtifactID, &r.Checksum, &r.Size, &r.MIMEType, &r.DurationSeconds, &r.CreatedAt, &r.SavedAt)
	return r, err
}

// Get returns the recording stored under filename.
func (db *DB) Get(filename string) (*Recording, error) {
	r, err := scanRecording(db.conn.QueryRow(`SELECT `+selectColumns+` FROM recordings WHERE filename = ?`, filename))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog: %s: %w", filename, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get %s: %w", filename, err)
	}
	return &r, nil
}

// List returns recordings newest first together with the total count.
// A limit of zero or less returns every row.
func (db *DB) List(limit, offset int) ([]Recording, int, error) {
	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM recordings`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("catalog: count: %w", err)
	}
	if limit <= 0 {
		limit = -1
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := db.conn.Query(`SELECT `+selectColumns+` FROM recordings
		ORDER BY created_at DESC, filename ASC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()
	out := []Recording{}
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// ByArtifact returns the saved copies of an artifact.
func (db *DB) ByArtifact(artifactID string) ([]Recording, error) {
	rows, err := db.conn.Query(`SELECT `+selectColumns+` FROM recordings WHERE artifact_id = ? ORDER BY filename`, artifactID)
	if err != nil {
		return nil, fmt.Errorf("catalog: by artifact: %w", err)
	}
	defer rows.Close()
	var out []Recording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AllChecksums returns filename -> checksum for every row.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT filename, checksum FROM recordings`)
	if err != nil {
		return nil, fmt.Errorf("catalog: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var name, cs string
		if err := rows.Scan(&name, &cs); err != nil {
			return nil, err
		}
		out[name] = cs
	}
	return out, rows.Err()
}
