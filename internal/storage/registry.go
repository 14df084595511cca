package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/MeKo-Tech/tilepyramid/internal/pyramid"
)

// ErrDuplicateUUID is returned when a descriptor with the same uuid
// already exists. Under server-generated uuids this indicates a bug.
var ErrDuplicateUUID = errors.New("duplicate pyramid uuid")

// Registry owns the pyramid descriptor documents in a SQLite database.
type Registry struct {
	db *sql.DB
}

// OpenRegistry opens (and if needed initializes) the descriptor database
// at the given path.
func OpenRegistry(path string) (*Registry, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS pyramids (
			uuid TEXT PRIMARY KEY,
			mime_type TEXT NOT NULL,
			original_filename TEXT NOT NULL DEFAULT '',
			levels TEXT NOT NULL,
			tiles TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Registry{db: db}, nil
}

// Close closes the underlying database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Create inserts a new descriptor.
func (r *Registry) Create(ctx context.Context, d *pyramid.Descriptor) error {
	levels, err := json.Marshal(d.Levels)
	if err != nil {
		return fmt.Errorf("failed to marshal levels: %w", err)
	}
	tiles, err := json.Marshal(d.Tiles)
	if err != nil {
		return fmt.Errorf("failed to marshal tiles: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO pyramids (uuid, mime_type, original_filename, levels, tiles, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.UUID, d.MIMEType, d.OriginalFilename, string(levels), string(tiles),
		d.CreatedAt.UnixNano())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return fmt.Errorf("pyramid %s: %w", d.UUID, ErrDuplicateUUID)
		}
		return fmt.Errorf("failed to insert pyramid %s: %w", d.UUID, err)
	}
	return nil
}

// Find returns the descriptor with the given uuid.
func (r *Registry) Find(ctx context.Context, uuid string) (*pyramid.Descriptor, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT uuid, mime_type, original_filename, levels, tiles, created_at
		 FROM pyramids WHERE uuid = ?`, uuid)
	d, err := scanDescriptor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pyramid %s: %w", uuid, ErrNotFound)
	}
	return d, err
}

// List returns all descriptors, oldest first.
func (r *Registry) List(ctx context.Context) ([]pyramid.Descriptor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT uuid, mime_type, original_filename, levels, tiles, created_at
		 FROM pyramids ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pyramids: %w", err)
	}
	defer rows.Close()

	descriptors := []pyramid.Descriptor{}
	for rows.Next() {
		d, err := scanDescriptor(rows)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pyramids: %w", err)
	}
	return descriptors, nil
}

// SetTiles replaces the tiles field of the descriptor in a single
// statement. Concurrent callers are serialized by the database; readers
// never observe a torn value.
func (r *Registry) SetTiles(ctx context.Context, uuid string, ts pyramid.TileSet) error {
	tiles, err := json.Marshal(ts)
	if err != nil {
		return fmt.Errorf("failed to marshal tiles: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE pyramids SET tiles = ? WHERE uuid = ?`, string(tiles), uuid)
	if err != nil {
		return fmt.Errorf("failed to update pyramid %s: %w", uuid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update pyramid %s: %w", uuid, err)
	}
	if n == 0 {
		return fmt.Errorf("pyramid %s: %w", uuid, ErrNotFound)
	}
	return nil
}

// ClaimTiling transitions the tiles field from pending to processing and
// reports whether this caller won the transition. A false return with nil
// error means another worker already owns the job (or the pyramid is gone).
func (r *Registry) ClaimTiling(ctx context.Context, uuid string) (bool, error) {
	pending, err := json.Marshal(pyramid.Pending())
	if err != nil {
		return false, err
	}
	processing, err := json.Marshal(pyramid.Processing())
	if err != nil {
		return false, err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE pyramids SET tiles = ? WHERE uuid = ? AND tiles = ?`,
		string(processing), uuid, string(pending))
	if err != nil {
		return false, fmt.Errorf("failed to claim pyramid %s: %w", uuid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim pyramid %s: %w", uuid, err)
	}
	return n == 1, nil
}

// Delete removes the descriptor with the given uuid.
func (r *Registry) Delete(ctx context.Context, uuid string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pyramids WHERE uuid = ?`, uuid)
	if err != nil {
		return fmt.Errorf("failed to delete pyramid %s: %w", uuid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete pyramid %s: %w", uuid, err)
	}
	if n == 0 {
		return fmt.Errorf("pyramid %s: %w", uuid, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDescriptor(row rowScanner) (*pyramid.Descriptor, error) {
	var (
		d         pyramid.Descriptor
		levels    string
		tiles     string
		createdAt int64
	)
	if err := row.Scan(&d.UUID, &d.MIMEType, &d.OriginalFilename, &levels, &tiles, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan pyramid: %w", err)
	}
	if err := json.Unmarshal([]byte(levels), &d.Levels); err != nil {
		return nil, fmt.Errorf("failed to unmarshal levels for %s: %w", d.UUID, err)
	}
	if err := json.Unmarshal([]byte(tiles), &d.Tiles); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tiles for %s: %w", d.UUID, err)
	}
	d.CreatedAt = time.Unix(0, createdAt).UTC()
	return &d, nil
}
