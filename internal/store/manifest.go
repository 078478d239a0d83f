package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jward/agentmap/internal/hasher"
	"github.com/jward/agentmap/internal/lang"
)

// --- Manifest operations ---

// SaveManifest replaces the stored manifest with m. Paths missing from m are
// removed together with their cached analyses and graph rows.
func (s *Store) SaveManifest(m hasher.Manifest) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save manifest: begin: %w", err)
	}
	defer tx.Rollback()

	existing, err := manifestPathsTx(tx)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, path := range m.Paths() {
		if err := upsertFileTx(tx, path, m[path], now); err != nil {
			return err
		}
	}
	for _, path := range existing {
		if _, ok := m[path]; ok {
			continue
		}
		if err := deleteGraphTx(tx, path); err != nil {
			return err
		}
		for _, q := range []string{
			"DELETE FROM analyses WHERE path = ?",
			"DELETE FROM files WHERE path = ?",
		} {
			if _, err := tx.Exec(q, path); err != nil {
				return fmt.Errorf("save manifest: prune %s: %w", path, err)
			}
		}
	}
	return tx.Commit()
}

func manifestPathsTx(tx *sql.Tx) ([]string, error) {
	rows, err := tx.Query("SELECT path FROM files")
	if err != nil {
		return nil, fmt.Errorf("query manifest paths: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan manifest path: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// upsertFileTx records path with its hash.
func upsertFileTx(tx *sql.Tx, path, hash string, at time.Time) error {
	language := ""
	if l, err := lang.ForPath(path); err == nil {
		language = l.String()
	}
	_, err := tx.Exec(`INSERT INTO files (path, language, hash, last_indexed) VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET language = excluded.language, hash = excluded.hash, last_indexed = excluded.last_indexed`,
		path, language, hash, at,
	)
	if err != nil {
		return fmt.Errorf("upsert file %s: %w", path, err)
	}
	return nil
}

// LoadManifest returns the stored path -> hash mapping.
func (s *Store) LoadManifest() (hasher.Manifest, error) {
	rows, err := s.db.Query("SELECT path, hash FROM files")
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	defer rows.Close()
	m := make(hasher.Manifest)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, fmt.Errorf("scan manifest row: %w", err)
		}
		m[path] = hash
	}
	return m, rows.Err()
}

func scanFile(sc scanner) (*File, error) {
	f := &File{}
	var indexed sql.NullTime
	if err := sc.Scan(&f.ID, &f.Path, &f.Language, &f.Hash, &indexed); err != nil {
		return nil, err
	}
	f.LastIndexed = indexed.Time
	return f, nil
}

// FileByPath returns the manifest row for path, or nil when it is unknown.
func (s *Store) FileByPath(path string) (*File, error) {
	f, err := scanFile(s.db.QueryRow(
		"SELECT id, path, language, hash, last_indexed FROM files WHERE path = ?", path,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

// Files returns every manifest row ordered by path.
func (s *Store) Files() ([]*File, error) {
	rows, err := s.db.Query("SELECT id, path, language, hash, last_indexed FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
