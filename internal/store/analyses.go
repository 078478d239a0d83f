package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jward/agentmap/internal/model"
)

// --- Analysis cache ---

// PutAnalysis caches a under its path and content hash, replacing analyses
// cached for older content of the same path.
func (s *Store) PutAnalysis(a *model.CodeAnalysis) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("put analysis %s: marshal: %w", a.Path, err)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("put analysis: begin: %w", err)
	}
	defer tx.Rollback()

	hash := a.Metadata.ContentHash
	if _, err := tx.Exec("DELETE FROM analyses WHERE path = ? AND hash <> ?", a.Path, hash); err != nil {
		return fmt.Errorf("put analysis %s: prune: %w", a.Path, err)
	}
	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO analyses (path, hash, language, payload, analyzed_at) VALUES (?, ?, ?, ?, ?)",
		a.Path, hash, a.Language.String(), payload, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("put analysis %s: %w", a.Path, err)
	}
	return tx.Commit()
}

// GetAnalysis returns the analysis cached for path at content hash.
func (s *Store) GetAnalysis(path, hash string) (*model.CodeAnalysis, bool, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM analyses WHERE path = ? AND hash = ?", path, hash).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get analysis %s: %w", path, err)
	}
	a := &model.CodeAnalysis{}
	if err := json.Unmarshal(payload, a); err != nil {
		return nil, false, fmt.Errorf("get analysis %s: unmarshal: %w", path, err)
	}
	return a, true, nil
}

// ClearAnalyses drops every cached analysis.
func (s *Store) ClearAnalyses() error {
	if _, err := s.db.Exec("DELETE FROM analyses"); err != nil {
		return fmt.Errorf("clear analyses: %w", err)
	}
	return nil
}

// AnalysisCount returns the number of cached analyses.
func (s *Store) AnalysisCount() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM analyses").Scan(&n); err != nil {
		return 0, fmt.Errorf("count analyses: %w", err)
	}
	return n, nil
}

// --- Metadata ---

// SetMeta stores value under key.
func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}

// Meta returns the value stored under key.
func (s *Store) Meta(key string) (string, bool, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("metadata %s: %w", key, err)
	}
	return v, true, nil
}

// SyncFingerprint records the current query-pack fingerprint. When it
// differs from the stored one every cached analysis is dropped and changed
// is true.
func (s *Store) SyncFingerprint(fingerprint string) (changed bool, err error) {
	prev, ok, err := s.Meta(MetaQueryFingerprint)
	if err != nil {
		return false, err
	}
	if ok && prev == fingerprint {
		return false, nil
	}
	if ok {
		if err := s.ClearAnalyses(); err != nil {
			return false, err
		}
	}
	if err := s.SetMeta(MetaQueryFingerprint, fingerprint); err != nil {
		return false, err
	}
	return ok, nil
}
