package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jward/agentmap/internal/model"
)

// --- Resolved graph ---

// SaveGraph replaces the symbols and relationships recorded for every file
// in analyses, in one transaction. Files are added to the manifest when
// missing.
func (s *Store) SaveGraph(analyses []*model.CodeAnalysis) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save graph: begin: %w", err)
	}
	defer tx.Rollback()

	symStmt, err := tx.Prepare(`INSERT OR REPLACE INTO symbols
		(id, file_id, name, kind, visibility, qualified_name, module, start_line, end_line, documentation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("save graph: prepare symbols: %w", err)
	}
	defer symStmt.Close()
	relStmt, err := tx.Prepare(`INSERT INTO relationships
		(file_id, from_id, to_id, kind, line, confidence, resolution)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("save graph: prepare relationships: %w", err)
	}
	defer relStmt.Close()

	now := time.Now().UTC()
	for _, a := range analyses {
		if a == nil {
			continue
		}
		fileID, err := ensureFileTx(tx, a, now)
		if err != nil {
			return err
		}
		if err := deleteGraphTx(tx, a.Path); err != nil {
			return err
		}
		for _, sym := range a.Symbols {
			if _, err := symStmt.Exec(
				string(sym.ID), fileID, sym.Name, string(sym.Kind), string(sym.Visibility),
				sym.QualifiedName, sym.Module, sym.Location.StartLine, sym.Location.EndLine, sym.Documentation,
			); err != nil {
				return fmt.Errorf("save graph: symbol %s: %w", sym.ID, err)
			}
		}
		for _, rel := range a.Relationships {
			if _, err := relStmt.Exec(
				fileID, string(rel.From), string(rel.To), string(rel.Kind),
				rel.Location.StartLine, rel.Confidence, rel.Resolution(),
			); err != nil {
				return fmt.Errorf("save graph: relationship %s -> %s: %w", rel.From, rel.To, err)
			}
		}
	}
	return tx.Commit()
}

// ensureFileTx returns the manifest row ID of a's file, inserting it when
// missing. An existing row keeps its hash.
func ensureFileTx(tx *sql.Tx, a *model.CodeAnalysis, at time.Time) (int64, error) {
	var id int64
	err := tx.QueryRow("SELECT id FROM files WHERE path = ?", a.Path).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("lookup file %s: %w", a.Path, err)
	}
	res, err := tx.Exec(
		"INSERT INTO files (path, language, hash, last_indexed) VALUES (?, ?, ?, ?)",
		a.Path, a.Language.String(), a.Metadata.ContentHash, at,
	)
	if err != nil {
		return 0, fmt.Errorf("insert file %s: %w", a.Path, err)
	}
	return res.LastInsertId()
}

const symbolColumns = `s.id, f.path, s.name, s.kind, COALESCE(s.visibility, ''), COALESCE(s.qualified_name, ''),
	COALESCE(s.module, ''), COALESCE(s.start_line, 0), COALESCE(s.end_line, 0), COALESCE(s.documentation, '')`

func scanSymbolRow(sc scanner) (*SymbolRow, error) {
	r := &SymbolRow{}
	err := sc.Scan(&r.ID, &r.Path, &r.Name, &r.Kind, &r.Visibility, &r.QualifiedName,
		&r.Module, &r.StartLine, &r.EndLine, &r.Documentation)
	return r, err
}

func (s *Store) querySymbols(query string, args ...any) ([]*SymbolRow, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()
	var out []*SymbolRow
	for rows.Next() {
		r, err := scanSymbolRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Symbol returns the persisted symbol with the given ID, or nil.
func (s *Store) Symbol(id string) (*SymbolRow, error) {
	r, err := scanSymbolRow(s.db.QueryRow(
		"SELECT "+symbolColumns+" FROM symbols s JOIN files f ON f.id = s.file_id WHERE s.id = ?", id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("symbol %s: %w", id, err)
	}
	return r, nil
}

// SymbolsByName returns persisted symbols with the short name, ordered by ID.
func (s *Store) SymbolsByName(name string) ([]*SymbolRow, error) {
	return s.querySymbols("SELECT "+symbolColumns+" FROM symbols s JOIN files f ON f.id = s.file_id WHERE s.name = ? ORDER BY s.id", name)
}

// SymbolsByFile returns the persisted symbols of path ordered by line.
func (s *Store) SymbolsByFile(path string) ([]*SymbolRow, error) {
	return s.querySymbols("SELECT "+symbolColumns+" FROM symbols s JOIN files f ON f.id = s.file_id WHERE f.path = ? ORDER BY s.start_line, s.id", path)
}

func (s *Store) queryEdges(query string, args ...any) ([]*Edge, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	defer rows.Close()
	var out []*Edge
	for rows.Next() {
		e := &Edge{}
		if err := rows.Scan(&e.Path, &e.From, &e.To, &e.Kind, &e.Line, &e.Confidence, &e.Resolution); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

const edgeSelect = `SELECT f.path, r.from_id, r.to_id, r.kind, COALESCE(r.line, 0), COALESCE(r.confidence, 1.0), COALESCE(r.resolution, '')
	FROM relationships r JOIN files f ON f.id = r.file_id`

// EdgesFrom returns relationships leaving id, optionally restricted to the
// given kinds.
func (s *Store) EdgesFrom(id string, kinds ...model.RelationshipKind) ([]*Edge, error) {
	q, args := edgeFilter(edgeSelect+" WHERE r.from_id = ?", id, kinds)
	return s.queryEdges(q+" ORDER BY f.path, r.line, r.id", args...)
}

// EdgesTo returns relationships arriving at id, optionally restricted to the
// given kinds.
func (s *Store) EdgesTo(id string, kinds ...model.RelationshipKind) ([]*Edge, error) {
	q, args := edgeFilter(edgeSelect+" WHERE r.to_id = ?", id, kinds)
	return s.queryEdges(q+" ORDER BY f.path, r.line, r.id", args...)
}

func edgeFilter(q, id string, kinds []model.RelationshipKind) (string, []any) {
	args := []any{id}
	if len(kinds) == 0 {
		return q, args
	}
	ks := make([]string, len(kinds))
	for i, k := range kinds {
		ks[i] = string(k)
	}
	return q + " AND r.kind IN (" + placeholderList(len(ks)) + ")", append(args, stringsToArgs(ks)...)
}

// FileDependencies returns the files declaring symbols that path's
// relationships resolve to, excluding path itself.
func (s *Store) FileDependencies(path string) ([]string, error) {
	return s.queryPaths(`SELECT DISTINCT tf.path
		FROM relationships r
		JOIN files f ON f.id = r.file_id
		JOIN symbols t ON t.id = r.to_id
		JOIN files tf ON tf.id = t.file_id
		WHERE f.path = ? AND tf.path <> f.path
		ORDER BY tf.path`, path)
}

// FileDependents returns the files whose relationships resolve to symbols
// declared in path.
func (s *Store) FileDependents(path string) ([]string, error) {
	return s.queryPaths(`SELECT DISTINCT f.path
		FROM relationships r
		JOIN files f ON f.id = r.file_id
		JOIN symbols t ON t.id = r.to_id
		JOIN files tf ON tf.id = t.file_id
		WHERE tf.path = ? AND f.path <> tf.path
		ORDER BY f.path`, path)
}

func (s *Store) queryPaths(query string, args ...any) ([]string, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query paths: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
