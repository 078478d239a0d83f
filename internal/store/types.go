package store

import "time"

// File is a manifest row: the hash a path had when it was last analysed.
type File struct {
	ID          int64
	Path        string
	Language    string
	Hash        string
	LastIndexed time.Time
}

// SymbolRow is a persisted symbol of the resolved graph.
type SymbolRow struct {
	ID            string
	Path          string
	Name          string
	Kind          string
	Visibility    string
	QualifiedName string
	Module        string
	StartLine     int
	EndLine       int
	Documentation string
}

// Edge is a persisted relationship of the resolved graph.
type Edge struct {
	Path       string
	From       string
	To         string
	Kind       string
	Line       int
	Confidence float64
	Resolution string
}

// Metadata keys.
const (
	// MetaQueryFingerprint holds the fingerprint of the query packs the
	// cached analyses were produced with.
	MetaQueryFingerprint = "query_fingerprint"
	// MetaSchemaVersion holds the analysis payload version.
	MetaSchemaVersion = "schema_version"
)
