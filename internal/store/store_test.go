package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/agentmap/internal/hasher"
	"github.com/jward/agentmap/internal/lang"
	"github.com/jward/agentmap/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func testAnalysis(path, hash string) *model.CodeAnalysis {
	main := model.NewSymbolID(path, 1, "main")
	helper := model.NewSymbolID(path, 5, "helper")
	call := model.Relationship{From: main, To: helper, Kind: model.RelCalls, Confidence: 1,
		Location: model.SourceLocation{File: path, StartLine: 2}}
	call.SetProperty(model.PropResolution, model.ResolutionResolved)
	return &model.CodeAnalysis{
		Path:     path,
		Language: lang.Rust,
		Symbols: []model.Symbol{
			{ID: main, Name: "main", Kind: model.KindFunction, QualifiedName: "main",
				Location: model.SourceLocation{File: path, StartLine: 1, EndLine: 3}},
			{ID: helper, Name: "helper", Kind: model.KindFunction, QualifiedName: "helper",
				Location: model.SourceLocation{File: path, StartLine: 5, EndLine: 5}},
		},
		Relationships: []model.Relationship{call},
		Metadata:      model.Metadata{LineCount: 5, ContentHash: hash, Properties: map[string]string{"module": ""}},
	}
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"files", "analyses", "metadata", "symbols", "relationships"} {
		var name string
		err := s.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

// =============================================================================
// Manifest
// =============================================================================

func TestManifest_RoundTripAndPrune(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	first := hasher.Manifest{"src/a.rs": "0123456789abcdef", "src/b.py": "fedcba9876543210"}
	require.NoError(t, s.SaveManifest(first))
	got, err := s.LoadManifest()
	require.NoError(t, err)
	assert.Equal(t, first, got)

	f, err := s.FileByPath("src/b.py")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "python", f.Language)

	second := hasher.Manifest{"src/a.rs": "aaaaaaaaaaaaaaaa"}
	require.NoError(t, s.SaveManifest(second))
	got, err = s.LoadManifest()
	require.NoError(t, err)
	assert.Equal(t, second, got)

	f, err = s.FileByPath("src/b.py")
	require.NoError(t, err)
	assert.Nil(t, f)
}

// =============================================================================
// Analysis cache & metadata
// =============================================================================

func TestAnalysis_PutGet(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	a := testAnalysis("src/main.rs", "1111111111111111")
	require.NoError(t, s.PutAnalysis(a))

	got, ok, err := s.GetAnalysis("src/main.rs", "1111111111111111")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, a.Symbols, got.Symbols)
	assert.Equal(t, a.Relationships, got.Relationships)
	assert.Equal(t, lang.Rust, got.Language)

	_, ok, err = s.GetAnalysis("src/main.rs", "2222222222222222")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAnalysis_NewHashReplacesOld(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.PutAnalysis(testAnalysis("src/main.rs", "1111111111111111")))
	require.NoError(t, s.PutAnalysis(testAnalysis("src/main.rs", "2222222222222222")))

	n, err := s.AnalysisCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, ok, err := s.GetAnalysis("src/main.rs", "1111111111111111")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSyncFingerprint(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	changed, err := s.SyncFingerprint("fp-1")
	require.NoError(t, err)
	assert.False(t, changed, "first fingerprint is not a change")

	require.NoError(t, s.PutAnalysis(testAnalysis("src/main.rs", "1111111111111111")))
	changed, err = s.SyncFingerprint("fp-1")
	require.NoError(t, err)
	assert.False(t, changed)
	n, err := s.AnalysisCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	changed, err = s.SyncFingerprint("fp-2")
	require.NoError(t, err)
	assert.True(t, changed)
	n, err = s.AnalysisCount()
	require.NoError(t, err)
	assert.Zero(t, n)

	v, ok, err := s.Meta(MetaQueryFingerprint)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "fp-2", v)
}

// =============================================================================
// Graph
// =============================================================================

func TestGraph_SaveAndQuery(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	a := testAnalysis("src/main.rs", "1111111111111111")
	require.NoError(t, s.SaveGraph([]*model.CodeAnalysis{a}))

	syms, err := s.SymbolsByName("helper")
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "src/main.rs:5:helper", syms[0].ID)
	assert.Equal(t, "src/main.rs", syms[0].Path)

	callers, err := s.EdgesTo("src/main.rs:5:helper", model.RelCalls)
	require.NoError(t, err)
	require.Len(t, callers, 1)
	assert.Equal(t, "src/main.rs:1:main", callers[0].From)
	assert.Equal(t, model.ResolutionResolved, callers[0].Resolution)
	assert.Equal(t, 2, callers[0].Line)

	none, err := s.EdgesFrom("src/main.rs:1:main", model.RelImports)
	require.NoError(t, err)
	assert.Empty(t, none)

	// Saving again replaces rather than duplicates.
	require.NoError(t, s.SaveGraph([]*model.CodeAnalysis{a}))
	all, err := s.EdgesFrom("src/main.rs:1:main")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	byFile, err := s.SymbolsByFile("src/main.rs")
	require.NoError(t, err)
	require.Len(t, byFile, 2)
	assert.Equal(t, "main", byFile[0].Name)
}

func TestGraph_FileDependencies(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	lib := testAnalysis("src/lib.rs", "1111111111111111")
	app := testAnalysis("src/app.rs", "2222222222222222")
	app.Relationships[0].To = model.NewSymbolID("src/lib.rs", 5, "helper")
	require.NoError(t, s.SaveGraph([]*model.CodeAnalysis{lib, app}))

	deps, err := s.FileDependencies("src/app.rs")
	require.NoError(t, err)
	assert.Equal(t, []string{"src/lib.rs"}, deps)

	dependents, err := s.FileDependents("src/lib.rs")
	require.NoError(t, err)
	assert.Equal(t, []string{"src/app.rs"}, dependents)

	require.NoError(t, s.DeleteFileData("src/app.rs"))
	dependents, err = s.FileDependents("src/lib.rs")
	require.NoError(t, err)
	assert.Empty(t, dependents)
}
