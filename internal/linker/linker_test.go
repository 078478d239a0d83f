package linker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/agentmap/internal/errs"
	"github.com/jward/agentmap/internal/extract"
	"github.com/jward/agentmap/internal/lang"
	"github.com/jward/agentmap/internal/model"
	"github.com/jward/agentmap/internal/queries"
	"github.com/jward/agentmap/internal/syntax"
)

// analyzeAll extracts every path -> source pair in order.
func analyzeAll(t *testing.T, files ...[2]string) []*model.CodeAnalysis {
	t.Helper()
	eng := syntax.NewEngine()
	t.Cleanup(eng.Close)
	x := extract.New(queries.NewRegistry(queries.Embedded(), 0))

	var out []*model.CodeAnalysis
	for _, f := range files {
		l, err := lang.ForPath(f[0])
		require.NoError(t, err)
		pf, err := eng.Parse(context.Background(), f[0], []byte(f[1]), l)
		require.NoError(t, err)
		a, err := x.Analyze(pf)
		pf.Close()
		require.NoError(t, err)
		out = append(out, a)
	}
	return out
}

func calls(a *model.CodeAnalysis) []model.Relationship {
	var out []model.Relationship
	for _, r := range a.Relationships {
		if r.Kind == model.RelCalls {
			out = append(out, r)
		}
	}
	return out
}

func TestLink_PythonCrossFileImport(t *testing.T) {
	t.Parallel()
	analyses := analyzeAll(t,
		[2]string{"models/user.py", "class User:\n    pass\n"},
		[2]string{"main.py", "from models.user import User\n\nu = User()\n"},
	)

	res, err := New().Link(context.Background(), analyses)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.ResolvedCount(), 1)
	c := calls(analyses[1])
	require.Len(t, c, 1)
	assert.Equal(t, model.SymbolID("models/user.py:1:User"), c[0].To)
	assert.Equal(t, model.ResolutionResolved, c[0].Resolution())
	assert.Equal(t, "import_alias", c[0].Properties[model.PropStrategy])
}

func TestLink_FlagPolicy(t *testing.T) {
	t.Parallel()
	analyses := analyzeAll(t, [2]string{"src/main.rs", "fn main() {\n    SomethingNeverDefined();\n}\n"})

	res, err := New(WithPolicy(Flag)).Link(context.Background(), analyses)
	require.NoError(t, err)

	c := calls(analyses[0])
	require.Len(t, c, 1)
	assert.Equal(t, ":0:UNRESOLVED::SomethingNeverDefined", string(c[0].To))
	assert.True(t, c[0].To.IsFlagged())
	assert.Equal(t, 1, res.UnresolvedCount())
	assert.InDelta(t, 0.0, res.SuccessRate(), 1e-9)
}

func TestLink_KeepAndRemovePolicies(t *testing.T) {
	t.Parallel()
	src := [2]string{"src/main.rs", "fn main() {\n    missing_fn();\n}\n"}

	keep := analyzeAll(t, src)
	_, err := New(WithPolicy(Keep)).Link(context.Background(), keep)
	require.NoError(t, err)
	c := calls(keep[0])
	require.Len(t, c, 1)
	assert.Equal(t, model.SymbolID("missing_fn"), c[0].To)
	assert.Equal(t, model.ResolutionUnresolved, c[0].Resolution())

	removed := analyzeAll(t, src)
	res, err := New(WithPolicy(Remove)).Link(context.Background(), removed)
	require.NoError(t, err)
	assert.Empty(t, calls(removed[0]))
	require.Len(t, res.Unresolved, 1)
	assert.Empty(t, res.Unresolved[0].To)
}

func TestLink_Idempotent(t *testing.T) {
	t.Parallel()
	analyses := analyzeAll(t,
		[2]string{"src/main.rs", "use std::fmt;\n\nfn helper() {}\n\nfn main() {\n    helper();\n    nowhere();\n}\n"},
	)
	l := New(WithPolicy(Flag))
	first, err := l.Link(context.Background(), analyses)
	require.NoError(t, err)
	require.Positive(t, first.Total())
	before := append([]model.Relationship(nil), analyses[0].Relationships...)

	second, err := l.Resolve(context.Background(), analyses)
	require.NoError(t, err)
	assert.Zero(t, second.Total())
	assert.Equal(t, before, analyses[0].Relationships)
}

func TestLink_AmbiguousPicksFirstCandidate(t *testing.T) {
	t.Parallel()
	analyses := analyzeAll(t,
		[2]string{"b/util.py", "def helper():\n    pass\n"},
		[2]string{"a/util.py", "def helper():\n    pass\n"},
		[2]string{"main.py", "helper()\n"},
	)

	res, err := New().Link(context.Background(), analyses)
	require.NoError(t, err)

	c := calls(analyses[2])
	require.Len(t, c, 1)
	assert.Equal(t, model.SymbolID("a/util.py:1:helper"), c[0].To)
	assert.Equal(t, "a/util.py:1:helper,b/util.py:1:helper", c[0].Properties[model.PropCandidates])
	assert.LessOrEqual(t, c[0].Confidence, model.AmbiguousConfidence)
	require.Len(t, res.Ambiguous, 1)
	assert.Len(t, res.Ambiguous[0].Candidates, 2)
}

func TestLink_ExternalImports(t *testing.T) {
	t.Parallel()
	analyses := analyzeAll(t, [2]string{"cmd/tool/main.go",
		"package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"hi\")\n}\n"})

	res, err := New().Link(context.Background(), analyses)
	require.NoError(t, err)

	c := calls(analyses[0])
	require.Len(t, c, 1)
	assert.Equal(t, model.SymbolID("fmt::Println"), c[0].To)
	assert.Equal(t, model.ResolutionExternal, c[0].Resolution())
	assert.GreaterOrEqual(t, res.ExternalCount(), 1)
	assert.InDelta(t, 1.0, res.SuccessRate(), 1e-9)
}

func TestLink_RedeclareReplacesFile(t *testing.T) {
	t.Parallel()
	l := New()
	l.Declare(analyzeAll(t, [2]string{"lib.py", "def old():\n    pass\n"}))
	l.Declare(analyzeAll(t, [2]string{"lib.py", "\ndef fresh():\n    pass\n"}))

	assert.Empty(t, l.Table().ByName("old"))
	assert.Equal(t, []model.SymbolID{"lib.py:2:fresh"}, l.Table().ByName("fresh"))
}

func TestLink_Canceled(t *testing.T) {
	t.Parallel()
	analyses := analyzeAll(t, [2]string{"main.py", "print(1)\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Link(ctx, analyses)
	require.ErrorIs(t, err, context.Canceled)
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", Keep, false},
		{"keep", Keep, false},
		{"Remove", Remove, false},
		{" flag ", Flag, false},
		{"drop", Keep, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParsePolicy(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errs.Is(err, errs.Config))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, mustParse(t, got.String()))
		})
	}
}

func mustParse(t *testing.T, s string) Policy {
	t.Helper()
	p, err := ParsePolicy(s)
	require.NoError(t, err)
	return p
}

func TestProjectResolution_SuccessRate(t *testing.T) {
	t.Parallel()
	p := &ProjectResolution{
		Resolved:   make([]Reference, 2),
		External:   make([]Reference, 1),
		Ambiguous:  make([]Reference, 1),
		Unresolved: make([]Reference, 0),
	}
	assert.Equal(t, 4, p.Total())
	assert.InDelta(t, 0.75, p.SuccessRate(), 1e-9)
	assert.InDelta(t, 1.0, (&ProjectResolution{}).SuccessRate(), 1e-9)
}
