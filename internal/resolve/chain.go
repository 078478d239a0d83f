package resolve

import (
	"sort"

	"github.com/jward/agentmap/internal/lang"
	"github.com/jward/agentmap/internal/model"
)

// DefaultFuzzyThreshold is the Levenshtein similarity the default chain's
// Fuzzy strategy requires.
const DefaultFuzzyThreshold float32 = 0.85

// Chain runs strategies in ascending priority order.
type Chain struct {
	strategies []Strategy
}

// NewChain returns a chain over strategies sorted by priority. Strategies
// sharing a priority keep the order given.
func NewChain(strategies ...Strategy) *Chain {
	s := append([]Strategy(nil), strategies...)
	sort.SliceStable(s, func(i, j int) bool { return s[i].Priority() < s[j].Priority() })
	return &Chain{strategies: s}
}

// DefaultChain returns every built-in strategy at its canonical priority.
func DefaultChain(fuzzyThreshold float32) *Chain {
	return NewChain(
		LocalScope{},
		RelativeImport{},
		DefaultExport{},
		ImportAlias{},
		GoPackage{},
		JavaFqn{},
		ReExport{},
		QualifiedPath{},
		SiblingFile{},
		Fuzzy{Threshold: fuzzyThreshold},
	)
}

// Strategies returns the chain's strategies in the order they run.
func (c *Chain) Strategies() []Strategy {
	return append([]Strategy(nil), c.strategies...)
}

// Resolve returns the first Resolved or Ambiguous outcome. When no strategy
// finds a project symbol, the first External outcome seen wins; otherwise
// the name is Unresolved.
func (c *Chain) Resolve(ctx *Context, r Request) Outcome {
	var ext *Outcome
	for _, s := range c.strategies {
		out := s.Resolve(ctx, r)
		out.Strategy = s.Name()
		switch out.Kind {
		case Resolved, Ambiguous:
			return out
		case External:
			if ext == nil {
				ext = &out
			}
		}
	}
	if ext != nil {
		return *ext
	}
	return Outcome{}
}

// ResolveImport resolves the target of an import statement: the symbol name
// imports from source, following re-exports. A source outside the project,
// or a wildcard, yields External.
func ResolveImport(ctx *Context, source, name string) Outcome {
	out := Outcome{Strategy: "import"}
	if name != "*" && name != "" {
		var ids []model.SymbolID
		if name == "default" && (ctx.Language == lang.TypeScript || ctx.Language == lang.JavaScript) {
			ids = defaultExports(ctx, source, "")
		}
		if len(ids) == 0 {
			for _, mod := range modulesFor(ctx.Table, ctx.Language, ctx.File, ctx.Module, source) {
				ids = append(ids, follow(ctx.Table, mod, name, "", 0)...)
			}
		}
		if res := fromIDs(ids); res.Kind != Unresolved {
			res.Strategy = out.Strategy
			return res
		}
	}
	ext := external(source, name)
	ext.Strategy = out.Strategy
	return ext
}
