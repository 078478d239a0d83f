package queries

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/agentmap/internal/cache"
	"github.com/jward/agentmap/internal/errs"
	"github.com/jward/agentmap/internal/lang"
	"github.com/jward/agentmap/internal/syntax"
)

// Capture is one named node of a match.
type Capture struct {
	Name string
	Node syntax.Node
}

// Match is the set of captures produced by one pattern match.
type Match struct {
	Pattern  int
	Captures []Capture
}

// Get returns the first capture called name.
func (m Match) Get(name string) (syntax.Node, bool) {
	for _, c := range m.Captures {
		if c.Name == name {
			return c.Node, true
		}
	}
	return nil, false
}

// Pack holds the compiled queries for one grammar. A nil query means the
// language ships no patterns of that kind.
type Pack struct {
	Language lang.Language
	Grammar  string
	queries  map[Kind]*sitter.Query
}

// Has reports whether the pack carries patterns of kind k.
func (p *Pack) Has(k Kind) bool {
	return p != nil && p.queries[k] != nil
}

// Run executes the query of kind k over root and returns matches that pass
// their predicates. Structural (non tree-sitter) roots yield no matches.
func (p *Pack) Run(k Kind, root syntax.Node, src []byte) []Match {
	if !p.Has(k) {
		return nil
	}
	sroot := syntax.Unwrap(root)
	if sroot == nil {
		return nil
	}
	q := p.queries[k]
	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(q, sroot)

	var out []Match
	for {
		m, ok := cursor.NextMatch()
		if !ok {
			break
		}
		m = cursor.FilterPredicates(m, src)
		if len(m.Captures) == 0 {
			continue
		}
		match := Match{Pattern: int(m.PatternIndex)}
		for _, c := range m.Captures {
			name := q.CaptureNameForId(c.Index)
			if strings.HasPrefix(name, "_") {
				continue
			}
			match.Captures = append(match.Captures, Capture{Name: name, Node: syntax.Wrap(c.Node)})
		}
		out = append(out, match)
	}
	return out
}

// hasPatterns reports whether src contains anything besides comments and
// whitespace.
func hasPatterns(src []byte) bool {
	sc := bufio.NewScanner(bytes.NewReader(src))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" && !strings.HasPrefix(line, ";") {
			return true
		}
	}
	return false
}

// Compile builds the pack for a grammar from provider sources.
func Compile(p Provider, l lang.Language, grammarKey string) (*Pack, error) {
	pack := &Pack{Language: l, Grammar: grammarKey, queries: make(map[Kind]*sitter.Query)}
	grammar, hasGrammar := lang.Grammar(grammarKey)
	for _, k := range Kinds() {
		src, ok, err := p.Load(l, k)
		if err != nil {
			return nil, errs.New(errs.Query, "", "load "+string(l)+"/"+k.FileName(), err)
		}
		if !ok || !hasPatterns(src) {
			continue
		}
		if !hasGrammar {
			return nil, errs.Newf(errs.Query, "", "%s/%s: language has no grammar to compile against", l, k.FileName())
		}
		q, err := sitter.NewQuery(src, grammar)
		if err != nil {
			return nil, errs.New(errs.Query, "", "compile "+string(l)+"/"+k.FileName(), err)
		}
		pack.queries[k] = q
	}
	return pack, nil
}

// Registry hands out compiled packs, compiling each grammar's pack once and
// keeping recent ones in a bounded LRU.
type Registry struct {
	provider Provider
	packs    *cache.LRU[string, *Pack]
}

// DefaultCacheSize holds every grammar the registry knows about.
const DefaultCacheSize = 16

// NewRegistry creates a registry over provider.
func NewRegistry(provider Provider, cacheSize int) *Registry {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	return &Registry{provider: provider, packs: cache.New[string, *Pack](cacheSize)}
}

// Provider returns the registry's query source.
func (r *Registry) Provider() Provider { return r.provider }

// Pack returns the compiled pack for l as used for path.
func (r *Registry) Pack(l lang.Language, path string) (*Pack, error) {
	key := lang.GrammarKey(l, path)
	return r.packs.GetOrCreate(key, func() (*Pack, error) {
		return Compile(r.provider, l, key)
	})
}

// Preload compiles the packs of langs so malformed queries surface before
// any file is processed.
func (r *Registry) Preload(langs ...lang.Language) error {
	for _, l := range langs {
		paths := []string{"x"}
		if l == lang.TypeScript {
			paths = append(paths, "x.tsx")
		}
		for _, p := range paths {
			if _, err := r.Pack(l, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// Stats reports pack cache activity.
func (r *Registry) Stats() cache.Stats { return r.packs.Stats() }

// Fingerprint hashes every query source the provider serves so cached
// analyses can be invalidated when patterns change.
func Fingerprint(p Provider) (string, error) {
	var keys []string
	srcs := make(map[string][]byte)
	for _, l := range lang.All() {
		for _, k := range Kinds() {
			src, ok, err := p.Load(l, k)
			if err != nil {
				return "", err
			}
			if ok {
				key := string(l) + "/" + k.FileName()
				keys = append(keys, key)
				srcs[key] = src
			}
		}
	}
	sort.Strings(keys)
	h := xxhash.New()
	for _, key := range keys {
		_, _ = h.WriteString(key)
		_, _ = h.Write([]byte{0})
		_, _ = h.Write(srcs[key])
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
