package linker

import (
	"fmt"
	"strings"

	"github.com/jward/agentmap/internal/errs"
	"github.com/jward/agentmap/internal/model"
)

// Policy decides the fate of relationships no strategy resolves.
type Policy int

const (
	// Keep leaves the bare reference in place.
	Keep Policy = iota
	// Remove drops the relationship.
	Remove
	// Flag rewrites the target as UNRESOLVED::<name>.
	Flag
)

func (p Policy) String() string {
	switch p {
	case Remove:
		return "remove"
	case Flag:
		return "flag"
	}
	return "keep"
}

// ParsePolicy maps "keep", "remove" or "flag" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep":
		return Keep, nil
	case "remove":
		return Remove, nil
	case "flag":
		return Flag, nil
	}
	return Keep, errs.New(errs.Config, "", "parse unresolved policy", fmt.Errorf("unknown policy %q", s))
}

// Reference records how one relationship target was resolved.
type Reference struct {
	File       string
	From       model.SymbolID
	To         model.SymbolID // empty when the Remove policy dropped the edge
	Name       string         // target as written before resolution
	Kind       model.RelationshipKind
	Strategy   string
	Candidates []model.SymbolID
}

func (r Reference) to(id model.SymbolID) Reference {
	r.To = id
	return r
}

// ProjectResolution summarises a resolution pass.
type ProjectResolution struct {
	Resolved   []Reference
	Ambiguous  []Reference
	Unresolved []Reference
	External   []Reference
}

func (p *ProjectResolution) merge(o ProjectResolution) {
	p.Resolved = append(p.Resolved, o.Resolved...)
	p.Ambiguous = append(p.Ambiguous, o.Ambiguous...)
	p.Unresolved = append(p.Unresolved, o.Unresolved...)
	p.External = append(p.External, o.External...)
}

// ResolvedCount returns the number of uniquely resolved targets.
func (p *ProjectResolution) ResolvedCount() int { return len(p.Resolved) }

// AmbiguousCount returns the number of targets with several candidates.
func (p *ProjectResolution) AmbiguousCount() int { return len(p.Ambiguous) }

// UnresolvedCount returns the number of targets no strategy matched.
func (p *ProjectResolution) UnresolvedCount() int { return len(p.Unresolved) }

// ExternalCount returns the number of targets outside the project.
func (p *ProjectResolution) ExternalCount() int { return len(p.External) }

// Total returns the number of targets the pass attempted.
func (p *ProjectResolution) Total() int {
	return len(p.Resolved) + len(p.Ambiguous) + len(p.Unresolved) + len(p.External)
}

// SuccessRate is (Resolved + External) / Total, and 1 when nothing was
// attempted.
func (p *ProjectResolution) SuccessRate() float64 {
	total := p.Total()
	if total == 0 {
		return 1
	}
	return float64(len(p.Resolved)+len(p.External)) / float64(total)
}
