package main

import (
	"github.com/jward/agentmap"
)

// CLIResult is the top-level envelope for every command's output.
type CLIResult struct {
	Command string `json:"command" yaml:"command"`
	Results any    `json:"results" yaml:"results"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// CLISymbol is a serializable symbol.
type CLISymbol struct {
	ID            string            `json:"id" yaml:"id"`
	Name          string            `json:"name" yaml:"name"`
	Kind          string            `json:"kind" yaml:"kind"`
	Visibility    string            `json:"visibility" yaml:"visibility"`
	QualifiedName string            `json:"qualified_name,omitempty" yaml:"qualified_name,omitempty"`
	Module        string            `json:"module,omitempty" yaml:"module,omitempty"`
	File          string            `json:"file" yaml:"file"`
	StartLine     int               `json:"start_line" yaml:"start_line"`
	EndLine       int               `json:"end_line" yaml:"end_line"`
	Documentation string            `json:"documentation,omitempty" yaml:"documentation,omitempty"`
	Properties    map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// CLIEdge is a serializable relationship.
type CLIEdge struct {
	From       string  `json:"from" yaml:"from"`
	To         string  `json:"to" yaml:"to"`
	Kind       string  `json:"kind" yaml:"kind"`
	File       string  `json:"file,omitempty" yaml:"file,omitempty"`
	Line       int     `json:"line" yaml:"line"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Resolution string  `json:"resolution,omitempty" yaml:"resolution,omitempty"`
}

// CLIImport is a serializable import statement.
type CLIImport struct {
	Source string   `json:"source" yaml:"source"`
	Alias  string   `json:"alias,omitempty" yaml:"alias,omitempty"`
	Names  []string `json:"names,omitempty" yaml:"names,omitempty"`
	Line   int      `json:"line" yaml:"line"`
}

// CLIAnalysis is a serializable per-file analysis.
type CLIAnalysis struct {
	Path          string      `json:"path" yaml:"path"`
	Language      string      `json:"language" yaml:"language"`
	ContentHash   string      `json:"content_hash" yaml:"content_hash"`
	LineCount     int         `json:"line_count" yaml:"line_count"`
	Symbols       []CLISymbol `json:"symbols" yaml:"symbols"`
	Relationships []CLIEdge   `json:"relationships" yaml:"relationships"`
	Imports       []CLIImport `json:"imports,omitempty" yaml:"imports,omitempty"`
}

// CLISummary reports one index run.
type CLISummary struct {
	RunID       string  `json:"run_id" yaml:"run_id"`
	TotalFiles  int     `json:"total_files" yaml:"total_files"`
	Analyzed    int     `json:"analyzed" yaml:"analyzed"`
	Skipped     int     `json:"skipped" yaml:"skipped"`
	Failed      int     `json:"failed" yaml:"failed"`
	ElapsedMs   int64   `json:"elapsed_ms" yaml:"elapsed_ms"`
	Resolved    int     `json:"resolved" yaml:"resolved"`
	Ambiguous   int     `json:"ambiguous" yaml:"ambiguous"`
	External    int     `json:"external" yaml:"external"`
	Unresolved  int     `json:"unresolved" yaml:"unresolved"`
	SuccessRate float64 `json:"success_rate" yaml:"success_rate"`
}

func toCLIAnalysis(a *agentmap.CodeAnalysis) CLIAnalysis {
	out := CLIAnalysis{
		Path:          a.Path,
		Language:      a.Language.String(),
		ContentHash:   a.Metadata.ContentHash,
		LineCount:     a.Metadata.LineCount,
		Symbols:       make([]CLISymbol, 0, len(a.Symbols)),
		Relationships: make([]CLIEdge, 0, len(a.Relationships)),
	}
	for _, s := range a.Symbols {
		out.Symbols = append(out.Symbols, CLISymbol{
			ID:            string(s.ID),
			Name:          s.Name,
			Kind:          string(s.Kind),
			Visibility:    string(s.Visibility),
			QualifiedName: s.QualifiedName,
			Module:        s.Module,
			File:          a.Path,
			StartLine:     s.Location.StartLine,
			EndLine:       s.Location.EndLine,
			Documentation: s.Documentation,
			Properties:    s.Properties,
		})
	}
	for _, r := range a.Relationships {
		out.Relationships = append(out.Relationships, CLIEdge{
			From:       string(r.From),
			To:         string(r.To),
			Kind:       string(r.Kind),
			Line:       r.Location.StartLine,
			Confidence: r.Confidence,
			Resolution: r.Resolution(),
		})
	}
	for _, imp := range a.Imports {
		ci := CLIImport{Source: imp.Source, Alias: imp.ModuleAlias, Line: imp.Location.StartLine}
		for _, n := range imp.Names {
			ci.Names = append(ci.Names, n.Local())
		}
		out.Imports = append(out.Imports, ci)
	}
	return out
}

func toCLISymbols(rows []*agentmap.StoredSymbol) []CLISymbol {
	out := make([]CLISymbol, 0, len(rows))
	for _, s := range rows {
		out = append(out, CLISymbol{
			ID:            s.ID,
			Name:          s.Name,
			Kind:          s.Kind,
			Visibility:    s.Visibility,
			QualifiedName: s.QualifiedName,
			Module:        s.Module,
			File:          s.Path,
			StartLine:     s.StartLine,
			EndLine:       s.EndLine,
			Documentation: s.Documentation,
		})
	}
	return out
}

func toCLIEdges(edges []*agentmap.Edge) []CLIEdge {
	out := make([]CLIEdge, 0, len(edges))
	for _, e := range edges {
		out = append(out, CLIEdge{
			From:       e.From,
			To:         e.To,
			Kind:       e.Kind,
			File:       e.Path,
			Line:       e.Line,
			Confidence: e.Confidence,
			Resolution: e.Resolution,
		})
	}
	return out
}

func toCLISummary(scan *agentmap.ScanResult, res *agentmap.ProjectResolution) CLISummary {
	return CLISummary{
		RunID:       scan.RunID,
		TotalFiles:  scan.TotalFiles,
		Analyzed:    len(scan.Analyses),
		Skipped:     scan.Skipped,
		Failed:      len(scan.Errors),
		ElapsedMs:   scan.ElapsedMs,
		Resolved:    res.ResolvedCount(),
		Ambiguous:   res.AmbiguousCount(),
		External:    res.ExternalCount(),
		Unresolved:  res.UnresolvedCount(),
		SuccessRate: res.SuccessRate(),
	}
}
