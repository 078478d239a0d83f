package script

import (
	"context"
	"fmt"

	"github.com/risor-io/risor/object"

	"github.com/jward/agentmap/internal/model"
)

// Verdict is what a script decided about one analysis.
type Verdict struct {
	Rejected bool
	Reason   string
}

// analysisState backs the host functions of one evaluation. Scripts cannot
// hold Go pointers into the analysis, so edits go through builtins that
// mutate it Go-side.
type analysisState struct {
	analysis *model.CodeAnalysis
	verdict  Verdict
}

// RunAnalysis evaluates source against a. The script sees path, language,
// symbols and relationships as plain values, may annotate the analysis with
// set_property and may drop it with reject.
func (r *Runtime) RunAnalysis(ctx context.Context, source, label string, a *model.CodeAnalysis) (Verdict, error) {
	st := &analysisState{analysis: a}
	globals := map[string]any{
		"path":          object.NewString(a.Path),
		"language":      object.NewString(a.Language.String()),
		"symbols":       symbolsToList(a.Symbols),
		"relationships": relationshipsToList(a.Relationships),
		"set_property":  makeSetPropertyFn(st),
		"reject":        makeRejectFn(st),
	}
	if err := r.eval(ctx, source, label, globals); err != nil {
		return Verdict{}, err
	}
	return st.verdict, nil
}

// makeSetPropertyFn creates "set_property".
//
// set_property(key, value) annotates the file metadata.
// set_property(symbol_id, key, value) annotates one symbol.
func makeSetPropertyFn(st *analysisState) *object.Builtin {
	return object.NewBuiltin("set_property", func(ctx context.Context, args ...object.Object) object.Object {
		switch len(args) {
		case 2:
			key, err := toString(args[0])
			if err != nil {
				return object.Errorf("set_property: key: %v", err)
			}
			md := &st.analysis.Metadata
			if md.Properties == nil {
				md.Properties = make(map[string]string)
			}
			md.Properties[key] = valueString(args[1])
			return object.Nil
		case 3:
			id, err := toString(args[0])
			if err != nil {
				return object.Errorf("set_property: symbol id: %v", err)
			}
			key, err := toString(args[1])
			if err != nil {
				return object.Errorf("set_property: key: %v", err)
			}
			for i := range st.analysis.Symbols {
				sym := &st.analysis.Symbols[i]
				if string(sym.ID) != id {
					continue
				}
				if sym.Properties == nil {
					sym.Properties = make(map[string]string)
				}
				sym.Properties[key] = valueString(args[2])
				return object.Nil
			}
			return object.Errorf("set_property: no symbol %q in %s", id, st.analysis.Path)
		default:
			return object.Errorf("set_property: takes 2 or 3 arguments (%d given)", len(args))
		}
	})
}

// makeRejectFn creates "reject".
//
// reject(reason) drops the file from the scan result.
func makeRejectFn(st *analysisState) *object.Builtin {
	return object.NewBuiltin("reject", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) > 1 {
			return object.Errorf("reject: takes at most 1 argument (%d given)", len(args))
		}
		st.verdict.Rejected = true
		if len(args) == 1 {
			st.verdict.Reason = valueString(args[0])
		}
		return object.Nil
	})
}

func symbolsToList(syms []model.Symbol) object.Object {
	results := make([]object.Object, 0, len(syms))
	for _, s := range syms {
		results = append(results, object.NewMap(map[string]object.Object{
			"id":             object.NewString(string(s.ID)),
			"name":           object.NewString(s.Name),
			"kind":           object.NewString(string(s.Kind)),
			"visibility":     object.NewString(string(s.Visibility)),
			"qualified_name": object.NewString(s.QualifiedName),
			"module":         object.NewString(s.Module),
			"start_line":     object.NewInt(int64(s.Location.StartLine)),
			"end_line":       object.NewInt(int64(s.Location.EndLine)),
			"documentation":  object.NewString(s.Documentation),
		}))
	}
	return object.NewList(results)
}

func relationshipsToList(rels []model.Relationship) object.Object {
	results := make([]object.Object, 0, len(rels))
	for _, r := range rels {
		results = append(results, object.NewMap(map[string]object.Object{
			"from":       object.NewString(string(r.From)),
			"to":         object.NewString(string(r.To)),
			"kind":       object.NewString(string(r.Kind)),
			"line":       object.NewInt(int64(r.Location.StartLine)),
			"confidence": object.NewFloat(r.Confidence),
			"resolution": object.NewString(r.Resolution()),
		}))
	}
	return object.NewList(results)
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}

func valueString(obj object.Object) string {
	if s, ok := obj.(*object.String); ok {
		return s.Value()
	}
	return obj.Inspect()
}
