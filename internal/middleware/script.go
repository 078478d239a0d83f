package middleware

import (
	"context"
	"fmt"

	"github.com/jward/agentmap/internal/errs"
	"github.com/jward/agentmap/internal/model"
	"github.com/jward/agentmap/internal/script"
)

// Script runs a Risor script against every analysis at after_analyze. A
// script that calls reject fails the file with a Middleware error.
type Script struct {
	Base
	rt     *script.Runtime
	label  string
	source string
}

// NewScript loads path through rt.
func NewScript(rt *script.Runtime, path string) (*Script, error) {
	src, err := rt.LoadScript(path)
	if err != nil {
		return nil, errs.New(errs.Config, path, "load script", err)
	}
	return &Script{rt: rt, label: path, source: src}, nil
}

// NewScriptSource wraps inline source.
func NewScriptSource(rt *script.Runtime, label, source string) *Script {
	return &Script{rt: rt, label: label, source: source}
}

func (m *Script) Name() string { return "script:" + m.label }

func (m *Script) AfterAnalyze(ctx context.Context, c *Context, a *model.CodeAnalysis) error {
	v, err := m.rt.RunAnalysis(ctx, m.source, m.label, a)
	if err != nil {
		return err
	}
	if v.Rejected {
		return fmt.Errorf("rejected by %s: %s", m.label, v.Reason)
	}
	return nil
}
