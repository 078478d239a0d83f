package middleware

import (
	"context"
	"log/slog"

	"github.com/jward/agentmap/internal/model"
)

// Logging records each file pass. Successful files are logged at the
// configured level, failures at warn.
type Logging struct {
	Base
	logger *slog.Logger
	level  slog.Level
}

// NewLogging creates a logging middleware. A nil logger discards output.
func NewLogging(logger *slog.Logger, level slog.Level) *Logging {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Logging{logger: logger, level: level}
}

func (l *Logging) Name() string { return "logging" }

func (l *Logging) BeforeParse(ctx context.Context, c *Context) error {
	l.logger.DebugContext(ctx, "file pass started",
		"path", c.Path,
		"language", c.Language.String(),
		"bytes", len(c.Content),
	)
	return nil
}

func (l *Logging) AfterAnalyze(ctx context.Context, c *Context, a *model.CodeAnalysis) error {
	l.logger.Log(ctx, l.level, "file analyzed",
		"path", c.Path,
		"language", c.Language.String(),
		"symbols", len(a.Symbols),
		"relationships", len(a.Relationships),
		"imports", len(a.Imports),
		"cached", c.Cached() != nil,
		"elapsed_ms", c.Elapsed().Milliseconds(),
	)
	return nil
}

func (l *Logging) OnFailure(ctx context.Context, c *Context, err error) {
	l.logger.WarnContext(ctx, "file pass failed",
		"path", c.Path,
		"elapsed_ms", c.Elapsed().Milliseconds(),
		"error", err,
	)
}
