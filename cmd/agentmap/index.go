package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/agentmap"
	"github.com/jward/agentmap/internal/config"
	"github.com/jward/agentmap/internal/linker"
	"github.com/jward/agentmap/internal/scanner"
	"github.com/jward/agentmap/internal/watch"
)

var (
	flagForce       bool
	flagIncremental bool
	flagThreads     int
	flagProgress    string
	flagPolicy      string
	flagQueriesDir  string
	flagLanguages   string
	flagDebounce    time.Duration
)

func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&flagIncremental, "incremental", true, "skip files whose content is unchanged since the last run")
	cmd.Flags().IntVar(&flagThreads, "threads", 0, "worker count (0 = one per core)")
	cmd.Flags().StringVar(&flagProgress, "progress", "dots", "progress style: silent|dots|bar|verbose")
	cmd.Flags().StringVar(&flagPolicy, "unresolved", "", "unresolved reference policy: keep|remove|flag (default from config)")
	cmd.Flags().StringVar(&flagQueriesDir, "queries-dir", "", "override embedded query packs with <dir>/<language>/*.scm")
	cmd.Flags().StringVar(&flagLanguages, "languages", "", "comma-separated language filter (e.g. go,python)")
}

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Analyze and resolve a project",
	Long:  "Scans a directory, extracts symbols and relationships from every supported file, resolves references across files and writes the graph to the SQLite database.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Print the analysis of one file",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Index a project and keep it current as files change",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	indexCmd.Flags().BoolVar(&flagForce, "force", false, "delete database and reindex from scratch")
	addEngineFlags(indexCmd)
	addEngineFlags(analyzeCmd)
	addEngineFlags(watchCmd)
	watchCmd.Flags().DurationVar(&flagDebounce, "debounce", watch.DefaultDebounce, "quiet period before a batch of changes is processed")
}

// openEngine builds an Engine for the project at targetDir from config and
// flags.
func openEngine(targetDir string) (*agentmap.Engine, *config.Config, string, error) {
	cfg, err := loadConfig(targetDir)
	if err != nil {
		return nil, nil, "", err
	}
	if flagLanguages != "" {
		cfg.Languages = nil
		for _, l := range strings.Split(flagLanguages, ",") {
			cfg.Languages = append(cfg.Languages, strings.TrimSpace(l))
		}
	}

	repoRoot := findRepoRoot(targetDir)
	dbPath := resolveDBPath(repoRoot)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, nil, "", fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}
	if flagForce {
		if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
			return nil, nil, "", fmt.Errorf("removing database for --force: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Cleared database: %s\n", dbPath)
	}

	logger, err := newLogger()
	if err != nil {
		return nil, nil, "", err
	}
	progress, err := scanner.ParseProgressStyle(flagProgress)
	if err != nil {
		return nil, nil, "", err
	}

	opts := []agentmap.Option{
		agentmap.WithConfig(cfg),
		agentmap.WithLogger(logger),
		agentmap.WithIncremental(flagIncremental),
		agentmap.WithThreads(flagThreads),
		agentmap.WithProgress(progress, os.Stderr),
		agentmap.WithQueriesDir(flagQueriesDir),
	}
	if flagPolicy != "" {
		p, err := linker.ParsePolicy(flagPolicy)
		if err != nil {
			return nil, nil, "", err
		}
		opts = append(opts, agentmap.WithPolicy(p))
	}

	engine, err := agentmap.New(dbPath, opts...)
	if err != nil {
		return nil, nil, "", fmt.Errorf("creating engine: %w", err)
	}
	return engine, cfg, dbPath, nil
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()
	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	engine, cfg, dbPath, err := openEngine(targetDir)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	extractStart := time.Now()
	scan, err := engine.AnalyzeDirectory(ctx, targetDir)
	if err != nil {
		return fmt.Errorf("analyzing: %w", err)
	}
	extractDuration := time.Since(extractStart)

	resolveStart := time.Now()
	res, err := engine.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("resolving: %w", err)
	}
	resolveDuration := time.Since(resolveStart)

	if cfg.Output.Sidecar {
		if err := writeSidecars(cfg, targetDir, engine.Analyses()); err != nil {
			return err
		}
	}
	for _, fe := range scan.Errors {
		fmt.Fprintf(os.Stderr, "warning: %s\n", fe.Error())
	}

	fmt.Fprintf(os.Stderr, "Indexed %s in %s (analyze: %s, resolve: %s)\n",
		targetDir,
		time.Since(start).Round(time.Millisecond),
		extractDuration.Round(time.Millisecond),
		resolveDuration.Round(time.Millisecond),
	)
	fmt.Fprintf(os.Stderr, "Database: %s\n", dbPath)

	return outputResult(cmd.OutOrStdout(), CLIResult{
		Command: "index",
		Results: toCLISummary(scan, res),
	})
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	file, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	engine, _, _, err := openEngine(filepath.Dir(file))
	if err != nil {
		return outputError(cmd.OutOrStdout(), "analyze", err)
	}
	defer engine.Close()

	a, err := engine.AnalyzeFile(cmd.Context(), file)
	if err != nil {
		return outputError(cmd.OutOrStdout(), "analyze", err)
	}
	return outputResult(cmd.OutOrStdout(), CLIResult{Command: "analyze", Results: toCLIAnalysis(a)})
}

func runWatch(cmd *cobra.Command, args []string) error {
	targetDir, err := resolveTargetDir(args)
	if err != nil {
		return err
	}
	engine, cfg, _, err := openEngine(targetDir)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if _, err := engine.AnalyzeDirectory(ctx, targetDir); err != nil {
		return fmt.Errorf("analyzing: %w", err)
	}
	if _, err := engine.Resolve(ctx); err != nil {
		return fmt.Errorf("resolving: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Watching %s\n", targetDir)

	return engine.Watch(ctx, targetDir, func(scan *agentmap.ScanResult, res *agentmap.ProjectResolution) {
		if cfg.Output.Sidecar {
			if err := writeSidecars(cfg, targetDir, scan.Analyses); err != nil {
				fmt.Fprintf(os.Stderr, "warning: %s\n", err)
			}
		}
		fmt.Fprintf(os.Stderr, "%s; %d resolved, %d unresolved\n",
			scan.Summary(), res.ResolvedCount(), res.UnresolvedCount())
	}, watch.WithDebounce(flagDebounce))
}

// writeSidecars writes each analysis next to its source file.
func writeSidecars(cfg *config.Config, root string, analyses []*agentmap.CodeAnalysis) error {
	for _, a := range analyses {
		src := a.Path
		if !filepath.IsAbs(src) {
			src = filepath.Join(root, filepath.FromSlash(src))
		}
		path := cfg.SidecarPath(src)
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("writing sidecar %s: %w", path, err)
		}
		err = encode(f, cfg.Output.Format, toCLIAnalysis(a))
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("writing sidecar %s: %w", path, err)
		}
	}
	return nil
}
