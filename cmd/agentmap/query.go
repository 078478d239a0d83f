package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jward/agentmap"
	"github.com/jward/agentmap/internal/store"
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the resolved graph",
	Long:  "Run queries against an indexed project. File arguments are relative to the indexed directory; lines are 1-based.",
}

var symbolsCmd = &cobra.Command{
	Use:   "symbols <name>",
	Short: "Find symbols by short name",
	Args:  cobra.ExactArgs(1),
	RunE: withQuery("symbols", func(q *agentmap.QueryBuilder, args []string) (any, error) {
		rows, err := q.SymbolsByName(args[0])
		return toCLISymbols(rows), err
	}),
}

var fileSymbolsCmd = &cobra.Command{
	Use:   "file <file>",
	Short: "List symbols declared in a file",
	Args:  cobra.ExactArgs(1),
	RunE: withQuery("file", func(q *agentmap.QueryBuilder, args []string) (any, error) {
		rows, err := q.SymbolsInFile(queryPath(args[0]))
		return toCLISymbols(rows), err
	}),
}

var symbolAtCmd = &cobra.Command{
	Use:   "symbol-at <file> <line>",
	Short: "Find the innermost symbol containing a line",
	Args:  cobra.ExactArgs(2),
	RunE: withQuery("symbol-at", func(q *agentmap.QueryBuilder, args []string) (any, error) {
		line, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("invalid line %q: %w", args[1], err)
		}
		s, err := q.SymbolAt(queryPath(args[0]), line)
		if err != nil || s == nil {
			return nil, err
		}
		return toCLISymbols([]*agentmap.StoredSymbol{s})[0], nil
	}),
}

var callersCmd = &cobra.Command{
	Use:   "callers <symbol-id>",
	Short: "List call sites of a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: withQuery("callers", func(q *agentmap.QueryBuilder, args []string) (any, error) {
		edges, err := q.Callers(args[0])
		return toCLIEdges(edges), err
	}),
}

var calleesCmd = &cobra.Command{
	Use:   "callees <symbol-id>",
	Short: "List what a symbol calls",
	Args:  cobra.ExactArgs(1),
	RunE: withQuery("callees", func(q *agentmap.QueryBuilder, args []string) (any, error) {
		edges, err := q.Callees(args[0])
		return toCLIEdges(edges), err
	}),
}

var referencesCmd = &cobra.Command{
	Use:   "references <symbol-id>",
	Short: "List every edge pointing at a symbol",
	Args:  cobra.ExactArgs(1),
	RunE: withQuery("references", func(q *agentmap.QueryBuilder, args []string) (any, error) {
		edges, err := q.References(args[0])
		return toCLIEdges(edges), err
	}),
}

var implementationsCmd = &cobra.Command{
	Use:   "implementations <symbol-id>",
	Short: "List symbols implementing or extending a type",
	Args:  cobra.ExactArgs(1),
	RunE: withQuery("implementations", func(q *agentmap.QueryBuilder, args []string) (any, error) {
		rows, err := q.Implementations(args[0])
		return toCLISymbols(rows), err
	}),
}

var depsCmd = &cobra.Command{
	Use:   "deps <file>",
	Short: "List files a file depends on",
	Args:  cobra.ExactArgs(1),
	RunE: withQuery("deps", func(q *agentmap.QueryBuilder, args []string) (any, error) {
		return q.Dependencies(queryPath(args[0]))
	}),
}

var dependentsCmd = &cobra.Command{
	Use:   "dependents <file>",
	Short: "List files depending on a file",
	Args:  cobra.ExactArgs(1),
	RunE: withQuery("dependents", func(q *agentmap.QueryBuilder, args []string) (any, error) {
		return q.Dependents(queryPath(args[0]))
	}),
}

func init() {
	queryCmd.AddCommand(symbolsCmd)
	queryCmd.AddCommand(fileSymbolsCmd)
	queryCmd.AddCommand(symbolAtCmd)
	queryCmd.AddCommand(callersCmd)
	queryCmd.AddCommand(calleesCmd)
	queryCmd.AddCommand(referencesCmd)
	queryCmd.AddCommand(implementationsCmd)
	queryCmd.AddCommand(depsCmd)
	queryCmd.AddCommand(dependentsCmd)
}

// withQuery opens the store, runs fn and writes its result or error.
func withQuery(command string, fn func(*agentmap.QueryBuilder, []string) (any, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openStore()
		if err != nil {
			return outputError(cmd.OutOrStdout(), command, err)
		}
		defer s.Close()

		res, err := fn(agentmap.NewQueryBuilder(s), args)
		if err != nil {
			return outputError(cmd.OutOrStdout(), command, err)
		}
		return outputResult(cmd.OutOrStdout(), CLIResult{Command: command, Results: res})
	}
}

// openStore opens the Store from the --db flag path (or default).
func openStore() (*store.Store, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	dbPath := resolveDBPath(findRepoRoot(cwd))
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'agentmap index' first)", dbPath)
	}
	return store.NewStore(dbPath)
}

// queryPath normalizes a file argument to the slash-separated key the index
// stores.
func queryPath(file string) string {
	return filepath.ToSlash(filepath.Clean(file))
}
