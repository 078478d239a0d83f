// Package agentmap extracts symbols and relationships from Rust, Python,
// TypeScript, JavaScript, Go, Java and Dart sources and links them into a
// project-wide graph.
//
// # Pipeline
//
// Agentmap operates in two phases:
//
//  1. Analyze: the scanner discovers files, and each one passes through the
//     middleware stack, a tree-sitter parse and the extractors. The result is
//     one CodeAnalysis per file whose relationship targets are still bare
//     names.
//
//  2. Resolve: every analysis is declared into a symbol table, then each bare
//     target runs through the resolution chain. Resolved, ambiguous,
//     external and unresolved targets are counted in a ProjectResolution and
//     the graph is written to SQLite.
//
// # Usage
//
//	e, err := agentmap.New("agentmap.db")
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	res, err := e.AnalyzeDirectory(ctx, "path/to/project")
//	summary, err := e.Resolve(ctx)
//
//	q := e.Query()
//	callers, err := q.Callers("svc/api.py:10:handle")
//
// # Incremental analysis
//
// File content hashes are kept in the database between runs. With
// [WithIncremental] unchanged files are skipped and their cached analyses
// reused when the project is resolved. Changing the query packs invalidates
// every cached analysis.
package agentmap
