package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "yaml", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be one of %s", format, strings.Join(validFormats, ", "))
}

// encode writes v as JSON or YAML.
func encode(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
}

// outputResult writes result in the --format encoding.
func outputResult(w io.Writer, result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(w, result)
	}
	return encode(w, flagFormat, result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra.
func outputError(w io.Writer, command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(w, "Error: %s\n", err)
		return err
	}
	_ = encode(w, flagFormat, CLIResult{Command: command, Error: err.Error()})
	return err
}

func formatSymbolsText(w io.Writer, syms []CLISymbol) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tVISIBILITY\tFILE\tLINE")
	for _, s := range syms {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\n",
			s.ID, s.Name, s.Kind, s.Visibility, s.File, s.StartLine)
	}
	tw.Flush()
}

func formatEdgesText(w io.Writer, edges []CLIEdge) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FROM\tKIND\tTO\tFILE\tLINE\tRESOLUTION")
	for _, e := range edges {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			e.From, e.Kind, e.To, e.File, e.Line, e.Resolution)
	}
	tw.Flush()
}

func formatSummaryText(w io.Writer, s CLISummary) {
	fmt.Fprintf(w, "Files: %d (%d analyzed, %d skipped, %d failed) in %dms\n",
		s.TotalFiles, s.Analyzed, s.Skipped, s.Failed, s.ElapsedMs)
	fmt.Fprintf(w, "References: %d resolved, %d ambiguous, %d external, %d unresolved (%.1f%% success)\n",
		s.Resolved, s.Ambiguous, s.External, s.Unresolved, s.SuccessRate*100)
}

func formatAnalysisText(w io.Writer, a CLIAnalysis) {
	fmt.Fprintf(w, "%s (%s, %d lines, hash %s)\n", a.Path, a.Language, a.LineCount, a.ContentHash)
	fmt.Fprintln(w)
	formatSymbolsText(w, a.Symbols)
	fmt.Fprintln(w)
	formatEdgesText(w, a.Relationships)
}

// outputResultText dispatches to the text formatter for the result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLISymbol:
		formatSymbolsText(w, v)
	case CLISymbol:
		formatSymbolsText(w, []CLISymbol{v})
	case []CLIEdge:
		formatEdgesText(w, v)
	case []string:
		for _, s := range v {
			fmt.Fprintln(w, s)
		}
	case CLISummary:
		formatSummaryText(w, v)
	case CLIAnalysis:
		formatAnalysisText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}
