package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jward/buildscope/internal/assist"
)

// outputResult writes result to the command's output in the selected format.
func outputResult(cmd *cobra.Command, result CLIResult) error {
	w := cmd.OutOrStdout()
	if flagFormat == "text" {
		return outputResultText(w, result)
	}
	if n := resultLen(result.Results); n > 0 {
		result.TotalCount = &n
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(cmd *cobra.Command, command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}

// formatOutlineText prints the outline as an indented tree.
func formatOutlineText(w io.Writer, items []assist.OutlineItem, depth int) {
	for _, it := range items {
		fmt.Fprintf(w, "%s%s %s", strings.Repeat("  ", depth), it.Kind, it.Name)
		if it.Detail != "" {
			fmt.Fprintf(w, " : %s", it.Detail)
		}
		fmt.Fprintf(w, " @%d\n", it.Offset)
		formatOutlineText(w, it.Children, depth+1)
	}
}

// formatProposalsText formats proposals as aligned columns.
func formatProposalsText(w io.Writer, props []assist.Proposal) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tDISPLAY\tINSERT\tRELATION")
	for _, p := range props {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Kind, p.Display, p.Insert, p.Relation)
	}
	tw.Flush()
}

// formatHoverText prints each hover section with its documentation.
func formatHoverText(w io.Writer, h *assist.HoverResult) {
	for i, s := range h.Sections {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, s.Title)
		if s.Type != "" {
			fmt.Fprintf(w, "Type: %s\n", s.Type)
		}
		if s.Doc != "" {
			fmt.Fprintln(w, s.Doc)
		}
	}
}

// formatTokensText formats tokens as aligned columns.
func formatTokensText(w io.Writer, tokens []assist.Token) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OFFSET\tLENGTH\tKIND")
	for _, t := range tokens {
		fmt.Fprintf(tw, "%d\t%d\t%s\n", t.Offset, t.Length, t.Kind)
	}
	tw.Flush()
}

func formatTypesText(w io.Writer, t CLITypes) {
	fmt.Fprintf(w, "%s %q @%d\n", t.Statement, t.Raw, t.Offset)
	if len(t.Receiver) > 0 {
		fmt.Fprintf(w, "Receiver: %s\n", strings.Join(t.Receiver, " | "))
	}
	if len(t.Result) > 0 {
		fmt.Fprintf(w, "Result: %s\n", strings.Join(t.Result, " | "))
	}
}

func formatStatsText(w io.Writer, st CLICatalogStats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Sources:\t%d\n", st.Sources)
	fmt.Fprintf(tw, "Types:\t%d\n", st.Types)
	fmt.Fprintf(tw, "Tasks:\t%d\n", st.Tasks)
	fmt.Fprintf(tw, "Parameters:\t%d\n", st.Parameters)
	fmt.Fprintf(tw, "Literals:\t%d\n", st.Literals)
	tw.Flush()
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []assist.OutlineItem:
		formatOutlineText(w, v, 0)
	case []assist.Proposal:
		formatProposalsText(w, v)
	case *assist.HoverResult:
		formatHoverText(w, v)
	case []assist.Token:
		formatTokensText(w, v)
	case CLITypes:
		formatTypesText(w, v)
	case CLICatalogStats:
		formatStatsText(w, v)
	case nil:
		// Nothing at the position.
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// resultLen returns the length of a result slice, or 0 for anything else.
func resultLen(v any) int {
	switch r := v.(type) {
	case []assist.OutlineItem:
		return len(r)
	case []assist.Proposal:
		return len(r)
	case []assist.Token:
		return len(r)
	default:
		return 0
	}
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
