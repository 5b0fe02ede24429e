package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/buildscope/internal/model"
	"github.com/jward/buildscope/internal/syntax"
)

var outlineCmd = &cobra.Command{
	Use:   "outline <file>",
	Short: "List the targets, parameters and variables of a script",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalysis(cmd, "outline", args[0], func(w *workspace) (any, error) {
			return w.snap.Outline(), nil
		})
	},
}

var tokensCmd = &cobra.Command{
	Use:   "tokens <file>",
	Short: "Classify the ranges of a script for highlighting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalysis(cmd, "tokens", args[0], func(w *workspace) (any, error) {
			return w.snap.Tokens(), nil
		})
	},
}

var hoverCmd = &cobra.Command{
	Use:   "hover <file> (<offset> | <line> <col>)",
	Short: "Show documentation for the element at a position",
	Long:  "Show documentation for the element at a position. Positions are a byte offset or a 0-based line and column.",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalysis(cmd, "hover", args[0], func(w *workspace) (any, error) {
			off, err := resolvePosition(w.snap.Text, args[1:])
			if err != nil {
				return nil, err
			}
			if res := w.snap.Hover(off); res != nil {
				return res, nil
			}
			return nil, nil
		})
	},
}

var completeCmd = &cobra.Command{
	Use:   "complete <file> (<offset> | <line> <col>)",
	Short: "List completion proposals at a position",
	Long:  "List completion proposals at a position. Positions are a byte offset or a 0-based line and column.",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalysis(cmd, "complete", args[0], func(w *workspace) (any, error) {
			off, err := resolvePosition(w.snap.Text, args[1:])
			if err != nil {
				return nil, err
			}
			return w.snap.Proposals(off), nil
		})
	},
}

var typesCmd = &cobra.Command{
	Use:   "types <file> (<offset> | <line> <col>)",
	Short: "Show the deduced types of the expression at a position",
	Long:  "Show the receiver and result types of the innermost typed statement at a position. Positions are a byte offset or a 0-based line and column.",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAnalysis(cmd, "types", args[0], func(w *workspace) (any, error) {
			off, err := resolvePosition(w.snap.Text, args[1:])
			if err != nil {
				return nil, err
			}
			if t := typesAt(w.snap.Analyzer, w.snap.Tree, off); t != nil {
				return *t, nil
			}
			return nil, nil
		})
	},
}

// runAnalysis opens the workspace of file, runs query and prints its result.
func runAnalysis(cmd *cobra.Command, command, file string, query func(*workspace) (any, error)) error {
	w, err := openWorkspace(context.Background(), file)
	if err != nil {
		return outputError(cmd, command, err)
	}
	defer w.Close()

	res, err := query(w)
	if err != nil {
		return outputError(cmd, command, err)
	}
	return outputResult(cmd, CLIResult{Command: command, Results: res})
}

// resolvePosition turns "<offset>" or "<line> <col>" into a byte offset of
// text. Lines and columns are 0-based, columns count bytes.
func resolvePosition(text string, args []string) (int, error) {
	if len(args) == 1 {
		off, err := parseIntArg(args[0], "offset")
		if err != nil {
			return 0, err
		}
		if off > len(text) {
			return 0, fmt.Errorf("offset %d is past the end of the file (%d bytes)", off, len(text))
		}
		return off, nil
	}
	line, err := parseIntArg(args[0], "line")
	if err != nil {
		return 0, err
	}
	col, err := parseIntArg(args[1], "col")
	if err != nil {
		return 0, err
	}
	return offsetOf(text, line, col)
}

func offsetOf(text string, line, col int) (int, error) {
	start := 0
	for i := 0; i < line; i++ {
		nl := strings.IndexByte(text[start:], '\n')
		if nl < 0 {
			return 0, fmt.Errorf("line %d is past the end of the file", line)
		}
		start += nl + 1
	}
	end := len(text)
	if nl := strings.IndexByte(text[start:], '\n'); nl >= 0 {
		end = start + nl
	}
	if start+col > end {
		return 0, fmt.Errorf("column %d is past the end of line %d", col, line)
	}
	return start + col, nil
}

// typesAt finds the innermost statement containing off that has deduced
// types.
func typesAt(a *model.Analyzer, tree *syntax.Tree, off int) *CLITypes {
	var found *CLITypes
	tree.Root.Walk(func(stm *syntax.Statement, _ []*syntax.Statement) bool {
		if !stm.ContainsOffset(off) {
			return false
		}
		recv := typeStrings(a.ReceiverTypes(stm))
		res := typeStrings(a.ResultTypes(stm))
		if len(recv) > 0 || len(res) > 0 {
			found = &CLITypes{
				Statement: stm.Name,
				Raw:       stm.Raw,
				Offset:    stm.Offset,
				Length:    stm.Length(),
				Receiver:  recv,
				Result:    res,
			}
		}
		return true
	})
	return found
}

func typeStrings(infos []*model.TypedInfo) []string {
	var out []string
	for _, t := range model.Types(infos) {
		out = append(out, model.TypeString(t))
	}
	return out
}
