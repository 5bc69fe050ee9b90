package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/deps"
	"github.com/GriffinCanCode/ConceptCanvas/internal/providers/source"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// errFailed is returned when at least one file did not pass; the per-file
// output has already been printed
var errFailed = errors.New("some files failed")

func printError(w io.Writer, err error) {
	if errors.Is(err, errFailed) {
		return
	}
	fmt.Fprintf(w, "%s %v\n", red("error:"), err)
}

// resolve expands arguments into source files. An existing path is walked
// with the default pattern; anything else is a doublestar pattern relative
// to the working directory.
func resolve(ctx context.Context, args []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, arg := range args {
		var (
			matches []string
			err     error
		)
		if _, statErr := os.Stat(arg); statErr == nil {
			matches, err = source.Collect(ctx, arg)
		} else {
			matches, err = source.Collect(ctx, ".", arg)
		}
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", arg)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	return files, nil
}

// loadTable returns the --deps table, or the built-in one
func loadTable(cmd *cobra.Command) (*deps.Table, error) {
	path, _ := cmd.Flags().GetString("deps")
	return readTable(path)
}

func readTable(path string) (*deps.Table, error) {
	if path == "" {
		return deps.Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return deps.Parse(data)
}
