package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/compiler"
	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/deps"
	"github.com/GriffinCanCode/ConceptCanvas/internal/providers/source"
)

var compileCmd = &cobra.Command{
	Use:   "compile [flags] <path|glob> [path|glob...]",
	Short: "Compile component sources into executable scripts",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCompile,
}

func init() {
	compileCmd.Flags().String("out", "", "directory to write compiled scripts to (<name>.js)")
}

func runCompile(cmd *cobra.Command, args []string) error {
	out, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}
	table, err := loadTable(cmd)
	if err != nil {
		return err
	}
	files, err := resolve(cmd.Context(), args)
	if err != nil {
		return err
	}
	return compileFiles(cmd.Context(), cmd.OutOrStdout(), table, files, out)
}

func compileFiles(ctx context.Context, w io.Writer, table *deps.Table, files []string, out string) error {
	if out != "" {
		if err := os.MkdirAll(out, 0o755); err != nil {
			return err
		}
	}

	c := compiler.New(table)
	failed := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := compileFile(c, path)
		if err != nil {
			fmt.Fprintf(w, "%s %s: %v\n", red("FAIL"), path, err)
			failed++
			continue
		}
		if !res.Success {
			fmt.Fprintf(w, "%s %s\n", red("FAIL"), path)
			printDiagnostics(w, path, res.Diagnostics)
			failed++
			continue
		}

		if out == "" {
			fmt.Fprintf(w, "%s %s %s\n", green("ok"), path, gray(fmt.Sprintf("(%d bytes)", len(res.Executable))))
			continue
		}
		dst := filepath.Join(out, outputName(path))
		if err := os.WriteFile(dst, []byte(res.Executable), 0o644); err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %s -> %s\n", green("ok"), path, dst)
	}

	fmt.Fprintf(w, "\n%s compiled, %s\n", bold(len(files)), summary(failed))
	if failed > 0 {
		return errFailed
	}
	return nil
}

func compileFile(c *compiler.Compiler, path string) (compiler.Result, error) {
	f, err := source.Load(path)
	if err != nil {
		return compiler.Result{}, err
	}
	return c.CompileSource(f.Source)
}

func printDiagnostics(w io.Writer, path string, diags []compiler.Diagnostic) {
	for _, d := range diags {
		fmt.Fprintf(w, "  %s %s\n", cyan(fmt.Sprintf("%s:%d:%d", path, d.Line, d.Column)), d.String())
	}
	if len(diags) == 0 {
		return
	}
	// stages fail independently, so one kind covers the whole list
	if hint := compiler.Remediation(diags[0].Kind); hint != "" {
		for _, line := range strings.Split(hint, "\n") {
			fmt.Fprintf(w, "    %s\n", yellow(line))
		}
	}
}

// outputName maps App.tsx to App.js
func outputName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".js"
}
