package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/compiler"
	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/deps"
	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/sandbox"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] <file>",
	Short: "Compile a component and mount it in the headless sandbox",
	Long: `run compiles one component, injects it into a fresh headless frame and
prints the sandbox message it produced: executionReady or executionError.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().Bool("markup", false, "print the mounted markup")
	runCmd.Flags().Duration("timeout", 10*time.Second, "overall time limit")
}

type runOptions struct {
	markup  bool
	timeout time.Duration
}

func runRun(cmd *cobra.Command, args []string) error {
	markup, err := cmd.Flags().GetBool("markup")
	if err != nil {
		return err
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}
	table, err := loadTable(cmd)
	if err != nil {
		return err
	}
	return runFile(cmd.Context(), cmd.OutOrStdout(), table, args[0], runOptions{markup: markup, timeout: timeout})
}

func runFile(ctx context.Context, w io.Writer, table *deps.Table, path string, opts runOptions) error {
	res, err := compileFile(compiler.New(table), path)
	if err != nil {
		return err
	}
	if !res.Success {
		fmt.Fprintf(w, "%s %s\n", red("FAIL"), path)
		printDiagnostics(w, path, res.Diagnostics)
		return errFailed
	}

	page := sandbox.Page()
	if err := sandbox.ValidatePage(page, table); err != nil {
		return err
	}
	cfg := sandbox.DefaultConfig()
	cfg.PoolSize = 1
	pool, err := sandbox.NewPool(cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	out, err := sandbox.Preview(ctx, sandbox.NewHeadlessFactory(pool, page), res.Executable)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	for _, entry := range out.Console {
		fmt.Fprintf(w, "%s %s\n", gray("console."+entry.Level+":"), entry.Message)
	}
	if opts.markup && out.Markup != "" {
		fmt.Fprintln(w, out.Markup)
	}

	took := gray(fmt.Sprintf("(%s)", out.Duration.Round(time.Millisecond)))
	if !out.OK() {
		fmt.Fprintf(w, "%s %s: %s %s\n", red(string(out.Message.Type)), path, out.Message.Message, took)
		if out.Message.Stack != "" {
			fmt.Fprintln(w, gray(out.Message.Stack))
		}
		return errFailed
	}
	fmt.Fprintf(w, "%s %s %s\n", green(string(out.Message.Type)), path, took)
	return nil
}
