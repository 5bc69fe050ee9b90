package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/deps"
	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/validator"
	"github.com/GriffinCanCode/ConceptCanvas/internal/providers/source"
)

var validateCmd = &cobra.Command{
	Use:   "validate <path|glob> [path|glob...]",
	Short: "Run the static pre-validator over component sources",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	table, err := loadTable(cmd)
	if err != nil {
		return err
	}
	files, err := resolve(cmd.Context(), args)
	if err != nil {
		return err
	}
	return validateFiles(cmd.Context(), cmd.OutOrStdout(), table, files)
}

func validateFiles(ctx context.Context, w io.Writer, table *deps.Table, files []string) error {
	v := validator.New(table)
	failed := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := source.Load(path)
		if err != nil {
			fmt.Fprintf(w, "%s %s: %v\n", red("FAIL"), path, err)
			failed++
			continue
		}
		res := v.Validate(f.Source)
		if !res.Valid {
			fmt.Fprintf(w, "%s %s: %s\n", red("FAIL"), path, res.Reason)
			failed++
			continue
		}
		fmt.Fprintf(w, "%s %s\n", green("ok"), path)
	}

	fmt.Fprintf(w, "\n%s validated, %s\n", bold(len(files)), summary(failed))
	if failed > 0 {
		return errFailed
	}
	return nil
}

func summary(failed int) string {
	if failed == 0 {
		return green("all passed")
	}
	return red(fmt.Sprintf("%d failed", failed))
}
