package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/deps"
)

var depsCmd = &cobra.Command{
	Use:   "deps",
	Short: "List the packages generated components may import",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		table, err := loadTable(cmd)
		if err != nil {
			return err
		}
		listDeps(cmd.OutOrStdout(), table)
		return nil
	},
}

func listDeps(w io.Writer, table *deps.Table) {
	host := table.HostGlobal()
	for _, name := range table.Names() {
		global, _ := table.Global(name)
		line := fmt.Sprintf("%-16s window.%s", name, global)
		if global == host {
			line += gray(" (host)")
		}
		fmt.Fprintln(w, line)
	}
}
