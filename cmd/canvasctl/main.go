package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	httpapi "github.com/GriffinCanCode/ConceptCanvas/internal/api/http"
)

var rootCmd = &cobra.Command{
	Use:   "canvasctl",
	Short: "Validate, compile and run generated visualization components",
	Long: `canvasctl runs the component pipeline on local files: the static
validator, the compiler and the headless sandbox. It can also start the server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
			color.NoColor = true
		}
	},
}

func init() {
	rootCmd.Version = httpapi.Version

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(depsCmd)

	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	rootCmd.PersistentFlags().String("deps", "", "dependency table (YAML) replacing the built-in one")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
