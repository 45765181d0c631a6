// Command snakebind generates Go bindings for Python modules and inspects
// the Python installation they run against.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/richinsley/snakebind/internal/config"
	"github.com/richinsley/snakebind/internal/diagfmt"
)

var rootCmd = &cobra.Command{
	Use:           "snakebind",
	Short:         "Typed Go bindings for Python functions",
	Long:          `snakebind reads the function signatures of Python files and generates Go interfaces that call them through an embedded interpreter.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(cmd)
	},
}

func init() {
	rootCmd.Version = buildVersion()

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(envCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringP("dir", "C", ".", "directory to search for "+config.FileName)
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log debug messages and informational diagnostics")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "log errors only")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "snakebind:", err)
		os.Exit(1)
	}
}

func setupLogging(cmd *cobra.Command) error {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return err
	}
	quiet, err := cmd.Flags().GetBool("quiet")
	if err != nil {
		return err
	}
	level := slog.LevelInfo
	switch {
	case verbose && quiet:
		return fmt.Errorf("--verbose and --quiet are mutually exclusive")
	case verbose:
		level = slog.LevelDebug
	case quiet:
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	return nil
}

// useColor resolves the --color flag for output to f.
func useColor(cmd *cobra.Command, f *os.File) (bool, error) {
	mode, err := cmd.Flags().GetString("color")
	if err != nil {
		return false, err
	}
	switch mode {
	case "on":
		return true, nil
	case "off":
		return false, nil
	case "auto":
		return diagfmt.UseColor(f), nil
	}
	return false, fmt.Errorf("unknown --color value %q (must be auto, on or off)", mode)
}

func loadManifest(cmd *cobra.Command) (*config.Manifest, error) {
	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return nil, err
	}
	m, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if m.Path != "" {
		slog.Debug("loaded project file", slog.String("path", m.Path))
	}
	return m, nil
}
