package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/richinsley/snakebind"
)

var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Locate Python and start the configured interpreter",
	Long: `Env runs the locators of snakebind.toml and prints the installation
found. With --start it also prepares the virtual environment, installs
packages and starts the embedded interpreter.`,
	Args: cobra.NoArgs,
	RunE: runEnv,
}

func init() {
	envCmd.Flags().Bool("start", false, "start the embedded interpreter")
}

func runEnv(cmd *cobra.Command, args []string) error {
	m, err := loadManifest(cmd)
	if err != nil {
		return err
	}
	start, err := cmd.Flags().GetBool("start")
	if err != nil {
		return err
	}
	opts := m.InterpreterOptions(slog.Default())
	out := cmd.OutOrStdout()

	if !start {
		for _, l := range opts.Locators {
			if !l.IsSupported() {
				continue
			}
			loc, err := l.LocatePython(cmd.Context())
			if err != nil {
				return err
			}
			if loc != nil {
				printLocation(out, loc)
				return nil
			}
		}
		return fmt.Errorf("no Python installation found")
	}

	interp, err := snakebind.New(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer interp.Close()

	printLocation(out, interp.Location())
	fmt.Fprintf(out, "home:        %s\n", interp.Home())
	fmt.Fprintf(out, "search path: %s\n", strings.Join(interp.SearchPath(), "\n             "))
	fmt.Fprintf(out, "state:       %s\n", interp.State())
	return nil
}

func printLocation(out io.Writer, loc *snakebind.PythonLocation) {
	fmt.Fprintf(out, "prefix:      %s\n", loc.Prefix)
	fmt.Fprintf(out, "executable:  %s\n", loc.Executable)
	fmt.Fprintf(out, "version:     %s\n", loc.Version)
	fmt.Fprintf(out, "library:     %s\n", loc.LibraryPath)
	fmt.Fprintf(out, "stdlib:      %s\n", loc.StdlibPath)
}
