package main

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/richinsley/snakebind/bindgen"
	"github.com/richinsley/snakebind/internal/config"
	"github.com/richinsley/snakebind/internal/diagfmt"
	"github.com/richinsley/snakebind/internal/gencache"
)

var generateCmd = &cobra.Command{
	Use:   "generate [file.py...]",
	Short: "Generate Go bindings for Python files",
	Long: `Generate writes one Go file per Python file. Without arguments, the
inputs of snakebind.toml are used, or every .py file in the directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGenerate(cmd, args, true)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check [file.py...]",
	Short: "Report diagnostics and stale bindings without writing files",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGenerate(cmd, args, false)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{generateCmd, checkCmd} {
		cmd.Flags().StringP("output", "o", "", "directory for generated files")
		cmd.Flags().StringP("package", "p", "", "package name of generated files")
		cmd.Flags().IntP("jobs", "j", 0, "max files generated in parallel (0=auto)")
		cmd.Flags().Bool("no-cache", false, "disable the generation cache")
	}
}

// applyFlags overrides the project configuration with the flags that were
// set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.GenerateConfig) error {
	flags := cmd.Flags()
	if flags.Changed("output") {
		v, err := flags.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = v
	}
	if flags.Changed("package") {
		v, err := flags.GetString("package")
		if err != nil {
			return err
		}
		cfg.Package = v
	}
	if flags.Changed("jobs") {
		v, err := flags.GetInt("jobs")
		if err != nil {
			return err
		}
		cfg.Jobs = v
	}
	noCache, err := flags.GetBool("no-cache")
	if err != nil {
		return err
	}
	if noCache {
		cfg.Cache = false
	}
	return nil
}

func readInputs(m *config.Manifest, args []string) ([]bindgen.File, error) {
	paths := args
	if len(paths) == 0 {
		var err error
		if paths, err = m.Inputs(); err != nil {
			return nil, err
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no Python files to generate")
	}
	files := make([]bindgen.File, 0, len(paths))
	for _, p := range paths {
		src, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		files = append(files, bindgen.File{Path: p, Source: src})
	}
	return files, nil
}

func runGenerate(cmd *cobra.Command, args []string, write bool) error {
	m, err := loadManifest(cmd)
	if err != nil {
		return err
	}
	cfg := m.Config.Generate
	if err := applyFlags(cmd, &cfg); err != nil {
		return err
	}
	files, err := readInputs(m, args)
	if err != nil {
		return err
	}

	var cache *gencache.Cache
	if cfg.Cache {
		cache, err = gencache.Open(m.Abs(cfg.CacheDir))
		if err != nil {
			slog.Warn("generation cache disabled", slog.Any("error", err))
		}
	}
	g, err := bindgen.New(bindgen.Options{
		Package: cfg.Package,
		Jobs:    cfg.Jobs,
		Cache:   cache,
		Logger:  slog.Default(),
	})
	if err != nil {
		return err
	}

	results, err := g.GenerateAll(cmd.Context(), files)
	if err != nil {
		return err
	}

	outDir := m.Abs(cfg.Output)
	var diags []bindgen.Diagnostic
	var stale []string
	for _, r := range results {
		diags = append(diags, r.Diagnostics...)
		if r.Artifact == nil {
			continue
		}
		target := filepath.Join(outDir, r.Artifact.FileName)
		if write {
			if err := writeArtifact(target, r.Artifact.Source); err != nil {
				return err
			}
			continue
		}
		current, err := os.ReadFile(target)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if !bytes.Equal(current, r.Artifact.Source) {
			stale = append(stale, target)
		}
	}

	if err := printDiagnostics(cmd, diags, files); err != nil {
		return err
	}
	if write {
		if importPath, err := bindgen.ResolveImportPath(outDir); err == nil {
			slog.Info("bindings generated", slog.String("package", importPath), slog.Int("files", len(files)))
		} else {
			slog.Debug("generated package is outside a Go module", slog.String("dir", outDir))
		}
	}

	if summary := diagfmt.Summary(diags); bindgen.HasErrors(diags) {
		return errors.New(summary)
	}
	if len(stale) > 0 {
		for _, path := range stale {
			fmt.Fprintf(cmd.OutOrStdout(), "%s is out of date\n", path)
		}
		return fmt.Errorf("%d generated files are out of date; run snakebind generate", len(stale))
	}
	return nil
}

func printDiagnostics(cmd *cobra.Command, diags []bindgen.Diagnostic, files []bindgen.File) error {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return err
	}
	colored, err := useColor(cmd, os.Stderr)
	if err != nil {
		return err
	}
	if !verbose {
		var shown []bindgen.Diagnostic
		for _, d := range diags {
			if d.Severity > bindgen.SevInfo {
				shown = append(shown, d)
			}
		}
		diags = shown
	}

	sources := make(map[string][]byte, len(files))
	for _, f := range files {
		sources[f.Path] = f.Source
	}
	diagfmt.Pretty(cmd.ErrOrStderr(), diags, func(path string) []byte { return sources[path] }, diagfmt.PrettyOpts{
		Color: colored,
	})
	return nil
}

// writeArtifact writes src to path unless the file already holds it.
func writeArtifact(path string, src []byte) error {
	if current, err := os.ReadFile(path); err == nil && bytes.Equal(current, src) {
		slog.Debug("binding unchanged", slog.String("path", path))
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, src, 0o644); err != nil {
		return err
	}
	slog.Debug("binding written", slog.String("path", path))
	return nil
}
