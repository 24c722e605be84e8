package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/x3drouter/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	NodeCount   int            `json:"nodes"`
	RouteCount  int            `json:"routes"`
	ScriptCount int            `json:"scripts"`
	Types       map[string]int `json:"types"`
}

// CompilationResult is the JSON payload of a successful compile.
type CompilationResult struct {
	Scene *ir.SceneSpec    `json:"scene"`
	Hash  string           `json:"hash"`
	Stats CompilationStats `json:"stats"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <scene>",
		Short: "Compile a CUE scene to its JSON scene description",
		Long: `Compile a CUE scene (a .cue file or a directory of .cue files) into
the format-independent scene description the engine loads.

Compile only checks the scene's structure; use validate for node types,
field values and routes.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, scenePath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	loaded, err := LoadScene(scenePath)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Compiled %d CUE file(s) from %s", loaded.FileCount, scenePath)

	result := &CompilationResult{
		Scene: loaded.Spec,
		Hash:  loaded.Hash,
		Stats: calculateStats(loaded.Spec),
	}

	if opts.Output != "" {
		if err := writeSceneToFile(loaded.Spec, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// calculateStats computes summary statistics of a scene.
func calculateStats(spec *ir.SceneSpec) CompilationStats {
	stats := CompilationStats{
		NodeCount:  len(spec.Nodes),
		RouteCount: len(spec.Routes),
		Types:      make(map[string]int),
	}
	for _, n := range spec.Nodes {
		stats.Types[n.Type]++
		if len(n.Interface) > 0 || n.Source != "" {
			stats.ScriptCount++
		}
	}
	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	stats := result.Stats
	fmt.Fprintf(formatter.Writer, "✓ Compiled scene %q: %d node(s), %d route(s)\n\n",
		result.Scene.Name, stats.NodeCount, stats.RouteCount)

	fmt.Fprintln(formatter.Writer, "Node types:")
	for _, typeName := range ir.SortedKeys(stats.Types) {
		fmt.Fprintf(formatter.Writer, "  %s: %d\n", typeName, stats.Types[typeName])
	}
	fmt.Fprintln(formatter.Writer)

	if len(result.Scene.Routes) > 0 {
		fmt.Fprintln(formatter.Writer, "Routes:")
		for _, r := range result.Scene.Routes {
			fmt.Fprintf(formatter.Writer, "  %s\n", r)
		}
		fmt.Fprintln(formatter.Writer)
	}

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote scene to %s\n", outputFile)
	}

	return nil
}

// outputLoadError reports a LoadScene failure. Loading errors are
// command-level errors (exit code 2).
func outputLoadError(formatter *OutputFormatter, err error) error {
	code, message := ErrCodeGeneric, err.Error()
	var details any
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		code, message = loadErr.Code, loadErr.Message
		if line := lineOf(loadErr.Pos); line > 0 {
			details = map[string]any{"file": loadErr.Pos.Filename(), "line": line}
		}
		if formatter.Format != "json" && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(), loadErr.Pos.Line(), loadErr.Pos.Column())
		}
	}
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// writeSceneToFile writes the scene description as indented JSON.
// Canonical JSON without indentation is used only for hashing.
func writeSceneToFile(spec *ir.SceneSpec, filename string) error {
	data, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling scene: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
