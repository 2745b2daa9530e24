package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/physync/internal/scenefile"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	File   string            `json:"file"`
	Valid  bool              `json:"valid"`
	Scene  string            `json:"scene,omitempty"`
	Nodes  int               `json:"nodes,omitempty"`
	Errors []scenefile.Error `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scene-file>",
		Short: "Validate a scene file",
		Long: `Validate a scene file without running it.

Checks the YAML against the scene schema, then builds the scene graph
so that node kind mismatches and duplicate names are reported too.

Exit codes:
  0 - Scene is valid
  1 - Scene is invalid
  2 - Command error (file not found, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	if _, err := os.Stat(path); err != nil {
		_ = formatter.Error(ErrCodeFileNotFound, fmt.Sprintf("scene file not found: %s", path), nil)
		return WrapExitError(ExitCommandError, "scene file not found", err)
	}

	result := ValidationResult{File: path}
	file, err := scenefile.Load(path)
	if err == nil {
		var s *scenefile.Scene
		if s, err = scenefile.Build(file); err == nil {
			result.Valid = true
			result.Scene = s.Name
			result.Nodes = len(s.Nodes())
		}
	}
	if err != nil {
		result.Errors = []scenefile.Error{asSceneError(err)}
		return outputValidationErrors(formatter, result)
	}

	formatter.VerboseLog("scene %q has %d node(s)", result.Scene, result.Nodes)
	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ %s is valid (%d nodes)\n", path, result.Nodes)
	return nil
}

// asSceneError keeps field and line information when the error carries it.
func asSceneError(err error) scenefile.Error {
	var se *scenefile.Error
	if errors.As(err, &se) {
		return *se
	}
	return scenefile.Error{Field: "scene", Message: err.Error()}
}

func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	msg := fmt.Sprintf("validation failed with %d error(s)", len(result.Errors))
	if formatter.JSON() {
		if err := formatter.Failure(result, ErrCodeSceneInvalid, result.Errors[0].Error()); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, e := range result.Errors {
		fmt.Fprintf(formatter.Writer, "  %s\n", e.Error())
	}
	return NewExitError(ExitFailure, msg)
}
