package scenefile

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSource string

// Error is a scene file problem with its location when known.
type Error struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s", e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks raw YAML against the #Scene schema.
func Validate(filename string, data []byte) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("scene schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Scene"))

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return formatCUEError(err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return formatCUEError(err)
	}

	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(err)
	}
	return nil
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	field := "scene"
	if path := first.Path(); len(path) > 0 {
		field = strings.Join(path, ".")
	}
	e := &Error{Field: field, Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		e.Line = positions[0].Line()
	}
	return e
}
