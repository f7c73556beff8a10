// Package form collects values for {form:...} fields before a snippet is
// expanded.
package form

import (
	"context"
	"errors"
)

// ErrCanceled is returned by a Prompter when the user dismisses the form.
var ErrCanceled = errors.New("form canceled")

// Field is one named value a template asks for.
type Field struct {
	Name    string
	Default string
}

// Prompter asks the user for field values.
type Prompter interface {
	// Prompt blocks until the user submits or cancels. The returned map is
	// keyed by field name.
	Prompt(ctx context.Context, fields []Field) (map[string]string, error)
}

// Func adapts a function to Prompter.
type Func func(ctx context.Context, fields []Field) (map[string]string, error)

// Prompt implements Prompter.
func (f Func) Prompt(ctx context.Context, fields []Field) (map[string]string, error) {
	return f(ctx, fields)
}

// Static answers every prompt from a fixed map, falling back to field
// defaults.
type Static map[string]string

// Prompt implements Prompter.
func (s Static) Prompt(ctx context.Context, fields []Field) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Fill(fields, s), nil
}

// Cancel is a Prompter that always cancels.
var Cancel Prompter = Func(func(context.Context, []Field) (map[string]string, error) {
	return nil, ErrCanceled
})

// Fill returns a value for every field, taken from values when present and
// from the field default otherwise.
func Fill(fields []Field, values map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		if v, ok := values[f.Name]; ok {
			out[f.Name] = v
		} else {
			out[f.Name] = f.Default
		}
	}
	return out
}
