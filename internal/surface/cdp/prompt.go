package cdp

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/dshills/textstorm/internal/form"
)

// Prompter asks for form fields with window.prompt, one field at a time.
// Dismissing any prompt cancels the whole form.
type Prompter struct {
	page *Page
}

// Prompter returns a form prompter bound to this page.
func (p *Page) Prompter() *Prompter {
	return &Prompter{page: p}
}

// Prompt implements form.Prompter.
func (pr *Prompter) Prompt(ctx context.Context, fields []form.Field) (map[string]string, error) {
	values := make(map[string]string, len(fields))
	for _, f := range fields {
		res, err := pr.page.page.Context(ctx).Eval(
			`(label, def) => JSON.stringify(window.__textstorm.prompt(label, def))`, f.Name, f.Default)
		if err != nil {
			return nil, fmt.Errorf("cdp: prompt %s: %w", f.Name, err)
		}
		v := gjson.Parse(res.Value.Str())
		if v.Type == gjson.Null {
			return nil, form.ErrCanceled
		}
		values[f.Name] = v.String()
	}
	return values, nil
}
