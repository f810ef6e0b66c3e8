package templates

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/alexispurslane/tmpl-lsp/completion"
	"github.com/alexispurslane/tmpl-lsp/textedit"
)

// Engine offers the library's templates whose abbreviation starts with the
// identifier before the cursor.
type Engine struct {
	lib *Library
}

func NewEngine(lib *Library) *Engine {
	return &Engine{lib: lib}
}

func (e *Engine) Name() string { return "templates" }

func (e *Engine) Complete(ctx context.Context, req completion.Request) ([]completion.Candidate, error) {
	prefix := IdentifierBefore(req.Text, req.Offset)
	start := req.Offset - len(prefix)
	// Member access is not a template context.
	if start > 0 && req.Text[start-1] == '.' {
		return nil, nil
	}

	lower := strings.ToLower(prefix)
	var out []completion.Candidate
	for _, t := range e.lib.Templates(req.Language) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.HasPrefix(strings.ToLower(t.Abbreviation), lower) {
			out = append(out, &Candidate{tmpl: t, prefix: prefix})
		}
	}
	return out, nil
}

// IdentifierBefore returns the identifier characters ending at offset.
func IdentifierBefore(text string, offset int) string {
	offset = max(0, min(offset, len(text)))
	start := offset
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:start])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		start -= size
	}
	return text[start:offset]
}

// Candidate is a template offered for completion.
type Candidate struct {
	tmpl   *Template
	prefix string
}

func (c *Candidate) Template() *Template { return c.tmpl }

func (c *Candidate) LookupString() string { return c.tmpl.Abbreviation }

func (c *Candidate) Prefix() string { return c.prefix }

func (c *Candidate) Presentation() completion.Presentation {
	return completion.Presentation{
		Label:      c.tmpl.Abbreviation,
		Detail:     c.tmpl.Description,
		Kind:       "snippet",
		Deprecated: c.tmpl.Deprecated,
	}
}

// Documentation previews the expansion with default values.
func (c *Candidate) Documentation() string {
	var b strings.Builder
	if c.tmpl.Description != "" {
		b.WriteString(c.tmpl.Description)
		b.WriteString("\n\n")
	}
	b.WriteString("```\n")
	b.WriteString(c.tmpl.Preview())
	b.WriteString("\n```")
	if len(c.tmpl.Imports) > 0 {
		b.WriteString("\n\nAdds:\n")
		for _, imp := range c.tmpl.Imports {
			b.WriteString("- `")
			b.WriteString(imp)
			b.WriteString("`\n")
		}
	}
	return b.String()
}

func (c *Candidate) Simulate(buf *textedit.Buffer, caret int) (completion.Insertion, error) {
	exp, err := Expand(c.tmpl, buf, caret-len(c.prefix), caret)
	if err != nil {
		return completion.Insertion{}, err
	}
	return completion.Insertion{Caret: exp.EndOffset(), Template: exp}, nil
}
