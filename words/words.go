// Package words offers identifiers already present in a document.
package words

import (
	"context"
	"regexp"
	"strings"

	"github.com/alexispurslane/tmpl-lsp/completion"
	"github.com/alexispurslane/tmpl-lsp/templates"
	"github.com/alexispurslane/tmpl-lsp/textedit"
)

var identifier = regexp.MustCompile(`[\p{L}_][\p{L}\p{N}_]*`)

// Engine completes the identifier under the cursor from the other
// identifiers in the buffer.
type Engine struct {
	MinLength int
}

func (e *Engine) Name() string { return "words" }

func (e *Engine) Complete(ctx context.Context, req completion.Request) ([]completion.Candidate, error) {
	prefix := templates.IdentifierBefore(req.Text, req.Offset)
	if prefix == "" {
		return nil, nil
	}
	start := req.Offset - len(prefix)

	seen := map[string]bool{}
	var out []completion.Candidate
	for _, loc := range identifier.FindAllStringIndex(req.Text, -1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// skip the word being typed
		if loc[0] <= start && start <= loc[1] {
			continue
		}
		word := req.Text[loc[0]:loc[1]]
		if seen[word] || len(word) < e.MinLength || word == prefix || !strings.HasPrefix(word, prefix) {
			continue
		}
		seen[word] = true
		out = append(out, &candidate{word: word, prefix: prefix})
	}
	return out, nil
}

type candidate struct {
	word   string
	prefix string
}

func (c *candidate) LookupString() string { return c.word }

func (c *candidate) Prefix() string { return c.prefix }

func (c *candidate) Presentation() completion.Presentation {
	return completion.Presentation{Label: c.word, Detail: "word", Kind: "text"}
}

func (c *candidate) Simulate(buf *textedit.Buffer, caret int) (completion.Insertion, error) {
	start := caret - len(c.prefix)
	if err := buf.Replace(start, caret, c.word); err != nil {
		return completion.Insertion{}, err
	}
	return completion.Insertion{Caret: start + len(c.word)}, nil
}
