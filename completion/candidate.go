package completion

import (
	"context"
	"fmt"
	"strings"

	"go.lsp.dev/protocol"
	"golang.org/x/sync/errgroup"

	"github.com/alexispurslane/tmpl-lsp/snippet"
	"github.com/alexispurslane/tmpl-lsp/textedit"
)

// Request is the input to enumeration.
type Request struct {
	URI      protocol.DocumentURI
	Text     string
	Offset   int
	Language string
}

// Presentation is the display metadata of a candidate.
type Presentation struct {
	Label      string
	Detail     string
	Kind       string
	Deprecated bool
}

// Insertion is what a simulated insertion leaves behind: the caret offset
// and, when the candidate expanded a live template, the running template.
type Insertion struct {
	Caret    int
	Template snippet.Template
}

// Candidate is one opaque completion suggestion.
type Candidate interface {
	// LookupString is the text the candidate inserts when accepted as-is.
	LookupString() string
	// Prefix is the text before the caret the candidate replaces.
	Prefix() string
	Presentation() Presentation
	// Simulate performs the full insertion into buf with the caret at
	// offset. It is only called from a resolution's execution domain.
	Simulate(buf *textedit.Buffer, caret int) (Insertion, error)
}

// Documenter is implemented by candidates whose documentation is costly
// enough to defer until resolution.
type Documenter interface {
	Documentation() string
}

// Engine produces candidates for a cursor position.
type Engine interface {
	Name() string
	Complete(ctx context.Context, req Request) ([]Candidate, error)
}

// Engines queries every engine concurrently and concatenates the results in
// engine order.
type Engines []Engine

func (es Engines) Name() string {
	names := make([]string, 0, len(es))
	for _, e := range es {
		names = append(names, e.Name())
	}
	return strings.Join(names, "+")
}

func (es Engines) Complete(ctx context.Context, req Request) ([]Candidate, error) {
	results := make([][]Candidate, len(es))
	g, ctx := errgroup.WithContext(ctx)
	for i, e := range es {
		g.Go(func() error {
			cands, err := e.Complete(ctx, req)
			if err != nil {
				return fmt.Errorf("%s: %w", e.Name(), err)
			}
			results[i] = cands
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Candidate
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

var kinds = map[string]protocol.CompletionItemKind{
	"text":          protocol.CompletionItemKindText,
	"method":        protocol.CompletionItemKindMethod,
	"function":      protocol.CompletionItemKindFunction,
	"constructor":   protocol.CompletionItemKindConstructor,
	"field":         protocol.CompletionItemKindField,
	"variable":      protocol.CompletionItemKindVariable,
	"class":         protocol.CompletionItemKindClass,
	"interface":     protocol.CompletionItemKindInterface,
	"module":        protocol.CompletionItemKindModule,
	"property":      protocol.CompletionItemKindProperty,
	"value":         protocol.CompletionItemKindValue,
	"enum":          protocol.CompletionItemKindEnum,
	"keyword":       protocol.CompletionItemKindKeyword,
	"snippet":       protocol.CompletionItemKindSnippet,
	"file":          protocol.CompletionItemKindFile,
	"folder":        protocol.CompletionItemKindFolder,
	"constant":      protocol.CompletionItemKindConstant,
	"struct":        protocol.CompletionItemKindStruct,
	"operator":      protocol.CompletionItemKindOperator,
	"typeParameter": protocol.CompletionItemKindTypeParameter,
}

// Kind maps an engine kind name to the protocol kind, falling back to text.
func Kind(name string) protocol.CompletionItemKind {
	if k, ok := kinds[name]; ok {
		return k
	}
	return protocol.CompletionItemKindText
}
