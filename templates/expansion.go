package templates

import (
	"fmt"
	"strings"

	"github.com/alexispurslane/tmpl-lsp/snippet"
	"github.com/alexispurslane/tmpl-lsp/textedit"
)

type segment struct {
	name       string
	start, end int
}

// Expansion is a template inserted into a buffer, positioned on one of its
// variables. It implements snippet.Template and is single use.
type Expansion struct {
	tmpl     *Template
	names    []string
	segments []segment
	end      int
	current  int
}

var _ snippet.Template = (*Expansion)(nil)

// Expand inserts the template's imports into buf and replaces [start, end)
// with the template text, every variable filled with its default. Lines
// after the first take the indentation of the line the expansion starts on.
func Expand(t *Template, buf *textedit.Buffer, start, end int) (*Expansion, error) {
	if start < 0 || end < start || end > buf.Len() {
		return nil, fmt.Errorf("%w: expansion range [%d,%d)", textedit.ErrOutOfRange, start, end)
	}
	for _, imp := range t.Imports {
		at, text, ok := importPosition(buf.Text(), imp, t.ImportAfter)
		if !ok {
			continue
		}
		if err := buf.Insert(at, text); err != nil {
			return nil, fmt.Errorf("inserting %q: %w", imp, err)
		}
		if at <= start {
			start += len(text)
			end += len(text)
		}
	}

	indent := lineIndent(buf.Text(), start)
	defaults := make(map[string]string, len(t.Variables))
	exp := &Expansion{tmpl: t}
	for _, v := range t.Variables {
		defaults[v.Name] = v.Default
		exp.names = append(exp.names, v.Name)
	}

	var b strings.Builder
	for _, p := range t.parts {
		switch p.variable {
		case "":
			b.WriteString(strings.ReplaceAll(p.literal, "\n", "\n"+indent))
		case snippet.EndVariable:
			at := start + b.Len()
			exp.segments = append(exp.segments, segment{name: p.variable, start: at, end: at})
		default:
			at := start + b.Len()
			b.WriteString(defaults[p.variable])
			exp.segments = append(exp.segments, segment{name: p.variable, start: at, end: start + b.Len()})
		}
	}
	if err := buf.Replace(start, end, b.String()); err != nil {
		return nil, err
	}
	exp.end = start + b.Len()
	return exp, nil
}

func (e *Expansion) Variables() []string { return e.names }

func (e *Expansion) IsLastVariable() bool { return e.current >= len(e.names)-1 }

func (e *Expansion) Next() error {
	if e.IsLastVariable() {
		return fmt.Errorf("%w: no variable after %d", snippet.ErrTemplateState, e.current)
	}
	e.current++
	return nil
}

func (e *Expansion) SegmentCount() int { return len(e.segments) }

func (e *Expansion) SegmentRange(i int) (int, int) {
	return e.segments[i].start, e.segments[i].end
}

func (e *Expansion) SegmentVariable(i int) string { return e.segments[i].name }

func (e *Expansion) EndOffset() int { return e.end }

// Preview renders the template text with default values.
func (t *Template) Preview() string {
	defaults := make(map[string]string, len(t.Variables))
	for _, v := range t.Variables {
		defaults[v.Name] = v.Default
	}
	var b strings.Builder
	for _, p := range t.parts {
		if p.variable == "" {
			b.WriteString(p.literal)
		} else {
			b.WriteString(defaults[p.variable])
		}
	}
	return b.String()
}

// importPosition finds where line belongs in text. It goes after the last
// line sharing its first word, else after the first line starting with
// after, else at the top. ok is false when the line is already present.
func importPosition(text, line, after string) (at int, insert string, ok bool) {
	want := strings.TrimSpace(line)
	if want == "" {
		return 0, "", false
	}
	keyword := strings.Fields(want)[0]

	lastSame, anchor := -1, -1
	offset := 0
	for _, l := range strings.SplitAfter(text, "\n") {
		trimmed := strings.TrimSpace(l)
		if trimmed == want {
			return 0, "", false
		}
		next := offset + len(l)
		if fields := strings.Fields(trimmed); len(fields) > 0 && fields[0] == keyword {
			lastSame = next
		}
		if anchor < 0 && after != "" && strings.HasPrefix(l, after) {
			anchor = next
		}
		offset = next
	}

	newlineAt := func(pos int) string {
		if pos > 0 && text[pos-1] != '\n' {
			return "\n"
		}
		return ""
	}
	switch {
	case lastSame >= 0:
		return lastSame, newlineAt(lastSame) + want + "\n", true
	case anchor >= 0:
		return anchor, newlineAt(anchor) + "\n" + want + "\n", true
	default:
		return 0, want + "\n", true
	}
}

// lineIndent returns the leading whitespace of the line containing offset.
func lineIndent(text string, offset int) string {
	lineStart := strings.LastIndexByte(text[:offset], '\n') + 1
	end := lineStart
	for end < offset && (text[end] == ' ' || text[end] == '\t') {
		end++
	}
	return text[lineStart:end]
}
