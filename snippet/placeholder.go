package snippet

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Placeholder is a tab stop over [Start, End) in the text produced by the
// insertion. Index 0 is the final caret.
type Placeholder struct {
	Index int
	Start int
	End   int
	Text  string
}

func (p Placeholder) String() string {
	return fmt.Sprintf("$%d[%d,%d)%q", p.Index, p.Start, p.End, p.Text)
}

// Caret is the only stop recorded when no template was involved.
func Caret(offset int) []Placeholder {
	return []Placeholder{{Index: 0, Start: offset, End: offset}}
}

// Extract runs the template to completion and records one placeholder per
// segment. Stops are numbered by declaration order starting at 1; the END
// segment becomes 0. When the template has no END segment a zero-width stop
// 0 is added at its end offset.
func Extract(t Template, text string) ([]Placeholder, error) {
	if err := NewStepper(t).Run(); err != nil {
		return nil, err
	}

	index := make(map[string]int)
	for i, name := range t.Variables() {
		if _, ok := index[name]; !ok {
			index[name] = i + 1
		}
	}

	var (
		out    []Placeholder
		hasEnd bool
	)
	for i := 0; i < t.SegmentCount(); i++ {
		name := t.SegmentVariable(i)
		start, end := t.SegmentRange(i)
		if start < 0 || end < start || end > len(text) {
			return nil, fmt.Errorf("%w: segment %q at [%d,%d) outside text of length %d",
				ErrTemplateState, name, start, end, len(text))
		}

		var n int
		if name == EndVariable {
			hasEnd = true
		} else if idx, ok := index[name]; ok {
			n = idx
		} else {
			return nil, fmt.Errorf("%w: segment for undeclared variable %q", ErrTemplateState, name)
		}
		out = append(out, Placeholder{Index: n, Start: start, End: end, Text: text[start:end]})
	}
	if !hasEnd {
		end := t.EndOffset()
		if end < 0 || end > len(text) {
			return nil, fmt.Errorf("%w: end offset %d outside text", ErrTemplateState, end)
		}
		out = append(out, Caret(end)...)
	}
	Sort(out)
	return out, nil
}

// Sort orders placeholders by start offset, then by index.
func Sort(ps []Placeholder) {
	slices.SortStableFunc(ps, func(a, b Placeholder) int {
		if a.Start != b.Start {
			return a.Start - b.Start
		}
		return a.Index - b.Index
	})
}

// Render returns text as snippet syntax, where text begins at offset base
// of the coordinate space the placeholders use. Placeholders outside the
// text or overlapping an earlier one are left out.
func Render(text string, base int, ps []Placeholder) string {
	sorted := slices.Clone(ps)
	Sort(sorted)

	var b strings.Builder
	pos := 0
	for _, p := range sorted {
		start, end := p.Start-base, p.End-base
		if start < pos || end > len(text) {
			continue
		}
		b.WriteString(Escape(text[pos:start]))
		b.WriteString("${")
		b.WriteString(strconv.Itoa(p.Index))
		if end > start {
			b.WriteByte(':')
			b.WriteString(placeholderEscaper.Replace(text[start:end]))
		}
		b.WriteByte('}')
		pos = end
	}
	b.WriteString(Escape(text[pos:]))
	return b.String()
}

var (
	escaper            = strings.NewReplacer(`\`, `\\`, `$`, `\$`)
	placeholderEscaper = strings.NewReplacer(`\`, `\\`, `$`, `\$`, `}`, `\}`)
)

// Escape quotes the characters that have meaning in snippet text outside
// a placeholder. A closing brace only needs quoting inside ${N:...}.
func Escape(s string) string {
	return escaper.Replace(s)
}
