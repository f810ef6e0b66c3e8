package textedit

import (
	"sort"
	"unicode/utf8"

	"go.lsp.dev/protocol"
)

// Mapper converts between byte offsets and LSP positions for one immutable
// text. Columns are counted in UTF-16 code units.
type Mapper struct {
	text  string
	lines []int // byte offset of each line start
}

func NewMapper(text string) *Mapper {
	m := &Mapper{text: text, lines: []int{0}}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			m.lines = append(m.lines, i+1)
		}
	}
	return m
}

func (m *Mapper) Text() string { return m.text }

// lineEnd returns the offset of the newline ending line (or len(text)).
func (m *Mapper) lineEnd(line int) int {
	if line+1 < len(m.lines) {
		return m.lines[line+1] - 1
	}
	return len(m.text)
}

// Position converts a byte offset. Offsets are clamped into the text and
// an offset inside a multi-byte rune snaps back to the rune start.
func (m *Mapper) Position(offset int) protocol.Position {
	offset = max(0, min(offset, len(m.text)))
	line := sort.Search(len(m.lines), func(i int) bool { return m.lines[i] > offset }) - 1

	col := 0
	for i := m.lines[line]; i < offset; {
		r, size := utf8.DecodeRuneInString(m.text[i:])
		if i+size > offset {
			break
		}
		col += utf16Len(r)
		i += size
	}
	return protocol.Position{Line: uint32(line), Character: uint32(col)}
}

// Offset converts an LSP position. Lines past the end clamp to the end of
// the text and columns past the end of a line clamp to the line end.
func (m *Mapper) Offset(pos protocol.Position) int {
	line := int(pos.Line)
	if line >= len(m.lines) {
		return len(m.text)
	}
	end := m.lineEnd(line)
	want := int(pos.Character)

	i, col := m.lines[line], 0
	for i < end && col < want {
		r, size := utf8.DecodeRuneInString(m.text[i:])
		if col+utf16Len(r) > want {
			break
		}
		col += utf16Len(r)
		i += size
	}
	return i
}

func (m *Mapper) Range(start, end int) protocol.Range {
	return protocol.Range{Start: m.Position(start), End: m.Position(end)}
}

// Span converts a protocol range into byte offsets, swapping reversed ends.
func (m *Mapper) Span(r protocol.Range) (start, end int) {
	start, end = m.Offset(r.Start), m.Offset(r.End)
	if end < start {
		start, end = end, start
	}
	return start, end
}

func (m *Mapper) TextEdit(e Edit) protocol.TextEdit {
	return protocol.TextEdit{Range: m.Range(e.Start, e.End), NewText: e.NewText}
}

func (m *Mapper) TextEdits(edits []Edit) []protocol.TextEdit {
	out := make([]protocol.TextEdit, 0, len(edits))
	for _, e := range edits {
		out = append(out, m.TextEdit(e))
	}
	return out
}

func utf16Len(r rune) int {
	if r >= 0x10000 {
		return 2
	}
	return 1
}
