package textedit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		edits []Edit
		want  string
	}{
		{"no edits", "abc", nil, "abc"},
		{"insertion", "obj.", []Edit{{4, 4, "toString()"}}, "obj.toString()"},
		{"replace and delete", "hello world", []Edit{{6, 11, "there"}, {0, 1, ""}}, "ello there"},
		{"original coordinates", "abcdef", []Edit{{0, 1, "XYZ"}, {5, 6, "!"}}, "XYZbcde!"},
		{"same offset keeps order", "ab", []Edit{{1, 1, "x"}, {1, 1, "y"}}, "axyb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Apply(tt.text, tt.edits)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyRejectsInvalidBatches(t *testing.T) {
	_, err := Apply("abc", []Edit{{2, 5, ""}})
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = Apply("abcdef", []Edit{{0, 3, "x"}, {2, 4, "y"}})
	assert.ErrorIs(t, err, ErrOverlap)
}

func TestBuffer(t *testing.T) {
	b := NewBuffer("obj.")
	require.NoError(t, b.Insert(4, "toString()"))
	require.NoError(t, b.Replace(0, 3, "self"))
	assert.Equal(t, "self.toString()", b.Text())

	s, err := b.Slice(5, 13)
	require.NoError(t, err)
	assert.Equal(t, "toString", s)

	assert.ErrorIs(t, b.Delete(3, 100), ErrOutOfRange)
	assert.Equal(t, "self.toString()", b.Text(), "failed edits leave the buffer untouched")
}

func TestMapperRoundTrip(t *testing.T) {
	text := "package main\n\nvar s = \"héllo 😀 x\"\n\tend"
	m := NewMapper(text)

	for off := 0; off <= len(text); off++ {
		if off < len(text) && !isRuneStart(text[off]) {
			continue
		}
		pos := m.Position(off)
		assert.Equal(t, off, m.Offset(pos), "offset %d via %+v", off, pos)
	}
}

func TestMapperUTF16Columns(t *testing.T) {
	m := NewMapper("a😀b\nxy")

	assert.Equal(t, protocol.Position{Line: 0, Character: 3}, m.Position(5)) // after the emoji
	assert.Equal(t, 5, m.Offset(protocol.Position{Line: 0, Character: 3}))
	assert.Equal(t, protocol.Position{Line: 1, Character: 1}, m.Position(8))

	// clamping
	assert.Equal(t, 6, m.Offset(protocol.Position{Line: 0, Character: 99}))
	assert.Equal(t, 9, m.Offset(protocol.Position{Line: 7, Character: 0}))
	assert.Equal(t, protocol.Position{Line: 1, Character: 2}, m.Position(500))
}

func TestMapperSpanAndEdits(t *testing.T) {
	m := NewMapper("one\ntwo\n")
	start, end := m.Span(protocol.Range{
		Start: protocol.Position{Line: 1, Character: 3},
		End:   protocol.Position{Line: 0, Character: 1},
	})
	assert.Equal(t, 1, start)
	assert.Equal(t, 7, end)

	edits := m.TextEdits([]Edit{{4, 7, "TWO"}})
	require.Len(t, edits, 1)
	assert.Equal(t, protocol.Range{
		Start: protocol.Position{Line: 1, Character: 0},
		End:   protocol.Position{Line: 1, Character: 3},
	}, edits[0].Range)
	assert.Equal(t, "TWO", edits[0].NewText)
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
