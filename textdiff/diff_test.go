package textdiff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexispurslane/tmpl-lsp/textedit"
)

func TestDiffIdentity(t *testing.T) {
	assert.Empty(t, Diff("", ""))
	assert.Empty(t, Diff("same text\n", "same text\n"))
}

func TestDiffRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{"insert at end", "obj.", "obj.toString()"},
		{"insert into empty", "", "hello"},
		{"delete all", "hello", ""},
		{"replace middle", "for x in y", "for item in y"},
		{"two regions", "package main\n\nfunc main() {\n\tfo\n}\n",
			"package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println()\n}\n"},
		{"unicode", "héllo wörld", "hallo wörld 😀"},
		{"multiline", "a\nb\nc\nd\n", "a\nB\nc\nD\ne\n"},
		{"invalid utf-8", "ab\xffcd", "ab\xffXcd"},
		{"changed invalid byte", "a\xffb\xfe", "a\xfeb\xff\xc3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, d := range []Differ{{}, {SemanticCleanup: true}} {
				edits := d.Diff(tt.a, tt.b)
				require.NoError(t, Verify(tt.a, tt.b, edits))
				for i := 1; i < len(edits); i++ {
					assert.LessOrEqual(t, edits[i-1].End, edits[i].Start, "edits must be ordered and disjoint")
				}
			}
		})
	}
}

func TestDiffDisjointRegions(t *testing.T) {
	a := "import a\n\nbody\n"
	b := "import a\nimport b\n\nbody.call()\n"

	for _, d := range []Differ{{}, {SemanticCleanup: true}} {
		edits := d.Diff(a, b)
		require.NoError(t, Verify(a, b, edits))
		assert.GreaterOrEqual(t, len(edits), 2)
	}
}

func TestDiffKeepsImportApartFromCaretEdit(t *testing.T) {
	a := "package main\n\nfunc f() {\n\tpf\n}\n"
	b := "package main\n\nimport \"fmt\"\n\nfunc f() {\n\tfmt.Printf(\"%v\\n\", ARG)\n}\n"

	for _, d := range []Differ{{}, {SemanticCleanup: true}} {
		edits := d.Diff(a, b)
		require.NoError(t, Verify(a, b, edits))
		assert.GreaterOrEqual(t, len(edits), 2)
		for _, e := range edits {
			beforeCaretLine := e.End <= 26
			atCaret := e.Start >= 26 && e.End <= 28
			assert.True(t, beforeCaretLine || atCaret, "edit %v spans the import and the caret line", e)
		}
	}
}

func TestDiffByteOffsetsWithInvalidUTF8(t *testing.T) {
	edits := Diff("ab\xffcd", "ab\xffXcd")
	assert.Equal(t, []textedit.Edit{{Start: 3, End: 3, NewText: "X"}}, edits)

	edits = Diff("é\xff", "é\xfe")
	assert.Equal(t, []textedit.Edit{{Start: 2, End: 3, NewText: "\xfe"}}, edits)
}

func TestDiffIsDeterministic(t *testing.T) {
	a := "the quick brown fox jumps over the lazy dog"
	b := "the quick red fox leaps over a lazy cat"
	first := Diff(a, b)
	for range 10 {
		assert.Equal(t, first, Diff(a, b))
	}
}

func TestVerifyDetectsMismatch(t *testing.T) {
	err := Verify("abc", "abd", []textedit.Edit{{Start: 2, End: 3, NewText: "x"}})
	assert.ErrorIs(t, err, ErrInconsistent)

	err = Verify("abc", "abd", []textedit.Edit{{Start: 2, End: 9, NewText: "d"}})
	assert.ErrorIs(t, err, ErrInconsistent)
	assert.ErrorIs(t, err, textedit.ErrOutOfRange)
}
