// Package textdiff computes edit lists between two versions of a document.
package textdiff

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/alexispurslane/tmpl-lsp/textedit"
)

// ErrInconsistent means an edit list does not reproduce the target text.
var ErrInconsistent = errors.New("diff does not reproduce target")

// Differ produces ordered, disjoint edits in the coordinate space of the
// first text. Changes separated by unchanged text always stay separate
// edits. The zero value is usable.
type Differ struct {
	// SemanticCleanup slides each edit sideways to a word boundary where
	// that leaves the result unchanged. Unlike full semantic cleanup it does
	// not absorb unchanged text into edits.
	SemanticCleanup bool
}

// Diff returns the edits that turn a into b. Diff(a, a) is empty.
func (d Differ) Diff(a, b string) []textedit.Edit {
	if a == b {
		return nil
	}

	ra, offA := decode(a)
	rb, offB := decode(b)

	dmp := diffmatchpatch.New()
	// A deadline makes the output depend on machine speed.
	dmp.DiffTimeout = 0
	diffs := dmp.DiffMainRunes(ra, rb, false)
	if d.SemanticCleanup {
		diffs = dmp.DiffCleanupSemanticLossless(diffs)
	}

	var (
		edits   []textedit.Edit
		pending *textedit.Edit
		ia, ib  int // rune positions in a and b
	)
	flush := func() {
		if pending != nil {
			edits = append(edits, *pending)
			pending = nil
		}
	}
	for _, df := range diffs {
		n := utf8.RuneCountInString(df.Text)
		switch df.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			ia += n
			ib += n
		case diffmatchpatch.DiffDelete:
			if pending == nil {
				pending = &textedit.Edit{Start: offA[ia], End: offA[ia]}
			}
			ia += n
			pending.End = offA[ia]
		case diffmatchpatch.DiffInsert:
			if pending == nil {
				pending = &textedit.Edit{Start: offA[ia], End: offA[ia]}
			}
			pending.NewText += b[offB[ib]:offB[ib+n]]
			ib += n
		}
	}
	flush()
	return edits
}

// Diff uses the zero Differ.
func Diff(a, b string) []textedit.Edit {
	return Differ{}.Diff(a, b)
}

// invalidBase maps each byte of invalid UTF-8 onto its own rune in the
// last private use plane, so distinct bad bytes never compare equal.
const invalidBase = 0x10FF00

// decode splits s into runes for diffing. offs[i] is the byte offset of
// rune i, with len(s) appended.
func decode(s string) (runes []rune, offs []int) {
	runes = make([]rune, 0, len(s))
	offs = make([]int, 0, len(s)+1)
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			r = invalidBase + rune(s[i])
		}
		runes = append(runes, r)
		offs = append(offs, i)
		i += size
	}
	return runes, append(offs, len(s))
}

// Verify checks that applying edits to a yields b.
func Verify(a, b string, edits []textedit.Edit) error {
	got, err := textedit.Apply(a, edits)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInconsistent, err)
	}
	if got != b {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrInconsistent, len(got), len(b))
	}
	return nil
}
