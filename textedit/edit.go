// Package textedit holds the offset-based edit model shared by the differ,
// the rearranger and the resolution stage, plus conversion to LSP positions.
package textedit

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrOutOfRange = errors.New("edit range out of bounds")
	ErrOverlap    = errors.New("overlapping edits in batch")
)

// Edit replaces the half-open byte range [Start, End) of a text with NewText.
// A zero-width range is a pure insertion.
type Edit struct {
	Start   int
	End     int
	NewText string
}

// Len is the number of bytes the edit removes.
func (e Edit) Len() int { return e.End - e.Start }

// Delta is the change in text length after the edit is applied.
func (e Edit) Delta() int { return len(e.NewText) - e.Len() }

func (e Edit) String() string {
	return fmt.Sprintf("[%d,%d)->%q", e.Start, e.End, e.NewText)
}

// Overlaps reports whether two edits conflict within one batch. Insertions
// at the same offset conflict because their relative order is ambiguous.
func (e Edit) Overlaps(o Edit) bool {
	if e.Start == o.Start {
		return true
	}
	return e.Start < o.End && o.Start < e.End
}

// Sort orders edits by start offset, keeping input order for equal starts.
func Sort(edits []Edit) {
	slices.SortStableFunc(edits, func(a, b Edit) int {
		return a.Start - b.Start
	})
}

// Apply applies edits as one atomic batch. Every range refers to the
// original text, not to the result of earlier edits.
func Apply(text string, edits []Edit) (string, error) {
	if len(edits) == 0 {
		return text, nil
	}
	sorted := slices.Clone(edits)
	Sort(sorted)

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for i, e := range sorted {
		if e.Start < 0 || e.End < e.Start || e.End > len(text) {
			return "", fmt.Errorf("%w: %s in text of length %d", ErrOutOfRange, e, len(text))
		}
		if i > 0 && e.Start < last {
			return "", fmt.Errorf("%w: %s starts before %d", ErrOverlap, e, last)
		}
		b.WriteString(text[last:e.Start])
		b.WriteString(e.NewText)
		last = e.End
	}
	b.WriteString(text[last:])
	return b.String(), nil
}
