// Package rearrange splits a raw edit list into the primary completion edit
// and the additional edits a client applies next to it.
package rearrange

import (
	"errors"
	"fmt"
	"slices"

	"github.com/alexispurslane/tmpl-lsp/snippet"
	"github.com/alexispurslane/tmpl-lsp/textedit"
)

// ErrOverlappingEdits is returned in strict mode when two raw edits conflict.
var ErrOverlappingEdits = errors.New("raw edits overlap")

// Input is expressed in two coordinate spaces: Edits and Primary refer to
// Source, Placeholders refer to the text after all edits were applied.
type Input struct {
	Source       string
	Edits        []textedit.Edit
	PrimaryStart int
	PrimaryEnd   int
	Placeholders []snippet.Placeholder
}

type Options struct {
	// Strict rejects conflicting edits instead of keeping the later one.
	Strict bool
}

type Result struct {
	Primary    textedit.Edit
	Additional []textedit.Edit
	// Extended is set when the primary range had to grow.
	Extended bool
	// Dropped counts edits discarded because a later edit overlapped them.
	Dropped int
}

// Rearrange folds every edit inside the primary range into the primary
// edit, rebased to its start, and returns the rest as additional edits in
// ascending order. An edit straddling the primary range boundary extends the
// range until no edit straddles it. The range also grows to cover every
// placeholder, whose text is rendered as snippet syntax.
func Rearrange(in Input, opts Options) (Result, error) {
	if in.PrimaryStart < 0 || in.PrimaryEnd < in.PrimaryStart || in.PrimaryEnd > len(in.Source) {
		return Result{}, fmt.Errorf("%w: primary range [%d,%d) in text of length %d",
			textedit.ErrOutOfRange, in.PrimaryStart, in.PrimaryEnd, len(in.Source))
	}

	edits, dropped, err := normalize(in.Source, in.Edits, opts.Strict)
	if err != nil {
		return Result{}, err
	}

	start, end := in.PrimaryStart, in.PrimaryEnd
	for _, p := range in.Placeholders {
		start = min(start, toSource(edits, p.Start, true))
		end = max(end, toSource(edits, p.End, false))
	}
	for changed := true; changed; {
		changed = false
		for _, e := range edits {
			if contains(start, end, e) || e.End <= start || e.Start >= end {
				continue
			}
			start, end = min(start, e.Start), max(end, e.End)
			changed = true
		}
	}

	var (
		inside     []textedit.Edit
		additional []textedit.Edit
		base       = start
	)
	for _, e := range edits {
		switch {
		case contains(start, end, e):
			inside = append(inside, textedit.Edit{Start: e.Start - start, End: e.End - start, NewText: e.NewText})
		default:
			if e.End <= start {
				base += e.Delta()
			}
			additional = append(additional, e)
		}
	}

	region, err := textedit.Apply(in.Source[start:end], inside)
	if err != nil {
		return Result{}, err
	}
	text := region
	if len(in.Placeholders) > 0 {
		text = snippet.Render(region, base, in.Placeholders)
	}

	return Result{
		Primary:    textedit.Edit{Start: start, End: end, NewText: text},
		Additional: additional,
		Extended:   start != in.PrimaryStart || end != in.PrimaryEnd,
		Dropped:    dropped,
	}, nil
}

func contains(start, end int, e textedit.Edit) bool {
	return start <= e.Start && e.End <= end
}

// normalize validates edits and resolves conflicts in input order: a later
// edit replaces every earlier edit it overlaps. The result is sorted.
func normalize(source string, edits []textedit.Edit, strict bool) ([]textedit.Edit, int, error) {
	kept := make([]textedit.Edit, 0, len(edits))
	dropped := 0
	for _, e := range edits {
		if e.Start < 0 || e.End < e.Start || e.End > len(source) {
			return nil, 0, fmt.Errorf("%w: %s in text of length %d", textedit.ErrOutOfRange, e, len(source))
		}
		n := len(kept)
		kept = slices.DeleteFunc(kept, e.Overlaps)
		if removed := n - len(kept); removed > 0 {
			if strict {
				return nil, 0, fmt.Errorf("%w: %s", ErrOverlappingEdits, e)
			}
			dropped += removed
		}
		kept = append(kept, e)
	}
	textedit.Sort(kept)
	return kept, dropped, nil
}

// toSource maps an offset in the edited text back to the source. Offsets
// inside inserted text map to the edge of the replaced range, lower bounds
// to its start and upper bounds to its end.
func toSource(edits []textedit.Edit, offset int, lower bool) int {
	delta := 0
	for _, e := range edits {
		ts := e.Start + delta
		te := ts + len(e.NewText)
		switch {
		case offset < ts:
			return offset - delta
		case offset <= te:
			if lower {
				if offset == te && te > ts {
					return e.End
				}
				return e.Start
			}
			if offset == ts && te > ts {
				return e.Start
			}
			return e.End
		}
		delta += e.Delta()
	}
	return offset - delta
}
