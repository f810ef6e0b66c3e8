// Package snippet turns live-template stops into LSP snippet placeholders.
package snippet

import (
	"errors"
	"fmt"
)

// EndVariable names the segment marking the final caret position.
const EndVariable = "END"

var ErrTemplateState = errors.New("template engine in unexpected state")

// Template is a template expansion that has already been inserted into a
// buffer. Implementations are stateful and not reentrant: Next moves the
// expansion to the following variable in declaration order.
type Template interface {
	// Variables lists the declared variables in declaration order.
	Variables() []string
	IsLastVariable() bool
	Next() error

	SegmentCount() int
	// SegmentRange is the byte range of segment i in the buffer.
	SegmentRange(i int) (start, end int)
	SegmentVariable(i int) string
	// EndOffset is where the caret lands once the expansion finishes.
	EndOffset() int
}

// State of a Stepper.
type State int

const (
	AwaitingStop State = iota
	Done
)

// Stepper walks a template through its stops, accepting the default text
// of each one. It never confirms more stops than there are variables.
type Stepper struct {
	tmpl  Template
	state State
	stop  int // 1-based index of the stop awaiting confirmation
	limit int
}

func NewStepper(t Template) *Stepper {
	s := &Stepper{tmpl: t, stop: 1, limit: len(t.Variables())}
	if s.limit == 0 {
		s.state = Done
	}
	return s
}

func (s *Stepper) State() State { return s.state }

// Stop returns the index of the stop awaiting confirmation.
func (s *Stepper) Stop() int { return s.stop }

// Advance confirms the current stop.
func (s *Stepper) Advance() error {
	if s.state == Done {
		return fmt.Errorf("%w: advance after completion", ErrTemplateState)
	}
	if s.tmpl.IsLastVariable() || s.stop >= s.limit {
		s.state = Done
		return nil
	}
	if err := s.tmpl.Next(); err != nil {
		return fmt.Errorf("advancing to stop %d: %w", s.stop+1, err)
	}
	s.stop++
	return nil
}

// Run advances until Done.
func (s *Stepper) Run() error {
	for s.state != Done {
		if err := s.Advance(); err != nil {
			return err
		}
	}
	return nil
}
