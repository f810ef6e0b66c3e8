package textedit

import "fmt"

// Buffer is a mutable text document used for simulating insertions. It is
// not safe for concurrent use.
type Buffer struct {
	text string
}

func NewBuffer(text string) *Buffer {
	return &Buffer{text: text}
}

func (b *Buffer) Text() string { return b.text }

func (b *Buffer) Len() int { return len(b.text) }

// Slice returns the text in [start, end).
func (b *Buffer) Slice(start, end int) (string, error) {
	if err := b.check(start, end); err != nil {
		return "", err
	}
	return b.text[start:end], nil
}

// Replace replaces [start, end) with s.
func (b *Buffer) Replace(start, end int, s string) error {
	if err := b.check(start, end); err != nil {
		return err
	}
	b.text = b.text[:start] + s + b.text[end:]
	return nil
}

func (b *Buffer) Insert(offset int, s string) error {
	return b.Replace(offset, offset, s)
}

func (b *Buffer) Delete(start, end int) error {
	return b.Replace(start, end, "")
}

func (b *Buffer) check(start, end int) error {
	if start < 0 || end < start || end > len(b.text) {
		return fmt.Errorf("%w: [%d,%d) in buffer of length %d", ErrOutOfRange, start, end, len(b.text))
	}
	return nil
}
