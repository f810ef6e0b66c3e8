package completion

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/encoding/json"
	"go.lsp.dev/protocol"
)

// Snapshot is the immutable result of one enumeration. Candidate order is
// the order the client received them in.
type Snapshot struct {
	Version    int64
	URI        protocol.DocumentURI
	Text       string
	Offset     int
	Language   string
	Candidates []Candidate
	Created    time.Time
}

// Candidate returns the candidate at index, or nil.
func (s *Snapshot) Candidate(index int) Candidate {
	if index < 0 || index >= len(s.Candidates) {
		return nil
	}
	return s.Candidates[index]
}

// ReplaceStart is where the text a candidate replaces begins.
func (s *Snapshot) ReplaceStart(c Candidate) int {
	return max(0, s.Offset-len(c.Prefix()))
}

// Cache holds the latest snapshot. Readers never block and always see a
// complete snapshot.
type Cache struct {
	current atomic.Pointer[Snapshot]
}

func NewCache() *Cache {
	c := &Cache{}
	c.current.Store(&Snapshot{})
	return c
}

// Get returns the current snapshot. The empty snapshot has version 0.
func (c *Cache) Get() *Snapshot {
	return c.current.Load()
}

// Publish replaces the current snapshot with the one built for the next
// version. build may run more than once when publishers race, so it must
// not have side effects.
func (c *Cache) Publish(build func(version int64) *Snapshot) *Snapshot {
	for {
		old := c.current.Load()
		next := build(old.Version + 1)
		next.Version = old.Version + 1
		if c.current.CompareAndSwap(old, next) {
			return next
		}
	}
}

// Handle locates a candidate: the snapshot version plus its index. It
// travels through the client as the completion item's data.
type Handle struct {
	Version int64 `json:"version"`
	Index   int   `json:"index"`
}

func (h Handle) String() string {
	return fmt.Sprintf("v%d#%d", h.Version, h.Index)
}

// DecodeHandle reads a handle back from completion item data.
func DecodeHandle(data any) (Handle, error) {
	var h Handle
	var raw []byte
	switch d := data.(type) {
	case nil:
		return h, fmt.Errorf("completion item has no data")
	case json.RawMessage:
		raw = d
	case []byte:
		raw = d
	default:
		var err error
		if raw, err = json.Marshal(d); err != nil {
			return h, fmt.Errorf("encoding item data: %w", err)
		}
	}
	if err := json.Unmarshal(raw, &h); err != nil {
		return h, fmt.Errorf("decoding completion handle: %w", err)
	}
	if h.Version <= 0 {
		return h, fmt.Errorf("invalid completion handle %s", h)
	}
	return h, nil
}
