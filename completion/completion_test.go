package completion

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"

	"github.com/alexispurslane/tmpl-lsp/snippet"
	"github.com/alexispurslane/tmpl-lsp/textedit"
)

type fakeCandidate struct {
	lookup   string
	prefix   string
	doc      string
	simulate func(buf *textedit.Buffer, caret int) (Insertion, error)
}

func (c *fakeCandidate) LookupString() string { return c.lookup }
func (c *fakeCandidate) Prefix() string       { return c.prefix }
func (c *fakeCandidate) Presentation() Presentation {
	return Presentation{Label: c.lookup, Kind: "method"}
}
func (c *fakeCandidate) Documentation() string { return c.doc }

func (c *fakeCandidate) Simulate(buf *textedit.Buffer, caret int) (Insertion, error) {
	if c.simulate != nil {
		return c.simulate(buf, caret)
	}
	start := caret - len(c.prefix)
	if err := buf.Replace(start, caret, c.lookup); err != nil {
		return Insertion{}, err
	}
	return Insertion{Caret: start + len(c.lookup)}, nil
}

type fakeEngine struct {
	name  string
	cands []Candidate
	err   error
	delay time.Duration
}

func (e *fakeEngine) Name() string { return e.name }

func (e *fakeEngine) Complete(ctx context.Context, req Request) ([]Candidate, error) {
	if e.delay > 0 {
		time.Sleep(e.delay)
	}
	return e.cands, e.err
}

func objRequest() Request {
	return Request{URI: "file:///tmp/Main.java", Text: "obj.", Offset: 4, Language: "java"}
}

func TestEnumeratePublishesSnapshots(t *testing.T) {
	engine := &fakeEngine{name: "fake", cands: []Candidate{
		&fakeCandidate{lookup: "toString()"},
		&fakeCandidate{lookup: "hashCode()"},
	}}
	s := NewSession(engine, Options{})
	assert.Equal(t, int64(0), s.Snapshot().Version)

	snap, entries, err := s.Enumerate(context.Background(), objRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Version)
	require.Len(t, entries, 2)
	assert.Equal(t, "toString()", entries[0].Label)
	assert.Equal(t, Handle{Version: 1, Index: 0}, entries[0].Handle)
	assert.Equal(t, Handle{Version: 1, Index: 1}, entries[1].Handle)

	snap, _, err = s.Enumerate(context.Background(), objRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Version)
	assert.Same(t, snap, s.Snapshot())
}

func TestEnumerationFailureKeepsSnapshot(t *testing.T) {
	engine := &fakeEngine{name: "fake", cands: []Candidate{&fakeCandidate{lookup: "a"}}}
	s := NewSession(engine, Options{})
	_, _, err := s.Enumerate(context.Background(), objRequest())
	require.NoError(t, err)

	engine.err = errors.New("index not ready")
	_, entries, err := s.Enumerate(context.Background(), objRequest())
	assert.ErrorIs(t, err, ErrEnumeration)
	assert.Empty(t, entries)
	assert.Equal(t, int64(1), s.Snapshot().Version)

	_, _, err = s.Enumerate(context.Background(), Request{Text: "ab", Offset: 3})
	assert.ErrorIs(t, err, ErrEnumeration)
}

func TestResolveInsertsCaretPlaceholder(t *testing.T) {
	s := NewSession(&fakeEngine{name: "fake", cands: []Candidate{
		&fakeCandidate{lookup: "toString()", doc: "Returns a string."},
	}}, Options{SemanticDiff: true})
	_, entries, err := s.Enumerate(context.Background(), objRequest())
	require.NoError(t, err)

	res, err := s.Resolve(context.Background(), ResolveRequest{Handle: entries[0].Handle})
	require.NoError(t, err)

	assert.Equal(t, textedit.Edit{Start: 4, End: 4, NewText: "toString()${0}"}, res.Primary)
	assert.Empty(t, res.Additional)
	assert.False(t, res.Extended)
	assert.Equal(t, "Returns a string.", res.Documentation)
	assert.Equal(t, protocol.TextEdit{
		Range: protocol.Range{
			Start: protocol.Position{Line: 0, Character: 4},
			End:   protocol.Position{Line: 0, Character: 4},
		},
		NewText: "toString()${0}",
	}, res.PrimaryTextEdit())
	assert.Equal(t, int64(1), s.Snapshot().Version, "resolution must not touch the cache")
}

func TestResolveStaleHandleIsNoop(t *testing.T) {
	s := NewSession(&fakeEngine{name: "fake", cands: []Candidate{&fakeCandidate{lookup: "toString()"}}}, Options{})
	_, first, err := s.Enumerate(context.Background(), objRequest())
	require.NoError(t, err)
	latest, _, err := s.Enumerate(context.Background(), objRequest())
	require.NoError(t, err)

	res, err := s.Resolve(context.Background(), ResolveRequest{Handle: first[0].Handle})
	assert.ErrorIs(t, err, ErrStaleVersion)
	assert.Nil(t, res)
	assert.Same(t, latest, s.Snapshot())

	_, err = s.Resolve(context.Background(), ResolveRequest{Handle: Handle{Version: 2, Index: 9}})
	assert.ErrorIs(t, err, ErrStaleVersion)
}

// loopTemplate stands in for the template engine after a "fori" expansion.
type loopTemplate struct {
	vars     []string
	segments [][3]any
	end      int
	current  int
}

func (l *loopTemplate) Variables() []string  { return l.vars }
func (l *loopTemplate) IsLastVariable() bool { return l.current == len(l.vars)-1 }
func (l *loopTemplate) Next() error          { l.current++; return nil }
func (l *loopTemplate) SegmentCount() int    { return len(l.segments) }
func (l *loopTemplate) SegmentRange(i int) (int, int) {
	return l.segments[i][1].(int), l.segments[i][2].(int)
}
func (l *loopTemplate) SegmentVariable(i int) string { return l.segments[i][0].(string) }
func (l *loopTemplate) EndOffset() int             { return l.end }

func TestResolveTemplateWithAdditionalEdit(t *testing.T) {
	source := "package main\n\nfunc f() {\n\tfori\n}\n"
	offset := strings.Index(source, "fori") + 4
	cand := &fakeCandidate{lookup: "fori", prefix: "fori"}
	cand.simulate = func(buf *textedit.Buffer, caret int) (Insertion, error) {
		imp := "import \"fmt\"\n\n"
		if err := buf.Insert(14, imp); err != nil {
			return Insertion{}, err
		}
		caret += len(imp)
		start := caret - 4
		if err := buf.Replace(start, caret, "for i < n {}"); err != nil {
			return Insertion{}, err
		}
		return Insertion{Template: &loopTemplate{
			vars: []string{"LIMIT", "INDEX"},
			segments: [][3]any{
				{"INDEX", start + 4, start + 5},
				{"LIMIT", start + 8, start + 9},
				{"END", start + 11, start + 11},
			},
		}}, nil
	}

	s := NewSession(&fakeEngine{name: "fake", cands: []Candidate{cand}}, Options{SemanticDiff: true})
	_, entries, err := s.Enumerate(context.Background(), Request{Text: source, Offset: offset, Language: "go"})
	require.NoError(t, err)

	res, err := s.Resolve(context.Background(), ResolveRequest{Handle: entries[0].Handle})
	require.NoError(t, err)
	assert.Equal(t, textedit.Edit{Start: offset - 4, End: offset, NewText: "for ${2:i} < ${1:n} {${0}}"}, res.Primary)

	applied, err := textedit.Apply(source, res.Additional)
	require.NoError(t, err)
	assert.Equal(t, "package main\n\nimport \"fmt\"\n\nfunc f() {\n\tfori\n}\n", applied)

	edits := res.AdditionalTextEdits()
	require.NotEmpty(t, edits)
	assert.Less(t, edits[0].Range.Start.Line, uint32(3))
}

func TestResolveSimulationFailure(t *testing.T) {
	cand := &fakeCandidate{lookup: "x", simulate: func(*textedit.Buffer, int) (Insertion, error) {
		return Insertion{}, errors.New("psi tree invalid")
	}}
	panicky := &fakeCandidate{lookup: "y", simulate: func(*textedit.Buffer, int) (Insertion, error) {
		panic("engine bug")
	}}
	s := NewSession(&fakeEngine{name: "fake", cands: []Candidate{cand, panicky}}, Options{})
	_, entries, err := s.Enumerate(context.Background(), objRequest())
	require.NoError(t, err)

	_, err = s.Resolve(context.Background(), ResolveRequest{Handle: entries[0].Handle})
	assert.ErrorIs(t, err, ErrSimulation)
	_, err = s.Resolve(context.Background(), ResolveRequest{Handle: entries[1].Handle})
	assert.ErrorIs(t, err, ErrSimulation)
}

func TestResolveEmptyDiff(t *testing.T) {
	cand := &fakeCandidate{lookup: "obj", prefix: "obj"}
	s := NewSession(&fakeEngine{name: "fake", cands: []Candidate{cand}}, Options{})
	_, entries, err := s.Enumerate(context.Background(), Request{Text: "obj", Offset: 3})
	require.NoError(t, err)

	_, err = s.Resolve(context.Background(), ResolveRequest{Handle: entries[0].Handle})
	assert.ErrorIs(t, err, ErrEmptyDiff)
}

func TestResolveCancelled(t *testing.T) {
	release := make(chan struct{})
	blocking := &fakeCandidate{lookup: "slow", simulate: func(buf *textedit.Buffer, caret int) (Insertion, error) {
		<-release
		return Insertion{Caret: caret}, buf.Insert(caret, "slow")
	}}
	s := NewSession(&fakeEngine{name: "fake", cands: []Candidate{&fakeCandidate{lookup: "a"}, blocking}}, Options{})
	_, entries, err := s.Enumerate(context.Background(), objRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.Resolve(ctx, ResolveRequest{Handle: entries[0].Handle})
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Nil(t, res)

	ctx, cancel = context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	res, err = s.Resolve(ctx, ResolveRequest{Handle: entries[1].Handle})
	close(release)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Nil(t, res)
	assert.Equal(t, int64(1), s.Snapshot().Version)
}

func TestResolveTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	blocking := &fakeCandidate{lookup: "slow", simulate: func(buf *textedit.Buffer, caret int) (Insertion, error) {
		<-release
		return Insertion{Caret: caret}, nil
	}}
	s := NewSession(&fakeEngine{name: "fake", cands: []Candidate{blocking}}, Options{ResolveTimeout: 10 * time.Millisecond})
	_, entries, err := s.Enumerate(context.Background(), objRequest())
	require.NoError(t, err)

	_, err = s.Resolve(context.Background(), ResolveRequest{Handle: entries[0].Handle})
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestAbandonedSimulationKeepsConcurrencySlot(t *testing.T) {
	release := make(chan struct{})
	blocking := &fakeCandidate{lookup: "slow", simulate: func(buf *textedit.Buffer, caret int) (Insertion, error) {
		<-release
		return Insertion{Caret: caret}, buf.Insert(caret, "slow")
	}}
	engine := &fakeEngine{name: "fake", cands: []Candidate{blocking, &fakeCandidate{lookup: "toString()"}}}
	s := NewSession(engine, Options{MaxConcurrentResolves: 1})
	_, entries, err := s.Enumerate(context.Background(), objRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Resolve(ctx, ResolveRequest{Handle: entries[0].Handle})
	require.ErrorIs(t, err, ErrCancelled)

	ctx, cancel = context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Resolve(ctx, ResolveRequest{Handle: entries[1].Handle})
	assert.ErrorIs(t, err, ErrCancelled, "the unfinished simulation still holds the only slot")

	close(release)
	assert.Eventually(t, func() bool {
		res, err := s.Resolve(context.Background(), ResolveRequest{Handle: entries[1].Handle})
		return err == nil && res.Primary.NewText == "toString()${0}"
	}, time.Second, 5*time.Millisecond)
}

func TestResolveUsesClientRange(t *testing.T) {
	s := NewSession(&fakeEngine{name: "fake", cands: []Candidate{&fakeCandidate{lookup: "toString()"}}}, Options{})
	_, entries, err := s.Enumerate(context.Background(), objRequest())
	require.NoError(t, err)

	res, err := s.Resolve(context.Background(), ResolveRequest{
		Handle: entries[0].Handle,
		Range: &protocol.Range{
			Start: protocol.Position{Line: 0, Character: 3},
			End:   protocol.Position{Line: 0, Character: 4},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, textedit.Edit{Start: 3, End: 4, NewText: ".toString()${0}"}, res.Primary)
}

func TestConcurrentEnumerateAndResolve(t *testing.T) {
	s := NewSession(&fakeEngine{name: "fake", cands: []Candidate{&fakeCandidate{lookup: "toString()"}}}, Options{MaxConcurrentResolves: 2})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, err := s.Enumerate(context.Background(), objRequest())
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			snap := s.Snapshot()
			res, err := s.Resolve(context.Background(), ResolveRequest{Handle: Handle{Version: snap.Version, Index: 0}})
			if err != nil {
				assert.ErrorIs(t, err, ErrStaleVersion)
				return
			}
			assert.Equal(t, "toString()${0}", res.Primary.NewText)
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(8), s.Snapshot().Version)
}

func TestCachePublishIsAtomic(t *testing.T) {
	c := NewCache()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[int64]bool{}
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap := c.Publish(func(v int64) *Snapshot { return &Snapshot{Text: "x"} })
			mu.Lock()
			defer mu.Unlock()
			assert.False(t, seen[snap.Version], "version %d published twice", snap.Version)
			seen[snap.Version] = true
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(50), c.Get().Version)
}

func TestEnginesKeepOrder(t *testing.T) {
	a := &fakeCandidate{lookup: "a"}
	b := &fakeCandidate{lookup: "b"}
	engines := Engines{
		&fakeEngine{name: "slow", cands: []Candidate{a}, delay: 10 * time.Millisecond},
		&fakeEngine{name: "fast", cands: []Candidate{b}},
	}
	assert.Equal(t, "slow+fast", engines.Name())

	cands, err := engines.Complete(context.Background(), objRequest())
	require.NoError(t, err)
	assert.Equal(t, []Candidate{a, b}, cands)

	engines = append(engines, &fakeEngine{name: "broken", err: errors.New("boom")})
	_, err = engines.Complete(context.Background(), objRequest())
	assert.ErrorContains(t, err, "broken: boom")
}

func TestDecodeHandle(t *testing.T) {
	h, err := DecodeHandle(map[string]any{"version": 3, "index": 1})
	require.NoError(t, err)
	assert.Equal(t, Handle{Version: 3, Index: 1}, h)

	h, err = DecodeHandle([]byte(`{"version":7,"index":0}`))
	require.NoError(t, err)
	assert.Equal(t, Handle{Version: 7}, h)

	_, err = DecodeHandle(nil)
	assert.Error(t, err)
	_, err = DecodeHandle(map[string]any{"index": 1})
	assert.Error(t, err)
}

func TestKind(t *testing.T) {
	assert.Equal(t, protocol.CompletionItemKindSnippet, Kind("snippet"))
	assert.Equal(t, protocol.CompletionItemKindText, Kind("nonsense"))
}

var _ snippet.Template = (*loopTemplate)(nil)
