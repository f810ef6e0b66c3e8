// Package completion implements the two-phase completion pipeline: a cheap
// enumeration that snapshots the candidates, and a lazy resolution that
// simulates one candidate's insertion to compute its snippet and edits.
package completion

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/alexispurslane/tmpl-lsp/rearrange"
	"github.com/alexispurslane/tmpl-lsp/telemetry"
	"github.com/alexispurslane/tmpl-lsp/textdiff"
)

type Options struct {
	// MaxConcurrentResolves bounds the number of execution domains alive
	// at once. Zero means 4.
	MaxConcurrentResolves int
	// ResolveTimeout bounds a single resolution. Zero means no limit.
	ResolveTimeout time.Duration
	// StrictEdits makes overlapping raw edits fail the resolution instead
	// of keeping the later edit.
	StrictEdits bool
	// SemanticDiff slides diff edits to word boundaries.
	SemanticDiff bool

	Logger      *zap.Logger
	Instruments *telemetry.Instruments
}

// Session is the completion state of one server connection.
type Session struct {
	ID uuid.UUID

	engine  Engine
	cache   *Cache
	differ  textdiff.Differ
	rearr   rearrange.Options
	domains *semaphore.Weighted
	timeout time.Duration
	logger  *zap.Logger
	inst    *telemetry.Instruments
}

func NewSession(engine Engine, opts Options) *Session {
	if opts.MaxConcurrentResolves <= 0 {
		opts.MaxConcurrentResolves = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.New()
	return &Session{
		ID:      id,
		engine:  engine,
		cache:   NewCache(),
		differ:  textdiff.Differ{SemanticCleanup: opts.SemanticDiff},
		rearr:   rearrange.Options{Strict: opts.StrictEdits},
		domains: semaphore.NewWeighted(int64(opts.MaxConcurrentResolves)),
		timeout: opts.ResolveTimeout,
		logger:  logger.With(zap.String("session", id.String())),
		inst:    opts.Instruments,
	}
}

// Snapshot returns the current snapshot.
func (s *Session) Snapshot() *Snapshot {
	return s.cache.Get()
}
