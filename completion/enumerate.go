package completion

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/alexispurslane/tmpl-lsp/telemetry"
)

// Entry is one enumerated candidate as handed to the client.
type Entry struct {
	Label     string
	Handle    Handle
	Candidate Candidate
}

// Enumerate asks the engine for candidates at the request position and
// publishes them as the new snapshot. On engine failure nothing is
// published and the error wraps ErrEnumeration.
func (s *Session) Enumerate(ctx context.Context, req Request) (*Snapshot, []Entry, error) {
	ctx, op := s.inst.StartEnumerate(ctx,
		attribute.String("document.uri", string(req.URI)),
		attribute.String("document.language", req.Language),
	)

	if req.Offset < 0 || req.Offset > len(req.Text) {
		err := fmt.Errorf("%w: cursor offset %d outside document of length %d", ErrEnumeration, req.Offset, len(req.Text))
		op.Finish(ctx, telemetry.OutcomeError, err)
		return nil, nil, err
	}

	cands, err := s.engine.Complete(ctx, req)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrEnumeration, err)
		s.logger.Warn("Candidate enumeration failed",
			zap.String("uri", string(req.URI)),
			zap.Error(err))
		op.Finish(ctx, telemetry.OutcomeError, err)
		return nil, nil, err
	}

	snap := s.cache.Publish(func(version int64) *Snapshot {
		return &Snapshot{
			Version:    version,
			URI:        req.URI,
			Text:       req.Text,
			Offset:     req.Offset,
			Language:   req.Language,
			Candidates: cands,
			Created:    time.Now(),
		}
	})

	entries := make([]Entry, len(cands))
	for i, c := range cands {
		label := c.Presentation().Label
		if label == "" {
			label = c.LookupString()
		}
		entries[i] = Entry{
			Label:     label,
			Handle:    Handle{Version: snap.Version, Index: i},
			Candidate: c,
		}
	}

	s.logger.Debug("Enumerated completion candidates",
		zap.String("uri", string(req.URI)),
		zap.Int64("version", snap.Version),
		zap.Int("count", len(entries)))
	op.Finish(ctx, telemetry.OutcomeOK, nil)
	return snap, entries, nil
}
