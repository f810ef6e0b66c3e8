package completion

import (
	"context"
	"errors"
	"fmt"

	"go.lsp.dev/protocol"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/alexispurslane/tmpl-lsp/rearrange"
	"github.com/alexispurslane/tmpl-lsp/snippet"
	"github.com/alexispurslane/tmpl-lsp/telemetry"
	"github.com/alexispurslane/tmpl-lsp/textdiff"
	"github.com/alexispurslane/tmpl-lsp/textedit"
)

type ResolveRequest struct {
	Handle Handle
	// Range is the primary edit range the client holds. When nil the
	// range the candidate was enumerated with is used.
	Range *protocol.Range
}

// Resolution is a fully computed completion item. Offsets refer to the
// snapshot text.
type Resolution struct {
	Snapshot      *Snapshot
	Candidate     Candidate
	Primary       textedit.Edit
	Additional    []textedit.Edit
	Extended      bool
	Documentation string

	mapper *textedit.Mapper
}

func (r *Resolution) PrimaryTextEdit() protocol.TextEdit {
	return r.mapper.TextEdit(r.Primary)
}

func (r *Resolution) AdditionalTextEdits() []protocol.TextEdit {
	return r.mapper.TextEdits(r.Additional)
}

// Resolve computes the snippet text and additional edits of the candidate
// behind req.Handle. It never modifies the cache. Errors wrap one of
// ErrStaleVersion, ErrEmptyDiff, ErrSimulation, ErrDiffInconsistency or
// ErrCancelled.
func (s *Session) Resolve(ctx context.Context, req ResolveRequest) (*Resolution, error) {
	ctx, op := s.inst.StartResolve(ctx,
		attribute.Int64("completion.version", req.Handle.Version),
		attribute.Int("completion.index", req.Handle.Index),
	)

	snap := s.cache.Get()
	cand := snap.Candidate(req.Handle.Index)
	if req.Handle.Version != snap.Version || cand == nil {
		err := fmt.Errorf("%w: handle %s, current version %d", ErrStaleVersion, req.Handle, snap.Version)
		s.logger.Debug("Ignoring stale completion handle",
			zap.Stringer("handle", req.Handle),
			zap.Int64("current", snap.Version))
		op.Finish(ctx, telemetry.OutcomeStale, nil)
		return nil, err
	}

	res, err := s.resolve(ctx, op, snap, cand, req.Range)
	switch {
	case err == nil:
		op.Finish(ctx, telemetry.OutcomeOK, nil)
	case errors.Is(err, ErrCancelled):
		s.logger.Debug("Resolution cancelled", zap.Stringer("handle", req.Handle))
		op.Finish(ctx, telemetry.OutcomeCancelled, nil)
	case errors.Is(err, ErrEmptyDiff):
		s.logger.Debug("Candidate insertion left the document unchanged", zap.Stringer("handle", req.Handle))
		op.Finish(ctx, telemetry.OutcomeOK, nil)
	case errors.Is(err, ErrSimulation), errors.Is(err, ErrDiffInconsistency):
		s.logger.Warn("Resolution degraded",
			zap.Stringer("handle", req.Handle),
			zap.String("label", cand.Presentation().Label),
			zap.Error(err))
		op.Finish(ctx, telemetry.OutcomeDegraded, err)
	default:
		s.logger.Error("Resolution failed", zap.Stringer("handle", req.Handle), zap.Error(err))
		op.Finish(ctx, telemetry.OutcomeError, err)
	}
	return res, err
}

func (s *Session) resolve(ctx context.Context, op *telemetry.Op, snap *Snapshot, cand Candidate, primary *protocol.Range) (*Resolution, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.domains.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	// Released when the domain goroutine exits, not when resolve returns.
	d := newDomain(func() { s.domains.Release(1) })
	defer d.close()

	mapper := textedit.NewMapper(snap.Text)
	start, end := snap.ReplaceStart(cand), snap.Offset
	if primary != nil {
		start, end = mapper.Span(*primary)
	}

	pristine := textedit.NewBuffer(snap.Text)
	target := textedit.NewBuffer(snap.Text)

	// Simulate the insertion and walk the template inside one domain.
	var placeholders []snippet.Placeholder
	err := d.run(ctx, func() error {
		ins, err := cand.Simulate(target, snap.Offset)
		if err != nil {
			return err
		}
		if ins.Template == nil {
			placeholders = snippet.Caret(ins.Caret)
			return nil
		}
		placeholders, err = snippet.Extract(ins.Template, target.Text())
		return err
	})
	if cerr := checkpoint(ctx); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSimulation, err)
	}
	op.Stage("simulate", attribute.Int("placeholders", len(placeholders)))

	edits := s.differ.Diff(pristine.Text(), target.Text())
	if len(edits) == 0 {
		return nil, ErrEmptyDiff
	}
	if err := textdiff.Verify(pristine.Text(), target.Text(), edits); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiffInconsistency, err)
	}
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	op.Stage("diff", attribute.Int("edits", len(edits)))

	arranged, err := rearrange.Rearrange(rearrange.Input{
		Source:       pristine.Text(),
		Edits:        edits,
		PrimaryStart: start,
		PrimaryEnd:   end,
		Placeholders: placeholders,
	}, s.rearr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiffInconsistency, err)
	}
	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	op.Stage("rearrange", attribute.Int("additional", len(arranged.Additional)))
	if arranged.Dropped > 0 {
		s.logger.Warn("Discarded overlapping edits",
			zap.String("label", cand.Presentation().Label),
			zap.Int("dropped", arranged.Dropped))
	}

	res := &Resolution{
		Snapshot:   snap,
		Candidate:  cand,
		Primary:    arranged.Primary,
		Additional: arranged.Additional,
		Extended:   arranged.Extended,
		mapper:     mapper,
	}
	if doc, ok := cand.(Documenter); ok {
		res.Documentation = doc.Documentation()
	}
	return res, nil
}

func checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return nil
}
