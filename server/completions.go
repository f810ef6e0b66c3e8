package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/encoding/json"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/alexispurslane/tmpl-lsp/completion"
	"github.com/alexispurslane/tmpl-lsp/snippet"
	"github.com/alexispurslane/tmpl-lsp/textedit"
)

func (s *ServerImpl) completion(ctx context.Context, params *protocol.CompletionParams) *protocol.CompletionList {
	list := &protocol.CompletionList{Items: []protocol.CompletionItem{}}

	doc, ok := s.state.Document(params.TextDocument.URI)
	if !ok {
		s.logger.Debug("Completion for unopened document", zap.String("uri", string(params.TextDocument.URI)))
		return list
	}

	mapper := textedit.NewMapper(doc.Text)
	snap, entries, err := s.session.Enumerate(ctx, completion.Request{
		URI:      doc.URI,
		Text:     doc.Text,
		Offset:   mapper.Offset(params.Position),
		Language: doc.LanguageID,
	})
	if err != nil {
		return list
	}

	for i, e := range entries {
		list.Items = append(list.Items, completionItem(snap, mapper, e, i))
	}
	return list
}

// completionItem is the unresolved form of an entry: the lookup string as
// a literal snippet over the typed prefix, with the handle as data.
func completionItem(snap *completion.Snapshot, mapper *textedit.Mapper, e completion.Entry, rank int) protocol.CompletionItem {
	p := e.Candidate.Presentation()
	lookup := e.Candidate.LookupString()

	item := protocol.CompletionItem{
		Label:            e.Label,
		Detail:           p.Detail,
		Kind:             completion.Kind(p.Kind),
		FilterText:       lookup,
		SortText:         fmt.Sprintf("%05d", rank),
		InsertTextFormat: protocol.InsertTextFormatSnippet,
		TextEdit: &protocol.TextEdit{
			Range:   mapper.Range(snap.ReplaceStart(e.Candidate), snap.Offset),
			NewText: snippet.Escape(lookup),
		},
		Data: e.Handle,
	}
	if p.Deprecated {
		item.Tags = []protocol.CompletionItemTag{protocol.CompletionItemTagDeprecated}
	}
	return item
}

// resolveCompletionItem fills in the snippet text and additional edits of
// an item. Items that cannot be resolved against the current snapshot are
// returned exactly as received.
func (s *ServerImpl) resolveCompletionItem(ctx context.Context, raw json.RawMessage) (any, error) {
	var item protocol.CompletionItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, jsonrpc2.Errorf(jsonrpc2.InvalidParams, "invalid completion item: %v", err)
	}

	handle, err := completion.DecodeHandle(item.Data)
	if err != nil {
		s.logger.Debug("Completion item carries no handle", zap.Error(err))
		return raw, nil
	}

	var primary *protocol.Range
	if item.TextEdit != nil {
		r := item.TextEdit.Range
		primary = &r
	}

	res, err := s.session.Resolve(ctx, completion.ResolveRequest{Handle: handle, Range: primary})
	switch {
	case err == nil:
	case errors.Is(err, completion.ErrStaleVersion), errors.Is(err, completion.ErrEmptyDiff):
		return raw, nil
	case errors.Is(err, completion.ErrCancelled):
		return nil, jsonrpc2.NewError(requestCancelled, err.Error())
	default:
		// The item is still usable without its additional edits.
		item.AdditionalTextEdits = nil
		return item, nil
	}

	te := res.PrimaryTextEdit()
	item.TextEdit = &te
	item.InsertText = te.NewText
	item.InsertTextFormat = protocol.InsertTextFormatSnippet
	item.AdditionalTextEdits = res.AdditionalTextEdits()
	if res.Documentation != "" {
		item.Documentation = protocol.MarkupContent{
			Kind:  protocol.Markdown,
			Value: res.Documentation,
		}
	}
	return item, nil
}
