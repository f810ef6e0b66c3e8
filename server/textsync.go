package server

import (
	"path/filepath"

	"go.lsp.dev/protocol"
	"go.uber.org/zap"
)

func (s *ServerImpl) didOpen(params *protocol.DidOpenTextDocumentParams) {
	s.logger.Debug("Document opened", zap.String("uri", string(params.TextDocument.URI)))
	s.state.Open(Document{
		URI:        params.TextDocument.URI,
		LanguageID: string(params.TextDocument.LanguageID),
		Version:    params.TextDocument.Version,
		Text:       params.TextDocument.Text,
	})
}

// didChange expects full-document sync; the last change carries the text.
func (s *ServerImpl) didChange(params *protocol.DidChangeTextDocumentParams) {
	if len(params.ContentChanges) == 0 {
		return
	}
	text := params.ContentChanges[len(params.ContentChanges)-1].Text
	if !s.state.Update(params.TextDocument.URI, params.TextDocument.Version, text) {
		s.logger.Warn("Change for unopened document", zap.String("uri", string(params.TextDocument.URI)))
	}
}

func (s *ServerImpl) didClose(params *protocol.DidCloseTextDocumentParams) {
	s.state.Close(params.TextDocument.URI)
}

// didSave rescans the template library when a template file is saved.
func (s *ServerImpl) didSave(params *protocol.DidSaveTextDocumentParams) {
	if params.Text != "" {
		if doc, ok := s.state.Document(params.TextDocument.URI); ok {
			s.state.Update(doc.URI, doc.Version, params.Text)
		}
	}

	path := uriToPath(params.TextDocument.URI)
	if path == "" || filepath.Ext(path) != ".toml" || !s.library.Contains(path) {
		return
	}
	s.logger.Info("Template file saved, rescanning", zap.String("path", path))
	if err := s.library.Process(); err != nil {
		s.logger.Error("Template rescan failed", zap.Error(err))
	}
}
