package server

import (
	"context"
	"path/filepath"

	"github.com/segmentio/encoding/json"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/alexispurslane/tmpl-lsp/config"
)

// WorkspaceTemplateDir is the directory inside the workspace root that is
// searched for project templates.
const WorkspaceTemplateDir = ".tmpl-lsp"

// initializationOptions is what clients may pass in initialize.
type initializationOptions struct {
	TemplateDirs []string `json:"templateDirs"`
}

func (s *ServerImpl) initialize(_ context.Context, params *protocol.InitializeParams) *protocol.InitializeResult {
	var root string
	if len(params.WorkspaceFolders) > 0 {
		root = uriToPath(protocol.DocumentURI(params.WorkspaceFolders[0].URI))
	}
	if root == "" && params.RootURI != "" {
		root = uriToPath(params.RootURI)
	}

	if root != "" {
		s.state.mu.Lock()
		s.state.RootPath = root
		s.state.mu.Unlock()
		s.library.AddRoot(filepath.Join(root, WorkspaceTemplateDir))
	}
	for _, dir := range decodeInitOptions(params.InitializationOptions, s.logger).TemplateDirs {
		dir = config.ExpandHome(dir)
		if !filepath.IsAbs(dir) && root != "" {
			dir = filepath.Join(root, dir)
		}
		s.library.AddRoot(dir)
	}

	s.logger.Info("Initializing",
		zap.String("root", root),
		zap.Strings("template_roots", s.library.Roots()))

	if err := s.library.Process(); err != nil {
		s.logger.Error("Initial template scan failed", zap.Error(err))
	}

	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindFull,
				Save:      &protocol.SaveOptions{IncludeText: true},
			},
			CompletionProvider: &protocol.CompletionOptions{
				ResolveProvider:   true,
				TriggerCharacters: []string{"."},
			},
		},
		ServerInfo: &protocol.ServerInfo{
			Name:    serverName,
			Version: serverVersion,
		},
	}
}

func decodeInitOptions(raw any, logger *zap.Logger) initializationOptions {
	var opts initializationOptions
	if raw == nil {
		return opts
	}
	b, err := json.Marshal(raw)
	if err == nil {
		err = json.Unmarshal(b, &opts)
	}
	if err != nil {
		logger.Warn("Ignoring malformed initializationOptions", zap.Error(err))
	}
	return opts
}
