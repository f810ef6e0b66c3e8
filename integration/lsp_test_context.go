package integration

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"text/template"
	"time"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/zap"

	"github.com/alexispurslane/tmpl-lsp/config"
	"github.com/alexispurslane/tmpl-lsp/lspstream"
	ourserver "github.com/alexispurslane/tmpl-lsp/server"
)

// LSPTestContext manages server lifecycle and provides test helpers
type LSPTestContext struct {
	t            *testing.T
	conn         jsonrpc2.Conn
	ctx          context.Context
	cancel       context.CancelFunc
	tempDir      string
	rootURI      string
	server       *ourserver.ServerImpl
	done         chan struct{}
	listener     net.Listener
	TestData     map[string]string // Values substituted into GivenFile content
	lastSaveTime time.Time         // Track when we last triggered a save for scan polls
}

// NewTestContext creates a temp directory in /tmp, starts the LSP server
// with that directory as root, and returns a context for testing.
func NewTestContext(t *testing.T) *LSPTestContext {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "tmpl-lsp-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp directory: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	srv := ourserver.New(ourserver.Options{
		Config: config.Default(),
		Logger: zap.NewNop(),
	})

	done := make(chan struct{})
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		cancel()
		os.RemoveAll(tempDir)
		t.Fatalf("Failed to create TCP listener: %v", err)
	}

	go func() {
		defer close(done)
		for {
			conn, err := listener.Accept()
			if err != nil {
				return // Listener closed
			}
			go func(c net.Conn) {
				defer c.Close()
				_ = srv.Serve(ctx, lspstream.NewLargeBufferStream(c))
			}(conn)
		}
	}()

	clientConn, err := net.Dial("tcp", listener.Addr().String())
	if err != nil {
		cancel()
		listener.Close()
		os.RemoveAll(tempDir)
		t.Fatalf("Failed to connect to server: %v", err)
	}

	jsonrpcConn := jsonrpc2.NewConn(lspstream.NewLargeBufferStream(clientConn))
	jsonrpcConn.Go(ctx, nil) // Start background reader

	rootURI := string(uri.File(tempDir))
	initParams := protocol.InitializeParams{
		ProcessID: int32(os.Getpid()),
		RootURI:   protocol.DocumentURI(rootURI),
	}

	var initResult protocol.InitializeResult
	if _, err = jsonrpcConn.Call(ctx, protocol.MethodInitialize, initParams, &initResult); err != nil {
		cancel()
		clientConn.Close()
		listener.Close()
		os.RemoveAll(tempDir)
		t.Fatalf("Initialize failed: %v", err)
	}

	if err = jsonrpcConn.Notify(ctx, protocol.MethodInitialized, protocol.InitializedParams{}); err != nil {
		cancel()
		clientConn.Close()
		listener.Close()
		os.RemoveAll(tempDir)
		t.Fatalf("Initialized notification failed: %v", err)
	}

	return &LSPTestContext{
		t:        t,
		conn:     jsonrpcConn,
		ctx:      ctx,
		cancel:   cancel,
		tempDir:  tempDir,
		rootURI:  rootURI,
		server:   srv,
		done:     done,
		listener: listener,
		TestData: make(map[string]string),
	}
}

// GivenFile creates a file in the temp directory with template substitution.
// The path is relative to the temp directory root.
// Content is treated as a Go text/template, with tc.TestData as the data context.
func (tc *LSPTestContext) GivenFile(path, content string) *LSPTestContext {
	tc.t.Helper()

	fullPath := filepath.Join(tc.tempDir, path)
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		tc.t.Fatalf("Failed to create directory %s: %v", dir, err)
	}

	tmpl, err := template.New(path).Parse(content)
	if err != nil {
		tc.t.Fatalf("Failed to parse template for %s: %v", path, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, tc.TestData); err != nil {
		tc.t.Fatalf("Failed to execute template for %s: %v", path, err)
	}

	if err := os.WriteFile(fullPath, buf.Bytes(), 0644); err != nil {
		tc.t.Fatalf("Failed to create file %s: %v", path, err)
	}

	return tc
}

// GivenTemplates writes a template file into the workspace template
// directory and saves it so the server rescans.
func (tc *LSPTestContext) GivenTemplates(name, content string) *LSPTestContext {
	tc.t.Helper()

	path := filepath.Join(ourserver.WorkspaceTemplateDir, name)
	return tc.GivenFile(path, content).GivenSaveFile(path)
}

// GivenOpenFile opens a document in the LSP server. The language ID is
// taken from the file extension.
func (tc *LSPTestContext) GivenOpenFile(path string) *LSPTestContext {
	tc.t.Helper()

	fullURI := tc.resolveURI(path)
	content, err := os.ReadFile(uri.URI(fullURI).Filename())
	if err != nil {
		tc.t.Fatalf("Failed to read file for didOpen: %v", err)
	}

	params := protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        fullURI,
			LanguageID: protocol.LanguageIdentifier(languageID(path)),
			Version:    1,
			Text:       string(content),
		},
	}

	if err := tc.conn.Notify(tc.ctx, protocol.MethodTextDocumentDidOpen, params); err != nil {
		tc.t.Fatalf("didOpen failed: %v", err)
	}

	return tc
}

// GivenChangeFile replaces the full text of an open document.
func (tc *LSPTestContext) GivenChangeFile(path string, version int32, text string) *LSPTestContext {
	tc.t.Helper()

	params := protocol.DidChangeTextDocumentParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: tc.resolveURI(path)},
			Version:                version,
		},
		ContentChanges: []protocol.TextDocumentContentChangeEvent{{Text: text}},
	}

	if err := tc.conn.Notify(tc.ctx, protocol.MethodTextDocumentDidChange, params); err != nil {
		tc.t.Fatalf("didChange failed: %v", err)
	}

	return tc
}

// GivenSaveFile triggers a didSave notification for the document.
func (tc *LSPTestContext) GivenSaveFile(path string) *LSPTestContext {
	tc.t.Helper()

	params := protocol.DidSaveTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{
			URI: tc.resolveURI(path),
		},
	}

	if err := tc.conn.Notify(tc.ctx, protocol.MethodTextDocumentDidSave, params); err != nil {
		tc.t.Fatalf("didSave failed: %v", err)
	}

	// Record when we triggered this save so pollUntilScanned can wait for it
	tc.lastSaveTime = time.Now()

	return tc
}

// When performs an LSP operation and calls the handler with the result.
// It wraps the operation in t.Run with a "when " prefix for Gherkin-style output.
// Completion requests wait for a pending template rescan first.
func When[T any](t *testing.T, tc *LSPTestContext, description string, method string, params any, handler func(*testing.T, T)) bool {
	return t.Run("when "+description, func(t *testing.T) {
		if method == protocol.MethodTextDocumentCompletion {
			tc.pollUntilScanned()
		}

		var result T
		if _, err := tc.conn.Call(tc.ctx, method, params, &result); err != nil {
			t.Fatalf("LSP call %s failed: %v", method, err)
		}

		handler(t, result)
	})
}

// Complete requests completions at pos and fails the test on error.
func (tc *LSPTestContext) Complete(path string, pos protocol.Position) *protocol.CompletionList {
	tc.t.Helper()
	tc.pollUntilScanned()

	var list protocol.CompletionList
	if _, err := tc.conn.Call(tc.ctx, protocol.MethodTextDocumentCompletion, tc.CompletionParams(path, pos), &list); err != nil {
		tc.t.Fatalf("completion failed: %v", err)
	}
	return &list
}

func (tc *LSPTestContext) CompletionParams(path string, pos protocol.Position) protocol.CompletionParams {
	return protocol.CompletionParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: tc.resolveURI(path)},
			Position:     pos,
		},
	}
}

// Shutdown gracefully shuts down the server and cleans up resources
func (tc *LSPTestContext) Shutdown() {
	tc.cancel()
	tc.conn.Close()
	tc.listener.Close()
	<-tc.done
	os.RemoveAll(tc.tempDir)
}

// pollUntilScanned waits until the template library's LastScanTime is
// after our last save.
func (tc *LSPTestContext) pollUntilScanned() {
	if tc.server == nil || tc.lastSaveTime.IsZero() {
		return
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tc.server.LastScanTime().After(tc.lastSaveTime) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	tc.t.Logf("Warning: template scan did not complete within 2 seconds after save at %v", tc.lastSaveTime)
}

// DocURI returns a DocumentURI for a file relative to the test root
func (tc *LSPTestContext) DocURI(filename string) protocol.DocumentURI {
	return tc.resolveURI(filename)
}

// PosAfter returns a Position just after the first occurrence of marker in the specified file
func (tc *LSPTestContext) PosAfter(filename, marker string) protocol.Position {
	content, err := os.ReadFile(filepath.Join(tc.tempDir, filename))
	if err != nil {
		tc.t.Fatalf("Failed to read file %s for PosAfter: %v", filename, err)
	}

	lines := strings.Split(string(content), "\n")
	for lineNum, line := range lines {
		if idx := strings.Index(line, marker); idx >= 0 {
			return protocol.Position{
				Line:      uint32(lineNum),
				Character: uint32(idx + len(marker)),
			}
		}
	}
	tc.t.Fatalf("Marker %q not found in file %s", marker, filename)
	return protocol.Position{}
}

// resolveURI converts a path relative to the test root to a file:// URI
func (tc *LSPTestContext) resolveURI(path string) protocol.DocumentURI {
	if strings.HasPrefix(path, uri.FileScheme+"://") {
		return protocol.DocumentURI(path)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(tc.tempDir, path)
	}
	return protocol.DocumentURI(uri.File(path))
}

func languageID(path string) string {
	switch ext := strings.TrimPrefix(filepath.Ext(path), "."); ext {
	case "":
		return "plaintext"
	case "py":
		return "python"
	case "js":
		return "javascript"
	default:
		return ext
	}
}
