package server

import (
	"strings"

	"github.com/segmentio/encoding/json"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// requestCancelled is the LSP error code for a request cancelled by the client.
const requestCancelled jsonrpc2.Code = -32800

func decodeParams(req jsonrpc2.Request, v any) error {
	if err := json.Unmarshal(req.Params(), v); err != nil {
		return jsonrpc2.Errorf(jsonrpc2.InvalidParams, "invalid params for %s: %v", req.Method(), err)
	}
	return nil
}

// uriToPath converts a file:// URI to a filesystem path. Other schemes
// yield "".
func uriToPath(u protocol.DocumentURI) string {
	if !strings.HasPrefix(string(u), uri.FileScheme+"://") {
		return ""
	}
	return uri.URI(u).Filename()
}
