// Package server provides the LSP server: document sync, completion and
// completion item resolution backed by live templates.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"

	"github.com/alexispurslane/tmpl-lsp/completion"
	"github.com/alexispurslane/tmpl-lsp/config"
	"github.com/alexispurslane/tmpl-lsp/lspstream"
	"github.com/alexispurslane/tmpl-lsp/telemetry"
	"github.com/alexispurslane/tmpl-lsp/templates"
	"github.com/alexispurslane/tmpl-lsp/words"
)

const serverName = "tmpl-lsp"

var serverVersion = "0.1.0"

type Options struct {
	Config    config.Config
	Logger    *zap.Logger
	Telemetry *telemetry.Provider
}

// ServerImpl serves one workspace. Every connection shares its state.
type ServerImpl struct {
	cfg     config.Config
	logger  *zap.Logger
	state   *State
	library *templates.Library
	session *completion.Session

	shutdown atomic.Bool
}

func New(opts Options) *ServerImpl {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := opts.Config

	lib := templates.NewLibrary(logger.Named("templates"), cfg.TemplateDirs...)
	engines := completion.Engines{
		templates.NewEngine(lib),
		&words.Engine{MinLength: cfg.WordsMinLength},
	}
	session := completion.NewSession(engines, completion.Options{
		MaxConcurrentResolves: cfg.MaxConcurrentResolves,
		ResolveTimeout:        cfg.ResolveTimeout.Duration,
		StrictEdits:           cfg.StrictEdits,
		SemanticDiff:          cfg.SemanticDiff,
		Logger:                logger.Named("completion"),
		Instruments:           opts.Telemetry.Instruments(),
	})

	return &ServerImpl{
		cfg:     cfg,
		logger:  logger,
		state:   newState(),
		library: lib,
		session: session,
	}
}

// LastScanTime is when the template library last finished a scan.
func (s *ServerImpl) LastScanTime() time.Time {
	return s.library.LastScanTime()
}

// Serve runs the protocol over stream until the connection closes.
func (s *ServerImpl) Serve(ctx context.Context, stream jsonrpc2.Stream) error {
	conn := jsonrpc2.NewConn(stream)
	conn.Go(ctx, protocol.Handlers(s.handler(conn)))
	select {
	case <-ctx.Done():
		conn.Close()
		<-conn.Done()
		return ctx.Err()
	case <-conn.Done():
	}
	if err := conn.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *ServerImpl) RunStdio() error {
	s.logger.Info("Serving on stdio")
	stream := lspstream.NewLargeBufferStream(lspstream.NewReadWriteCloser(os.Stdin, os.Stdout, os.Stdin))
	return s.Serve(context.Background(), stream)
}

func (s *ServerImpl) RunTCP(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	defer listener.Close()
	s.logger.Info("Serving on TCP", zap.String("address", listener.Addr().String()))

	for {
		c, err := listener.Accept()
		if err != nil {
			return err
		}
		go func(c net.Conn) {
			defer c.Close()
			if err := s.Serve(context.Background(), lspstream.NewLargeBufferStream(c)); err != nil {
				s.logger.Warn("Connection ended with error", zap.String("remote", c.RemoteAddr().String()), zap.Error(err))
			}
		}(c)
	}
}

func (s *ServerImpl) handler(conn jsonrpc2.Conn) jsonrpc2.Handler {
	return func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("PANIC in handler",
					zap.String("method", req.Method()),
					zap.Any("error", r),
					zap.ByteString("stack", debug.Stack()))
				err = reply(ctx, nil, jsonrpc2.Errorf(jsonrpc2.InternalError, "internal error handling %s", req.Method()))
			}
		}()

		if s.shutdown.Load() && req.Method() != protocol.MethodExit {
			return reply(ctx, nil, jsonrpc2.Errorf(jsonrpc2.InvalidRequest, "server is shutting down"))
		}

		switch req.Method() {
		case protocol.MethodInitialize:
			var params protocol.InitializeParams
			if err := decodeParams(req, &params); err != nil {
				return reply(ctx, nil, err)
			}
			return reply(ctx, s.initialize(ctx, &params), nil)

		case protocol.MethodInitialized:
			return reply(ctx, nil, nil)

		case protocol.MethodShutdown:
			s.shutdown.Store(true)
			return reply(ctx, nil, nil)

		case protocol.MethodExit:
			s.logger.Info("Exit requested")
			err := reply(ctx, nil, nil)
			conn.Close()
			return err

		case protocol.MethodTextDocumentDidOpen:
			var params protocol.DidOpenTextDocumentParams
			if err := decodeParams(req, &params); err != nil {
				return reply(ctx, nil, err)
			}
			s.didOpen(&params)
			return reply(ctx, nil, nil)

		case protocol.MethodTextDocumentDidChange:
			var params protocol.DidChangeTextDocumentParams
			if err := decodeParams(req, &params); err != nil {
				return reply(ctx, nil, err)
			}
			s.didChange(&params)
			return reply(ctx, nil, nil)

		case protocol.MethodTextDocumentDidClose:
			var params protocol.DidCloseTextDocumentParams
			if err := decodeParams(req, &params); err != nil {
				return reply(ctx, nil, err)
			}
			s.didClose(&params)
			return reply(ctx, nil, nil)

		case protocol.MethodTextDocumentDidSave:
			var params protocol.DidSaveTextDocumentParams
			if err := decodeParams(req, &params); err != nil {
				return reply(ctx, nil, err)
			}
			s.didSave(&params)
			return reply(ctx, nil, nil)

		case protocol.MethodTextDocumentCompletion:
			var params protocol.CompletionParams
			if err := decodeParams(req, &params); err != nil {
				return reply(ctx, nil, err)
			}
			return reply(ctx, s.completion(ctx, &params), nil)

		case protocol.MethodCompletionItemResolve:
			result, err := s.resolveCompletionItem(ctx, req.Params())
			return reply(ctx, result, err)

		default:
			return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
		}
	}
}
