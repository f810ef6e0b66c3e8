package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alexispurslane/tmpl-lsp/config"
	"github.com/alexispurslane/tmpl-lsp/server"
	"github.com/alexispurslane/tmpl-lsp/telemetry"
)

func main() {
	os.Exit(run(os.Args[1:], os.Getenv, os.Stderr))
}

// run starts the server and returns the process exit code. Deferred
// cleanup, telemetry flushing included, has finished by the time it returns.
func run(args []string, getenv func(string) string, stderr io.Writer) (code int) {
	var (
		stdio      bool
		tcp        string
		configPath string
		templates  string
		trace      bool
	)
	fs := flag.NewFlagSet("tmpl-lsp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&stdio, "stdio", true, "Run in STDIO mode (default)")
	fs.StringVar(&tcp, "tcp", "", "Run in TCP mode with address (e.g., 127.0.0.1:9999)")
	fs.StringVar(&configPath, "config", "", "Path to a TOML config file")
	fs.StringVar(&templates, "templates", "", "Comma-separated template directories")
	fs.BoolVar(&trace, "trace", false, "Print completion traces to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Config error: %v\n", err)
		return 1
	}
	cfg.FromEnv(getenv)
	for _, dir := range strings.Split(templates, ",") {
		if dir = strings.TrimSpace(dir); dir != "" {
			cfg.TemplateDirs = append(cfg.TemplateDirs, config.ExpandHome(dir))
		}
	}
	if trace {
		cfg.Telemetry.Traces = true
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		fmt.Fprintf(stderr, "Logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	tel, err := telemetry.Setup(context.Background(), telemetry.Config{
		EnableMetrics: cfg.Telemetry.Metrics,
		EnableTraces:  cfg.Telemetry.Traces,
		TraceWriter:   stderr,
		MetricWriter:  stderr,
	})
	if err != nil {
		logger.Warn("Telemetry disabled", zap.Error(err))
		tel = nil
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			logger.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}()

	// Registered last so it runs before the shutdown above.
	defer func() {
		if r := recover(); r != nil {
			logger.Error("PANIC", zap.Any("error", r), zap.ByteString("stack", debug.Stack()))
			code = 1
		}
	}()

	srv := server.New(server.Options{Config: cfg, Logger: logger, Telemetry: tel})

	if tcp != "" {
		logger.Info("tmpl-lsp server starting", zap.String("mode", "tcp"), zap.String("address", tcp))
		err = srv.RunTCP(tcp)
	} else {
		logger.Info("tmpl-lsp server starting", zap.String("mode", "stdio"))
		err = srv.RunStdio()
	}
	if err != nil {
		logger.Error("Server error", zap.Error(err))
		return 1
	}
	return 0
}
