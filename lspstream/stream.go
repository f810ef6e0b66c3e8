// Package lspstream frames jsonrpc2 messages with Content-Length headers
// over any byte stream.
package lspstream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/segmentio/encoding/json"
	"go.lsp.dev/jsonrpc2"
)

// ErrMessageTooLarge is returned for frames above Options.MaxMessageSize.
var ErrMessageTooLarge = errors.New("message exceeds size limit")

// ReadWriteCloser wraps separate read and write closers into a single io.ReadWriteCloser
type ReadWriteCloser struct {
	Reader io.Reader
	Writer io.Writer
	Closer io.Closer
}

// NewReadWriteCloser creates a new ReadWriteCloser
func NewReadWriteCloser(r io.Reader, w io.Writer, c io.Closer) *ReadWriteCloser {
	return &ReadWriteCloser{Reader: r, Writer: w, Closer: c}
}

func (rwc *ReadWriteCloser) Read(p []byte) (n int, err error) {
	return rwc.Reader.Read(p)
}

func (rwc *ReadWriteCloser) Write(p []byte) (n int, err error) {
	return rwc.Writer.Write(p)
}

func (rwc *ReadWriteCloser) Close() error {
	if rwc.Closer != nil {
		return rwc.Closer.Close()
	}
	return nil
}

type Options struct {
	// BufferSize of the read buffer. Zero means 64KiB.
	BufferSize int
	// MaxMessageSize caps a single frame body. Zero means 64MiB.
	MaxMessageSize int64
}

// Stream reads and writes Content-Length framed messages. Writes are
// serialized so concurrent replies never interleave.
type Stream struct {
	conn    io.ReadWriteCloser
	in      *bufio.Reader
	maxSize int64

	wmu sync.Mutex
}

// NewLargeBufferStream creates a stream with a 64KB buffer (instead of default 4KB)
func NewLargeBufferStream(conn io.ReadWriteCloser) jsonrpc2.Stream {
	return NewStream(conn, Options{})
}

func NewStream(conn io.ReadWriteCloser, opts Options) *Stream {
	if opts.BufferSize <= 0 {
		opts.BufferSize = 64 << 10
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 64 << 20
	}
	return &Stream{
		conn:    conn,
		in:      bufio.NewReaderSize(conn, opts.BufferSize),
		maxSize: opts.MaxMessageSize,
	}
}

func (s *Stream) Read(ctx context.Context) (jsonrpc2.Message, int64, error) {
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	default:
	}

	var total, length int64
	for {
		line, err := s.in.ReadString('\n')
		total += int64(len(line))
		if err != nil {
			return nil, total, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			continue
		}
		length, err = strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return nil, total, fmt.Errorf("failed parsing Content-Length: %w", err)
		}
		if length <= 0 {
			return nil, total, fmt.Errorf("invalid Content-Length: %v", length)
		}
	}

	if length == 0 {
		return nil, total, fmt.Errorf("missing Content-Length header")
	}
	if length > s.maxSize {
		return nil, total, fmt.Errorf("%w: %d > %d bytes", ErrMessageTooLarge, length, s.maxSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(s.in, data); err != nil {
		return nil, total, err
	}
	total += length

	msg, err := jsonrpc2.DecodeMessage(data)
	return msg, total, err
}

func (s *Stream) Write(ctx context.Context, msg jsonrpc2.Message) (int64, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("marshaling message: %w", err)
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))
	if _, err := io.WriteString(s.conn, header); err != nil {
		return 0, err
	}
	n, err := s.conn.Write(data)
	return int64(len(header)) + int64(n), err
}

func (s *Stream) Close() error {
	return s.conn.Close()
}
