package stdio

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/ggoodman/dhan-mcp/internal/framing"
	"github.com/ggoodman/dhan-mcp/internal/jsonrpc"
	"github.com/ggoodman/dhan-mcp/internal/logctx"
	"github.com/ggoodman/dhan-mcp/internal/metrics"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// DefaultMaxInFlight is the default cap on concurrently dispatched messages.
const DefaultMaxInFlight = 32

const readChunkSize = 32 << 10

// Dispatcher turns one decoded message into at most one response.
type Dispatcher interface {
	Handle(ctx context.Context, msg jsonrpc.Message) *jsonrpc.Response
}

// Handler is a single-connection stdio transport that reads framed JSON-RPC
// messages from an io.Reader and writes framed responses to an io.Writer. By
// default, it uses os.Stdin and os.Stdout.
//
// The handler is transport-only; it delegates all MCP semantics to the
// provided Dispatcher.
type Handler struct {
	d           Dispatcher
	r           io.Reader
	w           io.Writer
	l           *slog.Logger
	codec       *framing.Codec
	maxInFlight int64
	metrics     *metrics.Metrics
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(d Dispatcher, opts ...Option) *Handler {
	h := &Handler{
		d:           d,
		r:           os.Stdin,
		w:           os.Stdout,
		l:           slog.Default(),
		codec:       framing.New(),
		maxInFlight: DefaultMaxInFlight,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type chunk struct {
	data []byte
	err  error
}

// Serve runs the stdio event loop until EOF on the reader, the context is
// canceled or a write fails. It is safe to call at most once per Handler.
//
// The loop owns the decode accumulator. Each decoded message is dispatched
// on its own goroutine with a context detached from ctx's cancellation, so
// a dispatched call always runs to completion. Before returning, Serve waits
// for every in-flight dispatch. EOF is a clean shutdown and returns nil.
func (h *Handler) Serve(ctx context.Context) error {
	ctx = logctx.WithConnData(ctx, &logctx.ConnData{ConnID: uuid.NewString()})
	h.l.InfoContext(ctx, "stdio.serve.start", slog.Int64("max_inflight", h.maxInFlight), slog.Int("max_frame_size", h.codec.MaxFrameSize()))

	mux := &writeMux{w: bufio.NewWriter(h.w), codec: h.codec}
	sem := semaphore.NewWeighted(h.maxInFlight)
	dispatchCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup

	writeFailed := make(chan struct{})
	var writeErr error
	var failOnce sync.Once
	fail := func(err error) {
		failOnce.Do(func() {
			writeErr = err
			close(writeFailed)
		})
	}

	dispatch := func(msg jsonrpc.Message) error {
		// Blocking here is the backpressure: nothing more is read until a
		// slot frees up.
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		wg.Add(1)
		h.metrics.AddInflight(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			defer h.metrics.AddInflight(-1)

			res := h.handle(dispatchCtx, msg)
			if res == nil {
				return
			}
			if err := mux.writeJSONRPC(res); err != nil {
				h.l.ErrorContext(dispatchCtx, "stdio.write.fail", slog.String("err", err.Error()))
				fail(fmt.Errorf("write response: %w", err))
			}
		}()
		return nil
	}

	done := make(chan struct{})
	defer close(done)
	chunks := make(chan chunk)
	go func() {
		for {
			buf := make([]byte, readChunkSize)
			n, err := h.r.Read(buf)
			select {
			case chunks <- chunk{data: buf[:n], err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	// finish waits for in-flight dispatches. A failed write wins over err.
	finish := func(err error) error {
		wg.Wait()
		if writeErr != nil {
			return writeErr
		}
		return err
	}

	var acc []byte
	for {
		select {
		case <-ctx.Done():
			h.l.InfoContext(ctx, "stdio.serve.stop", slog.String("reason", "context"))
			return finish(ctx.Err())
		case <-writeFailed:
			return finish(nil)
		case c := <-chunks:
			if len(c.data) > 0 {
				acc = append(acc, c.data...)
				var err error
				if acc, err = h.drain(ctx, acc, dispatch); err != nil {
					return finish(err)
				}
			}
			if c.err != nil {
				if errors.Is(c.err, io.EOF) {
					h.l.InfoContext(ctx, "stdio.serve.stop", slog.String("reason", "eof"), slog.Int("unconsumed_bytes", len(acc)))
					return finish(nil)
				}
				return finish(fmt.Errorf("read input: %w", c.err))
			}
		}
	}
}

// drain decodes every complete frame in acc, dispatching each message in
// order, and returns the unconsumed remainder. Bad frames are logged and
// skipped.
func (h *Handler) drain(ctx context.Context, acc []byte, dispatch func(jsonrpc.Message) error) ([]byte, error) {
	for {
		msgs, rest, err := h.codec.Decode(acc)
		for _, msg := range msgs {
			if derr := dispatch(msg); derr != nil {
				return rest, derr
			}
		}
		var fe *framing.FrameError
		if errors.As(err, &fe) {
			h.metrics.RecordFrameError()
			h.l.WarnContext(ctx, "stdio.frame.invalid", slog.String("err", fe.Error()), slog.Int("skip", fe.Skip))
			acc = rest[fe.Skip:]
			continue
		}
		return rest, nil
	}
}

// handle runs the dispatcher, converting a panic into an internal error
// response when the request id can be recovered.
func (h *Handler) handle(ctx context.Context, msg jsonrpc.Message) (res *jsonrpc.Response) {
	defer func() {
		if p := recover(); p != nil {
			id, method := jsonrpc.PeekID(msg)
			h.l.ErrorContext(ctx, "stdio.dispatch.panic", slog.String("method", method), slog.Any("panic", p))
			if id.IsNil() {
				res = nil
				return
			}
			res = jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, "internal error", nil)
		}
	}()
	return h.d.Handle(ctx, msg)
}
