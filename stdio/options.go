package stdio

import (
	"io"
	"log/slog"

	"github.com/ggoodman/dhan-mcp/internal/framing"
	"github.com/ggoodman/dhan-mcp/internal/metrics"
)

// Option customizes a Handler.
type Option func(*Handler)

// WithIO sets the reader and writer for the handler.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
		if w != nil {
			h.w = w
		}
	}
}

// WithReader overrides the input stream.
func WithReader(r io.Reader) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
	}
}

// WithWriter overrides the output stream.
func WithWriter(w io.Writer) Option {
	return func(h *Handler) {
		if w != nil {
			h.w = w
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.l = l
		}
	}
}

// WithMaxInFlight caps concurrently dispatched messages. When the cap is
// reached the read loop stops reading until a dispatch completes.
// Non-positive values are ignored.
func WithMaxInFlight(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxInFlight = int64(n)
		}
	}
}

// WithCodec overrides the framing codec.
func WithCodec(c *framing.Codec) Option {
	return func(h *Handler) {
		if c != nil {
			h.codec = c
		}
	}
}

// WithMetrics records frame errors and in-flight dispatches on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}
