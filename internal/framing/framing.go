// Package framing implements the Content-Length framing used by the MCP stdio
// transport:
//
//	Content-Length: <n>\r\n
//	\r\n
//	<n bytes of JSON>
//
// Decoding is incremental. The caller owns an accumulator, appends each chunk
// read from the stream to it, and replaces it with the remainder returned by
// Decode. A frame that has not fully arrived yet is left in the remainder
// untouched; it is not an error.
package framing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ggoodman/dhan-mcp/internal/jsonrpc"
)

// DefaultMaxFrameSize bounds the declared body length of a single frame.
const DefaultMaxFrameSize = 4 << 20

// maxHeaderSize bounds a header block that has not been terminated yet.
const maxHeaderSize = 8 << 10

const lengthHeader = "content-length"

var delimiter = []byte("\r\n\r\n")

// FrameError reports a frame that cannot be decoded. Skip is the number of
// bytes, counted from the start of the remainder returned alongside the
// error, that the caller must discard before decoding can resume.
type FrameError struct {
	Reason string
	Skip   int
}

func (e *FrameError) Error() string {
	return "invalid frame: " + e.Reason
}

// Codec encodes and decodes frames.
type Codec struct {
	maxFrameSize int
}

// Option customizes a Codec.
type Option func(*Codec)

// WithMaxFrameSize overrides the maximum accepted body length. Non-positive
// values are ignored.
func WithMaxFrameSize(n int) Option {
	return func(c *Codec) {
		if n > 0 {
			c.maxFrameSize = n
		}
	}
}

// New constructs a Codec.
func New(opts ...Option) *Codec {
	c := &Codec{maxFrameSize: DefaultMaxFrameSize}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Decode extracts every complete frame from buf, in order. It never mutates
// buf and the returned messages do not alias it.
//
// When a frame is malformed, Decode returns the messages that preceded it,
// a remainder starting at the malformed frame and a *FrameError.
func (c *Codec) Decode(buf []byte) ([]jsonrpc.Message, []byte, error) {
	var msgs []jsonrpc.Message
	rest := buf

	for {
		headerEnd := bytes.Index(rest, delimiter)
		if headerEnd == -1 {
			if len(rest) > maxHeaderSize {
				return msgs, rest, &FrameError{Reason: "header block exceeds maximum size", Skip: len(rest)}
			}
			return msgs, rest, nil
		}
		bodyStart := headerEnd + len(delimiter)

		n, err := c.contentLength(rest[:headerEnd])
		if err != nil {
			return msgs, rest, &FrameError{Reason: err.Error(), Skip: bodyStart}
		}

		bodyEnd := bodyStart + n
		if len(rest) < bodyEnd {
			return msgs, rest, nil
		}

		body := rest[bodyStart:bodyEnd]
		if !json.Valid(body) {
			return msgs, rest, &FrameError{Reason: "body is not valid JSON", Skip: bodyEnd}
		}

		msgs = append(msgs, jsonrpc.Message(bytes.Clone(body)))
		rest = rest[bodyEnd:]
	}
}

func (c *Codec) contentLength(header []byte) (int, error) {
	for _, line := range strings.Split(string(header), "\r\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), lengthHeader) {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" || strings.TrimLeft(value, "0123456789") != "" {
			return 0, fmt.Errorf("Content-Length %q is not a non-negative integer", value)
		}
		n, err := strconv.Atoi(value)
		if err != nil || n > c.maxFrameSize {
			return 0, fmt.Errorf("Content-Length %s exceeds maximum of %d", value, c.maxFrameSize)
		}
		return n, nil
	}
	return 0, fmt.Errorf("missing Content-Length header")
}

// MaxFrameSize reports the largest accepted body length.
func (c *Codec) MaxFrameSize() int { return c.maxFrameSize }

// Encode marshals v and wraps it in a frame. The declared length is the byte
// length of the encoded body.
func (c *Codec) Encode(v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	return Frame(body), nil
}

// Frame wraps an already encoded body.
func Frame(body []byte) []byte {
	header := "Content-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n"
	out := make([]byte, 0, len(header)+len(body))
	out = append(out, header...)
	return append(out, body...)
}
