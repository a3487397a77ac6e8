// Package dhan is a minimal client for the Dhan v2 trading REST API.
//
// Every call returns the broker's JSON response unchanged. Failures reported
// by the broker (non-2xx statuses and timeouts) are returned as *APIError;
// anything else is a transport error.
package dhan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the Dhan v2 production endpoint.
	DefaultBaseURL = "https://api.dhan.co/v2"
	// DefaultTimeout bounds one request including reading the response.
	DefaultTimeout = 15 * time.Second
)

// maxResponseSize bounds how much of a response body is read.
const maxResponseSize = 16 << 20

var (
	jsonMediaType = contenttype.NewMediaType("application/json")
	emptyObject   = json.RawMessage("{}")
)

var (
	ErrMissingAccessToken = errors.New("dhan: access token is required")
	ErrMissingClientID    = errors.New("dhan: client id is required")
)

// APIError is a failure reported by the broker.
type APIError struct {
	Status  int
	Message string
	Payload json.RawMessage
}

func (e *APIError) Error() string { return e.Message }

// Client calls the Dhan REST API. It is safe for concurrent use.
type Client struct {
	baseURL     string
	accessToken string
	clientID    string
	timeout     time.Duration
	http        *http.Client
	limiter     *rate.Limiter
	log         *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the API root, e.g. for the sandbox environment.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithTimeout overrides the per-request timeout. Non-positive values are
// ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithRateLimit limits outgoing requests to perSecond with a burst of one
// second's worth. Zero or negative disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient constructs a Client authenticated with accessToken and clientID.
func NewClient(accessToken, clientID string, opts ...Option) (*Client, error) {
	if accessToken == "" {
		return nil, ErrMissingAccessToken
	}
	if clientID == "" {
		return nil, ErrMissingClientID
	}
	c := &Client{
		baseURL:     DefaultBaseURL,
		accessToken: accessToken,
		clientID:    clientID,
		timeout:     DefaultTimeout,
		http:        &http.Client{},
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ClientID returns the Dhan client id used to authenticate.
func (c *Client) ClientID() string { return c.clientID }

// Profile fetches the account profile.
func (c *Client) Profile(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/profile", nil)
}

// Funds fetches fund limits.
func (c *Client) Funds(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/fundlimit", nil)
}

// Positions fetches open and closed positions.
func (c *Client) Positions(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/positions", nil)
}

// Holdings fetches demat holdings.
func (c *Client) Holdings(ctx context.Context) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/holdings", nil)
}

// OrderByID fetches one order.
func (c *Client) OrderByID(ctx context.Context, orderID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil)
}

// PlaceOrder submits a new order. The client id is filled in when empty.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (json.RawMessage, error) {
	if req.DhanClientID == "" {
		req.DhanClientID = c.clientID
	}
	return c.do(ctx, http.MethodPost, "/orders", req)
}

// CancelOrder cancels a pending order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, "/orders/"+url.PathEscape(orderID), nil)
}

// HistoricalCharts fetches daily candles.
func (c *Client) HistoricalCharts(ctx context.Context, req ChartRequest) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, "/charts/historical", req)
}

func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	start := time.Now()
	log := c.log.With(slog.String("http_method", method), slog.String("path", path))

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("dhan: rate limit wait: %w", err)
		}
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("dhan: encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("dhan: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("access-token", c.accessToken)
	req.Header.Set("client-id", c.clientID)

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			log.WarnContext(ctx, "dhan.request.timeout", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return nil, timeoutError()
		}
		log.ErrorContext(ctx, "dhan.request.fail", slog.String("err", err.Error()))
		return nil, fmt.Errorf("dhan: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if isTimeout(err) {
			log.WarnContext(ctx, "dhan.request.timeout", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return nil, timeoutError()
		}
		return nil, fmt.Errorf("dhan: read response: %w", err)
	}
	payload := decodePayload(raw)
	if ct := resp.Header.Get("Content-Type"); len(raw) > 0 && !isJSONMediaType(ct) {
		log.WarnContext(ctx, "dhan.response.media_type_mismatch", slog.String("content_type", ct), slog.Bool("json_body", json.Valid(bytes.TrimSpace(raw))))
	}

	log.InfoContext(ctx, "dhan.request.done", slog.Int("status", resp.StatusCode), slog.Int64("dur_ms", time.Since(start).Milliseconds()))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Status:  resp.StatusCode,
			Message: errorMessage(payload, resp.StatusCode),
			Payload: payload,
		}
	}
	return payload, nil
}

// decodePayload keeps any valid JSON body as is, whatever media type the
// broker declared. Empty bodies and bodies that are not valid JSON become {}.
func decodePayload(raw []byte) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || !json.Valid(raw) {
		return emptyObject
	}
	return json.RawMessage(raw)
}

// isJSONMediaType reports whether contentType names application/json or a
// +json structured syntax. An absent header counts as JSON.
func isJSONMediaType(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt := contenttype.NewMediaType(contentType)
	return mt.Matches(jsonMediaType) || strings.HasSuffix(mt.Subtype, "+json")
}

func errorMessage(payload json.RawMessage, status int) string {
	var body struct {
		Message      string `json:"message"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.ErrorMessage != "" {
			return body.ErrorMessage
		}
	}
	return fmt.Sprintf("Dhan request failed with status %d", status)
}

func timeoutError() *APIError {
	return &APIError{Status: http.StatusRequestTimeout, Message: "Dhan request timed out", Payload: emptyObject}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
