// Package engine implements the MCP method dispatcher. It is transport
// agnostic: Handle takes one decoded JSON-RPC message and returns the single
// response to write, or nil when nothing must be written.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ggoodman/dhan-mcp/internal/jsonrpc"
	"github.com/ggoodman/dhan-mcp/internal/logctx"
	"github.com/ggoodman/dhan-mcp/internal/metrics"
	"github.com/ggoodman/dhan-mcp/mcp"
	"github.com/ggoodman/dhan-mcp/mcpservice"
)

// DefaultServerInfo is reported in the initialize result unless overridden.
var DefaultServerInfo = mcp.ImplementationInfo{Name: "dhan-mcp", Version: "1.1.0"}

// Engine routes MCP messages to the tool registry. It holds no per-connection
// state and is safe for concurrent use.
type Engine struct {
	tools   *mcpservice.Registry
	info    mcp.ImplementationInfo
	log     *slog.Logger
	metrics *metrics.Metrics
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom logger for the Engine.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithServerInfo overrides the implementation info sent on initialize.
func WithServerInfo(info mcp.ImplementationInfo) EngineOption {
	return func(e *Engine) { e.info = info }
}

// WithMetrics records message and tool call metrics on m.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine constructs an Engine serving the tools registered in tools.
func NewEngine(tools *mcpservice.Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		tools: tools,
		info:  DefaultServerInfo,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Handle dispatches one message. It returns nil for notifications, for
// responses sent by the peer and for invalid messages whose id cannot be
// recovered. Any other input yields exactly one response.
func (e *Engine) Handle(ctx context.Context, msg jsonrpc.Message) *jsonrpc.Response {
	var m jsonrpc.AnyMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		e.metrics.RecordMessage("invalid")
		id, method := jsonrpc.PeekID(msg)
		ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: method, ID: id.String(), Type: "invalid"})
		if id.IsNil() {
			e.log.WarnContext(ctx, "engine.message.invalid", slog.String("err", err.Error()), slog.Bool("dropped", true))
			return nil
		}
		e.log.WarnContext(ctx, "engine.message.invalid", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInvalidRequest, "Invalid Request", nil)
	}

	typ := m.Type()
	e.metrics.RecordMessage(string(typ))
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: m.Method, ID: m.ID.String(), Type: string(typ)})

	switch typ {
	case jsonrpc.TypeResponse:
		// This server never issues requests, so there is nothing to correlate.
		e.log.DebugContext(ctx, "engine.client_response.dropped")
		return nil
	case jsonrpc.TypeNotification:
		e.HandleNotification(ctx, m.AsRequest())
		return nil
	default:
		return e.HandleRequest(ctx, m.AsRequest())
	}
}

// HandleRequest produces the response for a request carrying an id.
func (e *Engine) HandleRequest(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	switch req.Method {
	case string(mcp.InitializeMethod):
		return e.handleInitialize(ctx, req)
	case string(mcp.PingMethod):
		return e.result(ctx, req, mcp.EmptyResult{})
	case string(mcp.ToolsListMethod):
		return e.handleToolsList(ctx, req)
	case string(mcp.ToolsCallMethod):
		return e.handleToolCall(ctx, req)
	}

	e.log.InfoContext(ctx, "engine.handle_request.unsupported")
	return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "Method not found: "+req.Method, nil)
}

// HandleNotification processes a notification. Nothing is ever written back.
func (e *Engine) HandleNotification(ctx context.Context, note *jsonrpc.Request) {
	switch note.Method {
	case string(mcp.InitializedNotificationMethod):
		e.log.InfoContext(ctx, "engine.session.initialized")
	case string(mcp.CancelledNotificationMethod):
		// Invocations run to completion; cancellation requests are only recorded.
		e.log.DebugContext(ctx, "engine.handle_notification.cancel_ignored")
	default:
		e.log.DebugContext(ctx, "engine.handle_notification.ignored")
	}
}

func (e *Engine) handleInitialize(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var params mcp.InitializeRequest
	if len(req.Params) > 0 {
		// The handshake never fails; client details are informational.
		if err := json.Unmarshal(req.Params, &params); err != nil {
			e.log.DebugContext(ctx, "engine.initialize.params_ignored", slog.String("err", err.Error()))
		}
	}
	e.log.InfoContext(ctx, "engine.initialize",
		slog.String("client_name", params.ClientInfo.Name),
		slog.String("client_version", params.ClientInfo.Version),
		slog.String("client_protocol", params.ProtocolVersion),
	)

	return e.result(ctx, req, &mcp.InitializeResult{
		ProtocolVersion: mcp.ProtocolVersion,
		ServerInfo:      e.info,
		Capabilities:    mcp.ServerCapabilities{Tools: &mcp.ToolsCapability{}},
	})
}

func (e *Engine) handleToolsList(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()
	tools := e.tools.List()
	e.log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()), slog.Int("tool_count", len(tools)))
	return e.result(ctx, req, &mcp.ListToolsResult{Tools: tools})
}

func (e *Engine) handleToolCall(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	start := time.Now()

	// Absent params take the same path as {}: an unknown, empty tool name.
	raw := req.Params
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var params mcp.CallToolRequestReceived
	if err := json.Unmarshal(raw, &params); err != nil {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "Invalid params: "+err.Error(), nil)
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name})

	out := e.tools.Invoke(ctx, params.Name, params.Arguments)
	dur := time.Since(start)
	e.metrics.RecordToolCall(params.Name, out.Kind.String(), dur)

	switch out.Kind {
	case mcpservice.OutcomeOK:
		text, err := prettyJSON(out.Value)
		if err != nil {
			e.log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", dur.Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, err.Error(), nil)
		}
		e.log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", dur.Milliseconds()))
		return e.result(ctx, req, &mcp.CallToolResult{
			Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: text}},
		})
	case mcpservice.OutcomeUnknownTool, mcpservice.OutcomeDisabled, mcpservice.OutcomeInvalidArgs:
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("outcome", out.Kind.String()), slog.String("err", out.Message), slog.Int64("dur_ms", dur.Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, errorCode(out.Kind), out.Message, nil)
	case mcpservice.OutcomeDomainFailure:
		e.log.WarnContext(ctx, "engine.handle_request.fail", slog.String("outcome", out.Kind.String()), slog.Int("status", out.Status), slog.String("err", out.Message), slog.Int64("dur_ms", dur.Milliseconds()))
		payload := out.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeDomainError, out.Message, domainErrorData{Status: out.Status, Payload: payload})
	default:
		e.log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("outcome", out.Kind.String()), slog.String("err", out.Message), slog.Int64("dur_ms", dur.Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, out.Message, nil)
	}
}

type domainErrorData struct {
	Status  int `json:"status"`
	Payload any `json:"payload"`
}

func errorCode(k mcpservice.OutcomeKind) jsonrpc.ErrorCode {
	switch k {
	case mcpservice.OutcomeUnknownTool:
		return jsonrpc.ErrorCodeInvalidRequest
	case mcpservice.OutcomeDisabled:
		return jsonrpc.ErrorCodeToolDisabled
	case mcpservice.OutcomeInvalidArgs:
		return jsonrpc.ErrorCodeInvalidParams
	case mcpservice.OutcomeDomainFailure:
		return jsonrpc.ErrorCodeDomainError
	default:
		return jsonrpc.ErrorCodeInternalError
	}
}

func (e *Engine) result(ctx context.Context, req *jsonrpc.Request, v any) *jsonrpc.Response {
	res, err := jsonrpc.NewResultResponse(req.ID, v)
	if err != nil {
		e.log.ErrorContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInternalError, "internal error", nil)
	}
	return res
}

// prettyJSON renders v with two-space indentation and without HTML escaping.
func prettyJSON(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}
