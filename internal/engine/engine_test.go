package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/ggoodman/dhan-mcp/internal/jsonrpc"
	"github.com/ggoodman/dhan-mcp/internal/validation"
	"github.com/ggoodman/dhan-mcp/mcp"
	"github.com/ggoodman/dhan-mcp/mcpservice"
)

type echoArgs struct {
	Message string `json:"message"`
}

func newTestEngine(t *testing.T) (*Engine, *int) {
	t.Helper()
	var trades int
	tools := []mcpservice.Tool{
		mcpservice.NewTool[echoArgs]("echo",
			func(ctx context.Context, a echoArgs) mcpservice.Outcome {
				return mcpservice.OK(map[string]any{"ok": true, "message": a.Message})
			},
			mcpservice.WithToolDescription("Echo"),
			mcpservice.WithToolValidator(validation.Object(
				validation.Required("message", validation.NonEmptyString),
			)),
		),
		mcpservice.NewTool[struct{}]("trade",
			func(context.Context, struct{}) mcpservice.Outcome {
				trades++
				return mcpservice.OK(nil)
			},
			mcpservice.WithToolGate(mcpservice.PolicyGate(false, "Trading tools are disabled.")),
		),
		mcpservice.NewTool[struct{}]("missing_order", func(context.Context, struct{}) mcpservice.Outcome {
			return mcpservice.DomainFailure(404, json.RawMessage(`{"errorCode":"DH-905"}`), "Order not found")
		}),
		mcpservice.NewTool[struct{}]("broken", func(context.Context, struct{}) mcpservice.Outcome {
			return mcpservice.InternalFailure(errors.New("network unreachable"))
		}),
	}
	reg, err := mcpservice.NewRegistry(tools...)
	if err != nil {
		t.Fatal(err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(reg, WithLogger(log)), &trades
}

func handle(t *testing.T, e *Engine, msg string) *jsonrpc.Response {
	t.Helper()
	return e.Handle(context.Background(), jsonrpc.Message(msg))
}

func expectError(t *testing.T, res *jsonrpc.Response, code jsonrpc.ErrorCode, message string) {
	t.Helper()
	if res == nil || res.Error == nil {
		t.Fatalf("expected error response, got %+v", res)
	}
	if res.Error.Code != code {
		t.Fatalf("expected code %d, got %d (%s)", code, res.Error.Code, res.Error.Message)
	}
	if message != "" && res.Error.Message != message {
		t.Fatalf("expected message %q, got %q", message, res.Error.Message)
	}
}

func TestInitialize(t *testing.T) {
	e, _ := newTestEngine(t)
	res := handle(t, e, `{"jsonrpc":"2.0","id":"init-1","method":"initialize","params":{"protocolVersion":"2025-06-18","clientInfo":{"name":"c","version":"1"}}}`)
	if res == nil || res.Error != nil {
		t.Fatalf("unexpected response %+v", res)
	}
	if res.ID.String() != "init-1" {
		t.Fatalf("id not echoed: %q", res.ID.String())
	}
	var got mcp.InitializeResult
	if err := json.Unmarshal(res.Result, &got); err != nil {
		t.Fatal(err)
	}
	if got.ProtocolVersion != "2024-11-05" || got.ServerInfo.Name != "dhan-mcp" || got.ServerInfo.Version != "1.1.0" {
		t.Fatalf("unexpected initialize result %+v", got)
	}
	if string(res.Result) != `{"protocolVersion":"2024-11-05","serverInfo":{"name":"dhan-mcp","version":"1.1.0"},"capabilities":{"tools":{}}}` {
		t.Fatalf("unexpected encoding %s", res.Result)
	}
}

func TestNotificationsProduceNoResponse(t *testing.T) {
	e, _ := newTestEngine(t)
	for _, msg := range []string{
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":1}}`,
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"echo","arguments":{"message":"x"}}}`,
		`{"jsonrpc":"2.0","id":1,"result":{}}`,
	} {
		if res := handle(t, e, msg); res != nil {
			t.Fatalf("%s: expected no response, got %+v", msg, res)
		}
	}
}

func TestPingAndUnknownMethod(t *testing.T) {
	e, _ := newTestEngine(t)
	res := handle(t, e, `{"jsonrpc":"2.0","id":2,"method":"ping"}`)
	if res == nil || res.Error != nil || string(res.Result) != `{}` {
		t.Fatalf("unexpected ping response %+v", res)
	}
	res = handle(t, e, `{"jsonrpc":"2.0","id":3,"method":"resources/list"}`)
	expectError(t, res, jsonrpc.ErrorCodeMethodNotFound, "Method not found: resources/list")
}

func TestToolsList(t *testing.T) {
	e, _ := newTestEngine(t)
	res := handle(t, e, `{"jsonrpc":"2.0","id":4,"method":"tools/list"}`)
	var got mcp.ListToolsResult
	if err := json.Unmarshal(res.Result, &got); err != nil {
		t.Fatal(err)
	}
	names := make([]string, 0, len(got.Tools))
	for _, tool := range got.Tools {
		names = append(names, tool.Name)
	}
	if strings.Join(names, ",") != "echo,trade,missing_order,broken" {
		t.Fatalf("unexpected tool order %v", names)
	}
}

func TestToolCall_Success(t *testing.T) {
	e, _ := newTestEngine(t)
	res := handle(t, e, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"echo","arguments":{"message":"<a&b>"}}}`)
	if res == nil || res.Error != nil {
		t.Fatalf("unexpected response %+v", res)
	}
	var got mcp.CallToolResult
	if err := json.Unmarshal(res.Result, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Content) != 1 || got.Content[0].Type != "text" {
		t.Fatalf("unexpected content %+v", got.Content)
	}
	want := "{\n  \"message\": \"<a&b>\",\n  \"ok\": true\n}"
	if got.Content[0].Text != want {
		t.Fatalf("unexpected text:\n%s\nwant:\n%s", got.Content[0].Text, want)
	}
}

func TestToolCall_ErrorTaxonomy(t *testing.T) {
	e, trades := newTestEngine(t)

	res := handle(t, e, `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"nope"}}`)
	expectError(t, res, jsonrpc.ErrorCodeInvalidRequest, "Unknown tool: nope")

	res = handle(t, e, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"trade","arguments":{"quantity":-1}}}`)
	expectError(t, res, jsonrpc.ErrorCodeToolDisabled, "Trading tools are disabled.")
	if *trades != 0 {
		t.Fatalf("gated tool must not run")
	}

	res = handle(t, e, `{"jsonrpc":"2.0","id":8,"method":"tools/call","params":{"name":"echo","arguments":{"message":"  "}}}`)
	expectError(t, res, jsonrpc.ErrorCodeInvalidParams, "message must be a non-empty string")

	res = handle(t, e, `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"echo","arguments":[1]}}`)
	expectError(t, res, jsonrpc.ErrorCodeInvalidParams, "arguments must be an object")

	res = handle(t, e, `{"jsonrpc":"2.0","id":10,"method":"tools/call","params":"echo"}`)
	expectError(t, res, jsonrpc.ErrorCodeInvalidParams, "")

	res = handle(t, e, `{"jsonrpc":"2.0","id":11,"method":"tools/call","params":{"name":"broken"}}`)
	expectError(t, res, jsonrpc.ErrorCodeInternalError, "network unreachable")
	if res.Error.Data != nil {
		t.Fatalf("internal errors carry no data, got %v", res.Error.Data)
	}
}

func TestToolCall_MissingParamsIsUnknownTool(t *testing.T) {
	e, _ := newTestEngine(t)
	for _, msg := range []string{
		`{"jsonrpc":"2.0","id":20,"method":"tools/call"}`,
		`{"jsonrpc":"2.0","id":21,"method":"tools/call","params":null}`,
		`{"jsonrpc":"2.0","id":22,"method":"tools/call","params":{}}`,
	} {
		expectError(t, handle(t, e, msg), jsonrpc.ErrorCodeInvalidRequest, "Unknown tool: ")
	}
	expectError(t, handle(t, e, `{"jsonrpc":"2.0","id":23,"method":"tools/call","params":[1]}`), jsonrpc.ErrorCodeInvalidParams, "")
}

func TestToolCall_DomainFailureData(t *testing.T) {
	e, _ := newTestEngine(t)
	res := handle(t, e, `{"jsonrpc":"2.0","id":12,"method":"tools/call","params":{"name":"missing_order","arguments":null}}`)
	expectError(t, res, jsonrpc.ErrorCodeDomainError, "Order not found")

	b, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"jsonrpc":"2.0","error":{"code":-32000,"message":"Order not found","data":{"status":404,"payload":{"errorCode":"DH-905"}}},"id":12}`
	if string(b) != want {
		t.Fatalf("unexpected encoding:\n got %s\nwant %s", b, want)
	}
}

func TestInvalidEnvelopes(t *testing.T) {
	e, _ := newTestEngine(t)

	res := handle(t, e, `{"jsonrpc":"1.0","id":"v1","method":"ping"}`)
	expectError(t, res, jsonrpc.ErrorCodeInvalidRequest, "")
	if res.ID.String() != "v1" {
		t.Fatalf("expected recovered id, got %q", res.ID.String())
	}

	if res := handle(t, e, `{"jsonrpc":"1.0","method":"ping"}`); res != nil {
		t.Fatalf("expected invalid message without id to be dropped, got %+v", res)
	}
	if res := handle(t, e, `[1,2,3]`); res != nil {
		t.Fatalf("expected non-object message to be dropped, got %+v", res)
	}
}
