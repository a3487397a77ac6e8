package stdio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/dhan-mcp/internal/engine"
	"github.com/ggoodman/dhan-mcp/internal/framing"
	"github.com/ggoodman/dhan-mcp/internal/jsonrpc"
	"github.com/ggoodman/dhan-mcp/mcpservice"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// testHarness encapsulates pipes and collected output for stdio handler tests.
type testHarness struct {
	t      *testing.T
	cancel context.CancelFunc
	stdinW *io.PipeWriter
	done   chan error
	outMu  sync.Mutex
	out    []jsonrpc.Message
}

func newHarness(t *testing.T, d Dispatcher, opts ...Option) *testHarness {
	t.Helper()

	// wire stdio via io.Pipe
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	h := NewHandler(d, append([]Option{WithIO(inR, outW), WithLogger(discard)}, opts...)...)

	ctx, cancel := context.WithCancel(context.Background())
	th := &testHarness{t: t, cancel: cancel, stdinW: inW, done: make(chan error, 1)}

	go func() {
		th.done <- h.Serve(ctx)
		_ = outW.Close()
	}()

	// stdout collector decodes frames as they arrive
	go func() {
		codec := framing.New()
		buf := make([]byte, 4096)
		var acc []byte
		for {
			n, err := outR.Read(buf)
			acc = append(acc, buf[:n]...)
			msgs, rest, derr := codec.Decode(acc)
			acc = rest
			th.outMu.Lock()
			th.out = append(th.out, msgs...)
			th.outMu.Unlock()
			if err != nil || derr != nil {
				return
			}
		}
	}()

	t.Cleanup(func() {
		cancel()
		_ = inW.Close()
	})
	return th
}

func (th *testHarness) sendRaw(b []byte) {
	th.t.Helper()
	if _, err := th.stdinW.Write(b); err != nil {
		th.t.Fatalf("write stdin: %v", err)
	}
}

func (th *testHarness) send(v any) {
	th.t.Helper()
	frame, err := framing.New().Encode(v)
	if err != nil {
		th.t.Fatal(err)
	}
	th.sendRaw(frame)
}

func (th *testHarness) next(timeout time.Duration) (jsonrpc.Message, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		th.outMu.Lock()
		if len(th.out) > 0 {
			m := th.out[0]
			th.out = th.out[1:]
			th.outMu.Unlock()
			return m, nil
		}
		th.outMu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	return nil, fmt.Errorf("timeout waiting for output frame")
}

func (th *testHarness) expectResponse(timeout time.Duration) *jsonrpc.Response {
	th.t.Helper()
	msg, err := th.next(timeout)
	if err != nil {
		th.t.Fatal(err)
	}
	var m jsonrpc.AnyMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		th.t.Fatalf("decode output: %v", err)
	}
	if m.Type() != jsonrpc.TypeResponse {
		th.t.Fatalf("expected response, got %s", m.Type())
	}
	return m.AsResponse()
}

func (th *testHarness) expectQuiet(d time.Duration) {
	th.t.Helper()
	time.Sleep(d)
	th.outMu.Lock()
	defer th.outMu.Unlock()
	if len(th.out) != 0 {
		th.t.Fatalf("expected no output, got %s", th.out[0])
	}
}

func request(id any, method string, params any) map[string]any {
	m := map[string]any{"jsonrpc": "2.0", "method": method}
	if id != nil {
		m["id"] = id
	}
	if params != nil {
		m["params"] = params
	}
	return m
}

func callTool(id any, name string) map[string]any {
	return request(id, "tools/call", map[string]any{"name": name, "arguments": map[string]any{}})
}

// newTestEngine registers a "slow" tool that blocks until release is closed
// and a "fast" tool that returns immediately.
func newTestEngine(t *testing.T, release <-chan struct{}) *engine.Engine {
	t.Helper()
	slow := mcpservice.NewTool[struct{}]("slow", func(ctx context.Context, _ struct{}) mcpservice.Outcome {
		<-release
		return mcpservice.OK("slow")
	})
	fast := mcpservice.NewTool[struct{}]("fast", func(ctx context.Context, _ struct{}) mcpservice.Outcome {
		return mcpservice.OK("fast")
	})
	reg, err := mcpservice.NewRegistry(slow, fast)
	if err != nil {
		t.Fatal(err)
	}
	return engine.NewEngine(reg, engine.WithLogger(discard))
}

func TestServe_InitializeEchoesID(t *testing.T) {
	th := newHarness(t, newTestEngine(t, nil))
	th.send(request("init-1", "initialize", map[string]any{"protocolVersion": "2024-11-05"}))

	res := th.expectResponse(time.Second)
	if res.ID.String() != "init-1" || res.Error != nil {
		t.Fatalf("unexpected response %+v", res)
	}
	if !strings.Contains(string(res.Result), `"protocolVersion":"2024-11-05"`) {
		t.Fatalf("unexpected result %s", res.Result)
	}
}

func TestServe_NotificationProducesNoOutput(t *testing.T) {
	th := newHarness(t, newTestEngine(t, nil))
	th.send(request(nil, "notifications/initialized", nil))
	th.expectQuiet(50 * time.Millisecond)

	th.send(request(7, "ping", nil))
	if res := th.expectResponse(time.Second); res.ID.String() != "7" {
		t.Fatalf("expected ping response, got %+v", res)
	}
}

func TestServe_ResponsesCorrelateByIDOutOfOrder(t *testing.T) {
	release := make(chan struct{})
	th := newHarness(t, newTestEngine(t, release))

	th.send(callTool("a", "slow"))
	th.send(callTool("b", "fast"))

	first := th.expectResponse(time.Second)
	if first.ID.String() != "b" {
		t.Fatalf("fast call must not wait for slow one, got id %q first", first.ID.String())
	}
	close(release)
	second := th.expectResponse(time.Second)
	if second.ID.String() != "a" || second.Error != nil {
		t.Fatalf("unexpected slow response %+v", second)
	}
}

func TestServe_RecoversAfterBadFrame(t *testing.T) {
	th := newHarness(t, newTestEngine(t, nil))

	th.sendRaw([]byte("X-Bogus: 1\r\n\r\n"))
	th.sendRaw(framing.Frame([]byte("{not json")))
	th.send(request(1, "ping", nil))

	res := th.expectResponse(time.Second)
	if res.ID.String() != "1" || res.Error != nil {
		t.Fatalf("expected ping response after bad frames, got %+v", res)
	}
	th.expectQuiet(20 * time.Millisecond)
}

func TestServe_SplitFramesAcrossWrites(t *testing.T) {
	th := newHarness(t, newTestEngine(t, nil))
	frame, err := framing.New().Encode(request(3, "ping", nil))
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range frame {
		th.sendRaw([]byte{b})
	}
	if res := th.expectResponse(time.Second); res.ID.String() != "3" {
		t.Fatalf("unexpected response %+v", res)
	}
}

func TestServe_MaxInFlightAppliesBackpressure(t *testing.T) {
	release := make(chan struct{})
	th := newHarness(t, newTestEngine(t, release), WithMaxInFlight(1))

	th.send(callTool("a", "slow"))
	th.send(request("b", "ping", nil))
	th.expectQuiet(50 * time.Millisecond)

	close(release)
	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		got[th.expectResponse(time.Second).ID.String()] = true
	}
	if !got["a"] || !got["b"] {
		t.Fatalf("expected both responses, got %v", got)
	}
}

func TestServe_EOFWaitsForInFlight(t *testing.T) {
	release := make(chan struct{})
	th := newHarness(t, newTestEngine(t, release))

	th.send(callTool("a", "slow"))
	time.Sleep(20 * time.Millisecond)
	_ = th.stdinW.Close()

	select {
	case err := <-th.done:
		t.Fatalf("Serve returned before in-flight call finished: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if res := th.expectResponse(time.Second); res.ID.String() != "a" {
		t.Fatalf("unexpected response %+v", res)
	}
	select {
	case err := <-th.done:
		if err != nil {
			t.Fatalf("expected clean EOF, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Serve did not return after EOF")
	}
}

type dispatcherFunc func(ctx context.Context, msg jsonrpc.Message) *jsonrpc.Response

func (f dispatcherFunc) Handle(ctx context.Context, msg jsonrpc.Message) *jsonrpc.Response {
	return f(ctx, msg)
}

func TestServe_DispatcherPanicBecomesInternalError(t *testing.T) {
	th := newHarness(t, dispatcherFunc(func(context.Context, jsonrpc.Message) *jsonrpc.Response {
		panic("boom")
	}))
	th.send(request(9, "tools/list", nil))

	res := th.expectResponse(time.Second)
	if res.Error == nil || res.Error.Code != jsonrpc.ErrorCodeInternalError || res.ID.String() != "9" {
		t.Fatalf("unexpected response %+v", res)
	}
}

func TestServe_DispatchContextIsNotCancelled(t *testing.T) {
	seen := make(chan error, 1)
	d := dispatcherFunc(func(ctx context.Context, msg jsonrpc.Message) *jsonrpc.Response {
		time.Sleep(100 * time.Millisecond)
		seen <- ctx.Err()
		return nil
	})
	th := newHarness(t, d)
	th.send(request(nil, "notifications/initialized", nil))
	time.Sleep(20 * time.Millisecond)
	th.cancel()

	select {
	case err := <-seen:
		if err != nil {
			t.Fatalf("dispatch context must survive serve cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("dispatch never finished")
	}
	if err := <-th.done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestServe_WriteFailureIsFatal(t *testing.T) {
	frame, err := framing.New().Encode(request(1, "ping", nil))
	if err != nil {
		t.Fatal(err)
	}
	h := NewHandler(newTestEngine(t, nil), WithIO(bytes.NewReader(frame), failingWriter{}), WithLogger(discard))
	err = h.Serve(context.Background())
	if err == nil || !strings.Contains(err.Error(), "broken pipe") {
		t.Fatalf("expected write error, got %v", err)
	}
}
