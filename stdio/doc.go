// Package stdio implements a single-connection MCP transport over
// stdin/stdout using Content-Length framing.
//
// Characteristics
//
//	Connection model : 1 process <-> 1 client
//	Framing          : Content-Length header, blank line, JSON body
//	Dispatch         : one goroutine per message, bounded by MaxInFlight
//	Ordering         : responses leave in completion order, correlated by id
//	Cancellation     : none; dispatched calls run to completion
//
// Options allow supplying alternate io.Reader / io.Writer, a custom logger,
// a framing codec and metrics.
//
// Example:
//
//	reg, _ := mcpservice.NewRegistry(tools...)
//	h := stdio.NewHandler(engine.NewEngine(reg))
//	if err := h.Serve(ctx); err != nil { log.Fatal(err) }
//
// Logs are never written to stdout; the writer carries protocol frames only.
package stdio
