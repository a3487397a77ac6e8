// Package mcpservice holds the tool registry served over MCP.
//
// A Registry is an ordered, immutable table of Tools built once at startup.
// Each Tool pairs its listing descriptor with an optional policy gate, a pure
// argument validator and an invocation function. Registry.Invoke runs them
// strictly in that order:
//
//	lookup -> gate -> validate -> invoke
//
// and reports the result as an Outcome, a closed union of the possible
// endings of one call. Transports switch on Outcome.Kind to pick an error
// code; they never inspect error types.
//
// Quick start:
//
//	type EchoArgs struct {
//	    Message string `json:"message" jsonschema:"description=Text to echo"`
//	}
//	echo := mcpservice.NewTool[EchoArgs]("echo",
//	    func(ctx context.Context, a EchoArgs) mcpservice.Outcome {
//	        return mcpservice.OK(map[string]string{"message": a.Message})
//	    },
//	    mcpservice.WithToolDescription("Echo a message back to the caller"),
//	    mcpservice.WithToolValidator(validation.Object(
//	        validation.Required("message", validation.NonEmptyString),
//	    )),
//	)
//	reg, err := mcpservice.NewRegistry(echo)
package mcpservice
