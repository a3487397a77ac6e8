package mcpservice

import "fmt"

// OutcomeKind enumerates the ways a tool invocation can end.
type OutcomeKind int

const (
	// OutcomeOK carries the executor's value.
	OutcomeOK OutcomeKind = iota
	// OutcomeUnknownTool means no tool with the requested name exists.
	OutcomeUnknownTool
	// OutcomeDisabled means the tool's policy gate is closed.
	OutcomeDisabled
	// OutcomeInvalidArgs means the arguments failed validation.
	OutcomeInvalidArgs
	// OutcomeDomainFailure means the upstream system reported a failure.
	OutcomeDomainFailure
	// OutcomeInternalFailure covers every other failure.
	OutcomeInternalFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeUnknownTool:
		return "unknown_tool"
	case OutcomeDisabled:
		return "disabled"
	case OutcomeInvalidArgs:
		return "invalid_args"
	case OutcomeDomainFailure:
		return "domain_failure"
	case OutcomeInternalFailure:
		return "internal_failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the result of one tool invocation. Only the fields relevant to
// Kind are set.
type Outcome struct {
	Kind OutcomeKind

	// Value is the executor result for OutcomeOK.
	Value any
	// Message explains any non-OK outcome.
	Message string
	// Status and Payload describe an OutcomeDomainFailure as reported upstream.
	Status  int
	Payload any
}

// OK wraps a successful executor result.
func OK(v any) Outcome { return Outcome{Kind: OutcomeOK, Value: v} }

// DomainFailure reports a failure the upstream system itself returned.
func DomainFailure(status int, payload any, message string) Outcome {
	return Outcome{Kind: OutcomeDomainFailure, Status: status, Payload: payload, Message: message}
}

// InternalFailure reports any failure that is not attributable to the caller
// or to the upstream system.
func InternalFailure(err error) Outcome {
	return Outcome{Kind: OutcomeInternalFailure, Message: err.Error()}
}

func unknownTool(name string) Outcome {
	return Outcome{Kind: OutcomeUnknownTool, Message: "Unknown tool: " + name}
}

func disabled(reason string) Outcome {
	return Outcome{Kind: OutcomeDisabled, Message: reason}
}

func invalidArgs(reason string) Outcome {
	return Outcome{Kind: OutcomeInvalidArgs, Message: reason}
}
