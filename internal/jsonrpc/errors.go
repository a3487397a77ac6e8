package jsonrpc

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// ErrorCodeParseError indicates invalid JSON was received by the server.
	// Frames that fail to decode are logged with this code and never answered
	// because the originating id cannot be trusted.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates the JSON sent is not a valid Request
	// object, or that it names a tool the server does not have.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist / is not available.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters, including
	// tool arguments that fail validation.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates an internal JSON-RPC error.
	ErrorCodeInternalError ErrorCode = -32603

	// ErrorCodeDomainError indicates the broker itself rejected the call. The
	// error data carries the upstream status and payload.
	ErrorCodeDomainError ErrorCode = -32000
	// ErrorCodeToolDisabled indicates a tool is switched off by process policy.
	ErrorCodeToolDisabled ErrorCode = -32001
)

// String returns a short label for the code, suitable for logs and metrics.
func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeParseError:
		return "parse_error"
	case ErrorCodeInvalidRequest:
		return "invalid_request"
	case ErrorCodeMethodNotFound:
		return "method_not_found"
	case ErrorCodeInvalidParams:
		return "invalid_params"
	case ErrorCodeInternalError:
		return "internal_error"
	case ErrorCodeDomainError:
		return "domain_error"
	case ErrorCodeToolDisabled:
		return "tool_disabled"
	default:
		return "unknown"
	}
}
