package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID represents a JSON-RPC ID that can be either a string or a number.
// Numbers are echoed back exactly as the peer sent them.
type RequestID struct {
	value any // string | json.Number
}

// NewRequestID creates a RequestID from a string or an integer/float value.
// Unsupported types yield an empty id.
func NewRequestID(value any) *RequestID {
	switch v := value.(type) {
	case string:
		return &RequestID{value: v}
	case json.Number:
		return &RequestID{value: v}
	case int:
		return &RequestID{value: json.Number(strconv.FormatInt(int64(v), 10))}
	case int32:
		return &RequestID{value: json.Number(strconv.FormatInt(int64(v), 10))}
	case int64:
		return &RequestID{value: json.Number(strconv.FormatInt(v, 10))}
	case uint64:
		return &RequestID{value: json.Number(strconv.FormatUint(v, 10))}
	case float64:
		return &RequestID{value: json.Number(strconv.FormatFloat(v, 'f', -1, 64))}
	default:
		return &RequestID{value: nil}
	}
}

// String returns the string representation of the ID.
func (id *RequestID) String() string {
	if id == nil || id.value == nil {
		return ""
	}
	switch v := id.value.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		panic("unreachable: RequestID contains unsupported type")
	}
}

// Value returns the underlying value.
func (id *RequestID) Value() any {
	if id == nil {
		return nil
	}
	return id.value
}

// IsNil returns true if the ID is nil/empty.
func (id *RequestID) IsNil() bool {
	return id == nil || id.value == nil
}

// Equal reports whether two ids have the same type and value.
func (id *RequestID) Equal(other *RequestID) bool {
	if id.IsNil() || other.IsNil() {
		return id.IsNil() && other.IsNil()
	}
	return id.value == other.value
}

// MarshalJSON implements json.Marshaler.
func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id == nil || id.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		id.value = nil
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return fmt.Errorf("JSON-RPC ID must be a string or number, got: %s", string(data))
		}
		id.value = str
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var num json.Number
	if err := dec.Decode(&num); err != nil {
		return fmt.Errorf("JSON-RPC ID must be a string or number, got: %s", string(data))
	}
	id.value = num
	return nil
}
