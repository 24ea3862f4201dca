// Package wire implements the OCPP-J message envelope: JSON tuples
// [messageTypeId, messageId, ...] framing Call, CallResult and CallError.
package wire

import (
	"encoding/json"
	"fmt"
)

// Message type ids on the wire.
const (
	MessageTypeCall       = 2
	MessageTypeCallResult = 3
	MessageTypeCallError  = 4
)

// MaxMessageIdLength bounds the messageId field.
const MaxMessageIdLength = 36

// ErrorCode is an OCPP-J CallError code.
type ErrorCode string

const (
	CodeFormationViolation          ErrorCode = "FormationViolation"
	CodeGenericError                ErrorCode = "GenericError"
	CodeInternalError               ErrorCode = "InternalError"
	CodeNotImplemented              ErrorCode = "NotImplemented"
	CodeNotSupported                ErrorCode = "NotSupported"
	CodeProtocolError               ErrorCode = "ProtocolError"
	CodePropertyConstraintViolation ErrorCode = "PropertyConstraintViolation"
	CodeSecurityError               ErrorCode = "SecurityError"
)

// ErrorKind classifies decode failures.
type ErrorKind int

const (
	// FormatError: the tuple shape is wrong.
	FormatError ErrorKind = iota
	// ProtocolError: the messageTypeId is unknown.
	ProtocolError
	// SchemaError: the inner payload does not validate for the action.
	SchemaError
	// Unsupported: no schema is registered for the action.
	Unsupported
)

func (k ErrorKind) String() string {
	switch k {
	case FormatError:
		return "FormatError"
	case ProtocolError:
		return "ProtocolError"
	case SchemaError:
		return "SchemaError"
	case Unsupported:
		return "Unsupported"
	default:
		return "UnknownError"
	}
}

// DecodeError reports why a frame could not be decoded or validated.
type DecodeError struct {
	Kind ErrorKind
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func newDecodeError(kind ErrorKind, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Call is a type-2 frame: [2, id, action, payload].
type Call struct {
	ID      string
	Action  string
	Payload json.RawMessage
}

// CallResult is a type-3 frame: [3, id, payload].
type CallResult struct {
	ID      string
	Payload json.RawMessage
}

// CallError is a type-4 frame: [4, id, errorCode, errorDescription, errorDetails].
type CallError struct {
	ID          string
	Code        ErrorCode
	Description string
	Details     json.RawMessage
}

func (c *Call) MarshalJSON() ([]byte, error) {
	payload := c.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return json.Marshal([]interface{}{MessageTypeCall, c.ID, c.Action, payload})
}

func (r *CallResult) MarshalJSON() ([]byte, error) {
	payload := r.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return json.Marshal([]interface{}{MessageTypeCallResult, r.ID, payload})
}

func (e *CallError) MarshalJSON() ([]byte, error) {
	details := e.Details
	if len(details) == 0 {
		details = json.RawMessage("{}")
	}
	return json.Marshal([]interface{}{MessageTypeCallError, e.ID, e.Code, e.Description, details})
}

// NewCall builds a Call frame, marshalling the payload canonically.
func NewCall(id, action string, payload interface{}) (*Call, error) {
	if len(id) == 0 || len(id) > MaxMessageIdLength {
		return nil, fmt.Errorf("message id must be 1-%d chars, got %d", MaxMessageIdLength, len(id))
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", action, err)
	}
	return &Call{ID: id, Action: action, Payload: raw}, nil
}

// NewCallResult builds a CallResult frame.
func NewCallResult(id string, payload interface{}) (*CallResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal result payload: %w", err)
	}
	return &CallResult{ID: id, Payload: raw}, nil
}

// Decode parses a raw frame into *Call, *CallResult or *CallError.
// Payload validation against action schemas is the registry's concern.
func Decode(data []byte) (interface{}, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, newDecodeError(FormatError, "frame is not a JSON array: %v", err)
	}
	if len(raw) < 3 {
		return nil, newDecodeError(FormatError, "frame has %d elements, need at least 3", len(raw))
	}

	var msgType int
	if err := json.Unmarshal(raw[0], &msgType); err != nil {
		return nil, newDecodeError(FormatError, "messageTypeId is not an integer: %v", err)
	}

	var id string
	if err := json.Unmarshal(raw[1], &id); err != nil {
		return nil, newDecodeError(FormatError, "messageId is not a string: %v", err)
	}
	if len(id) == 0 || len(id) > MaxMessageIdLength {
		return nil, newDecodeError(FormatError, "messageId length %d out of bounds", len(id))
	}

	switch msgType {
	case MessageTypeCall:
		if len(raw) != 4 {
			return nil, newDecodeError(FormatError, "Call frame has %d elements, need 4", len(raw))
		}
		var action string
		if err := json.Unmarshal(raw[2], &action); err != nil {
			return nil, newDecodeError(FormatError, "action is not a string: %v", err)
		}
		if action == "" {
			return nil, newDecodeError(FormatError, "action is empty")
		}
		return &Call{ID: id, Action: action, Payload: raw[3]}, nil

	case MessageTypeCallResult:
		if len(raw) != 3 {
			return nil, newDecodeError(FormatError, "CallResult frame has %d elements, need 3", len(raw))
		}
		return &CallResult{ID: id, Payload: raw[2]}, nil

	case MessageTypeCallError:
		if len(raw) != 5 {
			return nil, newDecodeError(FormatError, "CallError frame has %d elements, need 5", len(raw))
		}
		var code, desc string
		if err := json.Unmarshal(raw[2], &code); err != nil {
			return nil, newDecodeError(FormatError, "errorCode is not a string: %v", err)
		}
		if err := json.Unmarshal(raw[3], &desc); err != nil {
			return nil, newDecodeError(FormatError, "errorDescription is not a string: %v", err)
		}
		return &CallError{ID: id, Code: ErrorCode(code), Description: desc, Details: raw[4]}, nil

	default:
		return nil, newDecodeError(ProtocolError, "unknown messageTypeId %d", msgType)
	}
}
