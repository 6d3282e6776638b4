// Package rpc implements the JSON-RPC 2.0 client API surface described
// in spec.md §4.8: envelope parsing/formatting, a closed method
// registry, and the request lifecycle (authenticate → rate-limit →
// permission-check → validate → dispatch → respond).
//
// Grounded on original_source/src/api/protocol.py (envelope shape,
// standard + implementation error codes, batch handling) and
// api_handlers.py (the method table and per-method param/result
// shapes), expressed in the Go idiom of
// rustyguts-bken/server/api.go's flat route-registry + central error
// mapping style.
//
// No JSON-RPC library is used: the pack's only JSON-RPC code
// (other_examples' go-ethereum rpc client) is a client, not a server,
// and this envelope's rules (exact error codes, batch semantics,
// notification-produces-no-response) are specified precisely enough
// that wrapping a generic library would fight the spec rather than
// follow it. encoding/json is used the same way the teacher uses it
// throughout its own HTTP handlers.
package rpc

import (
	"encoding/json"
	"strings"
)

// ErrorCode is one of JSON-RPC 2.0's standard codes or this gateway's
// implementation-specific extensions (§4.8).
type ErrorCode int

const (
	ErrParseError     ErrorCode = -32700
	ErrInvalidRequest ErrorCode = -32600
	ErrMethodNotFound ErrorCode = -32601
	ErrInvalidParams  ErrorCode = -32602
	ErrInternalError  ErrorCode = -32603

	ErrNotAuthenticated  ErrorCode = -32000
	ErrRateLimitExceeded ErrorCode = -32001
	ErrPermissionDenied  ErrorCode = -32002
	ErrSessionExpired    ErrorCode = -32003
	ErrGatewayError      ErrorCode = -32004
)

var errorMessages = map[ErrorCode]string{
	ErrParseError:        "Parse error",
	ErrInvalidRequest:    "Invalid Request",
	ErrMethodNotFound:    "Method not found",
	ErrInvalidParams:     "Invalid params",
	ErrInternalError:     "Internal error",
	ErrNotAuthenticated:  "Not authenticated",
	ErrRateLimitExceeded: "Rate limit exceeded",
	ErrPermissionDenied:  "Permission denied",
	ErrSessionExpired:    "Session expired",
	ErrGatewayError:      "Gateway error",
}

// Message returns the standard text for code.
func (c ErrorCode) Message() string {
	if m, ok := errorMessages[c]; ok {
		return m
	}
	return "Unknown error"
}

// Request is one parsed JSON-RPC request. ID is nil for a notification.
type Request struct {
	Version string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id,omitempty"`
}

// IsNotification reports whether this request expects no response.
func (r *Request) IsNotification() bool { return r.ID == nil }

// rawRequest is the wire shape of a request. An absent id and an explicit
// null id both decode to a nil ID and are both treated as a notification.
type rawRequest struct {
	Version string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      any             `json:"id"`
}

// Error is the JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// NewError builds an Error from a known code, attaching data when given.
func NewError(code ErrorCode, data any) *Error {
	return &Error{Code: int(code), Message: code.Message(), Data: data}
}

// Response is one JSON-RPC response object.
type Response struct {
	Version string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

func successResponse(id any, result any) *Response {
	return &Response{Version: "2.0", ID: id, Result: result}
}

func errorResponse(id any, err *Error) *Response {
	return &Response{Version: "2.0", ID: id, Error: err}
}

// ParseRequest parses a single (non-batch) JSON-RPC request from raw
// bytes, validating the envelope per §4.8: jsonrpc must be "2.0", method
// must be a non-empty string not starting with the reserved "rpc."
// prefix, params (if present) must be an object or array.
func ParseRequest(raw json.RawMessage) (*Request, *Error) {
	var rr rawRequest
	if err := json.Unmarshal(raw, &rr); err != nil {
		return nil, NewError(ErrParseError, err.Error())
	}
	if rr.Version != "2.0" {
		return nil, NewError(ErrInvalidRequest, "jsonrpc must be \"2.0\"")
	}
	if rr.Method == "" {
		return nil, NewError(ErrInvalidRequest, "method must be a non-empty string")
	}
	if strings.HasPrefix(rr.Method, "rpc.") {
		return nil, NewError(ErrInvalidRequest, "reserved method name")
	}
	if len(rr.Params) > 0 {
		trimmed := strings.TrimSpace(string(rr.Params))
		if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
			return nil, NewError(ErrInvalidParams, "params must be an object or array")
		}
	}
	return &Request{Version: rr.Version, Method: rr.Method, Params: rr.Params, ID: rr.ID}, nil
}

// ParseMessage parses raw bytes as either a single request or a batch,
// per §4.8's batch support. A batch is returned as a slice of length >=
// 1 even when it contains only one element, so callers can distinguish
// "single request" from "batch of one" via the isBatch return.
func ParseMessage(raw []byte) (requests []json.RawMessage, isBatch bool, err *Error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, false, NewError(ErrParseError, "empty request body")
	}
	if trimmed[0] == '[' {
		var items []json.RawMessage
		if jerr := json.Unmarshal(raw, &items); jerr != nil {
			return nil, true, NewError(ErrParseError, jerr.Error())
		}
		if len(items) == 0 {
			return nil, true, NewError(ErrInvalidRequest, "batch must not be empty")
		}
		return items, true, nil
	}
	return []json.RawMessage{raw}, false, nil
}
