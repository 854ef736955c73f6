package jsonrpc

import (
	"encoding/json"

	"github.com/finxai/xai/internal/models"
	"github.com/finxai/xai/internal/orchestration"
)

// JSON-RPC 2.0 types per https://www.jsonrpc.org/specification

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Notification represents a server-initiated JSON-RPC 2.0 notification (no ID).
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Application-specific error codes, one per orchestrator error kind.
const (
	CodeArtifactNotFound   = -32000
	CodeIncompatibleMethod = -32001
	CodeIndexOutOfBounds   = -32002
	CodeUnknownMethod      = -32003
	CodeExplanationTimeout = -32004
	CodeServiceUnavailable = -32005
	CodeJobNotFound        = -32006
	CodeComputationFailure = -32007
	CodeCanceled           = -32008
)

// ErrorData is attached to application errors.
type ErrorData struct {
	Kind             string          `json:"kind"`
	Detail           string          `json:"detail"`
	Retryable        bool            `json:"retryable"`
	SupportedMethods []models.Method `json:"supported_methods,omitempty"`
}

func ErrParseError(data any) *Error {
	return &Error{Code: CodeParseError, Message: "Parse error", Data: data}
}

func ErrInvalidRequest(data any) *Error {
	return &Error{Code: CodeInvalidRequest, Message: "Invalid request", Data: data}
}

func ErrMethodNotFound(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: "Method not found", Data: method}
}

func ErrInvalidParams(data any) *Error {
	return &Error{Code: CodeInvalidParams, Message: "Invalid params", Data: data}
}

func ErrInternalError(data any) *Error {
	return &Error{Code: CodeInternalError, Message: "Internal error", Data: data}
}

var kindCodes = map[orchestration.Kind]struct {
	code int
	msg  string
}{
	orchestration.KindArtifactNotFound:   {CodeArtifactNotFound, "Artifact not found"},
	orchestration.KindIncompatibleMethod: {CodeIncompatibleMethod, "Incompatible method"},
	orchestration.KindIndexOutOfBounds:   {CodeIndexOutOfBounds, "Index out of bounds"},
	orchestration.KindUnknownMethod:      {CodeUnknownMethod, "Unknown method"},
	orchestration.KindExplanationTimeout: {CodeExplanationTimeout, "Explanation timeout"},
	orchestration.KindServiceUnavailable: {CodeServiceUnavailable, "Service unavailable"},
	orchestration.KindJobNotFound:        {CodeJobNotFound, "Job not found"},
	orchestration.KindComputationFailure: {CodeComputationFailure, "Computation failure"},
	orchestration.KindCanceled:           {CodeCanceled, "Canceled"},
}

// ErrOrchestration converts an orchestrator error to a JSON-RPC error.
// invalid_request maps to the standard invalid params code.
func ErrOrchestration(err error) *Error {
	e := orchestration.Classify(err)
	data := ErrorData{
		Kind:             string(e.Kind),
		Detail:           e.Message,
		Retryable:        e.Retryable,
		SupportedMethods: e.SupportedMethods,
	}
	if e.Kind == orchestration.KindInvalidRequest {
		return ErrInvalidParams(data)
	}
	c, ok := kindCodes[e.Kind]
	if !ok {
		c = kindCodes[orchestration.KindComputationFailure]
	}
	return &Error{Code: c.code, Message: c.msg, Data: data}
}
