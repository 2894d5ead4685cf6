package mcpserver

import (
	"context"
	"errors"
	"fmt"

	cerr "github.com/opencoderank/coderank/internal/errors"
)

// Standard JSON-RPC error codes, plus a private range for coderank-specific
// conditions.
const (
	errCodeInvalidRequest = -32600
	errCodeMethodNotFound = -32601
	errCodeInvalidParams  = -32602
	errCodeInternalError  = -32603

	errCodeProviderUnavailable = -32001
	errCodeTimeout             = -32002
	errCodeTaskNotFound        = -32003
)

// MCPError is a JSON-RPC error with a code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

// MapError translates a coderank CoreError (or a context error) into an
// MCPError, branching on Kind rather than matching engine-specific error
// strings.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var ce *cerr.CoreError
	if errors.As(err, &ce) {
		return mapCoreError(ce)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: errCodeTimeout, Message: "request timed out"}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: errCodeTimeout, Message: "request was cancelled"}
	default:
		return &MCPError{Code: errCodeInternalError, Message: err.Error()}
	}
}

func mapCoreError(ce *cerr.CoreError) *MCPError {
	switch ce.Kind {
	case cerr.KindInput:
		return &MCPError{Code: errCodeInvalidParams, Message: ce.Message}
	case cerr.KindNotAvailable:
		return &MCPError{Code: errCodeProviderUnavailable, Message: ce.Message}
	case cerr.KindTransient:
		return &MCPError{Code: errCodeTimeout, Message: ce.Message}
	case cerr.KindCancellation:
		return &MCPError{Code: errCodeTimeout, Message: ce.Message}
	default: // KindFatal, KindLogic
		return &MCPError{Code: errCodeInternalError, Message: ce.Message}
	}
}

// NewInvalidParamsError builds an MCPError for a malformed tool call.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: errCodeInvalidParams, Message: msg}
}

// NewTaskNotFoundError builds an MCPError for an unknown async task id.
func NewTaskNotFoundError(taskID string) *MCPError {
	return &MCPError{Code: errCodeTaskNotFound, Message: fmt.Sprintf("task %q not found", taskID)}
}
