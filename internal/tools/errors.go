// ABOUTME: Tool-level error kinds and their mapping onto MCP error results
// ABOUTME: Validation, scope, upload policy and upstream failures become isError results

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/2389/inline-mcp/internal/inline"
	"github.com/2389/inline-mcp/internal/upload"
)

// Error codes reported in tool error results.
const (
	CodeValidation        = "validation_error"
	CodeInsufficientScope = "insufficient_scope"
	CodeUploadRejected    = "upload_rejected"
	CodeUploadFailed      = "upload_failed"
	CodeChatNotAllowed    = "chat_not_allowed"
	CodeUpstream          = "inline_api_error"
	CodeCancelled         = "cancelled"
	CodeInternal          = "internal_error"
)

// ErrUnknownTool is returned by the dispatcher for a name not in the registry.
var ErrUnknownTool = errors.New("unknown tool")

// ValidationError is a rejected tool argument.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalidf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ScopeError means the caller lacks the scope a tool requires.
type ScopeError struct {
	Tool  string
	Scope string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("%s requires the %s scope", e.Tool, e.Scope)
}

// errorBody is the JSON text carried by an error result.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Scope   string `json:"scope,omitempty"`
}

// classify maps a handler or dispatch error to its result body. Internal
// failures keep their detail out of the result.
func classify(err error) errorBody {
	var (
		ve     *ValidationError
		se     *ScopeError
		uve    *upload.ValidationError
		pe     *upload.PolicyError
		fe     *upload.FetchError
		apiErr *inline.APIError
	)
	switch {
	case errors.As(err, &ve), errors.As(err, &uve):
		return errorBody{Error: CodeValidation, Message: err.Error()}
	case errors.As(err, &se):
		return errorBody{Error: CodeInsufficientScope, Message: se.Error(), Scope: se.Scope}
	case errors.As(err, &pe):
		return errorBody{Error: CodeUploadRejected, Message: pe.Error()}
	case errors.As(err, &fe):
		return errorBody{Error: CodeUploadFailed, Message: fe.Error()}
	case errors.Is(err, inline.ErrChatNotAllowed):
		return errorBody{Error: CodeChatNotAllowed, Message: err.Error()}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errorBody{Error: CodeCancelled, Message: "request cancelled"}
	case errors.As(err, &apiErr):
		return errorBody{Error: CodeUpstream, Message: apiErr.Error()}
	default:
		return errorBody{Error: CodeInternal, Message: "tool execution failed"}
	}
}

// errorResult renders err as an MCP error result.
func errorResult(err error) *mcp.CallToolResult {
	body := classify(err)
	text, mErr := json.Marshal(body)
	if mErr != nil {
		return mcp.NewToolResultError(body.Message)
	}
	return mcp.NewToolResultError(string(text))
}
