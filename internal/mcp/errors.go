// Package mcp exposes ragindex indexes to AI clients over the Model Context
// Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	ragerrors "github.com/Aman-CERP/ragindex/internal/errors"
)

// Custom MCP error codes for ragindex.
const (
	// ErrCodeIndexNotFound indicates the named index does not exist.
	ErrCodeIndexNotFound = -32001

	// ErrCodeEmbeddingFailed indicates the embedding provider failed.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// ErrCodeFileNotFound indicates a file no longer exists on disk.
	ErrCodeFileNotFound = -32004

	// ErrCodeFileTooLarge indicates a file is too large to serve.
	ErrCodeFileTooLarge = -32005

	// ErrCodeIndexBusy indicates another process holds the index lock.
	ErrCodeIndexBusy = -32006

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	if re, ok := ragerrors.As(err); ok {
		return mapRagError(re)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Resource '%s' not found.", uri)}
}

func mapRagError(re *ragerrors.RagError) *MCPError {
	message := re.Message
	if re.Suggestion != "" {
		message = fmt.Sprintf("%s %s", re.Message, re.Suggestion)
	}

	switch re.Code {
	case ragerrors.ErrCodeIndexNotFound, ragerrors.ErrCodeCorruptIndex:
		return &MCPError{Code: ErrCodeIndexNotFound, Message: message}
	case ragerrors.ErrCodeIndexLocked:
		return &MCPError{Code: ErrCodeIndexBusy, Message: message}
	case ragerrors.ErrCodeFileNotFound:
		return &MCPError{Code: ErrCodeFileNotFound, Message: message}
	case ragerrors.ErrCodeEmbeddingFailed, ragerrors.ErrCodeEmbedderUnavailable, ragerrors.ErrCodeEmbedderBadResponse:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	}

	switch re.Category {
	case ragerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case ragerrors.CategoryUpstream:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
