package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerrors "github.com/Aman-CERP/ragindex/internal/errors"
)

func TestMapError_NilError(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_RagErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"index not found", ragerrors.New(ragerrors.ErrCodeIndexNotFound, "no index", nil), ErrCodeIndexNotFound},
		{"corrupt index", ragerrors.New(ragerrors.ErrCodeCorruptIndex, "bad", nil), ErrCodeIndexNotFound},
		{"locked", ragerrors.New(ragerrors.ErrCodeIndexLocked, "busy", nil), ErrCodeIndexBusy},
		{"file not found", ragerrors.New(ragerrors.ErrCodeFileNotFound, "gone", nil), ErrCodeFileNotFound},
		{"embedding failed", ragerrors.New(ragerrors.ErrCodeEmbeddingFailed, "down", nil), ErrCodeEmbeddingFailed},
		{"invalid query", ragerrors.New(ragerrors.ErrCodeInvalidQuery, "empty", nil), ErrCodeInvalidParams},
		{"network", ragerrors.New(ragerrors.ErrCodeNetworkTimeout, "slow", nil), ErrCodeTimeout},
		{"internal", ragerrors.InternalError("boom", nil), ErrCodeInternalError},
		{"wrapped", fmt.Errorf("outer: %w", ragerrors.New(ragerrors.ErrCodeIndexNotFound, "no index", nil)), ErrCodeIndexNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MapError(tt.err)

			require.NotNil(t, result)
			assert.Equal(t, tt.code, result.Code)
		})
	}
}

func TestMapError_IncludesSuggestion(t *testing.T) {
	// Given: an error with a suggestion
	err := ragerrors.New(ragerrors.ErrCodeIndexNotFound, "no index named \"docs\"", nil).
		WithSuggestion("Run: ragindex index <dir> --name docs")

	// When: mapping the error
	result := MapError(err)

	// Then: the client sees both
	assert.Contains(t, result.Message, "no index named")
	assert.Contains(t, result.Message, "ragindex index")
}

func TestMapError_ContextErrors(t *testing.T) {
	assert.Equal(t, ErrCodeTimeout, MapError(context.DeadlineExceeded).Code)
	assert.Equal(t, ErrCodeTimeout, MapError(context.Canceled).Code)
	assert.Contains(t, MapError(context.Canceled).Message, "canceled")
}

func TestMapError_PassesMCPErrorThrough(t *testing.T) {
	orig := NewInvalidParamsError("bad top_k")

	result := MapError(fmt.Errorf("wrap: %w", orig))

	assert.Same(t, orig, result)
}

func TestMapError_UnknownError(t *testing.T) {
	result := MapError(errors.New("something odd"))

	require.NotNil(t, result)
	assert.Equal(t, ErrCodeInternalError, result.Code)
	assert.NotContains(t, result.Message, "something odd")
}

func TestMCPError_Error(t *testing.T) {
	err := &MCPError{Code: -32001, Message: "Test error message"}

	assert.Equal(t, "MCP error -32001: Test error message", err.Error())
}

func TestErrorConstructors(t *testing.T) {
	assert.Equal(t, ErrCodeInvalidParams, NewInvalidParamsError("x").Code)

	notFound := NewMethodNotFoundError("unknown_tool")
	assert.Equal(t, ErrCodeMethodNotFound, notFound.Code)
	assert.Contains(t, notFound.Message, "unknown_tool")

	res := NewResourceNotFoundError("ragindex://nope")
	assert.Contains(t, res.Message, "ragindex://nope")
}
