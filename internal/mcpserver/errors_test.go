package mcpserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerr "github.com/opencoderank/coderank/internal/errors"
)

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}

func TestMapError_InputKindMapsToInvalidParams(t *testing.T) {
	err := cerr.New(cerr.ErrCodeInvalidQuery, "query must not be empty", nil)

	got := MapError(err)

	require.NotNil(t, got)
	assert.Equal(t, errCodeInvalidParams, got.Code)
	assert.Equal(t, "query must not be empty", got.Message)
}

func TestMapError_NotAvailableKindMapsToProviderUnavailable(t *testing.T) {
	err := cerr.New(cerr.ErrCodeProviderUnavailable, "embedder unavailable", nil)

	got := MapError(err)

	require.NotNil(t, got)
	assert.Equal(t, errCodeProviderUnavailable, got.Code)
}

func TestMapError_FatalKindMapsToInternalError(t *testing.T) {
	err := cerr.New(cerr.ErrCodeStoreIO, "disk full", nil)

	got := MapError(err)

	require.NotNil(t, got)
	assert.Equal(t, errCodeInternalError, got.Code)
}

func TestMapError_DeadlineExceeded(t *testing.T) {
	got := MapError(context.DeadlineExceeded)

	require.NotNil(t, got)
	assert.Equal(t, errCodeTimeout, got.Code)
}

func TestMapError_PlainErrorMapsToInternalError(t *testing.T) {
	got := MapError(assert.AnError)

	require.NotNil(t, got)
	assert.Equal(t, errCodeInternalError, got.Code)
}

func TestNewTaskNotFoundError(t *testing.T) {
	got := NewTaskNotFoundError("abc123")

	assert.Equal(t, errCodeTaskNotFound, got.Code)
	assert.Contains(t, got.Message, "abc123")
}

func TestSnippet_ShortContentUnchanged(t *testing.T) {
	assert.Equal(t, "short", snippet("short"))
}

func TestSnippet_TruncatesLongContent(t *testing.T) {
	long := make([]rune, snippetMaxRunes+50)
	for i := range long {
		long[i] = 'a'
	}
	got := snippet(string(long))

	assert.Len(t, []rune(got), snippetMaxRunes+len("..."))
	assert.Contains(t, got, "...")
}
