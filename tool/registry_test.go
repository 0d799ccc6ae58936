package tool

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoParams struct {
	Text string `json:"text" jsonschema:"required"`
}

func TestRegistryExecute(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("echo", "echoes its input", reflect.TypeOf(echoParams{}), func(ctx context.Context, argsJSON string) (string, bool, error) {
		return argsJSON, false, nil
	})

	t.Run("known tool runs its handler", func(t *testing.T) {
		t.Parallel()
		result, isError, err := r.Execute(context.Background(), "echo", `{"text":"hi"}`)
		require.NoError(t, err)
		assert.False(t, isError)
		assert.Equal(t, `{"text":"hi"}`, result)
	})

	t.Run("unknown tool reports a tool error, not a Go error", func(t *testing.T) {
		t.Parallel()
		result, isError, err := r.Execute(context.Background(), "nope", `{}`)
		require.NoError(t, err)
		assert.True(t, isError)
		assert.Contains(t, result, "unknown tool")
	})
}

func TestRegistryToolsAllowlist(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("a", "", reflect.TypeOf(echoParams{}), nil)
	r.Register("b", "", reflect.TypeOf(echoParams{}), nil)

	assert.Len(t, r.Tools(nil), 2)
	assert.Len(t, r.Tools([]string{"a"}), 1)
	assert.Len(t, r.Tools([]string{"nonexistent"}), 0)
}
