package exec

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func engineStub(t *testing.T, reply any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "*", req["version"])
		_ = json.NewEncoder(w).Encode(reply)
	}))
}

func TestRunPrefersRunOutput(t *testing.T) {
	srv := engineStub(t, map[string]any{
		"run":     map[string]any{"output": "hello\n", "code": 0},
		"compile": map[string]any{"output": "warning: x\n", "code": 0},
	})
	defer srv.Close()

	c, err := NewClient(Options{URL: srv.URL})
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "python", `print("hello")`)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", res.Output)
	assert.False(t, res.Failed)
}

func TestRunFallsBackToCompileOutput(t *testing.T) {
	srv := engineStub(t, map[string]any{
		"compile": map[string]any{"output": "syntax error\n", "code": 1},
	})
	defer srv.Close()

	c, err := NewClient(Options{URL: srv.URL})
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "c", "int main( {")
	require.NoError(t, err)
	assert.Equal(t, "syntax error\n", res.Output)
	assert.True(t, res.Failed)
}

func TestRunEmptyEngineReply(t *testing.T) {
	srv := engineStub(t, map[string]any{})
	defer srv.Close()

	c, err := NewClient(Options{URL: srv.URL})
	require.NoError(t, err)

	res, err := c.Run(context.Background(), "python", "pass")
	require.NoError(t, err)
	assert.Equal(t, "No output", res.Output)
}

func TestRunEngineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(Options{URL: srv.URL})
	require.NoError(t, err)

	_, err = c.Run(context.Background(), "python", "pass")
	assert.Error(t, err)
}
