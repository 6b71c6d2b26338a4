package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/whatsapp-platform/pkg/logger"
)

func TestRegisterRejectsAmbiguousActions(t *testing.T) {
	r := NewRegistry(logger.NewNop())

	err := r.Register(Action{Name: "bare"})
	assert.Error(t, err)

	err = r.Register(Action{
		Name:    "both",
		Handler: func(ctx context.Context, args map[string]any) (any, error) { return nil, nil },
		Remote:  &RemoteTarget{URL: "http://example.com"},
	})
	assert.Error(t, err)

	err = r.Register(Action{Name: ""})
	assert.Error(t, err)
}

func TestExecuteUnknownAction(t *testing.T) {
	r := NewRegistry(logger.NewNop())

	_, err := r.Execute(context.Background(), "missing", nil)
	assert.ErrorContains(t, err, "not registered")
}

func TestExecuteLocalHandler(t *testing.T) {
	r := NewRegistry(logger.NewNop())
	require.NoError(t, r.Register(Action{
		Name: "echo",
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return args["value"], nil
		},
	}))

	out, err := r.Execute(context.Background(), "echo", map[string]any{"value": "pong"})
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
}

func TestExecuteRemoteAction(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotAuth = req.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(req.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result": "ok"}`))
	}))
	defer srv.Close()

	r := NewRegistry(logger.NewNop())
	require.NoError(t, r.Register(Action{
		Name: "remote_check",
		Remote: &RemoteTarget{
			Method:  http.MethodPost,
			URL:     srv.URL,
			AuthKey: "secret-token",
		},
	}))

	out, err := r.Execute(context.Background(), "remote_check", map[string]any{"id": "7"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.Equal(t, map[string]any{"id": "7"}, gotBody)
	assert.Equal(t, map[string]any{"result": "ok"}, out)
}

func TestExecuteRemoteActionErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r := NewRegistry(logger.NewNop())
	require.NoError(t, r.Register(Action{
		Name:   "flaky",
		Remote: &RemoteTarget{URL: srv.URL},
	}))

	_, err := r.Execute(context.Background(), "flaky", nil)
	assert.ErrorContains(t, err, "502")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"actions": {
			"check_stock": {
				"description": "Check product stock",
				"parameters": [{"name": "sku", "type": "string", "required": true}],
				"remote": {"method": "GET", "url": "http://inventory.local/stock"}
			}
		}
	}`), 0o600))

	r := NewRegistry(logger.NewNop())
	require.NoError(t, r.LoadFile(path))

	action, ok := r.Get("check_stock")
	require.True(t, ok)
	assert.Equal(t, "Check product stock", action.Description)
	require.NotNil(t, action.Remote)
	assert.Equal(t, "http://inventory.local/stock", action.Remote.URL)

	tools := r.Tools()
	require.Len(t, tools, 1)
	assert.Equal(t, "check_stock", tools[0].Function.Name)
}
