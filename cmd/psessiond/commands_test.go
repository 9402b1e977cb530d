package main

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/push-session-bridge/sessionClient/api"
	"github.com/pushchain/push-session-bridge/sessionClient/config"
)

func TestInitCommand(t *testing.T) {
	home := t.TempDir()

	rootCmd := NewRootCmd()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"init", "--home", home})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "psession_config.json")

	cfg, err := config.Load(home)
	require.NoError(t, err)
	assert.Equal(t, home, cfg.NodeHome)
	assert.NotZero(t, cfg.QueryServerPort)

	t.Run("refuses to overwrite", func(t *testing.T) {
		rootCmd := NewRootCmd()
		rootCmd.SetOut(&bytes.Buffer{})
		rootCmd.SetErr(&bytes.Buffer{})
		rootCmd.SetArgs([]string{"init", "--home", home})
		assert.Error(t, rootCmd.Execute())

		rootCmd = NewRootCmd()
		rootCmd.SetOut(&bytes.Buffer{})
		rootCmd.SetArgs([]string{"init", "--home", home, "--overwrite"})
		assert.NoError(t, rootCmd.Execute())
	})
}

// daemonAt writes a config whose API port points at srv.
func daemonAt(t *testing.T, srv *httptest.Server) *viper.Viper {
	t.Helper()
	_, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	home := t.TempDir()
	cfg, err := config.LoadDefaultConfig()
	require.NoError(t, err)
	cfg.QueryServerPort = port
	require.NoError(t, config.Save(cfg, home))

	v := viper.New()
	v.Set(flagHome, home)
	return v
}

func TestCallDaemon(t *testing.T) {
	t.Run("decodes success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/session-keys", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)
			var req api.IssueSessionKeyRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "usdc_transfer_only", req.PermissionKind)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"session_key_id":"key-1"}`))
		}))
		defer srv.Close()

		var out map[string]interface{}
		err := callDaemon(daemonAt(t, srv), http.MethodPost, "/api/v1/session-keys",
			api.IssueSessionKeyRequest{PermissionKind: "usdc_transfer_only"}, &out)
		require.NoError(t, err)
		assert.Equal(t, "key-1", out["session_key_id"])
	})

	t.Run("surfaces error code", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"session key x not found","code":"NOT_FOUND"}`))
		}))
		defer srv.Close()

		err := callDaemon(daemonAt(t, srv), http.MethodDelete, "/api/v1/session-keys/x", nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "NOT_FOUND")
	})

	t.Run("no content", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		var out map[string]interface{}
		assert.NoError(t, callDaemon(daemonAt(t, srv), http.MethodDelete, "/api/v1/session-keys/x", nil, &out))
	})
}

func TestPrintOutputRejectsUnknownFormat(t *testing.T) {
	assert.Error(t, printOutput(map[string]string{"a": "b"}, "xml"))
}
