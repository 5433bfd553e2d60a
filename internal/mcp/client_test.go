package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestCallToolSendsEnvelope(t *testing.T) {
	var got Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tools/call", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"result":{"documents":["a","b"]}}`))
	}))
	defer server.Close()

	c := NewClient(time.Second)
	raw, err := c.CallTool(context.Background(), baseURL(t, server.URL), "chroma_query_documents",
		map[string]any{"query_text": "lights", "n_results": 3})

	require.NoError(t, err)
	assert.JSONEq(t, `{"documents":["a","b"]}`, string(raw))
	assert.Equal(t, MethodToolsCall, got.Method)
	assert.Equal(t, "chroma_query_documents", got.Params.Name)
	assert.Equal(t, "lights", got.Params.Arguments["query_text"])
}

func TestCallToolNilArgumentsSendEmptyObject(t *testing.T) {
	var body map[string]json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	_, err := NewClient(time.Second).CallTool(context.Background(), baseURL(t, server.URL), "ha_get_states", nil)

	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"ha_get_states","arguments":{}}`, string(body["params"]))
}

func TestCallToolBaseWithPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mcp/ha/tools/call", r.URL.Path)
		w.Write([]byte(`{"result":1}`))
	}))
	defer server.Close()

	_, err := NewClient(time.Second).CallTool(context.Background(), baseURL(t, server.URL+"/mcp/ha/"), "ha_x", nil)
	require.NoError(t, err)
}

func TestCallToolResultExtraction(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"result member", `{"result":{"states":[]}}`, `{"states":[]}`},
		{"no result member", `{"states":[{"entity_id":"light.a","state":"on"}]}`, `{"states":[{"entity_id":"light.a","state":"on"}]}`},
		{"bare array", `[1,2,3]`, `[1,2,3]`},
		{"null result", `{"result":null}`, `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			raw, err := NewClient(time.Second).CallTool(context.Background(), baseURL(t, server.URL), "x_y", nil)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
		})
	}
}

func TestCallToolNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"error":{"code":-32603,"message":"home assistant unreachable"}}`))
	}))
	defer server.Close()

	_, err := NewClient(time.Second).CallTool(context.Background(), baseURL(t, server.URL), "ha_get_states", nil)

	require.Error(t, err)
	assert.True(t, IsUpstream(err))

	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, http.StatusBadGateway, ue.Status)
	assert.Equal(t, "home assistant unreachable", ue.Message)
	assert.Equal(t, "ha_get_states", ue.Tool)
}

func TestCallToolErrorEnvelopeWith200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"code":-32602,"message":"bad args"}}`))
	}))
	defer server.Close()

	_, err := NewClient(time.Second).CallTool(context.Background(), baseURL(t, server.URL), "x_y", nil)

	assert.True(t, IsUpstream(err))
	var rpc *RPCError
	assert.True(t, errors.As(err, &rpc))
}

func TestCallToolMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":`))
	}))
	defer server.Close()

	_, err := NewClient(time.Second).CallTool(context.Background(), baseURL(t, server.URL), "x_y", nil)

	assert.True(t, IsUpstream(err))
}

func TestCallToolTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := NewClient(50*time.Millisecond).CallTool(context.Background(), baseURL(t, server.URL), "x_y", nil)

	require.Error(t, err)
	assert.True(t, IsUpstream(err))
	assert.True(t, IsTimeout(err))
}

func TestCallToolConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	_, err := NewClient(time.Second).CallTool(context.Background(), baseURL(t, addr), "x_y", nil)

	assert.True(t, IsUpstream(err))
	assert.False(t, IsTimeout(err))
}

func TestRPCErrorImplementsError(t *testing.T) {
	err := &RPCError{Code: CodeInvalidRequest, Message: "Invalid Request"}
	assert.Equal(t, "RPC error -32600: Invalid Request", err.Error())
}
