package server_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/runbox/runbox/internal/model"
	"github.com/runbox/runbox/internal/server"
)

type rpcReply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  map[string]any  `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeRPC(t *testing.T, body []byte) rpcReply {
	t.Helper()
	var reply rpcReply
	require.NoError(t, json.Unmarshal(body, &reply))
	return reply
}

func initializeSession(t *testing.T, srv *server.Server) string {
	t.Helper()

	rec := doJSON(t, srv, http.MethodPost, "/mcp", `{"jsonrpc": "2.0", "id": 1, "method": "initialize"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	session := rec.Header().Get("Mcp-Session-Id")
	require.NotEmpty(t, session)
	return session
}

func TestMCPInitialize(t *testing.T) {
	assert := assert.New(t)

	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/mcp", `{"jsonrpc": "2.0", "id": 1, "method": "initialize"}`, nil)

	assert.Equal(http.StatusOK, rec.Code)
	assert.NotEmpty(rec.Header().Get("Mcp-Session-Id"))

	reply := decodeRPC(t, rec.Body.Bytes())
	require.Nil(t, reply.Error)
	assert.Equal("2024-11-05", reply.Result["protocolVersion"])
}

func TestMCPRequiresSession(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/mcp", `{"jsonrpc": "2.0", "id": 2, "method": "tools/list"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	reply := decodeRPC(t, rec.Body.Bytes())
	require.NotNil(t, reply.Error)
	assert.Equal(t, -32600, reply.Error.Code)
}

func TestMCPToolsList(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	srv, _ := newTestServer(t)
	session := initializeSession(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/mcp", `{"jsonrpc": "2.0", "id": 2, "method": "tools/list"}`,
		map[string]string{"Mcp-Session-Id": session})
	require.Equal(http.StatusOK, rec.Code)

	reply := decodeRPC(t, rec.Body.Bytes())
	require.Nil(reply.Error)

	tools, ok := reply.Result["tools"].([]any)
	require.True(ok)
	require.Len(tools, 3)

	names := map[string]bool{}
	for _, tool := range tools {
		names[tool.(map[string]any)["name"].(string)] = true
	}
	assert.True(names["run_container"])
	assert.True(names["create_volume"])
	assert.True(names["docker_health"])
}

func TestMCPToolCallRunContainer(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	srv, m := newTestServer(t)
	session := initializeSession(t, srv)

	m.runner.On("Run", mock.Anything, mock.MatchedBy(func(req model.ExecutionRequest) bool {
		return req.Image == "alpine:3.20"
	})).Once().Return(&model.ExecutionResult{ExitCode: 0, Stdout: "hi\n"}, nil)

	body := `{
		"jsonrpc": "2.0", "id": 3, "method": "tools/call",
		"params": {"name": "run_container", "arguments": {"image": "alpine:3.20", "command": "echo hi"}}
	}`
	rec := doJSON(t, srv, http.MethodPost, "/mcp", body, map[string]string{"Mcp-Session-Id": session})
	require.Equal(http.StatusOK, rec.Code)

	reply := decodeRPC(t, rec.Body.Bytes())
	require.Nil(reply.Error)
	assert.Nil(reply.Result["isError"])

	content := reply.Result["content"].([]any)
	require.Len(content, 1)
	text := content[0].(map[string]any)["text"].(string)
	assert.Contains(text, `"status":"success"`)

	m.runner.AssertExpectations(t)
}

func TestMCPToolCallFailureIsToolError(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	srv, m := newTestServer(t)
	session := initializeSession(t, srv)

	m.runner.On("Run", mock.Anything, mock.Anything).Once().Return(nil, model.ErrEngineUnavailable)

	body := `{
		"jsonrpc": "2.0", "id": 4, "method": "tools/call",
		"params": {"name": "run_container", "arguments": {"image": "alpine:3.20"}}
	}`
	rec := doJSON(t, srv, http.MethodPost, "/mcp", body, map[string]string{"Mcp-Session-Id": session})
	require.Equal(http.StatusOK, rec.Code)

	// Tool failures are results with isError, never protocol errors.
	reply := decodeRPC(t, rec.Body.Bytes())
	require.Nil(reply.Error)
	assert.Equal(true, reply.Result["isError"])
}

func TestMCPUnknownToolAndMethod(t *testing.T) {
	assert := assert.New(t)

	srv, _ := newTestServer(t)
	session := initializeSession(t, srv)
	headers := map[string]string{"Mcp-Session-Id": session}

	rec := doJSON(t, srv, http.MethodPost, "/mcp",
		`{"jsonrpc": "2.0", "id": 5, "method": "tools/call", "params": {"name": "rm_rf", "arguments": {}}}`, headers)
	reply := decodeRPC(t, rec.Body.Bytes())
	require.NotNil(t, reply.Error)
	assert.Equal(-32602, reply.Error.Code)

	rec = doJSON(t, srv, http.MethodPost, "/mcp",
		`{"jsonrpc": "2.0", "id": 6, "method": "resources/list"}`, headers)
	reply = decodeRPC(t, rec.Body.Bytes())
	require.NotNil(t, reply.Error)
	assert.Equal(-32601, reply.Error.Code)
}

func TestMCPParseError(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/mcp", `{"jsonrpc": `, nil)
	reply := decodeRPC(t, rec.Body.Bytes())
	require.NotNil(t, reply.Error)
	assert.Equal(t, -32700, reply.Error.Code)
}

func TestMCPDeleteSession(t *testing.T) {
	assert := assert.New(t)

	srv, _ := newTestServer(t)
	session := initializeSession(t, srv)
	headers := map[string]string{"Mcp-Session-Id": session}

	rec := doJSON(t, srv, http.MethodDelete, "/mcp", "", headers)
	assert.Equal(http.StatusNoContent, rec.Code)

	// The session is gone afterwards.
	rec = doJSON(t, srv, http.MethodPost, "/mcp", `{"jsonrpc": "2.0", "id": 7, "method": "tools/list"}`, headers)
	assert.Equal(http.StatusNotFound, rec.Code)
}
