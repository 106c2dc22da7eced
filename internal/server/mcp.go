package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/runbox/runbox/internal/app/volumecreate"
	"github.com/runbox/runbox/pkg/apiv1"
)

const (
	mcpProtocolVersion = "2024-11-05"
	mcpServerName      = "runbox"
	mcpServerVersion   = "0.1.0"
	mcpSessionHeader   = "Mcp-Session-Id"
	mcpSessionTTL      = time.Hour
)

// JSON-RPC 2.0 error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcInternalError  = -32603
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func rpcResult(id json.RawMessage, result any) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func rpcFailure(id json.RawMessage, code int, message string) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}}
}

// sessionStore tracks MCP sessions. Sessions expire after an hour without
// activity.
type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]time.Time
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: map[string]time.Time{}}
}

func (s *sessionStore) create() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Prune expired sessions while we hold the lock anyway.
	now := time.Now()
	for id, deadline := range s.sessions {
		if now.After(deadline) {
			delete(s.sessions, id)
		}
	}

	id := uuid.NewString()
	s.sessions[id] = now.Add(mcpSessionTTL)
	return id
}

func (s *sessionStore) validate(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline, ok := s.sessions[id]
	if !ok {
		return false
	}
	if time.Now().After(deadline) {
		delete(s.sessions, id)
		return false
	}

	// Activity extends the session.
	s.sessions[id] = time.Now().Add(mcpSessionTTL)
	return true
}

func (s *sessionStore) delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Server) registerMCPRoutes(router *gin.Engine) {
	router.POST("/mcp", s.handleMCP)
	router.DELETE("/mcp", s.handleMCPDelete)
}

func (s *Server) handleMCP(c *gin.Context) {
	var req rpcRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, rpcFailure(nil, rpcParseError, "parse error"))
		return
	}

	if req.Method == "initialize" {
		session := s.sessions.create()
		c.Header(mcpSessionHeader, session)
		c.JSON(http.StatusOK, rpcResult(req.ID, gin.H{
			"protocolVersion": mcpProtocolVersion,
			"capabilities":    gin.H{"tools": gin.H{}},
			"serverInfo":      gin.H{"name": mcpServerName, "version": mcpServerVersion},
		}))
		return
	}

	if !s.sessions.validate(c.GetHeader(mcpSessionHeader)) {
		c.JSON(http.StatusNotFound, rpcFailure(req.ID, rpcInvalidRequest, "invalid or expired session"))
		return
	}

	switch req.Method {
	case "notifications/initialized":
		c.Status(http.StatusAccepted)

	case "tools/list":
		c.JSON(http.StatusOK, rpcResult(req.ID, gin.H{"tools": mcpTools()}))

	case "tools/call":
		s.handleMCPToolCall(c, req)

	default:
		c.JSON(http.StatusOK, rpcFailure(req.ID, rpcMethodNotFound, fmt.Sprintf("method %q not found", req.Method)))
	}
}

func (s *Server) handleMCPDelete(c *gin.Context) {
	s.sessions.delete(c.GetHeader(mcpSessionHeader))
	c.Status(http.StatusNoContent)
}

type mcpToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleMCPToolCall(c *gin.Context, req rpcRequest) {
	var params mcpToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		c.JSON(http.StatusOK, rpcFailure(req.ID, rpcInvalidParams, "invalid tool call params"))
		return
	}

	var result any
	var err error
	switch params.Name {
	case "run_container":
		result, err = s.toolRunContainer(c, params.Arguments)
	case "create_volume":
		result, err = s.toolCreateVolume(c, params.Arguments)
	case "docker_health":
		result = apiv1.NewHealthResponse(s.health.Status(c.Request.Context()))
	default:
		c.JSON(http.StatusOK, rpcFailure(req.ID, rpcInvalidParams, fmt.Sprintf("unknown tool %q", params.Name)))
		return
	}

	// Tool failures are results with isError set, not protocol errors.
	if err != nil {
		s.logger.Errorf("MCP tool %s failed: %v", params.Name, err)
		c.JSON(http.StatusOK, rpcResult(req.ID, gin.H{
			"content": []gin.H{{"type": "text", "text": err.Error()}},
			"isError": true,
		}))
		return
	}

	text, err := json.Marshal(result)
	if err != nil {
		c.JSON(http.StatusOK, rpcFailure(req.ID, rpcInternalError, "could not encode tool result"))
		return
	}

	c.JSON(http.StatusOK, rpcResult(req.ID, gin.H{
		"content": []gin.H{{"type": "text", "text": string(text)}},
	}))
}

func (s *Server) toolRunContainer(c *gin.Context, arguments json.RawMessage) (any, error) {
	var req apiv1.RunRequest
	if err := json.Unmarshal(arguments, &req); err != nil {
		return nil, fmt.Errorf("invalid arguments: %s", err)
	}

	execReq, err := req.ToModel()
	if err != nil {
		return nil, err
	}

	result, err := s.runner.Run(c.Request.Context(), *execReq)
	if err != nil {
		return nil, err
	}

	return apiv1.NewRunResponse(result), nil
}

func (s *Server) toolCreateVolume(c *gin.Context, arguments json.RawMessage) (any, error) {
	var req apiv1.VolumeCreateRequest
	if err := json.Unmarshal(arguments, &req); err != nil {
		return nil, fmt.Errorf("invalid arguments: %s", err)
	}

	var archive []byte
	if req.Content != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			return nil, fmt.Errorf("content is not valid base64")
		}
		archive = decoded
	}

	if err := s.volumes.Run(c.Request.Context(), volumecreate.Request{Name: req.Name, Archive: archive}); err != nil {
		return nil, err
	}

	return apiv1.VolumeCreateResponse{Name: req.Name, Created: true}, nil
}

// mcpTools describes the tools the MCP endpoint exposes.
func mcpTools() []gin.H {
	return []gin.H{
		{
			"name":        "run_container",
			"description": "Run a command in a disposable container with optional volumes and capture the output.",
			"inputSchema": gin.H{
				"type":     "object",
				"required": []string{"image"},
				"properties": gin.H{
					"image":       gin.H{"type": "string", "description": "Container image reference."},
					"command":     gin.H{"description": "Command as a string or argument list."},
					"entrypoint":  gin.H{"description": "Entrypoint override as a string or argument list."},
					"env_vars":    gin.H{"type": "object", "description": "Environment variables."},
					"pull_policy": gin.H{"type": "string", "enum": []string{"always", "never"}},
					"auth_config": gin.H{"type": "object", "description": "Registry credentials."},
					"volumes":     gin.H{"type": "object", "description": "Volume specs keyed by mount key."},
				},
			},
		},
		{
			"name":        "create_volume",
			"description": "Create a named volume, optionally seeded from a base64 gzip tar archive.",
			"inputSchema": gin.H{
				"type":     "object",
				"required": []string{"name"},
				"properties": gin.H{
					"name":    gin.H{"type": "string"},
					"content": gin.H{"type": "string", "description": "Base64 gzip tar archive."},
				},
			},
		},
		{
			"name":        "docker_health",
			"description": "Check container engine availability and version.",
			"inputSchema": gin.H{"type": "object", "properties": gin.H{}},
		},
	}
}
