// Package mcp exposes the explanation engine as Model Context Protocol tools
// over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/finxai/xai/internal/artifact"
	"github.com/finxai/xai/internal/jsonrpc"
	"github.com/finxai/xai/internal/webapi"
)

const protocolVersion = "2024-11-05"

// Server handles MCP protocol messages by delegating to the JSON-RPC handlers.
type Server struct {
	reg    *jsonrpc.MethodRegistry
	lister artifact.Lister
	logger *slog.Logger
}

// NewServer creates an MCP server backed by hctx. lister backs
// xai_list_models and may be nil when the artifact store cannot enumerate
// its models.
func NewServer(hctx *jsonrpc.HandlerContext, lister artifact.Lister, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	reg := jsonrpc.NewMethodRegistry()
	reg.Use(jsonrpc.Recover(logger))
	jsonrpc.RegisterHandlers(reg, hctx)
	return &Server{reg: reg, lister: lister, logger: logger}
}

// HandleRequest processes a single MCP JSON-RPC request and returns a response.
func (s *Server) HandleRequest(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		return nil
	case "ping":
		return &jsonrpc.Response{JSONRPC: "2.0", Result: struct{}{}, ID: req.ID}
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return &jsonrpc.Response{
			JSONRPC: "2.0",
			Error:   jsonrpc.ErrMethodNotFound(req.Method),
			ID:      req.ID,
		}
	}
}

// --- initialize ---

type initializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    capabilities `json:"capabilities"`
	ServerInfo      serverInfo   `json:"serverInfo"`
}

type capabilities struct {
	Tools *toolsCap `json:"tools,omitempty"`
}

type toolsCap struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (s *Server) handleInitialize(req *jsonrpc.Request) *jsonrpc.Response {
	return &jsonrpc.Response{
		JSONRPC: "2.0",
		Result: initializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities:    capabilities{Tools: &toolsCap{}},
			ServerInfo:      serverInfo{Name: "xai", Version: webapi.Version},
		},
		ID: req.ID,
	}
}

// --- tools/list ---

type toolsListResult struct {
	Tools []Tool `json:"tools"`
}

func (s *Server) handleToolsList(req *jsonrpc.Request) *jsonrpc.Response {
	return &jsonrpc.Response{
		JSONRPC: "2.0",
		Result:  toolsListResult{Tools: ToolsDef()},
		ID:      req.ID,
	}
}

// --- tools/call ---

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type toolsCallResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textResult(req *jsonrpc.Request, text string, isError bool) *jsonrpc.Response {
	return &jsonrpc.Response{
		JSONRPC: "2.0",
		Result: toolsCallResult{
			Content: []contentBlock{{Type: "text", Text: text}},
			IsError: isError,
		},
		ID: req.ID,
	}
}

// handleToolsCall reports tool failures in the result with isError set, so
// the client sees the error kind. Only malformed calls are protocol errors.
func (s *Server) handleToolsCall(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var p toolsCallParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return &jsonrpc.Response{
			JSONRPC: "2.0",
			Error:   jsonrpc.ErrInvalidParams(err.Error()),
			ID:      req.ID,
		}
	}

	result, rpcErr := s.dispatchTool(ctx, p.Name, p.Arguments)
	if rpcErr != nil {
		s.logger.Debug("mcp tool failed", "tool", p.Name, "error", rpcErr)
		text, err := json.Marshal(rpcErr)
		if err != nil {
			return textResult(req, rpcErr.Error(), true)
		}
		return textResult(req, string(text), true)
	}

	text, err := json.Marshal(result)
	if err != nil {
		return textResult(req, fmt.Sprintf("marshal error: %v", err), true)
	}
	return textResult(req, string(text), false)
}

// dispatchTool maps MCP tool names to the underlying JSON-RPC handlers.
func (s *Server) dispatchTool(ctx context.Context, name string, args json.RawMessage) (any, *jsonrpc.Error) {
	switch name {
	case "xai_list_models":
		return s.callListModels(ctx)
	case "xai_explain_global":
		return s.callHandler(ctx, "explain.global", args)
	case "xai_explain_local":
		return s.callHandler(ctx, "explain.local", args)
	case "xai_interpret_local":
		return s.callInterpret(ctx, args)
	case "xai_job_status":
		return s.callHandler(ctx, "job.status", args)
	case "xai_job_cancel":
		return s.callHandler(ctx, "job.cancel", args)
	case "xai_quality_metrics":
		return s.callHandler(ctx, "metrics.quality", args)
	case "xai_performance_metrics":
		return s.callHandler(ctx, "metrics.performance", args)
	case "xai_invalidate_cache":
		return s.callHandler(ctx, "cache.invalidate", args)
	default:
		return nil, &jsonrpc.Error{Code: jsonrpc.CodeMethodNotFound, Message: fmt.Sprintf("unknown tool: %s", name)}
	}
}

// callHandler delegates to the existing JSON-RPC method handler.
func (s *Server) callHandler(ctx context.Context, method string, args json.RawMessage) (any, *jsonrpc.Error) {
	handler := s.reg.Lookup(method)
	if handler == nil {
		return nil, jsonrpc.ErrMethodNotFound(method)
	}
	if args == nil {
		args = json.RawMessage(`{}`)
	}
	return handler(ctx, args)
}

// callInterpret runs explain.local with interpret forced on.
func (s *Server) callInterpret(ctx context.Context, args json.RawMessage) (any, *jsonrpc.Error) {
	var p jsonrpc.InstanceParams
	if len(args) > 0 {
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, jsonrpc.ErrInvalidParams(err.Error())
		}
	}
	p.Interpret = true
	forced, err := json.Marshal(p)
	if err != nil {
		return nil, jsonrpc.ErrInvalidParams(err.Error())
	}
	return s.callHandler(ctx, "explain.local", forced)
}

type listModelsResult struct {
	Models []string `json:"models"`
}

func (s *Server) callListModels(ctx context.Context) (any, *jsonrpc.Error) {
	if s.lister == nil {
		return nil, jsonrpc.ErrInternalError("the artifact store cannot list models")
	}
	ids, err := s.lister.ListModels(ctx)
	if err != nil {
		return nil, jsonrpc.ErrInternalError(err.Error())
	}
	if ids == nil {
		ids = []string{}
	}
	return &listModelsResult{Models: ids}, nil
}
