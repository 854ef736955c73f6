package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
)

type transportKey struct{}

// TransportFrom returns the transport serving the current request, if any.
// Handlers use it to push notifications to the caller.
func TransportFrom(ctx context.Context) (*Transport, bool) {
	t, ok := ctx.Value(transportKey{}).(*Transport)
	return t, ok
}

// Server handles JSON-RPC 2.0 requests over a Transport.
type Server struct {
	registry *MethodRegistry
	logger   *slog.Logger
}

// NewServer creates a JSON-RPC server with the given method registry.
func NewServer(registry *MethodRegistry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{registry: registry, logger: logger}
}

// ServeTransport reads requests from the transport and writes responses.
// It runs until the transport's reader returns io.EOF, a read error, or ctx
// is canceled between requests.
func (s *Server) ServeTransport(ctx context.Context, t *Transport) {
	ctx = context.WithValue(ctx, transportKey{}, t)

	for ctx.Err() == nil {
		req, rawJSON, err := t.ReadRequest()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			s.logger.Debug("read error", "error", err)
			resp := &Response{
				JSONRPC: "2.0",
				Error:   ErrParseError(err.Error()),
				ID:      json.RawMessage("null"),
			}
			if writeErr := t.WriteResponse(resp); writeErr != nil {
				s.logger.Debug("write error", "error", writeErr)
			}
			return
		}

		// Notifications omit the "id" key and never receive a response.
		isNotification := !hasIDField(rawJSON)

		if req.JSONRPC != "2.0" {
			if isNotification {
				continue
			}
			if !s.write(t, &Response{
				JSONRPC: "2.0",
				Error:   ErrInvalidRequest("jsonrpc field must be \"2.0\""),
				ID:      req.ID,
			}) {
				return
			}
			continue
		}

		handler := s.registry.Lookup(req.Method)
		if handler == nil {
			if isNotification {
				continue
			}
			if !s.write(t, &Response{
				JSONRPC: "2.0",
				Error:   ErrMethodNotFound(req.Method),
				ID:      req.ID,
			}) {
				return
			}
			continue
		}

		result, rpcErr := handler(ctx, req.Params)
		s.logger.Debug("rpc call", "method", req.Method, "error", rpcErr)

		if isNotification {
			continue
		}

		resp := &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
		}
		if rpcErr != nil {
			resp.Error = rpcErr
		} else {
			resp.Result = result
		}
		if !s.write(t, resp) {
			return
		}
	}
}

func (s *Server) write(t *Transport, resp *Response) bool {
	if err := t.WriteResponse(resp); err != nil {
		s.logger.Debug("write error", "error", err)
		return false
	}
	return true
}

// hasIDField checks whether the raw JSON contains an "id" key at the top level.
func hasIDField(raw []byte) bool {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return false
	}
	_, exists := obj["id"]
	return exists
}

// ServeStdio runs the server on stdin/stdout.
func (s *Server) ServeStdio(ctx context.Context, stdin io.Reader, stdout io.Writer) {
	t := NewTransport(stdin, stdout)
	defer t.Close()
	s.ServeTransport(ctx, t)
}
