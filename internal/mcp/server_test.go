package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/finxai/xai/internal/artifact"
	"github.com/finxai/xai/internal/jsonrpc"
	"github.com/finxai/xai/internal/orchestration/orchestrationtest"
	"go.uber.org/mock/gomock"
)

func newTestServer(t *testing.T, lister artifact.Lister) *Server {
	t.Helper()
	hctx := jsonrpc.NewHandlerContext(orchestrationtest.New(t))
	return NewServer(hctx, lister, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func request(method, params string, id int) *jsonrpc.Request {
	return &jsonrpc.Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  json.RawMessage(params),
		ID:      json.RawMessage(strconv.Itoa(id)),
	}
}

// callTool runs tools/call and returns the decoded tool result.
func callTool(t *testing.T, srv *Server, name, args string) toolsCallResult {
	t.Helper()
	params := `{"name":"` + name + `","arguments":` + args + `}`
	resp := srv.HandleRequest(context.Background(), request("tools/call", params, 1))
	if resp == nil {
		t.Fatal("expected response, got nil")
	}
	if resp.Error != nil {
		t.Fatalf("unexpected protocol error: %v", resp.Error)
	}
	data, _ := json.Marshal(resp.Result)
	var result toolsCallResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(result.Content) != 1 || result.Content[0].Type != "text" {
		t.Fatalf("unexpected content: %+v", result.Content)
	}
	return result
}

func TestHandleInitialize(t *testing.T) {
	srv := newTestServer(t, nil)
	resp := srv.HandleRequest(context.Background(), request("initialize",
		`{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1.0"}}`, 1))
	if resp == nil {
		t.Fatal("expected response, got nil")
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result initializeResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.ProtocolVersion != protocolVersion {
		t.Errorf("protocolVersion = %q, want %q", result.ProtocolVersion, protocolVersion)
	}
	if result.ServerInfo.Name != "xai" {
		t.Errorf("serverInfo.name = %q, want %q", result.ServerInfo.Name, "xai")
	}
	if result.Capabilities.Tools == nil {
		t.Error("expected tools capability")
	}
}

func TestHandleToolsList(t *testing.T) {
	srv := newTestServer(t, nil)
	resp := srv.HandleRequest(context.Background(), request("tools/list", `{}`, 2))
	if resp == nil || resp.Error != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}

	data, _ := json.Marshal(resp.Result)
	var result toolsListResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(result.Tools) != 9 {
		t.Errorf("got %d tools, want 9", len(result.Tools))
	}
	for _, tool := range result.Tools {
		var schema map[string]any
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			t.Errorf("tool %s has an invalid input schema: %v", tool.Name, err)
		}
		if !strings.HasPrefix(tool.Name, "xai_") {
			t.Errorf("tool %s is missing the xai_ prefix", tool.Name)
		}
	}
}

func TestToolsCall_ExplainLocal(t *testing.T) {
	srv := newTestServer(t, nil)
	result := callTool(t, srv, "xai_explain_local", `{"model_id":"m1","instance_index":0}`)
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content[0].Text)
	}
	var local struct {
		Method        string `json:"method"`
		Contributions []any  `json:"contributions"`
	}
	if err := json.Unmarshal([]byte(result.Content[0].Text), &local); err != nil {
		t.Fatalf("unmarshal local attribution: %v", err)
	}
	if local.Method != "shapley" {
		t.Errorf("method = %q, want shapley", local.Method)
	}
	if len(local.Contributions) != 3 {
		t.Errorf("got %d contributions, want 3", len(local.Contributions))
	}
}

func TestToolsCall_InterpretLocal(t *testing.T) {
	srv := newTestServer(t, nil)
	result := callTool(t, srv, "xai_interpret_local", `{"model_id":"m1","instance_index":0}`)
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content[0].Text)
	}
	var res struct {
		Contributions  []any `json:"contributions"`
		Interpretation struct {
			Mode    string `json:"mode"`
			Factors []any  `json:"factors"`
			Text    string `json:"text"`
		} `json:"interpretation"`
	}
	if err := json.Unmarshal([]byte(result.Content[0].Text), &res); err != nil {
		t.Fatalf("unmarshal interpretation: %v", err)
	}
	if res.Interpretation.Mode != "rule-based" {
		t.Errorf("mode = %q, want rule-based", res.Interpretation.Mode)
	}
	if len(res.Interpretation.Factors) != 3 {
		t.Errorf("got %d factors, want 3", len(res.Interpretation.Factors))
	}
	if !strings.Contains(res.Interpretation.Text, "**Key Factors:**") {
		t.Errorf("text is missing the factor list: %q", res.Interpretation.Text)
	}

	result = callTool(t, srv, "xai_interpret_local", `{"model_id":"m1"}`)
	if !result.IsError {
		t.Error("expected a tool error without instance_index")
	}
}

func TestToolsCall_GlobalJob(t *testing.T) {
	srv := newTestServer(t, nil)
	result := callTool(t, srv, "xai_explain_global", `{"model_id":"m1","method":"surrogate","sample_size":4}`)
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content[0].Text)
	}
	var accepted jsonrpc.ExplainGlobalResult
	if err := json.Unmarshal([]byte(result.Content[0].Text), &accepted); err != nil {
		t.Fatalf("unmarshal job: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		status := callTool(t, srv, "xai_job_status", `{"job_id":"`+accepted.JobID+`"}`)
		if strings.Contains(status.Content[0].Text, `"status":"completed"`) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job did not complete: %s", status.Content[0].Text)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestToolsCall_ApplicationErrorIsToolError(t *testing.T) {
	srv := newTestServer(t, nil)
	result := callTool(t, srv, "xai_explain_local", `{"model_id":"l1","instance_index":0,"method":"shapley"}`)
	if !result.IsError {
		t.Fatal("expected isError for an incompatible method")
	}
	if !strings.Contains(result.Content[0].Text, `"incompatible_method"`) {
		t.Errorf("error text = %s, want the error kind", result.Content[0].Text)
	}
}

func TestToolsCall_UnknownTool(t *testing.T) {
	srv := newTestServer(t, nil)
	result := callTool(t, srv, "xai_nonexistent", `{}`)
	if !result.IsError {
		t.Fatal("expected isError for an unknown tool")
	}
	if !strings.Contains(result.Content[0].Text, "unknown tool") {
		t.Errorf("error text = %s", result.Content[0].Text)
	}
}

func TestToolsCall_ListModels(t *testing.T) {
	ctrl := gomock.NewController(t)
	lister := artifact.NewMockLister(ctrl)
	lister.EXPECT().ListModels(gomock.Any()).Return([]string{"g1", "l1", "m1"}, nil)

	srv := newTestServer(t, lister)
	result := callTool(t, srv, "xai_list_models", `{}`)
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Content[0].Text)
	}
	if result.Content[0].Text != `{"models":["g1","l1","m1"]}` {
		t.Errorf("text = %s", result.Content[0].Text)
	}

	noLister := newTestServer(t, nil)
	if res := callTool(t, noLister, "xai_list_models", `{}`); !res.IsError {
		t.Error("expected isError without a lister")
	}
}

func TestHandleUnknownMethod(t *testing.T) {
	srv := newTestServer(t, nil)
	resp := srv.HandleRequest(context.Background(), request("resources/list", `{}`, 3))
	if resp == nil || resp.Error == nil {
		t.Fatal("expected an error response")
	}
	if resp.Error.Code != jsonrpc.CodeMethodNotFound {
		t.Errorf("code = %d, want %d", resp.Error.Code, jsonrpc.CodeMethodNotFound)
	}
}

func TestServeStdio(t *testing.T) {
	// Send initialize, the initialized notification and tools/list, then EOF.
	initReq := `{"jsonrpc":"2.0","method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1.0"}},"id":1}` + "\n"
	notif := `{"jsonrpc":"2.0","method":"notifications/initialized","params":{}}` + "\n"
	listReq := `{"jsonrpc":"2.0","method":"tools/list","params":{},"id":2}` + "\n"

	var output bytes.Buffer
	newTestServer(t, nil).ServeStdio(context.Background(), strings.NewReader(initReq+notif+listReq), &output)

	lines := strings.Split(strings.TrimSpace(output.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 response lines, got %d: %s", len(lines), output.String())
	}
	for i, line := range lines {
		var resp jsonrpc.Response
		if err := json.Unmarshal([]byte(line), &resp); err != nil {
			t.Fatalf("unmarshal response %d: %v", i, err)
		}
		if resp.Error != nil {
			t.Fatalf("response %d error: %v", i, resp.Error)
		}
	}
}

func TestServeStdio_ParseError(t *testing.T) {
	var output bytes.Buffer
	newTestServer(t, nil).ServeStdio(context.Background(), strings.NewReader("not json\n"), &output)

	var resp jsonrpc.Response
	if err := json.Unmarshal(bytes.TrimSpace(output.Bytes()), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != jsonrpc.CodeParseError {
		t.Fatalf("expected a parse error, got %+v", resp)
	}
}
