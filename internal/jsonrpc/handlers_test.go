package jsonrpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/finxai/xai/internal/interpretation"
	"github.com/finxai/xai/internal/jobs"
	"github.com/finxai/xai/internal/models"
	"github.com/finxai/xai/internal/orchestration"
	"github.com/finxai/xai/internal/orchestration/orchestrationtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// helper to send a JSON-RPC request and decode the response
func rpcCall(t *testing.T, server *Server, method string, params any) Response {
	t.Helper()
	paramsJSON, err := json.Marshal(params)
	require.NoError(t, err)

	reqLine := fmt.Sprintf(`{"jsonrpc":"2.0","method":"%s","params":%s,"id":1}`, method, string(paramsJSON))
	var out bytes.Buffer
	server.ServeStdio(context.Background(), strings.NewReader(reqLine+"\n"), &out)

	var resp Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	return resp
}

// decodeResult round-trips resp.Result into v.
func decodeResult(t *testing.T, resp Response, v any) {
	t.Helper()
	require.Nil(t, resp.Error)
	raw, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

func errorData(t *testing.T, resp Response) ErrorData {
	t.Helper()
	require.NotNil(t, resp.Error)
	raw, err := json.Marshal(resp.Error.Data)
	require.NoError(t, err)
	var data ErrorData
	require.NoError(t, json.Unmarshal(raw, &data))
	return data
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	registry := NewMethodRegistry()
	RegisterHandlers(registry, NewHandlerContext(orchestrationtest.New(t)))
	return NewServer(registry, nil)
}

func TestRegisterHandlers(t *testing.T) {
	registry := NewMethodRegistry()
	RegisterHandlers(registry, NewHandlerContext(orchestrationtest.New(t)))

	assert.Equal(t, []string{
		"cache.invalidate",
		"explain.global",
		"explain.local",
		"job.cancel",
		"job.status",
		"metrics.performance",
		"metrics.quality",
	}, registry.Methods())
}

func TestHandler_InvalidParams(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		method string
		params any
	}{
		{"explain.local", "not an object"},
		{"explain.local", map[string]any{"model_id": "m1"}},
		{"metrics.quality", map[string]any{"model_id": "m1"}},
		{"explain.global", map[string]any{"model_id": "m1", "sample_size": -1}},
		{"job.status", []int{1}},
		{"metrics.performance", map[string]any{"model_id": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			resp := rpcCall(t, server, tt.method, tt.params)
			require.NotNil(t, resp.Error)
			assert.Equal(t, CodeInvalidParams, resp.Error.Code)
		})
	}
}

func TestHandler_MissingParams(t *testing.T) {
	server := newTestServer(t)

	var out bytes.Buffer
	server.ServeStdio(context.Background(), strings.NewReader(`{"jsonrpc":"2.0","method":"explain.local","id":1}`+"\n"), &out)

	var resp Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestHandler_ExplainLocal(t *testing.T) {
	server := newTestServer(t)

	resp := rpcCall(t, server, "explain.local", map[string]any{"model_id": "m1", "instance_index": 0})

	var local models.LocalAttribution
	decodeResult(t, resp, &local)
	assert.Equal(t, models.MethodShapley, local.Method)
	assert.InDelta(t, 0.80, local.Reconstructed(), 1e-6)
	assert.NotContains(t, string(mustJSON(t, resp.Result)), "interpretation")
}

func TestHandler_ExplainLocalInterpret(t *testing.T) {
	server := newTestServer(t)

	resp := rpcCall(t, server, "explain.local", map[string]any{"model_id": "m1", "instance_index": 0, "interpret": true})

	var res struct {
		models.LocalAttribution
		Interpretation *interpretation.Interpretation `json:"interpretation"`
	}
	decodeResult(t, resp, &res)
	assert.InDelta(t, 0.80, res.Reconstructed(), 1e-6)
	require.NotNil(t, res.Interpretation)
	assert.Equal(t, interpretation.Mode, res.Interpretation.Mode)
	assert.Equal(t, "m1", res.Interpretation.ModelID)
	assert.Contains(t, res.Interpretation.Headline, "HIGH RISK")
	assert.NotEmpty(t, res.Interpretation.Factors)
	assert.Contains(t, res.Interpretation.Text, "**Summary:**")
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestHandler_ApplicationErrors(t *testing.T) {
	server := newTestServer(t)

	tests := []struct {
		name   string
		method string
		params any
		code   int
		kind   orchestration.Kind
	}{
		{"unknown model", "explain.local", map[string]any{"model_id": "zz", "instance_index": 0}, CodeArtifactNotFound, orchestration.KindArtifactNotFound},
		{"index out of range", "explain.local", map[string]any{"model_id": "m1", "instance_index": 40}, CodeIndexOutOfBounds, orchestration.KindIndexOutOfBounds},
		{"unknown method", "metrics.quality", map[string]any{"model_id": "m1", "instance_index": 0, "method": "gradcam"}, CodeUnknownMethod, orchestration.KindUnknownMethod},
		{"incompatible", "explain.local", map[string]any{"model_id": "l1", "instance_index": 0, "method": "shapley"}, CodeIncompatibleMethod, orchestration.KindIncompatibleMethod},
		{"job not found", "job.status", map[string]any{"job_id": "missing"}, CodeJobNotFound, orchestration.KindJobNotFound},
		{"perf unknown model", "metrics.performance", map[string]any{"model_id": "zz"}, CodeArtifactNotFound, orchestration.KindArtifactNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := rpcCall(t, server, tt.method, tt.params)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			data := errorData(t, resp)
			assert.Equal(t, string(tt.kind), data.Kind)
			assert.NotEmpty(t, data.Detail)
		})
	}
}

func TestHandler_GlobalJob(t *testing.T) {
	server := newTestServer(t)

	resp := rpcCall(t, server, "explain.global", map[string]any{"model_id": "m1", "method": "surrogate", "sample_size": 4})
	var accepted ExplainGlobalResult
	decodeResult(t, resp, &accepted)
	require.NotEmpty(t, accepted.JobID)
	assert.Equal(t, jobs.StatusPending, accepted.Status)

	var job jobs.Job
	require.Eventually(t, func() bool {
		decodeResult(t, rpcCall(t, server, "job.status", JobParams{JobID: accepted.JobID}), &job)
		return job.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, jobs.StatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, 4, job.Result.SampleSize)

	var canceled jobs.Job
	decodeResult(t, rpcCall(t, server, "job.cancel", JobParams{JobID: accepted.JobID}), &canceled)
	assert.Equal(t, jobs.StatusCompleted, canceled.Status)
}

func TestHandler_GlobalJobNotification(t *testing.T) {
	server := newTestServer(t)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		server.ServeStdio(context.Background(), inR, outW)
		outW.Close() //nolint:errcheck
	}()

	_, err := io.WriteString(inW, `{"jsonrpc":"2.0","method":"explain.global","params":{"model_id":"g1","method":"shapley","sample_size":3,"notify":true},"id":7}`+"\n")
	require.NoError(t, err)

	// The response and the notification may arrive in either order.
	lines := bufio.NewScanner(outR)
	var gotResponse, gotNotification bool
	for i := 0; i < 2 && lines.Scan(); i++ {
		var msg map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(lines.Bytes(), &msg))
		if _, ok := msg["id"]; ok {
			gotResponse = true
			continue
		}
		assert.JSONEq(t, `"job.updated"`, string(msg["method"]))
		var job jobs.Job
		require.NoError(t, json.Unmarshal(msg["params"], &job))
		assert.Equal(t, jobs.StatusCompleted, job.Status)
		gotNotification = true
	}
	assert.True(t, gotResponse)
	assert.True(t, gotNotification)

	inW.Close()                  //nolint:errcheck
	go io.Copy(io.Discard, outR) //nolint:errcheck
	<-done
}

func TestHandler_Metrics(t *testing.T) {
	server := newTestServer(t)

	var perf map[string]any
	decodeResult(t, rpcCall(t, server, "metrics.performance", ModelParams{ModelID: "m1"}), &perf)
	assert.Equal(t, 12.0, perf["sample_count"])

	var quality map[string]any
	decodeResult(t, rpcCall(t, server, "metrics.quality", map[string]any{"model_id": "g1", "instance_index": 1}), &quality)
	assert.Equal(t, "shapley", quality["method"])
	assert.Contains(t, quality, "faithfulness")
}

func TestHandler_CacheInvalidate(t *testing.T) {
	server := newTestServer(t)

	var res orchestration.InvalidationResult
	decodeResult(t, rpcCall(t, server, "cache.invalidate", ModelParams{ModelID: "m1"}), &res)
	assert.Equal(t, "m1", res.ModelID)
	assert.Equal(t, 0, res.Explainers)
}

func TestErrOrchestration(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{models.ErrArtifactNotFound, CodeArtifactNotFound},
		{models.ErrExplanationTimeout, CodeExplanationTimeout},
		{models.ErrQueueFull, CodeServiceUnavailable},
		{context.Canceled, CodeCanceled},
		{errors.New("boom"), CodeComputationFailure},
		{&orchestration.Error{Kind: orchestration.KindInvalidRequest, Message: "model id is required"}, CodeInvalidParams},
	}
	for _, tt := range tests {
		rpcErr := ErrOrchestration(tt.err)
		assert.Equal(t, tt.code, rpcErr.Code, tt.err.Error())
	}

	data := ErrOrchestration(models.ErrExplanationTimeout).Data.(ErrorData)
	assert.True(t, data.Retryable)
}
