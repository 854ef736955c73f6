package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/finxai/xai/internal/artifact"
	"github.com/finxai/xai/internal/dataset"
	"github.com/finxai/xai/internal/interpretation"
	"github.com/finxai/xai/internal/models"
	"github.com/finxai/xai/internal/models/modeltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `artifacts:
  dir: models
cache:
  results_dir: results
jobs:
  event_log: logs/jobs.jsonl
`

// newProject writes a .xai.yaml and the fixture models into a temp dir.
func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".xai.yaml"), []byte(testConfig), 0o644))
	store := artifact.NewFileStore(filepath.Join(dir, "models"))
	for _, h := range []*models.Handle{modeltest.Forest(), modeltest.Boosted(), modeltest.Logistic()} {
		require.NoError(t, store.Save(context.Background(), h, modeltest.Split(), artifact.CompressionNone))
	}
	return dir
}

// run executes the root command against dir and returns stdout.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	return runWithInput(t, dir, "", args...)
}

func runWithInput(t *testing.T, dir, stdin string, args ...string) (string, error) {
	t.Helper()
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, "--config-dir", dir))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestExplainLocal(t *testing.T) {
	dir := newProject(t)

	out, err := run(t, dir, "explain", "local", "m1", "0", "--json")
	require.NoError(t, err)

	var local models.LocalAttribution
	require.NoError(t, json.Unmarshal([]byte(out), &local))
	assert.Equal(t, models.MethodShapley, local.Method)
	assert.InDelta(t, 0.80, local.Reconstructed(), 1e-6)

	out, err = run(t, dir, "explain", "local", "l1", "2", "-m", "surrogate")
	require.NoError(t, err)
	assert.Contains(t, out, "Model l1, instance 2, method surrogate")
	assert.Contains(t, out, "debt_ratio")
}

func TestExplainLocal_Interpret(t *testing.T) {
	dir := newProject(t)
	cfg := testConfig + "interpretation:\n  top_features: 2\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".xai.yaml"), []byte(cfg), 0o644))

	out, err := run(t, dir, "explain", "local", "m1", "0", "--interpret")
	require.NoError(t, err)
	assert.Contains(t, out, "FEATURE")
	assert.Contains(t, out, "The model predicts **HIGH RISK**")
	assert.Contains(t, out, "**Key Factors:**")
	assert.Contains(t, out, "2. **")
	assert.NotContains(t, out, "3. **")
	assert.Contains(t, out, "**Summary:**")

	out, err = run(t, dir, "explain", "local", "m1", "0", "--interpret", "--json")
	require.NoError(t, err)
	var res struct {
		models.LocalAttribution
		Interpretation *interpretation.Interpretation `json:"interpretation"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.InDelta(t, 0.80, res.Reconstructed(), 1e-6)
	require.NotNil(t, res.Interpretation)
	assert.Len(t, res.Interpretation.Factors, 2)
	assert.Equal(t, interpretation.Mode, res.Interpretation.Mode)
}

func TestExplainLocal_ClientErrors(t *testing.T) {
	dir := newProject(t)

	tests := []struct {
		name string
		args []string
	}{
		{"index not a number", []string{"explain", "local", "m1", "x"}},
		{"unknown model", []string{"explain", "local", "zz", "0"}},
		{"index out of range", []string{"explain", "local", "m1", "99"}},
		{"unknown method", []string{"explain", "local", "m1", "0", "-m", "gradcam"}},
		{"incompatible method", []string{"explain", "local", "l1", "0", "-m", "shapley"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, dir, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitClientError, exitCode(err))
		})
	}
}

func TestImportance(t *testing.T) {
	dir := newProject(t)

	out, err := run(t, dir, "importance", "m1", "--method", "surrogate", "-n", "4", "--json")
	require.NoError(t, err)

	var global models.GlobalAttribution
	require.NoError(t, json.Unmarshal([]byte(out), &global))
	assert.Equal(t, "m1", global.ModelID)
	assert.Equal(t, 4, global.SampleSize)
	assert.Len(t, global.Features, 3)

	out, err = run(t, dir, "explain", "global", "g1", "--top", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Model g1, method shapley")
	assert.Contains(t, out, "RANK")

	// The completed result was written to the result cache.
	entries, err := os.ReadDir(filepath.Join(dir, "results"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)
}

func TestImportance_NegativeSampleSize(t *testing.T) {
	_, err := run(t, newProject(t), "importance", "m1", "-n", "-1")
	require.Error(t, err)
	assert.Equal(t, ExitClientError, exitCode(err))
}

func TestAgreement(t *testing.T) {
	out, err := run(t, newProject(t), "agreement", "m1", "-n", "6", "--json")
	require.NoError(t, err)

	var agreement map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &agreement))
	assert.Equal(t, 3.0, agreement["common_features"])
	assert.Len(t, agreement["top_k"], 3)
}

func TestQualityAndPerformance(t *testing.T) {
	dir := newProject(t)

	out, err := run(t, dir, "quality", "g1", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Model g1, instance 3, method shapley")
	assert.Contains(t, out, "faithfulness")
	assert.Contains(t, out, "effective features")

	out, err = run(t, dir, "performance", "m1")
	require.NoError(t, err)
	assert.Contains(t, out, "Model m1: 12 samples")
	assert.Contains(t, out, "auc roc")

	_, err = run(t, dir, "performance", "zz")
	assert.Equal(t, ExitClientError, exitCode(err))
}

func TestValidate_Store(t *testing.T) {
	dir := newProject(t)

	out, err := run(t, dir, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ m1")
	assert.Contains(t, out, "✓ l1")

	// A split whose columns do not match the model.
	broken := filepath.Join(dir, "models", "b1")
	require.NoError(t, os.MkdirAll(broken, 0o755))
	h := modeltest.Forest()
	h.ID = "b1"
	data, err := json.Marshal(h)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(broken, artifact.ModelFile), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(broken, artifact.SplitFile), []byte("a,b,label\n1,2,0\n"), 0o644))

	out, err = run(t, dir, "validate")
	require.Error(t, err)
	assert.Equal(t, ExitClientError, exitCode(err))
	assert.Contains(t, out, "✗ b1")
	assert.Contains(t, out, "✓ g1")
}

func TestValidate_Files(t *testing.T) {
	dir := newProject(t)

	data, err := json.Marshal(modeltest.Logistic())
	require.NoError(t, err)
	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, data, 0o644))
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"id":"x","family":"svm","feature_names":[]}`), 0o644))

	out, err := run(t, dir, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+good)

	out, err = run(t, dir, "validate", good, bad)
	require.Error(t, err)
	assert.Equal(t, ExitClientError, exitCode(err))
	assert.Contains(t, out, "✗ "+bad)

	_, err = run(t, dir, "validate", filepath.Join(dir, "missing.json"))
	assert.Equal(t, ExitError, exitCode(err))
}

func TestImport(t *testing.T) {
	dir := newProject(t)

	h := modeltest.Boosted()
	h.ID = "g2"
	data, err := json.Marshal(h)
	require.NoError(t, err)
	modelPath := filepath.Join(dir, "g2.json")
	require.NoError(t, os.WriteFile(modelPath, data, 0o644))

	var csv bytes.Buffer
	require.NoError(t, dataset.WriteSplitCSV(&csv, modeltest.Split()))
	splitPath := filepath.Join(dir, "g2.csv")
	require.NoError(t, os.WriteFile(splitPath, csv.Bytes(), 0o644))

	out, err := run(t, dir, "import", modelPath, splitPath, "--compression", "zstd")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported g2 (3 features, 12 held-out rows)")
	assert.FileExists(t, filepath.Join(dir, "models", "g2", artifact.ModelFile+".zst"))

	got, split, err := artifact.Load(context.Background(), artifact.NewFileStore(filepath.Join(dir, "models")), "g2")
	require.NoError(t, err)
	assert.Equal(t, models.FamilyGradientBoosting, got.Family)
	assert.Equal(t, 12, split.Len())

	_, err = run(t, dir, "import", modelPath, splitPath, "--compression", "gzip")
	assert.Equal(t, ExitClientError, exitCode(err))
}

func TestCacheClear(t *testing.T) {
	dir := newProject(t)
	results := filepath.Join(dir, "results")
	require.NoError(t, os.MkdirAll(results, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(results, "abc.json"), []byte("{}"), 0o644))

	out, err := run(t, dir, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Cache cleared: "+results)
	assert.NoDirExists(t, results)

	// Refuses to delete a directory that does not look like a cache.
	other := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(other, "notes.txt"), []byte("keep"), 0o644))
	_, err = run(t, dir, "cache", "clear", "--cache-dir", other)
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(other, "notes.txt"))
}

func TestRPC_Stdio(t *testing.T) {
	in := `{"jsonrpc":"2.0","method":"explain.local","params":{"model_id":"m1","instance_index":0},"id":1}` + "\n" +
		`{"jsonrpc":"2.0","method":"metrics.performance","params":{"model_id":"zz"},"id":2}` + "\n"

	out, err := runWithInput(t, newProject(t), in, "rpc")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, out, `"contributions"`)
	assert.Contains(t, out, `"artifact_not_found"`)
}

func TestMCP_Stdio(t *testing.T) {
	in := `{"jsonrpc":"2.0","method":"initialize","params":{},"id":1}` + "\n" +
		`{"jsonrpc":"2.0","method":"tools/call","params":{"name":"xai_list_models","arguments":{}},"id":2}` + "\n"

	out, err := runWithInput(t, newProject(t), in, "mcp")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"serverInfo"`)
	assert.Contains(t, lines[1], `g1`)
	assert.Contains(t, lines[1], `m1`)
}

func TestJobsLog(t *testing.T) {
	dir := newProject(t)

	_, err := run(t, dir, "importance", "m1", "-m", "surrogate", "-n", "4")
	require.NoError(t, err)

	out, err := run(t, dir, "jobs", "log", "--model", "m1")
	require.NoError(t, err)
	assert.Contains(t, out, "queued      m1 surrogate n=4")
	assert.Contains(t, out, "completed   n=4")

	out, err = run(t, dir, "jobs", "log", "--model", "g1")
	require.NoError(t, err)
	assert.Contains(t, out, "No job events found.")

	out, err = run(t, dir, "jobs", "log", "--json")
	require.NoError(t, err)
	var events []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	assert.GreaterOrEqual(t, len(events), 3)
}

func TestJobsStatus_UnknownJob(t *testing.T) {
	_, err := run(t, newProject(t), "jobs", "status", "no-such-job")
	require.Error(t, err)
	assert.Equal(t, ExitClientError, exitCode(err))
}
