package mcp

import "encoding/json"

// Tool describes an MCP tool with its input schema.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

const methodProperty = `"method": {"type": "string", "description": "Attribution method: shapley or surrogate (default shapley)"}`

// ToolsDef returns the list of MCP tools exposed by xai.
func ToolsDef() []Tool {
	return []Tool{
		{
			Name:        "xai_list_models",
			Description: "List the model ids in the artifact store",
			InputSchema: json.RawMessage(`{"type": "object", "properties": {}}`),
		},
		{
			Name:        "xai_explain_global",
			Description: "Start a global feature importance job for a model and return its job ID",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"model_id":    {"type": "string", "description": "Model identifier"},
					` + methodProperty + `,
					"sample_size": {"type": "integer", "minimum": 0, "description": "Held-out rows to aggregate over (0 uses the server default)"}
				},
				"required": ["model_id"]
			}`),
		},
		{
			Name:        "xai_explain_local",
			Description: "Attribute one held-out prediction to its features",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"model_id":       {"type": "string", "description": "Model identifier"},
					"instance_index": {"type": "integer", "minimum": 0, "description": "Row of the held-out split"},
					` + methodProperty + `
				},
				"required": ["model_id", "instance_index"]
			}`),
		},
		{
			Name:        "xai_interpret_local",
			Description: "Explain one held-out prediction in plain language: the top factors graded by strength and direction, and which side of the decision dominates",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"model_id":       {"type": "string", "description": "Model identifier"},
					"instance_index": {"type": "integer", "minimum": 0, "description": "Row of the held-out split"},
					` + methodProperty + `
				},
				"required": ["model_id", "instance_index"]
			}`),
		},
		{
			Name:        "xai_job_status",
			Description: "Get the status, and when completed the result, of a global explanation job",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"job_id": {"type": "string", "description": "Job ID returned by xai_explain_global"}
				},
				"required": ["job_id"]
			}`),
		},
		{
			Name:        "xai_job_cancel",
			Description: "Cancel a pending or running global explanation job",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"job_id": {"type": "string", "description": "Job ID returned by xai_explain_global"}
				},
				"required": ["job_id"]
			}`),
		},
		{
			Name:        "xai_quality_metrics",
			Description: "Score the faithfulness, robustness and complexity of one local explanation",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"model_id":       {"type": "string", "description": "Model identifier"},
					"instance_index": {"type": "integer", "minimum": 0, "description": "Row of the held-out split"},
					` + methodProperty + `
				},
				"required": ["model_id", "instance_index"]
			}`),
		},
		{
			Name:        "xai_performance_metrics",
			Description: "Evaluate a classifier on its held-out split",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"model_id": {"type": "string", "description": "Model identifier"}
				},
				"required": ["model_id"]
			}`),
		},
		{
			Name:        "xai_invalidate_cache",
			Description: "Drop cached explainers, artifacts and results for a model",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"model_id": {"type": "string", "description": "Model identifier"}
				},
				"required": ["model_id"]
			}`),
		},
	}
}
