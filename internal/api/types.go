package api

import "deployforge/internal/pipeline"

// chatMessage is the OpenAI-compatible chat message shape (§4.10).
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionRequest is the chat-completion request body extended with
// the deployment fields of §4.10. Unknown standard fields (model, etc.) are
// accepted and ignored via the embedded json.RawMessage-free struct —
// encoding/json already drops keys with no matching field.
type chatCompletionRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []chatMessage `json:"messages,omitempty"`
	Stream   bool          `json:"stream"`

	pipeline.Request
}

// chatCompletionChunk is one server-sent-event delta in the streaming
// response.
type chatCompletionChunk struct {
	ID      string                  `json:"id"`
	Object  string                  `json:"object"`
	Created int64                   `json:"created"`
	Model   string                  `json:"model"`
	Choices []chatCompletionChoice  `json:"choices"`
	Final   *chatCompletionOutcome  `json:"deployforge_result,omitempty"`
}

type chatCompletionChoice struct {
	Index        int         `json:"index"`
	Delta        chatMessage `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

// chatCompletionOutcome is the structured final payload carried by the
// terminal delta (§4.10: "a terminal delta carries a structured final
// payload containing {deployment_id, status, URLs, outputs}").
type chatCompletionOutcome struct {
	DeploymentID string            `json:"deployment_id"`
	Status       string            `json:"status"`
	URL          string            `json:"url,omitempty"`
	Outputs      map[string]string `json:"outputs,omitempty"`
	ErrorKind    string            `json:"error_kind,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// modelsResponse backs GET /v1/models (§6: "a single fixed model
// identifier for client-compatibility").
type modelsResponse struct {
	Object string      `json:"object"`
	Data   []modelInfo `json:"data"`
}

type modelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

const modelID = "deployforge-orchestrator"

// deploymentStatusResponse backs GET /v1/deployments/{id} (§10 supplement).
type deploymentStatusResponse struct {
	ID        string            `json:"id"`
	Mode      string            `json:"mode"`
	Status    string            `json:"status"`
	CreatedAt string            `json:"created_at"`
	UpdatedAt string            `json:"updated_at"`
	Outputs   map[string]string `json:"outputs,omitempty"`
	LastError string            `json:"last_error,omitempty"`
}
