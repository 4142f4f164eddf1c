// Package api implements the Chat API Front-End (§4.10): an
// OpenAI-compatible streaming chat-completions endpoint that parses the
// extended request shape, spawns a pipeline invocation, and forwards its
// Progress Events as incremental chat-completion deltas.
//
// HTTP routing and server lifecycle are grounded verbatim on
// apps/ReleaseParty/backend/internal/api/server.go and its
// cmd/releaseparty-api/main.go counterpart (chi.NewRouter, r.Route, a
// writeJSON helper, ReadHeaderTimeout + signal-driven shutdown). SSE
// streaming of chat-completion deltas is new code written in the same
// handler style, since the teacher has no streaming endpoint of its own.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"deployforge/internal/config"
	"deployforge/internal/events"
	"deployforge/internal/intent"
	"deployforge/internal/logging"
	"deployforge/internal/orcherrors"
	"deployforge/internal/pipeline"
	"deployforge/internal/workspace"
)

// Server is the HTTP front-end over one Pipeline.
type Server struct {
	cfg       config.Config
	pipeline  *pipeline.Pipeline
	store     *workspace.Store
	extractor *intent.Extractor
	log       *log.Logger
}

// dispatchResult is what a backgrounded pipeline invocation hands back to
// the HTTP handler that spawned it.
type dispatchResult struct {
	outcome pipeline.Outcome
	err     error
}

// New returns a Server ready to route requests against p.
func New(cfg config.Config, p *pipeline.Pipeline, store *workspace.Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "deployforge ", log.LstdFlags|log.LUTC)
	}
	return &Server{cfg: cfg, pipeline: p, store: store, extractor: intent.New(cfg), log: logger}
}

// Router returns the full HTTP handler (§6 external interface).
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/models", s.handleModels)
		r.Post("/chat/completions", s.handleChatCompletions)
		r.Get("/deployments/{id}", s.handleGetDeployment)
	})

	return r
}

func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, modelsResponse{
		Object: "list",
		Data:   []modelInfo{{ID: modelID, Object: "model", OwnedBy: "deployforge"}},
	})
}

func (s *Server) handleGetDeployment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	meta, err := s.store.ReadMeta(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such deployment"})
		return
	}
	writeJSON(w, http.StatusOK, deploymentStatusResponse{
		ID:        meta.ID,
		Mode:      meta.Mode,
		Status:    meta.Status,
		CreatedAt: meta.CreatedAt.Format(time.RFC3339),
		UpdatedAt: meta.UpdatedAt.Format(time.RFC3339),
		Outputs:   meta.Outputs,
		LastError: meta.LastError,
	})
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if s.extractor != nil {
		s.applyIntentExtraction(r.Context(), &req)
	}

	if req.Action == "" {
		req.Action = pipeline.ActionDeploy
	}
	if req.Action == pipeline.ActionDeploy && req.InstanceName == "" && req.InstanceID == "" {
		req.InstanceName = "dep-" + uuid.NewString()[:8]
	}

	if err := req.Request.Validate(s.cfg); err != nil {
		s.writeValidationError(w, req.Stream, err)
		return
	}

	id := req.Request.DeploymentID()
	s.log.Printf("dispatching action=%s id=%s stream=%v", req.Action, id, req.Stream)
	logging.Debugf(s.log, "request body: mode=%s namespace=%s replicas=%d", req.Mode, req.TargetNamespace, req.Replicas)
	sinkCh := make(events.ChannelSink, 64)

	outcomeCh := make(chan dispatchResult, 1)

	go func() {
		outcome, err := s.dispatch(context.Background(), id, &req.Request, sinkCh)
		outcomeCh <- dispatchResult{outcome, err}
		close(sinkCh)
	}()

	if req.Stream {
		s.streamSSE(w, id, sinkCh, outcomeCh)
		return
	}
	s.writeBlocking(w, id, sinkCh, outcomeCh)
}

func (s *Server) dispatch(ctx context.Context, id string, req *pipeline.Request, sink events.Sink) (pipeline.Outcome, error) {
	switch req.Action {
	case pipeline.ActionRedeploy:
		return s.pipeline.Redeploy(ctx, id, req, sink)
	case pipeline.ActionScale:
		return s.pipeline.Scale(ctx, id, int32(req.Replicas), req.AWSCredentials, sink)
	case pipeline.ActionDecommission:
		return s.pipeline.Decommission(ctx, id, sink)
	default:
		return s.pipeline.Deploy(ctx, id, req, sink)
	}
}

// applyIntentExtraction derives the free-text user content from the last
// chat message and merges any fields the Intent Extractor proposes onto
// req, without overwriting fields the caller already supplied (§4.11).
// Failures degrade silently — the pipeline proceeds with whatever fields
// validation can work with.
func (s *Server) applyIntentExtraction(ctx context.Context, req *chatCompletionRequest) {
	userText := lastUserMessage(req.Messages)
	if strings.TrimSpace(userText) == "" {
		return
	}
	proposed, err := s.extractor.Extract(ctx, userText)
	if err != nil || len(proposed) == 0 {
		return
	}

	encoded, err := json.Marshal(req.Request)
	if err != nil {
		return
	}
	var asMap map[string]any
	if err := json.Unmarshal(encoded, &asMap); err != nil {
		return
	}
	intent.Merge(asMap, proposed)
	merged, err := json.Marshal(asMap)
	if err != nil {
		return
	}
	_ = json.Unmarshal(merged, &req.Request)
}

func lastUserMessage(messages []chatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func (s *Server) writeValidationError(w http.ResponseWriter, stream bool, err error) {
	outcome := chatCompletionOutcome{Status: "failed", ErrorKind: string(orcherrors.KindOf(err)), Error: err.Error()}
	if stream {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		writeChunk(w, chatCompletionChunk{Object: "chat.completion.chunk", Model: modelID, Final: &outcome})
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
		return
	}
	writeJSON(w, http.StatusBadRequest, outcome)
}

// streamSSE relays sinkCh as chat-completion-delta SSE events until
// outcomeCh resolves, then emits the terminal delta and [DONE] (§4.10).
func (s *Server) streamSSE(w http.ResponseWriter, id string, sinkCh events.ChannelSink, outcomeCh chan dispatchResult) {
	flusher, ok := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if ok {
		flusher.Flush()
	}

	for {
		select {
		case evt, open := <-sinkCh:
			if !open {
				sinkCh = nil
				continue
			}
			writeChunk(w, chatCompletionChunk{
				Object:  "chat.completion.chunk",
				Model:   modelID,
				Choices: []chatCompletionChoice{{Delta: chatMessage{Role: "assistant", Content: evt.Text}}},
			})
			if ok {
				flusher.Flush()
			}
		case result := <-outcomeCh:
			final := outcomeToPayload(id, result.outcome, result.err)
			writeChunk(w, chatCompletionChunk{Object: "chat.completion.chunk", Model: modelID, Final: &final})
			_, _ = w.Write([]byte("data: [DONE]\n\n"))
			if ok {
				flusher.Flush()
			}
			return
		}
	}
}

// writeBlocking waits for the pipeline invocation to finish, draining
// sinkCh meanwhile, and returns a single non-streamed chat-completion
// object carrying the terminal payload.
func (s *Server) writeBlocking(w http.ResponseWriter, id string, sinkCh events.ChannelSink, outcomeCh chan dispatchResult) {
	for range sinkCh {
		// events are discarded; terminal state comes from outcomeCh.
	}
	result := <-outcomeCh
	final := outcomeToPayload(id, result.outcome, result.err)
	writeJSON(w, http.StatusOK, map[string]any{
		"object":  "chat.completion",
		"model":   modelID,
		"choices": []map[string]any{{"index": 0, "message": chatMessage{Role: "assistant", Content: finalSummary(final)}, "finish_reason": "stop"}},
		"deployforge_result": final,
	})
}

func finalSummary(o chatCompletionOutcome) string {
	if o.Status == "failed" {
		return fmt.Sprintf("deployment %s failed: %s", o.DeploymentID, o.Error)
	}
	return fmt.Sprintf("deployment %s %s", o.DeploymentID, o.Status)
}

func outcomeToPayload(id string, outcome pipeline.Outcome, err error) chatCompletionOutcome {
	if err != nil {
		return chatCompletionOutcome{DeploymentID: id, Status: "failed", ErrorKind: string(orcherrors.KindOf(err)), Error: err.Error()}
	}
	return chatCompletionOutcome{
		DeploymentID: outcome.DeploymentID,
		Status:       string(outcome.Status),
		URL:          outcome.URL,
		Outputs:      outcome.Outputs,
	}
}

func writeChunk(w http.ResponseWriter, chunk chatCompletionChunk) {
	encoded, err := json.Marshal(chunk)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("data: " + string(encoded) + "\n\n"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
