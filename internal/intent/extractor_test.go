package intent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"deployforge/internal/config"
)

func TestNewReturnsNilWithoutConfiguration(t *testing.T) {
	if e := New(config.Config{}); e != nil {
		t.Fatal("New() should return nil when Azure OpenAI is not configured")
	}
}

func TestExtractOnNilExtractorReturnsNil(t *testing.T) {
	var e *Extractor
	fields, err := e.Extract(context.Background(), "deploy my app to the cloud")
	if fields != nil || err != nil {
		t.Fatalf("Extract() on nil = (%v, %v), want (nil, nil)", fields, err)
	}
}

func TestExtractParsesModelJSONReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") != "test-key" {
			t.Errorf("api-key header = %q, want %q", r.Header.Get("api-key"), "test-key")
		}
		resp := chatCompletionResponse{
			Choices: []struct {
				Message chatMessage `json:"message"`
			}{{Message: chatMessage{Role: "assistant", Content: `{"deployment_mode":"local","replicas":2}`}}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	e := &Extractor{endpoint: server.URL, apiKey: "test-key", deployment: "gpt-4o", client: server.Client()}
	fields, err := e.Extract(context.Background(), "deploy locally with two replicas")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if fields["deployment_mode"] != "local" {
		t.Errorf("deployment_mode = %v, want local", fields["deployment_mode"])
	}
	if fields["replicas"] != float64(2) {
		t.Errorf("replicas = %v, want 2", fields["replicas"])
	}
}

func TestExtractSurfacesNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer server.Close()

	e := &Extractor{endpoint: server.URL, apiKey: "wrong", deployment: "gpt-4o", client: server.Client()}
	if _, err := e.Extract(context.Background(), "deploy my app"); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestMergeDoesNotOverwriteExistingNonEmptyFields(t *testing.T) {
	dst := map[string]any{"deployment_mode": "cloud-hosted", "replicas": float64(0)}
	proposed := map[string]any{"deployment_mode": "local", "replicas": float64(3), "target_namespace": "staging"}
	Merge(dst, proposed)

	if dst["deployment_mode"] != "cloud-hosted" {
		t.Errorf("deployment_mode was overwritten: %v", dst["deployment_mode"])
	}
	if dst["replicas"] != float64(3) {
		t.Errorf("replicas should be filled in from proposal since 0 counts as empty: %v", dst["replicas"])
	}
	if dst["target_namespace"] != "staging" {
		t.Errorf("target_namespace should be filled in: %v", dst["target_namespace"])
	}
}

func TestIsEmptyValue(t *testing.T) {
	cases := []struct {
		v    any
		want bool
	}{
		{nil, true},
		{"", true},
		{"  ", true},
		{"local", false},
		{float64(0), true},
		{float64(3), false},
	}
	for _, c := range cases {
		if got := isEmptyValue(c.v); got != c.want {
			t.Errorf("isEmptyValue(%v) = %v, want %v", c.v, got, c.want)
		}
	}
}
