package langflow

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"flowrelay/internal/domain"
	"flowrelay/internal/infra/config"
)

func clientConfig(baseURL string) config.BackendConfig {
	return config.BackendConfig{
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
	}
}

const replyBody = `{"outputs":[{"outputs":[{"results":{"message":{"text":"flow says hi"}}}]}]}`

func TestClientRun(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	var gotPayload map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.Write([]byte(replyBody))
	}))
	defer srv.Close()

	cfg := clientConfig(srv.URL)
	cfg.APIKey = "secret-key"
	c := NewClient(cfg, testLogger())

	target := domain.Target{
		Key:      "docs",
		RemoteID: "flow-123",
		Tweaks:   map[string]any{"temperature": 0.2},
	}
	reply, err := c.Run(context.Background(), target, "summarize", "session-9")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reply != "flow says hi" {
		t.Errorf("reply = %q", reply)
	}

	if gotPath != "/api/v1/run/flow-123" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery != "stream=false" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotPayload["input_value"] != "summarize" {
		t.Errorf("input_value = %v", gotPayload["input_value"])
	}
	if gotPayload["output_type"] != "chat" || gotPayload["input_type"] != "chat" {
		t.Errorf("types = %v / %v", gotPayload["output_type"], gotPayload["input_type"])
	}
	if gotPayload["session_id"] != "session-9" {
		t.Errorf("session_id = %v", gotPayload["session_id"])
	}
	tweaks, _ := gotPayload["tweaks"].(map[string]any)
	if tweaks["temperature"] != 0.2 {
		t.Errorf("tweaks = %v", gotPayload["tweaks"])
	}
}

func TestClientRunNoAuthHeaderWithoutKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(replyBody))
	}))
	defer srv.Close()

	c := NewClient(clientConfig(srv.URL), testLogger())
	if _, err := c.Run(context.Background(), domain.Target{RemoteID: "f"}, "hi", ""); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestClientRunEscapesFlowID(t *testing.T) {
	var gotEscaped string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEscaped = r.URL.EscapedPath()
		w.Write([]byte(replyBody))
	}))
	defer srv.Close()

	c := NewClient(clientConfig(srv.URL), testLogger())
	if _, err := c.Run(context.Background(), domain.Target{RemoteID: "id/../with spaces"}, "hi", ""); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if gotEscaped != "/api/v1/run/id%2F..%2Fwith%20spaces" {
		t.Errorf("escaped path = %q", gotEscaped)
	}
}

func TestClientRunStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(clientConfig(srv.URL), testLogger())
	_, err := c.Run(context.Background(), domain.Target{RemoteID: "f"}, "hi", "")

	var statusErr *domain.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want StatusError", err)
	}
	if statusErr.Code != 500 {
		t.Errorf("Code = %d", statusErr.Code)
	}
	if !errors.Is(err, domain.ErrBackendStatus) {
		t.Error("StatusError must classify as ErrBackendStatus")
	}
}

func TestClientRunTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	cfg := clientConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	c := NewClient(cfg, testLogger())

	_, err := c.Run(context.Background(), domain.Target{RemoteID: "f"}, "hi", "")
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
}

func TestClientRunUnreachable(t *testing.T) {
	// Nothing listens here.
	c := NewClient(clientConfig("http://127.0.0.1:1"), testLogger())
	_, err := c.Run(context.Background(), domain.Target{RemoteID: "f"}, "hi", "")
	if !errors.Is(err, domain.ErrUnreachable) {
		t.Fatalf("error = %v, want ErrUnreachable", err)
	}
}

func TestClientRunMalformedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"outputs":[]}`))
	}))
	defer srv.Close()

	c := NewClient(clientConfig(srv.URL), testLogger())
	_, err := c.Run(context.Background(), domain.Target{RemoteID: "f"}, "hi", "")
	if !errors.Is(err, domain.ErrMalformedReply) {
		t.Fatalf("error = %v, want ErrMalformedReply", err)
	}
}
