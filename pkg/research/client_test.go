package research

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	gateerrors "github.com/seiklabs/mcpgate/pkg/errors"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestSearch_SendsChatCompletionRequest(t *testing.T) {
	var got chatRequest
	var auth, path string

	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "sonar-pro",
			"choices": []map[string]any{
				{"message": map[string]any{"content": "Go is a language."}},
			},
			"citations": []string{"https://go.dev"},
		})
	})

	c := New(server.URL, "secret", WithModel("sonar-pro"))
	result, err := c.Search(context.Background(), "what is go")
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}

	if path != "/chat/completions" {
		t.Fatalf("Unexpected path %q", path)
	}
	if auth != "Bearer secret" {
		t.Fatalf("Unexpected auth header %q", auth)
	}
	if got.Model != "sonar-pro" {
		t.Fatalf("Unexpected model %q", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[1].Role != "user" || got.Messages[1].Content != "what is go" {
		t.Fatalf("Unexpected messages %+v", got.Messages)
	}

	if result.Answer != "Go is a language." {
		t.Fatalf("Unexpected answer %q", result.Answer)
	}
	if len(result.Sources) != 1 || result.Sources[0] != "https://go.dev" {
		t.Fatalf("Unexpected sources %v", result.Sources)
	}
	if result.ModelUsed != "sonar-pro" {
		t.Fatalf("Unexpected model %q", result.ModelUsed)
	}
}

func TestSearch_EmptyQuestion(t *testing.T) {
	c := New("http://unused", "")
	_, err := c.Search(context.Background(), "")
	if gateerrors.CodeOf(err) != gateerrors.CodeMissingParameter {
		t.Fatalf("Expected MISSING_PARAMETER, got %v", err)
	}
}

func TestSearch_NoAuthHeaderWithoutKey(t *testing.T) {
	var auth string
	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "ok"}}},
		})
	})

	c := New(server.URL, "")
	result, err := c.Search(context.Background(), "q")
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if auth != "" {
		t.Fatalf("Expected no auth header, got %q", auth)
	}
	// Missing citations and model fall back to empty sources and the
	// configured model.
	if len(result.Sources) != 0 || result.ModelUsed != defaultModel {
		t.Fatalf("Unexpected fallback result %+v", result)
	}
}

func TestSearch_UpstreamStatusError(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	c := New(server.URL, "key")
	_, err := c.Search(context.Background(), "q")
	if gateerrors.CodeOf(err) != gateerrors.CodeUpstream {
		t.Fatalf("Expected UPSTREAM_ERROR, got %v", err)
	}
}

func TestSearch_NoChoices(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})

	c := New(server.URL, "key")
	_, err := c.Search(context.Background(), "q")
	if gateerrors.CodeOf(err) != gateerrors.CodeUpstream {
		t.Fatalf("Expected UPSTREAM_ERROR, got %v", err)
	}
}

func TestSearch_MalformedBody(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	c := New(server.URL, "key")
	_, err := c.Search(context.Background(), "q")
	if gateerrors.CodeOf(err) != gateerrors.CodeUpstream {
		t.Fatalf("Expected UPSTREAM_ERROR, got %v", err)
	}
}

func TestTruncateBody(t *testing.T) {
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'x'
	}
	if got := truncateBody(long); len(got) != 512+3 {
		t.Fatalf("Unexpected truncated length %d", len(got))
	}
	if got := truncateBody([]byte("short")); got != "short" {
		t.Fatalf("Unexpected body %q", got)
	}
}
