package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/seiklabs/mcpgate/pkg/audit"
	"github.com/seiklabs/mcpgate/pkg/dispatch"
	"github.com/seiklabs/mcpgate/pkg/mcp"
	"github.com/seiklabs/mcpgate/pkg/research"
)

type stubCaller struct {
	result *mcpgo.CallToolResult
	err    error
}

func (s *stubCaller) CallTool(context.Context, string, map[string]interface{}) (*mcpgo.CallToolResult, error) {
	return s.result, s.err
}

type stubClient struct {
	tools    map[string]mcp.ToolEntry
	toolsErr error
}

func (s *stubClient) AllTools(context.Context) (map[string]mcp.ToolEntry, error) {
	return s.tools, s.toolsErr
}

func (s *stubClient) AllResources(context.Context) (map[string][]mcpgo.Resource, error) {
	return map[string][]mcpgo.Resource{}, nil
}

func (s *stubClient) Servers() []string { return nil }

func (s *stubClient) ReadResource(context.Context, string, string) (*mcpgo.ReadResourceResult, error) {
	return nil, nil
}

func (s *stubClient) SupportsPrompts() bool { return false }

func (s *stubClient) AllPrompts(context.Context) (map[string][]mcpgo.Prompt, error) {
	return map[string][]mcpgo.Prompt{}, nil
}

func (s *stubClient) GetPrompt(context.Context, string, string, map[string]string) (*mcpgo.GetPromptResult, error) {
	return nil, nil
}

func newTestServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	caller := &stubCaller{result: &mcpgo.CallToolResult{}}
	echo := mcp.NewToolEntry("alpha", mcpgo.Tool{Name: "echo"}, caller)
	client := &stubClient{tools: map[string]mcp.ToolEntry{echo.Key: echo}}
	s := New(dispatch.New(client), opts...)
	server := httptest.NewServer(s.Handler())
	t.Cleanup(server.Close)
	return server
}

func postActions(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/v1/actions", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestActions_ListToolsEnvelope(t *testing.T) {
	server := newTestServer(t)

	resp := postActions(t, server.URL, `{"action":"list_tools"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("Expected X-Request-ID header")
	}

	var env dispatch.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.Action != "list_tools" || env.Message != "Found 1 MCP tools" {
		t.Fatalf("Unexpected envelope %+v", env)
	}
}

func TestActions_ErrorStatusMapping(t *testing.T) {
	server := newTestServer(t)

	cases := []struct {
		body   string
		status int
		code   string
	}{
		{`{"action":"execute_tool","tool_name":"ghost"}`, http.StatusNotFound, "TOOL_NOT_FOUND"},
		{`{"action":"execute_tool"}`, http.StatusBadRequest, "MISSING_PARAMETER"},
		{`{"action":"get_prompt","prompt_name":"x"}`, http.StatusUnprocessableEntity, "PROMPTS_UNSUPPORTED"},
		{`{"action":"launch_missiles"}`, http.StatusBadRequest, "UNKNOWN_ACTION"},
	}

	for _, tc := range cases {
		resp := postActions(t, server.URL, tc.body)
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: expected status %d, got %d", tc.body, tc.status, resp.StatusCode)
		}

		var payload struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			t.Fatalf("decode error body: %v", err)
		}
		if payload.Error.Code != tc.code {
			t.Fatalf("%s: expected code %s, got %s", tc.body, tc.code, payload.Error.Code)
		}
	}
}

func TestActions_MalformedBody(t *testing.T) {
	server := newTestServer(t)
	resp := postActions(t, server.URL, "not json")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestActions_MethodNotAllowed(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Get(server.URL + "/v1/actions")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("Expected 405, got %d", resp.StatusCode)
	}
}

func TestResearch_NotConfigured(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Post(server.URL+"/v1/research", "application/json", strings.NewReader(`{"question":"q"}`))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", resp.StatusCode)
	}
}

func TestResearch_ProxiesResult(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices":   []map[string]any{{"message": map[string]any{"content": "answer"}}},
			"citations": []string{"https://example.com"},
		})
	}))
	defer upstream.Close()

	server := newTestServer(t, WithResearcher(research.New(upstream.URL, "key")))

	resp, err := http.Post(server.URL+"/v1/research", "application/json", strings.NewReader(`{"question":"q"}`))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var result research.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Answer != "answer" || len(result.Sources) != 1 {
		t.Fatalf("Unexpected result %+v", result)
	}
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
}

func TestActions_AuditTrail(t *testing.T) {
	store, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	defer store.Close()

	server := newTestServer(t, WithAuditor(store))

	postActions(t, server.URL, `{"action":"execute_tool","tool_name":"echo"}`)
	postActions(t, server.URL, `{"action":"execute_tool","tool_name":"ghost"}`)

	events, err := store.List(context.Background(), audit.Filter{Action: "execute_tool"})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("Expected 2 audit events, got %d", len(events))
	}

	var okEvents, errorEvents int
	for _, ev := range events {
		switch ev.Status {
		case "ok":
			okEvents++
			if ev.Target != "echo" {
				t.Fatalf("Unexpected target %q", ev.Target)
			}
		case "error":
			errorEvents++
			if ev.ErrorCode != "TOOL_NOT_FOUND" {
				t.Fatalf("Unexpected error code %q", ev.ErrorCode)
			}
		}
	}
	if okEvents != 1 || errorEvents != 1 {
		t.Fatalf("Expected one ok and one error event, got ok=%d error=%d", okEvents, errorEvents)
	}
}
