package mcp

import (
	"context"
	"errors"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

type stubServer struct {
	tools    []mcpgo.Tool
	toolsErr error

	resources    []mcpgo.Resource
	resourcesErr error

	readResult *mcpgo.ReadResourceResult
	readErr    error
	readURI    string

	prompts        bool
	promptList     []mcpgo.Prompt
	promptsErr     error
	getPromptCalls int

	callName string
	closed   bool
}

func (s *stubServer) ListTools(context.Context) ([]mcpgo.Tool, error) {
	return s.tools, s.toolsErr
}

func (s *stubServer) CallTool(_ context.Context, name string, _ map[string]interface{}) (*mcpgo.CallToolResult, error) {
	s.callName = name
	return &mcpgo.CallToolResult{}, nil
}

func (s *stubServer) ListResources(context.Context) ([]mcpgo.Resource, error) {
	return s.resources, s.resourcesErr
}

func (s *stubServer) ReadResource(_ context.Context, uri string) (*mcpgo.ReadResourceResult, error) {
	s.readURI = uri
	return s.readResult, s.readErr
}

func (s *stubServer) SupportsPrompts() bool { return s.prompts }

func (s *stubServer) ListPrompts(context.Context) ([]mcpgo.Prompt, error) {
	return s.promptList, s.promptsErr
}

func (s *stubServer) GetPrompt(context.Context, string, map[string]string) (*mcpgo.GetPromptResult, error) {
	s.getPromptCalls++
	return &mcpgo.GetPromptResult{}, nil
}

func (s *stubServer) Close() error {
	s.closed = true
	return nil
}

func TestFlatKeyAndSplitKey(t *testing.T) {
	key := FlatKey("files", "read_file")
	if key != "files_read_file" {
		t.Fatalf("Unexpected key %q", key)
	}

	server, name := SplitKey(key)
	if server != "files" || name != "read_file" {
		t.Fatalf("Unexpected split %q/%q", server, name)
	}

	server, name = SplitKey("bareword")
	if server != UnknownServer || name != "bareword" {
		t.Fatalf("Expected unknown-server fallback, got %q/%q", server, name)
	}

	server, _ = SplitKey("_leading")
	if server != UnknownServer {
		t.Fatalf("Leading underscore must fall back, got %q", server)
	}
}

func TestFleet_Add_RejectsDuplicates(t *testing.T) {
	f := NewFleet()
	if err := f.Add("files", &stubServer{}); err != nil {
		t.Fatalf("Add error: %v", err)
	}
	err := f.Add("files", &stubServer{})
	if !errors.Is(err, ErrDuplicateServer) {
		t.Fatalf("Expected ErrDuplicateServer, got %v", err)
	}
	if err := f.Add("", &stubServer{}); err == nil {
		t.Fatal("Expected error for empty name")
	}
}

func TestFleet_Servers_PreservesRegistrationOrder(t *testing.T) {
	f := NewFleet()
	for _, name := range []string{"zulu", "alpha", "mike"} {
		if err := f.Add(name, &stubServer{}); err != nil {
			t.Fatalf("Add %s: %v", name, err)
		}
	}

	servers := f.Servers()
	if len(servers) != 3 || servers[0] != "zulu" || servers[1] != "alpha" || servers[2] != "mike" {
		t.Fatalf("Expected registration order, got %v", servers)
	}
	if f.Size() != 3 {
		t.Fatalf("Expected size 3, got %d", f.Size())
	}
}

func TestFleet_AllTools_EmptyFleet(t *testing.T) {
	f := NewFleet()
	_, err := f.AllTools(context.Background())
	if !errors.Is(err, ErrNoServers) {
		t.Fatalf("Expected ErrNoServers, got %v", err)
	}
}

func TestFleet_AllTools_FlattensAndPrefixes(t *testing.T) {
	f := NewFleet()
	files := &stubServer{tools: []mcpgo.Tool{{Name: "read_file"}}}
	search := &stubServer{tools: []mcpgo.Tool{{Name: "query"}}}
	_ = f.Add("files", files)
	_ = f.Add("search", search)

	entries, err := f.AllTools(context.Background())
	if err != nil {
		t.Fatalf("AllTools error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}

	entry, ok := entries["files_read_file"]
	if !ok || entry.Server != "files" || entry.Name != "read_file" {
		t.Fatalf("Unexpected entry %+v", entry)
	}
	if !entry.Executable() {
		t.Fatal("Fleet entries must be executable")
	}

	if _, err := entry.Call(context.Background(), nil); err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if files.callName != "read_file" {
		t.Fatalf("Call was not routed with the bare tool name, got %q", files.callName)
	}
}

func TestFleet_AllTools_SkipsFailingServer(t *testing.T) {
	f := NewFleet()
	_ = f.Add("down", &stubServer{toolsErr: errors.New("refused")})
	_ = f.Add("up", &stubServer{tools: []mcpgo.Tool{{Name: "query"}}})

	entries, err := f.AllTools(context.Background())
	if err != nil {
		t.Fatalf("Expected partial success, got %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
}

func TestFleet_AllTools_AllServersFailing(t *testing.T) {
	f := NewFleet()
	_ = f.Add("a", &stubServer{toolsErr: errors.New("one")})
	_ = f.Add("b", &stubServer{toolsErr: errors.New("two")})

	_, err := f.AllTools(context.Background())
	if err == nil {
		t.Fatal("Expected error when every server fails")
	}
}

func TestFleet_AllResources(t *testing.T) {
	f := NewFleet()
	_ = f.Add("files", &stubServer{resources: []mcpgo.Resource{{URI: "file:///a"}}})
	_ = f.Add("down", &stubServer{resourcesErr: errors.New("refused")})

	byServer, err := f.AllResources(context.Background())
	if err != nil {
		t.Fatalf("AllResources error: %v", err)
	}
	if len(byServer["files"]) != 1 {
		t.Fatalf("Unexpected resources %v", byServer)
	}
	if _, ok := byServer["down"]; ok {
		t.Fatal("Failing server must be skipped, not reported empty")
	}
}

func TestFleet_ReadResource_RoutesByServer(t *testing.T) {
	f := NewFleet()
	files := &stubServer{readResult: &mcpgo.ReadResourceResult{}}
	_ = f.Add("files", files)

	if _, err := f.ReadResource(context.Background(), "files", "file:///a"); err != nil {
		t.Fatalf("ReadResource error: %v", err)
	}
	if files.readURI != "file:///a" {
		t.Fatalf("Unexpected URI %q", files.readURI)
	}

	_, err := f.ReadResource(context.Background(), "ghost", "file:///a")
	if !errors.Is(err, ErrServerNotFound) {
		t.Fatalf("Expected ErrServerNotFound, got %v", err)
	}
}

func TestFleet_SupportsPrompts_AnyServer(t *testing.T) {
	f := NewFleet()
	_ = f.Add("plain", &stubServer{})
	if f.SupportsPrompts() {
		t.Fatal("Expected no prompt support")
	}
	_ = f.Add("prompty", &stubServer{prompts: true})
	if !f.SupportsPrompts() {
		t.Fatal("Expected prompt support from second server")
	}
}

func TestFleet_AllPrompts_OnlyCapableServers(t *testing.T) {
	f := NewFleet()
	incapable := &stubServer{promptsErr: errors.New("should not be called")}
	capable := &stubServer{prompts: true, promptList: []mcpgo.Prompt{{Name: "summarize"}}}
	_ = f.Add("plain", incapable)
	_ = f.Add("prompty", capable)

	byServer, err := f.AllPrompts(context.Background())
	if err != nil {
		t.Fatalf("AllPrompts error: %v", err)
	}
	if len(byServer) != 1 || len(byServer["prompty"]) != 1 {
		t.Fatalf("Unexpected prompts %v", byServer)
	}
}

func TestFleet_AllPrompts_AllCapableFailing(t *testing.T) {
	f := NewFleet()
	_ = f.Add("plain", &stubServer{})
	_ = f.Add("broken", &stubServer{prompts: true, promptsErr: errors.New("refused")})

	if _, err := f.AllPrompts(context.Background()); err == nil {
		t.Fatal("Expected error when every prompt-capable server fails")
	}
}

func TestFleet_Close(t *testing.T) {
	f := NewFleet()
	a := &stubServer{}
	b := &stubServer{}
	_ = f.Add("a", a)
	_ = f.Add("b", b)

	if err := f.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if !a.closed || !b.closed {
		t.Fatal("Expected all servers closed")
	}
	if f.Size() != 0 {
		t.Fatalf("Expected empty fleet after close, got %d", f.Size())
	}
}

func TestToolEntry_MetadataNotExecutable(t *testing.T) {
	entry := NewMetadataEntry("files", mcpgo.Tool{Name: "hidden"})
	if entry.Executable() {
		t.Fatal("Metadata entry must not be executable")
	}
	if _, err := entry.Call(context.Background(), nil); err == nil {
		t.Fatal("Expected error calling metadata entry")
	}
}
