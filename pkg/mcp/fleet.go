// SPDX-License-Identifier: Apache-2.0

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// UnknownServer is the label used for flat keys that carry no server prefix.
const UnknownServer = "unknown"

// ToolCaller abstracts MCP tool execution so descriptors stay testable.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)
}

// ToolEntry is one entry of the flat tool namespace. Entries without a
// caller are metadata, not executable tools.
type ToolEntry struct {
	// Key is the flat-namespace key, "<server>_<name>".
	Key string
	// Name is the tool's own identifier on its server, preferred over Key
	// for display.
	Name string
	// Server is the owning server name.
	Server string
	// Tool carries the full mcp-go tool definition (description, schemas).
	Tool mcp.Tool

	caller ToolCaller
}

// Executable reports whether the entry can actually be called.
func (e ToolEntry) Executable() bool {
	return e.caller != nil
}

// Call executes the tool on its owning server.
func (e ToolEntry) Call(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	if e.caller == nil {
		return nil, fmt.Errorf("tool %q is not executable", e.Key)
	}
	return e.caller.CallTool(ctx, e.Name, args)
}

// InputSchema returns the tool's input schema, preferring the raw form.
func (e ToolEntry) InputSchema() any {
	if e.Tool.RawInputSchema != nil {
		return e.Tool.RawInputSchema
	}
	return e.Tool.InputSchema
}

// OutputSchema returns the tool's declared output schema, if any.
func (e ToolEntry) OutputSchema() json.RawMessage {
	return e.Tool.RawOutputSchema
}

// NewToolEntry builds an executable tool entry. Used by the fleet and by
// tests that need synthetic namespaces.
func NewToolEntry(server string, tool mcp.Tool, caller ToolCaller) ToolEntry {
	return ToolEntry{
		Key:    FlatKey(server, tool.Name),
		Name:   tool.Name,
		Server: server,
		Tool:   tool,
		caller: caller,
	}
}

// NewMetadataEntry builds a non-executable namespace entry.
func NewMetadataEntry(server string, tool mcp.Tool) ToolEntry {
	entry := NewToolEntry(server, tool, nil)
	return entry
}

// FlatKey builds the composite namespace key for a tool.
func FlatKey(server, name string) string {
	return server + "_" + name
}

// SplitKey derives the server from a flat key's prefix before the first
// underscore. Keys without an underscore map to UnknownServer; the prefix
// convention is not a structural guarantee.
func SplitKey(key string) (server, name string) {
	idx := strings.Index(key, "_")
	if idx <= 0 {
		return UnknownServer, key
	}
	return key[:idx], key[idx+1:]
}

// ServerClient is the per-server surface the fleet aggregates over.
// *Client implements it.
type ServerClient interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error)
	ListResources(ctx context.Context) ([]mcp.Resource, error)
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)
	SupportsPrompts() bool
	ListPrompts(ctx context.Context) ([]mcp.Prompt, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error)
	Close() error
}

// Fleet aggregates named capability servers into one flat namespace.
// Registration order is the scan order for every multi-server lookup,
// so resolution is deterministic.
type Fleet struct {
	mu      sync.RWMutex
	order   []string
	servers map[string]ServerClient
	logger  *slog.Logger
}

// NewFleet creates an empty fleet.
func NewFleet() *Fleet {
	return &Fleet{
		servers: make(map[string]ServerClient),
		logger:  slog.Default(),
	}
}

// Add registers a named server. Names must be unique.
func (f *Fleet) Add(name string, c ServerClient) error {
	if name == "" || c == nil {
		return fmt.Errorf("invalid server registration %q", name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.servers[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateServer, name)
	}
	f.order = append(f.order, name)
	f.servers[name] = c
	return nil
}

// Servers returns the registered server names in registration order.
func (f *Fleet) Servers() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// Size returns the number of registered servers.
func (f *Fleet) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.order)
}

// Close closes every registered server connection.
func (f *Fleet) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for _, name := range f.order {
		if err := f.servers[name].Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
	}
	f.order = nil
	f.servers = make(map[string]ServerClient)
	return errors.Join(errs...)
}

func (f *Fleet) snapshot() ([]string, map[string]ServerClient) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	order := make([]string, len(f.order))
	copy(order, f.order)
	servers := make(map[string]ServerClient, len(f.servers))
	for k, v := range f.servers {
		servers[k] = v
	}
	return order, servers
}

// AllTools fetches every server's tools and flattens them into the composite
// namespace. Servers that fail to answer are skipped; the call fails only
// when no server is connected or every server fails.
func (f *Fleet) AllTools(ctx context.Context) (map[string]ToolEntry, error) {
	order, servers := f.snapshot()
	if len(order) == 0 {
		return nil, ErrNoServers
	}

	entries := make(map[string]ToolEntry)
	var errs []error
	for _, name := range order {
		sc := servers[name]
		tools, err := sc.ListTools(ctx)
		if err != nil {
			f.logger.Warn("fleet: list tools failed", "server", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		for _, tool := range tools {
			entry := NewToolEntry(name, tool, serverCaller{sc})
			entries[entry.Key] = entry
		}
	}
	if len(errs) == len(order) {
		return nil, errors.Join(errs...)
	}
	return entries, nil
}

// AllResources fetches every server's resource list keyed by server name.
// The failure policy matches AllTools.
func (f *Fleet) AllResources(ctx context.Context) (map[string][]mcp.Resource, error) {
	order, servers := f.snapshot()
	if len(order) == 0 {
		return nil, ErrNoServers
	}

	byServer := make(map[string][]mcp.Resource)
	var errs []error
	for _, name := range order {
		resources, err := servers[name].ListResources(ctx)
		if err != nil {
			f.logger.Warn("fleet: list resources failed", "server", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		byServer[name] = resources
	}
	if len(errs) == len(order) {
		return nil, errors.Join(errs...)
	}
	return byServer, nil
}

// ReadResource reads one resource from the named server.
func (f *Fleet) ReadResource(ctx context.Context, server, uri string) (*mcp.ReadResourceResult, error) {
	f.mu.RLock()
	sc, ok := f.servers[server]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServerNotFound, server)
	}
	return sc.ReadResource(ctx, uri)
}

// SupportsPrompts reports whether any registered server declares a prompts
// capability.
func (f *Fleet) SupportsPrompts() bool {
	order, servers := f.snapshot()
	for _, name := range order {
		if servers[name].SupportsPrompts() {
			return true
		}
	}
	return false
}

// AllPrompts fetches every prompt-capable server's prompt list keyed by
// server name. The failure policy matches AllTools.
func (f *Fleet) AllPrompts(ctx context.Context) (map[string][]mcp.Prompt, error) {
	order, servers := f.snapshot()
	if len(order) == 0 {
		return nil, ErrNoServers
	}

	byServer := make(map[string][]mcp.Prompt)
	var errs []error
	checked := 0
	for _, name := range order {
		sc := servers[name]
		if !sc.SupportsPrompts() {
			continue
		}
		checked++
		prompts, err := sc.ListPrompts(ctx)
		if err != nil {
			f.logger.Warn("fleet: list prompts failed", "server", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		byServer[name] = prompts
	}
	if checked > 0 && len(errs) == checked {
		return nil, errors.Join(errs...)
	}
	return byServer, nil
}

// GetPrompt retrieves one rendered prompt from the named server.
func (f *Fleet) GetPrompt(ctx context.Context, server, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	f.mu.RLock()
	sc, ok := f.servers[server]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServerNotFound, server)
	}
	return sc.GetPrompt(ctx, name, args)
}

// serverCaller binds a tool entry to its owning server connection.
type serverCaller struct {
	sc ServerClient
}

func (s serverCaller) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return s.sc.CallTool(ctx, name, args)
}
