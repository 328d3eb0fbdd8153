package dispatch

import (
	"sort"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/seiklabs/mcpgate/pkg/mcp"
)

// ResolveTool resolves an identifier against the flat namespace: exact key
// equality first, then the entry's own tool name. The id scan walks keys in
// sorted order so resolution stays deterministic when two tools share a name.
func ResolveTool(entries map[string]mcp.ToolEntry, identifier string) (mcp.ToolEntry, bool) {
	if entry, ok := entries[identifier]; ok {
		return entry, true
	}

	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if entries[key].Name == identifier {
			return entries[key], true
		}
	}
	return mcp.ToolEntry{}, false
}

// ExecutableKeys returns the sorted keys of all executable entries; used to
// enumerate the known namespace in not-found errors.
func ExecutableKeys(entries map[string]mcp.ToolEntry) []string {
	keys := make([]string, 0, len(entries))
	for key, entry := range entries {
		if entry.Executable() {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// FindResource scans servers in the given order and returns the first one
// holding a resource with the requested URI. Resource URIs are unique only
// within a server, so the scan stops at the first match.
func FindResource(order []string, byServer map[string][]mcpgo.Resource, uri string) (string, mcpgo.Resource, bool) {
	for _, server := range order {
		for _, res := range byServer[server] {
			if res.URI == uri {
				return server, res, true
			}
		}
	}
	return "", mcpgo.Resource{}, false
}

// FindPrompt scans servers in the given order and returns the first one
// declaring a prompt with the requested name.
func FindPrompt(order []string, byServer map[string][]mcpgo.Prompt, name string) (string, mcpgo.Prompt, bool) {
	for _, server := range order {
		for _, prompt := range byServer[server] {
			if prompt.Name == name {
				return server, prompt, true
			}
		}
	}
	return "", mcpgo.Prompt{}, false
}
