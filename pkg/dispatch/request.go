package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/seiklabs/mcpgate/pkg/errors"
)

// Action tags accepted by the dispatcher.
const (
	ActionListTools     = "list_tools"
	ActionExecuteTool   = "execute_tool"
	ActionListResources = "list_resources"
	ActionGetResource   = "get_resource"
	ActionListPrompts   = "list_prompts"
	ActionGetPrompt     = "get_prompt"
)

// Request is one action call against the gateway. Exactly one action is
// active per call; fields that do not belong to the action are ignored.
type Request struct {
	Action string `json:"action"`

	// execute_tool
	ToolName      string `json:"tool_name,omitempty"`
	ToolArguments string `json:"tool_arguments,omitempty"`
	ServerName    string `json:"server_name,omitempty"`

	// get_resource
	ResourceURI string `json:"resource_uri,omitempty"`
	MaxBytes    int    `json:"max_bytes,omitempty"`
	AsText      bool   `json:"as_text,omitempty"`

	// get_prompt
	PromptName      string `json:"prompt_name,omitempty"`
	PromptArguments string `json:"prompt_arguments,omitempty"`
}

// Envelope is the uniform success response shape for every action.
type Envelope struct {
	Action  string `json:"action"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

// ToolDescriptor describes one executable tool in the flat namespace.
type ToolDescriptor struct {
	FullKey      string `json:"fullKey"`
	ID           string `json:"id"`
	Server       string `json:"server"`
	Description  string `json:"description"`
	InputSchema  any    `json:"inputSchema,omitempty"`
	OutputSchema any    `json:"outputSchema,omitempty"`
}

// ResourceDescriptor describes one resource, tagged with its owning server.
type ResourceDescriptor struct {
	Server      string `json:"server"`
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PromptArgument is one declared prompt parameter.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// PromptDescriptor describes one prompt, tagged with its owning server.
type PromptDescriptor struct {
	Server      string           `json:"server"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Arguments   []PromptArgument `json:"arguments"`
}

// noDescription is the placeholder for prompts that declare none.
const noDescription = "No description available"

// parseJSONArguments decodes a JSON-object argument payload. Empty or
// whitespace-only text yields an empty argument map.
func parseJSONArguments(field, raw string) (map[string]interface{}, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		return nil, errors.New(errors.CodeInvalidArguments,
			fmt.Sprintf("Invalid JSON in %s: %q", field, raw), err)
	}
	if args == nil {
		args = map[string]interface{}{}
	}
	return args, nil
}
