// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic conventions for gateway telemetry.
// These follow OpenTelemetry naming conventions where applicable.
const (
	// Dispatch attributes
	AttrAction    = "mcpgate.action"
	AttrActionOK  = "mcpgate.action.success"
	AttrErrorCode = "mcpgate.error.code"

	// Tool attributes
	AttrToolKey    = "mcpgate.tool.key"
	AttrToolID     = "mcpgate.tool.id"
	AttrToolServer = "mcpgate.tool.server"
	AttrToolCount  = "mcpgate.tool.count"

	// Resource attributes
	AttrResourceURI       = "mcpgate.resource.uri"
	AttrResourceServer    = "mcpgate.resource.server"
	AttrResourceSize      = "mcpgate.resource.size"
	AttrResourceTruncated = "mcpgate.resource.truncated"
	AttrResourceBinary    = "mcpgate.resource.binary"

	// Prompt attributes
	AttrPromptName   = "mcpgate.prompt.name"
	AttrPromptServer = "mcpgate.prompt.server"
)

// Action returns the dispatch action attribute.
func Action(action string) attribute.KeyValue {
	return attribute.String(AttrAction, action)
}

// ErrorCode returns the error code attribute.
func ErrorCode(code string) attribute.KeyValue {
	return attribute.String(AttrErrorCode, code)
}

// ToolKey returns the flat-namespace tool key attribute.
func ToolKey(key string) attribute.KeyValue {
	return attribute.String(AttrToolKey, key)
}

// ResourceURI returns the resource URI attribute.
func ResourceURI(uri string) attribute.KeyValue {
	return attribute.String(AttrResourceURI, uri)
}

// PromptName returns the prompt name attribute.
func PromptName(name string) attribute.KeyValue {
	return attribute.String(AttrPromptName, name)
}
