package dispatch

import (
	"encoding/json"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// DefaultMaxContentBytes caps resource content returned to the caller
// unless the request overrides it.
const DefaultMaxContentBytes = 100_000

// Content is the normalized payload of a resource read.
type Content struct {
	Text     string
	IsBinary bool
}

// ExtractContent normalizes a resource read result into text or binary
// content. Shapes are checked in order:
//
//  1. a slice of content parts: text parts are concatenated, but one
//     binary part makes the whole result binary, discarding any text
//  2. a raw string
//  3. an object with a "text" field
//  4. an object with a "data" field, pretty-printed as JSON when it is
//     not already a string
//
// Anything else yields empty content.
func ExtractContent(payload any) Content {
	switch value := payload.(type) {
	case []mcpgo.ResourceContents:
		return extractParts(value)
	case string:
		return Content{Text: value}
	case map[string]interface{}:
		if text, ok := value["text"].(string); ok {
			return Content{Text: text}
		}
		if data, ok := value["data"]; ok {
			if s, ok := data.(string); ok {
				return Content{Text: s}
			}
			pretty, err := json.MarshalIndent(data, "", "  ")
			if err != nil {
				return Content{}
			}
			return Content{Text: string(pretty)}
		}
		return Content{}
	default:
		return Content{}
	}
}

func extractParts(parts []mcpgo.ResourceContents) Content {
	var texts []string
	for _, part := range parts {
		switch p := part.(type) {
		case mcpgo.TextResourceContents:
			texts = append(texts, p.Text)
		case *mcpgo.TextResourceContents:
			texts = append(texts, p.Text)
		case mcpgo.BlobResourceContents:
			return Content{Text: p.Blob, IsBinary: true}
		case *mcpgo.BlobResourceContents:
			return Content{Text: p.Blob, IsBinary: true}
		}
	}
	return Content{Text: strings.Join(texts, "\n")}
}

// Truncate applies the size cap to textual content. Binary content is
// never truncated. Returns the capped content and whether it was cut.
func Truncate(c Content, maxBytes int) (Content, bool) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxContentBytes
	}
	if c.IsBinary || len(c.Text) <= maxBytes {
		return c, false
	}
	c.Text = c.Text[:maxBytes]
	return c, true
}
