// SPDX-License-Identifier: Apache-2.0

// Package dispatch routes uniform {action, parameters} requests onto a
// fleet of remote MCP capability servers and normalizes every outcome
// into one envelope shape.
//
// The dispatcher performs no timeout or cancellation handling of its own;
// that is delegated to the capability client and its transport. Callers
// wanting request-level cancellation wrap Dispatch with their own context
// deadline. Within one request, remote calls run sequentially and the
// response reflects whatever remote state those calls observed; no
// consistency is guaranteed between two calls of the same branch.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	stderrors "errors"

	"github.com/seiklabs/mcpgate/pkg/errors"
	"github.com/seiklabs/mcpgate/pkg/mcp"
	"github.com/seiklabs/mcpgate/pkg/telemetry"
)

// CapabilityClient is the remote-server surface the dispatcher queries.
// *mcp.Fleet implements it; tests use stubs.
type CapabilityClient interface {
	AllTools(ctx context.Context) (map[string]mcp.ToolEntry, error)
	AllResources(ctx context.Context) (map[string][]mcpgo.Resource, error)
	Servers() []string
	ReadResource(ctx context.Context, server, uri string) (*mcpgo.ReadResourceResult, error)
	SupportsPrompts() bool
	AllPrompts(ctx context.Context) (map[string][]mcpgo.Prompt, error)
	GetPrompt(ctx context.Context, server, name string, args map[string]string) (*mcpgo.GetPromptResult, error)
}

// Option customizes dispatcher behavior.
type Option func(*Dispatcher)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMetrics attaches dispatch metrics.
func WithMetrics(m *telemetry.DispatchMetrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// Dispatcher routes action requests to the capability client and wraps
// results in the uniform envelope.
type Dispatcher struct {
	client  CapabilityClient
	logger  *slog.Logger
	metrics *telemetry.DispatchMetrics
	tracer  trace.Tracer
}

// New creates a dispatcher over the given capability client.
func New(client CapabilityClient, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		client: client,
		logger: slog.Default(),
		tracer: otel.Tracer("mcpgate/dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch executes one action request. It returns a full envelope or a
// single *errors.GateError; raw transport errors never escape.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Envelope, error) {
	start := time.Now()
	ctx, span := d.tracer.Start(ctx, "dispatch",
		trace.WithAttributes(telemetry.Action(req.Action)))
	defer span.End()

	env, err := d.route(ctx, req)

	duration := time.Since(start)
	d.metrics.RecordDispatch(ctx, req.Action, duration, err)
	if err != nil {
		ge := errors.AsGateError(err)
		span.SetAttributes(telemetry.ErrorCode(string(ge.Code)))
		d.logger.ErrorContext(ctx, "dispatch failed",
			"action", req.Action, "code", ge.Code, "error", ge.Error(),
			"duration_ms", duration.Milliseconds())
		return nil, ge
	}
	d.logger.InfoContext(ctx, "dispatch ok",
		"action", req.Action, "duration_ms", duration.Milliseconds())
	return env, nil
}

func (d *Dispatcher) route(ctx context.Context, req Request) (*Envelope, error) {
	switch req.Action {
	case ActionListTools:
		return d.listTools(ctx)
	case ActionExecuteTool:
		return d.executeTool(ctx, req)
	case ActionListResources:
		return d.listResources(ctx)
	case ActionGetResource:
		return d.getResource(ctx, req)
	case ActionListPrompts:
		return d.listPrompts(ctx)
	case ActionGetPrompt:
		return d.getPrompt(ctx, req)
	default:
		return nil, errors.Newf(errors.CodeUnknownAction, "Unknown MCP action: %s", req.Action)
	}
}

// listTools returns descriptors for every executable entry of the flat
// namespace. Fetch failures degrade to an empty listing: the absence of
// configured servers is not an error condition for list actions.
func (d *Dispatcher) listTools(ctx context.Context) (*Envelope, error) {
	entries, err := d.client.AllTools(ctx)
	if err != nil {
		return &Envelope{
			Action:  ActionListTools,
			Data:    []ToolDescriptor{},
			Message: degradedMessage("tools", err),
		}, nil
	}

	descriptors := make([]ToolDescriptor, 0, len(entries))
	for _, key := range sortedKeys(entries) {
		entry := entries[key]
		if !entry.Executable() {
			continue
		}
		server := entry.Server
		if server == "" {
			server, _ = mcp.SplitKey(key)
		}
		desc := ToolDescriptor{
			FullKey:     key,
			ID:          entry.Name,
			Server:      server,
			Description: entry.Tool.Description,
			InputSchema: entry.InputSchema(),
		}
		if out := entry.OutputSchema(); len(out) > 0 {
			desc.OutputSchema = out
		}
		descriptors = append(descriptors, desc)
	}

	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int(telemetry.AttrToolCount, len(descriptors)))

	return &Envelope{
		Action:  ActionListTools,
		Data:    descriptors,
		Message: fmt.Sprintf("Found %d MCP tools", len(descriptors)),
	}, nil
}

func (d *Dispatcher) executeTool(ctx context.Context, req Request) (*Envelope, error) {
	if strings.TrimSpace(req.ToolName) == "" {
		return nil, errors.New(errors.CodeMissingParameter, "execute_tool requires tool_name", nil)
	}

	entries, err := d.client.AllTools(ctx)
	if err != nil {
		return nil, errors.New(errors.CodeUpstream,
			fmt.Sprintf("Failed to fetch tools while executing %q", req.ToolName), err)
	}

	entry, ok := mcp.ToolEntry{}, false
	if req.ServerName != "" {
		entry, ok = entries[mcp.FlatKey(req.ServerName, req.ToolName)]
	}
	if !ok {
		entry, ok = ResolveTool(entries, req.ToolName)
	}
	if !ok {
		known := ExecutableKeys(entries)
		return nil, errors.Newf(errors.CodeToolNotFound,
			"Tool %q not found. Known executable tools: %s",
			req.ToolName, strings.Join(known, ", ")).
			WithContext("tool", req.ToolName)
	}
	if !entry.Executable() {
		return nil, errors.Newf(errors.CodeToolNotExecutable,
			"Tool %q exists but is not executable", req.ToolName)
	}

	trace.SpanFromContext(ctx).SetAttributes(
		telemetry.ToolKey(entry.Key),
		attribute.String(telemetry.AttrToolID, entry.Name),
		attribute.String(telemetry.AttrToolServer, entry.Server),
	)

	args, err := parseJSONArguments("tool_arguments", req.ToolArguments)
	if err != nil {
		return nil, err
	}

	display := entry.Name
	if display == "" {
		display = entry.Key
	}

	result, err := entry.Call(ctx, args)
	if err != nil {
		return nil, errors.New(errors.CodeToolExecutionFailed,
			fmt.Sprintf("Failed to execute tool %q", display), err).
			WithContext("tool", entry.Key).
			WithContext("server", entry.Server)
	}

	return &Envelope{
		Action: ActionExecuteTool,
		Data: map[string]any{
			"tool":   display,
			"server": entry.Server,
			"result": result,
		},
		Message: fmt.Sprintf("Executed tool %q", display),
	}, nil
}

// listResources flattens per-server resource lists in fleet scan order,
// with the same degradation policy as listTools.
func (d *Dispatcher) listResources(ctx context.Context) (*Envelope, error) {
	byServer, err := d.client.AllResources(ctx)
	if err != nil {
		return &Envelope{
			Action:  ActionListResources,
			Data:    []ResourceDescriptor{},
			Message: degradedMessage("resources", err),
		}, nil
	}

	descriptors := make([]ResourceDescriptor, 0)
	for _, server := range d.client.Servers() {
		for _, res := range byServer[server] {
			descriptors = append(descriptors, ResourceDescriptor{
				Server:      server,
				URI:         res.URI,
				Name:        res.Name,
				Description: res.Description,
				MimeType:    res.MIMEType,
			})
		}
	}

	return &Envelope{
		Action:  ActionListResources,
		Data:    descriptors,
		Message: fmt.Sprintf("Found %d MCP resources", len(descriptors)),
	}, nil
}

func (d *Dispatcher) getResource(ctx context.Context, req Request) (*Envelope, error) {
	if strings.TrimSpace(req.ResourceURI) == "" {
		return nil, errors.New(errors.CodeMissingParameter, "get_resource requires resource_uri", nil)
	}

	byServer, err := d.client.AllResources(ctx)
	if err != nil {
		return nil, errors.New(errors.CodeUpstream,
			fmt.Sprintf("Failed to list resources while fetching %q", req.ResourceURI), err)
	}

	server, res, ok := FindResource(d.client.Servers(), byServer, req.ResourceURI)
	if !ok {
		return nil, errors.Newf(errors.CodeResourceNotFound,
			"Resource %q not found on any server", req.ResourceURI).
			WithContext("uri", req.ResourceURI)
	}

	result, err := d.client.ReadResource(ctx, server, req.ResourceURI)
	if err != nil {
		return nil, errors.New(errors.CodeUpstream,
			fmt.Sprintf("Failed to read resource %q from server %q", req.ResourceURI, server), err)
	}

	var content Content
	if result != nil {
		content = ExtractContent(result.Contents)
	}
	if req.AsText {
		content.IsBinary = false
	}
	content, truncated := Truncate(content, req.MaxBytes)
	if truncated {
		d.metrics.RecordTruncation(ctx, req.ResourceURI)
	}

	trace.SpanFromContext(ctx).SetAttributes(
		telemetry.ResourceURI(req.ResourceURI),
		attribute.String(telemetry.AttrResourceServer, server),
		attribute.Int(telemetry.AttrResourceSize, len(content.Text)),
		attribute.Bool(telemetry.AttrResourceTruncated, truncated),
		attribute.Bool(telemetry.AttrResourceBinary, content.IsBinary),
	)

	message := fmt.Sprintf("Read resource %q from server %q", req.ResourceURI, server)
	if truncated {
		message += " (content truncated)"
	}

	return &Envelope{
		Action: ActionGetResource,
		Data: map[string]any{
			"server":      server,
			"uri":         res.URI,
			"name":        res.Name,
			"description": res.Description,
			"mimeType":    res.MIMEType,
			"content":     content.Text,
			"isBinary":    content.IsBinary,
			"truncated":   truncated,
			"size":        len(content.Text),
		},
		Message: message,
	}, nil
}

// listPrompts flattens per-server prompt lists. A missing prompts
// capability degrades to an empty listing, never an error.
func (d *Dispatcher) listPrompts(ctx context.Context) (*Envelope, error) {
	if !d.client.SupportsPrompts() {
		return &Envelope{
			Action:  ActionListPrompts,
			Data:    []PromptDescriptor{},
			Message: "Prompt support is not available on any connected server",
		}, nil
	}

	byServer, err := d.client.AllPrompts(ctx)
	if err != nil {
		return &Envelope{
			Action:  ActionListPrompts,
			Data:    []PromptDescriptor{},
			Message: degradedMessage("prompts", err),
		}, nil
	}

	descriptors := make([]PromptDescriptor, 0)
	for _, server := range d.client.Servers() {
		for _, prompt := range byServer[server] {
			descriptors = append(descriptors, promptDescriptor(server, prompt))
		}
	}

	return &Envelope{
		Action:  ActionListPrompts,
		Data:    descriptors,
		Message: fmt.Sprintf("Found %d MCP prompts", len(descriptors)),
	}, nil
}

// getPrompt returns the prompt's declared description and argument schema
// plus the caller's arguments. Rendered prompts are deliberately not
// fetched: formatted-prompt retrieval is unreliable for some server
// configurations, so execution is left to the caller.
func (d *Dispatcher) getPrompt(ctx context.Context, req Request) (*Envelope, error) {
	if strings.TrimSpace(req.PromptName) == "" {
		return nil, errors.New(errors.CodeMissingParameter, "get_prompt requires prompt_name", nil)
	}
	if !d.client.SupportsPrompts() {
		return nil, errors.New(errors.CodePromptsUnsupported,
			"Prompt support is not available on any connected server", nil)
	}

	args, err := parseJSONArguments("prompt_arguments", req.PromptArguments)
	if err != nil {
		return nil, err
	}

	byServer, err := d.client.AllPrompts(ctx)
	if err != nil {
		// One deliberate fallback: when a server reports its prompt
		// configuration as missing, retry the listing call once. The
		// retry's own failure is discarded in favor of the original.
		if stderrors.Is(err, mcp.ErrPromptConfigMissing) {
			if retried, retryErr := d.client.AllPrompts(ctx); retryErr == nil {
				byServer = retried
				err = nil
			}
		}
		if err != nil {
			return nil, errors.New(errors.CodeUpstream,
				fmt.Sprintf("Failed to fetch prompt %q", req.PromptName), err)
		}
	}

	server, prompt, ok := FindPrompt(d.client.Servers(), byServer, req.PromptName)
	if !ok {
		return nil, errors.Newf(errors.CodePromptNotFound,
			"Prompt %q not found on any server", req.PromptName).
			WithContext("prompt", req.PromptName)
	}

	trace.SpanFromContext(ctx).SetAttributes(
		telemetry.PromptName(prompt.Name),
		attribute.String(telemetry.AttrPromptServer, server),
	)

	desc := promptDescriptor(server, prompt)
	return &Envelope{
		Action: ActionGetPrompt,
		Data: map[string]any{
			"server":            server,
			"name":              prompt.Name,
			"description":       desc.Description,
			"arguments":         desc.Arguments,
			"providedArguments": args,
			"note":              "Rendered prompts are not fetched; construct the prompt from its description and arguments.",
		},
		Message: fmt.Sprintf("Described prompt %q from server %q", req.PromptName, server),
	}, nil
}

func promptDescriptor(server string, prompt mcpgo.Prompt) PromptDescriptor {
	desc := PromptDescriptor{
		Server:      server,
		Name:        prompt.Name,
		Description: prompt.Description,
		Arguments:   make([]PromptArgument, 0, len(prompt.Arguments)),
	}
	if desc.Description == "" {
		desc.Description = noDescription
	}
	for _, arg := range prompt.Arguments {
		desc.Arguments = append(desc.Arguments, PromptArgument{
			Name:        arg.Name,
			Description: arg.Description,
			Required:    arg.Required,
		})
	}
	return desc
}

// degradedMessage explains an empty listing, distinguishing configuration
// absence from upstream failure.
func degradedMessage(what string, err error) string {
	if stderrors.Is(err, mcp.ErrNoServers) {
		return fmt.Sprintf("No MCP servers configured; no %s available", what)
	}
	return fmt.Sprintf("Failed to fetch %s from MCP servers: %v", what, err)
}

func sortedKeys(entries map[string]mcp.ToolEntry) []string {
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
