// Package mcp wraps mcp-go clients for the gateway: a per-server Client
// with timeout/retry behavior and a Fleet that aggregates named servers
// into one flat tool namespace.
package mcp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultRetries  = 2
	defaultBackoff  = 200 * time.Millisecond
	defaultCacheTTL = 30 * time.Second

	clientName    = "mcpgate"
	clientVersion = "0.1.0"
)

// ClientOption customizes the MCP client wrapper behavior.
type ClientOption func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetry configures retry count and backoff.
func WithRetry(retries int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if retries >= 0 {
			c.maxRetries = retries
		}
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

// WithToolCacheTTL sets the tool discovery cache TTL. Use 0 to disable caching.
func WithToolCacheTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		if ttl >= 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithCapabilities sets the server capabilities for clients that were not
// initialized by this package (the constructors capture them automatically).
func WithCapabilities(caps mcp.ServerCapabilities) ClientOption {
	return func(c *Client) {
		c.caps = &caps
	}
}

// Client wraps an mcp-go client for one remote capability server.
// All queries go through a shared timeout/retry path; tool discovery
// results are cached for the configured TTL.
type Client struct {
	mcpClient  client.MCPClient
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
	cacheTTL   time.Duration
	caps       *mcp.ServerCapabilities

	mu          sync.Mutex
	toolsCache  []mcp.Tool
	cacheExpiry time.Time
}

// NewClient creates a new Client with the given MCP client implementation.
func NewClient(c client.MCPClient, opts ...ClientOption) *Client {
	wrapped := &Client{
		mcpClient:  c,
		timeout:    defaultTimeout,
		maxRetries: defaultRetries,
		backoff:    defaultBackoff,
		cacheTTL:   defaultCacheTTL,
	}
	for _, opt := range opts {
		opt(wrapped)
	}
	return wrapped
}

// NewClientWithStdio creates a new MCP client that connects via Stdio.
func NewClientWithStdio(command string, args []string, env map[string]string, opts ...ClientOption) (*Client, error) {
	return NewClientWithStdioProtocol(command, args, env, mcp.LATEST_PROTOCOL_VERSION, opts...)
}

// NewClientWithStdioProtocol creates a new MCP client that connects via Stdio
// using a specified protocol version.
func NewClientWithStdioProtocol(command string, args []string, env map[string]string, protocolVersion string, opts ...ClientOption) (*Client, error) {
	stdioClient, err := client.NewStdioMCPClient(command, envList(env), args...)
	if err != nil {
		return nil, err
	}
	return initializeClient(stdioClient, protocolVersion, opts...)
}

// NewClientWithStreamableHTTP creates a new MCP client that connects via
// Streamable HTTP.
func NewClientWithStreamableHTTP(url string, opts ...ClientOption) (*Client, error) {
	return NewClientWithStreamableHTTPProtocol(url, mcp.LATEST_PROTOCOL_VERSION, opts...)
}

// NewClientWithStreamableHTTPProtocol creates a new MCP client that connects
// via Streamable HTTP using a specified protocol version.
func NewClientWithStreamableHTTPProtocol(url, protocolVersion string, opts ...ClientOption) (*Client, error) {
	httpClient, err := client.NewStreamableHttpClient(url)
	if err != nil {
		return nil, err
	}
	return initializeClient(httpClient, protocolVersion, opts...)
}

func initializeClient(c *client.Client, protocolVersion string, opts ...ClientOption) (*Client, error) {
	if protocolVersion == "" {
		protocolVersion = mcp.LATEST_PROTOCOL_VERSION
	}

	if err := c.Start(context.Background()); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = protocolVersion
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}

	initResult, err := c.Initialize(ctx, initRequest)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	wrapped := NewClient(c, opts...)
	if wrapped.caps == nil {
		caps := initResult.Capabilities
		wrapped.caps = &caps
	}
	return wrapped, nil
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// SupportsPrompts reports whether the remote server declared a prompts
// capability at initialization. Unknown capabilities count as supported so
// that injected clients are not silently cut off.
func (c *Client) SupportsPrompts() bool {
	return c.caps == nil || c.caps.Prompts != nil
}

// SupportsResources reports whether the remote server declared a resources
// capability at initialization.
func (c *Client) SupportsResources() bool {
	return c.caps == nil || c.caps.Resources != nil
}

// ListTools retrieves the list of tools available on the server.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	if cached := c.cachedTools(); cached != nil {
		return cached, nil
	}
	resp, err := doWithRetry(c, ctx, func(ctx context.Context) (*mcp.ListToolsResult, error) {
		return c.mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	})
	if err != nil {
		return nil, err
	}
	c.storeTools(resp.Tools)
	return resp.Tools, nil
}

// CallTool executes a tool on the server.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	return doWithRetry(c, ctx, func(ctx context.Context) (*mcp.CallToolResult, error) {
		return c.mcpClient.CallTool(ctx, req)
	})
}

// ListResources retrieves the resources advertised by the server.
func (c *Client) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	resp, err := doWithRetry(c, ctx, func(ctx context.Context) (*mcp.ListResourcesResult, error) {
		return c.mcpClient.ListResources(ctx, mcp.ListResourcesRequest{})
	})
	if err != nil {
		return nil, err
	}
	return resp.Resources, nil
}

// ReadResource reads one resource by URI.
func (c *Client) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri

	return doWithRetry(c, ctx, func(ctx context.Context) (*mcp.ReadResourceResult, error) {
		return c.mcpClient.ReadResource(ctx, req)
	})
}

// ListPrompts retrieves the prompts declared by the server. A remote
// reporting its prompt configuration as missing is mapped to
// ErrPromptConfigMissing, same as GetPrompt.
func (c *Client) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	resp, err := doWithRetry(c, ctx, func(ctx context.Context) (*mcp.ListPromptsResult, error) {
		return c.mcpClient.ListPrompts(ctx, mcp.ListPromptsRequest{})
	})
	if err != nil {
		if isPromptConfigMissing(err) {
			return nil, newPromptListConfigMissing(err)
		}
		return nil, err
	}
	return resp.Prompts, nil
}

// GetPrompt retrieves one rendered prompt by name. Remote formatted-prompt
// retrieval is unreliable for some server configurations; when the server
// reports its prompt configuration as missing, the error wraps
// ErrPromptConfigMissing so callers can fall back to the declared schema.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	req := mcp.GetPromptRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := doWithRetry(c, ctx, func(ctx context.Context) (*mcp.GetPromptResult, error) {
		return c.mcpClient.GetPrompt(ctx, req)
	})
	if err != nil {
		if isPromptConfigMissing(err) {
			return nil, newPromptConfigMissing(name, err)
		}
		return nil, err
	}
	return resp, nil
}

// isPromptConfigMissing is the single place where the remote's message text
// is inspected, so the rest of the gateway can discriminate with errors.Is.
func isPromptConfigMissing(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "configuration not found") ||
		strings.Contains(msg, "config not found")
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.mcpClient.Close()
}

func (c *Client) cachedTools() []mcp.Tool {
	if c.cacheTTL == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.toolsCache) == 0 || time.Now().After(c.cacheExpiry) {
		return nil
	}
	out := make([]mcp.Tool, len(c.toolsCache))
	copy(out, c.toolsCache)
	return out
}

func (c *Client) storeTools(tools []mcp.Tool) {
	if c.cacheTTL == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.toolsCache = make([]mcp.Tool, len(tools))
	copy(c.toolsCache, tools)
	c.cacheExpiry = time.Now().Add(c.cacheTTL)
}

// doWithRetry runs op with the client timeout, retrying transient failures
// with exponential backoff. Context cancellation is never retried.
func doWithRetry[T any](c *Client, ctx context.Context, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	attempts := c.maxRetries + 1
	for i := 0; i < attempts; i++ {
		reqCtx, cancel := c.withTimeout(ctx)
		res, err := op(reqCtx)
		cancel()
		if err == nil {
			return res, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		if err := c.sleepBackoff(ctx, i); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	wait := c.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
