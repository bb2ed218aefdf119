package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sweetpotato0/toolbridge/catalog"
	errs "github.com/sweetpotato0/toolbridge/errors"
	"github.com/sweetpotato0/toolbridge/pkg/observe"
	"github.com/sweetpotato0/toolbridge/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrClientClosed is returned when the MCP client has been closed.
	ErrClientClosed = fmt.Errorf("mcp client: %w", errs.ErrClosed)
)

// Option configures optional MCP client behaviour.
type Option func(*clientConfig)

type clientConfig struct {
	logger     *slog.Logger
	observer   observe.Observer
	provider   string
	keepAlive  time.Duration
	httpClient *http.Client
}

// WithLogger routes server log notifications to logger. If nil, they are discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithObserver sets the sink for connection lifecycle events.
func WithObserver(o observe.Observer) Option {
	return func(cfg *clientConfig) {
		cfg.observer = o
	}
}

// WithProviderName labels emitted events and spans with the owning provider key.
func WithProviderName(name string) Option {
	return func(cfg *clientConfig) {
		cfg.provider = name
	}
}

// WithKeepAlive configures periodic ping requests to keep the session healthy.
func WithKeepAlive(interval time.Duration) Option {
	return func(cfg *clientConfig) {
		cfg.keepAlive = interval
	}
}

// WithHTTPClient supplies the base HTTP client for the streamable transport.
// Auth headers are layered on top of its transport.
func WithHTTPClient(client *http.Client) Option {
	return func(cfg *clientConfig) {
		cfg.httpClient = client
	}
}

// ServerInfo contains information about the connected MCP server.
type ServerInfo struct {
	Name    string `json:"name"`
	Title   string `json:"title,omitempty"`
	Version string `json:"version"`
}

// InitializeResult captures the server response during MCP initialization.
type InitializeResult struct {
	ProtocolVersion string
	Capabilities    map[string]any
	ServerInfo      ServerInfo
	Instructions    string
}

// Client is a live session with one remote tool provider. It is owned by
// whoever opened it; tool descriptors only call through it.
type Client struct {
	sdkClient *sdkmcp.Client
	session   *sdkmcp.ClientSession
	endpoint  string

	logger   *slog.Logger
	observer observe.Observer
	provider string

	toolsChanged chan struct{}
	done         chan struct{}
	doneOnce     sync.Once

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	initialize *sdkmcp.InitializeResult
}

// Open connects to the streamable HTTP endpoint at address and performs the
// MCP handshake. The address may omit its scheme, in which case https is
// assumed. Open never retries: a malformed address fails with
// KindInvalidAddress before any network I/O, and any handshake failure fails
// with KindConnectionFailed.
func Open(ctx context.Context, address string, headers map[string]string, clientName string, clientVersion int, opts ...Option) (*Client, error) {
	endpoint, err := NormalizeAddress(address)
	if err != nil {
		return nil, &ConnectionError{Kind: KindInvalidAddress, Address: address, Err: err}
	}

	cfg := newConfig(opts)
	base := cfg.httpClient
	if base == nil {
		base = &http.Client{}
	}
	httpClient := *base
	httpClient.Transport = &headerTransport{base: base.Transport, headers: cloneHeaders(headers)}

	transport := &sdkmcp.StreamableClientTransport{
		Endpoint:   endpoint,
		HTTPClient: &httpClient,
		MaxRetries: -1,
	}
	return connect(ctx, transport, endpoint, clientName, clientVersion, cfg)
}

// Connect performs the MCP handshake over an arbitrary SDK transport, such as
// an in-memory transport in tests or a command transport.
func Connect(ctx context.Context, transport sdkmcp.Transport, clientName string, clientVersion int, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, &ConnectionError{Kind: KindConnectionFailed, Err: errors.New("transport is nil")}
	}
	return connect(ctx, transport, "", clientName, clientVersion, newConfig(opts))
}

func newConfig(opts []Option) clientConfig {
	var cfg clientConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cfg.observer = observe.OrNop(cfg.observer)
	return cfg
}

func connect(ctx context.Context, transport sdkmcp.Transport, endpoint, clientName string, clientVersion int, cfg clientConfig) (_ *Client, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "mcp.connect", trace.WithAttributes(
		attribute.String("toolbridge.provider", cfg.provider),
		attribute.String("mcp.endpoint", endpoint),
	))
	defer func() { telemetry.End(span, err) }()

	if clientName == "" {
		clientName = "toolbridge"
	}

	client := &Client{
		endpoint:     endpoint,
		logger:       cfg.logger,
		observer:     cfg.observer,
		provider:     cfg.provider,
		toolsChanged: make(chan struct{}, 1),
		done:         make(chan struct{}),
	}

	clientOpts := &sdkmcp.ClientOptions{
		ToolListChangedHandler: func(context.Context, *sdkmcp.ToolListChangedRequest) {
			select {
			case client.toolsChanged <- struct{}{}:
			default:
			}
		},
		LoggingMessageHandler: func(ctx context.Context, req *sdkmcp.LoggingMessageRequest) {
			if client.logger != nil && req != nil && req.Params != nil {
				client.logger.DebugContext(ctx, "mcp server log", "provider", client.provider, "level", req.Params.Level, "data", req.Params.Data)
			}
		},
		KeepAlive: cfg.keepAlive,
	}

	client.sdkClient = sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    clientName,
		Version: strconv.Itoa(clientVersion),
	}, clientOpts)

	client.emit(ctx, observe.Event{Kind: observe.ConnectStarted, Attrs: map[string]any{"endpoint": endpoint}})
	start := time.Now()
	session, err := client.sdkClient.Connect(ctx, transport, nil)
	if err != nil {
		connErr := &ConnectionError{Kind: KindConnectionFailed, Address: endpoint, Err: err}
		client.emit(ctx, observe.Event{Kind: observe.ConnectFailed, Err: connErr, Duration: time.Since(start)})
		return nil, connErr
	}
	client.session = session
	client.initialize = session.InitializeResult()
	client.emit(ctx, observe.Event{Kind: observe.Connected, Duration: time.Since(start)})

	go client.monitorSession()

	return client, nil
}

// Endpoint returns the normalized address the client connected to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// ListToolsPage retrieves a single page of tools from the MCP server.
func (c *Client) ListToolsPage(ctx context.Context, cursor string) (_ *catalog.Page, err error) {
	if c.session == nil || c.closed.Load() {
		return nil, ErrClientClosed
	}
	ctx, span := telemetry.Tracer().Start(ctx, "mcp.tools/list", trace.WithAttributes(
		attribute.String("toolbridge.provider", c.provider),
		attribute.Bool("mcp.cursor", cursor != ""),
	))
	defer func() { telemetry.End(span, err) }()

	params := &sdkmcp.ListToolsParams{}
	if cursor != "" {
		params.Cursor = cursor
	}
	res, err := c.session.ListTools(ctx, params)
	if err != nil {
		return nil, err
	}
	return &catalog.Page{Tools: res.Tools, NextCursor: res.NextCursor}, nil
}

// CallTool invokes a remote MCP tool and returns the raw protocol result.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (_ *sdkmcp.CallToolResult, err error) {
	if c.session == nil || c.closed.Load() {
		return nil, ErrClientClosed
	}
	ctx, span := telemetry.Tracer().Start(ctx, "mcp.tools/call", trace.WithAttributes(
		attribute.String("toolbridge.provider", c.provider),
		attribute.String("toolbridge.tool", name),
	))
	defer func() { telemetry.End(span, err) }()

	if args == nil {
		args = map[string]any{}
	}
	return c.session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
}

// Close terminates the session and underlying transport. It is idempotent;
// every call returns the result of the first.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.session != nil {
			c.closeErr = c.session.Close()
		}
		c.markDone()
	})
	return c.closeErr
}

// Done returns a channel that is closed when the session ends, either because
// Close was called or because the server went away.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// ToolsChanged reports when the server indicates that the tool list has changed.
func (c *Client) ToolsChanged() <-chan struct{} {
	return c.toolsChanged
}

// monitorSession only records the end of the session. Releasing the client
// stays with its owner.
func (c *Client) monitorSession() {
	err := c.session.Wait()
	if !c.closed.Load() {
		if err != nil && errors.Is(err, sdkmcp.ErrConnectionClosed) {
			err = nil
		}
		c.emit(context.Background(), observe.Event{Kind: observe.SessionEnded, Err: err})
	}
	c.markDone()
}

func (c *Client) markDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Client) emit(ctx context.Context, ev observe.Event) {
	if ev.Provider == "" {
		ev.Provider = c.provider
	}
	c.observer.Observe(ctx, ev)
}

// InitializeResult returns the negotiated initialization metadata, if available.
func (c *Client) InitializeResult() *InitializeResult {
	if c.initialize == nil {
		return nil
	}
	return convertInitializeResult(c.initialize)
}

func convertInitializeResult(res *sdkmcp.InitializeResult) *InitializeResult {
	if res == nil {
		return nil
	}

	capabilities := map[string]any{}
	if res.Capabilities != nil {
		if data, err := json.Marshal(res.Capabilities); err == nil {
			_ = json.Unmarshal(data, &capabilities)
		}
	}

	server := ServerInfo{}
	if res.ServerInfo != nil {
		server = ServerInfo{
			Name:    res.ServerInfo.Name,
			Title:   res.ServerInfo.Title,
			Version: res.ServerInfo.Version,
		}
	}

	return &InitializeResult{
		ProtocolVersion: res.ProtocolVersion,
		Capabilities:    capabilities,
		ServerInfo:      server,
		Instructions:    res.Instructions,
	}
}
