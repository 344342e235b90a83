package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ServerConfig describes one configured MCP server, launched as a child
// process communicating over stdio.
type ServerConfig struct {
	Command string
	Args    []string
	Env     []string
}

// Manager aggregates tool catalogs from multiple MCP servers and
// dispatches invocations by namespaced name (<server>__<tool>).
type Manager struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewManager creates an empty MCP Client Manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:  logger.With("component", "mcp_manager"),
		clients: make(map[string]*Client),
	}
}

// Connect launches the child process for name, performs the MCP
// handshake, and caches its tool catalog. A failure here is returned
// to the caller (typically the composition root, which logs and
// continues with the remaining servers).
func (m *Manager) Connect(ctx context.Context, name string, cfg ServerConfig) error {
	transport := NewStdioTransport(StdioConfig{
		Command: cfg.Command,
		Args:    cfg.Args,
		Env:     cfg.Env,
		Logger:  m.logger.With("mcp_server", name),
	})

	client := NewClient(name, transport, m.logger.With("mcp_server", name))
	if err := client.Initialize(ctx); err != nil {
		transport.Close()
		return fmt.Errorf("initialize MCP server %q: %w", name, err)
	}
	if _, err := client.ListTools(ctx); err != nil {
		transport.Close()
		return fmt.Errorf("list tools from MCP server %q: %w", name, err)
	}

	m.mu.Lock()
	m.clients[name] = client
	m.mu.Unlock()
	return nil
}

// namespacedTool describes one tool with its manager-visible name.
type namespacedTool struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// GetAllTools returns the union of every connected server's tools,
// namespaced <server>__<tool>.
func (m *Manager) GetAllTools(ctx context.Context) ([]namespacedTool, error) {
	m.mu.RLock()
	clients := make(map[string]*Client, len(m.clients))
	for name, c := range m.clients {
		clients[name] = c
	}
	m.mu.RUnlock()

	var out []namespacedTool
	for name, c := range clients {
		defs, err := c.ListTools(ctx)
		if err != nil {
			m.logger.Warn("failed to list tools", "server", name, "error", err)
			continue
		}
		for _, d := range defs {
			out = append(out, namespacedTool{
				Name:        name + "__" + d.Name,
				Description: d.Description,
				InputSchema: d.InputSchema,
			})
		}
	}
	return out, nil
}

// ErrUnknownTool is returned by InvokeTool when the namespace prefix
// does not match any connected server, or the name carries no "__".
var ErrUnknownTool = fmt.Errorf("unknown tool")

// InvokeTool splits namespacedName on the first "__" into server/tool,
// calls the tool on the matching connection, and returns its flattened
// text content.
func (m *Manager) InvokeTool(ctx context.Context, namespacedName string, args map[string]any) (string, error) {
	server, tool, ok := strings.Cut(namespacedName, "__")
	if !ok {
		return "", fmt.Errorf("%w: %q has no server__tool namespace", ErrUnknownTool, namespacedName)
	}

	m.mu.RLock()
	client, ok := m.clients[server]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: server %q not connected", ErrUnknownTool, server)
	}

	return client.CallTool(ctx, tool, args)
}

// DisconnectAll closes every transport, logging per-server failures
// without aborting the rest.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, c := range m.clients {
		if err := c.Close(); err != nil {
			m.logger.Warn("failed to close MCP client", "server", name, "error", err)
		}
	}
	m.clients = make(map[string]*Client)
}
