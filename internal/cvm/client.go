// Package cvm is the adapter to the remote tool-calling agent. Every call is
// connect/call/disconnect scoped: no connection pooling is assumed on the
// server side, so a fresh session is established per operation.
package cvm

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/otherstuff/craigd/config"
)

// Tool is one advertised remote operation.
type Tool struct {
	Name string
}

// Client is a live session against the tool server.
type Client interface {
	ListTools(ctx context.Context) ([]Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	Close() error
}

// Runner issues single-shot operations, opening and closing a session around
// each one. The stage watchers depend on this interface so tests can stub the
// remote agent entirely.
type Runner interface {
	ListTools(ctx context.Context) ([]Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
}

// mcpClient wraps an MCP session.
type mcpClient struct {
	c *client.Client
}

// Connect establishes a session with the configured tool server.
func Connect(ctx context.Context, cfg config.ToolsConfig) (Client, error) {
	c, err := client.NewStreamableHttpClient(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("tool client: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("tool client start: %w", err)
	}
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "cd-client", Version: "0.1.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("tool client initialize: %w", err)
	}
	return &mcpClient{c: c}, nil
}

func (m *mcpClient) ListTools(ctx context.Context) ([]Tool, error) {
	res, err := m.c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	tools := make([]Tool, 0, len(res.Tools))
	for _, t := range res.Tools {
		tools = append(tools, Tool{Name: t.Name})
	}
	return tools, nil
}

func (m *mcpClient) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := m.c.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", name, err)
	}
	var parts []string
	for _, content := range res.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, tc.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if res.IsError {
		if text == "" {
			text = "tool error"
		}
		return "", fmt.Errorf("call %s: %s", name, text)
	}
	return text, nil
}

func (m *mcpClient) Close() error { return m.c.Close() }

// SessionRunner dials the configured server once per operation.
type SessionRunner struct {
	Cfg config.ToolsConfig
}

func (r SessionRunner) ListTools(ctx context.Context) ([]Tool, error) {
	if r.Cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Cfg.Timeout)
		defer cancel()
	}
	c, err := Connect(ctx, r.Cfg)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.ListTools(ctx)
}

func (r SessionRunner) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if r.Cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Cfg.Timeout)
		defer cancel()
	}
	c, err := Connect(ctx, r.Cfg)
	if err != nil {
		return "", err
	}
	defer c.Close()
	return c.CallTool(ctx, name, args)
}
