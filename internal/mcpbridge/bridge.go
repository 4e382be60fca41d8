// Package mcpbridge exposes a read-only Model Context Protocol tool surface
// over stdio, letting an external agent inspect tab state without going
// through chat. It never touches send_text/send_key, so it cannot violate
// the dispatcher's at-most-one-command-per-user invariant.
package mcpbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// TabInfo is the read-only projection of a registry tab returned to agents.
type TabInfo struct {
	TabID       string `json:"tab_id"`
	DisplayName string `json:"display_name"`
	SessionName string `json:"session_name"`
}

// TabLister and Capturer are narrow function adapters so this package
// doesn't import internal/registry or internal/terminal directly, keeping
// the MCP surface decoupled from the dispatcher's concrete stores.
type TabLister func(userID int64) []TabInfo
type Capturer func(tabID string) (string, error)

// Bridge wraps an mcp-go server exposing list_tabs and capture_tab.
type Bridge struct {
	srv      *server.MCPServer
	listTabs TabLister
	capture  Capturer
}

func New(listTabs TabLister, capture Capturer) *Bridge {
	b := &Bridge{
		srv:      server.NewMCPServer("tgbotctl", "1.0.0"),
		listTabs: listTabs,
		capture:  capture,
	}
	b.registerTools()
	return b
}

func (b *Bridge) registerTools() {
	listTool := mcp.NewTool("list_tabs",
		mcp.WithDescription("List a user's terminal tabs (read-only)."),
		mcp.WithNumber("user_id", mcp.Required(), mcp.Description("owning chat user id")),
	)
	b.srv.AddTool(listTool, b.handleListTabs)

	captureTool := mcp.NewTool("capture_tab",
		mcp.WithDescription("Capture the current pane text of a tab (read-only)."),
		mcp.WithString("tab_id", mcp.Required(), mcp.Description("tab to capture")),
	)
	b.srv.AddTool(captureTool, b.handleCaptureTab)
}

func (b *Bridge) handleListTabs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userIDFloat, ok := req.Params.Arguments["user_id"].(float64)
	if !ok {
		return mcp.NewToolResultError("user_id must be a number"), nil
	}
	tabs := b.listTabs(int64(userIDFloat))
	data, err := json.Marshal(tabs)
	if err != nil {
		return nil, fmt.Errorf("mcpbridge: marshal tabs: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (b *Bridge) handleCaptureTab(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tabID, ok := req.Params.Arguments["tab_id"].(string)
	if !ok || tabID == "" {
		return mcp.NewToolResultError("tab_id must be a non-empty string"), nil
	}
	text, err := b.capture(tabID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

// ServeStdio blocks, serving the MCP tool surface over stdin/stdout.
func (b *Bridge) ServeStdio() error {
	return server.ServeStdio(b.srv)
}
