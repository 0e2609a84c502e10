package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flemzord/agentbridge/internal/tool"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// Client is the part of an MCP client session used to proxy tools.
// *client.Client from mcp-go implements it.
type Client interface {
	Initialize(ctx context.Context, req mcpgo.InitializeRequest) (*mcpgo.InitializeResult, error)
	ListTools(ctx context.Context, req mcpgo.ListToolsRequest) (*mcpgo.ListToolsResult, error)
	CallTool(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error)
	Ping(ctx context.Context) error
	Close() error
}

var emptySchema = json.RawMessage(`{"type":"object","properties":{}}`)

// proxyTool exposes one remote MCP tool through the tool registry.
type proxyTool struct {
	name        string
	remoteName  string
	server      string
	description string
	schema      json.RawMessage
	scopes      []tool.Scope
	timeout     time.Duration
	client      Client
}

func newProxyTool(server string, prefix string, remote mcpgo.Tool, scopes []tool.Scope, timeout time.Duration, c Client) (*proxyTool, error) {
	schema := remote.RawInputSchema
	if len(schema) == 0 {
		b, err := json.Marshal(remote.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s: marshal input schema: %w", remote.Name, err)
		}
		schema = b
	}
	if len(schema) == 0 || string(schema) == "null" {
		schema = emptySchema
	}

	desc := strings.TrimSpace(remote.Description)
	if desc == "" {
		desc = "Tool " + remote.Name + " provided by the " + server + " MCP server."
	}

	return &proxyTool{
		name:        prefix + remote.Name,
		remoteName:  remote.Name,
		server:      server,
		description: desc,
		schema:      schema,
		scopes:      scopes,
		timeout:     timeout,
		client:      c,
	}, nil
}

func (p *proxyTool) Name() string            { return p.name }
func (p *proxyTool) Description() string     { return p.description }
func (p *proxyTool) Schema() json.RawMessage { return p.schema }
func (p *proxyTool) Scopes() []tool.Scope    { return p.scopes }

func (p *proxyTool) Execute(ctx context.Context, args json.RawMessage, _ tool.ExecutionEnv) (tool.Result, error) {
	var arguments map[string]any
	if len(args) > 0 && string(args) != "null" {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return tool.Result{}, fmt.Errorf("%w: %w", tool.ErrInvalidInput, err)
		}
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var req mcpgo.CallToolRequest
	req.Params.Name = p.remoteName
	req.Params.Arguments = arguments

	res, err := p.client.CallTool(ctx, req)
	if err != nil {
		switch {
		case p.timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded):
			return tool.Errorf("timed out: %s did not answer within %s", p.name, p.timeout), nil
		case ctx.Err() != nil:
			return tool.Result{}, ctx.Err()
		}
		return tool.Errorf("%s server: %v", p.server, err), nil
	}
	return convertResult(res), nil
}

// convertResult maps MCP content onto a tool result. Text goes to Output,
// or to Error when the server flagged the call as failed; the first image
// becomes Base64Image.
func convertResult(res *mcpgo.CallToolResult) tool.Result {
	var texts []string
	var out tool.Result
	for _, c := range res.Content {
		if text, ok := mcpgo.AsTextContent(c); ok {
			texts = append(texts, text.Text)
			continue
		}
		if img, ok := mcpgo.AsImageContent(c); ok && out.Base64Image == "" {
			out.Base64Image = img.Data
		}
	}
	if len(texts) == 0 && res.StructuredContent != nil {
		if b, err := json.Marshal(res.StructuredContent); err == nil {
			texts = append(texts, string(b))
		}
	}

	joined := strings.Join(texts, "\n")
	if res.IsError {
		if joined == "" {
			joined = "tool reported an error"
		}
		out.Error = joined
		return out
	}
	out.Output = joined
	return out
}
