// Package anthropic implements agent.Provider on the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/matthewmueller/scrape/agent"
)

// maxTokens bounds a single completion.
const maxTokens = 4096

// New creates a new Anthropic client
func New(log *slog.Logger, apiKey string) *Client {
	ac := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Client{
		ac:  &ac,
		log: log,
	}
}

// Client implements the agent.Provider interface for Anthropic
type Client struct {
	ac  *anthropic.Client
	log *slog.Logger
}

var _ agent.Provider = (*Client)(nil)

func (c *Client) Name() string {
	return "anthropic"
}

// Complete sends a single completion request and collects the full reply,
// including any tool-use requests.
func (c *Client) Complete(ctx context.Context, req *agent.Request) (*agent.Reply, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("anthropic: required model is empty")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  toMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if tools := toTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	res, err := c.ac.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: completing: %w", err)
	}

	reply := new(agent.Reply)
	for _, block := range res.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			reply.Content += b.Text
		case anthropic.ToolUseBlock:
			reply.ToolCalls = append(reply.ToolCalls, &agent.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: normalizeToolArguments(json.RawMessage(b.Input)),
			})
		}
	}
	return reply, nil
}

// toMessages converts agent messages to Anthropic message params. Tool
// calls replay as tool_use blocks on the assistant turn; tool results go
// back as tool_result blocks on a user turn, as the API requires.
func toMessages(msgs []*agent.Message) (messages []anthropic.MessageParam) {
	for _, m := range msgs {
		switch m.Role {
		case "user":
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			var blocks []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, call := range m.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, normalizeToolArguments(call.Arguments), call.Name))
			}
			if len(blocks) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			}
		case "tool":
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}
	return messages
}

func toTools(schemas []*agent.ToolSchema) (tools []anthropic.ToolUnionParam) {
	for _, t := range schemas {
		props := make(map[string]any)
		for name, prop := range t.Function.Parameters.Properties {
			p := map[string]any{
				"type":        prop.Type,
				"description": prop.Description,
			}
			if len(prop.Enum) > 0 {
				p["enum"] = prop.Enum
			}
			props[name] = p
		}

		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Function.Name,
				Description: anthropic.String(t.Function.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: props,
					Required:   t.Function.Parameters.Required,
				},
			},
		})
	}
	return tools
}

// normalizeToolArguments guarantees syntactically valid JSON arguments.
func normalizeToolArguments(args json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return json.RawMessage(`{}`)
	}
	return trimmed
}
