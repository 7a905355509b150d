// Package openai implements agent.Provider on the OpenAI Chat Completions API.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/matthewmueller/scrape/agent"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// New creates a new OpenAI client
func New(log *slog.Logger, apiKey string) *Client {
	oc := openai.NewClient(option.WithAPIKey(apiKey))
	return &Client{
		oc:  &oc,
		log: log,
	}
}

// Client implements the agent.Provider interface for OpenAI
type Client struct {
	oc  *openai.Client
	log *slog.Logger
}

var _ agent.Provider = (*Client)(nil)

func (c *Client) Name() string {
	return "openai"
}

// Complete sends a single chat completion request and collects the full
// reply, including any tool calls.
func (c *Client) Complete(ctx context.Context, req *agent.Request) (*agent.Reply, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("openai: required model is empty")
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: toMessages(req),
	}
	if tools := toTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	res, err := c.oc.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: completing: %w", err)
	}
	if len(res.Choices) == 0 {
		return nil, fmt.Errorf("openai: response has no choices")
	}

	choice := res.Choices[0].Message
	reply := &agent.Reply{
		Content: choice.Content,
	}
	for _, call := range choice.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, &agent.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: json.RawMessage(call.Function.Arguments),
		})
	}
	return reply, nil
}

// toMessages converts agent messages to chat completion params. The system
// prompt leads, assistant tool calls replay on the assistant turn, and tool
// results become tool messages keyed by tool call id.
func toMessages(req *agent.Request) (messages []openai.ChatCompletionMessageParamUnion) {
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "user":
			messages = append(messages, openai.UserMessage(m.Content))
		case "assistant":
			if m.Content == "" && len(m.ToolCalls) == 0 {
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: openai.String(m.Content),
				}
			}
			for _, call := range m.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: call.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Name,
						Arguments: string(call.Arguments),
					},
				})
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &assistant,
			})
		case "tool":
			messages = append(messages, openai.ToolMessage(m.Content, m.ToolCallID))
		case "system":
			messages = append(messages, openai.SystemMessage(m.Content))
		}
	}
	return messages
}

func toTools(schemas []*agent.ToolSchema) (tools []openai.ChatCompletionToolParam) {
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

		tools = append(tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Function.Name,
				Description: openai.String(t.Function.Description),
				Parameters: openai.FunctionParameters{
					"type":       t.Function.Parameters.Type,
					"properties": props,
					"required":   t.Function.Parameters.Required,
				},
			},
		})
	}
	return tools
}
