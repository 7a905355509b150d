// Package agent is the thin glue between the chat backend and a hosted
// model. It runs a bounded tool-calling loop: complete, run the requested
// tools, feed the results back, repeat until the model answers in text.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// maxToolRounds bounds the tool loop so a misbehaving model can't spin.
const maxToolRounds = 8

// Message is one turn of the conversation.
type Message struct {
	Role       string // system, user, assistant, tool
	Content    string
	ToolCalls  []*ToolCall // assistant messages that invoke tools
	ToolCallID string      // tool results: the call being answered
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Request is a single completion request to a provider.
type Request struct {
	Model    string
	System   string
	Messages []*Message
	Tools    []*ToolSchema
}

// Reply is a complete (non-streaming) model response.
type Reply struct {
	Content   string
	ToolCalls []*ToolCall
}

// Provider completes chat requests against a hosted model API.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *Request) (*Reply, error)
}

// Tool is a typed capability the model can invoke.
type Tool interface {
	Schema() *ToolSchema
	Run(ctx context.Context, args json.RawMessage) ([]byte, error)
}

// Agent wires a provider, a model and tools together.
type Agent struct {
	log      *slog.Logger
	provider Provider
	model    string
	system   string
	tools    []Tool
}

// Option configures an Agent.
type Option func(*Agent)

// WithSystem sets the system prompt.
func WithSystem(system string) Option {
	return func(a *Agent) {
		a.system = system
	}
}

// WithTool adds a tool the model may call.
func WithTool(t Tool) Option {
	return func(a *Agent) {
		a.tools = append(a.tools, t)
	}
}

// New creates an Agent for the given provider and model.
func New(log *slog.Logger, provider Provider, model string, opts ...Option) *Agent {
	a := &Agent{
		log:      log,
		provider: provider,
		model:    model,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Provider returns the provider name.
func (a *Agent) Provider() string { return a.provider.Name() }

// Model returns the model identifier.
func (a *Agent) Model() string { return a.model }

// Send runs the tool loop over the given conversation and returns the
// final assistant message. The input slice is not mutated; callers own
// their history.
func (a *Agent) Send(ctx context.Context, history []*Message) (*Message, error) {
	var schemas []*ToolSchema
	toolMap := make(map[string]Tool)
	for _, t := range a.tools {
		schema := t.Schema()
		schemas = append(schemas, schema)
		toolMap[schema.Function.Name] = t
	}

	messages := append([]*Message{}, history...)

	for range maxToolRounds {
		reply, err := a.provider.Complete(ctx, &Request{
			Model:    a.model,
			System:   a.system,
			Messages: messages,
			Tools:    schemas,
		})
		if err != nil {
			return nil, fmt.Errorf("agent: completing: %w", err)
		}

		if len(reply.ToolCalls) == 0 {
			return &Message{Role: "assistant", Content: reply.Content}, nil
		}

		messages = append(messages, &Message{
			Role:      "assistant",
			Content:   reply.Content,
			ToolCalls: reply.ToolCalls,
		})

		for _, call := range reply.ToolCalls {
			messages = append(messages, a.runTool(ctx, toolMap, call))
		}
	}

	return nil, fmt.Errorf("agent: tool loop exceeded %d rounds", maxToolRounds)
}

// Ask is Send for a single user message.
func (a *Agent) Ask(ctx context.Context, content string) (string, error) {
	reply, err := a.Send(ctx, []*Message{{Role: "user", Content: content}})
	if err != nil {
		return "", err
	}
	return reply.Content, nil
}

// runTool executes one requested tool call. Tool errors become tool-result
// content so the model can react; they never abort the loop.
func (a *Agent) runTool(ctx context.Context, toolMap map[string]Tool, call *ToolCall) *Message {
	msg := &Message{Role: "tool", ToolCallID: call.ID}
	tool, ok := toolMap[call.Name]
	if !ok {
		msg.Content = fmt.Sprintf("Error: unknown tool %q", call.Name)
		return msg
	}
	a.log.Debug("agent: running tool", "tool", call.Name)
	result, err := tool.Run(ctx, call.Arguments)
	if err != nil {
		msg.Content = fmt.Sprintf("Error: %v", err)
		return msg
	}
	msg.Content = string(result)
	return msg
}
