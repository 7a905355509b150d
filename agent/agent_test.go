package agent_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/matryer/is"
	"github.com/matthewmueller/logs"
	"github.com/matthewmueller/scrape/agent"
)

// fakeProvider replays scripted replies and records every request.
type fakeProvider struct {
	replies  []*agent.Reply
	requests []*agent.Request
	err      error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req *agent.Request) (*agent.Reply, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	if len(f.replies) == 0 {
		return &agent.Reply{Content: "out of replies"}, nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

func TestAsk(t *testing.T) {
	is := is.New(t)
	provider := &fakeProvider{replies: []*agent.Reply{{Content: "42"}}}
	ag := agent.New(logs.Default(), provider, "test-model")

	answer, err := ag.Ask(context.Background(), "meaning of life?")
	is.NoErr(err)
	is.Equal(answer, "42")
	is.Equal(len(provider.requests), 1)
	is.Equal(provider.requests[0].Model, "test-model")
	is.Equal(provider.requests[0].Messages[0].Content, "meaning of life?")
}

func TestSystemPromptForwarded(t *testing.T) {
	is := is.New(t)
	provider := &fakeProvider{replies: []*agent.Reply{{Content: "ok"}}}
	ag := agent.New(logs.Default(), provider, "test-model", agent.WithSystem("be terse"))

	_, err := ag.Ask(context.Background(), "hi")
	is.NoErr(err)
	is.Equal(provider.requests[0].System, "be terse")
}

func TestToolLoop(t *testing.T) {
	is := is.New(t)
	var gotArgs json.RawMessage
	echo := agent.Func("echo", "echoes its input", func(ctx context.Context, in struct {
		Value string `json:"value" is:"required"`
	}) (string, error) {
		gotArgs, _ = json.Marshal(in)
		return "echoed: " + in.Value, nil
	})

	provider := &fakeProvider{replies: []*agent.Reply{
		{ToolCalls: []*agent.ToolCall{{ID: "call_1", Name: "echo", Arguments: json.RawMessage(`{"value":"ping"}`)}}},
		{Content: "done"},
	}}
	ag := agent.New(logs.Default(), provider, "test-model", agent.WithTool(echo))

	answer, err := ag.Ask(context.Background(), "echo ping")
	is.NoErr(err)
	is.Equal(answer, "done")
	is.Equal(string(gotArgs), `{"value":"ping"}`)

	// Second round carries the assistant tool call and its result.
	second := provider.requests[1].Messages
	is.Equal(len(second), 3)
	is.Equal(second[1].Role, "assistant")
	is.Equal(second[1].ToolCalls[0].Name, "echo")
	is.Equal(second[2].Role, "tool")
	is.Equal(second[2].ToolCallID, "call_1")
	is.True(strings.Contains(second[2].Content, "echoed: ping"))
}

func TestToolErrorFedBack(t *testing.T) {
	is := is.New(t)
	failing := agent.Func("boom", "always fails", func(ctx context.Context, in struct{}) (string, error) {
		return "", fmt.Errorf("boom: exploded")
	})

	provider := &fakeProvider{replies: []*agent.Reply{
		{ToolCalls: []*agent.ToolCall{{ID: "call_1", Name: "boom"}}},
		{Content: "recovered"},
	}}
	ag := agent.New(logs.Default(), provider, "test-model", agent.WithTool(failing))

	answer, err := ag.Ask(context.Background(), "go")
	is.NoErr(err)
	is.Equal(answer, "recovered")
	result := provider.requests[1].Messages[2]
	is.Equal(result.Role, "tool")
	is.True(strings.Contains(result.Content, "boom: exploded"))
}

func TestUnknownToolFedBack(t *testing.T) {
	is := is.New(t)
	provider := &fakeProvider{replies: []*agent.Reply{
		{ToolCalls: []*agent.ToolCall{{ID: "call_1", Name: "missing"}}},
		{Content: "moved on"},
	}}
	ag := agent.New(logs.Default(), provider, "test-model")

	answer, err := ag.Ask(context.Background(), "go")
	is.NoErr(err)
	is.Equal(answer, "moved on")
	is.True(strings.Contains(provider.requests[1].Messages[2].Content, "unknown tool"))
}

func TestToolLoopBounded(t *testing.T) {
	is := is.New(t)
	noop := agent.Func("noop", "does nothing", func(ctx context.Context, in struct{}) (string, error) {
		return "nothing", nil
	})

	// The provider asks for the tool forever.
	var replies []*agent.Reply
	for range 100 {
		replies = append(replies, &agent.Reply{
			ToolCalls: []*agent.ToolCall{{ID: "call", Name: "noop"}},
		})
	}
	provider := &fakeProvider{replies: replies}
	ag := agent.New(logs.Default(), provider, "test-model", agent.WithTool(noop))

	_, err := ag.Ask(context.Background(), "spin")
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "exceeded"))
}

func TestProviderErrorPropagates(t *testing.T) {
	is := is.New(t)
	provider := &fakeProvider{err: errors.New("upstream down")}
	ag := agent.New(logs.Default(), provider, "test-model")

	_, err := ag.Ask(context.Background(), "hi")
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "upstream down"))
}

func TestSendDoesNotMutateHistory(t *testing.T) {
	is := is.New(t)
	noop := agent.Func("noop", "does nothing", func(ctx context.Context, in struct{}) (string, error) {
		return "nothing", nil
	})
	provider := &fakeProvider{replies: []*agent.Reply{
		{ToolCalls: []*agent.ToolCall{{ID: "call", Name: "noop"}}},
		{Content: "final"},
	}}
	ag := agent.New(logs.Default(), provider, "test-model", agent.WithTool(noop))

	history := []*agent.Message{{Role: "user", Content: "hi"}}
	reply, err := ag.Send(context.Background(), history)
	is.NoErr(err)
	is.Equal(reply.Content, "final")
	is.Equal(len(history), 1)
}
