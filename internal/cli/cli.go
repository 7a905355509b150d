package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Bowery/prompt"
	"github.com/livebud/cli"
	"github.com/livebud/color"
	"github.com/matthewmueller/scrape"
	"github.com/matthewmueller/scrape/agent"
	"github.com/matthewmueller/scrape/internal/env"
	"github.com/matthewmueller/scrape/providers/anthropic"
	"github.com/matthewmueller/scrape/providers/openai"
	"github.com/matthewmueller/scrape/server"
	"github.com/matthewmueller/scrape/tool/webscrape"
)

const systemPrompt = `You are a helpful assistant with access to a web_scrape tool.
Use it whenever the user asks about the content of a URL or live web page.
Summarize fetched content concisely and cite the final URL.`

func New(log *slog.Logger) *CLI {
	return &CLI{
		log:    log,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Env:    os.Environ(),
		Dir:    ".",
	}
}

type CLI struct {
	log    *slog.Logger
	Stdout io.Writer
	Stderr io.Writer
	Env    []string
	Dir    string
}

func (c *CLI) Parse(ctx context.Context, args ...string) error {
	serveCmd := &Serve{Log: c.log}
	cli := cli.New("scrape", "fetch web pages as clean text for agents")
	cli.Flag("provider", "provider to use").Short('p').Env("SCRAPE_PROVIDER").Optional().String(&serveCmd.Provider)
	cli.Flag("model", "model to use").Short('m').Env("SCRAPE_MODEL").Optional().String(&serveCmd.Model)

	{ // $ scrape serve
		cli := cli.Command("serve", "run the chat backend")
		cli.Flag("port", "port to listen on").Env("PORT").Int(&serveCmd.Port).Default(3001)
		cli.Run(func(ctx context.Context) error {
			return c.Serve(ctx, serveCmd)
		})
	}

	{ // $ scrape get <url>
		cmd := &Get{Log: c.log}
		cli := cli.Command("get", "scrape a single URL")
		cli.Arg("url", "URL to scrape").String(&cmd.URL)
		cli.Flag("format", "output format").Enum(&cmd.Format, "text", "markdown", "json").Default("text")
		cli.Run(func(ctx context.Context) error {
			return c.Get(ctx, cmd)
		})
	}

	{ // $ scrape chat
		cmd := &Chat{Log: c.log}
		cli := cli.Command("chat", "chat with the scraping agent")
		cli.Args("prompt", "prompt to send to the model").Optional().Strings(&cmd.Prompt)
		cli.Run(func(ctx context.Context) error {
			cmd.Provider = serveCmd.Provider
			cmd.Model = serveCmd.Model
			return c.Chat(ctx, cmd)
		})
	}

	return cli.Parse(ctx, args...)
}

func (c *CLI) providers(env *env.Env) (providers []agent.Provider) {
	if env.AnthropicKey != "" {
		providers = append(providers, anthropic.New(c.log, env.AnthropicKey))
	}
	if env.OpenAIKey != "" {
		providers = append(providers, openai.New(c.log, env.OpenAIKey))
	}
	return providers
}

func (c *CLI) provider(providers []agent.Provider, name *string) (agent.Provider, error) {
	if name == nil || *name == "" {
		if len(providers) == 0 {
			return nil, fmt.Errorf("cli: no providers configured")
		}
		if len(providers) > 1 {
			return nil, fmt.Errorf("cli: multiple providers configured, please specify one with --provider")
		}
		return providers[0], nil
	}
	for _, p := range providers {
		if p.Name() == *name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("cli: provider not found: %s", *name)
}

// defaultModel picks a model when none was configured.
func defaultModel(provider agent.Provider) string {
	switch provider.Name() {
	case "openai":
		return openai.DefaultModel
	default:
		return anthropic.DefaultModel
	}
}

// agentFor builds the scraping agent for the selected provider, or nil
// when no provider is configured.
func (c *CLI) agentFor(e *env.Env, scraper *scrape.Scraper, providerName, model *string) (*agent.Agent, error) {
	providers := c.providers(e)
	if len(providers) == 0 {
		return nil, nil
	}
	provider, err := c.provider(providers, providerName)
	if err != nil {
		return nil, err
	}
	m := ""
	if model != nil {
		m = *model
	}
	if m == "" {
		m = defaultModel(provider)
	}
	return agent.New(c.log, provider, m,
		agent.WithSystem(systemPrompt),
		agent.WithTool(webscrape.New(c.log, scraper)),
	), nil
}

type Serve struct {
	Log      *slog.Logger
	Provider *string
	Model    *string
	Port     int
}

// Serve runs the HTTP backend
func (c *CLI) Serve(ctx context.Context, in *Serve) error {
	e, err := env.Load()
	if err != nil {
		return fmt.Errorf("cli: unable to load env: %w", err)
	}
	if in.Port == 0 {
		in.Port = e.Port
	}

	scraper := scrape.New(c.log, e.ScrapeConfig())

	ag, err := c.agentFor(e, scraper, in.Provider, in.Model)
	if err != nil {
		return err
	}
	var chatter server.Chatter
	if ag != nil {
		chatter = ag
	} else {
		c.log.Warn("cli: no provider configured, chat endpoint disabled")
	}

	s := server.New(c.log, chatter, webscrape.NewHandler(c.log, scraper))
	return s.Run(ctx, fmt.Sprintf(":%d", in.Port))
}

type Get struct {
	Log    *slog.Logger
	URL    string
	Format string
}

// Get scrapes a single URL and prints the result
func (c *CLI) Get(ctx context.Context, in *Get) error {
	e, err := env.Load()
	if err != nil {
		return fmt.Errorf("cli: unable to load env: %w", err)
	}

	scraper := scrape.New(c.log, e.ScrapeConfig())

	if in.Format == "json" {
		payload, err := json.Marshal(map[string]string{"url": in.URL})
		if err != nil {
			return fmt.Errorf("cli: marshaling payload: %w", err)
		}
		handler := webscrape.NewHandler(c.log, scraper)
		fmt.Fprintln(c.Stdout, string(handler.Handle(ctx, payload)))
		return nil
	}

	var opts []scrape.Option
	if in.Format == "markdown" {
		opts = append(opts, scrape.WithFormat(scrape.FormatMarkdown))
	}
	outcome := scraper.Scrape(ctx, in.URL, opts...)
	if !outcome.OK() {
		return fmt.Errorf("cli: scraping %s: %w", in.URL, outcome.Failure)
	}
	fmt.Fprintln(c.Stdout, outcome.Content)
	return nil
}

type Chat struct {
	Log      *slog.Logger
	Provider *string
	Model    *string
	Prompt   []string
}

// Chat starts an interactive session with the scraping agent
func (c *CLI) Chat(ctx context.Context, in *Chat) error {
	e, err := env.Load()
	if err != nil {
		return fmt.Errorf("cli: unable to load env: %w", err)
	}

	scraper := scrape.New(c.log, e.ScrapeConfig())

	ag, err := c.agentFor(e, scraper, in.Provider, in.Model)
	if err != nil {
		return err
	}
	if ag == nil {
		return fmt.Errorf("cli: no providers configured")
	}

	fmt.Fprintln(c.Stderr, color.Dim(ag.Provider()+" "+ag.Model()))

	if len(in.Prompt) > 0 {
		answer, err := ag.Ask(ctx, strings.Join(in.Prompt, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(c.Stdout, answer)
		return nil
	}

	messages := []*agent.Message{}

	// Interactive mode
	for {
		input, err := prompt.Basic(">", true)
		if err != nil {
			if err == prompt.ErrEOF || err == prompt.ErrCTRLC {
				return nil
			}
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		messages = append(messages, &agent.Message{Role: "user", Content: input})
		reply, err := ag.Send(ctx, messages)
		if err != nil {
			return err
		}
		messages = append(messages, reply)
		fmt.Fprintln(c.Stdout, reply.Content)
	}
}
