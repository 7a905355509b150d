// Package webscrape exposes the scrape pipeline as a model-invocable tool.
// The same payload handling backs the chat agent's tool calls and the
// direct /api/scrape endpoint, so both callers see one schema.
package webscrape

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/matthewmueller/scrape"
	"github.com/matthewmueller/scrape/agent"
)

const description = `
- Fetches the URL and extracts the readable text content
- Returns the page text, title, links and a truncation flag
- Use this tool when you need to retrieve and analyze live web content
`

// In is the invocation payload.
type In struct {
	URL          string `json:"url" is:"required" description:"The URL to fetch content from"`
	Format       string `json:"format" enums:"text,markdown" description:"Output format for the extracted content"`
	Instructions string `json:"instructions" description:"What to look for on the page"`
}

// Out is the success payload.
type Out struct {
	URL         string   `json:"url"`
	Content     string   `json:"content"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Links       []string `json:"links"`
	Truncated   bool     `json:"truncated"`
	ByteCount   int      `json:"byteCount"`
}

// Fail is the failure payload. A response carries either Out or Fail
// fields, never both.
type Fail struct {
	URL     string `json:"url"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// New creates the web_scrape tool for the agent.
func New(log *slog.Logger, scraper *scrape.Scraper) agent.Tool {
	return agent.Func("web_scrape", description, func(ctx context.Context, in In) (any, error) {
		return respond(ctx, scraper, &in), nil
	})
}

// Handler serves raw invocation payloads outside the agent loop.
type Handler struct {
	log     *slog.Logger
	scraper *scrape.Scraper
}

// NewHandler creates a payload handler backed by the given scraper.
func NewHandler(log *slog.Logger, scraper *scrape.Scraper) *Handler {
	return &Handler{
		log:     log,
		scraper: scraper,
	}
}

// Handle runs one invocation. It always returns a well-formed response
// payload, malformed input included.
func (h *Handler) Handle(ctx context.Context, payload []byte) (out []byte) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("webscrape: panic handling invocation", "panic", r)
			out, _ = json.Marshal(&Fail{
				Error:   string(scrape.KindInternalError),
				Message: "internal error",
			})
		}
	}()

	var in In
	if err := json.Unmarshal(payload, &in); err != nil || in.URL == "" {
		res, _ := json.Marshal(&Fail{
			URL:     in.URL,
			Error:   string(scrape.KindInvalidURL),
			Message: "no valid URL provided",
		})
		return res
	}

	res, err := json.Marshal(respond(ctx, h.scraper, &in))
	if err != nil {
		h.log.Error("webscrape: marshaling response", "err", err)
		res, _ = json.Marshal(&Fail{
			URL:     in.URL,
			Error:   string(scrape.KindInternalError),
			Message: "internal error",
		})
	}
	return res
}

// respond runs the pipeline and shapes the outcome for the caller.
func respond(ctx context.Context, scraper *scrape.Scraper, in *In) any {
	var opts []scrape.Option
	if in.Format == "markdown" {
		opts = append(opts, scrape.WithFormat(scrape.FormatMarkdown))
	}

	outcome := scraper.Scrape(ctx, in.URL, opts...)
	if !outcome.OK() {
		return &Fail{
			URL:     outcome.Failure.URL,
			Error:   string(outcome.Failure.Kind),
			Message: outcome.Failure.Message,
		}
	}

	links := outcome.Links
	if links == nil {
		links = []string{}
	}
	return &Out{
		URL:         outcome.URL,
		Content:     outcome.Content,
		Title:       outcome.Title,
		Description: outcome.Description,
		Links:       links,
		Truncated:   outcome.Truncated,
		ByteCount:   outcome.ByteCount,
	}
}
