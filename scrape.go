// Package scrape fetches web pages and reduces them to clean, bounded text
// for language-model consumption. The pipeline is fetch → decode → extract
// → assemble; every stage failure is mapped here, once, to the stable
// error vocabulary in [ErrorKind].
package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/matthewmueller/scrape/extractor"
	"github.com/matthewmueller/scrape/fetcher"
)

// DefaultMaxTextChars caps the assembled text independently of the byte
// cap, since decompression and extraction change the size both ways.
const DefaultMaxTextChars = 10000

// Format selects the shape of the assembled content.
type Format string

// FormatText is the extracted main text: scripts, styles and page chrome
// (navigation, headers, footers) are stripped. FormatMarkdown converts the
// whole document's markup instead, so chrome text that the text format
// drops can still appear in the markdown output.
const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
)

// Config bounds every request. It is read once at construction and never
// mid-pipeline, so tests can inject limits deterministically.
type Config struct {
	MaxContentBytes int
	Timeout         time.Duration
	MaxRedirects    int
	MaxTextChars    int
	UserAgent       string
}

// Scraper runs the fetch-and-extract pipeline. It is safe for concurrent
// use: all per-request state lives on the stack.
type Scraper struct {
	log          *slog.Logger
	fetcher      *fetcher.Fetcher
	maxTextChars int
}

// New creates a Scraper with the given limits.
func New(log *slog.Logger, config Config) *Scraper {
	maxText := config.MaxTextChars
	if maxText <= 0 {
		maxText = DefaultMaxTextChars
	}
	return &Scraper{
		log: log,
		fetcher: fetcher.New(log, fetcher.Config{
			MaxContentBytes: config.MaxContentBytes,
			Timeout:         config.Timeout,
			MaxRedirects:    config.MaxRedirects,
			UserAgent:       config.UserAgent,
		}),
		maxTextChars: maxText,
	}
}

// Option configures a single scrape.
type Option func(*options)

type options struct {
	format Format
}

// WithFormat sets the content format (default: FormatText).
func WithFormat(f Format) Option {
	return func(o *options) {
		o.format = f
	}
}

// Scrape retrieves rawURL and assembles the outcome. It never returns a Go
// error: every failure becomes a typed [Failure] on the outcome.
func (s *Scraper) Scrape(ctx context.Context, rawURL string, opts ...Option) *Outcome {
	o := &options{format: FormatText}
	for _, opt := range opts {
		opt(o)
	}

	// Syntactic validation happens before any network I/O.
	if err := validateURL(rawURL); err != nil {
		return fail(KindInvalidURL, rawURL, "%s", err)
	}

	res, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return s.failFetch(rawURL, err)
	}

	doc, err := fetcher.Decode(res)
	if err != nil {
		if errors.Is(err, fetcher.ErrDecode) {
			return fail(KindDecodeError, rawURL, "%s", err)
		}
		return fail(KindInternalError, rawURL, "internal error")
	}

	return s.assemble(rawURL, res, doc, o.format)
}

// assemble applies the final text cap and decides success vs RemoteError.
// Non-2xx statuses with usable content are legitimate outcomes; only an
// empty non-success response is a failure.
func (s *Scraper) assemble(rawURL string, res *fetcher.Response, doc *fetcher.Document, format Format) *Outcome {
	result := extractor.Extract(doc)

	content := result.Text
	// Markdown converts the full document, not the boilerplate-stripped
	// extraction, so heading and link structure survives intact.
	if format == FormatMarkdown && strings.Contains(strings.ToLower(doc.ContentType), "html") {
		if md, err := htmltomarkdown.ConvertString(doc.Text); err == nil {
			content = strings.TrimSpace(md)
		} else {
			// Best-effort: fall back to the extracted text.
			s.log.Debug("scrape: markdown conversion failed", "url", rawURL, "error", err)
		}
	}

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		if content == "" {
			return fail(KindRemoteError, rawURL, "remote returned status %d", res.StatusCode)
		}
		s.log.Debug("scrape: non-success status with content", "url", rawURL, "status", res.StatusCode)
	}

	content, capped := truncateAtWhitespace(content, s.maxTextChars)

	return &Outcome{
		URL:         doc.FinalURL,
		Content:     content,
		Title:       result.Title,
		Description: result.Description,
		Links:       result.Links,
		Truncated:   res.Truncated || capped,
		ByteCount:   len(res.Body),
	}
}

// failFetch classifies a fetch error into the external vocabulary.
func (s *Scraper) failFetch(rawURL string, err error) *Outcome {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		return fail(KindTimeout, rawURL, "request timed out")
	case errors.Is(err, fetcher.ErrTooManyRedirects):
		return fail(KindTooManyRedirects, rawURL, "redirect chain exceeded the limit")
	case errors.Is(err, fetcher.ErrScheme):
		return fail(KindInvalidURL, rawURL, "redirected to a disallowed scheme")
	default:
		// DNS, connect, TLS and mid-body transport failures: the remote
		// (or the path to it) failed. InternalError is reserved for bugs.
		return fail(KindRemoteError, rawURL, "request failed: %s", err)
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %s", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q not allowed (only http and https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// truncateAtWhitespace caps text at max characters, cutting at the last
// whitespace boundary in the window rather than mid-token. A hard cut only
// happens when the window contains no whitespace at all.
func truncateAtWhitespace(text string, max int) (string, bool) {
	if utf8.RuneCountInString(text) <= max {
		return text, false
	}
	runes := []rune(text)
	window := runes[:max]
	cut := max
	for i := max - 1; i >= 0; i-- {
		if unicode.IsSpace(window[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace), true
}
