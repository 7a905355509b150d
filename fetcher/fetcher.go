package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Defaults match the service's environment configuration.
const (
	DefaultMaxContentBytes = 1 << 20 // 1MiB
	DefaultTimeout         = 30 * time.Second
	DefaultMaxRedirects    = 5
	DefaultUserAgent       = "scrape/1.0 (+https://github.com/matthewmueller/scrape)"
)

// Transport-level timeouts. The overall wall-clock budget is enforced per
// request with a context deadline; these just keep individual connection
// phases from eating the whole budget.
const (
	dialTimeout           = 10 * time.Second
	tlsHandshakeTimeout   = 10 * time.Second
	responseHeaderTimeout = 10 * time.Second
	idleConnTimeout       = 90 * time.Second
)

// ErrTooManyRedirects is returned when a redirect chain exceeds the
// configured budget.
var ErrTooManyRedirects = errors.New("fetcher: too many redirects")

// ErrScheme is returned when a URL (or a redirect target) uses a scheme
// other than http or https.
var ErrScheme = errors.New("fetcher: scheme not allowed")

// Config bounds a fetch in time, size and redirect count. The zero value
// takes the package defaults.
type Config struct {
	MaxContentBytes int
	Timeout         time.Duration
	MaxRedirects    int
	UserAgent       string
}

func (c Config) withDefaults() Config {
	if c.MaxContentBytes <= 0 {
		c.MaxContentBytes = DefaultMaxContentBytes
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = DefaultMaxRedirects
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	return c
}

// Response is the raw result of a fetch, owned by the fetcher until it's
// handed to Decode. Non-2xx statuses are not errors here: the status is
// surfaced and the caller decides.
type Response struct {
	Body            []byte
	StatusCode      int
	ContentType     string
	ContentEncoding string
	FinalURL        string
	Truncated       bool
}

// Fetcher performs bounded HTTP GETs. Each Fetcher owns its http.Client,
// so concurrent requests never share buffers or partial state.
type Fetcher struct {
	log    *slog.Logger
	config Config
	client *http.Client
}

// New creates a Fetcher with the given limits applied to every request.
func New(log *slog.Logger, config Config) *Fetcher {
	config = config.withDefaults()
	return &Fetcher{
		log:    log,
		config: config,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   dialTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   tlsHandshakeTimeout,
				ResponseHeaderTimeout: responseHeaderTimeout,
				IdleConnTimeout:       idleConnTimeout,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				ForceAttemptHTTP2:     true,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > config.MaxRedirects {
					return fmt.Errorf("%w (>%d)", ErrTooManyRedirects, config.MaxRedirects)
				}
				if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
					return fmt.Errorf("%w: redirected to %q", ErrScheme, req.URL.Scheme)
				}
				return nil
			},
		},
	}
}

// Fetch retrieves rawURL within the configured time, size and redirect
// budgets. The body is streamed and cut off at MaxContentBytes, so an
// oversized page comes back truncated, not as an error. The combined
// deadline covers DNS, connect, TLS and the body transfer.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetcher: creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	// Setting Accept-Encoding explicitly disables the transport's
	// transparent decompression, so the decoder owns content-encoding.
	req.Header.Set("Accept-Encoding", "gzip")

	res, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetcher: %w", err)
	}
	defer res.Body.Close()

	// Read one byte past the cap so truncation is detectable without
	// buffering the whole body.
	max := f.config.MaxContentBytes
	body, err := io.ReadAll(io.LimitReader(res.Body, int64(max)+1))
	if err != nil {
		// The deadline can fire mid-body; surface it as the request error.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fetcher: reading body: %w", ctx.Err())
		}
		return nil, fmt.Errorf("fetcher: reading body: %w", err)
	}

	truncated := false
	if len(body) > max {
		body = body[:max]
		truncated = true
		f.log.Debug("fetcher: body truncated", "url", rawURL, "max_bytes", max)
	}

	return &Response{
		Body:            body,
		StatusCode:      res.StatusCode,
		ContentType:     res.Header.Get("Content-Type"),
		ContentEncoding: res.Header.Get("Content-Encoding"),
		FinalURL:        res.Request.URL.String(),
		Truncated:       truncated,
	}, nil
}
