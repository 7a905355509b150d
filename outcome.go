package scrape

import "fmt"

// ErrorKind is the stable, caller-visible failure vocabulary. These exact
// strings cross the system boundary; implementation errors never do.
type ErrorKind string

const (
	// KindInvalidURL: malformed or disallowed scheme, caught before any
	// network call.
	KindInvalidURL ErrorKind = "InvalidUrl"
	// KindTimeout: the combined network budget elapsed.
	KindTimeout ErrorKind = "Timeout"
	// KindTooManyRedirects: the redirect chain exceeded the limit.
	KindTooManyRedirects ErrorKind = "TooManyRedirects"
	// KindDecodeError: content-encoding or charset processing failed.
	KindDecodeError ErrorKind = "DecodeError"
	// KindRemoteError: the server answered with a non-success status and
	// no usable content, or the exchange itself failed.
	KindRemoteError ErrorKind = "RemoteError"
	// KindInternalError: anything unanticipated. The message stays
	// generic; internals never leak.
	KindInternalError ErrorKind = "InternalError"
)

// Failure is a typed scrape failure.
type Failure struct {
	Kind    ErrorKind
	Message string
	URL     string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("scrape: %s: %s", f.Kind, f.Message)
}

// Outcome is the terminal value of a scrape: either content fields are
// populated and Failure is nil, or Failure is set and the content fields
// are zero. Nothing else crosses the system boundary.
type Outcome struct {
	URL         string // final URL after redirects (success) or the input URL (failure)
	Content     string
	Title       string
	Description string
	Links       []string
	Truncated   bool
	ByteCount   int
	Failure     *Failure
}

// OK reports whether the scrape succeeded.
func (o *Outcome) OK() bool { return o.Failure == nil }

func fail(kind ErrorKind, url, format string, args ...any) *Outcome {
	return &Outcome{
		URL: url,
		Failure: &Failure{
			Kind:    kind,
			Message: fmt.Sprintf(format, args...),
			URL:     url,
		},
	}
}
