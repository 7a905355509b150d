package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
)

// sniffWindow is how far into the body we look for a meta charset
// declaration. Tunable; 1024 bytes matches the HTML standard's prescan.
const sniffWindow = 1024

// ErrDecode is returned when content-encoding or charset processing fails
// unrecoverably.
var ErrDecode = errors.New("fetcher: decode failed")

// Document is a decoded text document, ready for extraction.
type Document struct {
	Text        string
	Charset     string
	ContentType string
	FinalURL    string
	Truncated   bool
}

// Decode resolves the response's content-encoding and character set,
// producing a text document. Truncation is propagated unchanged. Bad bytes
// never hard-fail charset decoding: the fallback is UTF-8 with U+FFFD
// replacement.
func Decode(res *Response) (*Document, error) {
	body, err := decompress(res)
	if err != nil {
		return nil, err
	}

	text, name := decodeCharset(body, res.ContentType)

	// Servers that omit Content-Type still serve HTML; sniff so the
	// extractor doesn't pass raw markup through as plain text.
	contentType := res.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}

	return &Document{
		Text:        text,
		Charset:     name,
		ContentType: contentType,
		FinalURL:    res.FinalURL,
		Truncated:   res.Truncated,
	}, nil
}

// decompress reverses the response's Content-Encoding. A compressed stream
// cut off by the byte cap decodes best-effort: whatever decompressed
// cleanly is kept. Corruption on a complete body is a decode error.
func decompress(res *Response) ([]byte, error) {
	enc := strings.ToLower(strings.TrimSpace(res.ContentEncoding))
	switch enc {
	case "", "identity":
		return res.Body, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(res.Body))
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %s", ErrDecode, err)
		}
		return readCompressed(zr, res.Truncated, "gzip")
	case "deflate":
		// Some servers send zlib-wrapped deflate, others raw. Try both.
		if zr, err := zlib.NewReader(bytes.NewReader(res.Body)); err == nil {
			return readCompressed(zr, res.Truncated, "deflate")
		}
		return readCompressed(flate.NewReader(bytes.NewReader(res.Body)), res.Truncated, "deflate")
	default:
		return nil, fmt.Errorf("%w: unsupported content encoding %q", ErrDecode, res.ContentEncoding)
	}
}

func readCompressed(r io.Reader, truncated bool, name string) ([]byte, error) {
	out, err := io.ReadAll(r)
	if err != nil {
		if truncated && len(out) > 0 {
			// The byte cap cut the stream mid-block; keep what decoded.
			return out, nil
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrDecode, name, err)
	}
	return out, nil
}

// decodeCharset converts body to UTF-8. Resolution order: the Content-Type
// charset parameter, then a meta/BOM sniff of the first sniffWindow bytes,
// then UTF-8 with replacement of invalid sequences.
func decodeCharset(body []byte, contentType string) (text, name string) {
	if e, label := headerCharset(contentType); e != nil {
		return decodeWith(e, body), label
	}

	window := body
	if len(window) > sniffWindow {
		window = window[:sniffWindow]
	}
	// A meta-declared charset is checked before DetermineEncoding because
	// its windows-1252 result is ambiguous: every latin-1-family label
	// canonicalizes to windows-1252 with certain=false, identical to the
	// no-declaration default.
	if e, label := metaCharset(window); e != nil {
		return decodeWith(e, body), label
	}
	if e, label, certain := charset.DetermineEncoding(window, ""); certain {
		return decodeWith(e, body), label
	}
	// Nothing declared anywhere: the universal default.
	return replaceInvalidUTF8(body), "utf-8"
}

// metaCharset scans the prescan window for <meta charset="..."> or
// <meta http-equiv="Content-Type" content="...; charset=...">.
func metaCharset(window []byte) (encoding.Encoding, string) {
	z := html.NewTokenizer(bytes.NewReader(window))
	for {
		switch z.Next() {
		case html.ErrorToken:
			// EOF, or a tag cut off by the window boundary.
			return nil, ""
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if !bytes.Equal(name, []byte("meta")) || !hasAttr {
				continue
			}
			var label, httpEquiv, content string
			for {
				key, val, more := z.TagAttr()
				switch string(key) {
				case "charset":
					label = string(val)
				case "http-equiv":
					httpEquiv = string(val)
				case "content":
					content = string(val)
				}
				if !more {
					break
				}
			}
			if label == "" && strings.EqualFold(httpEquiv, "content-type") {
				if _, params, err := mime.ParseMediaType(content); err == nil {
					label = params["charset"]
				}
			}
			if label != "" {
				if e, canonical := charset.Lookup(label); e != nil {
					return e, canonical
				}
			}
		}
	}
}

func headerCharset(contentType string) (encoding.Encoding, string) {
	if contentType == "" {
		return nil, ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, ""
	}
	label := params["charset"]
	if label == "" {
		return nil, ""
	}
	e, canonical := charset.Lookup(label)
	if e == nil {
		return nil, ""
	}
	return e, canonical
}

func decodeWith(e encoding.Encoding, body []byte) string {
	out, err := e.NewDecoder().Bytes(body)
	if err != nil {
		return replaceInvalidUTF8(body)
	}
	return replaceInvalidUTF8(out)
}

func replaceInvalidUTF8(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}
