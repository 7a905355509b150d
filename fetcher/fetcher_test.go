package fetcher_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/matthewmueller/logs"
	"github.com/matthewmueller/scrape/fetcher"
)

func TestFetch(t *testing.T) {
	is := is.New(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><body>Hello</body></html>"))
	}))
	defer server.Close()

	f := fetcher.New(logs.Default(), fetcher.Config{})
	res, err := f.Fetch(context.Background(), server.URL)
	is.NoErr(err)
	is.Equal(res.StatusCode, 200)
	is.Equal(string(res.Body), "<html><body>Hello</body></html>")
	is.Equal(res.ContentType, "text/html; charset=utf-8")
	is.Equal(res.FinalURL, server.URL)
	is.True(!res.Truncated)
}

func TestFetchSendsHeaders(t *testing.T) {
	is := is.New(t)
	var gotUA, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept-Encoding")
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := fetcher.New(logs.Default(), fetcher.Config{UserAgent: "test-agent/1.0"})
	_, err := f.Fetch(context.Background(), server.URL)
	is.NoErr(err)
	is.Equal(gotUA, "test-agent/1.0")
	is.Equal(gotAccept, "gzip")
}

func TestFetchTruncatesAtCap(t *testing.T) {
	is := is.New(t)
	body := strings.Repeat("a", 5000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer server.Close()

	f := fetcher.New(logs.Default(), fetcher.Config{MaxContentBytes: 1000})
	res, err := f.Fetch(context.Background(), server.URL)
	is.NoErr(err)
	is.True(res.Truncated)
	is.Equal(len(res.Body), 1000)
	is.Equal(string(res.Body), body[:1000])
}

func TestFetchExactCapNotTruncated(t *testing.T) {
	is := is.New(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("b", 1000)))
	}))
	defer server.Close()

	f := fetcher.New(logs.Default(), fetcher.Config{MaxContentBytes: 1000})
	res, err := f.Fetch(context.Background(), server.URL)
	is.NoErr(err)
	is.True(!res.Truncated)
	is.Equal(len(res.Body), 1000)
}

func TestFetchFollowsRedirects(t *testing.T) {
	is := is.New(t)
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/middle", http.StatusFound)
	})
	mux.HandleFunc("/middle", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/end", http.StatusFound)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("made it"))
	})

	f := fetcher.New(logs.Default(), fetcher.Config{MaxRedirects: 5})
	res, err := f.Fetch(context.Background(), server.URL+"/start")
	is.NoErr(err)
	is.Equal(string(res.Body), "made it")
	is.Equal(res.FinalURL, server.URL+"/end")
}

func TestFetchTooManyRedirects(t *testing.T) {
	is := is.New(t)
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()
	for i := range 10 {
		next := fmt.Sprintf("/hop%d", i+1)
		mux.HandleFunc(fmt.Sprintf("/hop%d", i), func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, next, http.StatusFound)
		})
	}

	f := fetcher.New(logs.Default(), fetcher.Config{MaxRedirects: 3})
	_, err := f.Fetch(context.Background(), server.URL+"/hop0")
	is.True(err != nil)
	is.True(errors.Is(err, fetcher.ErrTooManyRedirects))
}

func TestFetchRedirectToBadScheme(t *testing.T) {
	is := is.New(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "ftp://example.com/file", http.StatusFound)
	}))
	defer server.Close()

	f := fetcher.New(logs.Default(), fetcher.Config{})
	_, err := f.Fetch(context.Background(), server.URL)
	is.True(err != nil)
	is.True(errors.Is(err, fetcher.ErrScheme))
}

func TestFetchTimeout(t *testing.T) {
	is := is.New(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	f := fetcher.New(logs.Default(), fetcher.Config{Timeout: 100 * time.Millisecond})
	_, err := f.Fetch(context.Background(), server.URL)
	is.True(err != nil)
	is.True(errors.Is(err, context.DeadlineExceeded))
}

func TestFetchNon2xxSurfaced(t *testing.T) {
	is := is.New(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("not here"))
	}))
	defer server.Close()

	f := fetcher.New(logs.Default(), fetcher.Config{})
	res, err := f.Fetch(context.Background(), server.URL)
	is.NoErr(err)
	is.Equal(res.StatusCode, 404)
	is.Equal(string(res.Body), "not here")
}
