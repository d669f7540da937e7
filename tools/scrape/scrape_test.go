package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type staticFetcher string

func (f staticFetcher) FetchHTML(context.Context, string) (string, error) {
	return string(f), nil
}

type failingFetcher struct{}

func (failingFetcher) FetchHTML(context.Context, string) (string, error) {
	return "", fmt.Errorf("connection refused")
}

const samplePage = `<html><head><title>Release Notes</title></head><body>
<nav>home | about | contact</nav>
<article><h1>Release Notes</h1>
<p>Version two ships the new export pipeline. It processes batches twice as
fast as the previous release and fixes the checkpoint bug reported last month.</p>
<p>Upgrading requires no schema changes. Rolling restarts are supported.</p>
</article>
<footer>copyright</footer></body></html>`

func TestScrapeExtractsArticle(t *testing.T) {
	desc := Descriptor(staticFetcher(samplePage), 0)

	out, err := desc.Handler(context.Background(), map[string]interface{}{"url": "https://example.com/notes"})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !strings.Contains(out, "Release Notes") {
		t.Fatalf("expected title, got %q", out)
	}
	if !strings.Contains(out, "export pipeline") {
		t.Fatalf("expected article text, got %q", out)
	}
}

func TestScrapeCapsOutput(t *testing.T) {
	long := samplePage + strings.Repeat("<p>filler paragraph with enough words to count.</p>", 200)
	desc := Descriptor(staticFetcher(long), 100)

	out, err := desc.Handler(context.Background(), map[string]interface{}{"url": "https://example.com/long"})
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	// Title plus capped text.
	if len(out) > 200 {
		t.Fatalf("expected capped output, got %d chars", len(out))
	}
}

func TestScrapeFetchFailure(t *testing.T) {
	desc := Descriptor(failingFetcher{}, 0)
	if _, err := desc.Handler(context.Background(), map[string]interface{}{"url": "https://down.example.com"}); err == nil {
		t.Fatal("expected fetch error")
	}
}

func TestScrapeRequiresURL(t *testing.T) {
	desc := Descriptor(staticFetcher(""), 0)
	if _, err := desc.Handler(context.Background(), map[string]interface{}{"url": " "}); err == nil {
		t.Fatal("expected error for missing url")
	}
}

func TestPlainFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	html, err := plainFetcher{}.FetchHTML(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("FetchHTML: %v", err)
	}
	if !strings.Contains(html, "export pipeline") {
		t.Fatalf("unexpected html %q", html)
	}
}

func TestNewFetcherSelection(t *testing.T) {
	if _, err := NewFetcher(""); err != nil {
		t.Fatalf("default renderer: %v", err)
	}
	if _, err := NewFetcher(RendererChromedp); err != nil {
		t.Fatalf("chromedp renderer: %v", err)
	}
	if _, err := NewFetcher("phantomjs"); err == nil {
		t.Fatal("expected error for unknown renderer")
	}
}
