package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-shiori/go-readability"

	"github.com/dataworks-ops/automator/internal/capability"
)

// RendererPlain fetches raw HTML over net/http; RendererChromedp drives a
// headless browser first so script-rendered pages yield content.
const (
	RendererPlain    = "plain"
	RendererChromedp = "chromedp"
)

// Fetcher retrieves the rendered HTML of a page.
type Fetcher interface {
	FetchHTML(ctx context.Context, pageURL string) (string, error)
}

// NewFetcher selects the configured renderer.
func NewFetcher(renderer string) (Fetcher, error) {
	switch renderer {
	case "", RendererPlain:
		return plainFetcher{}, nil
	case RendererChromedp:
		return chromedpFetcher{}, nil
	default:
		return nil, fmt.Errorf("unsupported scrape renderer: %s", renderer)
	}
}

type plainFetcher struct{}

func (plainFetcher) FetchHTML(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "automator/1.0 (+ops@dataworks.example)")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Descriptor returns the scrape_page capability: fetch a page and extract
// the readable article text.
func Descriptor(fetcher Fetcher, maxChars int) capability.Descriptor {
	if maxChars <= 0 {
		maxChars = 20000
	}
	return capability.Descriptor{
		Name:        "scrape_page",
		Description: "Fetch a web page and extract its readable text content and title.",
		SideEffect:  capability.SideEffectNetwork,
		InputSchema: capability.ObjectSchema(map[string]interface{}{
			"url": map[string]interface{}{"type": "string"},
		}, "url"),
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			pageURL, _ := args["url"].(string)
			if strings.TrimSpace(pageURL) == "" {
				return "", fmt.Errorf("url is required")
			}
			html, err := fetcher.FetchHTML(ctx, pageURL)
			if err != nil {
				return "", fmt.Errorf("fetch %s: %w", pageURL, err)
			}

			article, err := readability.FromReader(strings.NewReader(html), mustParseURL(pageURL))
			if err != nil {
				return "", fmt.Errorf("extract: %w", err)
			}
			text := strings.TrimSpace(article.TextContent)
			if len(text) > maxChars {
				text = text[:maxChars]
			}
			title := strings.TrimSpace(article.Title)
			if title == "" {
				return text, nil
			}
			return title + "\n\n" + text, nil
		},
	}
}

func mustParseURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		return &url.URL{}
	}
	return u
}
