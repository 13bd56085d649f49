// Package web reads page content for messages that carry a URL, so the model
// can answer about the linked page instead of the bare link.
package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	userAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	maxContentBytes = 2 * 1024 * 1024
	maxExtractRunes = 4000
)

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// FindURL returns the first http(s) URL in free text, or "".
func FindURL(text string) string {
	return urlPattern.FindString(text)
}

// IsYouTubeURL reports whether the URL points at a YouTube watch page.
func IsYouTubeURL(rawURL string) bool {
	return strings.Contains(rawURL, "youtube.com/watch") || strings.Contains(rawURL, "youtu.be/")
}

// Reader fetches a page and reduces it to prompt-sized text.
type Reader struct {
	httpClient *http.Client
}

func NewReader() *Reader {
	return &Reader{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
	}
}

// Read fetches the URL and returns title, description, and body text capped
// at a prompt-friendly size.
func (r *Reader) Read(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create fetch request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status=%d", rawURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxContentBytes))
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", rawURL, err)
	}

	if IsYouTubeURL(rawURL) {
		return extractYouTube(doc), nil
	}
	return extractArticle(doc), nil
}

func extractArticle(doc *goquery.Document) string {
	var parts []string

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		parts = append(parts, title)
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		if desc = strings.TrimSpace(desc); desc != "" {
			parts = append(parts, desc)
		}
	}

	doc.Find("script, style, noscript, nav, footer").Remove()
	doc.Find("h1, h2, h3, p, article, li").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			parts = append(parts, text)
		}
	})

	return capRunes(strings.Join(parts, "\n"), maxExtractRunes)
}

// extractYouTube pulls the title and description the watch page embeds in
// meta tags. Full transcripts need an authenticated API and are out of reach
// of a plain fetch.
func extractYouTube(doc *goquery.Document) string {
	var parts []string
	if title, ok := doc.Find(`meta[name="title"]`).Attr("content"); ok && title != "" {
		parts = append(parts, "Video: "+title)
	} else if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		parts = append(parts, "Video: "+title)
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		if desc = strings.TrimSpace(desc); desc != "" {
			parts = append(parts, desc)
		}
	}
	return capRunes(strings.Join(parts, "\n"), maxExtractRunes)
}

func capRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
