// File: internal/acquire/fallback.go
package acquire

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/uveworks/vigil/api/schemas"
)

// FallbackSearch scrapes an image search page through the shared automation
// session. It is the second line: the pipeline invokes it only when the
// primary provider errors or returns zero candidates.
type FallbackSearch struct {
	logger  *zap.Logger
	sess    schemas.Session
	pageURL string // %s is replaced with the escaped query
}

var _ schemas.SearchProvider = (*FallbackSearch)(nil)

// NewFallbackSearch creates the browser-driven fallback source.
func NewFallbackSearch(sess schemas.Session, pageURL string, logger *zap.Logger) *FallbackSearch {
	return &FallbackSearch{
		logger:  logger.Named("search_fallback"),
		sess:    sess,
		pageURL: pageURL,
	}
}

// Search navigates to the search page, scrolls to trigger lazy loading, and
// parses image elements out of the rendered document.
func (f *FallbackSearch) Search(ctx context.Context, query schemas.SearchQuery) ([]schemas.ImageCandidate, error) {
	target := fmt.Sprintf(f.pageURL, url.QueryEscape(query.Keywords))
	if err := f.sess.Navigate(ctx, target); err != nil {
		return nil, fmt.Errorf("navigating to fallback search: %w", err)
	}

	// Scroll a few times so lazy-loaded results render.
	for i := 0; i < 3; i++ {
		if err := f.sess.Evaluate(ctx, "window.scrollTo(0, document.body.scrollHeight)", nil); err != nil {
			f.logger.Debug("Fallback scroll failed.", zap.Error(err))
			break
		}
		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	var html string
	if err := f.sess.Evaluate(ctx, "document.documentElement.outerHTML", &html); err != nil {
		return nil, fmt.Errorf("reading rendered page: %w", err)
	}

	candidates, err := parseImageResults(html, query)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("Fallback search completed.",
		zap.String("keywords", query.Keywords),
		zap.Int("hits", len(candidates)))
	return candidates, nil
}

// parseImageResults extracts image candidates from a rendered results page.
func parseImageResults(html string, query schemas.SearchQuery) ([]schemas.ImageCandidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing fallback page: %w", err)
	}

	var candidates []schemas.ImageCandidate
	doc.Find("img").Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		if !ok || src == "" {
			src, ok = sel.Attr("data-src")
		}
		if !ok || !strings.HasPrefix(src, "http") {
			return
		}
		// Skip obvious page chrome.
		if strings.Contains(src, "logo") || strings.Contains(src, "sprite") || strings.Contains(src, "icon") {
			return
		}

		alt := sel.AttrOr("alt", "")
		candidates = append(candidates, schemas.ImageCandidate{
			SourceID:    schemas.SourceFallback,
			URL:         src,
			Width:       attrInt(sel, "width"),
			Height:      attrInt(sel, "height"),
			Description: alt,
			Relevance:   relevance(alt, query.Keywords),
		})
	})
	return candidates, nil
}

func attrInt(sel *goquery.Selection, name string) int {
	v, ok := sel.Attr(name)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
