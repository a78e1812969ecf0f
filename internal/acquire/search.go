// File: internal/acquire/search.go
package acquire

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/uveworks/vigil/api/schemas"
	"github.com/uveworks/vigil/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PrimarySearch queries the image search API over HTTP. Calls are rate
// limited client-side; rate limiting and outages surface as *ProviderError
// so the pipeline can fall back deterministically.
type PrimarySearch struct {
	logger   *zap.Logger
	client   *http.Client
	limiter  *rate.Limiter
	endpoint string
	apiKey   string
}

var _ schemas.SearchProvider = (*PrimarySearch)(nil)

// NewPrimarySearch creates the primary search provider.
func NewPrimarySearch(cfg config.SearchConfig, client *http.Client, logger *zap.Logger) *PrimarySearch {
	if client == nil {
		client = http.DefaultClient
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &PrimarySearch{
		logger:   logger.Named("search_primary"),
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
	}
}

// searchResponse mirrors the API's photo search payload.
type searchResponse struct {
	Total   int `json:"total"`
	Results []struct {
		ID          string `json:"id"`
		Width       int    `json:"width"`
		Height      int    `json:"height"`
		Description string `json:"description"`
		AltDesc     string `json:"alt_description"`
		URLs        struct {
			Full    string `json:"full"`
			Regular string `json:"regular"`
		} `json:"urls"`
	} `json:"results"`
}

// Search performs one rate-limited API call and maps the hits to candidates.
func (p *PrimarySearch) Search(ctx context.Context, query schemas.SearchQuery) ([]schemas.ImageCandidate, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.buildURL(query), nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Client-ID "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &schemas.ProviderError{Reason: schemas.ProviderUnavailable, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &schemas.ProviderError{
			Reason: schemas.ProviderRateLimited,
			Err:    fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	case resp.StatusCode >= 500:
		return nil, &schemas.ProviderError{
			Reason: schemas.ProviderUnavailable,
			Err:    fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("search returned HTTP %d", resp.StatusCode)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	candidates := make([]schemas.ImageCandidate, 0, len(payload.Results))
	for _, hit := range payload.Results {
		u := hit.URLs.Full
		if u == "" {
			u = hit.URLs.Regular
		}
		if u == "" {
			continue
		}
		desc := hit.Description
		if desc == "" {
			desc = hit.AltDesc
		}
		candidates = append(candidates, schemas.ImageCandidate{
			SourceID:    schemas.SourcePrimary,
			URL:         u,
			Width:       hit.Width,
			Height:      hit.Height,
			Description: desc,
			Relevance:   relevance(desc, query.Keywords),
		})
	}

	p.logger.Debug("Primary search completed.",
		zap.String("keywords", query.Keywords),
		zap.Int("hits", len(candidates)))
	return candidates, nil
}

func (p *PrimarySearch) buildURL(query schemas.SearchQuery) string {
	q := url.Values{}
	q.Set("query", query.Keywords)
	if query.Count > 0 {
		q.Set("per_page", strconv.Itoa(query.Count))
	}
	return p.endpoint + "?" + q.Encode()
}

// relevance scores a candidate description against the query keywords: the
// fraction of keywords present in the description.
func relevance(description, keywords string) float64 {
	words := strings.Fields(strings.ToLower(keywords))
	if len(words) == 0 {
		return 0
	}
	desc := strings.ToLower(description)
	hits := 0
	for _, w := range words {
		if strings.Contains(desc, w) {
			hits++
		}
	}
	return float64(hits) / float64(len(words))
}
