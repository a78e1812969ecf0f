// File: internal/acquire/filter.go
package acquire

import (
	"sort"

	"go.uber.org/zap"

	"github.com/uveworks/vigil/api/schemas"
	"github.com/uveworks/vigil/internal/config"
)

// Filter applies the quality gate to search candidates: minimum dimensions,
// an aspect ratio band, a relevance floor, and URL dedup. Candidates are
// never mutated; the filter only selects and orders.
type Filter struct {
	logger         *zap.Logger
	minWidth       int
	minHeight      int
	minAspectRatio float64
	maxAspectRatio float64
	minRelevance   float64
}

// NewFilter creates the candidate quality filter.
func NewFilter(cfg config.AcquireConfig, logger *zap.Logger) *Filter {
	return &Filter{
		logger:         logger.Named("filter"),
		minWidth:       cfg.MinWidth,
		minHeight:      cfg.MinHeight,
		minAspectRatio: cfg.MinAspectRatio,
		maxAspectRatio: cfg.MaxAspectRatio,
		minRelevance:   cfg.MinRelevance,
	}
}

// Apply returns the accepted candidates ordered by relevance (highest first;
// ties keep input order). Every accepted candidate satisfies the minimum
// dimensions, so candidates with unknown dimensions are rejected too.
func (f *Filter) Apply(candidates []schemas.ImageCandidate, limit int) []schemas.ImageCandidate {
	seen := make(map[string]bool, len(candidates))
	accepted := make([]schemas.ImageCandidate, 0, len(candidates))

	for _, c := range candidates {
		if c.URL == "" || seen[c.URL] {
			continue
		}
		if !f.acceptable(c) {
			continue
		}
		seen[c.URL] = true
		accepted = append(accepted, c)
	}

	// Stable keeps declaration order among equal relevance scores.
	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].Relevance > accepted[j].Relevance
	})

	if limit > 0 && len(accepted) > limit {
		accepted = accepted[:limit]
	}

	f.logger.Debug("Filter applied.",
		zap.Int("in", len(candidates)),
		zap.Int("out", len(accepted)))
	return accepted
}

func (f *Filter) acceptable(c schemas.ImageCandidate) bool {
	if c.Width < f.minWidth || c.Height < f.minHeight {
		return false
	}
	if c.Relevance < f.minRelevance {
		return false
	}
	ratio := float64(c.Width) / float64(c.Height)
	return ratio >= f.minAspectRatio && ratio <= f.maxAspectRatio
}
