// File: internal/acquire/pipeline.go
package acquire

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/uveworks/vigil/api/schemas"
)

// Pipeline runs the four acquisition stages in order: search, filter,
// download, upload. Only a dead automation session aborts the pipeline;
// everything else narrows the funnel and is recorded in the summary.
type Pipeline struct {
	logger   *zap.Logger
	primary  schemas.SearchProvider
	fallback schemas.SearchProvider
	filter   *Filter
	download *Downloader
	upload   *Uploader
	count    int
}

// NewPipeline assembles the acquisition pipeline.
func NewPipeline(
	primary, fallback schemas.SearchProvider,
	filter *Filter,
	download *Downloader,
	upload *Uploader,
	count int,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		logger:   logger.Named("acquire"),
		primary:  primary,
		fallback: fallback,
		filter:   filter,
		download: download,
		upload:   upload,
		count:    count,
	}
}

// Run executes the pipeline for one query. The returned summary always
// satisfies searched >= filtered >= downloaded >= uploaded and
// uploaded + failed = downloaded, even on partial failure.
func (p *Pipeline) Run(ctx context.Context, query schemas.SearchQuery, meta schemas.UploadMetadata) (*schemas.AcquisitionSummary, error) {
	summary := &schemas.AcquisitionSummary{}

	// -- Stage 1: search --
	candidates, usedFallback, err := p.search(ctx, query)
	if err != nil {
		return summary, err
	}
	summary.Searched = len(candidates)
	summary.FallbackUsed = usedFallback
	if len(candidates) == 0 {
		p.logger.Warn("No candidates from any source.", zap.String("keywords", query.Keywords))
		return summary, nil
	}

	// -- Stage 2: filter --
	filtered := p.filter.Apply(candidates, p.count)
	summary.Filtered = len(filtered)
	if len(filtered) == 0 {
		p.logger.Warn("All candidates rejected by the quality filter.")
		return summary, nil
	}

	// -- Stage 3: download --
	downloads := p.download.FetchAll(ctx, filtered)
	summary.Downloads = downloads
	for _, task := range downloads {
		if task.Status == schemas.TaskSucceeded {
			summary.Downloaded++
		}
	}
	if summary.Downloaded == 0 {
		p.logger.Warn("Every download failed.")
		return summary, nil
	}

	// -- Stage 4: upload --
	uploads, uploadErr := p.upload.UploadAll(ctx, downloads, meta)
	summary.Uploads = uploads
	for _, task := range uploads {
		if task.Status == schemas.TaskSucceeded {
			summary.Uploaded++
		}
	}
	summary.Failed = summary.Downloaded - summary.Uploaded

	p.logger.Info("Acquisition finished.",
		zap.Int("searched", summary.Searched),
		zap.Int("filtered", summary.Filtered),
		zap.Int("downloaded", summary.Downloaded),
		zap.Int("uploaded", summary.Uploaded),
		zap.Bool("fallback_used", summary.FallbackUsed))

	if uploadErr != nil && errors.Is(uploadErr, schemas.ErrSessionUnavailable) {
		return summary, uploadErr
	}
	return summary, nil
}

// search tries the primary provider and falls back if and only if the
// primary errored or returned zero candidates.
func (p *Pipeline) search(ctx context.Context, query schemas.SearchQuery) ([]schemas.ImageCandidate, bool, error) {
	candidates, err := p.primary.Search(ctx, query)
	if err == nil && len(candidates) > 0 {
		return candidates, false, nil
	}

	if err != nil {
		p.logger.Warn("Primary search failed; falling back.", zap.Error(err))
	} else {
		p.logger.Info("Primary search returned nothing; falling back.")
	}

	if p.fallback == nil {
		if err != nil {
			return nil, false, fmt.Errorf("primary search failed and no fallback configured: %w", err)
		}
		return nil, false, nil
	}

	fbCandidates, fbErr := p.fallback.Search(ctx, query)
	if fbErr != nil {
		if errors.Is(fbErr, schemas.ErrSessionUnavailable) {
			return nil, true, fbErr
		}
		p.logger.Error("Fallback search failed too.", zap.Error(fbErr))
		return nil, true, nil
	}
	return fbCandidates, true, nil
}
