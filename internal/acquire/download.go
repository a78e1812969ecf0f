// File: internal/acquire/download.go
package acquire

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/uveworks/vigil/api/schemas"
	"github.com/uveworks/vigil/internal/config"
	"github.com/uveworks/vigil/internal/retry"
)

// Downloader fetches filtered candidates to local files. Downloads run
// concurrently under a semaphore bound; each candidate gets its own retry
// budget, and one candidate's failure never affects the others.
type Downloader struct {
	logger      *zap.Logger
	client      *http.Client
	dir         string
	concurrency int64
	policy      retry.Policy

	// verifyDelay is the pause between the two size polls of the
	// verification check. Tests shorten it.
	verifyDelay time.Duration
}

// NewDownloader creates a bounded, retrying downloader.
func NewDownloader(cfg config.AcquireConfig, client *http.Client, logger *zap.Logger) *Downloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Downloader{
		logger:      logger.Named("download"),
		client:      client,
		dir:         cfg.DownloadDir,
		concurrency: int64(cfg.Concurrency),
		policy: retry.Policy{
			MaxAttempts: cfg.MaxRetries,
			Backoff:     retry.ExponentialBackoff(cfg.BackoffBase),
		},
		verifyDelay: 200 * time.Millisecond,
	}
}

// FetchAll downloads every candidate and returns one task per candidate, in
// input order.
func (d *Downloader) FetchAll(ctx context.Context, candidates []schemas.ImageCandidate) []*schemas.DownloadTask {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		d.logger.Error("Cannot create download directory.", zap.Error(err))
	}

	tasks := make([]*schemas.DownloadTask, len(candidates))
	for i, c := range candidates {
		tasks[i] = &schemas.DownloadTask{
			ID:        uuid.New().String(),
			Candidate: c,
			Status:    schemas.TaskPending,
		}
	}

	sem := semaphore.NewWeighted(d.concurrency)
	var wg sync.WaitGroup
	for _, task := range tasks {
		if err := sem.Acquire(ctx, 1); err != nil {
			task.Status = schemas.TaskFailed
			task.Error = err.Error()
			continue
		}
		wg.Add(1)
		go func(task *schemas.DownloadTask) {
			defer wg.Done()
			defer sem.Release(1)
			d.fetch(ctx, task)
		}(task)
	}
	wg.Wait()
	return tasks
}

// fetch runs one candidate through the retry policy and verification.
func (d *Downloader) fetch(ctx context.Context, task *schemas.DownloadTask) {
	start := time.Now()
	task.Status = schemas.TaskRunning

	attempts, err := d.policy.Do(ctx, func(ctx context.Context) error {
		return d.fetchOnce(ctx, task)
	})
	task.Attempts = attempts
	task.Duration = time.Since(start)

	if err != nil {
		task.Status = schemas.TaskFailed
		task.Error = fmt.Sprintf("%v: %v", schemas.ErrDownloadFailure, err)
		d.logger.Warn("Download failed.",
			zap.String("url", task.Candidate.URL),
			zap.Int("attempts", attempts),
			zap.Error(err))
		return
	}

	task.Status = schemas.TaskSucceeded
	d.logger.Debug("Download succeeded.",
		zap.String("url", task.Candidate.URL),
		zap.String("dest", task.Dest),
		zap.Int64("size", task.Size))
}

func (d *Downloader) fetchOnce(ctx context.Context, task *schemas.DownloadTask) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, task.Candidate.URL, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	dest := filepath.Join(d.dir, task.ID+extensionFor(resp.Header.Get("Content-Type"), task.Candidate.URL))
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(dest)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return err
	}

	size, err := d.verify(ctx, dest)
	if err != nil {
		os.Remove(dest)
		return err
	}

	task.Dest = dest
	task.Size = size
	return nil
}

// verify confirms the file is non-empty and its size is stable across two
// polls, which guards against truncated writes still being flushed.
func (d *Downloader) verify(ctx context.Context, path string) (int64, error) {
	first, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if first.Size() == 0 {
		return 0, fmt.Errorf("downloaded file is empty")
	}

	select {
	case <-time.After(d.verifyDelay):
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	second, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if second.Size() != first.Size() {
		return 0, fmt.Errorf("file size still changing (%d -> %d)", first.Size(), second.Size())
	}
	return second.Size(), nil
}

// extensionFor infers a file extension from the Content-Type header, falling
// back to the URL path, then to .img.
func extensionFor(contentType, rawURL string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err == nil {
		switch mediaType {
		case "image/jpeg":
			return ".jpg"
		case "image/png":
			return ".png"
		case "image/gif":
			return ".gif"
		case "image/webp":
			return ".webp"
		case "image/svg+xml":
			return ".svg"
		}
	}
	if ext := strings.ToLower(filepath.Ext(strippedPath(rawURL))); ext != "" && len(ext) <= 5 {
		return ext
	}
	return ".img"
}

func strippedPath(rawURL string) string {
	if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}
