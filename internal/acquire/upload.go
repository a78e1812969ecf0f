// File: internal/acquire/upload.go
package acquire

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uveworks/vigil/api/schemas"
	"github.com/uveworks/vigil/internal/config"
	"github.com/uveworks/vigil/internal/retry"
)

// Uploader pushes downloaded files into the target application through the
// shared automation session. Uploads are strictly sequential: the session is
// a serialized actor, and each upload is verified against the gallery count
// before the next begins.
type Uploader struct {
	logger *zap.Logger
	sess   schemas.Session
	cfg    config.AcquireConfig
	base   string
	policy retry.Policy
}

// NewUploader creates the session-driven uploader for the given target base
// URL.
func NewUploader(sess schemas.Session, cfg config.AcquireConfig, baseURL string, logger *zap.Logger) *Uploader {
	return &Uploader{
		logger: logger.Named("upload"),
		sess:   sess,
		cfg:    cfg,
		base:   strings.TrimRight(baseURL, "/"),
		policy: retry.Policy{
			MaxAttempts: cfg.MaxRetries,
			Backoff:     retry.ExponentialBackoff(cfg.BackoffBase),
		},
	}
}

const galleryCountScript = `document.querySelectorAll("[data-media-item], .media-item, .gallery-item").length`

// UploadAll uploads every successfully downloaded file in order and returns
// one task per file. A dead session or caller cancellation aborts the
// remainder; any other failure is isolated to its file.
func (u *Uploader) UploadAll(ctx context.Context, downloads []*schemas.DownloadTask, meta schemas.UploadMetadata) ([]*schemas.UploadTask, error) {
	tasks := make([]*schemas.UploadTask, 0, len(downloads))
	for _, dl := range downloads {
		if dl.Status != schemas.TaskSucceeded {
			continue
		}

		task := &schemas.UploadTask{
			ID:       uuid.New().String(),
			FilePath: dl.Dest,
			Status:   schemas.TaskRunning,
		}
		tasks = append(tasks, task)

		attempts, err := u.policy.Do(ctx, func(ctx context.Context) error {
			return u.uploadOne(ctx, dl.Dest, meta)
		})
		task.Attempts = attempts

		if err != nil {
			task.Status = schemas.TaskFailed
			if errors.Is(err, schemas.ErrSessionUnavailable) || ctx.Err() != nil {
				task.Error = err.Error()
				return tasks, err
			}
			task.Error = fmt.Sprintf("%v: %v", schemas.ErrUploadFailure, err)
			u.logger.Warn("Upload failed.", zap.String("file", dl.Dest), zap.Error(err))
			continue
		}
		task.Status = schemas.TaskSucceeded
		u.logger.Info("Upload verified.", zap.String("file", dl.Dest))
	}
	return tasks, nil
}

// uploadOne drives one file through the upload form and verifies the gallery
// grew by exactly one item.
func (u *Uploader) uploadOne(ctx context.Context, path string, meta schemas.UploadMetadata) error {
	var before int
	if err := u.countGallery(ctx, &before); err != nil {
		return fmt.Errorf("reading gallery count: %w", err)
	}

	if err := u.sess.Navigate(ctx, u.base+u.cfg.UploadPath); err != nil {
		return fmt.Errorf("opening upload form: %w", err)
	}
	if err := u.sess.SetFiles(ctx, u.cfg.UploadSelector, []string{path}); err != nil {
		return fmt.Errorf("attaching file: %w", err)
	}

	if err := u.fillMetadata(ctx, meta); err != nil {
		return err
	}

	if err := u.sess.Click(ctx, `button[type="submit"]`); err != nil {
		return fmt.Errorf("submitting upload: %w", err)
	}
	if err := u.sess.WaitVisible(ctx, ".upload-success, [data-upload-done]", 15*time.Second); err != nil {
		return fmt.Errorf("waiting for upload confirmation: %w", err)
	}

	var after int
	if err := u.countGallery(ctx, &after); err != nil {
		return fmt.Errorf("re-reading gallery count: %w", err)
	}
	if after != before+1 {
		return fmt.Errorf("gallery count went %d -> %d, expected %d", before, after, before+1)
	}
	return nil
}

func (u *Uploader) countGallery(ctx context.Context, out *int) error {
	if err := u.sess.Navigate(ctx, u.base+u.cfg.GalleryPath); err != nil {
		return err
	}
	return u.sess.Evaluate(ctx, galleryCountScript, out)
}

// fillMetadata types the category, tags, and description into the form when
// the metadata carries them.
func (u *Uploader) fillMetadata(ctx context.Context, meta schemas.UploadMetadata) error {
	if meta.Category != "" {
		if err := u.sess.TypeText(ctx, `[name="category"]`, meta.Category); err != nil {
			return fmt.Errorf("setting category: %w", err)
		}
	}
	if len(meta.Tags) > 0 {
		if err := u.sess.TypeText(ctx, `[name="tags"]`, strings.Join(meta.Tags, ", ")); err != nil {
			return fmt.Errorf("setting tags: %w", err)
		}
	}
	if meta.Description != "" {
		if err := u.sess.TypeText(ctx, `[name="description"]`, meta.Description); err != nil {
			return fmt.Errorf("setting description: %w", err)
		}
	}
	return nil
}
