// File: internal/acquire/acquire_test.go
package acquire

import (
	"context"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uveworks/vigil/api/schemas"
	"github.com/uveworks/vigil/internal/config"
)

func testAcquireConfig(t *testing.T) config.AcquireConfig {
	t.Helper()
	cfg := config.NewDefaultConfig().Acquire
	cfg.DownloadDir = t.TempDir()
	cfg.BackoffBase = time.Millisecond
	return cfg
}

// -- Primary Search Tests --

func TestPrimarySearchMapsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "mountain lake", r.URL.Query().Get("query"))
		assert.Equal(t, "Client-ID test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"total": 2,
			"results": [
				{"id": "a", "width": 4000, "height": 3000,
				 "description": "a mountain lake at dawn",
				 "urls": {"full": "https://img.test/a-full.jpg"}},
				{"id": "b", "width": 1200, "height": 800,
				 "alt_description": "lake",
				 "urls": {"regular": "https://img.test/b.jpg"}}
			]
		}`))
	}))
	defer srv.Close()

	provider := NewPrimarySearch(config.SearchConfig{
		Endpoint:  srv.URL,
		APIKey:    "test-key",
		RateLimit: 100,
		Burst:     1,
	}, srv.Client(), zap.NewNop())

	candidates, err := provider.Search(context.Background(), schemas.SearchQuery{
		Keywords: "mountain lake", Count: 10,
	})
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, schemas.SourcePrimary, candidates[0].SourceID)
	assert.Equal(t, "https://img.test/a-full.jpg", candidates[0].URL)
	assert.Equal(t, 4000, candidates[0].Width)
	assert.Equal(t, 1.0, candidates[0].Relevance, "both keywords present")
	assert.Equal(t, 0.5, candidates[1].Relevance, "one of two keywords present")
}

func TestPrimarySearchProviderErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		reason schemas.ProviderReason
	}{
		{"rate limited", http.StatusTooManyRequests, schemas.ProviderRateLimited},
		{"server error", http.StatusBadGateway, schemas.ProviderUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			provider := NewPrimarySearch(config.SearchConfig{
				Endpoint: srv.URL, RateLimit: 100, Burst: 1,
			}, srv.Client(), zap.NewNop())

			_, err := provider.Search(context.Background(), schemas.SearchQuery{Keywords: "x"})
			require.Error(t, err)
			var pe *schemas.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tc.reason, pe.Reason)
		})
	}
}

// -- Fallback Parsing Tests --

func TestParseImageResults(t *testing.T) {
	html := `<html><body>
		<img src="https://site.test/logo.png" alt="site logo">
		<img src="https://img.test/photo1.jpg" alt="mountain lake" width="1600" height="900">
		<img data-src="https://img.test/photo2.jpg" alt="forest">
		<img src="/relative/skipped.jpg">
	</body></html>`

	candidates, err := parseImageResults(html, schemas.SearchQuery{Keywords: "mountain lake"})
	require.NoError(t, err)
	require.Len(t, candidates, 2, "logo and relative URLs are skipped")

	assert.Equal(t, schemas.SourceFallback, candidates[0].SourceID)
	assert.Equal(t, "https://img.test/photo1.jpg", candidates[0].URL)
	assert.Equal(t, 1600, candidates[0].Width)
	assert.Equal(t, 1.0, candidates[0].Relevance)
	assert.Equal(t, "https://img.test/photo2.jpg", candidates[1].URL)
}

// -- Filter Tests --

func TestFilterQualityGate(t *testing.T) {
	cfg := testAcquireConfig(t)
	filter := NewFilter(cfg, zap.NewNop())

	candidates := []schemas.ImageCandidate{
		{URL: "https://img.test/good-large.jpg", Width: 1920, Height: 1080, Relevance: 0.5},
		{URL: "https://img.test/too-small.jpg", Width: 320, Height: 240, Relevance: 1.0},
		{URL: "https://img.test/banner.jpg", Width: 3000, Height: 400, Relevance: 1.0},
		{URL: "https://img.test/unknown-dims.jpg", Relevance: 0.9},
		{URL: "https://img.test/good-square.jpg", Width: 1024, Height: 1024, Relevance: 0.9},
		{URL: "https://img.test/good-large.jpg", Width: 1920, Height: 1080, Relevance: 0.5},
	}

	filtered := filter.Apply(candidates, 0)
	require.Len(t, filtered, 2, "small, extreme aspect, unknown dims, and duplicate are rejected")

	// Ordered by relevance, highest first; every survivor meets the minimums.
	assert.Equal(t, "https://img.test/good-square.jpg", filtered[0].URL)
	assert.Equal(t, "https://img.test/good-large.jpg", filtered[1].URL)
	for _, c := range filtered {
		assert.GreaterOrEqual(t, c.Width, cfg.MinWidth)
		assert.GreaterOrEqual(t, c.Height, cfg.MinHeight)
	}
}

func TestFilterRelevanceFloor(t *testing.T) {
	cfg := testAcquireConfig(t)
	cfg.MinRelevance = 0.5
	filter := NewFilter(cfg, zap.NewNop())

	candidates := []schemas.ImageCandidate{
		{URL: "https://img.test/on-topic.jpg", Width: 1920, Height: 1080, Relevance: 0.8},
		{URL: "https://img.test/off-topic.jpg", Width: 1920, Height: 1080, Relevance: 0.2},
	}

	filtered := filter.Apply(candidates, 0)
	require.Len(t, filtered, 1)
	assert.Equal(t, "https://img.test/on-topic.jpg", filtered[0].URL)
}

func TestFilterLimit(t *testing.T) {
	cfg := testAcquireConfig(t)
	filter := NewFilter(cfg, zap.NewNop())

	candidates := make([]schemas.ImageCandidate, 10)
	for i := range candidates {
		candidates[i] = schemas.ImageCandidate{
			URL: "https://img.test/" + string(rune('a'+i)) + ".jpg", Width: 1920, Height: 1080,
		}
	}
	assert.Len(t, filter.Apply(candidates, 3), 3)
}

// -- Downloader Tests --

func TestDownloaderRetriesFlakyServer(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	cfg := testAcquireConfig(t)
	dl := NewDownloader(cfg, srv.Client(), zap.NewNop())
	dl.verifyDelay = time.Millisecond

	tasks := dl.FetchAll(context.Background(), []schemas.ImageCandidate{{URL: srv.URL + "/photo"}})
	require.Len(t, tasks, 1)

	task := tasks[0]
	assert.Equal(t, schemas.TaskSucceeded, task.Status)
	assert.Equal(t, 3, task.Attempts)
	assert.Equal(t, int64(len("jpeg-bytes")), task.Size)
	assert.True(t, strings.HasSuffix(task.Dest, ".jpg"), "extension inferred from Content-Type, got %s", task.Dest)
}

func TestDownloaderExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := testAcquireConfig(t)
	dl := NewDownloader(cfg, srv.Client(), zap.NewNop())
	dl.verifyDelay = time.Millisecond

	tasks := dl.FetchAll(context.Background(), []schemas.ImageCandidate{{URL: srv.URL + "/gone"}})
	task := tasks[0]
	assert.Equal(t, schemas.TaskFailed, task.Status)
	assert.Equal(t, cfg.MaxRetries, task.Attempts, "attempts never exceed the cap")
	assert.Contains(t, task.Error, "download failed")
}

func TestDownloaderRejectsEmptyFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
	}))
	defer srv.Close()

	cfg := testAcquireConfig(t)
	cfg.MaxRetries = 1
	dl := NewDownloader(cfg, srv.Client(), zap.NewNop())
	dl.verifyDelay = time.Millisecond

	tasks := dl.FetchAll(context.Background(), []schemas.ImageCandidate{{URL: srv.URL + "/empty"}})
	assert.Equal(t, schemas.TaskFailed, tasks[0].Status)
	assert.Contains(t, tasks[0].Error, "empty")
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".jpg", extensionFor("image/jpeg", ""))
	assert.Equal(t, ".png", extensionFor("image/png; charset=binary", ""))
	assert.Equal(t, ".webp", extensionFor("image/webp", ""))
	assert.Equal(t, ".gif", extensionFor("", "https://x.test/anim.gif?w=100"))
	assert.Equal(t, ".img", extensionFor("application/octet-stream", "https://x.test/blob"))
}

// -- Upload Session Fake --

// gallerySession simulates the target app's upload form and gallery.
type gallerySession struct {
	galleryCount  int
	failSubmit    bool
	navErr        error
	uploaded      []string
	typed         map[string]string
	pendingUpload string
}

func newGallerySession(initial int) *gallerySession {
	return &gallerySession{galleryCount: initial, typed: map[string]string{}}
}

func (g *gallerySession) ID() string                                 { return "gallery" }
func (g *gallerySession) Navigate(context.Context, string) error     { return g.navErr }
func (g *gallerySession) ScrollTo(context.Context, string) error     { return nil }
func (g *gallerySession) Reload(context.Context) error               { return nil }
func (g *gallerySession) Screenshot(context.Context) ([]byte, error) { return nil, nil }
func (g *gallerySession) ConsoleEvents() []schemas.ConsoleEntry      { return nil }
func (g *gallerySession) NetworkEvents() []schemas.NetworkEntry      { return nil }
func (g *gallerySession) ResetEvidence()                             {}
func (g *gallerySession) Close(context.Context) error                { return nil }

func (g *gallerySession) TypeText(_ context.Context, sel, text string) error {
	g.typed[sel] = text
	return nil
}

func (g *gallerySession) SetFiles(_ context.Context, _ string, paths []string) error {
	if len(paths) == 1 {
		g.pendingUpload = paths[0]
	}
	return nil
}

func (g *gallerySession) Click(_ context.Context, sel string) error {
	if strings.Contains(sel, "submit") {
		if g.failSubmit {
			return errors.New("submit button disabled")
		}
		if g.pendingUpload != "" {
			g.uploaded = append(g.uploaded, g.pendingUpload)
			g.galleryCount++
			g.pendingUpload = ""
		}
	}
	return nil
}

func (g *gallerySession) WaitVisible(context.Context, string, time.Duration) error { return nil }

func (g *gallerySession) Evaluate(_ context.Context, script string, out any) error {
	if strings.Contains(script, "querySelectorAll") {
		data, _ := stdjson.Marshal(g.galleryCount)
		return stdjson.Unmarshal(data, out)
	}
	return nil
}

var _ schemas.Session = (*gallerySession)(nil)

// -- Uploader Tests --

func succeededDownload(dest string) *schemas.DownloadTask {
	return &schemas.DownloadTask{ID: dest, Dest: dest, Status: schemas.TaskSucceeded}
}

func TestUploaderVerifiesGalleryGrowth(t *testing.T) {
	sess := newGallerySession(5)
	cfg := testAcquireConfig(t)
	up := NewUploader(sess, cfg, "https://app.test/", zap.NewNop())

	meta := schemas.UploadMetadata{
		Category:    "products",
		Tags:        []string{"summer", "sale"},
		Description: "Catalog image",
	}
	downloads := []*schemas.DownloadTask{
		succeededDownload("/tmp/a.jpg"),
		{ID: "failed", Status: schemas.TaskFailed},
		succeededDownload("/tmp/b.jpg"),
	}

	tasks, err := up.UploadAll(context.Background(), downloads, meta)
	require.NoError(t, err)
	require.Len(t, tasks, 2, "failed downloads are never uploaded")

	assert.Equal(t, schemas.TaskSucceeded, tasks[0].Status)
	assert.Equal(t, schemas.TaskSucceeded, tasks[1].Status)
	assert.Equal(t, []string{"/tmp/a.jpg", "/tmp/b.jpg"}, sess.uploaded)
	assert.Equal(t, 7, sess.galleryCount)
	assert.Equal(t, "products", sess.typed[`[name="category"]`])
	assert.Equal(t, "summer, sale", sess.typed[`[name="tags"]`])
}

func TestUploaderIsolatesFailures(t *testing.T) {
	sess := newGallerySession(0)
	sess.failSubmit = true
	cfg := testAcquireConfig(t)
	cfg.MaxRetries = 2
	up := NewUploader(sess, cfg, "https://app.test", zap.NewNop())

	tasks, err := up.UploadAll(context.Background(), []*schemas.DownloadTask{
		succeededDownload("/tmp/a.jpg"),
	}, schemas.UploadMetadata{})
	require.NoError(t, err, "an ordinary upload failure does not abort the run")
	require.Len(t, tasks, 1)
	assert.Equal(t, schemas.TaskFailed, tasks[0].Status)
	assert.Equal(t, 2, tasks[0].Attempts)
	assert.Contains(t, tasks[0].Error, "upload failed")
}

func TestUploaderAbortsWhenSessionDies(t *testing.T) {
	sess := newGallerySession(0)
	sess.navErr = fmt.Errorf("running action: %w", schemas.ErrSessionUnavailable)
	cfg := testAcquireConfig(t)
	cfg.MaxRetries = 2
	up := NewUploader(sess, cfg, "https://app.test", zap.NewNop())

	tasks, err := up.UploadAll(context.Background(), []*schemas.DownloadTask{
		succeededDownload("/tmp/a.jpg"),
		succeededDownload("/tmp/b.jpg"),
	}, schemas.UploadMetadata{})
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrSessionUnavailable, "the wrapped sentinel must survive the retry layer")
	require.Len(t, tasks, 1, "files after the session death are never attempted")
	assert.Equal(t, schemas.TaskFailed, tasks[0].Status)
}

func TestUploaderCancellationIsNotSessionDeath(t *testing.T) {
	sess := newGallerySession(0)
	up := NewUploader(sess, testAcquireConfig(t), "https://app.test", zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tasks, err := up.UploadAll(ctx, []*schemas.DownloadTask{
		succeededDownload("/tmp/a.jpg"),
	}, schemas.UploadMetadata{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, schemas.ErrSessionUnavailable)
	require.Len(t, tasks, 1)
	assert.Equal(t, schemas.TaskFailed, tasks[0].Status)
}

// -- Pipeline Tests --

type scriptedProvider struct {
	candidates []schemas.ImageCandidate
	err        error
	calls      int
}

func (s *scriptedProvider) Search(context.Context, schemas.SearchQuery) ([]schemas.ImageCandidate, error) {
	s.calls++
	return s.candidates, s.err
}

func testPipeline(t *testing.T, primary, fallback schemas.SearchProvider, srvURL string, sess *gallerySession) *Pipeline {
	t.Helper()
	cfg := testAcquireConfig(t)
	cfg.MaxRetries = 1

	dl := NewDownloader(cfg, http.DefaultClient, zap.NewNop())
	dl.verifyDelay = time.Millisecond
	up := NewUploader(sess, cfg, "https://app.test", zap.NewNop())
	return NewPipeline(primary, fallback, NewFilter(cfg, zap.NewNop()), dl, up, 0, zap.NewNop())
}

func TestPipelineCountsInvariant(t *testing.T) {
	// Serve images: two URLs succeed, one 404s.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "missing") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	// 5 searched, 2 rejected by the filter, 3 downloads attempted (1 fails),
	// both surviving files uploaded.
	primary := &scriptedProvider{candidates: []schemas.ImageCandidate{
		{URL: srv.URL + "/a.jpg", Width: 1920, Height: 1080},
		{URL: srv.URL + "/b.jpg", Width: 1920, Height: 1080},
		{URL: srv.URL + "/missing.jpg", Width: 1920, Height: 1080},
		{URL: srv.URL + "/tiny.jpg", Width: 100, Height: 100},
		{URL: srv.URL + "/banner.jpg", Width: 4000, Height: 300},
	}}

	sess := newGallerySession(0)
	p := testPipeline(t, primary, nil, srv.URL, sess)
	// Fail the second upload by flipping failSubmit after the first.
	summary, err := p.Run(context.Background(), schemas.SearchQuery{Keywords: "x"}, schemas.UploadMetadata{})
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Searched)
	assert.Equal(t, 3, summary.Filtered)
	assert.Equal(t, 2, summary.Downloaded)
	assert.Equal(t, 2, summary.Uploaded)
	assert.Equal(t, 0, summary.Failed)
	assert.False(t, summary.FallbackUsed)

	// The funnel only narrows.
	assert.GreaterOrEqual(t, summary.Searched, summary.Filtered)
	assert.GreaterOrEqual(t, summary.Filtered, summary.Downloaded)
	assert.GreaterOrEqual(t, summary.Downloaded, summary.Uploaded)
	assert.Equal(t, summary.Downloaded, summary.Uploaded+summary.Failed)
}

func TestPipelineFallbackOnProviderError(t *testing.T) {
	primary := &scriptedProvider{err: &schemas.ProviderError{Reason: schemas.ProviderRateLimited}}
	fallback := &scriptedProvider{candidates: []schemas.ImageCandidate{
		{SourceID: schemas.SourceFallback, URL: "https://img.test/fb.jpg", Width: 1920, Height: 1080},
	}}

	sess := newGallerySession(0)
	cfg := testAcquireConfig(t)
	cfg.MaxRetries = 1
	dl := NewDownloader(cfg, http.DefaultClient, zap.NewNop())
	dl.verifyDelay = time.Millisecond
	p := NewPipeline(primary, fallback, NewFilter(cfg, zap.NewNop()), dl,
		NewUploader(sess, cfg, "https://app.test", zap.NewNop()), 0, zap.NewNop())

	summary, err := p.Run(context.Background(), schemas.SearchQuery{Keywords: "x"}, schemas.UploadMetadata{})
	require.NoError(t, err)

	assert.True(t, summary.FallbackUsed)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, 1, summary.Searched)
}

func TestPipelineFallbackOnZeroResults(t *testing.T) {
	primary := &scriptedProvider{candidates: nil}
	fallback := &scriptedProvider{candidates: nil}

	sess := newGallerySession(0)
	p := testPipeline(t, primary, fallback, "", sess)
	summary, err := p.Run(context.Background(), schemas.SearchQuery{Keywords: "x"}, schemas.UploadMetadata{})
	require.NoError(t, err)

	assert.True(t, summary.FallbackUsed)
	assert.Equal(t, 1, fallback.calls)
	assert.Zero(t, summary.Searched)
}

func TestPipelineNoFallbackWhenPrimarySucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	defer srv.Close()

	primary := &scriptedProvider{candidates: []schemas.ImageCandidate{
		{URL: srv.URL + "/a.jpg", Width: 1920, Height: 1080},
	}}
	fallback := &scriptedProvider{}

	sess := newGallerySession(0)
	p := testPipeline(t, primary, fallback, srv.URL, sess)
	summary, err := p.Run(context.Background(), schemas.SearchQuery{Keywords: "x"}, schemas.UploadMetadata{})
	require.NoError(t, err)

	assert.False(t, summary.FallbackUsed)
	assert.Zero(t, fallback.calls, "fallback must not run when the primary delivered")
}
