// File: internal/browser/session.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uveworks/vigil/api/schemas"
	"github.com/uveworks/vigil/internal/config"
)

// Session wraps one browser tab and implements schemas.Session. A session is
// a serialized actor: the action mutex guarantees at most one browser action
// is in flight at a time, so test steps and acquisition uploads sharing a
// session can never interleave.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    *config.Config

	harvester *Harvester

	onClose func()

	// actionMu serializes all browser actions.
	actionMu sync.Mutex

	mu       sync.Mutex
	isClosed bool
}

var _ schemas.Session = (*Session)(nil)

// NewSession creates a new Session wrapper around an existing tab context.
func NewSession(
	ctx context.Context,
	cancel context.CancelFunc,
	cfg *config.Config,
	logger *zap.Logger,
) (*Session, error) {
	sessionID := uuid.New().String()
	return &Session{
		id:     sessionID,
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With(zap.String("session_id", sessionID)),
		cfg:    cfg,
	}, nil
}

// Initialize connects the tab and starts the evidence harvester.
func (s *Session) Initialize(ctx context.Context) error {
	// Ensure the target (tab) is created and CDP is connected.
	if err := chromedp.Run(s.ctx); err != nil {
		return fmt.Errorf("connecting browser target: %w", err)
	}

	s.harvester = NewHarvester(s.ctx, s.logger)
	if err := s.harvester.Start(); err != nil {
		return fmt.Errorf("starting harvester: %w", err)
	}
	return nil
}

// ID returns the unique identifier for this session.
func (s *Session) ID() string { return s.id }

// run executes chromedp actions under the action mutex with a bound derived
// from the caller's context.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	s.actionMu.Lock()
	defer s.actionMu.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}

	// The tab context carries the CDP connection; the caller's context only
	// contributes cancellation.
	runCtx, cancel := mergeCancel(s.ctx, ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if s.ctx.Err() != nil {
			return fmt.Errorf("%w: %v", schemas.ErrSessionUnavailable, err)
		}
		return err
	}
	return nil
}

// mergeCancel derives a context from tabCtx that is also canceled when
// callCtx is done.
func mergeCancel(tabCtx, callCtx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(tabCtx)
	stop := context.AfterFunc(callCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Session) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed {
		return schemas.ErrSessionUnavailable
	}
	return nil
}

// Navigate loads the given URL and waits for the document body.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.Network.NavigationTimeout)
	defer cancel()

	s.logger.Debug("Navigating.", zap.String("url", url))
	return s.run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Click dispatches a click on the first element matching the selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

// TypeText focuses the matching element, clears it, and types the text.
func (s *Session) TypeText(ctx context.Context, selector, text string) error {
	return s.run(ctx,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

// WaitVisible blocks until the selector matches a visible element or the
// timeout elapses.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Evaluate runs a JavaScript expression and unmarshals the result into out.
func (s *Session) Evaluate(ctx context.Context, script string, out any) error {
	if out == nil {
		var discard json.RawMessage
		return s.run(ctx, chromedp.Evaluate(script, &discard))
	}
	return s.run(ctx, chromedp.Evaluate(script, out))
}

// Screenshot captures the current viewport as PNG bytes.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// ScrollTo scrolls the first matching element into view.
func (s *Session) ScrollTo(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.ScrollIntoView(selector, chromedp.ByQuery))
}

// Reload re-navigates to the current URL.
func (s *Session) Reload(ctx context.Context) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.Network.NavigationTimeout)
	defer cancel()
	return s.run(navCtx,
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// SetFiles attaches local files to the matching file input element.
func (s *Session) SetFiles(ctx context.Context, selector string, paths []string) error {
	return s.run(ctx, chromedp.SetUploadFiles(selector, paths, chromedp.ByQuery))
}

// ConsoleEvents returns the console entries captured since the last reset.
func (s *Session) ConsoleEvents() []schemas.ConsoleEntry {
	if s.harvester == nil {
		return nil
	}
	return s.harvester.ConsoleEntries()
}

// NetworkEvents returns the network entries captured since the last reset.
func (s *Session) NetworkEvents() []schemas.NetworkEntry {
	if s.harvester == nil {
		return nil
	}
	return s.harvester.NetworkEntries()
}

// ResetEvidence clears captured console and network entries so the next
// scenario starts with a clean window.
func (s *Session) ResetEvidence() {
	if s.harvester != nil {
		s.harvester.Reset()
	}
}

// WaitNetworkIdle blocks until no requests have been in flight for the quiet
// period. Used after navigation-heavy steps.
func (s *Session) WaitNetworkIdle(ctx context.Context, quietPeriod time.Duration) error {
	if s.harvester == nil {
		return nil
	}
	return s.harvester.WaitNetworkIdle(ctx, quietPeriod)
}

// Close releases the underlying browser tab. Safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	if s.harvester != nil {
		s.harvester.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
	s.logger.Debug("Session closed.")
	return nil
}
