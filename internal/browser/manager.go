// File: internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/uveworks/vigil/api/schemas"
	"github.com/uveworks/vigil/internal/config"
)

const shutdownGracePeriod = 15 * time.Second

// Manager owns the browser process lifecycle and hands out sessions. It
// implements schemas.SessionProvider. A failure to create a session means the
// browser itself is unavailable, which callers treat as run-fatal.
type Manager struct {
	logger *zap.Logger
	cfg    *config.Config

	allocCtx    context.Context
	allocCancel context.CancelFunc

	sessions map[string]*Session
	mu       sync.RWMutex
	wg       sync.WaitGroup

	// Initialization state management.
	initOnce sync.Once
	initErr  error
}

var _ schemas.SessionProvider = (*Manager)(nil)

// NewManager creates a browser manager. The browser process itself is
// launched lazily on the first session request.
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	m := &Manager{
		logger:   logger.Named("browser_manager"),
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
	m.logger.Info("Browser manager created (initialization deferred).")
	return m
}

// initialize builds the shared exec allocator all sessions derive from.
func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.logger.Info("Launching browser allocator...")

		opts := m.allocatorOptions()
		// The allocator context must outlive the caller's request context;
		// it is torn down in Shutdown.
		m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)

		// Probe the allocator so a missing or broken Chrome binary surfaces
		// here rather than on the first scenario.
		probeCtx, probeCancel := chromedp.NewContext(m.allocCtx)
		defer probeCancel()
		runCtx, runCancel := context.WithTimeout(probeCtx, 60*time.Second)
		defer runCancel()
		if err := chromedp.Run(runCtx); err != nil {
			m.allocCancel()
			m.initErr = fmt.Errorf("%w: launching browser: %v", schemas.ErrSessionUnavailable, err)
			return
		}

		m.logger.Info("Browser manager initialized successfully.")
	})
	return m.initErr
}

func (m *Manager) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	if m.cfg.Browser.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if m.cfg.Browser.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}

	// Defaults needed for stability, especially in containers.
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(m.cfg.Browser.ViewportWidth, m.cfg.Browser.ViewportHeight),
	)

	for _, arg := range m.cfg.Browser.Args {
		opts = append(opts, chromedp.Flag(arg, true))
	}
	return opts
}

// NewSession creates a fresh browser tab wrapped in a Session.
func (m *Manager) NewSession(ctx context.Context) (schemas.Session, error) {
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(m.allocCtx)

	session, err := NewSession(tabCtx, tabCancel, m.cfg, m.logger)
	if err != nil {
		tabCancel()
		return nil, fmt.Errorf("creating session: %w", err)
	}

	if err := session.Initialize(ctx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("%w: initializing session: %v", schemas.ErrSessionUnavailable, err)
	}

	m.wg.Add(1)
	session.onClose = func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.sessions, session.ID())
		m.wg.Done()
	}

	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()

	m.logger.Debug("Session created.", zap.String("session_id", session.ID()))
	return session, nil
}

// Shutdown closes all open sessions and tears down the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.RUnlock()

	for _, s := range open {
		if err := s.Close(ctx); err != nil {
			m.logger.Warn("Failed to close session during shutdown.",
				zap.String("session_id", s.ID()), zap.Error(err))
		}
	}

	// Wait for session cleanup, but don't hang shutdown forever.
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGracePeriod):
		m.logger.Warn("Timed out waiting for sessions to close.")
	case <-ctx.Done():
	}

	if m.allocCancel != nil {
		m.allocCancel()
	}
	m.logger.Info("Browser manager shut down.")
	return nil
}
