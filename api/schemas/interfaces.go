package schemas

import (
	"context"
	"time"
)

// -- Automation Session --

// Session is the automation backend consumed by both workflows: one logical
// browser context exposing navigation, interaction, evaluation and evidence
// capture. A session is a serialized actor: implementations must reject or
// queue concurrent calls so that at most one action is in flight at a time.
type Session interface {
	// ID returns the unique identifier for this session.
	ID() string

	// Navigate loads the given URL and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error

	// Click dispatches a click on the first element matching the selector.
	Click(ctx context.Context, selector string) error

	// TypeText focuses the matching element and types the given text.
	TypeText(ctx context.Context, selector, text string) error

	// WaitVisible blocks until the selector matches a visible element or the
	// timeout elapses.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error

	// Evaluate runs a JavaScript expression and unmarshals the result into out.
	// Pass a nil out to discard the result.
	Evaluate(ctx context.Context, script string, out any) error

	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// ScrollTo scrolls the first matching element into view.
	ScrollTo(ctx context.Context, selector string) error

	// Reload re-navigates to the current URL.
	Reload(ctx context.Context) error

	// SetFiles attaches local files to the matching file input element.
	SetFiles(ctx context.Context, selector string, paths []string) error

	// ConsoleEvents returns the console entries captured since the last reset.
	ConsoleEvents() []ConsoleEntry

	// NetworkEvents returns the network entries captured since the last reset.
	NetworkEvents() []NetworkEntry

	// ResetEvidence clears captured console and network entries so the next
	// scenario starts with a clean window.
	ResetEvidence()

	// Close releases the underlying browser context.
	Close(ctx context.Context) error
}

// SessionProvider hands out automation sessions. Scenario-level parallelism
// is bounded by how many sessions the provider is willing to create.
type SessionProvider interface {
	// NewSession creates a fresh session. A failure here means the
	// automation backend itself is unavailable and is run-fatal.
	NewSession(ctx context.Context) (Session, error)
	// Shutdown closes the backing browser process.
	Shutdown(ctx context.Context) error
}

// -- Content Search --

// SearchProvider is one source of image candidates. The primary provider is
// a rate-limited network service; the fallback drives the automation session
// and is invoked only when the primary errors or returns zero candidates.
type SearchProvider interface {
	// Search returns candidates matching the query. The primary
	// implementation returns a *ProviderError on rate limiting or outage.
	Search(ctx context.Context, query SearchQuery) ([]ImageCandidate, error)
}
