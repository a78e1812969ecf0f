// File: internal/browser/harvester.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/uveworks/vigil/api/schemas"
)

// requestState tracks the lifecycle of a single network request from send to
// completion or failure.
type requestState struct {
	Request  *network.Request
	Response *network.Response
	StartTS  *cdp.MonotonicTime
	EndTS    *cdp.MonotonicTime
	Type     network.ResourceType
	Failed   bool
	FailText string
	Complete bool
}

// Harvester listens to browser events for one session. It accumulates console
// messages, uncaught exceptions and network request outcomes, which together
// form the evidence window the detectors read after each scenario.
type Harvester struct {
	logger *zap.Logger

	// The context for the browser tab this harvester is attached to.
	sessionCtx context.Context
	// A separate context for the listener goroutine so it can be stopped cleanly.
	listenerCtx    context.Context
	cancelListener context.CancelFunc

	requests map[network.RequestID]*requestState
	inflight map[network.RequestID]bool
	console  []schemas.ConsoleEntry
	lock     sync.RWMutex

	isStarted bool
}

// NewHarvester creates an evidence harvester for a specific session.
func NewHarvester(sessionCtx context.Context, logger *zap.Logger) *Harvester {
	return &Harvester{
		sessionCtx: sessionCtx,
		logger:     logger.Named("harvester"),
		requests:   make(map[network.RequestID]*requestState),
		inflight:   make(map[network.RequestID]bool),
		console:    make([]schemas.ConsoleEntry, 0),
	}
}

// Start kicks off the event listening process.
func (h *Harvester) Start() error {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.isStarted {
		return nil
	}

	// Derived from the session, so if the session dies the listener dies.
	h.listenerCtx, h.cancelListener = context.WithCancel(h.sessionCtx)

	go h.listen()

	err := chromedp.Run(h.sessionCtx,
		network.Enable(),
		runtime.Enable(),
		log.Enable(),
	)
	if err != nil {
		h.cancelListener()
		return err
	}

	h.isStarted = true
	h.logger.Debug("Harvester started and listening for events.")
	return nil
}

// listen is the main event loop that receives and dispatches CDP events.
func (h *Harvester) listen() {
	chromedp.ListenTarget(h.listenerCtx, func(ev interface{}) {
		switch e := ev.(type) {
		// -- Network Events --
		case *network.EventRequestWillBeSent:
			h.handleRequestWillBeSent(e)
		case *network.EventResponseReceived:
			h.handleResponseReceived(e)
		case *network.EventLoadingFinished:
			h.handleLoadingFinished(e)
		case *network.EventLoadingFailed:
			h.handleLoadingFailed(e)

		// -- Console and Runtime Events --
		case *runtime.EventConsoleAPICalled:
			h.handleConsoleAPICalled(e)
		case *log.EventEntryAdded:
			h.handleLogEntryAdded(e)
		case *runtime.EventExceptionThrown:
			h.handleExceptionThrown(e)
		}
	})
}

// Stop halts the collection of events. The accumulated evidence remains
// readable afterwards.
func (h *Harvester) Stop() {
	h.lock.Lock()
	defer h.lock.Unlock()

	if !h.isStarted {
		return
	}
	if h.cancelListener != nil {
		h.cancelListener()
		h.cancelListener = nil
	}
	h.isStarted = false
	h.logger.Debug("Harvester stopped.")
}

// Reset clears the accumulated evidence so the next scenario starts with a
// clean window. Listening continues.
func (h *Harvester) Reset() {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.requests = make(map[network.RequestID]*requestState)
	h.console = h.console[:0]
}

// ConsoleEntries returns a copy of the console messages captured since the
// last reset, in arrival order.
func (h *Harvester) ConsoleEntries() []schemas.ConsoleEntry {
	h.lock.RLock()
	defer h.lock.RUnlock()
	out := make([]schemas.ConsoleEntry, len(h.console))
	copy(out, h.console)
	return out
}

// NetworkEntries converts the completed requests captured since the last
// reset into evidence entries.
func (h *Harvester) NetworkEntries() []schemas.NetworkEntry {
	h.lock.RLock()
	defer h.lock.RUnlock()

	entries := make([]schemas.NetworkEntry, 0, len(h.requests))
	for _, state := range h.requests {
		if !state.Complete || state.Request == nil {
			continue
		}
		entry := schemas.NetworkEntry{
			URL:          state.Request.URL,
			Method:       state.Request.Method,
			Failed:       state.Failed,
			FailureText:  state.FailText,
			ResourceType: string(state.Type),
		}
		if state.Response != nil {
			entry.Status = int(state.Response.Status)
			entry.MimeType = state.Response.MimeType
		}
		if state.StartTS != nil && state.EndTS != nil {
			entry.Duration = state.EndTS.Time().Sub(state.StartTS.Time())
		}
		entries = append(entries, entry)
	}
	return entries
}

// WaitNetworkIdle polls until there are no in flight network requests for the
// given quiet period.
func (h *Harvester) WaitNetworkIdle(ctx context.Context, quietPeriod time.Duration) error {
	ticker := time.NewTicker(quietPeriod / 2)
	defer ticker.Stop()

	lastActivity := time.Now()
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("WaitNetworkIdle aborted due to context cancellation.", zap.Error(ctx.Err()))
			return ctx.Err()
		case <-ticker.C:
			h.lock.RLock()
			inflightCount := len(h.inflight)
			h.lock.RUnlock()

			if inflightCount > 0 {
				lastActivity = time.Now()
			} else if time.Since(lastActivity) >= quietPeriod {
				return nil
			}
		}
	}
}

// -- Event Handlers --

func (h *Harvester) handleRequestWillBeSent(e *network.EventRequestWillBeSent) {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.inflight[e.RequestID] = true

	// If this is a redirect, the previous request under this ID is complete.
	if e.RedirectResponse != nil {
		if prev, ok := h.requests[e.RequestID]; ok && !prev.Complete {
			prev.Response = e.RedirectResponse
			prev.Complete = true
		}
	}

	// Timestamp is on the same monotonic clock as the loading events, so
	// the duration in the evidence is end minus start on one clock.
	h.requests[e.RequestID] = &requestState{
		Request: e.Request,
		StartTS: e.Timestamp,
		Type:    e.Type,
	}
}

func (h *Harvester) handleResponseReceived(e *network.EventResponseReceived) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if state, ok := h.requests[e.RequestID]; ok {
		state.Response = e.Response
	}
}

func (h *Harvester) handleLoadingFinished(e *network.EventLoadingFinished) {
	h.lock.Lock()
	defer h.lock.Unlock()

	delete(h.inflight, e.RequestID)

	if state, ok := h.requests[e.RequestID]; ok {
		state.EndTS = e.Timestamp
		state.Complete = true
	}
}

func (h *Harvester) handleLoadingFailed(e *network.EventLoadingFailed) {
	h.lock.Lock()
	defer h.lock.Unlock()

	delete(h.inflight, e.RequestID)

	if state, ok := h.requests[e.RequestID]; ok {
		state.EndTS = e.Timestamp
		state.Complete = true
		state.Failed = true
		state.FailText = e.ErrorText
	}
}

// -- Console and Log Handlers --

func (h *Harvester) handleConsoleAPICalled(e *runtime.EventConsoleAPICalled) {
	var textBuilder strings.Builder
	for i, arg := range e.Args {
		if i > 0 {
			textBuilder.WriteString(" ")
		}
		// Go through hoops to get a clean string representation of the argument.
		var val interface{}
		if arg.Value != nil && json.Unmarshal(arg.Value, &val) == nil {
			textBuilder.WriteString(fmt.Sprintf("%v", val))
		} else if arg.Description != "" {
			textBuilder.WriteString(arg.Description)
		} else {
			textBuilder.WriteString(fmt.Sprintf("[%s]", arg.Type))
		}
	}

	entry := schemas.ConsoleEntry{
		Level:     string(e.Type),
		Text:      textBuilder.String(),
		Timestamp: e.Timestamp.Time(),
	}

	h.lock.Lock()
	defer h.lock.Unlock()
	h.console = append(h.console, entry)
}

func (h *Harvester) handleLogEntryAdded(e *log.EventEntryAdded) {
	if e.Entry == nil {
		return
	}
	entry := schemas.ConsoleEntry{
		Level:     string(e.Entry.Level),
		Text:      e.Entry.Text,
		URL:       e.Entry.URL,
		Timestamp: e.Entry.Timestamp.Time(),
	}

	h.lock.Lock()
	defer h.lock.Unlock()
	h.console = append(h.console, entry)
}

func (h *Harvester) handleExceptionThrown(e *runtime.EventExceptionThrown) {
	if e.ExceptionDetails == nil {
		return
	}
	// The description usually carries the most useful info, stack included.
	text := e.ExceptionDetails.Text
	if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
		text = e.ExceptionDetails.Exception.Description
	}

	entry := schemas.ConsoleEntry{
		Level:     "exception",
		Text:      text,
		URL:       e.ExceptionDetails.URL,
		Timestamp: e.Timestamp.Time(),
	}

	h.lock.Lock()
	defer h.lock.Unlock()
	h.console = append(h.console, entry)
}
