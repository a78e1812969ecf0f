package schemas

import "time"

// -- Evidence Schemas --

// ConsoleEntry is one console message or uncaught exception captured from the
// browser during a scenario window.
type ConsoleEntry struct {
	Level     string    `json:"level"` // "log", "warning", "error", "exception"
	Text      string    `json:"text"`
	URL       string    `json:"url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IsError reports whether the entry represents a JavaScript error or an
// unhandled rejection.
func (c ConsoleEntry) IsError() bool {
	return c.Level == "error" || c.Level == "exception"
}

// NetworkEntry is one network request/response pair observed during a
// scenario window. A Status of zero with Failed set means the request never
// completed (connection failure or timeout).
type NetworkEntry struct {
	URL          string        `json:"url"`
	Method       string        `json:"method"`
	Status       int           `json:"status"`
	MimeType     string        `json:"mime_type,omitempty"`
	Failed       bool          `json:"failed"`
	FailureText  string        `json:"failure_text,omitempty"`
	Duration     time.Duration `json:"duration"`
	ResourceType string        `json:"resource_type,omitempty"`
}

// ImageAudit describes one <img> element as observed in the live DOM.
type ImageAudit struct {
	Src           string `json:"src"`
	Alt           string `json:"alt"`
	NaturalWidth  int    `json:"naturalWidth"`
	NaturalHeight int    `json:"naturalHeight"`
	Complete      bool   `json:"complete"`
	Selector      string `json:"selector,omitempty"`
}

// ControlAudit describes one interactive element (input, button, link) and
// the accessible naming it carries.
type ControlAudit struct {
	Tag       string `json:"tag"`
	Type      string `json:"type,omitempty"`
	ID        string `json:"id,omitempty"`
	HasLabel  bool   `json:"hasLabel"`
	HasText   bool   `json:"hasText"`
	AriaLabel string `json:"ariaLabel,omitempty"`
	Selector  string `json:"selector,omitempty"`
}

// ContrastAudit describes one visible text element whose computed contrast
// ratio against its background falls below the WCAG AA floor.
type ContrastAudit struct {
	Selector string  `json:"selector"`
	Ratio    float64 `json:"ratio"`
}

// LayoutAudit summarizes layout anomalies sampled from the live DOM.
type LayoutAudit struct {
	HorizontalOverflow bool `json:"horizontalOverflow"`
	ClippedElements    int  `json:"clippedElements"`
	ZeroSizeVisible    int  `json:"zeroSizeVisible"`
	OverlappingFixed   int  `json:"overlappingFixed"`
}

// PerformanceMetrics is a snapshot of the page's paint and interaction
// metrics taken after the scenario settles.
type PerformanceMetrics struct {
	LoadTimeMs       float64 `json:"loadTimeMs"`
	DOMContentMs     float64 `json:"domContentMs"`
	LCPMs            float64 `json:"lcpMs"`
	DOMNodes         int     `json:"domNodes"`
	ResourceCount    int     `json:"resourceCount"`
	TransferSizeKB   float64 `json:"transferSizeKB"`
	FirstPaintMs     float64 `json:"firstPaintMs,omitempty"`
	InteractionLagMs float64 `json:"interactionLagMs,omitempty"`
}

// Evidence is the full bundle captured for one scenario window. Detectors
// are pure functions over this value: identical evidence must always produce
// an identical issue set.
type Evidence struct {
	PageURL     string             `json:"page_url"`
	Console     []ConsoleEntry     `json:"console"`
	Network     []NetworkEntry     `json:"network"`
	Images      []ImageAudit       `json:"images"`
	Controls    []ControlAudit     `json:"controls"`
	Contrast    []ContrastAudit    `json:"contrast,omitempty"`
	Layout      LayoutAudit        `json:"layout"`
	Performance PerformanceMetrics `json:"performance"`
	Screenshots []string           `json:"screenshots,omitempty"`
}
