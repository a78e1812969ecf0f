package schemas

import "time"

// -- Acquisition Schemas --

// ImageSource identifies which search source produced a candidate.
type ImageSource string

// Constants for the candidate sources.
const (
	SourcePrimary  ImageSource = "primary"
	SourceFallback ImageSource = "fallback"
)

// ImageCandidate is one search hit. Candidates are created by the search
// stage and filtered (never mutated) by the quality filter.
type ImageCandidate struct {
	SourceID    ImageSource `json:"source"`
	URL         string      `json:"url"`
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	Description string      `json:"description,omitempty"`
	Relevance   float64     `json:"relevance"`
	License     string      `json:"license,omitempty"`
}

// SearchQuery parameterizes one search call against a content source.
type SearchQuery struct {
	Keywords  string
	MinWidth  int
	MinHeight int
	Count     int
}

// TaskStatus is the lifecycle state of a download or upload task. Terminal
// states (SUCCEEDED, FAILED) are immutable.
type TaskStatus string

// Constants for task statuses.
const (
	TaskPending   TaskStatus = "PENDING"
	TaskRunning   TaskStatus = "RUNNING"
	TaskSucceeded TaskStatus = "SUCCEEDED"
	TaskFailed    TaskStatus = "FAILED"
)

// DownloadTask tracks one candidate fetch. Attempts never exceed the
// configured retry cap.
type DownloadTask struct {
	ID        string         `json:"id"`
	Candidate ImageCandidate `json:"candidate"`
	Dest      string         `json:"dest,omitempty"`
	Attempts  int            `json:"attempts"`
	Status    TaskStatus     `json:"status"`
	Error     string         `json:"error,omitempty"`
	Size      int64          `json:"size,omitempty"`
	Duration  time.Duration  `json:"duration,omitempty"`
}

// UploadMetadata is attached to each uploaded file.
type UploadMetadata struct {
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Description string   `json:"description,omitempty"`
}

// UploadTask tracks one file upload through the shared automation session.
type UploadTask struct {
	ID       string     `json:"id"`
	FilePath string     `json:"file_path"`
	Attempts int        `json:"attempts"`
	Status   TaskStatus `json:"status"`
	Error    string     `json:"error,omitempty"`
}

// AcquisitionSummary aggregates the acquisition pipeline counts. The counts
// always satisfy searched >= filtered >= downloaded >= uploaded, and
// uploaded + failed = downloaded.
type AcquisitionSummary struct {
	Searched   int `json:"searched"`
	Filtered   int `json:"filtered"`
	Downloaded int `json:"downloaded"`
	Uploaded   int `json:"uploaded"`
	Failed     int `json:"failed"`

	FallbackUsed bool            `json:"fallback_used"`
	Downloads    []*DownloadTask `json:"downloads,omitempty"`
	Uploads      []*UploadTask   `json:"uploads,omitempty"`
}
