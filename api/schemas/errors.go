package schemas

import (
	"errors"
	"fmt"
)

// -- Error Taxonomy --
//
// Only ErrSessionUnavailable is run-fatal. Every other error is isolated to
// its unit of work (one scenario, one detector, one candidate, one fix) and
// recorded in the run report rather than thrown upward.

var (
	// ErrSessionUnavailable means the automation session (or the browser
	// behind it) is gone. It aborts the entire run.
	ErrSessionUnavailable = errors.New("automation session unavailable")

	// ErrStepFailure marks an assertion or timeout within a scenario. The
	// scenario is marked FAILED; the run continues.
	ErrStepFailure = errors.New("step failed")

	// ErrDetection marks a detector crash. The detector is skipped for the
	// current scenario only.
	ErrDetection = errors.New("detector failed")

	// ErrDownloadFailure marks a download that exhausted its retry budget.
	ErrDownloadFailure = errors.New("download failed")

	// ErrUploadFailure marks an upload that exhausted its retry budget.
	ErrUploadFailure = errors.New("upload failed")

	// ErrFixVerification marks a fix whose verification predicate did not
	// hold after patching.
	ErrFixVerification = errors.New("fix verification failed")
)

// ProviderReason classifies why a content-search provider call failed.
type ProviderReason string

// Constants for provider failure reasons.
const (
	ProviderRateLimited ProviderReason = "rate_limited"
	ProviderUnavailable ProviderReason = "unavailable"
)

// ProviderError is returned by the primary content-search provider. Its
// presence (not its reason) deterministically triggers the fallback source.
type ProviderError struct {
	Reason ProviderReason
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search provider %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("search provider %s", e.Reason)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsProviderError reports whether err is (or wraps) a ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
