package recognition

import (
	"fmt"
)

// RecognitionError means the mandatory local engine failed. It aborts a run.
type RecognitionError struct {
	Engine string
	Err    error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition failed in %s: %v", e.Engine, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// FallbackError records a failed or timed-out fallback attempt. It never
// fails a run; it is attached to the outcome for observability.
type FallbackError struct {
	Engine  string
	Err     error
	Timeout bool
}

func (e *FallbackError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("fallback %s timed out: %v", e.Engine, e.Err)
	}
	return fmt.Sprintf("fallback %s failed: %v", e.Engine, e.Err)
}

func (e *FallbackError) Unwrap() error { return e.Err }
