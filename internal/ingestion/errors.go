package ingestion

import "fmt"

// ValidationError rejects a run before anything is written.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid ingestion input: " + e.Reason
	}
	return fmt.Sprintf("invalid ingestion input: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TransientStoreError is a failed store call that will be retried.
type TransientStoreError struct {
	Op      string
	Attempt int
	Err     error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("%s failed (attempt %d): %v", e.Op, e.Attempt, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// FatalStoreError is returned once the retry budget of a store call is spent.
type FatalStoreError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *FatalStoreError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *FatalStoreError) Unwrap() error { return e.Err }
