package tags

import (
	"errors"
	"fmt"
)

// Step identifies where in the update protocol a failure occurred.
type Step string

const (
	// StepFetch is the initial retrieval of the current representation.
	StepFetch Step = "fetch-current"

	// StepMerge is the local tag merge and payload construction.
	StepMerge Step = "merge"

	// StepSubmit is the PATCH request.
	StepSubmit Step = "submit"

	// StepVerify is the post-submit re-fetch and assertion.
	StepVerify Step = "verify"
)

// Sentinel errors for the update protocol.
var (
	// ErrVerificationFailed means the re-fetch after submit did not show
	// the requested tag. The mutation may have partially applied; the
	// operator must check manually rather than assume success.
	ErrVerificationFailed = errors.New("tag update not confirmed by re-fetch")

	// ErrMissingRelationship means the project representation lacks a
	// relationship the update endpoint requires.
	ErrMissingRelationship = errors.New("project missing required relationship")

	// ErrCancelled means the operator declined the request at the preview.
	ErrCancelled = errors.New("update cancelled before submit")
)

// UpdateError attributes a protocol failure to a project and a step. The
// wrapped error carries the detail: a *client.APIError for a server
// rejection, a *client.NetworkError for a transport failure, or
// ErrVerificationFailed.
type UpdateError struct {
	ProjectID string
	Step      Step
	Err       error
}

// Error implements the error interface.
func (e *UpdateError) Error() string {
	return fmt.Sprintf("update project %s: step %s: %v", e.ProjectID, e.Step, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpdateError) Unwrap() error {
	return e.Err
}
