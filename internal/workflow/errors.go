package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tomasbasham/project-upload/internal/storage"
)

// ErrInFlight is returned by Submit while another submission is uploading.
// The call has no other effect.
var ErrInFlight = errors.New("workflow: submission already in flight")

// Kind classifies why a submission failed.
type Kind string

const (
	KindMissingField               Kind = "missing_field"
	KindStorageWriteFailed         Kind = "storage_write_failed"
	KindStorageURLResolutionFailed Kind = "storage_url_resolution_failed"
	KindDocumentWriteFailed        Kind = "document_write_failed"
)

// Remote reports whether the kind stems from a collaborator call rather than
// local validation.
func (k Kind) Remote() bool {
	return k == KindStorageWriteFailed || k == KindStorageURLResolutionFailed || k == KindDocumentWriteFailed
}

// SubmitError is returned by Submit for every failed submission.
type SubmitError struct {
	Kind Kind

	// Fields lists the missing draft fields for KindMissingField.
	Fields []string

	// SubmissionID identifies the history entry of a submission that passed
	// validation.
	SubmissionID string

	// Blob is the image left in storage by a failed submission. Nil when
	// nothing was written or the blob was removed again.
	Blob *storage.BlobRef

	Err error
}

func (e *SubmitError) Error() string {
	if e.Kind == KindMissingField && len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s", e.Kind, strings.Join(e.Fields, ", "))
	}
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind carried by err, or "" if err is not a
// *SubmitError.
func KindOf(err error) Kind {
	var se *SubmitError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
