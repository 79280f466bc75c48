package services

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAccountExists = errors.New("account already exists")

	// ErrAccountNotFound and ErrApprovalPending are the two user-visible
	// rejection kinds of the approval gate. Both end in a forced sign-out.
	ErrAccountNotFound = errors.New("account record not found")
	ErrApprovalPending = errors.New("account pending admin approval")

	// ErrSessionSuperseded is returned to a caller whose approval lookup
	// finished after its session was replaced or ended.
	ErrSessionSuperseded = errors.New("session superseded")
)

type ValidationKind string

const (
	ValidationMissingLocation  ValidationKind = "missing_location"
	ValidationInvalidPhotoType ValidationKind = "invalid_photo_type"
	ValidationTagCount         ValidationKind = "tag_count"
	ValidationInvalidRequest   ValidationKind = "invalid_request"
)

// ValidationError is caller-correctable and never reaches storage or the
// classifier.
type ValidationError struct {
	Kind    ValidationKind
	Message string
	// Fields maps a request field to what is wrong with it, when known.
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Kind, e.Message)
}

func IsValidationKind(err error, kind ValidationKind) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.Kind == kind
}

type UploadError struct{ Err error }

func (e *UploadError) Error() string { return "upload photo: " + e.Err.Error() }
func (e *UploadError) Unwrap() error { return e.Err }

type ClassificationError struct{ Err error }

func (e *ClassificationError) Error() string { return "classify issue: " + e.Err.Error() }
func (e *ClassificationError) Unwrap() error { return e.Err }

type PersistenceError struct{ Err error }

func (e *PersistenceError) Error() string { return "persist issue: " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }
