package app

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned when the supplied credentials do not match.
	// The message is shown to end users and must not enable account enumeration.
	ErrInvalidCredentials = errors.New("incorrect email address or password")

	ErrEmailAndPasswordRequired = errors.New("email and password required")
	ErrEmailAlreadyExists       = errors.New("email already exists")

	// ErrSessionNotFound covers both unknown sessions and sessions owned by
	// another user, so the API cannot be used to probe for session ids.
	ErrSessionNotFound  = errors.New("session not found")
	ErrDocumentNotFound = errors.New("document not found")

	ErrSessionNameRequired = errors.New("session name required")
	ErrMessageRequired     = errors.New("message required")
	ErrFileRequired        = errors.New("file required")
	ErrUnsupportedFileType = errors.New("only PDF files are supported")
)

// ParseError marks input that could not be read as a PDF. Maps to 422.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse document: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// UpstreamError wraps a failed call to an external collaborator (embedding,
// caption, generation, vector database, object storage). Maps to 502; the
// wrapped provider error is logged, never returned to the client.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func upstream(op string, err error) error {
	return &UpstreamError{Op: op, Err: err}
}
