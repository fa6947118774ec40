// Package services defines the business logic for books.
// This file centralizes the service-level error kinds so that they can be
// consistently returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer; the service only reports which kind of failure occurred
// together with a human-readable message.
package services

import (
	"errors"
	"fmt"
)

// Error kinds. Compare with errors.Is; a *BookError matches its Kind.
var (
	// ErrInvalidInput indicates the caller supplied data that fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyExists indicates a create would duplicate an existing title.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound indicates the referenced book does not exist.
	ErrNotFound = errors.New("not found")
)

// BookError carries one of the error kinds above plus the message reported
// to the client.
type BookError struct {
	Kind    error
	Message string
}

func (e *BookError) Error() string { return e.Message }

// Unwrap exposes the kind so errors.Is(err, ErrNotFound) works.
func (e *BookError) Unwrap() error { return e.Kind }

// invalidInput builds an ErrInvalidInput error.
func invalidInput(msg string) error {
	return &BookError{Kind: ErrInvalidInput, Message: msg}
}

// alreadyExists builds an ErrAlreadyExists error.
func alreadyExists(msg string) error {
	return &BookError{Kind: ErrAlreadyExists, Message: msg}
}

// notFound builds an ErrNotFound error whose message reads
// "<resource> not found <field> : <value>".
func notFound(resource, field string, value any) error {
	return &BookError{
		Kind:    ErrNotFound,
		Message: fmt.Sprintf("%s not found %s : %v", resource, field, value),
	}
}
