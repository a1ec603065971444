package service

import (
	"errors"

	"atelier-service/internal/chatstore"
	"atelier-service/internal/redisclient"
	"atelier-service/internal/store"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrEmptyCart          = errors.New("empty cart")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrRateLimited        = errors.New("rate limited")
)

// Error carries a customer-facing message next to the error kind. errors.Is
// matches both the kind and the cause.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func newError(kind error, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// classify maps persistence errors onto service kinds. message is used for
// the not-found and conflict cases; anything unrecognised passes through.
func classify(err error, message string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound), errors.Is(err, chatstore.ErrNotFound), errors.Is(err, redisclient.ErrNotFound):
		return &Error{Kind: ErrNotFound, Message: message, Cause: err}
	case errors.Is(err, store.ErrDuplicate), errors.Is(err, store.ErrReferenced), errors.Is(err, store.ErrStale):
		return &Error{Kind: ErrConflict, Message: message, Cause: err}
	case errors.Is(err, store.ErrInsufficientStock):
		return &Error{Kind: ErrInsufficientStock, Message: "Sản phẩm không đủ số lượng trong kho", Cause: err}
	}
	return err
}
