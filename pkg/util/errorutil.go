package util

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind groups errors by how the client should react to them.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindConflict       ErrorKind = "conflict"
	KindAuth           ErrorKind = "auth"
	KindForbidden      ErrorKind = "forbidden"
	KindNotFound       ErrorKind = "not_found"
	KindDependency     ErrorKind = "dependency"
	KindPartialFailure ErrorKind = "partial_failure"
	KindInternal       ErrorKind = "internal"
)

// DomainError standardizes application errors.
type DomainError struct {
	Kind       ErrorKind
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(kind ErrorKind, code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message, HTTPStatus: status, Details: details}
}

// NewValidationError reports malformed client input.
func NewValidationError(code, message string) error {
	return NewDomainError(KindValidation, code, message, http.StatusBadRequest, nil)
}

// NewConflict reports a duplicate account or identifier.
func NewConflict(code, message string) error {
	return NewDomainError(KindConflict, code, message, http.StatusConflict, nil)
}

// NewAuthError reports a rejected credential or token. Messages stay generic.
func NewAuthError(code string) error {
	return NewDomainError(KindAuth, code, authMessages[code], http.StatusUnauthorized, nil)
}

var authMessages = map[string]string{
	"invalid_credentials": "invalid credentials",
	"not_found":           "user not found",
	"missing_token":       "authentication token not provided",
	"invalid_token":       "invalid authentication token",
}

func NewNotFound(resource string, details map[string]any) error {
	return &DomainError{
		Kind:       KindNotFound,
		Code:       "not_found",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewForbidden(message string) error {
	return NewDomainError(KindForbidden, "forbidden", message, http.StatusForbidden, nil)
}

// NewDependencyError wraps a failing or timed-out collaborator call.
func NewDependencyError(code string, err error) error {
	return &DomainError{
		Kind:       KindDependency,
		Code:       code,
		Message:    "upstream dependency unavailable",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewPartialFailure reports a multi-step operation that stopped half way.
// Details must carry enough non-secret data for manual reconciliation.
func NewPartialFailure(code string, details map[string]any, err error) error {
	return &DomainError{
		Kind:       KindPartialFailure,
		Code:       code,
		Message:    "operation partially completed",
		HTTPStatus: http.StatusInternalServerError,
		Details:    details,
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Kind:       KindInternal,
		Code:       "internal_error",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsKind reports whether err is a DomainError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Kind == kind
}

// CodeOf returns the DomainError code carried by err, or "".
func CodeOf(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		if de, ok := NewDependencyError("timeout", err).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Kind:       KindInternal,
		Code:       "internal_error",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
