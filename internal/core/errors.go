// Package core provides the shared types and error taxonomy for the Steam gateway.
package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a gateway failure.
type ErrorKind string

const (
	// KindInsufficientIdentities means fewer than two identifiers were supplied for a comparison.
	KindInsufficientIdentities ErrorKind = "insufficient_identities"
	// KindResolutionFailed means a vanity name could not be resolved to a numeric Steam ID.
	KindResolutionFailed ErrorKind = "resolution_failed"
	// KindUpstreamUnavailable means a required upstream call failed or returned an unexpected shape.
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
	// KindCatalogBackfillFailed means a single app could not be enriched from the Store API.
	KindCatalogBackfillFailed ErrorKind = "catalog_backfill_failed"
	// KindCacheWriteFailed means a computed result could not be persisted to the cache.
	KindCacheWriteFailed ErrorKind = "cache_write_failed"
	// KindInvalidRequest means the caller sent unusable parameters.
	KindInvalidRequest ErrorKind = "invalid_request"
	// KindNotFound means the requested resource does not exist.
	KindNotFound ErrorKind = "not_found"
	// KindInternal covers everything else.
	KindInternal ErrorKind = "internal"
)

// Error is the base error type for all gateway errors.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error of the same kind, so that
// errors.Is(err, &Error{Kind: KindUpstreamUnavailable}) matches any upstream failure.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage returns the text that may be shown to API callers.
// Wrapped causes are never included.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "an unexpected error occurred"
}

// NewInsufficientIdentitiesError creates an error for comparisons with fewer than two accounts.
func NewInsufficientIdentitiesError(got int) *Error {
	return &Error{
		Kind:    KindInsufficientIdentities,
		Message: fmt.Sprintf("at least 2 steam ids are required, got %d", got),
	}
}

// NewResolutionFailedError creates an error for a vanity name that did not resolve.
func NewResolutionFailedError(identifier string, err error) *Error {
	return &Error{
		Kind:    KindResolutionFailed,
		Message: fmt.Sprintf("could not resolve steam id %q", identifier),
		Err:     err,
	}
}

// NewUpstreamUnavailableError creates an error for a failed required upstream call.
func NewUpstreamUnavailableError(message string, err error) *Error {
	return &Error{
		Kind:    KindUpstreamUnavailable,
		Message: message,
		Err:     err,
	}
}

// NewCatalogBackfillError creates an error for an app that could not be enriched.
func NewCatalogBackfillError(appID int64, err error) *Error {
	return &Error{
		Kind:    KindCatalogBackfillFailed,
		Message: fmt.Sprintf("app %d details unavailable", appID),
		Err:     err,
	}
}

// NewCacheWriteError creates an error for a failed cache upsert.
func NewCacheWriteError(err error) *Error {
	return &Error{
		Kind:    KindCacheWriteFailed,
		Message: "failed to store common library",
		Err:     err,
	}
}

// NewInvalidRequestError creates a new invalid request error
func NewInvalidRequestError(message string, err error) *Error {
	return &Error{
		Kind:    KindInvalidRequest,
		Message: message,
		Err:     err,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: message,
	}
}

// UpstreamStatusError is returned by the gateway client when Steam answers with a non-2xx status.
type UpstreamStatusError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *UpstreamStatusError) Error() string {
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return "upstream returned " + status
}
