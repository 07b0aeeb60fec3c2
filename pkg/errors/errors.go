// Package errors defines the agent's error taxonomy. Every provider or input failure
// that crosses a component boundary is wrapped in an *Error so callers can branch on
// its Type without string matching.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Type is the coarse category of an error.
type Type string

const (
	// TypeFetch: the search provider failed while collecting posts.
	TypeFetch Type = "fetch"
	// TypeMarketData: the price provider failed; enrichment is skipped.
	TypeMarketData Type = "market_data"
	// TypeConfig: a required setting is missing or invalid at startup.
	TypeConfig Type = "config"
	// TypeValidation: an invocation carried a missing or malformed argument.
	TypeValidation Type = "validation"
	// TypeDelivery: the messaging webhook rejected a report.
	TypeDelivery Type = "delivery"
	// TypeInternal: anything else.
	TypeInternal Type = "internal"
)

// Error is a categorized error with optional cause and context fields.
type Error struct {
	Type    Type
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error type onto a response status for the HTTP surface.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeFetch, TypeMarketData, TypeDelivery:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WithContext attaches a key/value pair (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func newError(t Type, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause, Context: make(map[string]any)}
}

func FetchError(message string, cause error) *Error {
	return newError(TypeFetch, message, cause)
}

func MarketDataError(message string, cause error) *Error {
	return newError(TypeMarketData, message, cause)
}

func ConfigError(message string) *Error {
	return newError(TypeConfig, message, nil)
}

func ValidationError(message string) *Error {
	return newError(TypeValidation, message, nil)
}

func DeliveryError(message string, cause error) *Error {
	return newError(TypeDelivery, message, cause)
}

func InternalError(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsType reports whether err's chain contains an *Error of type t.
func IsType(err error, t Type) bool {
	e, ok := As(err)
	return ok && e.Type == t
}

// StatusOf returns the HTTP status for err, defaulting to 500.
func StatusOf(err error) int {
	if e, ok := As(err); ok {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}
