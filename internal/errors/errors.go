// Package errors provides structured error handling with HTTP status and
// WebSocket close-code mapping for the notification server.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

// ErrorType represents the category of error for metrics and response formatting.
type ErrorType string

const (
	// TypeCapacityExceeded indicates the registry is full (HTTP 503, close 1008)
	TypeCapacityExceeded ErrorType = "capacity_exceeded"
	// TypeDuplicateClient indicates a client_id collision (HTTP 409, close 1008)
	TypeDuplicateClient ErrorType = "duplicate_client"
	// TypeUnavailable indicates the server has begun draining (HTTP 503, close 1001)
	TypeUnavailable ErrorType = "unavailable"
	// TypeSerialization indicates a notification payload that cannot be encoded (HTTP 400)
	TypeSerialization ErrorType = "serialization"
	// TypeValidation indicates invalid caller input (HTTP 400)
	TypeValidation ErrorType = "validation"
	// TypeInternal indicates a server-side error (HTTP 500)
	TypeInternal ErrorType = "internal"
)

// Error represents a structured error with type, message, and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeCapacityExceeded, TypeUnavailable:
		return http.StatusServiceUnavailable
	case TypeDuplicateClient:
		return http.StatusConflict
	case TypeSerialization, TypeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// CloseCode returns the WebSocket close code used when this error rejects
// a connection: 1008 (policy violation) for admission rejections, 1001
// (going away) once the server is draining.
func (e *Error) CloseCode() int {
	switch e.Type {
	case TypeCapacityExceeded, TypeDuplicateClient:
		return websocket.ClosePolicyViolation
	case TypeUnavailable:
		return websocket.CloseGoingAway
	default:
		return websocket.CloseInternalServerErr
	}
}

// ToResponse returns the JSON-serializable response body for this error.
// Internal detail (cause chains) is never exposed.
func (e *Error) ToResponse() map[string]any {
	return map[string]any{
		"error":   string(e.Type),
		"message": e.Message,
	}
}

// CapacityExceededError creates an admission rejection for a full registry.
func CapacityExceededError(max int) *Error {
	return &Error{
		Type:    TypeCapacityExceeded,
		Message: "maximum connections exceeded",
		Context: map[string]any{"max_connections": max},
	}
}

// DuplicateClientError creates an admission rejection for a client_id collision.
func DuplicateClientError(clientID string) *Error {
	return &Error{
		Type:    TypeDuplicateClient,
		Message: fmt.Sprintf("client %s is already connected", clientID),
		Context: map[string]any{"client_id": clientID},
	}
}

// UnavailableError creates an error for requests arriving after drain start.
func UnavailableError(message string) *Error {
	return &Error{
		Type:    TypeUnavailable,
		Message: message,
		Context: make(map[string]any),
	}
}

// SerializationError creates an error for unencodable notification payloads.
func SerializationError(cause error) *Error {
	return &Error{
		Type:    TypeSerialization,
		Message: "notification payload cannot be serialized",
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// ValidationError creates a new validation error (HTTP 400).
func ValidationError(message string) *Error {
	return &Error{
		Type:    TypeValidation,
		Message: message,
		Context: make(map[string]any),
	}
}

// InternalError creates a new internal error (HTTP 500).
func InternalError(message string, cause error) *Error {
	return &Error{
		Type:    TypeInternal,
		Message: message,
		Cause:   cause,
		Context: make(map[string]any),
	}
}

// AsStructuredError converts any error to a structured *Error.
// Unknown errors become internal errors.
func AsStructuredError(err error) *Error {
	var structured *Error
	if errors.As(err, &structured) {
		return structured
	}
	return InternalError("internal server error", err)
}

// IsType reports whether err is a structured error of the given type.
func IsType(err error, t ErrorType) bool {
	var structured *Error
	if errors.As(err, &structured) {
		return structured.Type == t
	}
	return false
}
