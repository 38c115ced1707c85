// Package errors defines the service error taxonomy shared by all HTTP
// handlers. Every error that should reach a client carries an HTTP status;
// the dispatcher maps anything else to a generic 500.
package errors

import (
	stderrors "errors"
	"net/http"
)

// ServiceError is the base error type for all client-visible failures.
type ServiceError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// NotFound reports a missing collection or record.
func NotFound(message string) *ServiceError {
	if message == "" {
		message = "Resource not found"
	}
	return &ServiceError{Code: http.StatusNotFound, Message: message, HTTPStatus: http.StatusNotFound}
}

// BadRequest reports malformed input, including query syntax errors.
func BadRequest(message string) *ServiceError {
	if message == "" {
		message = "Request error"
	}
	return &ServiceError{Code: http.StatusBadRequest, Message: message, HTTPStatus: http.StatusBadRequest}
}

// Conflict reports a uniqueness violation.
func Conflict(message string) *ServiceError {
	if message == "" {
		message = "Resource conflict"
	}
	return &ServiceError{Code: http.StatusConflict, Message: message, HTTPStatus: http.StatusConflict}
}

// Unauthorized reports a request that requires an actor but has none.
func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "Unauthorized"
	}
	return &ServiceError{Code: http.StatusUnauthorized, Message: message, HTTPStatus: http.StatusUnauthorized}
}

// Forbidden reports a rule denial or an invalid access token.
func Forbidden(message string) *ServiceError {
	if message == "" {
		message = "Forbidden"
	}
	return &ServiceError{Code: http.StatusForbidden, Message: message, HTTPStatus: http.StatusForbidden}
}

// GetServiceError unwraps err down to a *ServiceError, or returns nil if the
// chain contains none. Used by the dispatcher's single catch site.
func GetServiceError(err error) *ServiceError {
	var svcErr *ServiceError
	if stderrors.As(err, &svcErr) {
		return svcErr
	}
	return nil
}
