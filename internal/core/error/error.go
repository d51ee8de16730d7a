package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage describes a missing Redis key.
	RedisNotFoundMessage = "not found"
	// PostgresErrorMessage describes Postgres related failures.
	PostgresErrorMessage = "database operation failed"
	// ShopifyErrorMessage describes Admin API failures.
	ShopifyErrorMessage = "shopify admin api request failed"
	// ShopifyThrottledMessage describes Admin API throttling.
	ShopifyThrottledMessage = "shopify admin api throttled"
	// ModelErrorMessage describes LLM provider failures.
	ModelErrorMessage = "assistant model unavailable"
	// QuotaExceededMessage is returned when the monthly message quota is spent.
	QuotaExceededMessage = "monthly message quota reached, upgrade your plan to continue"
)

// AppError wraps an underlying error with an HTTP status and safe message.
// The Message field is what merchants see; Err stays in the logs.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// Is reports whether the target matches the underlying error or the AppError itself.
func (e *AppError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// As allows casting to AppError or the wrapped error in a chain.
func (e *AppError) As(target any) bool {
	if errors.As(e.Err, target) {
		return true
	}
	if t, ok := target.(**AppError); ok {
		*t = e
		return true
	}
	return false
}

// StatusOf extracts the HTTP status from an error chain, defaulting to 500.
func StatusOf(err error) int {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return http.StatusInternalServerError
}

// MessageOf extracts the safe message from an error chain, defaulting to the
// generic system message so internals never leak to merchants.
func MessageOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return SystemErrorMessage
}

// WrapModel maps LLM provider failures to the unified error type.
func WrapModel(err error) *AppError {
	if err == nil {
		return nil
	}
	return New(err, http.StatusBadGateway, ModelErrorMessage)
}
