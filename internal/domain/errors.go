package domain

import (
	"errors"
	"fmt"
)

// Domain Const errors
var (
	ErrNotFound         = errors.New("resource not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrNoDeviceTargets  = errors.New("no device targets")
	ErrNoAuthMethod     = errors.New("no authentication method available")
	ErrTokenExpired     = errors.New("access token expired")
	ErrQueueUnavailable = errors.New("notification queue unavailable")
)

// ConfigError reports missing or malformed service-account or project
// configuration. Fatal to a mint attempt, never retried within the call.
type ConfigError struct {
	Field   string
	Message string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

func NewConfigError(field, message string) ConfigError {
	return ConfigError{Field: field, Message: message}
}

// AuthError reports a rejected token exchange. Surfaces as a
// notification-level failure, not a batch abort.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e AuthError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("auth error: %s", e.Message)
	}
	return fmt.Sprintf("auth error (status %d): %s", e.StatusCode, e.Message)
}

func NewAuthError(statusCode int, message string) AuthError {
	return AuthError{StatusCode: statusCode, Message: message}
}

// GatewayError reports a non-2xx or unacknowledged 2xx response from the
// push gateway for a single token.
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e GatewayError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

func NewGatewayError(statusCode int, body string) GatewayError {
	return GatewayError{StatusCode: statusCode, Body: body}
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}
