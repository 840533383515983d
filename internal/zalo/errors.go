package zalo

import (
	"errors"
	"fmt"
)

// TokenErrorKind classifies why no usable access token could be produced.
type TokenErrorKind string

const (
	TokenMissing         TokenErrorKind = "missing"
	TokenUnavailable     TokenErrorKind = "unavailable"
	TokenNetwork         TokenErrorKind = "network_error"
	TokenInvalidResponse TokenErrorKind = "invalid_response"
	TokenHTTP            TokenErrorKind = "http_error"
)

// Sentinels for errors.Is matching against a *TokenError kind.
var (
	ErrTokenMissing         = errors.New("zalo: access token missing")
	ErrTokenUnavailable     = errors.New("zalo: no usable access token")
	ErrTokenNetwork         = errors.New("zalo: token refresh network error")
	ErrTokenInvalidResponse = errors.New("zalo: invalid token refresh response")
	ErrTokenHTTP            = errors.New("zalo: token refresh http error")
)

var tokenSentinels = map[TokenErrorKind]error{
	TokenMissing:         ErrTokenMissing,
	TokenUnavailable:     ErrTokenUnavailable,
	TokenNetwork:         ErrTokenNetwork,
	TokenInvalidResponse: ErrTokenInvalidResponse,
	TokenHTTP:            ErrTokenHTTP,
}

// TokenError is returned by the token manager. StatusCode and Body are set
// when the provider answered.
type TokenError struct {
	Kind       TokenErrorKind
	StatusCode int
	Body       string
	Err        error
}

func (e *TokenError) Error() string {
	msg := fmt.Sprintf("zalo: token %s", e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TokenError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for this error's kind.
func (e *TokenError) Is(target error) bool {
	return tokenSentinels[e.Kind] == target
}

// APIError is a message the provider refused: non-200, undecodable body or a
// non-zero error code. Raw holds the response body for diagnostics.
type APIError struct {
	StatusCode int
	Code       *int
	Message    string
	Raw        string
}

func (e *APIError) Error() string {
	if e.Code != nil {
		return fmt.Sprintf("zalo: message rejected (status %d, error %d): %s", e.StatusCode, *e.Code, e.Message)
	}
	return fmt.Sprintf("zalo: message rejected (status %d): %s", e.StatusCode, e.Raw)
}

// TransportError wraps failures where no response was received.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return "zalo: transport: " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }
