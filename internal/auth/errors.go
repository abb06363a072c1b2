package auth

import (
	"errors"
	"net/url"
	"strings"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrEmailTaken is returned when signing up with an email already in use.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidInput is returned for a malformed email or a short password.
	ErrInvalidInput = errors.New("invalid sign-up details")
	// ErrInvalidToken is returned for tokens that fail verification.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrTokenRevoked is returned for tokens that were signed out.
	ErrTokenRevoked = errors.New("token has been signed out")
)

// CallbackError is the error triple an identity provider appends to a
// redirect, e.g. error=access_denied&error_code=otp_expired.
type CallbackError struct {
	Error       string `json:"error"`
	Code        string `json:"error_code,omitempty"`
	Description string `json:"error_description,omitempty"`
}

// ParseCallbackError reads the error triple from query values. It returns
// nil when no error is present.
func ParseCallbackError(values url.Values) *CallbackError {
	e := values.Get("error")
	if e == "" {
		return nil
	}
	return &CallbackError{
		Error:       e,
		Code:        values.Get("error_code"),
		Description: values.Get("error_description"),
	}
}

// Message maps the error to text suitable for showing to a user.
func (e *CallbackError) Message() string {
	switch {
	case e.Code == "otp_expired":
		return "Your email link has expired. Please request a new one."
	case e.Code == "email_not_confirmed":
		return "Please check your email and click the confirmation link."
	case e.Error == "access_denied":
		return "Access denied. Please try signing in again."
	case e.Description != "":
		return strings.ReplaceAll(e.Description, "+", " ")
	}
	return "Authentication error. Please try again."
}
