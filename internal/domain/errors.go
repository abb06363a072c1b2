package domain

import "errors"

var (
	// ErrCredentialsMissing means a vendor key or agent id is not provisioned.
	ErrCredentialsMissing = errors.New("credentials missing")

	// ErrNetwork wraps failures of hosted API calls.
	ErrNetwork = errors.New("network failure")

	// ErrNotFoundYet is returned when a record that is created asynchronously
	// (the profile after sign-up) is not visible yet.
	ErrNotFoundYet = errors.New("not found yet")

	// ErrSessionTeardown marks errors raised while releasing a voice session.
	// They are logged and never returned to callers.
	ErrSessionTeardown = errors.New("session teardown")
)
