package session

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for errors.Is matching across package boundaries.
var (
	// ErrSessionNotFound covers both unknown and expired session ids; an
	// expired session is destroyed as a side effect of being detected.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidTokenID rejects access tokens outside the known set.
	ErrInvalidTokenID = errors.New("invalid access token id")
	// ErrNoProject signals an operation that requires an attached project.
	ErrNoProject = errors.New("no project attached to session")
	// ErrNoRMSProject signals an operation that requires an open RMS project.
	ErrNoRMSProject = errors.New("no RMS project open in session")
	// ErrNoSMDAToken signals missing SMDA credentials in the session or the
	// user configuration.
	ErrNoSMDAToken = errors.New("SMDA credentials not set")
)

// Failure captures transport-neutral error details that adapters can map to
// HTTP status codes. The session core never translates to transport itself.
type Failure struct {
	Code       string
	Detail     string
	HTTPStatus int // optional hint for HTTP adapters
	Err        error
}

func (f Failure) Error() string {
	if f.Detail != "" {
		return fmt.Sprintf("%s: %s", f.Code, f.Detail)
	}
	return f.Code
}

// Unwrap exposes the sentinel or underlying cause for errors.Is/As.
func (f Failure) Unwrap() error { return f.Err }

func notFoundFailure(detail string) error {
	return Failure{Code: "session_not_found", Detail: detail, HTTPStatus: http.StatusUnauthorized, Err: ErrSessionNotFound}
}
