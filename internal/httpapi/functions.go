package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"pkt.systems/fmusd/api"
)

// DefaultMaxBodyBytes bounds request bodies when no limit is configured.
const DefaultMaxBodyBytes = 1 << 20

// sessionIDFromRequest reads the session id from the cookie or, failing
// that, from the header. An empty string means no session presented.
func sessionIDFromRequest(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return strings.TrimSpace(r.Header.Get(SessionHeaderName))
}

// requireSessionID fetches the session id or fails the way an unknown
// session does, so probing callers cannot tell the two apart.
func requireSessionID(r *http.Request) (string, error) {
	id := sessionIDFromRequest(r)
	if id == "" {
		return "", httpError{Status: http.StatusUnauthorized, Code: "session_not_found", Detail: "No active session found"}
	}
	return id, nil
}

func (h *Handler) decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, h.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return httpError{Status: http.StatusBadRequest, Code: "invalid_request", Detail: "malformed request body: " + err.Error()}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return httpError{Status: http.StatusBadRequest, Code: "invalid_request", Detail: "request body must contain a single JSON object"}
	}
	return nil
}

// decodeOptionalJSON is decodeJSON for endpoints where an empty body means
// all defaults.
func (h *Handler) decodeOptionalJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return h.decodeJSON(r, v)
}

func methodNotAllowed(allowed ...string) httpError {
	return httpError{
		Status: http.StatusMethodNotAllowed,
		Code:   "method_not_allowed",
		Detail: "allowed: " + strings.Join(allowed, ", "),
	}
}

func apiError(he httpError, cid string) api.Error {
	return api.Error{Code: he.Code, Detail: he.Detail, CorrelationID: cid}
}
