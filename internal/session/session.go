// Package session implements the process-wide session registry and the
// records it owns.
//
// A session represents one logical client: its home `.fmu` configuration
// directory, an optional attached project (configuration access, optional
// exclusive directory lock, optional opened RMS project), and a store of
// masked access tokens. Sessions carry a hard TTL fixed at creation; reads
// refresh last-access but never the deadline. The Manager exclusively owns
// every record and everything nested inside it.
package session

import (
	"time"

	"pkt.systems/fmusd/internal/dirlock"
	"pkt.systems/fmusd/internal/fmuconfig"
	"pkt.systems/fmusd/internal/rms"
)

// TokenID names one of the known access-token kinds.
type TokenID string

// The enumerated set of access tokens a session may carry. Storing any
// other id fails validation before the session is mutated.
const (
	TokenSMDAAPI          TokenID = "smda_api"
	TokenSMDASubscription TokenID = "smda_subscription"
)

func knownTokenID(id TokenID) bool {
	switch id {
	case TokenSMDAAPI, TokenSMDASubscription:
		return true
	}
	return false
}

// SecretMask is the fixed rendering of any stored secret.
const SecretMask = "**********"

// Secret holds a raw token value but never reveals it through printing or
// serialization: String, GoString, and MarshalJSON all produce SecretMask.
type Secret string

func (Secret) String() string { return SecretMask }

// GoString keeps %#v output masked.
func (Secret) GoString() string { return "session.Secret(" + SecretMask + ")" }

// MarshalJSON renders the fixed mask, never the raw value.
func (Secret) MarshalJSON() ([]byte, error) { return []byte(`"` + SecretMask + `"`), nil }

// Reveal returns the raw secret for use against upstream services.
func (s Secret) Reveal() string { return string(s) }

// AccessToken pairs a known token id with its secret.
type AccessToken struct {
	ID  TokenID `json:"id"`
	Key Secret  `json:"key"`
}

// ProjectSession is the part of a session attached to one project directory.
type ProjectSession struct {
	// ProjectDir gives configuration access regardless of lock ownership.
	ProjectDir *fmuconfig.ProjectDir
	// Lock is nil when another holder owns the directory lock; the session
	// then has read access but no exclusive write ownership.
	Lock *dirlock.Lock

	// rmsProject is mutated only by the Manager, which closes it exactly
	// once on removal or session destruction.
	rmsProject rms.Project
}

// RMSProject returns the opened RMS project handle, or nil.
func (p *ProjectSession) RMSProject() rms.Project {
	if p == nil {
		return nil
	}
	return p.rmsProject
}

// HoldsLock reports whether this session owns the project directory lock.
func (p *ProjectSession) HoldsLock() bool {
	return p != nil && p.Lock != nil && p.Lock.IsAcquired()
}

// Record is one live session. The Manager owns its lifetime and mutates it
// only under its mutex; records never escape the manager. Callers observe
// sessions through views.
type Record struct {
	ID           string
	UserDir      *fmuconfig.UserDir
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastAccessed time.Time
	AccessTokens map[TokenID]Secret
	Project      *ProjectSession
}

// Token returns the stored secret for id and whether it is present.
func (r *Record) Token(id TokenID) (Secret, bool) {
	s, ok := r.AccessTokens[id]
	return s, ok
}

// view snapshots the record. Caller holds the manager mutex.
func (r *Record) view() View {
	v := View{
		ID:           r.ID,
		CreatedAt:    r.CreatedAt,
		ExpiresAt:    r.ExpiresAt,
		LastAccessed: r.LastAccessed,
		AccessTokens: make(map[TokenID]Secret, len(r.AccessTokens)),
	}
	for id, secret := range r.AccessTokens {
		v.AccessTokens[id] = secret
	}
	if r.Project != nil {
		pv := r.Project.view()
		v.Project = &pv
	}
	return v
}

// view snapshots the project attachment. Caller holds the manager mutex.
func (p *ProjectSession) view() ProjectView {
	pv := ProjectView{Dir: p.ProjectDir}
	if p.Lock != nil && p.Lock.IsAcquired() {
		pv.lockHeld = true
		pv.LockPath = p.Lock.Path()
	}
	return pv
}

// View is a point-in-time copy of a record's state, taken under the manager
// mutex. It stays valid while concurrent requests mutate the record; reading
// it never races with the manager.
type View struct {
	ID           string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastAccessed time.Time
	AccessTokens map[TokenID]Secret
	Project      *ProjectView
}

// Token returns the stored secret for id and whether it is present.
func (v View) Token(id TokenID) (Secret, bool) {
	s, ok := v.AccessTokens[id]
	return s, ok
}

// ProjectView is a snapshot of an attached project. Dir is safe to share
// between goroutines; its state lives on disk, not in memory.
type ProjectView struct {
	// Dir gives configuration access regardless of lock ownership.
	Dir *fmuconfig.ProjectDir
	// LockPath is the lock file location when the lock was held at snapshot
	// time, empty otherwise.
	LockPath string

	lockHeld bool
}

// HoldsLock reports whether the session held the directory lock when the
// snapshot was taken.
func (p ProjectView) HoldsLock() bool { return p.lockHeld }
