package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"pkt.systems/pslog"

	"pkt.systems/fmusd/internal/clock"
	"pkt.systems/fmusd/internal/dirlock"
	"pkt.systems/fmusd/internal/fmuconfig"
	"pkt.systems/fmusd/internal/rms"
	"pkt.systems/fmusd/internal/sessionid"
)

// DefaultTTL is the hard session lifetime when none is configured.
const DefaultTTL = time.Hour

// Manager is the process-wide session registry. All registry access runs
// under one mutex; records and their nested resources (directory lock, RMS
// handle) are owned exclusively by the manager. Expiration is lazy: it is
// detected on lookup, not by a sweeper, so a session that is never read
// again holds its lock and RMS handle until shutdown.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Record

	clock   clock.Clock
	ttl     time.Duration
	logger  pslog.Logger
	metrics *Metrics
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock injects a custom time source (tests use clock.Manual).
func WithClock(c clock.Clock) ManagerOption {
	return func(m *Manager) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithTTL sets the fixed session time-to-live.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithLogger supplies a structured logger.
func WithLogger(l pslog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics attaches a metric set.
func WithMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = metrics }
}

// NewManager constructs an empty registry.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions: make(map[string]*Record),
		clock:    clock.Real{},
		ttl:      DefaultTTL,
		logger:   pslog.NoopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the fixed session lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Len returns the number of registered records, including expired ones not
// yet collected by a lookup.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// shortID renders a loggable prefix of a session id. Session ids are
// credentials; they never appear in full in logs.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// CreateSession registers a new session for the given user configuration
// directory and returns its id. The expiry deadline is fixed here and never
// extended afterwards.
func (m *Manager) CreateSession(ctx context.Context, userDir *fmuconfig.UserDir) (string, error) {
	id, err := sessionid.New()
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	now := m.clock.Now()
	rec := &Record{
		ID:           id,
		UserDir:      userDir,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.ttl),
		LastAccessed: now,
		AccessTokens: make(map[TokenID]Secret),
	}

	m.mu.Lock()
	m.sessions[id] = rec
	total := len(m.sessions)
	m.mu.Unlock()

	m.metrics.incCreated()
	m.loggerFor(ctx).Info("session.create",
		"sid", shortID(id),
		"expires_at", rec.ExpiresAt,
		"sessions", total,
	)
	return id, nil
}

// getLocked resolves id under m.mu, enforcing lazy expiry. A hit refreshes
// last-accessed; the expiry deadline never moves. An expired record is
// destroyed through the full teardown path and reported as not found.
func (m *Manager) getLocked(ctx context.Context, id string) (*Record, error) {
	rec, ok := m.sessions[id]
	if !ok {
		return nil, notFoundFailure("No active session found")
	}
	now := m.clock.Now()
	if !now.Before(rec.ExpiresAt) {
		destroyErr := m.destroyLocked(rec)
		m.metrics.incExpired()
		logger := m.loggerFor(ctx)
		logger.Info("session.expired", "sid", shortID(id), "expired_at", rec.ExpiresAt)
		if destroyErr != nil {
			logger.Warn("session.expired.cleanup_failed", "sid", shortID(id), "error", destroyErr)
		}
		return nil, notFoundFailure("Invalid or expired session")
	}
	rec.LastAccessed = now
	return rec, nil
}

// GetSession resolves id with expiry check and last-access refresh. The
// record itself never leaves the mutex; callers get a point-in-time view.
func (m *Manager) GetSession(ctx context.Context, id string) (View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.getLocked(ctx, id)
	if err != nil {
		return View{}, err
	}
	return rec.view(), nil
}

// DestroySession removes the record and tears down everything it owns:
// close the RMS project, release the directory lock, drop the record. Later
// steps run even when an earlier one fails; the first failure is returned.
// Destroying an absent id is a no-op.
func (m *Manager) DestroySession(ctx context.Context, id string) error {
	m.mu.Lock()
	rec, ok := m.sessions[id]
	var err error
	if ok {
		err = m.destroyLocked(rec)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}
	m.metrics.incDestroyed()
	m.loggerFor(ctx).Info("session.destroy", "sid", shortID(id))
	return err
}

// destroyLocked runs the teardown path shared by explicit destruction and
// lazy expiry: resource close first, then lock release, then record drop.
// Caller holds m.mu.
func (m *Manager) destroyLocked(rec *Record) error {
	delete(m.sessions, rec.ID)

	var firstErr error
	if ps := rec.Project; ps != nil {
		if ps.rmsProject != nil {
			if err := ps.rmsProject.Close(); err != nil {
				firstErr = Failure{Code: "rms_close_failed", Detail: err.Error(), HTTPStatus: http.StatusInternalServerError, Err: err}
			}
			ps.rmsProject = nil
		}
		if ps.Lock != nil {
			if err := ps.Lock.Release(); err != nil && firstErr == nil {
				firstErr = err
			}
			ps.Lock = nil
		}
		rec.Project = nil
	}
	return firstErr
}

// AddFMUProjectToSession attaches the project `.fmu` directory to the
// session, replacing (and first releasing) any previously attached one. The
// directory lock is acquired into a local value and only published into the
// record on success, so an aborted attach can never leak a half-acquired
// lock into the registry. Contention is not a failure: the returned view
// then reports no held lock and read-only configuration access.
func (m *Manager) AddFMUProjectToSession(ctx context.Context, id string, projectDir *fmuconfig.ProjectDir) (ProjectView, error) {
	logger := m.loggerFor(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.getLocked(ctx, id)
	if err != nil {
		return ProjectView{}, err
	}

	// Release any predecessor before acquiring: re-attaching the same
	// directory must not contend with our own held lock.
	if prev := rec.Project; prev != nil {
		if prev.rmsProject != nil {
			if err := prev.rmsProject.Close(); err != nil {
				logger.Warn("rms.close_failed", "sid", shortID(id), "error", err)
			}
			prev.rmsProject = nil
		}
		if prev.Lock != nil {
			if err := prev.Lock.Release(); err != nil {
				logger.Warn("project.lock.release_failed", "sid", shortID(id), "error", err)
			}
			prev.Lock = nil
		}
		rec.Project = nil
	}

	lock := dirlock.New(projectDir.Path(), dirlock.WithNow(m.clock.Now))
	held, err := lock.Acquire(id)
	if err != nil {
		if errors.Is(err, dirlock.ErrPermission) {
			m.metrics.incLockPermission()
			return ProjectView{}, Failure{Code: "lock_permission", Detail: err.Error(), HTTPStatus: http.StatusForbidden, Err: err}
		}
		return ProjectView{}, fmt.Errorf("attach project: %w", err)
	}

	ps := &ProjectSession{ProjectDir: projectDir}
	if held {
		ps.Lock = lock
		m.metrics.incLockAcquired()
		logger.Info("project.attach", "sid", shortID(id), "dir", projectDir.Path(), "lock", "acquired")
	} else {
		m.metrics.incLockContended()
		logger.Info("project.attach", "sid", shortID(id), "dir", projectDir.Path(), "lock", "contended")
	}
	rec.Project = ps
	return ps.view(), nil
}

// RemoveFMUProjectFromSession releases the attached lock (if held) and
// clears the attached project. No-op when nothing is attached.
func (m *Manager) RemoveFMUProjectFromSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.getLocked(ctx, id)
	if err != nil {
		return err
	}
	ps := rec.Project
	if ps == nil {
		return nil
	}
	rec.Project = nil

	var firstErr error
	if ps.rmsProject != nil {
		if err := ps.rmsProject.Close(); err != nil {
			firstErr = Failure{Code: "rms_close_failed", Detail: err.Error(), HTTPStatus: http.StatusInternalServerError, Err: err}
		}
		ps.rmsProject = nil
	}
	if ps.Lock != nil {
		if err := ps.Lock.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
		ps.Lock = nil
	}
	m.loggerFor(ctx).Info("project.detach", "sid", shortID(id))
	return firstErr
}

// TryAcquireProjectLock retries lock acquisition for a session that
// attached its project read-only. Idempotent when the lock is already held.
func (m *Manager) TryAcquireProjectLock(ctx context.Context, id string) (ProjectView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.getLocked(ctx, id)
	if err != nil {
		return ProjectView{}, err
	}
	ps := rec.Project
	if ps == nil {
		return ProjectView{}, Failure{Code: "no_project", Detail: "no project attached to session", HTTPStatus: http.StatusUnauthorized, Err: ErrNoProject}
	}
	if ps.Lock != nil {
		return ps.view(), nil
	}

	lock := dirlock.New(ps.ProjectDir.Path(), dirlock.WithNow(m.clock.Now))
	held, err := lock.Acquire(id)
	if err != nil {
		if errors.Is(err, dirlock.ErrPermission) {
			m.metrics.incLockPermission()
			return ProjectView{}, Failure{Code: "lock_permission", Detail: err.Error(), HTTPStatus: http.StatusForbidden, Err: err}
		}
		return ProjectView{}, fmt.Errorf("acquire project lock: %w", err)
	}
	if held {
		ps.Lock = lock
		m.metrics.incLockAcquired()
		m.loggerFor(ctx).Info("project.lock.acquired", "sid", shortID(id), "dir", ps.ProjectDir.Path())
	} else {
		m.metrics.incLockContended()
	}
	return ps.view(), nil
}

// AddRecentProjectToSession records path at the front of the session's
// user-configuration recent-projects list.
func (m *Manager) AddRecentProjectToSession(ctx context.Context, id string, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.getLocked(ctx, id)
	if err != nil {
		return err
	}
	if rec.UserDir == nil {
		return nil
	}
	return rec.UserDir.AddRecentProject(path)
}

// AddAccessTokenToSession stores a masked access token. Unknown token ids
// are rejected before any mutation.
func (m *Manager) AddAccessTokenToSession(ctx context.Context, id string, token AccessToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.getLocked(ctx, id)
	if err != nil {
		return err
	}
	if !knownTokenID(token.ID) {
		return Failure{
			Code:       "invalid_token_id",
			Detail:     fmt.Sprintf("Invalid access token id %q", token.ID),
			HTTPStatus: http.StatusBadRequest,
			Err:        ErrInvalidTokenID,
		}
	}
	rec.AccessTokens[token.ID] = token.Key
	m.loggerFor(ctx).Info("session.token.set", "sid", shortID(id), "token_id", string(token.ID))
	return nil
}

// AddRMSProjectToSession attaches an opened RMS project handle to the
// session's project. A previously attached handle is closed first so it is
// never silently leaked.
func (m *Manager) AddRMSProjectToSession(ctx context.Context, id string, project rms.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.getLocked(ctx, id)
	if err != nil {
		return err
	}
	ps := rec.Project
	if ps == nil {
		return Failure{Code: "no_project", Detail: "no project attached to session", HTTPStatus: http.StatusUnauthorized, Err: ErrNoProject}
	}
	if ps.rmsProject != nil {
		if err := ps.rmsProject.Close(); err != nil {
			m.loggerFor(ctx).Warn("rms.close_failed", "sid", shortID(id), "error", err)
		}
	}
	ps.rmsProject = project
	m.loggerFor(ctx).Info("rms.attach", "sid", shortID(id))
	return nil
}

// RemoveRMSProjectFromSession closes and clears the session's RMS project
// handle. The handle is cleared even when Close fails; the failure is
// surfaced to the caller.
func (m *Manager) RemoveRMSProjectFromSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.getLocked(ctx, id)
	if err != nil {
		return err
	}
	ps := rec.Project
	if ps == nil {
		return Failure{Code: "no_project", Detail: "no project attached to session", HTTPStatus: http.StatusUnauthorized, Err: ErrNoProject}
	}
	if ps.rmsProject == nil {
		return Failure{Code: "no_rms_project", Detail: "no RMS project open in session", HTTPStatus: http.StatusBadRequest, Err: ErrNoRMSProject}
	}
	closeErr := ps.rmsProject.Close()
	ps.rmsProject = nil
	m.loggerFor(ctx).Info("rms.detach", "sid", shortID(id))
	if closeErr != nil {
		return Failure{Code: "rms_close_failed", Detail: closeErr.Error(), HTTPStatus: http.StatusInternalServerError, Err: closeErr}
	}
	return nil
}

// ProbeProjectLock reports the on-disk state of the attached project's lock
// file. A session that holds the lock probes through its own Lock; a
// contended attach probes through a throwaway instance that never acquires.
func (m *Manager) ProbeProjectLock(ctx context.Context, id string) (dirlock.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.getLocked(ctx, id)
	if err != nil {
		return dirlock.Status{}, err
	}
	ps := rec.Project
	if ps == nil {
		return dirlock.Status{}, Failure{Code: "no_project", Detail: "no project attached to session", HTTPStatus: http.StatusUnauthorized, Err: ErrNoProject}
	}
	if ps.Lock != nil {
		return ps.Lock.Probe()
	}
	return dirlock.New(ps.ProjectDir.Path(), dirlock.WithNow(m.clock.Now)).Probe()
}

// RMSProject returns the session's opened RMS project handle. The handle
// stays owned by the manager; callers must not retain it across requests.
func (m *Manager) RMSProject(ctx context.Context, id string) (rms.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	ps := rec.Project
	if ps == nil {
		return nil, Failure{Code: "no_project", Detail: "no project attached to session", HTTPStatus: http.StatusUnauthorized, Err: ErrNoProject}
	}
	if ps.rmsProject == nil {
		return nil, Failure{Code: "no_rms_project", Detail: "No RMS project is currently open. Please open an RMS project first.", HTTPStatus: http.StatusBadRequest, Err: ErrNoRMSProject}
	}
	return ps.rmsProject, nil
}

// SMDACredentials resolves what a session needs to query SMDA: the access
// token from the session store, and the subscription key from the session
// store or, failing that, the user configuration's API keys.
func (m *Manager) SMDACredentials(ctx context.Context, id string) (accessToken, subscriptionKey string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.getLocked(ctx, id)
	if err != nil {
		return "", "", err
	}
	access, ok := rec.Token(TokenSMDAAPI)
	if !ok {
		return "", "", Failure{Code: "smda_token_missing", Detail: "SMDA access token is not set", HTTPStatus: http.StatusUnauthorized, Err: ErrNoSMDAToken}
	}
	if sub, ok := rec.Token(TokenSMDASubscription); ok {
		return access.Reveal(), sub.Reveal(), nil
	}
	if rec.UserDir != nil {
		key, keyErr := rec.UserDir.APIKey(string(TokenSMDASubscription))
		if keyErr != nil {
			return "", "", fmt.Errorf("read user api keys: %w", keyErr)
		}
		if key != "" {
			return access.Reveal(), key, nil
		}
	}
	return "", "", Failure{Code: "smda_subscription_missing", Detail: "SMDA subscription key is not set", HTTPStatus: http.StatusUnauthorized, Err: ErrNoSMDAToken}
}

// Shutdown destroys every live session, releasing locks and closing RMS
// handles. The first failure is returned after all sessions are processed.
// A cancelled context stops the sweep between sessions; whatever remains is
// left registered for a later call.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	recs := make([]*Record, 0, len(m.sessions))
	for _, rec := range m.sessions {
		recs = append(recs, rec)
	}
	var firstErr error
	destroyed := 0
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			break
		}
		destroyed++
		if err := m.destroyLocked(rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.mu.Unlock()

	m.loggerFor(ctx).Info("session.shutdown", "destroyed", destroyed)
	return firstErr
}

func (m *Manager) loggerFor(ctx context.Context) pslog.Logger {
	if logger := pslog.LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return m.logger
}
