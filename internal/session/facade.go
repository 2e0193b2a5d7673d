package session

import (
	"context"
	"sync"

	"pkt.systems/fmusd/internal/dirlock"
	"pkt.systems/fmusd/internal/fmuconfig"
	"pkt.systems/fmusd/internal/rms"
)

// The package-level façade mirrors every Manager operation on one shared
// registry, giving route layers a call surface without threading a manager
// through every dependency. Tests swap the shared instance with SetDefault.

var (
	defaultMu      sync.Mutex
	defaultManager *Manager
)

// Default returns the shared Manager, constructing it on first use.
func Default() *Manager {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultManager == nil {
		defaultManager = NewManager()
	}
	return defaultManager
}

// SetDefault replaces the shared Manager and returns the previous one.
// Passing nil resets to a lazily constructed default.
func SetDefault(m *Manager) *Manager {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	prev := defaultManager
	defaultManager = m
	return prev
}

// CreateSession creates a session on the shared manager.
func CreateSession(ctx context.Context, userDir *fmuconfig.UserDir) (string, error) {
	return Default().CreateSession(ctx, userDir)
}

// GetSession resolves a session view on the shared manager.
func GetSession(ctx context.Context, id string) (View, error) {
	return Default().GetSession(ctx, id)
}

// DestroySession destroys a session on the shared manager.
func DestroySession(ctx context.Context, id string) error {
	return Default().DestroySession(ctx, id)
}

// AddFMUProjectToSession attaches a project directory on the shared manager.
func AddFMUProjectToSession(ctx context.Context, id string, projectDir *fmuconfig.ProjectDir) (ProjectView, error) {
	return Default().AddFMUProjectToSession(ctx, id, projectDir)
}

// RemoveFMUProjectFromSession detaches the project on the shared manager.
func RemoveFMUProjectFromSession(ctx context.Context, id string) error {
	return Default().RemoveFMUProjectFromSession(ctx, id)
}

// TryAcquireProjectLock retries the project lock on the shared manager.
func TryAcquireProjectLock(ctx context.Context, id string) (ProjectView, error) {
	return Default().TryAcquireProjectLock(ctx, id)
}

// AddRecentProjectToSession records a recent project on the shared manager.
func AddRecentProjectToSession(ctx context.Context, id string, path string) error {
	return Default().AddRecentProjectToSession(ctx, id, path)
}

// SMDACredentials resolves SMDA credentials on the shared manager.
func SMDACredentials(ctx context.Context, id string) (accessToken, subscriptionKey string, err error) {
	return Default().SMDACredentials(ctx, id)
}

// AddAccessTokenToSession stores an access token on the shared manager.
func AddAccessTokenToSession(ctx context.Context, id string, token AccessToken) error {
	return Default().AddAccessTokenToSession(ctx, id, token)
}

// ProbeProjectLock reports the project lock's on-disk state via the shared
// manager.
func ProbeProjectLock(ctx context.Context, id string) (dirlock.Status, error) {
	return Default().ProbeProjectLock(ctx, id)
}

// AddRMSProjectToSession attaches an RMS handle on the shared manager.
func AddRMSProjectToSession(ctx context.Context, id string, project rms.Project) error {
	return Default().AddRMSProjectToSession(ctx, id, project)
}

// RemoveRMSProjectFromSession closes and clears the RMS handle on the
// shared manager.
func RemoveRMSProjectFromSession(ctx context.Context, id string) error {
	return Default().RemoveRMSProjectFromSession(ctx, id)
}
