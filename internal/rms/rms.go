// Package rms defines the contract between the session core and an opened
// RMS project.
//
// The core treats a project as an opaque, heavyweight resource: it can be
// opened (which may fail), queried, and must be closed exactly once. The
// real client binds to the external RMS API; tests and local development use
// the stub implementation.
package rms

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultVersion is the RMS version used when the caller does not pick one.
const DefaultVersion = "14.2.2"

// ErrClosed signals use of a project handle after Close.
var ErrClosed = errors.New("rms: project is closed")

// Zone is one stratigraphic zone bounded by two horizons.
type Zone struct {
	Name string `json:"name"`
	// Top and Base name the horizons above and below the zone.
	Top  string `json:"top"`
	Base string `json:"base"`
}

// Project is an opened RMS project. Implementations must tolerate Close
// being called exactly once; the session core guarantees it never shares a
// handle between sessions.
type Project interface {
	Zones() ([]Zone, error)
	Horizons() ([]string, error)
	Wells() ([]string, error)
	Close() error
}

// Opener opens RMS projects. Open failures are user-facing errors, never
// silently retried by the core.
type Opener interface {
	Open(ctx context.Context, path, version string) (Project, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, path, version string) (Project, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context, path, version string) (Project, error) {
	return f(ctx, path, version)
}

// StubProject is an in-memory Project for tests and local development.
type StubProject struct {
	ZoneList    []Zone
	HorizonList []string
	WellList    []string

	mu     sync.Mutex
	closed bool
	Closes int
}

// Zones returns the configured zone list.
func (p *StubProject) Zones() ([]Zone, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	return append([]Zone(nil), p.ZoneList...), nil
}

// Horizons returns the configured horizon names.
func (p *StubProject) Horizons() ([]string, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	return append([]string(nil), p.HorizonList...), nil
}

// Wells returns the configured well names.
func (p *StubProject) Wells() ([]string, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	return append([]string(nil), p.WellList...), nil
}

// Close marks the project closed and counts invocations.
func (p *StubProject) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closes++
	if p.closed {
		return ErrClosed
	}
	p.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (p *StubProject) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *StubProject) check() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return nil
}

// StubOpener hands out pre-configured stub projects keyed by path.
type StubOpener struct {
	Projects map[string]*StubProject
	// Err, when set, fails every Open call.
	Err error
}

// Open implements Opener.
func (o *StubOpener) Open(_ context.Context, path, version string) (Project, error) {
	if o.Err != nil {
		return nil, o.Err
	}
	if version == "" {
		version = DefaultVersion
	}
	p, ok := o.Projects[path]
	if !ok {
		return nil, fmt.Errorf("rms: no project at %s (version %s)", path, version)
	}
	return p, nil
}
