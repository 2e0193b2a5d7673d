// Package dirlock implements a cooperative, cross-process exclusive lock
// over a directory.
//
// The lock is backed by an OS advisory lock on `<dir>/.lock` plus a small
// JSON payload identifying the holder (session id, pid, hostname, acquire
// time). The payload is diagnostic only: mutual exclusion comes from the
// advisory lock on the open file descriptor, so a crashed holder leaves a
// readable but stale lock file behind. Status distinguishes the two by
// probing the advisory lock, never by file existence alone.
package dirlock

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// LockFileName is the name of the lock file inside a locked directory.
const LockFileName = ".lock"

// ErrPermission signals that the target directory cannot be locked because
// of insufficient permissions. It is distinct from contention, which is a
// boolean "not acquired" result: retrying a permission failure will not help.
var ErrPermission = errors.New("dirlock: directory permission denied")

const (
	writeMask = 0o222
	execMask  = 0o111
)

// Info is the JSON payload written into the lock file at acquisition.
type Info struct {
	SessionID  string    `json:"session_id"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Lock represents an exclusive lock on one directory. The zero value is not
// usable; construct instances with New. A Lock instance holds at most one
// live acquisition handle at a time.
type Lock struct {
	dir      string
	lockPath string
	now      func() time.Time

	mu     sync.Mutex
	handle *os.File
}

// Option configures a Lock.
type Option func(*Lock)

// WithNow overrides the time source used for the acquired_at payload field.
func WithNow(now func() time.Time) Option {
	return func(l *Lock) {
		if now != nil {
			l.now = now
		}
	}
}

// New constructs a Lock over dir without performing any I/O.
func New(dir string, opts ...Option) *Lock {
	l := &Lock{
		dir:      dir,
		lockPath: filepath.Join(dir, LockFileName),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Dir returns the directory this lock guards.
func (l *Lock) Dir() string { return l.dir }

// Path returns the lock file path.
func (l *Lock) Path() string { return l.lockPath }

// IsAcquired reports whether this instance currently holds the lock.
func (l *Lock) IsAcquired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handle != nil
}

// Acquire attempts to take the exclusive lock on behalf of holderID.
//
// It returns (true, nil) when the lock was obtained or when this instance
// already holds it. It returns (false, nil) when another holder owns the
// advisory lock: contention is an expected outcome, not an error. Errors are
// reserved for broken environments, most notably ErrPermission when the
// directory is not writable, and I/O failures. After any failure the
// instance is left unacquired with no descriptor leaked.
func (l *Lock) Acquire(holderID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.handle != nil {
		return true, nil
	}

	if err := requireWriteAccess(l.dir); err != nil {
		return false, err
	}

	f, err := os.OpenFile(l.lockPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return false, fmt.Errorf("%w: %s", ErrPermission, l.lockPath)
		}
		return false, fmt.Errorf("dirlock: open %s: %w", l.lockPath, err)
	}

	held, err := tryLockFile(f)
	if err != nil {
		_ = f.Close()
		return false, fmt.Errorf("dirlock: lock %s: %w", l.lockPath, err)
	}
	if !held {
		_ = f.Close()
		return false, nil
	}

	if err := l.writePayload(f, holderID); err != nil {
		_ = unlockFile(f)
		_ = f.Close()
		return false, err
	}

	l.handle = f
	// Safety net only: the contract is an explicit Release.
	runtime.SetFinalizer(l, func(l *Lock) { _ = l.Release() })
	return true, nil
}

func (l *Lock) writePayload(f *os.File, holderID string) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("dirlock: truncate %s: %w", l.lockPath, err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("dirlock: seek %s: %w", l.lockPath, err)
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	payload, err := json.Marshal(Info{
		SessionID:  holderID,
		PID:        os.Getpid(),
		Hostname:   hostname,
		AcquiredAt: l.now(),
	})
	if err != nil {
		return fmt.Errorf("dirlock: encode payload: %w", err)
	}
	payload = append(payload, '\n')
	if _, err := f.Write(payload); err != nil {
		return fmt.Errorf("dirlock: write %s: %w", l.lockPath, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("dirlock: fsync %s: %w", l.lockPath, err)
	}
	return nil
}

// Release drops the lock if held. It is idempotent and safe to call on an
// instance that never acquired. The advisory lock is always released and the
// handle closed; a failed unlink surfaces as the returned error.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.handle == nil {
		return nil
	}

	f := l.handle
	l.handle = nil
	runtime.SetFinalizer(l, nil)

	unlockErr := unlockFile(f)
	closeErr := f.Close()
	removeErr := os.Remove(l.lockPath)
	if removeErr != nil && errors.Is(removeErr, fs.ErrNotExist) {
		removeErr = nil
	}

	switch {
	case unlockErr != nil:
		return fmt.Errorf("dirlock: unlock %s: %w", l.lockPath, unlockErr)
	case closeErr != nil:
		return fmt.Errorf("dirlock: close %s: %w", l.lockPath, closeErr)
	case removeErr != nil:
		return fmt.Errorf("dirlock: remove %s: %w", l.lockPath, removeErr)
	}
	return nil
}

// Status describes the observable state of a directory's lock file.
type Status struct {
	// Exists reports whether the lock file is present on disk.
	Exists bool
	// HeldBySelf reports whether this Lock instance owns the lock.
	HeldBySelf bool
	// Held reports whether some process holds the advisory lock.
	Held bool
	// Stale is true when the file exists but no advisory lock is held,
	// e.g. after a holder crashed.
	Stale bool
	// Info is the decoded payload, when present and parseable.
	Info *Info
	// ReadError carries a payload read/parse failure without failing the probe.
	ReadError string
	// HolderAlive reports whether the recorded pid maps to a running process
	// on this host. Nil when no payload is available or the pid is remote.
	HolderAlive *bool
}

// Probe inspects the lock file and advisory lock state without disturbing
// an external holder.
func (l *Lock) Probe() (Status, error) {
	l.mu.Lock()
	self := l.handle != nil
	l.mu.Unlock()

	var st Status
	st.HeldBySelf = self

	raw, err := os.ReadFile(l.lockPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return st, nil
	case err != nil:
		return st, fmt.Errorf("dirlock: read %s: %w", l.lockPath, err)
	}
	st.Exists = true

	var info Info
	if jsonErr := json.Unmarshal(raw, &info); jsonErr != nil {
		st.ReadError = fmt.Sprintf("parse lock payload: %v", jsonErr)
	} else {
		st.Info = &info
		if info.Hostname != "" {
			if hostname, hostErr := os.Hostname(); hostErr == nil && hostname == info.Hostname {
				alive, pidErr := process.PidExists(int32(info.PID))
				if pidErr == nil {
					st.HolderAlive = &alive
				}
			}
		}
	}

	if self {
		st.Held = true
		return st, nil
	}

	held, err := probeLocked(l.lockPath)
	if err != nil {
		return st, err
	}
	st.Held = held
	st.Stale = !held
	return st, nil
}

func requireWriteAccess(dir string) error {
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("dirlock: stat %s: %w", dir, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("dirlock: %s is not a directory", dir)
	}
	mode := fi.Mode().Perm()
	if mode&writeMask == 0 || mode&execMask == 0 {
		return fmt.Errorf("%w: %s", ErrPermission, dir)
	}
	return nil
}
