// Package api defines the JSON request and response types of the fmusd
// HTTP surface. The types are transport-only; core semantics live in
// internal packages.
package api

import "time"

// CreateSessionRequest models POST /v1/session.
type CreateSessionRequest struct {
	// UserHome overrides the home directory holding the user's .fmu
	// configuration. Defaults to the daemon's $HOME when empty.
	UserHome string `json:"user_home,omitempty"`
}

// SessionResponse describes the current session.
type SessionResponse struct {
	// ID is the opaque session token; callers present it on later requests.
	ID string `json:"id"`
	// CreatedAt is when the session was created.
	CreatedAt time.Time `json:"created_at"`
	// ExpiresAt is the fixed expiry deadline (created_at + TTL).
	ExpiresAt time.Time `json:"expires_at"`
	// LastAccessed is refreshed on every authenticated request.
	LastAccessed time.Time `json:"last_accessed"`
}

// AccessTokenRequest models POST /v1/session/access_token.
type AccessTokenRequest struct {
	// ID names the token kind; must be one of the known kinds.
	ID string `json:"id"`
	// Key is the raw secret. It is stored masked and never echoed back.
	Key string `json:"key"`
}

// ProjectPathRequest models POST /v1/project and /v1/project/init.
type ProjectPathRequest struct {
	// Path is the project directory expected to contain (or receive) .fmu.
	Path string `json:"path"`
}

// ProjectConfig mirrors the project's .fmu configuration for responses.
type ProjectConfig struct {
	Version        string         `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	CreatedBy      string         `json:"created_by"`
	RMSProjectPath string         `json:"rms_project_path,omitempty"`
	Masterdata     map[string]any `json:"masterdata,omitempty"`
	Model          map[string]any `json:"model,omitempty"`
	Access         map[string]any `json:"access,omitempty"`
}

// ProjectResponse is returned when opening or inspecting a project.
type ProjectResponse struct {
	// Path is the project directory containing .fmu.
	Path string `json:"path"`
	// ProjectDirName is the directory name, not the path.
	ProjectDirName string `json:"project_dir_name"`
	// Config is the project's .fmu configuration.
	Config ProjectConfig `json:"config"`
	// ReadOnly is true when this session does not hold the directory lock.
	ReadOnly bool `json:"read_only"`
}

// LockInfo mirrors the lock file payload.
type LockInfo struct {
	SessionID  string    `json:"session_id"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// LockStatusResponse describes the project directory lock.
type LockStatusResponse struct {
	// Acquired is true when this session holds the lock.
	Acquired bool `json:"acquired"`
	// FileExists is true when a lock file is present on disk.
	FileExists bool `json:"file_exists"`
	// Held is true when some process holds the OS advisory lock.
	Held bool `json:"held"`
	// Stale is true when the file exists but no advisory lock is held.
	Stale bool `json:"stale"`
	// Info is the decoded lock payload, when readable.
	Info *LockInfo `json:"info,omitempty"`
	// ReadError reports a payload read/parse problem, when any.
	ReadError string `json:"read_error,omitempty"`
	// HolderAlive reports whether the recorded holder pid is running on
	// this host; null when unknown or remote.
	HolderAlive *bool `json:"holder_alive,omitempty"`
}

// RMSOpenRequest models POST /v1/rms/open.
type RMSOpenRequest struct {
	// Version selects the RMS version; defaults to the daemon's default.
	Version string `json:"version,omitempty"`
}

// StratigraphicZone is one zone bounded by its top and base horizons.
type StratigraphicZone struct {
	Name string `json:"name"`
	Top  string `json:"top"`
	Base string `json:"base"`
}

// StratigraphicColumn is returned by GET /v1/rms/stratigraphic_column.
type StratigraphicColumn struct {
	Zones []StratigraphicZone `json:"zones"`
}

// HorizonList is returned by GET /v1/rms/horizons.
type HorizonList struct {
	Horizons []string `json:"horizons"`
}

// WellList is returned by GET /v1/rms/wells.
type WellList struct {
	Wells []string `json:"wells"`
}

// SMDAField identifies an SMDA field by name and, once resolved, UUID.
type SMDAField struct {
	Identifier string `json:"identifier"`
	UUID       string `json:"uuid,omitempty"`
}

// SMDAFieldSearchResult is returned by POST /v1/smda/field.
type SMDAFieldSearchResult struct {
	Hits    int         `json:"hits"`
	Pages   int         `json:"pages"`
	Results []SMDAField `json:"results"`
}

// SMDAMasterdataRequest models POST /v1/smda/masterdata.
type SMDAMasterdataRequest struct {
	// Fields lists the fields to resolve masterdata for; at least one is
	// required.
	Fields []SMDAField `json:"fields"`
}

// SMDACountry is a country a field belongs to.
type SMDACountry struct {
	Identifier string `json:"identifier"`
	UUID       string `json:"uuid"`
}

// SMDADiscovery is a discovery tied to a field.
type SMDADiscovery struct {
	FieldIdentifier string `json:"field_identifier"`
	Identifier      string `json:"identifier"`
	ShortIdentifier string `json:"short_identifier"`
	UUID            string `json:"uuid"`
}

// SMDAStratColumn names a stratigraphic column covering a field area.
type SMDAStratColumn struct {
	Identifier string `json:"identifier"`
	UUID       string `json:"uuid"`
}

// SMDACoordinateSystem is one projected coordinate system known to SMDA.
type SMDACoordinateSystem struct {
	Identifier string `json:"identifier"`
	UUID       string `json:"uuid"`
}

// SMDAMasterdataResult is returned by POST /v1/smda/masterdata. The result
// is complete; the daemon never returns partial masterdata.
type SMDAMasterdataResult struct {
	Field                 []SMDAField            `json:"field"`
	Country               []SMDACountry          `json:"country"`
	Discovery             []SMDADiscovery        `json:"discovery"`
	StratigraphicColumns  []SMDAStratColumn      `json:"stratigraphic_columns"`
	FieldCoordinateSystem SMDACoordinateSystem   `json:"field_coordinate_system"`
	CoordinateSystems     []SMDACoordinateSystem `json:"coordinate_systems"`
}

// Message is a generic success envelope.
type Message struct {
	Message string `json:"message"`
}

// Error is the JSON error envelope for every non-2xx response.
type Error struct {
	// Code is a stable machine-readable error code.
	Code string `json:"code"`
	// Detail is a human-readable explanation.
	Detail string `json:"detail,omitempty"`
	// CorrelationID links the failure to server logs.
	CorrelationID string `json:"correlation_id,omitempty"`
}
