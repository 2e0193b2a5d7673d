// Package fmuconfig reads and writes the `.fmu` configuration directories
// the session core brokers access to.
//
// Two flavors exist: the user's home directory configuration (API keys,
// recent projects) and a per-project directory carrying the project's
// masterdata, model, and access configuration. The on-disk format is a
// single config.yaml inside the `.fmu` directory.
package fmuconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DirName is the name of a settings directory inside its parent.
const DirName = ".fmu"

// ConfigFileName is the configuration file inside a settings directory.
const ConfigFileName = "config.yaml"

// ErrNotFound signals that no `.fmu` directory exists at the inspected path.
var ErrNotFound = errors.New("fmuconfig: no .fmu directory found")

// ErrExists signals that initialization would overwrite an existing directory.
var ErrExists = errors.New("fmuconfig: .fmu directory already exists")

// ProjectConfig is the typed view of a project's config.yaml.
type ProjectConfig struct {
	Version        string         `yaml:"version" json:"version"`
	CreatedAt      time.Time      `yaml:"created_at" json:"created_at"`
	CreatedBy      string         `yaml:"created_by" json:"created_by"`
	RMSProjectPath string         `yaml:"rms_project_path,omitempty" json:"rms_project_path,omitempty"`
	Masterdata     map[string]any `yaml:"masterdata,omitempty" json:"masterdata,omitempty"`
	Model          map[string]any `yaml:"model,omitempty" json:"model,omitempty"`
	Access         map[string]any `yaml:"access,omitempty" json:"access,omitempty"`
}

// UserConfig is the typed view of the user's config.yaml.
type UserConfig struct {
	Version        string            `yaml:"version" json:"version"`
	CreatedAt      time.Time         `yaml:"created_at" json:"created_at"`
	APIKeys        map[string]string `yaml:"user_api_keys,omitempty" json:"user_api_keys,omitempty"`
	RecentProjects []string          `yaml:"recent_projects,omitempty" json:"recent_projects,omitempty"`
}

// Version tags newly initialized directories.
const Version = "0.1.0"

type dir struct {
	base string // parent of the .fmu directory
	path string // the .fmu directory itself
}

func (d dir) configPath() string { return filepath.Join(d.path, ConfigFileName) }

// ProjectDir is an opened project `.fmu` directory.
type ProjectDir struct {
	dir
}

// UserDir is the opened user home `.fmu` directory.
type UserDir struct {
	dir
}

// BasePath returns the project (or home) directory containing `.fmu`.
func (d dir) BasePath() string { return d.base }

// Path returns the `.fmu` directory itself.
func (d dir) Path() string { return d.path }

func open(base string) (dir, error) {
	path := filepath.Join(base, DirName)
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return dir{}, fmt.Errorf("%w: %s", ErrNotFound, base)
	}
	if err != nil {
		return dir{}, fmt.Errorf("fmuconfig: stat %s: %w", path, err)
	}
	if !fi.IsDir() {
		return dir{}, fmt.Errorf("fmuconfig: %s is not a directory", path)
	}
	if _, err := os.Stat(filepath.Join(path, ConfigFileName)); err != nil {
		return dir{}, fmt.Errorf("fmuconfig: %s unreadable: %w", filepath.Join(path, ConfigFileName), err)
	}
	return dir{base: base, path: path}, nil
}

func initDir(base string, seed any) (dir, error) {
	path := filepath.Join(base, DirName)
	if _, err := os.Stat(path); err == nil {
		return dir{}, fmt.Errorf("%w: %s", ErrExists, path)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return dir{}, fmt.Errorf("fmuconfig: create %s: %w", path, err)
	}
	d := dir{base: base, path: path}
	if err := writeYAML(d.configPath(), seed); err != nil {
		return dir{}, err
	}
	return d, nil
}

// OpenProjectDir opens an existing project `.fmu` directory under base.
func OpenProjectDir(base string) (*ProjectDir, error) {
	d, err := open(base)
	if err != nil {
		return nil, err
	}
	return &ProjectDir{dir: d}, nil
}

// InitProjectDir creates and opens a fresh project `.fmu` directory.
func InitProjectDir(base string, createdBy string, now time.Time) (*ProjectDir, error) {
	d, err := initDir(base, ProjectConfig{
		Version:   Version,
		CreatedAt: now.UTC(),
		CreatedBy: createdBy,
	})
	if err != nil {
		return nil, err
	}
	return &ProjectDir{dir: d}, nil
}

// FindNearestProjectDir walks from start toward the filesystem root and opens
// the first project `.fmu` directory it finds.
func FindNearestProjectDir(start string) (*ProjectDir, error) {
	current, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("fmuconfig: resolve %s: %w", start, err)
	}
	for {
		if pd, err := OpenProjectDir(current); err == nil {
			return pd, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return nil, fmt.Errorf("%w: nothing at or above %s", ErrNotFound, start)
		}
		current = parent
	}
}

// OpenUserDir opens the user's home `.fmu` directory.
func OpenUserDir(home string) (*UserDir, error) {
	d, err := open(home)
	if err != nil {
		return nil, err
	}
	return &UserDir{dir: d}, nil
}

// InitUserDir creates and opens a fresh user `.fmu` directory.
func InitUserDir(home string, now time.Time) (*UserDir, error) {
	d, err := initDir(home, UserConfig{Version: Version, CreatedAt: now.UTC()})
	if err != nil {
		return nil, err
	}
	return &UserDir{dir: d}, nil
}

// OpenOrInitUserDir opens the user's `.fmu` directory, creating it on first use.
func OpenOrInitUserDir(home string, now time.Time) (*UserDir, error) {
	ud, err := OpenUserDir(home)
	if errors.Is(err, ErrNotFound) {
		return InitUserDir(home, now)
	}
	return ud, err
}

// Config loads the project configuration from disk.
func (p *ProjectDir) Config() (ProjectConfig, error) {
	var cfg ProjectConfig
	if err := readYAML(p.configPath(), &cfg); err != nil {
		return ProjectConfig{}, err
	}
	return cfg, nil
}

// SetValue updates a dotted configuration path ("masterdata.smda") and
// persists the result. Intermediate maps are created as needed.
func (p *ProjectDir) SetValue(key string, value any) error {
	return setValue(p.configPath(), key, value)
}

// Config loads the user configuration from disk.
func (u *UserDir) Config() (UserConfig, error) {
	var cfg UserConfig
	if err := readYAML(u.configPath(), &cfg); err != nil {
		return UserConfig{}, err
	}
	return cfg, nil
}

// APIKey returns the named user API key, or "" when unset.
func (u *UserDir) APIKey(name string) (string, error) {
	cfg, err := u.Config()
	if err != nil {
		return "", err
	}
	return cfg.APIKeys[name], nil
}

// SetAPIKey stores the named user API key.
func (u *UserDir) SetAPIKey(name, value string) error {
	cfg, err := u.Config()
	if err != nil {
		return err
	}
	if cfg.APIKeys == nil {
		cfg.APIKeys = make(map[string]string)
	}
	cfg.APIKeys[name] = value
	return writeYAML(u.configPath(), cfg)
}

// AddRecentProject records path at the front of the recent-projects list,
// dropping duplicates.
func (u *UserDir) AddRecentProject(path string) error {
	cfg, err := u.Config()
	if err != nil {
		return err
	}
	recent := []string{path}
	for _, p := range cfg.RecentProjects {
		if p != path {
			recent = append(recent, p)
		}
	}
	cfg.RecentProjects = recent
	return writeYAML(u.configPath(), cfg)
}

// RemoveRecentProject drops path from the recent-projects list, e.g. after
// the project directory was deleted out from under us.
func (u *UserDir) RemoveRecentProject(path string) error {
	cfg, err := u.Config()
	if err != nil {
		return err
	}
	recent := cfg.RecentProjects[:0]
	for _, p := range cfg.RecentProjects {
		if p != path {
			recent = append(recent, p)
		}
	}
	cfg.RecentProjects = recent
	return writeYAML(u.configPath(), cfg)
}

func setValue(path, key string, value any) error {
	parts := strings.Split(key, ".")
	for _, part := range parts {
		if part == "" {
			return fmt.Errorf("fmuconfig: invalid key %q", key)
		}
	}

	raw := map[string]any{}
	if err := readYAML(path, &raw); err != nil {
		return err
	}
	node := raw
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[part] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = value
	return writeYAML(path, raw)
}

func readYAML(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("fmuconfig: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("fmuconfig: parse %s: %w", path, err)
	}
	return nil
}

func writeYAML(path string, in any) error {
	raw, err := yaml.Marshal(in)
	if err != nil {
		return fmt.Errorf("fmuconfig: encode %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("fmuconfig: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("fmuconfig: rename %s: %w", tmp, err)
	}
	return nil
}
