// Package settings manages persistent user settings for the newtrace CLI.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Settings holds persistent user preferences
type Settings struct {
	// DefaultUser is the SSH username when --user is not specified
	DefaultUser string `json:"default_user,omitempty"`

	// DefaultStart is the entry device when --from is not specified
	DefaultStart string `json:"default_start,omitempty"`

	// ProfilePath is the tracing profile (YAML) when --profile is not specified
	ProfilePath string `json:"profile,omitempty"`

	// ReportDir is where text reports are written
	ReportDir string `json:"report_dir,omitempty"`
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "newtrace_settings.json"
	}
	return filepath.Join(home, ".newtrace", "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty settings if file doesn't exist
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}

	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	// The file may name a username; keep it private.
	return os.WriteFile(path, data, 0600)
}

// fields maps setting names (and their aliases) to the backing field.
func (s *Settings) fields() map[string]*string {
	return map[string]*string{
		"user":       &s.DefaultUser,
		"start":      &s.DefaultStart,
		"profile":    &s.ProfilePath,
		"report_dir": &s.ReportDir,
	}
}

// Names returns the valid setting names, sorted.
func Names() []string {
	var names []string
	for name := range (&Settings{}).fields() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set assigns a setting by name.
func (s *Settings) Set(name, value string) error {
	f, ok := s.fields()[name]
	if !ok {
		return fmt.Errorf("unknown setting: %s (valid: %v)", name, Names())
	}
	*f = value
	return nil
}

// Get returns a setting by name.
func (s *Settings) Get(name string) (string, error) {
	f, ok := s.fields()[name]
	if !ok {
		return "", fmt.Errorf("unknown setting: %s (valid: %v)", name, Names())
	}
	return *f, nil
}

// GetReportDir returns the report directory (with fallback)
func (s *Settings) GetReportDir() string {
	if s.ReportDir != "" {
		return s.ReportDir
	}
	return "."
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}
