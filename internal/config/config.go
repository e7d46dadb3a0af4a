// ABOUTME: Settings loading with defaults, YAML file and PKGSYNC_* env overrides via viper
// ABOUTME: Settings are written back as YAML with an atomic temp-file rename

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Setting keys as they appear in the file and, upper-cased with a PKGSYNC_
// prefix, in the environment.
const (
	KeyManifest     = "manifest"
	KeyPackagesDir  = "packages_dir"
	KeyTickInterval = "tick_interval"
	KeyHTTPTimeout  = "http_timeout"
	KeyAssumeYes    = "assume_yes"
)

// Keys lists every setting key in display order.
var Keys = []string{KeyManifest, KeyPackagesDir, KeyTickInterval, KeyHTTPTimeout, KeyAssumeYes}

const (
	DefaultTickInterval = 50 * time.Millisecond
	DefaultHTTPTimeout  = 30 * time.Second
)

// ErrUnknownKey is returned for a setting key not in Keys.
var ErrUnknownKey = errors.New("unknown setting")

// Settings holds the resolved configuration.
type Settings struct {
	// ManifestLocator is the raw locator; empty selects the default manifest.
	ManifestLocator string
	PackagesDir     string
	TickInterval    time.Duration
	HTTPTimeout     time.Duration
	// AssumeYes approves every confirmation prompt.
	AssumeYes bool
}

// fileSettings is the on-disk shape. Durations are stored as strings.
type fileSettings struct {
	Manifest     string `yaml:"manifest,omitempty"`
	PackagesDir  string `yaml:"packages_dir,omitempty"`
	TickInterval string `yaml:"tick_interval,omitempty"`
	HTTPTimeout  string `yaml:"http_timeout,omitempty"`
	AssumeYes    bool   `yaml:"assume_yes,omitempty"`
}

// Defaults returns the settings used when nothing is configured.
func Defaults() Settings {
	return Settings{
		PackagesDir:  DefaultPackagesDir(),
		TickInterval: DefaultTickInterval,
		HTTPTimeout:  DefaultHTTPTimeout,
	}
}

// Load reads settings from path (ConfigFile() when empty) and applies
// PKGSYNC_* environment overrides. A missing file is not an error.
func Load(path string) (Settings, error) {
	return load(path, true)
}

// Update applies key=value to the settings stored at path and saves them.
// Environment overrides are ignored so they are never persisted.
func Update(path, key, value string) (Settings, error) {
	s, err := load(path, false)
	if err != nil {
		return Settings{}, err
	}
	if err := s.Set(key, value); err != nil {
		return Settings{}, err
	}
	if err := Save(path, s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func load(path string, env bool) (Settings, error) {
	if path == "" {
		path = ConfigFile()
	}
	def := Defaults()

	v := viper.New()
	v.SetDefault(KeyManifest, def.ManifestLocator)
	v.SetDefault(KeyPackagesDir, def.PackagesDir)
	v.SetDefault(KeyTickInterval, def.TickInterval.String())
	v.SetDefault(KeyHTTPTimeout, def.HTTPTimeout.String())
	v.SetDefault(KeyAssumeYes, def.AssumeYes)

	v.SetConfigType("yaml")
	v.SetConfigFile(ExpandPath(path))

	if env {
		v.SetEnvPrefix("PKGSYNC")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	s := Settings{
		ManifestLocator: strings.TrimSpace(v.GetString(KeyManifest)),
		PackagesDir:     ExpandPath(v.GetString(KeyPackagesDir)),
		AssumeYes:       v.GetBool(KeyAssumeYes),
	}
	var err error
	if s.TickInterval, err = parseDuration(KeyTickInterval, v.GetString(KeyTickInterval)); err != nil {
		return Settings{}, err
	}
	if s.HTTPTimeout, err = parseDuration(KeyHTTPTimeout, v.GetString(KeyHTTPTimeout)); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: must be positive, got %s", key, raw)
	}
	return d, nil
}

// Save writes the non-default values of s to path, replacing the file atomically.
func Save(path string, s Settings) error {
	if path == "" {
		path = ConfigFile()
	}
	path = ExpandPath(path)
	def := Defaults()

	f := fileSettings{Manifest: s.ManifestLocator, AssumeYes: s.AssumeYes}
	if s.PackagesDir != def.PackagesDir {
		f.PackagesDir = s.PackagesDir
	}
	if s.TickInterval != def.TickInterval {
		f.TickInterval = s.TickInterval.String()
	}
	if s.HTTPTimeout != def.HTTPTimeout {
		f.HTTPTimeout = s.HTTPTimeout.String()
	}

	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("writing temp config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp config: %w", err)
	}
	return nil
}

// Get returns the value of key formatted as it would be written.
func (s Settings) Get(key string) (string, error) {
	switch key {
	case KeyManifest:
		return s.ManifestLocator, nil
	case KeyPackagesDir:
		return s.PackagesDir, nil
	case KeyTickInterval:
		return s.TickInterval.String(), nil
	case KeyHTTPTimeout:
		return s.HTTPTimeout.String(), nil
	case KeyAssumeYes:
		return strconv.FormatBool(s.AssumeYes), nil
	}
	return "", fmt.Errorf("%w %q (known: %s)", ErrUnknownKey, key, strings.Join(Keys, ", "))
}

// Set parses value and stores it under key.
func (s *Settings) Set(key, value string) error {
	if !slices.Contains(Keys, key) {
		return fmt.Errorf("%w %q (known: %s)", ErrUnknownKey, key, strings.Join(Keys, ", "))
	}
	value = strings.TrimSpace(value)
	switch key {
	case KeyManifest:
		s.ManifestLocator = value
	case KeyPackagesDir:
		s.PackagesDir = ExpandPath(value)
	case KeyTickInterval:
		d, err := parseDuration(key, value)
		if err != nil {
			return err
		}
		s.TickInterval = d
	case KeyHTTPTimeout:
		d, err := parseDuration(key, value)
		if err != nil {
			return err
		}
		s.HTTPTimeout = d
	case KeyAssumeYes:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		s.AssumeYes = b
	}
	return nil
}
