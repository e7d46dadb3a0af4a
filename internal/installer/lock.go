// ABOUTME: packages-lock.json: where each directory-installed package came from
// ABOUTME: Keyed by package identifier; rewritten through a temp file in the same directory

package installer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const lockFileName = "packages-lock.json"

// LockEntry is the origin of one installed package.
type LockEntry struct {
	Source      string    `json:"source"`
	Locator     string    `json:"locator"`
	InstalledAt time.Time `json:"installed_at"`
}

// Lock maps package identifiers to their origin.
type Lock struct {
	Packages map[string]LockEntry `json:"packages"`
}

// LoadLock reads the lock in dir. A missing file is an empty lock.
func LoadLock(dir string) (*Lock, error) {
	l := &Lock{Packages: map[string]LockEntry{}}
	data, err := os.ReadFile(filepath.Join(dir, lockFileName))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return l, nil
	case err != nil:
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	if err := json.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", lockFileName, err)
	}
	if l.Packages == nil {
		l.Packages = map[string]LockEntry{}
	}
	return l, nil
}

// Save replaces the lock in dir. Readers see either the old or the new file.
func (l *Lock) Save(dir string) (err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating packages directory: %w", err)
	}
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding lock file: %w", err)
	}

	f, err := os.CreateTemp(dir, lockFileName+".*")
	if err != nil {
		return fmt.Errorf("creating temp lock file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(f.Name())
		}
	}()
	if _, err = f.Write(data); err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing temp lock file: %w", err)
	}
	if err = os.Rename(f.Name(), filepath.Join(dir, lockFileName)); err != nil {
		return fmt.Errorf("replacing lock file: %w", err)
	}
	return nil
}

// Record notes that identifier was installed from spec at time at.
func (l *Lock) Record(identifier string, spec Spec, at time.Time) {
	if l.Packages == nil {
		l.Packages = map[string]LockEntry{}
	}
	l.Packages[identifier] = LockEntry{Source: spec.Source.String(), Locator: spec.Raw, InstalledAt: at}
}

// Forget drops identifier and reports whether it was present.
func (l *Lock) Forget(identifier string) bool {
	if _, ok := l.Packages[identifier]; !ok {
		return false
	}
	delete(l.Packages, identifier)
	return true
}

// Locator returns the locator identifier was installed from.
func (l *Lock) Locator(identifier string) (string, bool) {
	e, ok := l.Packages[identifier]
	return e.Locator, ok
}
