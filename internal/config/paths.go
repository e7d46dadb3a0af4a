// ABOUTME: Standard filesystem paths for pkgsync configuration and packages
// ABOUTME: Resolves ~/.pkgsync/ via go-homedir and expands ~ in user paths

package config

import (
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
)

const globalDirName = ".pkgsync"

// GlobalDir returns the user-global config directory (~/.pkgsync/).
func GlobalDir() string {
	home, err := homedir.Dir()
	if err != nil {
		return filepath.Join(".", globalDirName)
	}
	return filepath.Join(home, globalDirName)
}

// ConfigFile returns the path to the settings file.
func ConfigFile() string {
	return filepath.Join(GlobalDir(), "config.yaml")
}

// DefaultPackagesDir returns the directory packages are installed into.
func DefaultPackagesDir() string {
	return filepath.Join(GlobalDir(), "packages")
}

// ExpandPath expands a leading ~ to the user's home directory. Paths that
// cannot be expanded are returned unchanged.
func ExpandPath(path string) string {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return path
	}
	return expanded
}
