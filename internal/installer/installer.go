// ABOUTME: Installer Adapter contract: asynchronous list/add/remove against a host facility
// ABOUTME: Operations expose a non-blocking completion poll and a result accessor

package installer

import (
	"errors"

	"github.com/mauromedda/pkgsync/internal/async"
	"github.com/mauromedda/pkgsync/internal/pkginfo"
)

var (
	// ErrNotInstalled is returned when removing a package that is not present.
	ErrNotInstalled = errors.New("package not installed")
	// ErrUnsupportedSource is returned for locators the adapter cannot install.
	ErrUnsupportedSource = errors.New("unsupported package source")
	// ErrInvalidPackage is returned when a fetched package has no usable descriptor.
	ErrInvalidPackage = errors.New("invalid package")
)

// Package is one entry of the live installed list.
type Package struct {
	Identifier    string
	DisplayName   string
	Version       string
	LatestVersion string
	// SourceLocator is where the package was installed from, if known.
	SourceLocator string
}

// Record translates the package into an up-to-date installed record.
func (p Package) Record() pkginfo.Record {
	src := p.SourceLocator
	if src == "" {
		src = pkginfo.NoSource
	}
	return pkginfo.Record{
		Identifier:       p.Identifier,
		DisplayName:      pkginfo.NormalizeName(p.DisplayName),
		InstalledVersion: p.Version,
		LatestVersion:    p.LatestVersion,
		SourceLocator:    src,
		UpToDate:         true,
	}
}

// Adapter is the narrow interface to the host package installer. The engine
// assumes nothing about ordering between operations it submits.
type Adapter interface {
	// List yields the installed packages in a stable order.
	List() async.Operation[[]Package]
	// Add installs a package from an identifier or locator and yields the
	// installed identifier.
	Add(locator string) async.Operation[string]
	// Remove uninstalls a package and yields the removed identifier.
	Remove(identifier string) async.Operation[string]
}
