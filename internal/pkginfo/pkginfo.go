// ABOUTME: Package record shared by the manifest, installer and engine packages
// ABOUTME: Holds the tracked-namespace rule and the lexical staleness check

package pkginfo

import (
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NoSource is the source locator of packages that came from a registry
// rather than a git URL or local path.
const NoSource = "N/A"

// PlaceholderDisplayName replaces an empty display name on manifest entries.
const PlaceholderDisplayName = "Display Name: null"

// Record describes one package, either installed locally or listed in the
// remote manifest. An empty InstalledVersion means not installed; an empty
// LatestVersion means freshness is unknown. ListedVersion is the version a
// manifest entry advertises and is informational only.
type Record struct {
	Identifier       string
	DisplayName      string
	InstalledVersion string
	LatestVersion    string
	ListedVersion    string
	SourceLocator    string
	UpToDate         bool
}

// IsInstalled reports whether the record carries an installed version.
func (r Record) IsInstalled() bool {
	return r.InstalledVersion != ""
}

// NeedsUpdate reports whether the record was flagged stale by a diff.
func (r Record) NeedsUpdate() bool {
	return !r.UpToDate && r.LatestVersion != ""
}

// IsOlder reports whether installed sorts before latest. The comparison is
// lexical, so "10.0" is older than "9.0". Either side empty means unknown
// and is never older.
func IsOlder(installed, latest string) bool {
	if installed == "" || latest == "" {
		return false
	}
	return strings.Compare(installed, latest) < 0
}

// NormalizeName returns s in Unicode NFC so display names that differ only in
// composition compare equal under ordinal sorting.
func NormalizeName(s string) string {
	return norm.NFC.String(s)
}

// SortByDisplayName sorts records by display name using ordinal comparison.
// The sort is stable so equal names keep their input order.
func SortByDisplayName(records []Record) {
	slices.SortStableFunc(records, func(a, b Record) int {
		return strings.Compare(a.DisplayName, b.DisplayName)
	})
}

// Namespace decides which installed packages the engine manages.
type Namespace struct {
	// Prefix is the identifier prefix being tested.
	Prefix string
	// Exclude inverts the rule: packages are managed unless they match Prefix.
	Exclude bool
}

// Managed reports whether identifier belongs to the managed collection.
func (n Namespace) Managed(identifier string) bool {
	has := strings.HasPrefix(identifier, n.Prefix)
	if n.Exclude {
		return !has
	}
	return has
}
