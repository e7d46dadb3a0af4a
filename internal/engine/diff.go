// ABOUTME: Reconciliation diff between the live installed list and the remote manifest
// ABOUTME: Classifies by tracked namespace, flags stale installs, collects available entries

package engine

import (
	"slices"

	"github.com/mauromedda/pkgsync/internal/pkginfo"
)

// Collections are the three classified package lists.
type Collections struct {
	// Installed holds installed packages in the tracked namespace.
	Installed []pkginfo.Record
	// Available holds manifest entries that are not installed, in manifest order.
	Available []pkginfo.Record
	// Others holds installed packages outside the tracked namespace.
	Others []pkginfo.Record
}

// Reconcile classifies live against ns and merges the manifest entries.
// Inputs are not modified; the result shares no slices with them.
func Reconcile(live, remote []pkginfo.Record, ns pkginfo.Namespace) Collections {
	var c Collections
	for _, r := range live {
		if ns.Managed(r.Identifier) {
			c.Installed = append(c.Installed, r)
		} else {
			c.Others = append(c.Others, r)
		}
	}
	pkginfo.SortByDisplayName(c.Installed)
	pkginfo.SortByDisplayName(c.Others)

	index := make(map[string]int, len(c.Installed))
	for i, r := range c.Installed {
		if _, dup := index[r.Identifier]; !dup {
			index[r.Identifier] = i
		}
	}

	for _, m := range remote {
		if i, ok := index[m.Identifier]; ok {
			installed := &c.Installed[i]
			if installed.InstalledVersion == "" || m.LatestVersion == "" {
				continue
			}
			if pkginfo.IsOlder(installed.InstalledVersion, m.LatestVersion) {
				installed.UpToDate = false
				installed.LatestVersion = m.LatestVersion
				installed.SourceLocator = m.SourceLocator
			}
			continue
		}

		if m.DisplayName == "" {
			m.DisplayName = pkginfo.PlaceholderDisplayName
		}
		c.Available = append(c.Available, m)
	}

	c.Installed = slices.Clip(c.Installed)
	return c
}
