// ABOUTME: Manifest locator defaults and normalization
// ABOUTME: Strips the redundant raw-content prefix and builds the proxy request URL

package manifest

import (
	"net/url"
	"strings"

	pslog "github.com/mauromedda/pkgsync/internal/log"
)

const (
	// DefaultLocator points at the project's own package list.
	DefaultLocator = "MrSliddes/SLIDDES-Unity-Packages-List/main/list.json"

	// RawContentPrefix is implied by every locator and need not be configured.
	RawContentPrefix = "https://raw.githubusercontent.com/"

	// DefaultEndpoint proxies raw content and renders it inside an HTML page.
	DefaultEndpoint = "https://sliddes.com/software/unity/get-packages.php"
)

// NormalizeLocator strips RawContentPrefix (warning once per logger) and
// substitutes DefaultLocator when nothing remains.
func NormalizeLocator(locator string, logger *pslog.Logger) string {
	locator = strings.TrimSpace(locator)
	if _, rest, ok := strings.Cut(locator, RawContentPrefix); ok {
		if logger != nil {
			logger.WarnOnce("redundant-prefix",
				"manifest locator contains %s which does not have to be included; only the User/Repository/branch/file.json part is needed",
				RawContentPrefix)
		}
		locator = rest
	}
	if locator == "" {
		return DefaultLocator
	}
	return locator
}

// IsDefault reports whether a normalized locator is the built-in default.
func IsDefault(locator string) bool {
	return locator == DefaultLocator
}

// RequestURL returns the proxy URL fetching locator through endpoint.
func RequestURL(endpoint, locator string) string {
	q := url.Values{}
	q.Set("list", locator)
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + q.Encode()
}
