// ABOUTME: Locates the manifest payload inside the proxy's HTML response
// ABOUTME: Slices between the <pre> markers, trims and decodes HTML entities

package manifest

import (
	"errors"
	"strings"

	"golang.org/x/net/html"
)

const (
	openMarker  = "<pre>"
	closeMarker = "</pre>"
)

// ErrMarkerNotFound means the response did not wrap a payload in the markers.
var ErrMarkerNotFound = errors.New("payload markers not found")

// ExtractPayload returns the text strictly between the first opening marker
// and the next closing marker, whitespace-trimmed and entity-decoded. If
// either marker is missing it returns "" and ErrMarkerNotFound.
func ExtractPayload(body string) (string, error) {
	start := strings.Index(body, openMarker)
	if start < 0 {
		return "", ErrMarkerNotFound
	}
	start += len(openMarker)

	end := strings.Index(body[start:], closeMarker)
	if end < 0 {
		return "", ErrMarkerNotFound
	}

	payload := strings.TrimSpace(body[start : start+end])
	return html.UnescapeString(payload), nil
}
