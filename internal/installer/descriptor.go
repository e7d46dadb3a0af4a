// ABOUTME: package.json descriptor reading for installed packages
// ABOUTME: Only the fields the engine needs are decoded

package installer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const descriptorFileName = "package.json"

// descriptor is the subset of a package's package.json the adapter reads.
type descriptor struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Version     string `json:"version"`
}

// readDescriptor loads package.json from a package directory.
func readDescriptor(dir string) (descriptor, error) {
	data, err := os.ReadFile(filepath.Join(dir, descriptorFileName))
	if err != nil {
		return descriptor{}, err
	}
	var d descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return descriptor{}, fmt.Errorf("parsing %s: %w", filepath.Join(dir, descriptorFileName), err)
	}
	d.Name = strings.TrimSpace(d.Name)
	if d.DisplayName == "" {
		d.DisplayName = d.Name
	}
	return d, nil
}

// validName rejects identifiers that would escape the packages directory.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
