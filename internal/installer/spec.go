// ABOUTME: Package locator parser: registry identifiers, git URLs, local paths
// ABOUTME: Detects the source from the locator format and extracts name/path/tag

package installer

import (
	"path/filepath"
	"strings"
)

// Source identifies where a package is installed from.
type Source int

const (
	SourceRegistry Source = iota
	SourceGit
	SourceLocal
)

// String returns the human-readable name of the source.
func (s Source) String() string {
	switch s {
	case SourceRegistry:
		return "registry"
	case SourceGit:
		return "git"
	case SourceLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Spec is a parsed package locator.
type Spec struct {
	Raw    string
	Source Source
	Name   string // identifier (registry) or name hint (git repo, local dir)
	Path   string // git URL without fragment, or filesystem path
	Tag    string // registry version, or git branch/tag
}

// ParseSpec parses a locator. Supported formats:
//   - Registry: "com.example.tool", "com.example.tool@1.2.0"
//   - Git:      "https://github.com/user/repo.git", "git@host:user/repo.git#v1.0", "github.com/user/repo"
//   - Local:    "./path", "../path", "/abs/path", "file:/abs/path"
//
// "file://" URLs are treated as git remotes.
func ParseSpec(raw string) Spec {
	raw = strings.TrimSpace(raw)

	if path, ok := strings.CutPrefix(raw, "file:"); ok && !strings.HasPrefix(path, "//") {
		return Spec{Raw: raw, Source: SourceLocal, Name: filepath.Base(path), Path: path}
	}
	if strings.HasPrefix(raw, ".") || strings.HasPrefix(raw, "/") {
		return Spec{Raw: raw, Source: SourceLocal, Name: filepath.Base(raw), Path: raw}
	}

	if isGitURL(raw) {
		url, tag, _ := strings.Cut(raw, "#")
		return Spec{Raw: raw, Source: SourceGit, Name: repoName(url), Path: url, Tag: tag}
	}

	name, tag, _ := strings.Cut(raw, "@")
	return Spec{Raw: raw, Source: SourceRegistry, Name: name, Tag: tag}
}

func isGitURL(s string) bool {
	if strings.Contains(s, "://") || strings.HasPrefix(s, "git@") {
		return true
	}
	if strings.HasSuffix(strings.SplitN(s, "#", 2)[0], ".git") {
		return true
	}
	for _, host := range []string{"github.com/", "gitlab.com/", "bitbucket.org/"} {
		if strings.Contains(s, host) {
			return true
		}
	}
	return false
}

// repoName extracts the trailing repository name from a git URL.
func repoName(url string) string {
	url = strings.TrimSuffix(strings.TrimSuffix(url, "/"), ".git")
	if idx := strings.LastIndex(url, ":"); strings.HasPrefix(url, "git@") && idx > 0 {
		url = url[idx+1:]
	}
	if idx := strings.LastIndex(url, "/"); idx >= 0 {
		return url[idx+1:]
	}
	return url
}
