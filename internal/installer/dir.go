// ABOUTME: DirAdapter manages packages as subdirectories of one packages root
// ABOUTME: Git locators are cloned, local paths symlinked; list reads package.json files

package installer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mauromedda/pkgsync/internal/async"
	pslog "github.com/mauromedda/pkgsync/internal/log"
)

// listConcurrency bounds concurrent descriptor reads during List.
const listConcurrency = 8

// DirAdapter implements Adapter on a packages directory. Each installed
// package lives in <root>/<identifier> and carries a package.json.
// Operations run on their own goroutines and are serialized internally.
type DirAdapter struct {
	root   string
	ctx    context.Context
	logger *pslog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewDirAdapter creates an adapter rooted at root. ctx bounds every git
// invocation made by the adapter.
func NewDirAdapter(ctx context.Context, root string, logger *pslog.Logger) *DirAdapter {
	if logger == nil {
		logger = pslog.New("installer")
	}
	return &DirAdapter{root: root, ctx: ctx, logger: logger, now: time.Now}
}

// Root returns the packages directory.
func (a *DirAdapter) Root() string {
	return a.root
}

// List yields the installed packages ordered by directory name.
func (a *DirAdapter) List() async.Operation[[]Package] {
	return async.Go(a.ctx, a.list)
}

// Add installs from a git URL or local path and yields the package identifier.
func (a *DirAdapter) Add(locator string) async.Operation[string] {
	return async.Go(a.ctx, func(ctx context.Context) (string, error) {
		return a.add(ctx, locator)
	})
}

// Remove uninstalls identifier and yields it back.
func (a *DirAdapter) Remove(identifier string) async.Operation[string] {
	return async.Go(a.ctx, func(context.Context) (string, error) {
		return a.remove(identifier)
	})
}

func (a *DirAdapter) list(ctx context.Context) ([]Package, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries, err := os.ReadDir(a.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading packages directory %s: %w", a.root, err)
	}

	lock, err := LoadLock(a.root)
	if err != nil {
		return nil, err
	}

	found := make([]*Package, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i, entry := range entries {
		if !validName(entry.Name()) || !(entry.IsDir() || entry.Type()&fs.ModeSymlink != 0) {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, err := readDescriptor(filepath.Join(a.root, entry.Name()))
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			if err != nil {
				return err
			}
			id := d.Name
			if id == "" {
				id = entry.Name()
			}
			p := &Package{
				Identifier:  id,
				DisplayName: d.DisplayName,
				Version:     d.Version,
			}
			if p.DisplayName == "" {
				p.DisplayName = id
			}
			found[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Package
	for _, p := range found {
		if p == nil {
			continue
		}
		if loc, ok := lock.Locator(p.Identifier); ok {
			p.SourceLocator = loc
		}
		out = append(out, *p)
	}
	return out, nil
}

func (a *DirAdapter) add(ctx context.Context, locator string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(a.root, 0o755); err != nil {
		return "", fmt.Errorf("creating packages directory: %w", err)
	}

	spec := ParseSpec(locator)
	var (
		name string
		err  error
	)
	switch spec.Source {
	case SourceGit:
		name, err = a.addGit(ctx, spec)
	case SourceLocal:
		name, err = a.addLocal(spec)
	default:
		return "", fmt.Errorf("%w: %q is a %s identifier; use its git URL or a local path", ErrUnsupportedSource, locator, spec.Source)
	}
	if err != nil {
		return "", err
	}

	lock, err := LoadLock(a.root)
	if err != nil {
		return "", err
	}
	lock.Record(name, spec, a.now())
	if err := lock.Save(a.root); err != nil {
		return "", err
	}
	return name, nil
}

// addGit clones into a staging directory, then moves the clone to its
// identifier's directory, replacing any previous install.
func (a *DirAdapter) addGit(ctx context.Context, spec Spec) (string, error) {
	staging, err := os.MkdirTemp(a.root, ".staging-")
	if err != nil {
		return "", fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	clone := filepath.Join(staging, "pkg")
	args := []string{"clone", "--depth", "1"}
	if spec.Tag != "" {
		args = append(args, "--branch", spec.Tag)
	}
	args = append(args, spec.Path, clone)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git clone %s: %w: %s", spec.Path, err, strings.TrimSpace(stderr.String()))
	}

	d, err := readDescriptor(clone)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidPackage, spec.Path, err)
	}
	if !validName(d.Name) {
		return "", fmt.Errorf("%w: %s: package name %q", ErrInvalidPackage, spec.Path, d.Name)
	}

	target := filepath.Join(a.root, d.Name)
	if err := removeExisting(target); err != nil {
		return "", err
	}
	if err := os.Rename(clone, target); err != nil {
		return "", fmt.Errorf("moving %s into place: %w", d.Name, err)
	}
	a.logger.Debug("cloned %s into %s", spec.Path, target)
	return d.Name, nil
}

// addLocal symlinks a local package directory under its identifier.
func (a *DirAdapter) addLocal(spec Spec) (string, error) {
	absPath, err := filepath.Abs(spec.Path)
	if err != nil {
		return "", fmt.Errorf("resolving path %s: %w", spec.Path, err)
	}
	if _, err := os.Stat(absPath); err != nil {
		return "", fmt.Errorf("source path %s: %w", absPath, err)
	}

	d, err := readDescriptor(absPath)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidPackage, absPath, err)
	}
	if !validName(d.Name) {
		return "", fmt.Errorf("%w: %s: package name %q", ErrInvalidPackage, absPath, d.Name)
	}

	link := filepath.Join(a.root, d.Name)
	if err := removeExisting(link); err != nil {
		return "", err
	}
	if err := os.Symlink(absPath, link); err != nil {
		return "", fmt.Errorf("creating symlink %s -> %s: %w", link, absPath, err)
	}
	return d.Name, nil
}

func (a *DirAdapter) remove(identifier string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !validName(identifier) {
		return "", fmt.Errorf("%w: %q", ErrNotInstalled, identifier)
	}
	target := filepath.Join(a.root, identifier)
	if _, err := os.Lstat(target); os.IsNotExist(err) {
		return "", fmt.Errorf("%w: %s", ErrNotInstalled, identifier)
	}
	if err := removeExisting(target); err != nil {
		return "", err
	}

	lock, err := LoadLock(a.root)
	if err != nil {
		return "", err
	}
	if lock.Forget(identifier) {
		if err := lock.Save(a.root); err != nil {
			return "", err
		}
	}
	return identifier, nil
}

// removeExisting deletes a symlink without following it, or a directory tree.
func removeExisting(path string) error {
	fi, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		err = os.Remove(path)
	} else {
		err = os.RemoveAll(path)
	}
	if err != nil {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}
