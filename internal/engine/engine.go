// ABOUTME: Reconciliation Engine owning the installed, available and other collections
// ABOUTME: Busy-gated refresh/add/remove/update-all commands driven by tracker ticks

package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/mauromedda/pkgsync/internal/async"
	"github.com/mauromedda/pkgsync/internal/busy"
	"github.com/mauromedda/pkgsync/internal/installer"
	pslog "github.com/mauromedda/pkgsync/internal/log"
	"github.com/mauromedda/pkgsync/internal/manifest"
	"github.com/mauromedda/pkgsync/internal/pkginfo"
	"github.com/mauromedda/pkgsync/internal/tracker"
)

// Namespace prefixes used by the classification rule.
const (
	// OwnPrefix is the project's reserved namespace, managed with the default manifest.
	OwnPrefix = "com.sliddes."
	// PlatformPrefix is the host platform's namespace, excluded with a custom manifest.
	PlatformPrefix = "com.unity."
)

// Mode tells whether the engine tracks the default or a custom manifest.
type Mode int

const (
	ModeDefault Mode = iota
	ModeCustom
)

// String returns the label used for section titles.
func (m Mode) String() string {
	if m == ModeDefault {
		return "Managed"
	}
	return "Custom"
}

// ManifestSource fetches the remote manifest asynchronously.
type ManifestSource interface {
	FetchAsync(ctx context.Context, locator string) async.Operation[manifest.Result]
}

// Confirmer asks the user to approve a destructive or bulk action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

// Confirm calls f.
func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// Options configures an Engine. Zero values select defaults.
type Options struct {
	// Locator is the manifest locator; normalized on use.
	Locator string
	// OwnPrefix and PlatformPrefix override the namespace prefixes.
	OwnPrefix      string
	PlatformPrefix string
	// Confirmer approves removals and updates. Nil approves everything.
	Confirmer Confirmer
	Logger    *pslog.Logger
	// Tracker drives pending operations. Nil creates a private tracker.
	Tracker *tracker.Tracker
	// Context is passed to manifest fetches. Nil uses context.Background.
	Context context.Context
}

// refreshJoin collects the two independent halves of one refresh.
type refreshJoin struct {
	live       []pkginfo.Record
	liveOK     bool
	liveDone   bool
	remote     []pkginfo.Record
	remoteDone bool
	// ns is the classification rule of the locator the refresh was issued for.
	ns pkginfo.Namespace
}

// Engine reconciles installed packages with the remote manifest.
//
// Engine is single-threaded: commands, accessors and Tick must all be called
// from the host loop goroutine. Only Subscribe is safe from anywhere.
type Engine struct {
	ctx      context.Context
	adapter  installer.Adapter
	fetcher  ManifestSource
	tracker  *tracker.Tracker
	busy     *busy.Arbiter
	confirm  Confirmer
	events   *bus
	logger   *pslog.Logger
	own      string
	platform string

	locator string
	coll    Collections
	// stale is set when a locator change arrived while busy.
	stale bool

	updateQueue  []pkginfo.Record
	updateOK     int
	updateFailed int
}

// New creates an idle engine with empty collections. Call Refresh to populate.
func New(adapter installer.Adapter, fetcher ManifestSource, opts Options) *Engine {
	e := &Engine{
		ctx:      opts.Context,
		adapter:  adapter,
		fetcher:  fetcher,
		tracker:  opts.Tracker,
		busy:     busy.New(),
		confirm:  opts.Confirmer,
		events:   newBus(),
		logger:   opts.Logger,
		own:      opts.OwnPrefix,
		platform: opts.PlatformPrefix,
	}
	if e.ctx == nil {
		e.ctx = context.Background()
	}
	if e.logger == nil {
		e.logger = pslog.New("engine")
	}
	if e.tracker == nil {
		e.tracker = tracker.New(e.logger)
	}
	if e.confirm == nil {
		e.confirm = ConfirmFunc(func(string) bool { return true })
	}
	if e.own == "" {
		e.own = OwnPrefix
	}
	if e.platform == "" {
		e.platform = PlatformPrefix
	}
	e.locator = manifest.NormalizeLocator(opts.Locator, e.logger)
	return e
}

// Tick advances pending operations once. Hosts call it from their loop.
func (e *Engine) Tick() int {
	return e.tracker.Tick()
}

// IsBusy reports whether any command is in progress.
func (e *Engine) IsBusy() bool {
	return e.busy.IsBusy()
}

// Idle reports whether nothing is running and nothing is pending.
func (e *Engine) Idle() bool {
	return !e.busy.IsBusy() && e.tracker.Len() == 0 && !e.stale
}

// finish clears k and starts a deferred refresh once nothing else runs.
func (e *Engine) finish(k busy.Kind) {
	e.busy.Finish(k)
	if e.stale && !e.busy.IsBusy() {
		e.logger.Debug("starting deferred refresh for %s", e.locator)
		e.Refresh()
	}
}

// Status describes the running operation kinds.
func (e *Engine) Status() string {
	return e.busy.String()
}

// Locator returns the normalized manifest locator.
func (e *Engine) Locator() string {
	return e.locator
}

// Mode reports whether the default manifest is in use.
func (e *Engine) Mode() Mode {
	if manifest.IsDefault(e.locator) {
		return ModeDefault
	}
	return ModeCustom
}

// Namespace returns the classification rule for the current locator: the own
// prefix with the default manifest, everything but the platform prefix otherwise.
func (e *Engine) Namespace() pkginfo.Namespace {
	if e.Mode() == ModeDefault {
		return pkginfo.Namespace{Prefix: e.own}
	}
	return pkginfo.Namespace{Prefix: e.platform, Exclude: true}
}

// Installed returns a copy of the managed installed packages.
func (e *Engine) Installed() []pkginfo.Record { return slices.Clone(e.coll.Installed) }

// Available returns a copy of the installable manifest entries.
func (e *Engine) Available() []pkginfo.Record { return slices.Clone(e.coll.Available) }

// Others returns a copy of the installed packages outside the tracked namespace.
func (e *Engine) Others() []pkginfo.Record { return slices.Clone(e.coll.Others) }

// Subscribe registers h for engine events and returns an unsubscribe func.
func (e *Engine) Subscribe(h Handler) func() {
	return e.events.subscribe(h)
}

// SetLocator changes the manifest locator and refreshes if it changed.
// Returns true if a refresh was started. While busy the refresh is deferred
// until the running operations finish.
func (e *Engine) SetLocator(locator string) bool {
	normalized := manifest.NormalizeLocator(locator, e.logger)
	if normalized == e.locator {
		return false
	}
	e.locator = normalized
	e.logger.Info("manifest locator set to %s", normalized)
	e.events.publish(Event{Kind: EventLocatorChanged, Target: normalized})
	if e.busy.IsBusy() {
		e.stale = true
		e.logger.Debug("refresh for %s deferred: %s", normalized, e.busy)
		return false
	}
	return e.Refresh()
}

// OnPackagesRegistered is called by the host when its package facility
// reports that the installed set changed.
func (e *Engine) OnPackagesRegistered() bool {
	return e.Refresh()
}

// Refresh clears the collections, then lists installed packages and fetches
// the manifest concurrently; the diff runs once both have completed.
// Returns false without doing anything while the engine is busy.
func (e *Engine) Refresh() bool {
	if e.busy.IsBusy() {
		e.logger.Debug("refresh ignored: %s", e.busy)
		return false
	}

	e.busy.Start(busy.ListInstalled)
	e.busy.Start(busy.FetchManifest)
	e.stale = false
	e.coll = Collections{}
	join := &refreshJoin{ns: e.Namespace()}

	listOp := e.adapter.List()
	e.tracker.Submit(tracker.KindList, "", listOp, func() {
		defer e.finish(busy.ListInstalled)

		pkgs, err := listOp.Result()
		if err != nil {
			e.logger.Error("listing installed packages: %v", err)
			e.events.publish(Event{Kind: EventFailed, Err: err})
		} else {
			join.liveOK = true
			for _, p := range pkgs {
				join.live = append(join.live, p.Record())
			}
		}
		join.liveDone = true
		e.reconcileIfReady(join)
	})

	locator := e.locator
	fetchOp := e.fetcher.FetchAsync(e.ctx, locator)
	e.tracker.Submit(tracker.KindFetchManifest, locator, fetchOp, func() {
		defer e.finish(busy.FetchManifest)

		res, err := fetchOp.Result()
		if err == nil && res.Outcome == manifest.OutcomeSuccess {
			join.remote = res.Document.Records()
		} else if err != nil {
			e.logger.Error("fetching manifest %s: %v", locator, err)
		} else {
			e.logger.Warn("manifest %s unavailable (%s); no packages available", locator, res.Outcome)
		}
		join.remoteDone = true
		e.reconcileIfReady(join)
	})
	return true
}

func (e *Engine) reconcileIfReady(j *refreshJoin) {
	if !j.liveDone || !j.remoteDone {
		return
	}
	if !j.liveOK {
		e.logger.Warn("installed packages unknown; skipping reconciliation")
		return
	}
	e.coll = Reconcile(j.live, j.remote, j.ns)
	e.logger.Debug("reconciled: %d installed, %d available, %d other",
		len(e.coll.Installed), len(e.coll.Available), len(e.coll.Others))
	e.events.publish(Event{Kind: EventRefreshed})
}

// RequestAdd installs a package from a locator, or from the source locator
// of a listed package when given its identifier. On success it refreshes.
// Returns false without doing anything while the engine is busy.
func (e *Engine) RequestAdd(locator string) bool {
	if e.busy.IsBusy() {
		e.logger.Debug("add %s ignored: %s", locator, e.busy)
		return false
	}

	e.busy.Start(busy.Add)
	e.submitAdd(e.resolveLocator(locator), func(err error) {
		e.finish(busy.Add)
		if err == nil {
			e.Refresh()
		}
	})
	return true
}

// resolveLocator maps an identifier of a listed package to its source locator.
func (e *Engine) resolveLocator(locator string) string {
	for _, list := range [][]pkginfo.Record{e.coll.Available, e.coll.Installed} {
		for _, r := range list {
			if r.Identifier == locator && r.SourceLocator != "" && r.SourceLocator != pkginfo.NoSource {
				return r.SourceLocator
			}
		}
	}
	return locator
}

// submitAdd sends one add to the adapter; done runs when it completes, even
// if reporting the outcome panics.
func (e *Engine) submitAdd(locator string, done func(error)) {
	e.logger.Info("adding package %s...", locator)
	op := e.adapter.Add(locator)
	e.tracker.Submit(tracker.KindAdd, locator, op, func() {
		id, err := op.Result()
		defer done(err)

		if err != nil {
			e.logger.Error("adding %s: %v", locator, err)
			e.events.publish(Event{Kind: EventFailed, Target: locator, Err: err})
			return
		}
		e.logger.Info("installed: %s", id)
		e.events.publish(Event{Kind: EventAdded, Target: id})
	})
}

// RequestRemove uninstalls identifier after confirmation. On success it
// refreshes. Returns false if busy or the user declined.
func (e *Engine) RequestRemove(identifier string) bool {
	if e.busy.IsBusy() {
		e.logger.Debug("remove %s ignored: %s", identifier, e.busy)
		return false
	}
	if !e.confirm.Confirm(fmt.Sprintf("Are you sure you want to delete %s?", identifier)) {
		e.logger.Info("removal of %s cancelled", identifier)
		return false
	}

	e.busy.Start(busy.Remove)
	e.logger.Info("removing package %s...", identifier)
	op := e.adapter.Remove(identifier)
	e.tracker.Submit(tracker.KindRemove, identifier, op, func() {
		id, err := op.Result()
		defer func() {
			e.finish(busy.Remove)
			if err == nil {
				e.Refresh()
			}
		}()

		if err != nil {
			e.logger.Error("removing %s: %v", identifier, err)
			e.events.publish(Event{Kind: EventFailed, Target: identifier, Err: err})
			return
		}
		e.logger.Info("removed: %s", id)
		e.events.publish(Event{Kind: EventRemoved, Target: id})
	})
	return true
}

// RequestUpdateAll asks for confirmation of every stale managed package,
// then re-adds the accepted ones from their source locators one at a time.
// A failed update does not stop the rest. Refreshes once at the end if any
// update succeeded. Returns false without doing anything while busy.
func (e *Engine) RequestUpdateAll() bool {
	if e.busy.IsBusy() {
		e.logger.Debug("update all ignored: %s", e.busy)
		return false
	}

	e.busy.Start(busy.UpdateAll)
	e.updateQueue = nil
	e.updateOK, e.updateFailed = 0, 0

	for _, r := range e.coll.Installed {
		if r.UpToDate {
			continue
		}
		prompt := fmt.Sprintf("Are you sure you want to update %s %s to %s?", r.DisplayName, r.InstalledVersion, r.LatestVersion)
		if e.confirm.Confirm(prompt) {
			e.updateQueue = append(e.updateQueue, r)
		}
	}

	e.updateNext()
	return true
}

func (e *Engine) updateNext() {
	for len(e.updateQueue) > 0 {
		r := e.updateQueue[0]
		e.updateQueue = e.updateQueue[1:]

		if r.SourceLocator == "" || r.SourceLocator == pkginfo.NoSource {
			e.logger.Warn("cannot update %s: no source locator", r.Identifier)
			e.updateFailed++
			continue
		}

		e.logger.Info("updating %s %s to %s...", r.Identifier, r.InstalledVersion, r.LatestVersion)
		e.busy.Start(busy.Add)
		e.submitAdd(r.SourceLocator, func(err error) {
			e.busy.Finish(busy.Add)
			if err != nil {
				e.updateFailed++
			} else {
				e.updateOK++
			}
			e.updateNext()
		})
		return
	}

	e.finish(busy.UpdateAll)
	e.logger.Info("finished updating packages: %d updated, %d failed", e.updateOK, e.updateFailed)
	e.events.publish(Event{Kind: EventUpdateAllFinished, Updated: e.updateOK, Failed: e.updateFailed})
	if e.updateOK > 0 {
		e.Refresh()
	}
}

// Describe returns a one-line summary of a listed package, or "" if unknown.
func (e *Engine) Describe(identifier string) string {
	for _, list := range [][]pkginfo.Record{e.coll.Installed, e.coll.Available, e.coll.Others} {
		for _, r := range list {
			if r.Identifier == identifier {
				return fmt.Sprintf("Name:%s Version:%s Version Latest:%s", r.Identifier, r.InstalledVersion, r.LatestVersion)
			}
		}
	}
	return ""
}
