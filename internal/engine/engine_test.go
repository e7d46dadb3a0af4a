// ABOUTME: Tests for refresh joins, busy gating and package commands
// ABOUTME: Fake adapter and fetcher hand out manual operations

package engine

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mauromedda/pkgsync/internal/async"
	"github.com/mauromedda/pkgsync/internal/busy"
	"github.com/mauromedda/pkgsync/internal/installer"
	pslog "github.com/mauromedda/pkgsync/internal/log"
	"github.com/mauromedda/pkgsync/internal/manifest"
	"github.com/mauromedda/pkgsync/internal/tracker"
)

// fakeAdapter hands out manual operations so tests decide when they finish.
type fakeAdapter struct {
	lists   []*async.Manual[[]installer.Package]
	adds    []*async.Manual[string]
	added   []string
	removes []*async.Manual[string]
	removed []string
}

func (f *fakeAdapter) List() async.Operation[[]installer.Package] {
	op := async.NewManual[[]installer.Package]()
	f.lists = append(f.lists, op)
	return op
}

func (f *fakeAdapter) Add(locator string) async.Operation[string] {
	op := async.NewManual[string]()
	f.adds = append(f.adds, op)
	f.added = append(f.added, locator)
	return op
}

func (f *fakeAdapter) Remove(identifier string) async.Operation[string] {
	op := async.NewManual[string]()
	f.removes = append(f.removes, op)
	f.removed = append(f.removed, identifier)
	return op
}

func (f *fakeAdapter) lastList() *async.Manual[[]installer.Package] { return f.lists[len(f.lists)-1] }
func (f *fakeAdapter) lastAdd() *async.Manual[string]               { return f.adds[len(f.adds)-1] }

type fakeFetcher struct {
	ops      []*async.Manual[manifest.Result]
	locators []string
}

func (f *fakeFetcher) FetchAsync(_ context.Context, locator string) async.Operation[manifest.Result] {
	op := async.NewManual[manifest.Result]()
	f.ops = append(f.ops, op)
	f.locators = append(f.locators, locator)
	return op
}

func (f *fakeFetcher) last() *async.Manual[manifest.Result] { return f.ops[len(f.ops)-1] }

func okResult(entries ...manifest.Entry) manifest.Result {
	return manifest.Result{Document: manifest.Document{Entries: entries}}
}

func entry(name, latest, giturl string) manifest.Entry {
	return manifest.Entry{Name: name, DisplayName: name, VersionLatest: latest, GitURL: giturl, IsLatestVersion: true}
}

type harness struct {
	eng     *Engine
	adapter *fakeAdapter
	fetcher *fakeFetcher
	tracker *tracker.Tracker
	events  []Event
	prompts []string
	accept  func(string) bool
}

func newHarness(t *testing.T, locator string) *harness {
	t.Helper()
	h := &harness{adapter: &fakeAdapter{}, fetcher: &fakeFetcher{}, tracker: tracker.New(nil)}
	h.accept = func(string) bool { return true }
	h.eng = New(h.adapter, h.fetcher, Options{
		Locator: locator,
		Tracker: h.tracker,
		Confirmer: ConfirmFunc(func(p string) bool {
			h.prompts = append(h.prompts, p)
			return h.accept(p)
		}),
	})
	h.eng.Subscribe(func(ev Event) { h.events = append(h.events, ev) })
	return h
}

// refresh runs a full refresh cycle to completion.
func (h *harness) refresh(t *testing.T, live []installer.Package, res manifest.Result) {
	t.Helper()
	require.True(t, h.eng.Refresh())
	h.adapter.lastList().Resolve(live, nil)
	h.fetcher.last().Resolve(res, nil)
	h.eng.Tick()
	require.True(t, h.eng.Idle())
}

func TestRefreshClassifiesDefaultMode(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	require.Equal(t, ModeDefault, h.eng.Mode())

	live := []installer.Package{
		{Identifier: "com.unity.textmeshpro", DisplayName: "TextMeshPro", Version: "3.0.6"},
		{Identifier: "com.sliddes.ui", DisplayName: "UI", Version: "1.0.0"},
		{Identifier: "com.sliddes.audio", DisplayName: "Audio", Version: "2.0.0"},
		{Identifier: "org.example.thing", DisplayName: "Thing", Version: "0.1.0"},
	}
	h.refresh(t, live, okResult())

	installed := h.eng.Installed()
	require.Len(t, installed, 2)
	assert.Equal(t, "com.sliddes.audio", installed[0].Identifier)
	assert.Equal(t, "com.sliddes.ui", installed[1].Identifier)

	others := h.eng.Others()
	require.Len(t, others, 2)
	assert.Equal(t, "TextMeshPro", others[0].DisplayName)
	assert.Equal(t, "Thing", others[1].DisplayName)

	assert.Empty(t, h.eng.Available())
	require.NotEmpty(t, h.events)
	assert.Equal(t, EventRefreshed, h.events[len(h.events)-1].Kind)
}

func TestRefreshClassifiesCustomMode(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "acme/packages/main/list.json")
	require.Equal(t, ModeCustom, h.eng.Mode())

	live := []installer.Package{
		{Identifier: "com.unity.textmeshpro", DisplayName: "TextMeshPro", Version: "3.0.6"},
		{Identifier: "com.sliddes.ui", DisplayName: "UI", Version: "1.0.0"},
		{Identifier: "org.example.thing", DisplayName: "Thing", Version: "0.1.0"},
	}
	h.refresh(t, live, okResult())

	installed := h.eng.Installed()
	require.Len(t, installed, 2)
	assert.Equal(t, "com.sliddes.ui", installed[1].Identifier)
	assert.Equal(t, "org.example.thing", installed[0].Identifier)
	require.Len(t, h.eng.Others(), 1)
	assert.Equal(t, "com.unity.textmeshpro", h.eng.Others()[0].Identifier)
	assert.Equal(t, []string{"acme/packages/main/list.json"}, h.fetcher.locators)
}

func TestRefreshJoinsInEitherOrder(t *testing.T) {
	t.Parallel()

	for _, manifestFirst := range []bool{true, false} {
		h := newHarness(t, "")
		require.True(t, h.eng.Refresh())

		live := []installer.Package{{Identifier: "com.sliddes.x", DisplayName: "X", Version: "1.0.0"}}
		res := okResult(entry("com.sliddes.x", "1.2.0", "https://example.com/x.git"), entry("com.sliddes.y", "1.0.0", "https://example.com/y.git"))

		if manifestFirst {
			h.fetcher.last().Resolve(res, nil)
		} else {
			h.adapter.lastList().Resolve(live, nil)
		}
		h.eng.Tick()
		assert.True(t, h.eng.IsBusy(), "one half still pending")
		assert.Empty(t, h.eng.Installed(), "diff must wait for both halves")
		assert.Empty(t, h.eng.Available())

		if manifestFirst {
			h.adapter.lastList().Resolve(live, nil)
		} else {
			h.fetcher.last().Resolve(res, nil)
		}
		h.eng.Tick()
		assert.False(t, h.eng.IsBusy())

		installed := h.eng.Installed()
		require.Len(t, installed, 1)
		assert.False(t, installed[0].UpToDate)
		assert.Equal(t, "1.2.0", installed[0].LatestVersion)
		require.Len(t, h.eng.Available(), 1)
		assert.Equal(t, "com.sliddes.y", h.eng.Available()[0].Identifier)
	}
}

func TestRefreshIgnoredWhileBusy(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	require.True(t, h.eng.Refresh())
	assert.False(t, h.eng.Refresh())
	assert.Len(t, h.adapter.lists, 1)
	assert.Len(t, h.fetcher.ops, 1)
}

func TestRefreshClearsCollectionsImmediately(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	h.refresh(t, []installer.Package{{Identifier: "com.sliddes.a", DisplayName: "A", Version: "1"}}, okResult(entry("com.sliddes.b", "1", "u")))
	require.NotEmpty(t, h.eng.Installed())

	require.True(t, h.eng.Refresh())
	assert.Empty(t, h.eng.Installed())
	assert.Empty(t, h.eng.Available())
	assert.Empty(t, h.eng.Others())
}

func TestRefreshManifestFailureDegradesToEmpty(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	h.refresh(t,
		[]installer.Package{{Identifier: "com.sliddes.a", DisplayName: "A", Version: "1"}},
		manifest.Result{Outcome: manifest.OutcomeTransportError, Err: &manifest.TransportError{Code: manifest.CodeConnection, Err: errors.New("refused")}},
	)

	assert.Len(t, h.eng.Installed(), 1)
	assert.Empty(t, h.eng.Available())
	assert.False(t, h.eng.IsBusy())
}

func TestRefreshListFailureSkipsReconcile(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	require.True(t, h.eng.Refresh())
	h.adapter.lastList().Resolve(nil, errors.New("package manager offline"))
	h.fetcher.last().Resolve(okResult(entry("com.sliddes.a", "1", "u")), nil)
	h.eng.Tick()

	assert.False(t, h.eng.IsBusy())
	assert.Empty(t, h.eng.Installed())
	assert.Empty(t, h.eng.Available())
	require.NotEmpty(t, h.events)
	assert.Equal(t, EventFailed, h.events[0].Kind)
}

func TestBusySpansStartToHandlerCompletion(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	assert.False(t, h.eng.IsBusy())

	require.True(t, h.eng.Refresh())
	assert.True(t, h.eng.IsBusy())

	h.eng.Tick()
	assert.True(t, h.eng.IsBusy())

	h.adapter.lastList().Resolve(nil, nil)
	h.fetcher.last().Resolve(okResult(), nil)

	var busyDuringHandler bool
	unsub := h.eng.Subscribe(func(ev Event) {
		if ev.Kind == EventRefreshed {
			busyDuringHandler = h.eng.IsBusy()
		}
	})
	defer unsub()

	h.eng.Tick()
	assert.True(t, busyDuringHandler, "busy until the completion handler finishes")
	assert.False(t, h.eng.IsBusy())
}

func TestRequestAddSucceedsAndRefreshes(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	require.True(t, h.eng.RequestAdd("https://example.com/x.git"))
	assert.True(t, h.eng.busy.Running(busy.Add))
	assert.Equal(t, []string{"https://example.com/x.git"}, h.adapter.added)

	h.adapter.lastAdd().Resolve("com.sliddes.x", nil)
	h.eng.Tick()

	assert.False(t, h.eng.busy.Running(busy.Add))
	assert.Len(t, h.adapter.lists, 1, "success triggers a refresh")
	assert.True(t, h.eng.busy.Running(busy.ListInstalled))

	var kinds []EventKind
	for _, ev := range h.events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, EventAdded)
}

func TestRequestAddWhileAddInFlightIsNoop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	require.True(t, h.eng.RequestAdd("https://example.com/x.git"))
	pending := h.tracker.Len()

	assert.False(t, h.eng.RequestAdd("https://example.com/y.git"))
	assert.Equal(t, pending, h.tracker.Len(), "no new pending operation")
	assert.Len(t, h.adapter.adds, 1)
	assert.True(t, h.eng.busy.Running(busy.Add), "flag unchanged")
}

func TestRequestAddFailureLeavesCollections(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	h.refresh(t, []installer.Package{{Identifier: "com.sliddes.a", DisplayName: "A", Version: "1"}}, okResult(entry("com.sliddes.b", "1", "https://example.com/b.git")))
	before := h.eng.Installed()

	require.True(t, h.eng.RequestAdd("com.sliddes.b"))
	assert.Equal(t, "https://example.com/b.git", h.adapter.added[0], "identifier resolved to its git URL")

	h.adapter.lastAdd().Resolve("", errors.New("clone failed"))
	h.eng.Tick()

	assert.False(t, h.eng.IsBusy())
	assert.Len(t, h.adapter.lists, 1, "no refresh after failure")
	assert.Equal(t, before, h.eng.Installed())
	assert.Len(t, h.eng.Available(), 1)
}

func TestRequestRemoveConfirmed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	require.True(t, h.eng.RequestRemove("com.sliddes.a"))
	require.Equal(t, []string{"Are you sure you want to delete com.sliddes.a?"}, h.prompts)
	assert.True(t, h.eng.busy.Running(busy.Remove))

	assert.False(t, h.eng.RequestRemove("com.sliddes.b"), "re-entrant removes are guarded")
	assert.Len(t, h.adapter.removes, 1)

	h.adapter.removes[0].Resolve("com.sliddes.a", nil)
	h.eng.Tick()

	assert.False(t, h.eng.busy.Running(busy.Remove))
	assert.Len(t, h.adapter.lists, 1, "success triggers a refresh")
}

func TestRequestRemoveDeclined(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	h.accept = func(string) bool { return false }

	assert.False(t, h.eng.RequestRemove("com.sliddes.a"))
	assert.Empty(t, h.adapter.removes)
	assert.False(t, h.eng.IsBusy())
}

func TestRequestRemoveFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	require.True(t, h.eng.RequestRemove("com.sliddes.a"))
	h.adapter.removes[0].Resolve("", installer.ErrNotInstalled)
	h.eng.Tick()

	assert.False(t, h.eng.IsBusy())
	assert.Empty(t, h.adapter.lists)
	require.NotEmpty(t, h.events)
	last := h.events[len(h.events)-1]
	assert.Equal(t, EventFailed, last.Kind)
	assert.ErrorIs(t, last.Err, installer.ErrNotInstalled)
}

func TestRequestUpdateAllSequential(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	live := []installer.Package{
		{Identifier: "com.sliddes.a", DisplayName: "A", Version: "1.0.0"},
		{Identifier: "com.sliddes.b", DisplayName: "B", Version: "1.0.0"},
		{Identifier: "com.sliddes.c", DisplayName: "C", Version: "1.0.0"},
		{Identifier: "com.sliddes.d", DisplayName: "D", Version: "2.0.0"},
	}
	h.refresh(t, live, okResult(
		entry("com.sliddes.a", "1.1.0", "https://example.com/a.git"),
		entry("com.sliddes.b", "1.1.0", "https://example.com/b.git"),
		entry("com.sliddes.c", "1.1.0", "https://example.com/c.git"),
		entry("com.sliddes.d", "2.0.0", "https://example.com/d.git"),
	))

	h.accept = func(p string) bool { return p != "Are you sure you want to update B 1.0.0 to 1.1.0?" }
	h.prompts = nil
	require.True(t, h.eng.RequestUpdateAll())
	assert.Len(t, h.prompts, 3, "one prompt per stale package")

	require.Len(t, h.adapter.adds, 1, "updates are submitted one at a time")
	assert.Equal(t, "https://example.com/a.git", h.adapter.added[0])
	assert.True(t, h.eng.busy.Running(busy.UpdateAll))

	h.adapter.lastAdd().Resolve("", errors.New("network down"))
	h.eng.Tick()
	require.Len(t, h.adapter.adds, 2, "failure does not stop the chain")
	assert.Equal(t, "https://example.com/c.git", h.adapter.added[1])
	assert.True(t, h.eng.busy.Running(busy.UpdateAll))

	lists := len(h.adapter.lists)
	h.adapter.lastAdd().Resolve("com.sliddes.c", nil)
	h.eng.Tick()

	assert.False(t, h.eng.busy.Running(busy.UpdateAll))
	assert.False(t, h.eng.busy.Running(busy.Add))
	assert.Equal(t, lists+1, len(h.adapter.lists), "one refresh after the chain")

	var finished *Event
	for i := range h.events {
		if h.events[i].Kind == EventUpdateAllFinished {
			finished = &h.events[i]
		}
	}
	require.NotNil(t, finished)
	assert.Equal(t, 1, finished.Updated)
	assert.Equal(t, 1, finished.Failed)
}

func TestRequestUpdateAllNothingStale(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	h.refresh(t, []installer.Package{{Identifier: "com.sliddes.a", DisplayName: "A", Version: "1.0.0"}}, okResult())

	require.True(t, h.eng.RequestUpdateAll())
	assert.Empty(t, h.adapter.adds)
	assert.False(t, h.eng.IsBusy())
	assert.Equal(t, EventUpdateAllFinished, h.events[len(h.events)-1].Kind)
}

func TestSetLocatorRefreshesOnChange(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	assert.False(t, h.eng.SetLocator(manifest.DefaultLocator))
	assert.False(t, h.eng.SetLocator(""))
	assert.Empty(t, h.fetcher.ops)

	assert.True(t, h.eng.SetLocator(manifest.RawContentPrefix+"acme/pkgs/main/list.json"))
	assert.Equal(t, "acme/pkgs/main/list.json", h.eng.Locator())
	assert.Equal(t, ModeCustom, h.eng.Mode())
	assert.Equal(t, []string{"acme/pkgs/main/list.json"}, h.fetcher.locators)
}

func TestSetLocatorWhileBusyRefreshesAfterward(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	require.True(t, h.eng.Refresh())

	assert.False(t, h.eng.SetLocator("acme/pkgs/main/list.json"))
	assert.Equal(t, ModeCustom, h.eng.Mode())
	assert.False(t, h.eng.Idle(), "a deferred refresh keeps the engine from idling")

	live := []installer.Package{
		{Identifier: "com.sliddes.a", DisplayName: "A", Version: "1.0.0"},
		{Identifier: "com.acme.b", DisplayName: "B", Version: "1.0.0"},
	}
	h.adapter.lastList().Resolve(live, nil)
	h.fetcher.last().Resolve(okResult(entry("com.sliddes.c", "1.0.0", "https://example.com/c.git")), nil)
	h.eng.Tick()

	// The first refresh is classified by the locator it was issued for.
	var refreshed bool
	for _, ev := range h.events {
		refreshed = refreshed || ev.Kind == EventRefreshed
	}
	assert.True(t, refreshed)
	require.Len(t, h.fetcher.locators, 2)
	assert.Equal(t, manifest.DefaultLocator, h.fetcher.locators[0])
	assert.Equal(t, "acme/pkgs/main/list.json", h.fetcher.locators[1])
	assert.True(t, h.eng.IsBusy(), "deferred refresh started")
	assert.Empty(t, h.eng.Installed())

	h.adapter.lastList().Resolve(live, nil)
	h.fetcher.last().Resolve(okResult(), nil)
	h.eng.Tick()
	require.True(t, h.eng.Idle())

	installed := h.eng.Installed()
	require.Len(t, installed, 2)
	assert.Equal(t, "com.sliddes.a", installed[0].Identifier)
	assert.Equal(t, "com.acme.b", installed[1].Identifier)
	assert.Empty(t, h.eng.Available(), "entries from the old manifest are gone")
	assert.Len(t, h.fetcher.ops, 2)
}

func TestRefreshUsesNamespaceOfIssuedLocator(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	require.True(t, h.eng.Refresh())
	h.eng.SetLocator("acme/pkgs/main/list.json")

	var snapshot Collections
	h.eng.Subscribe(func(ev Event) {
		if ev.Kind == EventRefreshed && len(snapshot.Installed) == 0 {
			snapshot = h.eng.coll
		}
	})
	h.adapter.lastList().Resolve([]installer.Package{
		{Identifier: "com.sliddes.a", DisplayName: "A", Version: "1.0.0"},
		{Identifier: "com.acme.b", DisplayName: "B", Version: "1.0.0"},
	}, nil)
	h.fetcher.last().Resolve(okResult(entry("com.sliddes.c", "1.0.0", "https://example.com/c.git")), nil)
	h.eng.Tick()

	require.Len(t, snapshot.Installed, 1)
	assert.Equal(t, "com.sliddes.a", snapshot.Installed[0].Identifier)
	require.Len(t, snapshot.Others, 1)
	assert.Equal(t, "com.acme.b", snapshot.Others[0].Identifier)
	require.Len(t, snapshot.Available, 1)
	assert.Equal(t, "com.sliddes.c", snapshot.Available[0].Identifier)
}

func TestOnPackagesRegistered(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	assert.True(t, h.eng.OnPackagesRegistered())
	assert.False(t, h.eng.OnPackagesRegistered())
}

func TestDescribeAndSearch(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "")
	h.refresh(t,
		[]installer.Package{{Identifier: "com.sliddes.audio", DisplayName: "Audio Tools", Version: "1.0.0"}},
		okResult(entry("com.sliddes.audio", "1.0.0", "u"), entry("com.sliddes.camera", "0.2.0", "https://example.com/cam.git")),
	)

	assert.Equal(t, "Name:com.sliddes.audio Version:1.0.0 Version Latest:", h.eng.Describe("com.sliddes.audio"))
	assert.Empty(t, h.eng.Describe("nope"))

	got := h.eng.Search("camera")
	require.NotEmpty(t, got)
	assert.Equal(t, "com.sliddes.camera", got[0].Identifier)

	assert.Len(t, h.eng.Search(""), 2)
	assert.Empty(t, h.eng.Search("zzzzzz"))
}

func TestPanickingSubscriberStillClearsBusy(t *testing.T) {
	var buf bytes.Buffer
	prev := pslog.SetOutput(&buf)
	defer pslog.SetOutput(prev)

	h := newHarness(t, "")
	h.eng.Subscribe(func(ev Event) {
		if ev.Kind == EventAdded {
			panic("presentation layer crashed")
		}
	})

	require.True(t, h.eng.RequestAdd("https://example.com/x.git"))
	h.adapter.lastAdd().Resolve("com.sliddes.x", nil)
	h.eng.Tick()

	assert.False(t, h.eng.busy.Running(busy.Add))
	assert.Equal(t, 2, h.tracker.Len(), "refresh was still started")
	assert.Contains(t, buf.String(), "presentation layer crashed")
}
