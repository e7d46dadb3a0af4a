// ABOUTME: Root cobra command, persistent flags and engine wiring for every subcommand
// ABOUTME: The CLI is the tick source: it pumps the tracker until the engine is idle

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mauromedda/pkgsync/internal/config"
	"github.com/mauromedda/pkgsync/internal/engine"
	pshttp "github.com/mauromedda/pkgsync/internal/http"
	"github.com/mauromedda/pkgsync/internal/installer"
	pslog "github.com/mauromedda/pkgsync/internal/log"
	"github.com/mauromedda/pkgsync/internal/manifest"
	"github.com/mauromedda/pkgsync/internal/tracker"
)

// rootOptions holds the persistent flag values.
type rootOptions struct {
	configPath string
	manifest   string
	dir        string
	endpoint   string
	yes        bool
	verbose    bool
	tick       time.Duration
	stdin      io.Reader
}

func newRootCmd(stdin io.Reader) *cobra.Command {
	opts := &rootOptions{stdin: stdin}

	cmd := &cobra.Command{
		Use:           "pkgsync",
		Short:         "Keep installed packages in sync with a remote package manifest",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if opts.verbose {
				pslog.SetLevel(pslog.LevelDebug)
			}
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "settings file (default ~/.pkgsync/config.yaml)")
	f.StringVar(&opts.manifest, "manifest", "", "manifest locator, overriding the configured one")
	f.StringVar(&opts.dir, "dir", "", "packages directory, overriding the configured one")
	f.StringVar(&opts.endpoint, "endpoint", manifest.DefaultEndpoint, "manifest proxy endpoint")
	f.BoolVarP(&opts.yes, "yes", "y", false, "approve every confirmation prompt")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	f.DurationVar(&opts.tick, "tick", 0, "interval between tracker ticks (default from settings)")
	_ = f.MarkHidden("endpoint")

	cmd.AddCommand(
		newListCmd(opts),
		newAddCmd(opts),
		newRemoveCmd(opts),
		newUpdateCmd(opts),
		newSearchCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// settings loads the settings file and applies flag overrides.
func (o *rootOptions) settings(cmd *cobra.Command) (config.Settings, error) {
	s, err := config.Load(o.configPath)
	if err != nil {
		return config.Settings{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("manifest") {
		s.ManifestLocator = o.manifest
	}
	if flags.Changed("dir") {
		s.PackagesDir = config.ExpandPath(o.dir)
	}
	if flags.Changed("yes") {
		s.AssumeYes = o.yes
	}
	if flags.Changed("tick") {
		if o.tick <= 0 {
			return config.Settings{}, fmt.Errorf("--tick must be positive, got %s", o.tick)
		}
		s.TickInterval = o.tick
	}
	return s, nil
}

// app is one CLI invocation's engine and its collaborators.
type app struct {
	ctx      context.Context
	settings config.Settings
	engine   *engine.Engine
	tracker  *tracker.Tracker
	out      io.Writer
	failures []engine.Event
	finished *engine.Event
}

func (o *rootOptions) newApp(cmd *cobra.Command) (*app, error) {
	s, err := o.settings(cmd)
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	client := pshttp.SecureHTTPClient(s.HTTPTimeout, pshttp.DefaultUserAgent)
	fetcher := manifest.NewFetcher(client, o.endpoint, pslog.New("manifest"))
	adapter := installer.NewDirAdapter(ctx, s.PackagesDir, pslog.New("installer"))
	tr := tracker.New(pslog.New("tracker"))

	a := &app{ctx: ctx, settings: s, tracker: tr, out: cmd.OutOrStdout()}
	a.engine = engine.New(adapter, fetcher, engine.Options{
		Locator:   s.ManifestLocator,
		Confirmer: newPromptConfirmer(o.stdin, cmd.ErrOrStderr(), s.AssumeYes, isTerminal(o.stdin)),
		Logger:    pslog.New("engine"),
		Tracker:   tr,
		Context:   ctx,
	})
	a.engine.Subscribe(a.record)
	return a, nil
}

func (a *app) record(ev engine.Event) {
	switch ev.Kind {
	case engine.EventFailed:
		a.failures = append(a.failures, ev)
	case engine.EventUpdateAllFinished:
		a.finished = &ev
	}
}

// wait pumps the tracker until no command is running or pending.
func (a *app) wait() error {
	return a.tracker.Run(a.ctx, a.settings.TickInterval, a.engine.Idle)
}

// refresh runs a full refresh and waits for it.
func (a *app) refresh() error {
	a.engine.Refresh()
	if err := a.wait(); err != nil {
		return err
	}
	return a.failure()
}

// failure returns the first failure reported since the last call, if any.
func (a *app) failure() error {
	if len(a.failures) == 0 {
		return nil
	}
	ev := a.failures[0]
	a.failures = nil
	if ev.Target == "" {
		return ev.Err
	}
	return fmt.Errorf("%s: %w", ev.Target, ev.Err)
}

// remove uninstalls identifier and waits for the follow-up refresh.
func (a *app) remove(identifier string) error {
	if a.engine.IsBusy() {
		return fmt.Errorf("removing %s: %w (%s)", identifier, errBusy, a.engine.Status())
	}
	if !a.engine.RequestRemove(identifier) {
		return fmt.Errorf("removing %s: %w", identifier, errCancelled)
	}
	if err := a.wait(); err != nil {
		return err
	}
	if err := a.failure(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "removed %s\n", identifier)
	return nil
}

var (
	errCancelled = errors.New("cancelled")
	errBusy      = errors.New("engine busy")
)
