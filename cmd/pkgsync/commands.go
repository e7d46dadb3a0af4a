// ABOUTME: Package subcommands: list, add, remove, update and search
// ABOUTME: Each issues one engine command, then waits for the engine to settle

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Refresh and print installed, available and other packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			if err := a.refresh(); err != nil {
				return err
			}
			return renderCollections(a.out, a.engine)
		},
	}
}

func newAddCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <git-url|path|identifier>",
		Short: "Install a package from a git URL, a local path or a manifest identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			// Identifiers resolve against the manifest, so load it first.
			if err := a.refresh(); err != nil {
				return err
			}
			a.engine.RequestAdd(args[0])
			if err := a.wait(); err != nil {
				return err
			}
			if err := a.failure(); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "installed %s\n", args[0])
			return nil
		},
	}
}

func newRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <identifier>",
		Short: "Uninstall a package after confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			return a.remove(args[0])
		},
	}
}

func newUpdateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Update every out-of-date package from its source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			if err := a.refresh(); err != nil {
				return err
			}
			a.engine.RequestUpdateAll()
			if err := a.wait(); err != nil {
				return err
			}
			// Individual failures were logged; the summary carries the counts.
			a.failures = nil
			if a.finished != nil {
				fmt.Fprintf(a.out, "updated %d, failed %d\n", a.finished.Updated, a.finished.Failed)
				if a.finished.Failed > 0 {
					return fmt.Errorf("%d package(s) failed to update", a.finished.Failed)
				}
			}
			return nil
		},
	}
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search [query]",
		Short: "Fuzzy-search managed and available packages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.newApp(cmd)
			if err != nil {
				return err
			}
			if err := a.refresh(); err != nil {
				return err
			}
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			return renderTable(a.out, a.engine.Search(query))
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pkgsync %s (%s) built %s\n", version, commit, date)
		},
	}
}
