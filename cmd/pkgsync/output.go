// ABOUTME: Table rendering for package collections using text/tabwriter
// ABOUTME: Display names are truncated by terminal width; the status column is styled with lipgloss

package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/mauromedda/pkgsync/internal/engine"
	"github.com/mauromedda/pkgsync/internal/pkginfo"
)

// maxNameWidth bounds the NAME column in terminal cells.
const maxNameWidth = 32

type styles struct {
	title   lipgloss.Style
	current lipgloss.Style
	stale   lipgloss.Style
	absent  lipgloss.Style
}

// newStyles picks a color profile for w; non-terminal writers get plain text.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:   r.NewStyle().Bold(true),
		current: r.NewStyle().Foreground(lipgloss.Color("2")),
		stale:   r.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		absent:  r.NewStyle().Faint(true),
	}
}

// renderCollections prints the three collections under their section titles.
func renderCollections(w io.Writer, e *engine.Engine) error {
	st := newStyles(w)
	sections := []struct {
		title string
		recs  []pkginfo.Record
	}{
		{e.Mode().String() + " packages", e.Installed()},
		{"Available", e.Available()},
		{"Other packages", e.Others()},
	}
	for i, s := range sections {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, st.title.Render(s.title))
		if err := writeTable(w, st, s.recs); err != nil {
			return err
		}
	}
	return nil
}

// renderTable prints recs as a single table.
func renderTable(w io.Writer, recs []pkginfo.Record) error {
	return writeTable(w, newStyles(w), recs)
}

func writeTable(w io.Writer, st styles, recs []pkginfo.Record) error {
	if len(recs) == 0 {
		_, err := fmt.Fprintln(w, "  (none)")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tIDENTIFIER\tINSTALLED\tLATEST\tSTATUS")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			truncateName(r.DisplayName),
			r.Identifier,
			orDash(r.InstalledVersion),
			orDash(latestOf(r)),
			status(st, r))
	}
	return tw.Flush()
}

// truncateName shortens s to maxNameWidth cells.
func truncateName(s string) string {
	return runewidth.Truncate(pkginfo.NormalizeName(s), maxNameWidth, "…")
}

// latestOf is the version a record could move to: the diffed latest for
// installs, the advertised version for manifest entries.
func latestOf(r pkginfo.Record) string {
	if r.LatestVersion != "" {
		return r.LatestVersion
	}
	return r.ListedVersion
}

func status(st styles, r pkginfo.Record) string {
	switch {
	case !r.IsInstalled():
		return st.absent.Render("not installed")
	case r.NeedsUpdate():
		return st.stale.Render("update available")
	default:
		return st.current.Render("up to date")
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
