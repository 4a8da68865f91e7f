package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/giantswarm/tandem/internal/api"
	"github.com/giantswarm/tandem/internal/layout"
	tstrings "github.com/giantswarm/tandem/pkg/strings"
)

var outputFormat string

// newTable creates a table with the standard styling.
func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderUsers prints users as a table, marking the visible ones.
func renderUsers(w io.Writer, users []api.User, state api.LayoutState) {
	if len(users) == 0 {
		fmt.Fprintf(w, "%s\n", text.FgYellow.Sprint("No users yet. Add one with 'tandem users add <name>'."))
		return
	}

	t := newTable(w)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("ID"),
		text.FgHiCyan.Sprint("NAME"),
		text.FgHiCyan.Sprint("SIGNED IN"),
		text.FgHiCyan.Sprint("LAST ACTIVE"),
		text.FgHiCyan.Sprint("VIEW"),
	})
	for _, u := range users {
		signedIn := text.FgHiBlack.Sprint("no")
		if u.IsAuthenticated {
			signedIn = text.FgGreen.Sprint("yes")
			if u.Email != "" {
				signedIn = text.FgGreen.Sprint(tstrings.TruncateMiddle(u.Email, tstrings.DefaultCellMaxLen))
			}
		}
		view := ""
		switch u.ID {
		case state.Primary:
			view = "primary"
		case state.Secondary:
			view = "secondary"
		}
		t.AppendRow(table.Row{u.ID, tstrings.Truncate(u.Name, tstrings.DefaultCellMaxLen), signedIn, formatAge(u.LastActive), view})
	}
	t.Render()
}

// renderRegions prints the layout state and region geometry.
func renderRegions(w io.Writer, state api.LayoutState, regions []layout.Region) {
	if state.Primary == "" {
		fmt.Fprintf(w, "%s\n", text.FgYellow.Sprint("No user is active."))
		return
	}

	t := newTable(w)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("USER"),
		text.FgHiCyan.Sprint("X"),
		text.FgHiCyan.Sprint("Y"),
		text.FgHiCyan.Sprint("WIDTH"),
		text.FgHiCyan.Sprint("HEIGHT"),
	})
	for _, r := range regions {
		t.AppendRow(table.Row{r.UserID, r.Bounds.X, r.Bounds.Y, r.Bounds.Width, r.Bounds.Height})
	}
	t.Render()
}

// formatAge renders a timestamp relative to now.
func formatAge(ts time.Time) string {
	if ts.IsZero() {
		return "never"
	}
	d := time.Since(ts)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// startSpinner starts a spinner unless quiet is set. The returned function
// stops it and prints final.
func startSpinner(w io.Writer, quiet bool, suffix string) func(final string) {
	if quiet {
		return func(string) {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + suffix
	s.Start()
	return func(final string) {
		s.FinalMSG = final
		s.Stop()
	}
}
