package inspector

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var sectionColor = color.New(color.FgCyan, color.Bold)

// WriteTable renders the report for humans. Color lands only in the last
// column of each row so tabwriter's width accounting stays correct; the
// CLI turns color off entirely when stdout is not a terminal.
func (r *Report) WriteTable(w io.Writer) error {
	if _, err := sectionColor.Fprintln(w, "Streams"); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  STREAM\tDEVICE\tTERMINAL")
	for _, s := range r.Streams {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", s.Name, s.Device, yesNo(s.Interactive))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if r.Terminal == nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "stdin is not a terminal; no attributes to report")
		return nil
	}
	t := r.Terminal

	fmt.Fprintln(w)
	sectionColor.Fprintln(w, "Terminal")
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  window\t%dx%d\n", t.Window.Cols, t.Window.Rows)
	fmt.Fprintf(tw, "  vmin\t%d\n", t.VMin)
	fmt.Fprintf(tw, "  vtime\t%d\n", t.VTime)
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, section := range []struct {
		title string
		flags *orderedmap.OrderedMap[string, bool]
	}{
		{"Input flags", t.Input},
		{"Output flags", t.Output},
		{"Control flags", t.Control},
		{"Local flags", t.Local},
	} {
		fmt.Fprintln(w)
		sectionColor.Fprintln(w, section.title)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for pair := section.flags.Oldest(); pair != nil; pair = pair.Next() {
			fmt.Fprintf(tw, "  %s\t%s\n", pair.Key, onOffColored(pair.Value))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	sectionColor.Fprintln(w, "Raw mode would change")
	if t.RawDelta.Len() == 0 {
		fmt.Fprintln(w, "  nothing")
		return nil
	}
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for pair := t.RawDelta.Oldest(); pair != nil; pair = pair.Next() {
		fmt.Fprintf(tw, "  %s\t%s\n", pair.Key, pair.Value)
	}
	return tw.Flush()
}

// WriteJSON renders the report as indented JSON. The ordered flag maps
// keep their decode order, so output is diffable run to run.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func yesNo(b bool) string {
	if b {
		return color.GreenString("yes")
	}
	return color.RedString("no")
}

func onOffColored(b bool) string {
	if b {
		return color.GreenString("on")
	}
	return "off"
}
