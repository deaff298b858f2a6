package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/discovery/internal/model"
	"github.com/alfredjeanlab/discovery/internal/retrieve"
	"github.com/alfredjeanlab/discovery/internal/ui"
)

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

// nameWidth is the room left for the NAME column after ID and TYPE.
func nameWidth() int {
	if w := ui.Width() - 50; w > 20 {
		return w
	}
	return 20
}

func printOutcome(out io.Writer, o retrieve.Outcome) {
	fmt.Fprintf(out, "%s  %s\n", ui.RenderState(o.State), ui.RenderMuted(o.Options.String()))
	if o.HasFailed() {
		fmt.Fprintf(out, "status %d: %s\n", o.StatusCode, o.Message)
		return
	}
	if o.Payload == nil || o.Payload.Result.IsEmpty() {
		fmt.Fprintln(out, "no results")
		return
	}
	printResult(out, o.Payload.Result)
}

func printResult(out io.Writer, res *model.SearchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tNAME")
	width := nameWidth()
	for _, obj := range res.Objects {
		fmt.Fprintf(w, "%s\t%s\t%s\n", obj.ID, obj.Type, ui.Truncate(obj.Name, width))
	}
	w.Flush()
	fmt.Fprintf(out, "\npage %d of %d (%d total)\n", res.Page.Number, res.Page.TotalPages, res.Page.TotalElements)
}

func printSearchConfig(out io.Writer, cfg *model.SearchConfig) {
	fmt.Fprintf(out, "%s %s\n", ui.RenderAccent("Configuration:"), cfg.Configuration)
	if cfg.Scope != "" {
		fmt.Fprintf(out, "%s %s\n", ui.RenderAccent("Scope:"), cfg.Scope)
	}

	fmt.Fprintln(out, ui.RenderAccent("\nSort options:"))
	for _, s := range cfg.SortOptions {
		fmt.Fprintf(out, "  %s,%s\n", s.Field, s.Direction)
	}

	fmt.Fprintln(out, ui.RenderAccent("\nFilters:"))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tTYPE\tOPEN\tOPERATORS")
	for _, f := range cfg.Filters {
		ops := make([]string, len(f.Operators))
		for i, op := range f.Operators {
			ops[i] = string(op)
		}
		open := ""
		if f.OpenByDefault {
			open = "yes"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", f.Name, f.FilterType, open, strings.Join(ops, ","))
	}
	w.Flush()
}

func printFacetPage(out io.Writer, page *model.FacetPage) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COUNT\tVALUE")
	for _, v := range page.Values {
		fmt.Fprintf(w, "%d\t%s\n", v.Count, ui.Truncate(v.Label, nameWidth()))
	}
	w.Flush()
	if page.Page.TotalPages > 1 {
		fmt.Fprintf(out, "\npage %d of %d\n", page.Page.Number, page.Page.TotalPages)
	}
}
