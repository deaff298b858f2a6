package main

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/alfredjeanlab/discovery/internal/ui"
	"github.com/spf13/cobra"
)

// helpRule styles every match of re; render receives the submatches.
type helpRule struct {
	re     *regexp.Regexp
	render func(parts []string) string
}

// Rules are applied in order to Cobra's plain help text.
var helpRules = []helpRule{
	// Section headers such as "Search:" or "Flags:".
	{
		re:     regexp.MustCompile(`(?m)^([A-Z][^\n]*:)\s*$`),
		render: func(p []string) string { return ui.RenderAccent(strings.TrimSpace(p[0])) },
	},
	// Command names in the command list.
	{
		re:     regexp.MustCompile(`(?m)^(  )(\S+)(  )`),
		render: func(p []string) string { return p[1] + ui.RenderCommand(p[2]) + p[3] },
	},
	// Flag value types: "--page int", "--filter stringArray".
	{
		re:     regexp.MustCompile(`(--?\S+\s+)(string|int|duration|stringSlice|stringArray)`),
		render: func(p []string) string { return p[1] + ui.RenderMuted(p[2]) },
	},
	// (default "foo")
	{
		re:     regexp.MustCompile(`\(default "[^"]*"\)`),
		render: func(p []string) string { return ui.RenderMuted(p[0]) },
	},
}

// colorizedHelpFunc returns a Cobra help function that post-processes the
// default help text with ANSI colors when the terminal supports it.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, _ []string) {
		if !ui.ShouldUseColor() || noColor {
			_ = cmd.Usage()
			return
		}

		orig := cmd.OutOrStdout()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(orig)

		fmt.Fprint(orig, colorizeHelpOutput(buf.String()))
	}
}

func colorizeHelpOutput(s string) string {
	for _, rule := range helpRules {
		s = rule.re.ReplaceAllStringFunc(s, func(match string) string {
			return rule.render(rule.re.FindStringSubmatch(match))
		})
	}
	return s
}
