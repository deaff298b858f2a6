package main

import (
	"context"
	"time"

	"github.com/alfredjeanlab/discovery/internal/search"
	"github.com/spf13/cobra"
)

// apiTimeout bounds one-shot calls to the repository API.
const apiTimeout = 15 * time.Second

var configCmd = &cobra.Command{
	Use:     "config [configuration]",
	Short:   "Show the sort options and filters of a search configuration",
	GroupID: "search",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := search.DefaultConfiguration
		if len(args) == 1 {
			name = args[0]
		}
		scope, _ := cmd.Flags().GetString("scope")

		c, err := newAPIClient()
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), apiTimeout)
		defer cancel()
		cfg, err := c.SearchConfig(ctx, name, scope)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(cfg)
			return nil
		}
		printSearchConfig(cmd.OutOrStdout(), cfg)
		return nil
	},
}

func init() {
	configCmd.Flags().String("scope", "", "uuid of the community or collection")
}
