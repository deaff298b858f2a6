package main

import (
	"context"

	"github.com/alfredjeanlab/discovery/internal/search"
	"github.com/spf13/cobra"
)

var (
	facetRoute   routeFlags
	facetVariant string
	facetEntity  string
)

var facetsCmd = &cobra.Command{
	Use:     "facets <name>",
	Short:   "List the values of a facet for the current search",
	GroupID: "search",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		route, err := buildRoute(facetRoute)
		if err != nil {
			return err
		}
		variant, err := search.VariantByName(facetVariant, facetEntity)
		if err != nil {
			return err
		}
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		defer c.Close()

		opts, err := resolveOptions(c, route, facetRoute.listID, variant)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), apiTimeout)
		defer cancel()
		page, err := c.FacetValues(ctx, args[0], opts)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(page)
			return nil
		}
		printFacetPage(cmd.OutOrStdout(), page)
		return nil
	},
}

func init() {
	addRouteFlags(facetsCmd, &facetRoute)
	facetsCmd.Flags().StringVar(&facetVariant, "variant", "", "search variant (default, workspace or entity-group)")
	facetsCmd.Flags().StringVar(&facetEntity, "entity-type", "", "entity type of the entity-group variant")
}
