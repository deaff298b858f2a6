package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/discovery/internal/client"
	"github.com/alfredjeanlab/discovery/internal/model"
	"github.com/alfredjeanlab/discovery/internal/params"
	"github.com/alfredjeanlab/discovery/internal/retrieve"
	"github.com/alfredjeanlab/discovery/internal/search"
	"github.com/spf13/cobra"
)

// routeFlags are the search controls shared by search and session create.
type routeFlags struct {
	base          string
	listID        string
	query         string
	scope         string
	configuration string
	dsoType       string
	view          string
	sort          string
	page          int
	pageSize      int
	filters       []string
}

func addRouteFlags(cmd *cobra.Command, rf *routeFlags) {
	cmd.Flags().StringVar(&rf.base, "url", "/search", "page URL the controls are applied to")
	cmd.Flags().StringVar(&rf.listID, "list", search.DefaultPaginationID, "pagination id of the result list")
	cmd.Flags().StringVarP(&rf.query, "query", "q", "", "free-text query")
	cmd.Flags().StringVar(&rf.scope, "scope", "", "uuid of the community or collection to search in")
	cmd.Flags().StringVar(&rf.configuration, "configuration", "", "discovery configuration name")
	cmd.Flags().StringVar(&rf.dsoType, "dso-type", "", "restrict to ITEM, COLLECTION, COMMUNITY or BITSTREAM")
	cmd.Flags().StringVar(&rf.view, "view", "", "view mode (list, grid or detail)")
	cmd.Flags().StringVar(&rf.sort, "sort", "", "sort as field,DIRECTION")
	cmd.Flags().IntVar(&rf.page, "page", 0, "1-based page number")
	cmd.Flags().IntVar(&rf.pageSize, "rpp", 0, "results per page")
	cmd.Flags().StringArrayVarP(&rf.filters, "filter", "f", nil, "filter as field=value[,operator] (repeatable)")
}

// parseFilterFlag decodes "field=value[,operator]".
func parseFilterFlag(raw string) (model.Filter, error) {
	field, rest, ok := strings.Cut(raw, "=")
	field = strings.TrimSpace(field)
	if !ok || field == "" || rest == "" {
		return model.Filter{}, fmt.Errorf("invalid filter %q: expected field=value[,operator]", raw)
	}
	value, op := model.ParseFilterValue(rest)
	return model.Filter{Field: field, Value: value, Operator: op}, nil
}

// buildRoute overlays the flags onto the query of rf.base.
func buildRoute(rf routeFlags) (string, error) {
	base := rf.base
	if base == "" {
		base = "/search"
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", base, err)
	}
	q := u.Query()
	set := func(key, v string) {
		if v != "" {
			q.Set(key, v)
		}
	}
	set(search.ParamQuery, rf.query)
	set(search.ParamScope, rf.scope)
	set(search.ParamConfiguration, rf.configuration)
	if rf.dsoType != "" {
		t, ok := model.ParseDSOType(rf.dsoType)
		if !ok {
			return "", fmt.Errorf("invalid dso type %q", rf.dsoType)
		}
		q.Set(search.ParamDSOType, string(t))
	}
	set(search.ParamView, rf.view)
	set(search.ListParam(rf.listID, search.ParamSort), rf.sort)
	if rf.page > 0 {
		q.Set(search.ListParam(rf.listID, search.ParamPage), strconv.Itoa(rf.page))
	}
	if rf.pageSize > 0 {
		q.Set(search.ListParam(rf.listID, search.ParamPageSize), strconv.Itoa(rf.pageSize))
	}
	for _, raw := range rf.filters {
		f, err := parseFilterFlag(raw)
		if err != nil {
			return "", err
		}
		q.Add(f.Key(), f.Param())
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

var (
	searchRoute   routeFlags
	searchVariant string
	searchEntity  string
	searchTimeout time.Duration
)

var searchCmd = &cobra.Command{
	Use:     "search [query]",
	Short:   "Run one search through a local pipeline",
	GroupID: "search",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rf := searchRoute
		if len(args) == 1 {
			rf.query = args[0]
		}
		route, err := buildRoute(rf)
		if err != nil {
			return err
		}
		variant, err := search.VariantByName(searchVariant, searchEntity)
		if err != nil {
			return err
		}
		c, err := newAPIClient()
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), searchTimeout)
		defer cancel()
		out, err := runSearch(ctx, c, route, rf.listID, variant)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(out)
		} else {
			printOutcome(cmd.OutOrStdout(), out)
		}
		if out.HasFailed() {
			return fmt.Errorf("search failed: %s", out.Message)
		}
		return nil
	},
}

// resolveOptions merges route, search configuration and variant defaults
// into the options of one list.
func resolveOptions(c search.ConfigProvider, route, listID string, variant search.Variant) (model.PaginatedSearchOptions, error) {
	adapter, err := params.New(route)
	if err != nil {
		return model.PaginatedSearchOptions{}, err
	}
	defer adapter.Close()

	svc := search.New(adapter, c, search.WithVariant(variant))
	defer svc.Close()
	_, unsub, err := svc.Subscribe(listID)
	if err != nil {
		return model.PaginatedSearchOptions{}, err
	}
	defer unsub()
	return svc.Current(listID)
}

// runSearch retrieves one list and waits for the first settled outcome.
func runSearch(ctx context.Context, c client.DiscoveryClient, route, listID string, variant search.Variant) (retrieve.Outcome, error) {
	opts, err := resolveOptions(c, route, listID, variant)
	if err != nil {
		return retrieve.Outcome{}, err
	}

	driver := retrieve.New(c)
	defer driver.Close()
	outcomes, stop := driver.Subscribe()
	defer stop()

	if err := driver.Retrieve(ctx, opts); err != nil {
		return retrieve.Outcome{}, err
	}
	for {
		select {
		case o, ok := <-outcomes:
			if !ok {
				return retrieve.Outcome{}, retrieve.ErrClosed
			}
			if o.IsSettled() {
				return o, nil
			}
		case <-ctx.Done():
			return retrieve.Outcome{}, ctx.Err()
		}
	}
}

func init() {
	addRouteFlags(searchCmd, &searchRoute)
	searchCmd.Flags().StringVar(&searchVariant, "variant", "", "search variant (default, workspace or entity-group)")
	searchCmd.Flags().StringVar(&searchEntity, "entity-type", "", "entity type of the entity-group variant")
	searchCmd.Flags().DurationVar(&searchTimeout, "timeout", 30*time.Second, "give up after this long")
}
