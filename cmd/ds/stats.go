package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/discovery/internal/events"
	"github.com/alfredjeanlab/discovery/internal/model"
	"github.com/alfredjeanlab/discovery/internal/store/postgres"
	dsync "github.com/alfredjeanlab/discovery/internal/sync"
	"github.com/alfredjeanlab/discovery/internal/ui"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Inspect the search log",
	GroupID: "sessions",
}

var statsQueriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "Show the most frequent queries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		window, _ := cmd.Flags().GetDuration("window")
		limit, _ := cmd.Flags().GetInt("limit")

		q := url.Values{}
		if window > 0 {
			q.Set("window", window.String())
		}
		if limit > 0 {
			q.Set("limit", strconv.Itoa(limit))
		}
		path := "/v1/stats/queries"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		var resp struct {
			Window  string              `json:"window"`
			Queries []*model.QueryCount `json:"queries"`
		}
		if err := serverCall(cmd, http.MethodGet, path, nil, &resp); err != nil {
			return err
		}
		if jsonOutput {
			printJSON(resp)
			return nil
		}
		printTopQueries(cmd.OutOrStdout(), resp.Window, resp.Queries)
		return nil
	},
}

func printTopQueries(out io.Writer, window string, queries []*model.QueryCount) {
	if len(queries) == 0 {
		fmt.Fprintf(out, "no searches in the last %s\n", window)
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COUNT\tLAST SEEN\tQUERY")
	for _, q := range queries {
		query := q.Query
		if query == "" {
			query = ui.RenderMuted("(empty)")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", q.Count, q.LastSeen.Format("2006-01-02 15:04"), query)
	}
	w.Flush()
}

var statsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the search log as JSONL",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbURL, _ := cmd.Flags().GetString("database")
		since, _ := cmd.Flags().GetDuration("since")
		output, _ := cmd.Flags().GetString("output")
		if dbURL == "" {
			return fmt.Errorf("no database: pass --database or set DISCOVERY_DATABASE_URL")
		}

		s, err := postgres.New(dbURL)
		if err != nil {
			return err
		}
		defer s.Close()

		var w io.Writer = cmd.OutOrStdout()
		if output != "" && output != "-" {
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}

		var from time.Time
		if since > 0 {
			from = time.Now().Add(-since)
		}
		return dsync.ExportJSONL(cmd.Context(), s, w, from)
	},
}

func defaultNATSURL() string {
	if s := os.Getenv("DISCOVERY_NATS_URL"); s != "" {
		return s
	}
	return activeRemote().NATSURL
}

var statsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow searches as they are performed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats")
		if natsURL == "" {
			return fmt.Errorf("no NATS URL: pass --nats, set DISCOVERY_NATS_URL or configure a remote")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		sub, err := events.NewNATSSubscriber(natsURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.Printf("nats: disconnected: %v", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				log.Printf("nats: reconnected")
			}),
		)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer sub.Close()

		return tailSearches(ctx, cmd.OutOrStdout(), sub)
	},
}

// tailSearches prints every search-performed event until ctx ends or the
// subscription closes.
func tailSearches(ctx context.Context, out io.Writer, sub events.Subscriber) error {
	ch, cancel, err := sub.Subscribe(events.TopicSearchPerformed)
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-ch:
			if !ok {
				return nil
			}
			ev, err := events.DecodeSearchPerformed(raw)
			if err != nil {
				fmt.Fprintf(os.Stderr, "skipping event: %v\n", err)
				continue
			}
			if jsonOutput {
				printJSON(ev.Search)
				continue
			}
			printSearchEvent(out, ev.Search)
		}
	}
}

func printSearchEvent(out io.Writer, s *model.SearchEvent) {
	fmt.Fprintf(out, "%s %s %q page %d: %d of %d (%s)\n",
		ui.RenderMuted(s.CreatedAt.Format("15:04:05")),
		ui.RenderAccent(s.Configuration),
		s.Query,
		s.Page,
		s.Returned,
		s.TotalElements,
		s.Took.Round(time.Millisecond),
	)
}

func init() {
	statsQueriesCmd.Flags().Duration("window", 0, "look-back window (server default 168h)")
	statsQueriesCmd.Flags().Int("limit", 0, "number of queries (server default 10)")

	statsExportCmd.Flags().String("database", os.Getenv("DISCOVERY_DATABASE_URL"), "Postgres URL of the search log")
	statsExportCmd.Flags().Duration("since", 0, "only export searches from this far back (0 = everything)")
	statsExportCmd.Flags().StringP("output", "o", "", "output file (default stdout)")

	statsTailCmd.Flags().String("nats", defaultNATSURL(), "NATS URL carrying search events")

	statsCmd.AddCommand(statsQueriesCmd)
	statsCmd.AddCommand(statsExportCmd)
	statsCmd.AddCommand(statsTailCmd)
}
