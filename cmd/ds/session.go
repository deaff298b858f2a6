package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/discovery/internal/client"
	"github.com/alfredjeanlab/discovery/internal/retrieve"
	"github.com/alfredjeanlab/discovery/internal/server"
	"github.com/alfredjeanlab/discovery/internal/ui"
	"github.com/alfredjeanlab/discovery/internal/views"
	"github.com/spf13/cobra"
)

// serverTimeout bounds one request to the session server.
const serverTimeout = 15 * time.Second

// serverCall performs one JSON request against the session server.
func serverCall(cmd *cobra.Command, method, path string, body, result any) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), serverTimeout)
	defer cancel()
	return client.NewHTTPClient(serverURL, serverToken).Do(ctx, method, path, body, result)
}

func sessionPath(id string, parts ...string) string {
	p := "/v1/sessions/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// parseParamArgs decodes "key=value" arguments for navigate. Repeating a
// key adds values; "key=" removes the key from the route.
func parseParamArgs(args []string) (map[string][]string, error) {
	out := make(map[string][]string)
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected key=value", a)
		}
		if v == "" {
			if _, seen := out[k]; !seen {
				out[k] = []string{}
			}
			continue
		}
		out[k] = append(out[k], v)
	}
	return out, nil
}

func printURL(cmd *cobra.Command, resp server.URLResponse) {
	if jsonOutput {
		printJSON(resp)
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.URL)
}

var sessionCmd = &cobra.Command{
	Use:     "session",
	Short:   "Drive search sessions on a discovery server",
	GroupID: "sessions",
}

var (
	sessionRoute   routeFlags
	sessionVariant string
	sessionEntity  string
	sessionLists   []string
)

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Open a session on a page URL",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		route, err := buildRoute(sessionRoute)
		if err != nil {
			return err
		}
		lists := sessionLists
		if len(lists) == 0 {
			lists = []string{sessionRoute.listID}
		}
		req := server.CreateSessionRequest{
			URL:        route,
			Variant:    sessionVariant,
			EntityType: sessionEntity,
			Lists:      lists,
		}
		var info server.SessionInfo
		if err := serverCall(cmd, http.MethodPost, "/v1/sessions", req, &info); err != nil {
			return err
		}
		if jsonOutput {
			printJSON(info)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.RenderAccent(info.ID), info.URL)
		return nil
	},
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List open sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Sessions []server.SessionInfo `json:"sessions"`
		}
		if err := serverCall(cmd, http.MethodGet, "/v1/sessions", nil, &resp); err != nil {
			return err
		}
		if jsonOutput {
			printJSON(resp.Sessions)
			return nil
		}
		if len(resp.Sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no open sessions")
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tVARIANT\tLISTS\tAGE\tURL")
		for _, s := range resp.Sessions {
			age := time.Since(s.CreatedAt).Truncate(time.Second)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Variant, strings.Join(s.Lists, ","), age, ui.Truncate(s.URL, nameWidth()))
		}
		return w.Flush()
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var info server.SessionInfo
		if err := serverCall(cmd, http.MethodGet, sessionPath(args[0]), nil, &info); err != nil {
			return err
		}
		if jsonOutput {
			printJSON(info)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "ID:       %s\n", info.ID)
		fmt.Fprintf(cmd.OutOrStdout(), "Variant:  %s\n", info.Variant)
		fmt.Fprintf(cmd.OutOrStdout(), "URL:      %s\n", info.URL)
		fmt.Fprintf(cmd.OutOrStdout(), "Lists:    %s\n", strings.Join(info.Lists, ", "))
		fmt.Fprintf(cmd.OutOrStdout(), "Created:  %s\n", info.CreatedAt.Format("2006-01-02 15:04:05"))
		return nil
	},
}

var sessionNavigateCmd = &cobra.Command{
	Use:   "navigate <session-id> <key=value>...",
	Short: "Merge query parameters into the session route",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := parseParamArgs(args[1:])
		if err != nil {
			return err
		}
		var resp server.URLResponse
		if err := serverCall(cmd, http.MethodPost, sessionPath(args[0], "navigate"), server.NavigateRequest{Params: params}, &resp); err != nil {
			return err
		}
		printURL(cmd, resp)
		return nil
	},
}

var intentList string

var sessionIntentCmd = &cobra.Command{
	Use:   "intent <session-id> <action>",
	Short: "Apply a view intent (add_filter, set_page, set_sort, ...) to a list",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := views.Intent{Action: args[1]}
		in.Field, _ = cmd.Flags().GetString("field")
		in.Value, _ = cmd.Flags().GetString("value")
		in.Operator, _ = cmd.Flags().GetString("operator")
		in.Page, _ = cmd.Flags().GetInt("page")
		in.PageSize, _ = cmd.Flags().GetInt("rpp")

		req := server.IntentRequest{PaginationID: intentList, Intent: in}
		var resp server.URLResponse
		if err := serverCall(cmd, http.MethodPost, sessionPath(args[0], "intents"), req, &resp); err != nil {
			return err
		}
		printURL(cmd, resp)
		return nil
	},
}

var resultsList string

var sessionResultsCmd = &cobra.Command{
	Use:   "results <session-id>",
	Short: "Show the current outcome of a list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out retrieve.Outcome
		if err := serverCall(cmd, http.MethodGet, sessionPath(args[0], "lists", resultsList, "results"), nil, &out); err != nil {
			return err
		}
		if jsonOutput {
			printJSON(out)
			return nil
		}
		printOutcome(cmd.OutOrStdout(), out)
		return nil
	},
}

var sessionCloseCmd = &cobra.Command{
	Use:   "close <session-id>",
	Short: "Close a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := serverCall(cmd, http.MethodDelete, sessionPath(args[0]), nil, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "session %s closed\n", args[0])
		return nil
	},
}

var sessionWatchCmd = &cobra.Command{
	Use:   "watch <session-id>",
	Short: "Stream route, options and outcome events of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topics, _ := cmd.Flags().GetString("topics")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		path := sessionPath(args[0], "stream")
		if topics != "" {
			path += "?topics=" + url.QueryEscape(topics)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(serverURL, "/")+path, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Last-Event-ID", "0")
		if serverToken != "" {
			req.Header.Set("Authorization", "Bearer "+serverToken)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("stream: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		err = readSSE(resp.Body, func(ev sseFrame) bool {
			printFrame(cmd.OutOrStdout(), ev)
			return ev.Event != "closed"
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

// sseFrame is one event read from a text/event-stream body.
type sseFrame struct {
	ID    string `json:"id,omitempty"`
	Event string `json:"event"`
	Data  string `json:"data"`
}

// readSSE calls fn for every complete frame until fn returns false or the
// body ends. Comment lines are skipped.
func readSSE(r io.Reader, fn func(sseFrame) bool) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var cur sseFrame
	var data []string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if cur.Event == "" && len(data) == 0 {
				continue
			}
			cur.Data = strings.Join(data, "\n")
			if !fn(cur) {
				return nil
			}
			cur, data = sseFrame{}, nil
		case strings.HasPrefix(line, ":"):
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "id":
				cur.ID = value
			case "event":
				cur.Event = value
			case "data":
				data = append(data, value)
			}
		}
	}
	return sc.Err()
}

func printFrame(out io.Writer, ev sseFrame) {
	if jsonOutput {
		printJSON(ev)
		return
	}
	fmt.Fprintf(out, "%s %s %s\n", ui.RenderMuted(ev.ID), ui.RenderAccent(ev.Event), ev.Data)
}

func init() {
	addRouteFlags(sessionCreateCmd, &sessionRoute)
	sessionCreateCmd.Flags().StringVar(&sessionVariant, "variant", "", "search variant (default, workspace or entity-group)")
	sessionCreateCmd.Flags().StringVar(&sessionEntity, "entity-type", "", "entity type of the entity-group variant")
	sessionCreateCmd.Flags().StringSliceVar(&sessionLists, "lists", nil, "pagination ids to attach (default: --list)")

	sessionIntentCmd.Flags().StringVar(&intentList, "list", "spc", "pagination id the intent targets")
	sessionIntentCmd.Flags().String("field", "", "filter or sort field")
	sessionIntentCmd.Flags().String("value", "", "filter value, query, scope, sort direction or view")
	sessionIntentCmd.Flags().String("operator", "", "filter operator (default equals)")
	sessionIntentCmd.Flags().Int("page", 0, "page for set_page")
	sessionIntentCmd.Flags().Int("rpp", 0, "page size for set_page_size")

	sessionResultsCmd.Flags().StringVar(&resultsList, "list", "spc", "pagination id of the list")

	sessionWatchCmd.Flags().String("topics", "", "comma-separated topic patterns (e.g. route,outcome.*)")

	sessionCmd.AddCommand(sessionCreateCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionNavigateCmd)
	sessionCmd.AddCommand(sessionIntentCmd)
	sessionCmd.AddCommand(sessionResultsCmd)
	sessionCmd.AddCommand(sessionWatchCmd)
	sessionCmd.AddCommand(sessionCloseCmd)
}
