package main

import (
	"fmt"
	"os"

	"github.com/alfredjeanlab/discovery/internal/client"
	"github.com/alfredjeanlab/discovery/internal/ui"
	"github.com/spf13/cobra"
)

var (
	apiURL      string
	apiToken    string
	serverURL   string
	serverToken string
	jsonOutput  bool
	noColor     bool
)

// configCacheSize bounds the search-config cache of one CLI invocation.
const configCacheSize = 32

func defaultAPIURL() string {
	if s := os.Getenv("DISCOVERY_API_URL"); s != "" {
		return s
	}
	return activeRemote().API
}

func defaultAPIToken() string {
	if s := os.Getenv("DISCOVERY_API_TOKEN"); s != "" {
		return s
	}
	return activeRemote().APIToken
}

func defaultServerURL() string {
	if s := os.Getenv("DISCOVERY_SERVER"); s != "" {
		return s
	}
	if u := activeRemote().Server; u != "" {
		return u
	}
	return "http://localhost:8080"
}

func defaultServerToken() string {
	if s := os.Getenv("DISCOVERY_TOKEN"); s != "" {
		return s
	}
	return activeRemote().Token
}

// newAPIClient returns a client for the repository API with a search-config
// cache in front of it.
func newAPIClient() (client.DiscoveryClient, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("no API URL: pass --api, set DISCOVERY_API_URL or configure a remote")
	}
	return client.NewCachingClient(client.NewHTTPClient(apiURL, apiToken), configCacheSize, nil), nil
}

var rootCmd = &cobra.Command{
	Use:   "ds <command>",
	Short: "Search a repository through the discovery pipeline",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", defaultAPIURL(), "repository REST API root")
	rootCmd.PersistentFlags().StringVar(&apiToken, "api-token", defaultAPIToken(), "bearer token for the repository API")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL(), "session server URL")
	rootCmd.PersistentFlags().StringVar(&serverToken, "token", defaultServerToken(), "bearer token for the session server")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "search", Title: "Search:"},
		&cobra.Group{ID: "sessions", Title: "Sessions:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Search
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(facetsCmd)

	// Sessions
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(statsCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
