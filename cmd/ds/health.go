package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the repository API and the session server",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		report := map[string]string{}
		var failed bool

		if c, err := newAPIClient(); err != nil {
			report["api"] = err.Error()
			failed = true
		} else {
			ctx, cancel := context.WithTimeout(cmd.Context(), apiTimeout)
			status, err := c.Health(ctx)
			cancel()
			c.Close()
			if err != nil {
				report["api"] = err.Error()
				failed = true
			} else {
				report["api"] = status
			}
		}

		var srv struct {
			Status   string `json:"status"`
			Upstream string `json:"upstream"`
		}
		if err := serverCall(cmd, http.MethodGet, "/v1/health", nil, &srv); err != nil {
			report["server"] = err.Error()
			failed = true
		} else {
			report["server"] = srv.Status + " (upstream " + srv.Upstream + ")"
		}

		if jsonOutput {
			printJSON(report)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "api:     %s\n", report["api"])
			fmt.Fprintf(cmd.OutOrStdout(), "server:  %s\n", report["server"])
		}
		if failed {
			return fmt.Errorf("health check failed")
		}
		return nil
	},
}
