package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pulpitlabs/sermonpipe/internal/config"
	"github.com/pulpitlabs/sermonpipe/internal/store"
)

func newJobsCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect finished jobs recorded in the index",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List finished jobs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			index, err := openIndex(cmd)
			if err != nil {
				return err
			}
			defer index.Close()

			records, err := index.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, rec := range records {
				fmt.Fprintf(app.outWriter(), "%s  %-9s  %s\n", rec.ID, rec.Status, rec.Source)
			}
			return nil
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of jobs to list; 0 means all")

	showCmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := openIndex(cmd)
			if err != nil {
				return err
			}
			defer index.Close()

			rec, err := index.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(app.outWriter())
			encoder.SetIndent("", "  ")
			return encoder.Encode(rec)
		},
	}

	cmd.AddCommand(listCmd)
	cmd.AddCommand(showCmd)
	return cmd
}

func openIndex(cmd *cobra.Command) (*store.RedisIndex, error) {
	addr := config.RedisAddr()
	if addr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is not configured; the jobs index requires Redis")
	}
	return store.NewRedisIndex(cmd.Context(), addr)
}
