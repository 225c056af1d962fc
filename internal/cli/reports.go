package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Till-X/xiaozhi-sever-DIY/internal/reporting"
)

func newReportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect and drain the delivery report spool",
	}
	cmd.AddCommand(newReportsPendingCmd())
	cmd.AddCommand(newReportsDrainCmd())
	return cmd
}

func newReportsPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Count spooled delivery reports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := reporting.Open(cmd.Context(), activeCfg.Reporting.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			count, err := store.PendingCount(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", count)
			return nil
		},
	}
}

func newReportsDrainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Post all spooled reports to the collector",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := activeCfg.Reporting
			if cfg.Endpoint == "" {
				return fmt.Errorf("reporting.endpoint is not configured")
			}

			store, err := reporting.Open(cmd.Context(), cfg.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			uploader := reporting.NewUploader(store, cfg.Endpoint,
				reporting.WithRequestTimeout(time.Duration(cfg.RequestTimeoutMS)*time.Millisecond),
				reporting.WithMaxBatch(cfg.MaxBatch))

			for {
				count, err := store.PendingCount(cmd.Context())
				if err != nil {
					return err
				}
				if count == 0 {
					return nil
				}
				if err := uploader.Drain(cmd.Context()); err != nil {
					return err
				}
			}
		},
	}
}
