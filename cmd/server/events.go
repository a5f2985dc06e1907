package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"slguard/internal/models"
	"slguard/internal/repository"
	"slguard/pkg/utils"
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect and prune the audit log",
	}

	var (
		eventType string
		limit     int
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "Show latest audit events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			events, err := repository.NewEventRepository(a.db).List(cmd.Context(), repository.EventFilter{
				AccountID: a.cfg.Broker.AccountID,
				EventType: strings.ToUpper(eventType),
				Limit:     limit,
			})
			if err != nil {
				return err
			}
			if events == nil {
				events = []*models.SystemEvent{}
			}
			return printJSON(cmd.OutOrStdout(), events)
		},
	}
	list.Flags().StringVar(&eventType, "type", "", "event type filter, e.g. ORDER_ERROR")
	list.Flags().IntVar(&limit, "limit", 50, "max events to show")

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete audit events older than --older-than",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			a, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := repository.NewEventRepository(a.db).DeleteOlderThan(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			a.logger.Info("audit events pruned", utils.Int64("deleted", n), utils.Dur("older_than", olderThan))
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d events\n", n)
			return nil
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour, "retention period")

	cmd.AddCommand(list, prune)
	return cmd
}
