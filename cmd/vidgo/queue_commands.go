package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"vidgo/internal/config"
	"vidgo/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and maintain the job queue",
	}

	queueCmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Show job counts per lifecycle state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				rows := [][]string{
					{"queued", strconv.Itoa(health.Queued)},
					{"running", strconv.Itoa(health.Running)},
					{"completed", strconv.Itoa(health.Completed)},
					{"failed", strconv.Itoa(health.Failed)},
					{"canceled", strconv.Itoa(health.Canceled)},
					{"total", strconv.Itoa(health.Total)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"State", "Jobs"}, rows,
					[]columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	})

	queueCmd.AddCommand(&cobra.Command{
		Use:   "clear-completed",
		Short: "Remove completed jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				removed, err := store.ClearCompleted(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d completed job(s)\n", removed)
				return nil
			})
		},
	})

	var clearForce bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every job from the queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !clearForce {
				return fmt.Errorf("refusing to clear the queue without --force")
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				removed, err := store.Clear(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d job(s)\n", removed)
				return nil
			})
		},
	}
	clearCmd.Flags().BoolVar(&clearForce, "force", false, "Confirm removing every job")
	queueCmd.AddCommand(clearCmd)

	return queueCmd
}
