package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vidgo/internal/config"
	"vidgo/internal/queue"
	"vidgo/internal/stage"
	"vidgo/internal/transcode"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var partIndex int
	var credential string

	addCmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Queue an ingest job for a source URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				url := args[0]
				fetchers := stage.DefaultFetchers(cfg, transcode.New(cfg, nil), nil)
				fetcher, err := fetchers.Lookup(url)
				if err != nil {
					return err
				}
				kind, ok := stage.KindForFetcher(fetcher.Name())
				if !ok {
					return fmt.Errorf("fetcher %q has no job kind", fetcher.Name())
				}
				job, err := store.NewJob(cmd.Context(), kind, 0, stage.IngestParams{
					URL:        url,
					Credential: credential,
					PartIndex:  partIndex,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued %s job %d\n", kind, job.ID)
				return nil
			})
		},
	}
	addCmd.Flags().IntVar(&partIndex, "part", 0, "Fetch a single part of a multi-part source (1-based)")
	addCmd.Flags().StringVar(&credential, "credential", "", "Platform session credential")
	return addCmd
}
