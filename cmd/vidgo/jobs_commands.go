package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vidgo/internal/config"
	"vidgo/internal/queue"
	"vidgo/internal/stage"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "List and manage pipeline jobs",
	}

	var statusFilter string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest last",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				var statuses []queue.Status
				if statusFilter != "" {
					statuses = append(statuses, queue.Status(statusFilter))
				}
				jobs, err := store.ListJobs(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						strconv.FormatInt(job.ID, 10),
						string(job.Kind),
						assetColumn(job.AssetID),
						string(job.Status),
						currentStageColumn(job),
						truncate(job.ErrorMessage, 60),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Kind", "Asset", "Status", "Stage", "Error"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft, alignLeft}))
				return nil
			})
		},
	}
	listCmd.Flags().StringVar(&statusFilter, "status", "", "Only show jobs in this status")
	jobsCmd.AddCommand(listCmd)

	jobsCmd.AddCommand(&cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job with its stage plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				job, err := lookupJob(cmd, store, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "job %d  kind=%s  asset=%s  status=%s\n",
					job.ID, job.Kind, assetColumn(job.AssetID), job.Status)
				if job.ErrorMessage != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "error: %s\n", job.ErrorMessage)
				}
				rows := make([][]string, 0, len(job.Stages))
				for _, st := range job.Stages {
					rows = append(rows, []string{
						st.Name,
						string(st.Status),
						fmt.Sprintf("%.0f%%", st.Progress),
						strconv.Itoa(st.Attempts),
						truncate(firstNonEmpty(st.LastError, st.Message), 60),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Stage", "Status", "Progress", "Attempts", "Detail"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft}))
				return nil
			})
		},
	})

	jobsCmd.AddCommand(&cobra.Command{
		Use:   "retry <job-id>",
		Short: "Queue a failed or canceled job again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				id, err := parseJobID(args[0])
				if err != nil {
					return err
				}
				job, err := store.RetryJob(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "job %d is %s again\n", job.ID, job.Status)
				return nil
			})
		},
	})

	jobsCmd.AddCommand(&cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				id, err := parseJobID(args[0])
				if err != nil {
					return err
				}
				job, err := store.MarkCanceled(cmd.Context(), id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "job %d canceled\n", job.ID)
				return nil
			})
		},
	})

	jobsCmd.AddCommand(&cobra.Command{
		Use:   "remove <job-id>",
		Short: "Delete a job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				id, err := parseJobID(args[0])
				if err != nil {
					return err
				}
				removed, err := store.RemoveJob(cmd.Context(), id)
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("job %d not found", id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "job %d removed\n", id)
				return nil
			})
		},
	})

	var targetLang, terms string
	transcribeCmd := &cobra.Command{
		Use:   "transcribe <asset-id>",
		Short: "Queue transcription, optimization, and translation for an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return enqueueSubtitleJob(cmd, ctx, args[0], queue.KindTranscribe, targetLang, terms)
		},
	}
	transcribeCmd.Flags().StringVar(&targetLang, "target-lang", "", "Translation target language (omit to skip translation)")
	transcribeCmd.Flags().StringVar(&terms, "terms", "", "Terminology hints for translation")
	jobsCmd.AddCommand(transcribeCmd)

	var translateLang, translateTerms string
	translateCmd := &cobra.Command{
		Use:   "translate <asset-id>",
		Short: "Queue translation of an existing optimized subtitle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return enqueueSubtitleJob(cmd, ctx, args[0], queue.KindTranslateOnly, translateLang, translateTerms)
		},
	}
	translateCmd.Flags().StringVar(&translateLang, "target-lang", "", "Translation target language")
	translateCmd.Flags().StringVar(&translateTerms, "terms", "", "Terminology hints for translation")
	jobsCmd.AddCommand(translateCmd)

	var subtitleType string
	exportCmd := &cobra.Command{
		Use:   "export <asset-id>",
		Short: "Queue a hard-subbed export of an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				asset, err := lookupAsset(cmd, store, args[0])
				if err != nil {
					return err
				}
				job, err := store.NewJob(cmd.Context(), queue.KindExportBurn, asset.ID,
					stage.ExportParams{SubtitleType: subtitleType})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued export job %d for asset %d\n", job.ID, asset.ID)
				return nil
			})
		},
	}
	exportCmd.Flags().StringVar(&subtitleType, "type", "raw", "Subtitle tracks to burn: raw, translated, or both")
	jobsCmd.AddCommand(exportCmd)

	return jobsCmd
}

func enqueueSubtitleJob(cmd *cobra.Command, ctx *commandContext, assetArg string, kind queue.Kind, targetLang, terms string) error {
	return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
		asset, err := lookupAsset(cmd, store, assetArg)
		if err != nil {
			return err
		}
		job, err := store.NewJob(cmd.Context(), kind, asset.ID,
			stage.SubtitleParams{TargetLang: targetLang, Terms: terms})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "queued %s job %d for asset %d\n", kind, job.ID, asset.ID)
		return nil
	})
}

func lookupJob(cmd *cobra.Command, store *queue.Store, arg string) (*queue.Job, error) {
	id, err := parseJobID(arg)
	if err != nil {
		return nil, err
	}
	job, err := store.GetJob(cmd.Context(), id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %d not found", id)
	}
	return job, nil
}

func lookupAsset(cmd *cobra.Command, store *queue.Store, arg string) (*queue.Asset, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid asset id %q", arg)
	}
	asset, err := store.GetAsset(cmd.Context(), id)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, fmt.Errorf("asset %d not found", id)
	}
	return asset, nil
}

func parseJobID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid job id %q", arg)
	}
	return id, nil
}

func assetColumn(id int64) string {
	if id == 0 {
		return "-"
	}
	return strconv.FormatInt(id, 10)
}

// currentStageColumn summarizes where a job is in its plan.
func currentStageColumn(job *queue.Job) string {
	for _, st := range job.Stages {
		switch st.Status {
		case queue.StatusRunning:
			return fmt.Sprintf("%s %.0f%%", st.Name, st.Progress)
		case queue.StatusQueued, queue.StatusFailed:
			return st.Name
		}
	}
	return "-"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
