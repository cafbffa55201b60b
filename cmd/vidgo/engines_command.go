package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vidgo/internal/config"
	"vidgo/internal/queue"
	"vidgo/internal/transcribe"
)

func newEnginesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List speech recognition engines and their availability",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				settings, err := store.Settings(cmd.Context())
				if err != nil {
					return err
				}
				selector := transcribe.NewSelector(nil,
					transcribe.NewWhisperCPP(cfg, nil),
					transcribe.NewOpenAIWhisper(nil),
					transcribe.NewElevenLabs(nil),
					transcribe.NewRemoteVidgo(nil),
				)

				primary := settings[queue.SettingASRPrimaryEngine]
				fallback := settings[queue.SettingASRFallbackEngine]

				rows := make([][]string, 0, len(selector.Engines()))
				for _, name := range selector.Engines() {
					engine, _ := selector.Engine(name)
					desc := engine.Descriptor()
					availability := "available"
					if err := engine.Available(cmd.Context(), settings); err != nil {
						availability = fmt.Sprintf("unavailable (%v)", err)
					}
					languages := "any"
					if len(desc.Languages) > 0 {
						languages = strings.Join(desc.Languages, ", ")
					}
					rows = append(rows, []string{
						desc.Name,
						desc.Type,
						languages,
						roleColumn(desc.Name, primary, fallback),
						availability,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Engine", "Type", "Languages", "Role", "Availability"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft}))
				return nil
			})
		},
	}
}

func roleColumn(name, primary, fallback string) string {
	switch name {
	case primary:
		return "primary"
	case fallback:
		return "fallback"
	}
	if primary == "" && name == "whispercpp" {
		return "primary (default)"
	}
	return "-"
}
