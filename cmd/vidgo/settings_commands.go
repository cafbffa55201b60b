package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"vidgo/internal/config"
	"vidgo/internal/queue"
)

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "Manage runtime settings stored in the job database",
	}

	settingsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List settings with secrets masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				settings, err := store.Settings(cmd.Context())
				if err != nil {
					return err
				}
				keys := make([]string, 0, len(settings))
				for key := range settings {
					keys = append(keys, key)
				}
				sort.Strings(keys)
				rows := make([][]string, 0, len(keys))
				for _, key := range keys {
					rows = append(rows, []string{key, maskSecret(key, settings[key])})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Key", "Value"}, rows,
					[]columnAlignment{alignLeft, alignLeft}))
				return nil
			})
		},
	})

	settingsCmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				if err := store.SettingSet(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "set %s\n", args[0])
				return nil
			})
		},
	})

	settingsCmd.AddCommand(&cobra.Command{
		Use:   "unset <key>",
		Short: "Delete a setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				if err := store.SettingDelete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unset %s\n", args[0])
				return nil
			})
		},
	})

	return settingsCmd
}

// maskSecret hides values for keys that look like credentials.
func maskSecret(key, value string) string {
	lower := strings.ToLower(key)
	for _, marker := range []string{"key", "token", "password", "secret", "credential"} {
		if strings.Contains(lower, marker) {
			if len(value) <= 4 {
				return "****"
			}
			return value[:2] + strings.Repeat("*", 6) + value[len(value)-2:]
		}
	}
	return value
}
