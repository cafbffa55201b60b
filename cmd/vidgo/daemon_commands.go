package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"vidgo/internal/daemon"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Launch the processing daemon in the background",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if pid, running := daemon.RunningPID(cfg); running {
				return fmt.Errorf("daemon already running (pid %d)", pid)
			}

			binary, err := vidgodBinary()
			if err != nil {
				return err
			}
			args := []string{}
			if ctx.configFlag != nil && strings.TrimSpace(*ctx.configFlag) != "" {
				args = append(args, "--config", *ctx.configFlag)
			}
			child := exec.Command(binary, args...)
			child.Stdout = nil
			child.Stderr = nil
			if err := child.Start(); err != nil {
				return fmt.Errorf("start %s: %w", binary, err)
			}
			if err := child.Process.Release(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "daemon starting (pid %d)\n", child.Process.Pid)
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Ask the running daemon to shut down",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := daemon.SignalStop(cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "stop signal sent")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon is running",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if pid, running := daemon.RunningPID(cfg); running {
				fmt.Fprintf(cmd.OutOrStdout(), "daemon running (pid %d)\n", pid)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "daemon not running")
			}
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

// vidgodBinary locates the daemon executable: next to the CLI first,
// then on PATH.
func vidgodBinary() (string, error) {
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), "vidgod")
		if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
			return sibling, nil
		}
	}
	return exec.LookPath("vidgod")
}
