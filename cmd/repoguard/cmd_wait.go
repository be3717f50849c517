package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// errStillLocked is returned when index.lock outlives the wait. main exits 1 without printing it again.
var errStillLocked = errors.New("index.lock still present")

func newWaitCmd(a *app) *cobra.Command {
	var timeout, interval time.Duration

	cmd := &cobra.Command{
		Use:   "wait <repo>",
		Short: "Wait until git's index.lock disappears",
		Long: `Poll git's index.lock until it disappears.
Exits 0 once the lock is gone and 1 if it is still present after --timeout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.repoArg(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if timeout <= 0 {
				timeout = a.cfg.UnlockTimeout()
			}
			if interval <= 0 {
				interval = a.cfg.UnlockInterval()
			}

			w := cmd.OutOrStdout()
			if a.coord.WaitForUnlock(cmd.Context(), repo, timeout, interval) {
				fmt.Fprintln(w, color.GreenString("unlocked"))
				return nil
			}
			fmt.Fprintf(w, "%s after %v: %s\n", color.RedString("still locked"), timeout, a.coord.IndexLockPath(cmd.Context(), repo))
			return errStillLocked
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Maximum time to wait (default from config, 10s)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Poll interval (default from config, 100ms)")
	return cmd
}
