package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <repo>",
		Short: "Show whether git's index.lock is present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.repoArg(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			fmt.Fprintf(w, "repository: %s\n", repo)
			if branch, _ := a.git.CurrentBranch(ctx, repo); branch != "" {
				fmt.Fprintf(w, "branch:     %s\n", branch)
			}
			fmt.Fprintf(w, "index.lock: %s\n", a.coord.IndexLockPath(ctx, repo))

			info := a.coord.LockInfo(ctx, repo)
			if info == nil {
				fmt.Fprintf(w, "state:      %s\n", color.GreenString("unlocked"))
				return nil
			}
			fmt.Fprintf(w, "state:      %s (age %v)\n", color.RedString("locked"), info.Age.Round(time.Millisecond))
			return nil
		},
	}
}
