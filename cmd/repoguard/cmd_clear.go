package main

import (
	"bufio"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newClearCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear <repo>",
		Short: "Remove a stale index.lock",
		Long: `Remove git's index.lock after a git process crashed and left it behind.

If a git process is still running in the repository, removing its lock
corrupts the operation it is performing. repoguard never removes the lock on
its own; this command asks for confirmation unless --yes is given, and refuses
to run without --yes when stdin is not a terminal.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.repoArg(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			info := a.coord.LockInfo(ctx, repo)
			if info == nil {
				fmt.Fprintln(w, "no index.lock present")
				return nil
			}

			if !yes {
				if !a.isTerminal() {
					return fmt.Errorf("refusing to remove %s without --yes: stdin is not a terminal", info.Path)
				}
				fmt.Fprintf(w, "%s was last modified %v ago.\n", info.Path, info.Age.Round(time.Second))
				fmt.Fprint(w, color.YellowString("Remove it? Only do this if no git process is running. [y/N]: "))

				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				switch strings.ToLower(strings.TrimSpace(answer)) {
				case "y", "yes":
				default:
					fmt.Fprintln(w, "aborted")
					return nil
				}
			}

			if err := a.coord.RemoveLock(ctx, repo); err != nil {
				return fmt.Errorf("failed to remove %s: %w", info.Path, err)
			}
			fmt.Fprintf(w, "%s %s\n", color.GreenString("removed"), info.Path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Remove without asking")
	return cmd
}
