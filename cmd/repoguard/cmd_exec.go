package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/codefionn/repoguard/internal/repolock"
	"github.com/codefionn/repoguard/internal/saga"
	"github.com/spf13/cobra"
)

func newExecCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <repo> -- <git args>...",
		Short: "Run a git command under the repository's write lock",
		Long: `Run a git command that modifies the repository. The command waits for
the repository's write lock and for any foreign index.lock to disappear.`,
		Example: "  repoguard exec . -- commit -m 'checkpoint'",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.repoArg(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			gitArgs := args[1:]

			run := saga.Saga[string]{
				Name: "git " + strings.Join(gitArgs, " "),
				Steps: func(ctx context.Context, c *saga.Client) (string, error) {
					return c.Git(ctx, gitArgs...)
				},
			}
			out, err := run.Run(cmd.Context(), a.runner, saga.Input{RepositoryRoot: repo})
			if err != nil {
				return err
			}
			printOutput(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func newReadCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "read <repo> -- <git args>...",
		Short:   "Run a read-only git command under the repository's read lock",
		Example: "  repoguard read . -- status --short",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.repoArg(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			gitArgs := args[1:]

			out, err := repolock.Read(cmd.Context(), a.locks, repo, func(ctx context.Context) (string, error) {
				return a.git.Open(repo).Run(ctx, gitArgs...)
			})
			if err != nil {
				return fmt.Errorf("git %s: %w", strings.Join(gitArgs, " "), err)
			}
			printOutput(cmd.OutOrStdout(), out)
			return nil
		},
	}
}
