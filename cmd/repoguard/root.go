package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/codefionn/repoguard/internal/config"
	"github.com/codefionn/repoguard/internal/fs"
	"github.com/codefionn/repoguard/internal/indexlock"
	"github.com/codefionn/repoguard/internal/logger"
	"github.com/codefionn/repoguard/internal/repolock"
	"github.com/codefionn/repoguard/internal/saga"
	"github.com/codefionn/repoguard/internal/vcs"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// app holds the components every subcommand shares.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	git    *vcs.Git
	coord  *indexlock.Coordinator
	locks  *repolock.Manager
	runner *saga.Runner

	// isTerminal reports whether stdin is interactive
	isTerminal func() bool

	configPath string
	logLevel   string
	verbose    bool
}

func newApp() *app {
	return &app{
		isTerminal: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
	}
}

func newRootCmdWith(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repoguard",
		Short: "Coordinate access to git working directories",
		Long: `repoguard inspects git's index.lock and runs git commands under a
per-repository reader-writer lock.

Writes on a repository wait for every other read and write on it; reads run
together. Before a write, repoguard waits for index.lock held by other git
processes to disappear.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Configuration file (JSON), defaults to "+config.GetConfigPath())
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error, none")
	cmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Shorthand for --log-level debug")

	cmd.AddCommand(
		newStatusCmd(a),
		newWaitCmd(a),
		newClearCmd(a),
		newExecCmd(a),
		newReadCmd(a),
	)

	return cmd
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	path := a.configPath
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", path, err)
	}
	cfg.ApplyEnv()
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.verbose {
		cfg.LogLevel = "debug"
	}
	a.cfg = cfg

	level := logger.ParseLevel(cfg.LogLevel)
	if cfg.LogPath != "" {
		a.log, err = logger.New(level, cfg.LogPath, "")
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
	} else {
		a.log = logger.NewWriter(level, cmd.ErrOrStderr(), "")
	}
	logger.SetGlobal(a.log)

	a.git = vcs.NewGit(cfg.GitBinary)
	a.coord = indexlock.New(a.git, fs.NewOSFS(""),
		indexlock.WithWatch(cfg.WatchLockFiles),
		indexlock.WithLogger(a.log.WithPrefix("indexlock")))
	a.locks = repolock.NewManager(
		repolock.WithEviction(cfg.EvictIdleLocks),
		repolock.WithRootResolver(a.git),
		repolock.WithLogger(a.log.WithPrefix("repolock")))
	a.runner = saga.NewRunner(a.locks, a.git.Open,
		saga.WithIndexLockWait(a.coord, cfg.UnlockTimeout(), cfg.UnlockInterval()),
		saga.WithLogger(a.log.WithPrefix("saga")))

	a.log.Debug("config %s: git=%s timeout=%v interval=%v evict=%t watch=%t",
		path, cfg.GitBinary, cfg.UnlockTimeout(), cfg.UnlockInterval(), cfg.EvictIdleLocks, cfg.WatchLockFiles)
	return nil
}

// finish records a failed command in the log file and closes it.
// It runs after Execute returns, whether or not the command succeeded.
func (a *app) finish(err error) {
	if a.log == nil {
		return
	}
	if err != nil && a.cfg != nil && a.cfg.LogPath != "" {
		a.log.Error("%v", err)
	}
	_ = a.log.Close()
}

// repoArg resolves a repository argument to the top of its working tree.
// Directories outside any repository resolve to their absolute path.
func (a *app) repoArg(ctx context.Context, arg string) (string, error) {
	abs, err := filepath.Abs(arg)
	if err != nil {
		return "", fmt.Errorf("invalid repository path %q: %w", arg, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("repository %s: %w", abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("repository %s is not a directory", abs)
	}

	root, err := a.git.RepositoryRoot(ctx, abs)
	if err != nil {
		a.log.Debug("%s is not inside a working tree: %v", abs, err)
		return abs, nil
	}
	return filepath.Clean(root), nil
}

func printOutput(w io.Writer, out string) {
	if out == "" {
		return
	}
	fmt.Fprintln(w, out)
}
