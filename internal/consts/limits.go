package consts

import "time"

// index.lock polling
const (
	// DefaultUnlockTimeout is how long WaitForUnlock waits when no timeout is given
	DefaultUnlockTimeout = 10 * time.Second
	// DefaultUnlockPollInterval is the stat interval used by WaitForUnlock
	DefaultUnlockPollInterval = 100 * time.Millisecond
)

// Lock registry sizing
const (
	// RegistryShards is the number of independently locked shards in the path registry.
	// Must be a power of two.
	RegistryShards = 32
)

// Git conventions
const (
	// IndexLockName is the file git creates while it rewrites the index
	IndexLockName = "index.lock"
	// GitDirName is the conventional git metadata directory
	GitDirName = ".git"
	// DefaultGitBinary is the git executable looked up on PATH
	DefaultGitBinary = "git"
)
