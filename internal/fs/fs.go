package fs

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codefionn/repoguard/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// FileInfo represents file metadata
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// FileSystem is the part of the filesystem the lock coordinator touches
type FileSystem interface {
	// Stat returns file information
	Stat(ctx context.Context, path string) (*FileInfo, error)
	// Delete removes a file
	Delete(ctx context.Context, path string) error
}

// Watcher is implemented by filesystems that can report file removal.
type Watcher interface {
	// WatchRemoval returns a channel that receives a value each time path is
	// removed or renamed away. The watch ends when ctx is done.
	WatchRemoval(ctx context.Context, path string) (<-chan struct{}, error)
}

// OSFS is the real filesystem. Relative paths resolve against baseDir.
type OSFS struct {
	baseDir string
}

// NewOSFS creates an OS-backed filesystem rooted at baseDir
func NewOSFS(baseDir string) *OSFS {
	return &OSFS{baseDir: baseDir}
}

func (o *OSFS) absPath(path string) string {
	if filepath.IsAbs(path) || o.baseDir == "" {
		return path
	}
	return filepath.Join(o.baseDir, path)
}

func (o *OSFS) Stat(ctx context.Context, path string) (*FileInfo, error) {
	info, err := os.Stat(o.absPath(path))
	if err != nil {
		return nil, err
	}

	return &FileInfo{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}, nil
}

func (o *OSFS) Delete(ctx context.Context, path string) error {
	return os.Remove(o.absPath(path))
}

// WatchRemoval watches the parent directory of path with fsnotify.
func (o *OSFS) WatchRemoval(ctx context.Context, path string) (<-chan struct{}, error) {
	absPath := filepath.Clean(o.absPath(path))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return nil, err
	}

	removed := make(chan struct{}, 1)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != absPath {
					continue
				}
				if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				select {
				case removed <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Global().Warn("fs: watcher error for %s: %v", absPath, err)
			}
		}
	}()

	return removed, nil
}

// MockFS is an in-memory filesystem for testing
type MockFS struct {
	mu    sync.RWMutex
	files map[string]*mockFile
	// StatErr, when set, is returned by Stat for every path
	StatErr error
}

type mockFile struct {
	data    []byte
	modTime time.Time
}

func NewMockFS() *MockFS {
	return &MockFS{
		files: make(map[string]*mockFile),
	}
}

// SetModTime changes the modification time of an existing file
func (m *MockFS) SetModTime(path string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[filepath.Clean(path)]
	if !ok {
		return os.ErrNotExist
	}
	f.modTime = t
	return nil
}

func (m *MockFS) Stat(ctx context.Context, path string) (*FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.StatErr != nil {
		return nil, m.StatErr
	}
	f, ok := m.files[filepath.Clean(path)]
	if !ok {
		return nil, &os.PathError{Op: "stat", Path: path, Err: os.ErrNotExist}
	}
	return &FileInfo{
		Path:    path,
		Size:    int64(len(f.data)),
		ModTime: f.modTime,
	}, nil
}

func (m *MockFS) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := filepath.Clean(path)
	if _, ok := m.files[key]; !ok {
		return &os.PathError{Op: "remove", Path: path, Err: os.ErrNotExist}
	}
	delete(m.files, key)
	return nil
}

// WriteFile creates or replaces a file with the current time as its modification time
func (m *MockFS) WriteFile(ctx context.Context, path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files[filepath.Clean(path)] = &mockFile{
		data:    append([]byte(nil), data...),
		modTime: time.Now(),
	}
	return nil
}
