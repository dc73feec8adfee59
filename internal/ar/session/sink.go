package session

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/banshee-data/arpositioning/internal/fsutil"
	"github.com/banshee-data/arpositioning/internal/timeutil"
)

// SinkTimeLayout is the timestamp format in recording file names.
const SinkTimeLayout = "0102-150405"

// maxSinkSuffix bounds the "-N" suffixes tried when recordings start within
// the same second.
const maxSinkSuffix = 99

// SinkAllocator picks and pre-creates recording output files named
// arcore-<MMdd-HHmmss>.mp4 in a directory.
type SinkAllocator struct {
	fs    fsutil.FileSystem
	clock timeutil.Clock
	dir   string
}

// NewSinkAllocator returns an allocator writing into dir.
func NewSinkAllocator(fsys fsutil.FileSystem, clock timeutil.Clock, dir string) *SinkAllocator {
	return &SinkAllocator{fs: fsys, clock: clock, dir: dir}
}

// Dir returns the output directory.
func (a *SinkAllocator) Dir() string { return a.dir }

// Allocate returns the path of a new, empty, writable file. The file is
// created so write access is proven before any tracker reconfiguration.
func (a *SinkAllocator) Allocate() (string, error) {
	if err := a.fs.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory %s: %w", a.dir, err)
	}
	stamp := a.clock.Now().Format(SinkTimeLayout)
	path := filepath.Join(a.dir, "arcore-"+stamp+".mp4")
	for i := 2; a.fs.Exists(path); i++ {
		if i > maxSinkSuffix {
			return "", fmt.Errorf("no free recording name for %s in %s", stamp, a.dir)
		}
		path = filepath.Join(a.dir, fmt.Sprintf("arcore-%s-%d.mp4", stamp, i))
	}

	f, err := a.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("test write access %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("test write access %s: %w", path, err)
	}
	diagf("allocated recording sink %s", path)
	return path, nil
}

// Release removes an allocated file that was never recorded into.
func (a *SinkAllocator) Release(path string) {
	if err := a.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		opsf("release recording sink %s: %v", path, err)
	}
}
