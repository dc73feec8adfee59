package telemetry

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/banshee-data/arpositioning/internal/fsutil"
	"github.com/banshee-data/arpositioning/internal/security"
	"github.com/banshee-data/arpositioning/internal/timeutil"
)

// Line timestamp layouts.
const (
	EventTimeLayout = "2006-01-02T15:04:05.000"
	MarkTimeLayout  = "0102-150405"
)

const sessionBanner = "----New Session------"

// ErrEmptyMarkName is returned when a mark point has no name.
var ErrEmptyMarkName = errors.New("telemetry: mark point name is empty")

// FileLog appends pose reports, session boundaries and mark points to the
// three per-project text logs in a directory. Safe for concurrent use.
type FileLog struct {
	fs    fsutil.FileSystem
	clock timeutil.Clock

	mu         sync.Mutex
	cameraPath string
	anchorPath string
	markPath   string
}

// NewFileLog creates dir if needed and returns a log for project. The
// project name is sanitised before it becomes part of a file name.
func NewFileLog(fsys fsutil.FileSystem, clock timeutil.Clock, dir, project string) (*FileLog, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", dir, err)
	}
	base := security.SanitizeFilename(project)
	l := &FileLog{
		fs:         fsys,
		clock:      clock,
		cameraPath: filepath.Join(dir, base+"-CamData.txt"),
		anchorPath: filepath.Join(dir, base+"-TraData.txt"),
		markPath:   filepath.Join(dir, base+"-MPData.txt"),
	}
	diagf("text logs: %s, %s, %s", l.cameraPath, l.anchorPath, l.markPath)
	return l, nil
}

// Paths returns the camera, anchor and mark point log paths.
func (l *FileLog) Paths() (camera, anchor, mark string) {
	return l.cameraPath, l.anchorPath, l.markPath
}

func (l *FileLog) eventLine(text string) string {
	return l.clock.Now().Format(EventTimeLayout) + "\t" + strings.TrimRight(text, "\n") + "\n"
}

// Handle appends a report: one camera line and one line per anchor. It is a
// Handler for Publisher; write failures are logged, not returned.
func (l *FileLog) Handle(r FrameReport) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.fs.AppendFile(l.cameraPath, []byte(l.eventLine(r.CameraText()))); err != nil {
		opsf("append camera log: %v", err)
	}
	lines := r.AnchorLines()
	if len(lines) == 0 {
		return
	}
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(l.eventLine(line))
	}
	if err := l.fs.AppendFile(l.anchorPath, []byte(b.String())); err != nil {
		opsf("append anchor log: %v", err)
	}
}

// WriteSessionBoundary marks the start of a tracker session in all three
// logs.
func (l *FileLog) WriteSessionBoundary() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for _, w := range []struct{ path, tag string }{
		{l.cameraPath, "-C"},
		{l.anchorPath, "-A"},
		{l.markPath, "-M"},
	} {
		if err := l.fs.AppendFile(w.path, []byte(l.eventLine(w.tag+sessionBanner))); err != nil {
			errs = append(errs, fmt.Errorf("append %s: %w", w.path, err))
		}
	}
	return errors.Join(errs...)
}

// WriteMarkPoint appends "<MMdd-HHmmss>\t<name>\t<cameraStatus>\n" to the
// mark point log.
func (l *FileLog) WriteMarkPoint(name, cameraStatus string) error {
	if strings.TrimSpace(name) == "" {
		return ErrEmptyMarkName
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	line := l.clock.Now().Format(MarkTimeLayout) + "\t" + name + "\t" + cameraStatus + "\n"
	if err := l.fs.AppendFile(l.markPath, []byte(line)); err != nil {
		return fmt.Errorf("append mark point: %w", err)
	}
	return nil
}
