package render

import (
	"errors"
	"sync"
)

// ErrAssetMissing is returned by Prepare when a required asset is absent.
var ErrAssetMissing = errors.New("render: asset missing")

// Recorder is an in-memory Renderer. It keeps every submitted DrawList and
// counts point-cloud uploads. Safe for concurrent use so a control goroutine
// can inspect it while the render loop submits.
type Recorder struct {
	mu        sync.Mutex
	names     []uint32
	missing   []string
	prepared  bool
	lists     []*DrawList
	uploads   int
	keepLists int
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithMissingAssets makes Prepare fail as if the named assets were absent.
func WithMissingAssets(names ...string) RecorderOption {
	return func(r *Recorder) { r.missing = append(r.missing, names...) }
}

// WithHistory bounds the number of retained draw lists. Zero keeps all.
func WithHistory(n int) RecorderOption {
	return func(r *Recorder) { r.keepLists = n }
}

// NewRecorder returns a Recorder with a single camera texture name.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{names: []uint32{1}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Prepare implements Renderer.
func (r *Recorder) Prepare() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.missing) > 0 {
		return errors.Join(ErrAssetMissing, errors.New(r.missing[0]))
	}
	r.prepared = true
	return nil
}

// CameraTextureNames implements Renderer.
func (r *Recorder) CameraTextureNames() []uint32 {
	return append([]uint32(nil), r.names...)
}

// Submit implements Renderer.
func (r *Recorder) Submit(list *DrawList) error {
	if list == nil {
		return errors.New("render: nil draw list")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if list.PointCloud != nil {
		r.uploads++
	}
	r.lists = append(r.lists, list)
	if r.keepLists > 0 && len(r.lists) > r.keepLists {
		r.lists = r.lists[len(r.lists)-r.keepLists:]
	}
	return nil
}

// Lists returns the retained draw lists, oldest first.
func (r *Recorder) Lists() []*DrawList {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*DrawList(nil), r.lists...)
}

// Last returns the most recent draw list, or nil.
func (r *Recorder) Last() *DrawList {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.lists) == 0 {
		return nil
	}
	return r.lists[len(r.lists)-1]
}

// PointCloudUploads returns how many submitted lists carried a point cloud.
func (r *Recorder) PointCloudUploads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.uploads
}

// Prepared reports whether Prepare succeeded.
func (r *Recorder) Prepared() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prepared
}
