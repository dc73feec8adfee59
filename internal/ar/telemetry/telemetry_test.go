package telemetry

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/banshee-data/arpositioning/internal/ar/posemath"
	"github.com/banshee-data/arpositioning/internal/fsutil"
	"github.com/banshee-data/arpositioning/internal/timeutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFrameReport_Text(t *testing.T) {
	r := FrameReport{
		Camera:  posemath.Translate(0.1, 1.25, -2),
		Anchors: []posemath.Pose{posemath.Translate(1, 0, 0), posemath.Translate(0.0004, -0.5, 3.14159)},
	}
	assert.Equal(t,
		"Camera x=0.100 y=1.250 z=-2.000\nx=1.000 y=0.000 z=0.000\nx=0.000 y=-0.500 z=3.142\n",
		r.Text())
}

func TestPublisher_DeliversInOrder(t *testing.T) {
	var (
		mu  sync.Mutex
		got []int64
	)
	p := NewPublisher(8, func(r FrameReport) {
		mu.Lock()
		got = append(got, r.Timestamp)
		mu.Unlock()
	})
	for i := int64(1); i <= 5; i++ {
		require.True(t, p.Publish(FrameReport{Timestamp: i}))
	}
	p.Close()

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, got)
	assert.Equal(t, uint64(5), p.Published())
	assert.Zero(t, p.Dropped())
}

func TestPublisher_NeverBlocksWhenHandlerStalls(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	p := NewPublisher(2, func(FrameReport) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})

	require.True(t, p.Publish(FrameReport{Timestamp: 1}))
	<-started // handler now holds report 1

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := int64(2); i <= 10; i++ {
			p.Publish(FrameReport{Timestamp: i})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a stalled handler")
	}

	assert.Equal(t, uint64(3), p.Published())
	assert.Equal(t, uint64(7), p.Dropped())

	close(release)
	p.Close()
	assert.False(t, p.Publish(FrameReport{}), "closed publisher drops")
	p.Close()
}

func TestPublisher_HandlerPanicIsContained(t *testing.T) {
	var calls int
	p := NewPublisher(4,
		func(FrameReport) { panic("bad handler") },
		func(FrameReport) { calls++ },
	)
	p.Publish(FrameReport{})
	p.Publish(FrameReport{})
	p.Close()
	assert.Equal(t, 2, calls)
}

func newTestLog(t *testing.T) (*FileLog, *fsutil.MemoryFileSystem, *timeutil.MockClock) {
	t.Helper()
	mfs := fsutil.NewMemoryFileSystem()
	clock := timeutil.NewMockClock(time.Date(2026, 7, 9, 14, 3, 5, 250_000_000, time.UTC))
	l, err := NewFileLog(mfs, clock, "/logs", "Default")
	require.NoError(t, err)
	return l, mfs, clock
}

func TestFileLog_Handle(t *testing.T) {
	l, mfs, _ := newTestLog(t)
	l.Handle(FrameReport{
		Camera:  posemath.Translate(1, 2, 3),
		Anchors: []posemath.Pose{posemath.Translate(4, 5, 6), posemath.Translate(7, 8, 9)},
	})
	l.Handle(FrameReport{Camera: posemath.Translate(0, 0, 0)})

	cam, _, _ := l.Paths()
	assert.Equal(t, "/logs/Default-CamData.txt", cam)

	data, err := mfs.ReadFile("/logs/Default-CamData.txt")
	require.NoError(t, err)
	assert.Equal(t,
		"2026-07-09T14:03:05.250\tCamera x=1.000 y=2.000 z=3.000\n"+
			"2026-07-09T14:03:05.250\tCamera x=0.000 y=0.000 z=0.000\n",
		string(data))

	data, err = mfs.ReadFile("/logs/Default-TraData.txt")
	require.NoError(t, err)
	assert.Equal(t,
		"2026-07-09T14:03:05.250\tx=4.000 y=5.000 z=6.000\n"+
			"2026-07-09T14:03:05.250\tx=7.000 y=8.000 z=9.000\n",
		string(data))
}

func TestFileLog_SessionBoundary(t *testing.T) {
	l, mfs, _ := newTestLog(t)
	require.NoError(t, l.WriteSessionBoundary())

	for file, tag := range map[string]string{
		"/logs/Default-CamData.txt": "-C",
		"/logs/Default-TraData.txt": "-A",
		"/logs/Default-MPData.txt":  "-M",
	} {
		data, err := mfs.ReadFile(file)
		require.NoError(t, err)
		assert.Equal(t, "2026-07-09T14:03:05.250\t"+tag+"----New Session------\n", string(data))
	}
}

func TestFileLog_MarkPoint(t *testing.T) {
	l, mfs, clock := newTestLog(t)
	require.NoError(t, l.WriteMarkPoint("7", "TRACKING"))
	clock.Advance(time.Minute)
	require.NoError(t, l.WriteMarkPoint("door", "PAUSED"))
	assert.ErrorIs(t, l.WriteMarkPoint("  ", "TRACKING"), ErrEmptyMarkName)

	data, err := mfs.ReadFile("/logs/Default-MPData.txt")
	require.NoError(t, err)
	assert.Equal(t, "0709-140305\t7\tTRACKING\n0709-140405\tdoor\tPAUSED\n", string(data))
}

func TestFileLog_SanitisesProject(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	l, err := NewFileLog(mfs, timeutil.RealClock{}, "/logs", "../site 4")
	require.NoError(t, err)
	cam, _, _ := l.Paths()
	assert.True(t, strings.HasPrefix(cam, "/logs/site_4-"), cam)
}

func TestFileLog_WriteFailure(t *testing.T) {
	l, mfs, _ := newTestLog(t)
	mfs.ReadOnly = true
	assert.Error(t, l.WriteSessionBoundary())
	assert.Error(t, l.WriteMarkPoint("1", "TRACKING"))
	l.Handle(FrameReport{}) // logged, not fatal
}
