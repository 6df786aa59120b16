package capture

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/ravine/internal/fsutil"
	"github.com/banshee-data/ravine/internal/monitoring"
	"github.com/banshee-data/ravine/internal/packet"
	"github.com/banshee-data/ravine/internal/stream"
	"github.com/banshee-data/ravine/internal/testutil"
	"github.com/banshee-data/ravine/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

type frameRecorder struct {
	mu     sync.Mutex
	firsts []byte
	sizes  [][2]int
	closed bool
}

func (r *frameRecorder) OpenStream() bool { return true }

func (r *frameRecorder) CloseStream() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return true
}

func (r *frameRecorder) Process(f packet.Frame) {
	v, _ := f.Luma(0, 0)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.firsts = append(r.firsts, v)
	r.sizes = append(r.sizes, [2]int{f.Width, f.Height})
}

func (r *frameRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.firsts)
}

func replayFixture(t *testing.T, fills ...uint8) (*fsutil.MemoryFileSystem, []string) {
	t.Helper()
	fsys := fsutil.NewMemoryFileSystem()
	var paths []string
	for i, fill := range fills {
		path := filepath.Join("frames", string(rune('a'+i))+".pgm")
		testutil.WritePGM(t, fsys, path, testutil.NewGray(4, 3, fill))
		paths = append(paths, path)
	}
	return fsys, paths
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.Equal(t, Config{Device: "/dev/video0", Width: 320, Height: 240, FPS: 15}, cfg)
	assert.Equal(t, time.Second/15, Config{}.Period())
	w, h := Config{}.Size()
	assert.Equal(t, [2]int{320, 240}, [2]int{w, h})
	w, h = Config{Width: 64, Height: 48}.Size()
	assert.Equal(t, [2]int{64, 48}, [2]int{w, h})
	assert.Equal(t,
		"v4l2src device=/dev/video1 ! videoconvert ! videoscale ! videorate ! "+
			"video/x-raw,format=GRAY8,width=320,height=240,framerate=15/1 ! appsink",
		Config{Device: "/dev/video1"}.Pipeline())
}

func TestPGMSourceReplaysOnTicks(t *testing.T) {
	fsys, paths := replayFixture(t, 10, 20, 30)
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	src := NewPGMSource(PGMConfig{Paths: paths, FPS: 10, FS: fsys, Clock: clock})
	rec := &frameRecorder{}
	require.True(t, src.RegisterSink(rec))
	require.True(t, src.OpenStream())
	require.True(t, src.StartStream())

	for i := 1; i <= 3; i++ {
		clock.Advance(100 * time.Millisecond)
		want := i
		require.Eventually(t, func() bool { return rec.count() == want }, time.Second, time.Millisecond)
	}
	require.Eventually(t, src.Finished, time.Second, time.Millisecond)

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, 3, rec.count(), "no frames after the last one")

	rec.mu.Lock()
	assert.Equal(t, []byte{10, 20, 30}, rec.firsts)
	assert.Equal(t, [2]int{4, 3}, rec.sizes[0])
	rec.mu.Unlock()

	assert.Equal(t, Stats{Frames: 3, Width: 4, Height: 3}, src.Stats())
	require.True(t, src.CloseStream())
	assert.True(t, rec.closed)
}

func TestPGMSourceLoops(t *testing.T) {
	fsys, paths := replayFixture(t, 1, 2)
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	src := NewPGMSource(PGMConfig{Paths: paths, FPS: 10, Loop: true, FS: fsys, Clock: clock})
	rec := &frameRecorder{}
	src.RegisterSink(rec)
	require.True(t, src.OpenStream())
	require.True(t, src.StartStream())
	defer src.CloseStream()

	for i := 1; i <= 5; i++ {
		clock.Advance(100 * time.Millisecond)
		want := i
		require.Eventually(t, func() bool { return rec.count() == want }, time.Second, time.Millisecond)
	}
	assert.False(t, src.Finished())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, []byte{1, 2, 1, 2, 1}, rec.firsts)
}

func TestPGMSourceStartBeforeOpen(t *testing.T) {
	fsys, paths := replayFixture(t, 1)
	src := NewPGMSource(PGMConfig{Paths: paths, FS: fsys, Clock: timeutil.NewMockClock(time.Unix(0, 0))})
	assert.False(t, src.StartStream())
	assert.True(t, src.CloseStream())
}

func TestPGMSourceMissingFrame(t *testing.T) {
	src := NewPGMSource(PGMConfig{Paths: []string{"missing.pgm"}, FS: fsutil.NewMemoryFileSystem()})
	assert.False(t, src.OpenStream())
	assert.False(t, src.IsValid())
	assert.True(t, errors.Is(src.Err(), stream.ErrDevice))
}

func TestPGMSourceWithoutPaths(t *testing.T) {
	src := NewPGMSource(PGMConfig{})
	assert.True(t, errors.Is(src.Err(), stream.ErrConfiguration))
	assert.False(t, src.OpenStream())
}

func TestGlobPGM(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pgm", "a.pgm", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	paths, err := GlobPGM(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.pgm"), filepath.Join(dir, "b.pgm")}, paths)

	_, err = GlobPGM(t.TempDir())
	assert.Error(t, err)
}

func TestGstSourceUnopened(t *testing.T) {
	src := NewGstSource(Config{})
	assert.False(t, src.StartStream())
	assert.True(t, src.StopStream())
	assert.True(t, src.CloseStream())
	assert.Equal(t, Stats{Width: 320, Height: 240}, src.Stats())
}
