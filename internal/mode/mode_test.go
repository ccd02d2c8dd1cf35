// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeService struct {
	name     string
	startErr error
	delay    time.Duration
	events   *eventLog

	active atomic.Bool
	starts atomic.Int32
	stops  atomic.Int32
}

func (f *fakeService) Start(context.Context) error {
	f.starts.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.startErr != nil {
		return f.startErr
	}
	if f.events != nil {
		f.events.add(f.name + ":start")
	}
	f.active.Store(true)
	return nil
}

func (f *fakeService) Stop() error {
	f.stops.Add(1)
	if f.active.Swap(false) && f.events != nil {
		f.events.add(f.name + ":stop")
	}
	return nil
}

func (f *fakeService) Active() bool { return f.active.Load() }

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type memStore struct {
	mu       sync.Mutex
	mode     Mode
	readErr  error
	writeErr error
	writes   int
}

func (s *memStore) Read(context.Context) (Mode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return "", s.readErr
	}
	if s.mode == "" {
		return "", ErrNoRecord
	}
	return s.mode, nil
}

func (s *memStore) WriteDurable(_ context.Context, m Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.mode = m
	s.writes++
	return nil
}

func (s *memStore) persisted() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func newController(t *testing.T, store Store) (*Controller, *fakeService, *fakeService, *eventLog) {
	t.Helper()
	log := &eventLog{}
	video := &fakeService{name: "video", events: log}
	audio := &fakeService{name: "audio", events: log}
	c, err := New(store, map[Mode]Service{Video: video, Audio: audio})
	require.NoError(t, err)
	return c, video, audio, log
}

func TestStartup_DefaultsToVideo(t *testing.T) {
	tests := []struct {
		name  string
		store *memStore
	}{
		{name: "absent", store: &memStore{}},
		{name: "corrupt", store: &memStore{readErr: ErrCorruptRecord}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, video, audio, _ := newController(t, tc.store)
			require.NoError(t, c.Startup(context.Background()))
			assert.Equal(t, Video, c.Current())
			assert.Equal(t, int32(1), video.starts.Load())
			assert.Zero(t, audio.starts.Load())
		})
	}
}

func TestStartup_UsesPersistedMode(t *testing.T) {
	store := &memStore{mode: Audio}
	c, video, audio, _ := newController(t, store)
	require.NoError(t, c.Startup(context.Background()))
	assert.Equal(t, Audio, c.Current())
	assert.Zero(t, video.starts.Load())
	assert.True(t, audio.Active())
	assert.Zero(t, store.writes)
}

func TestStartup_StartFailure(t *testing.T) {
	store := &memStore{mode: Video}
	c, video, _, _ := newController(t, store)
	video.startErr = errors.New("ffmpeg missing")

	err := c.Startup(context.Background())
	require.ErrorIs(t, err, ErrModeStartFailed)
	var mse *ModeStartError
	require.ErrorAs(t, err, &mse)
	assert.Equal(t, Video, mse.Target)
}

func TestSwitchTo_SameModeIsNoop(t *testing.T) {
	store := &memStore{mode: Video}
	c, video, audio, _ := newController(t, store)
	require.NoError(t, c.Startup(context.Background()))

	changed, err := c.SwitchTo(context.Background(), Video)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, int32(1), video.starts.Load())
	assert.Zero(t, video.stops.Load())
	assert.Zero(t, audio.starts.Load())
	assert.Zero(t, audio.stops.Load())
	assert.Zero(t, store.writes)
}

func TestSwitchTo_StopsOldBeforeStartingNew(t *testing.T) {
	store := &memStore{mode: Video}
	c, video, audio, log := newController(t, store)
	require.NoError(t, c.Startup(context.Background()))

	changed, err := c.SwitchTo(context.Background(), Audio)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, Audio, c.Current())
	assert.Equal(t, Audio, store.persisted())
	assert.False(t, video.Active())
	assert.True(t, audio.Active())
	assert.Equal(t, []string{"video:start", "video:stop", "audio:start"}, log.all())

	st := c.Status()
	assert.Equal(t, Status{Mode: Audio, Active: true}, st)
}

func TestSwitchTo_StartFailureLeavesRecordAndStopsOld(t *testing.T) {
	store := &memStore{mode: Video}
	c, video, audio, _ := newController(t, store)
	require.NoError(t, c.Startup(context.Background()))
	audio.startErr = errors.New("exec: \"ffplay\": executable file not found in $PATH")

	changed, err := c.SwitchTo(context.Background(), Audio)
	assert.False(t, changed)
	require.ErrorIs(t, err, ErrModeStartFailed)

	assert.Equal(t, Video, store.persisted())
	assert.False(t, video.Active(), "old supervisor must stay stopped")
	assert.Equal(t, int32(1), video.starts.Load(), "old supervisor must not be restarted")
	assert.False(t, audio.Active())
	assert.Equal(t, Video, c.Current())
	assert.False(t, c.Status().Active)

	// An explicit switch back recovers.
	changed, err = c.SwitchTo(context.Background(), Video)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, video.Active())
}

func TestSwitchTo_PersistFailureStopsTarget(t *testing.T) {
	store := &memStore{mode: Video}
	c, _, audio, _ := newController(t, store)
	require.NoError(t, c.Startup(context.Background()))
	store.mu.Lock()
	store.writeErr = ErrNotDurable
	store.mu.Unlock()

	changed, err := c.SwitchTo(context.Background(), Audio)
	assert.False(t, changed)
	require.ErrorIs(t, err, ErrNotDurable)
	assert.False(t, audio.Active())
	assert.Equal(t, Video, store.persisted())
}

func TestSwitchTo_Serialized(t *testing.T) {
	store := &memStore{mode: Video}
	log := &eventLog{}
	video := &fakeService{name: "video", events: log, delay: 20 * time.Millisecond}
	audio := &fakeService{name: "audio", events: log, delay: 20 * time.Millisecond}
	c, err := New(store, map[Mode]Service{Video: video, Audio: audio})
	require.NoError(t, err)
	require.NoError(t, c.Startup(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		target := Audio
		if i%2 == 1 {
			target = Video
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.SwitchTo(context.Background(), target)
		}()
	}
	wg.Wait()

	// Never both active, and every start is preceded by the other's stop.
	assert.False(t, video.Active() && audio.Active())
	running := ""
	for _, e := range log.all() {
		switch e {
		case "video:start", "audio:start":
			assert.Empty(t, running, "start while %s running", running)
			running = e[:5]
		case "video:stop", "audio:stop":
			running = ""
		}
	}
	assert.Equal(t, c.Current(), store.persisted())
}

func TestSwitchTo_HonorsContextWhileWaiting(t *testing.T) {
	store := &memStore{mode: Video}
	c, _, _, _ := newController(t, store)
	require.NoError(t, c.Startup(context.Background()))

	c.sem <- struct{}{} // simulate a switch in flight
	assert.True(t, c.Status().Switching)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.SwitchTo(ctx, Audio)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	<-c.sem
}

func TestSwitchTo_UnknownMode(t *testing.T) {
	c, _, _, _ := newController(t, &memStore{})
	_, err := c.SwitchTo(context.Background(), Mode("slideshow"))
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestShutdownStopsEverything(t *testing.T) {
	store := &memStore{mode: Audio}
	c, video, audio, _ := newController(t, store)
	require.NoError(t, c.Startup(context.Background()))
	require.NoError(t, c.Shutdown(context.Background()))
	assert.False(t, audio.Active())
	assert.False(t, video.Active())
	assert.Equal(t, Audio, store.persisted())
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	s := FileStore{Path: filepath.Join(t.TempDir(), "state", "mode")}

	_, err := s.Read(ctx)
	assert.ErrorIs(t, err, ErrNoRecord)

	require.NoError(t, s.WriteDurable(ctx, Audio))
	m, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, Audio, m)

	data, err := os.ReadFile(s.Path)
	require.NoError(t, err)
	assert.Equal(t, "audio\n", string(data))

	require.NoError(t, os.WriteFile(s.Path, []byte("karaoke"), 0o600))
	_, err = s.Read(ctx)
	assert.ErrorIs(t, err, ErrCorruptRecord)

	assert.ErrorIs(t, s.WriteDurable(ctx, Mode("karaoke")), ErrUnknownMode)
}

func TestParse(t *testing.T) {
	m, err := Parse(" VIDEO\n")
	require.NoError(t, err)
	assert.Equal(t, Video, m)
	_, err = Parse("")
	assert.ErrorIs(t, err, ErrUnknownMode)
}
