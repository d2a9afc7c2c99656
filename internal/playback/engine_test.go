package playback

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vjiki/music-ios-bird/internal/mediacache"
)

const testTick = 5 * time.Millisecond

type fakeDriver struct {
	mu    sync.Mutex
	url   string
	state string
	posMS int64
	durMS int64
	ok    bool
	seeks []int64
}

func (d *fakeDriver) Play(url string, positionMS int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = url
	d.state = "playing"
	return nil
}

func (d *fakeDriver) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = "paused"
	return nil
}

func (d *fakeDriver) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = "playing"
	return nil
}

func (d *fakeDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = "stopped"
	return nil
}

func (d *fakeDriver) Seek(positionMS int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seeks = append(d.seeks, positionMS)
	d.posMS = positionMS
	return nil
}

func (d *fakeDriver) SetVolume(volume float64) error { return nil }
func (d *fakeDriver) SetMute(mute bool) error        { return nil }

func (d *fakeDriver) Position() (int64, int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.posMS, d.durMS, d.ok
}

func (d *fakeDriver) setPosition(posMS, durMS int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.posMS = posMS
	d.durMS = durMS
	d.ok = true
}

func (d *fakeDriver) setUnready() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ok = false
}

func (d *fakeDriver) currentState() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *fakeDriver) currentURL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url
}

func (d *fakeDriver) seekCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seeks)
}

type recorder struct {
	states    chan Status
	positions chan int64
	finished  chan struct{}
}

func newRecorder() *recorder {
	return &recorder{
		states:    make(chan Status, 32),
		positions: make(chan int64, 256),
		finished:  make(chan struct{}, 8),
	}
}

func (r *recorder) events() Events {
	return Events{
		OnPosition: func(positionMS, durationMS int64) {
			select {
			case r.positions <- positionMS:
			default:
			}
		},
		OnState: func(status Status) {
			r.states <- status
		},
		OnFinished: func() {
			r.finished <- struct{}{}
		},
	}
}

func (r *recorder) waitState(t *testing.T, want Status) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-r.states:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %q", want)
		}
	}
}

func (r *recorder) waitFinished(t *testing.T) {
	t.Helper()
	select {
	case <-r.finished:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for finished event")
	}
}

func (r *recorder) drain() {
	for {
		select {
		case <-r.states:
		case <-r.positions:
		case <-r.finished:
		default:
			return
		}
	}
}

func newTestEngine(t *testing.T, driver *fakeDriver, opts Options) (*Engine, *recorder) {
	t.Helper()
	rec := newRecorder()
	if opts.Tick == 0 {
		opts.Tick = testTick
	}
	e := NewEngine(zap.NewNop(), driver, nil, rec.events(), opts)
	t.Cleanup(e.Stop)
	return e, rec
}

func TestLoadAudioPlaysImmediately(t *testing.T) {
	driver := &fakeDriver{}
	e, rec := newTestEngine(t, driver, Options{})

	e.Load(mediacache.ClassAudio, "http://example.com/track.mp3", nil)

	rec.waitState(t, StatusPlaying)
	if got := driver.currentURL(); got != "http://example.com/track.mp3" {
		t.Fatalf("driver url = %q", got)
	}
	if driver.currentState() != "playing" {
		t.Fatalf("driver state = %q, want playing", driver.currentState())
	}
}

func TestLoadEmptyURLKeepsState(t *testing.T) {
	driver := &fakeDriver{}
	e, _ := newTestEngine(t, driver, Options{})

	e.Load(mediacache.ClassAudio, "http://example.com/a.mp3", nil)
	e.Load(mediacache.ClassAudio, "", nil)

	if got := e.Status(); got != StatusPlaying {
		t.Fatalf("status = %q after empty load, want playing", got)
	}
	if got := driver.currentURL(); got != "http://example.com/a.mp3" {
		t.Fatalf("driver url = %q", got)
	}
}

func TestLoadVideoDefersUntilReady(t *testing.T) {
	driver := &fakeDriver{}
	e, rec := newTestEngine(t, driver, Options{})

	e.Load(mediacache.ClassVideo, "http://example.com/clip.mp4", nil)

	if got := e.Status(); got != StatusLoading {
		t.Fatalf("status = %q, want loading", got)
	}
	if driver.currentState() != "paused" {
		t.Fatalf("driver state = %q, want paused before ready", driver.currentState())
	}

	driver.setPosition(0, 12000)

	rec.waitState(t, StatusReady)
	rec.waitState(t, StatusPlaying)
	if driver.currentState() != "playing" {
		t.Fatalf("driver state = %q after ready, want playing", driver.currentState())
	}
}

func TestPauseAndPlayRoundTrip(t *testing.T) {
	driver := &fakeDriver{}
	e, rec := newTestEngine(t, driver, Options{})

	e.Load(mediacache.ClassAudio, "http://example.com/a.mp3", nil)
	rec.waitState(t, StatusPlaying)

	e.Pause()
	rec.waitState(t, StatusPaused)
	if driver.currentState() != "paused" {
		t.Fatalf("driver state = %q, want paused", driver.currentState())
	}

	// Redundant pause is silent.
	rec.drain()
	e.Pause()
	select {
	case got := <-rec.states:
		t.Fatalf("unexpected state event %q after redundant pause", got)
	case <-time.After(5 * testTick):
	}

	e.Play()
	rec.waitState(t, StatusPlaying)
}

func TestFinishedEmittedOnce(t *testing.T) {
	driver := &fakeDriver{}
	e, rec := newTestEngine(t, driver, Options{})

	e.Load(mediacache.ClassAudio, "http://example.com/a.mp3", nil)
	rec.waitState(t, StatusPlaying)

	driver.setPosition(5000, 5000)
	rec.waitFinished(t)
	if got := e.Status(); got != StatusFinished {
		t.Fatalf("status = %q, want finished", got)
	}

	// The driver keeps reporting an end position; no second event.
	select {
	case <-rec.finished:
		t.Fatal("finished emitted more than once")
	case <-time.After(10 * testTick):
	}

	// Play restarts a finished session from zero.
	e.Play()
	rec.waitState(t, StatusPlaying)
	pos, _ := e.Progress()
	if pos != 0 {
		t.Fatalf("position after restart = %d, want 0", pos)
	}
}

func TestLoopingRestartsWithoutFinished(t *testing.T) {
	driver := &fakeDriver{}
	e, rec := newTestEngine(t, driver, Options{Looping: true})

	e.Load(mediacache.ClassAudio, "http://example.com/loop.mp3", nil)
	rec.waitState(t, StatusPlaying)

	driver.setPosition(3000, 3000)

	deadline := time.After(2 * time.Second)
	for driver.seekCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for loop restart seek")
		case <-time.After(testTick):
		}
	}

	select {
	case <-rec.finished:
		t.Fatal("finished emitted in looping mode")
	case <-time.After(10 * testTick):
	}
	if got := e.Status(); got != StatusPlaying {
		t.Fatalf("status = %q, want playing", got)
	}
}

func TestStaleSessionEmitsNothing(t *testing.T) {
	driver := &fakeDriver{}
	e, rec := newTestEngine(t, driver, Options{})

	e.Load(mediacache.ClassAudio, "http://example.com/a.mp3", nil)
	driver.setPosition(1000, 60000)

	select {
	case <-rec.positions:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first position")
	}

	// Replace the session with one that never becomes ready, then
	// give any in-flight tick time to land before draining.
	e.Load(mediacache.ClassAudio, "http://example.com/b.mp3", nil)
	driver.setUnready()
	time.Sleep(5 * testTick)
	rec.drain()

	select {
	case pos := <-rec.positions:
		t.Fatalf("stale session emitted position %d", pos)
	case got := <-rec.states:
		t.Fatalf("stale session emitted state %q", got)
	case <-rec.finished:
		t.Fatal("stale session emitted finished")
	case <-time.After(20 * testTick):
	}
}

func TestSeekClamps(t *testing.T) {
	driver := &fakeDriver{}
	e, rec := newTestEngine(t, driver, Options{})

	e.Load(mediacache.ClassAudio, "http://example.com/a.mp3", nil)
	rec.waitState(t, StatusPlaying)

	// Unknown duration clamps everything to zero.
	e.Seek(9000)
	pos, _ := e.Progress()
	if pos != 0 {
		t.Fatalf("seek with unknown duration landed at %d, want 0", pos)
	}

	driver.setPosition(0, 4000)
	deadline := time.After(2 * time.Second)
	for {
		_, dur := e.Progress()
		if dur == 4000 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for duration")
		case <-time.After(testTick):
		}
	}

	e.Seek(9000)
	pos, _ = e.Progress()
	if pos != 4000 {
		t.Fatalf("seek past end landed at %d, want 4000", pos)
	}
	e.Seek(-50)
	pos, _ = e.Progress()
	if pos != 0 {
		t.Fatalf("negative seek landed at %d, want 0", pos)
	}
}

func TestPreloadSlotReplaceDiscards(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	cache, err := mediacache.New(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	fetcher := mediacache.NewFetcher(zap.NewNop(), cache, srv.Client())

	driver := &fakeDriver{}
	rec := newRecorder()
	e := NewEngine(zap.NewNop(), driver, fetcher, rec.events(), Options{Tick: testTick})
	defer e.Stop()

	urlA := srv.URL + "/a.mp3"
	urlB := srv.URL + "/b.mp3"

	e.PreloadNext(mediacache.ClassAudio, urlA)
	if got, ok := e.Preloaded(); !ok || got != urlA {
		t.Fatalf("preloaded = %q, %v", got, ok)
	}

	e.PreloadNext(mediacache.ClassAudio, urlB)
	if got, ok := e.Preloaded(); !ok || got != urlB {
		t.Fatalf("preloaded after replace = %q, %v", got, ok)
	}

	waitCached(t, cache, mediacache.ClassAudio, urlB)
}

func TestPreloadConsumedOnLoad(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	cache, err := mediacache.New(zap.NewNop(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	fetcher := mediacache.NewFetcher(zap.NewNop(), cache, srv.Client())

	driver := &fakeDriver{}
	rec := newRecorder()
	e := NewEngine(zap.NewNop(), driver, fetcher, rec.events(), Options{Tick: testTick})
	defer e.Stop()

	url := srv.URL + "/next.mp3"
	e.PreloadNext(mediacache.ClassAudio, url)
	waitCached(t, cache, mediacache.ClassAudio, url)

	e.Load(mediacache.ClassAudio, url, nil)

	if _, ok := e.Preloaded(); ok {
		t.Fatal("preload slot not consumed by load")
	}
	want := cache.Path(mediacache.ClassAudio, url)
	if got := driver.currentURL(); got != want {
		t.Fatalf("driver url = %q, want cached path %q", got, want)
	}
}

func waitCached(t *testing.T, cache *mediacache.Cache, class mediacache.Class, url string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cache.Has(class, url) {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s to be cached", url)
		case <-time.After(testTick):
		}
	}
}
