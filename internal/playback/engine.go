// Package playback owns the single active media session: transport
// state, position observation, and the one-slot lookahead preload.
package playback

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vjiki/music-ios-bird/internal/mediacache"
)

// Status is the engine session state.
type Status string

// Session states. Loading becomes Ready implicitly once the driver
// reports a duration; Finished is only reached through natural end of
// media.
const (
	StatusIdle     Status = "idle"
	StatusLoading  Status = "loading"
	StatusReady    Status = "ready"
	StatusPlaying  Status = "playing"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
)

// Driver executes playback against the underlying media stack.
type Driver interface {
	Play(url string, positionMS int64) error
	Pause() error
	Resume() error
	Stop() error
	Seek(positionMS int64) error
	SetVolume(volume float64) error
	SetMute(mute bool) error
	Position() (positionMS int64, durationMS int64, ok bool)
}

// Events are the engine's upward callbacks. All callbacks are invoked
// outside the engine lock and never for a superseded session.
type Events struct {
	OnPosition func(positionMS, durationMS int64)
	OnState    func(status Status)
	OnFinished func()
}

// Options tune engine behavior.
type Options struct {
	// Tick is the position reporting interval. Sub-second for
	// swipe-driven short-form content, coarser for the main player.
	Tick time.Duration
	// Looping makes natural end seek to zero and resume without
	// surfacing a finished event (short-form video behavior).
	Looping bool
}

type preloadSlot struct {
	class  mediacache.Class
	url    string
	cancel context.CancelFunc
}

// Engine wraps one active media session at a time. Loading a new item
// tears the previous session down completely before installing the
// new one, so a stale session can never fire events afterwards.
type Engine struct {
	log     *zap.Logger
	driver  Driver
	fetcher *mediacache.Fetcher
	events  Events
	tick    time.Duration

	mu         sync.Mutex
	gen        uint64
	status     Status
	class      mediacache.Class
	url        string
	positionMS int64
	durationMS int64
	lastPosMS  int64
	ready      bool
	deferred   bool
	looping    bool
	volume     float64
	mute       bool
	cancelTick context.CancelFunc
	preload    *preloadSlot
}

// NewEngine creates an idle engine.
func NewEngine(log *zap.Logger, driver Driver, fetcher *mediacache.Fetcher, events Events, opts Options) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	return &Engine{
		log:     log,
		driver:  driver,
		fetcher: fetcher,
		events:  events,
		tick:    opts.Tick,
		status:  StatusIdle,
		looping: opts.Looping,
		volume:  1.0,
	}
}

// Load tears down any existing session and starts a new one for the
// URL. The source is resolved through the cache first; a miss starts
// a detached background fetch and plays from the remote URL without
// waiting. Audio begins playing immediately; video defers until the
// session reports ready. An empty URL is a no-op and the engine keeps
// its previous state.
func (e *Engine) Load(class mediacache.Class, url string, meta *mediacache.Metadata) {
	if url == "" {
		return
	}

	e.mu.Lock()
	e.teardownLocked()

	source := url
	trigger := false
	if e.fetcher != nil {
		source, trigger = e.fetcher.ResolveSource(class, url)
	}
	if e.preload != nil && e.preload.url == url {
		// Consuming the preload: its background fetch keeps running,
		// the slot is spent.
		e.preload = nil
	}

	e.gen++
	e.class = class
	e.url = url
	e.positionMS = 0
	e.durationMS = 0
	e.lastPosMS = 0
	e.ready = false
	e.deferred = class == mediacache.ClassVideo

	if err := e.driver.Play(source, 0); err != nil {
		// Session that never reaches Ready; a following Load must
		// still succeed, so stay in Loading with the ticker off.
		e.status = StatusLoading
		e.mu.Unlock()
		e.log.Warn("driver play failed", zap.String("url", url), zap.Error(err))
		return
	}

	var emit func()
	if e.deferred {
		_ = e.driver.Pause()
		e.status = StatusLoading
	} else {
		e.status = StatusPlaying
		emit = e.stateEmitterLocked()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.cancelTick = cancel
	gen := e.gen
	e.mu.Unlock()

	if trigger && e.fetcher != nil {
		go func() {
			_ = e.fetcher.FetchAndStore(context.Background(), class, url, meta)
		}()
	}
	go e.run(ctx, gen)

	if emit != nil {
		emit()
	}
}

// Play resumes a paused session or restarts a finished one. Redundant
// calls emit nothing.
func (e *Engine) Play() {
	e.mu.Lock()
	var emit func()
	switch e.status {
	case StatusPaused, StatusReady:
		_ = e.driver.Resume()
		e.status = StatusPlaying
		emit = e.stateEmitterLocked()
	case StatusFinished:
		_ = e.driver.Seek(0)
		_ = e.driver.Resume()
		e.positionMS = 0
		e.lastPosMS = 0
		e.status = StatusPlaying
		emit = e.stateEmitterLocked()
	}
	e.mu.Unlock()
	if emit != nil {
		emit()
	}
}

// Pause pauses a playing session. Redundant calls emit nothing.
func (e *Engine) Pause() {
	e.mu.Lock()
	var emit func()
	if e.status == StatusPlaying {
		_ = e.driver.Pause()
		e.status = StatusPaused
		emit = e.stateEmitterLocked()
	}
	e.mu.Unlock()
	if emit != nil {
		emit()
	}
}

// Seek clamps to [0, duration]; with an unknown duration everything
// clamps to zero.
func (e *Engine) Seek(positionMS int64) {
	e.mu.Lock()
	if positionMS < 0 {
		positionMS = 0
	}
	if e.durationMS > 0 && positionMS > e.durationMS {
		positionMS = e.durationMS
	}
	if e.durationMS == 0 {
		positionMS = 0
	}
	_ = e.driver.Seek(positionMS)
	e.positionMS = positionMS
	e.lastPosMS = positionMS
	e.mu.Unlock()
}

// Stop tears down the current session and returns to Idle.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.teardownLocked()
	e.status = StatusIdle
	e.url = ""
	e.positionMS = 0
	e.durationMS = 0
	e.mu.Unlock()
}

// PreloadNext prepares the following item without playing it: the
// slot remembers the URL and starts its background fetch so the bytes
// are local by the time the item is loaded. At most one slot exists;
// preparing a new one silently discards the previous.
func (e *Engine) PreloadNext(class mediacache.Class, url string) {
	if url == "" || e.fetcher == nil {
		return
	}

	e.mu.Lock()
	if e.preload != nil {
		if e.preload.url == url {
			e.mu.Unlock()
			return
		}
		e.preload.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.preload = &preloadSlot{class: class, url: url, cancel: cancel}
	e.mu.Unlock()

	if _, trigger := e.fetcher.ResolveSource(class, url); trigger {
		go func() {
			_ = e.fetcher.FetchAndStore(ctx, class, url, nil)
		}()
	}
}

// Preloaded reports the URL currently held in the preload slot.
func (e *Engine) Preloaded() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.preload == nil {
		return "", false
	}
	return e.preload.url, true
}

// SetLooping toggles short-form loop behavior for the current and
// future sessions.
func (e *Engine) SetLooping(looping bool) {
	e.mu.Lock()
	e.looping = looping
	e.mu.Unlock()
}

// SetVolume forwards volume to the driver.
func (e *Engine) SetVolume(volume float64) {
	e.mu.Lock()
	e.volume = volume
	_ = e.driver.SetVolume(volume)
	e.mu.Unlock()
}

// SetMute forwards mute to the driver.
func (e *Engine) SetMute(mute bool) {
	e.mu.Lock()
	e.mute = mute
	_ = e.driver.SetMute(mute)
	e.mu.Unlock()
}

// Status returns the current session status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Progress returns the last observed position and duration.
func (e *Engine) Progress() (positionMS, durationMS int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionMS, e.durationMS
}

// Mix returns the current volume and mute flag.
func (e *Engine) Mix() (volume float64, mute bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume, e.mute
}

// teardownLocked detaches the previous session's observers before a
// new one is installed: the ticker context is cancelled, the driver
// stopped, and the generation bumped so any in-flight observation is
// dropped at its generation check.
func (e *Engine) teardownLocked() {
	if e.cancelTick != nil {
		e.cancelTick()
		e.cancelTick = nil
	}
	_ = e.driver.Stop()
	e.gen++
}

func (e *Engine) run(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.observe(gen)
		}
	}
}

// observe drives the Loading->Ready transition, position reporting,
// and end-of-media handling from the driver's reported position.
func (e *Engine) observe(gen uint64) {
	e.mu.Lock()
	if e.gen != gen || e.status == StatusFinished || e.status == StatusIdle {
		e.mu.Unlock()
		return
	}

	pos, dur, ok := e.driver.Position()
	if !ok {
		e.mu.Unlock()
		return
	}

	var emits []func()

	if dur > 0 && !e.ready {
		e.ready = true
		e.durationMS = dur
		if e.deferred {
			e.status = StatusReady
			emits = append(emits, e.stateEmitterLocked())
			_ = e.driver.Resume()
			e.deferred = false
			e.status = StatusPlaying
			emits = append(emits, e.stateEmitterLocked())
		}
	}
	if dur > 0 {
		e.durationMS = dur
	}
	if pos > e.durationMS && e.durationMS > 0 {
		pos = e.durationMS
	}

	finished := e.durationMS > 0 && pos >= e.durationMS && e.status == StatusPlaying
	if finished && e.looping {
		// Short-form loop: restart in place, no finished event.
		_ = e.driver.Seek(0)
		e.positionMS = 0
		e.lastPosMS = 0
		e.mu.Unlock()
		for _, emit := range emits {
			emit()
		}
		return
	}

	// Positions are monotonically non-decreasing between seeks.
	if pos >= e.lastPosMS {
		e.positionMS = pos
		e.lastPosMS = pos
		if cb := e.events.OnPosition; cb != nil {
			p, d := pos, e.durationMS
			emits = append(emits, func() { cb(p, d) })
		}
	}

	if finished {
		e.status = StatusFinished
		emits = append(emits, e.stateEmitterLocked())
		if cb := e.events.OnFinished; cb != nil {
			emits = append(emits, cb)
		}
	}
	e.mu.Unlock()

	for _, emit := range emits {
		emit()
	}
}

// stateEmitterLocked captures the current status for emission after
// the lock is released.
func (e *Engine) stateEmitterLocked() func() {
	cb := e.events.OnState
	if cb == nil {
		return func() {}
	}
	status := e.status
	return func() { cb(status) }
}
