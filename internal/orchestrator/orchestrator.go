// Package orchestrator is the single owner of playback, queue, and
// library state. Everything the UI surface can do funnels through it,
// and every meaningful change publishes one retained state snapshot.
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/vjiki/music-ios-bird/internal/library"
	"github.com/vjiki/music-ios-bird/internal/mediacache"
	"github.com/vjiki/music-ios-bird/internal/playback"
	"github.com/vjiki/music-ios-bird/internal/playqueue"
	"github.com/vjiki/music-ios-bird/pkg/bird"
)

// Options tune the orchestrator and its engine.
type Options struct {
	// Tick is the engine position reporting interval.
	Tick time.Duration
	// Looping enables the short-form in-place loop on natural end.
	Looping bool
	// PageSize is the library page size for LoadMore.
	PageSize int
}

const defaultPageSize = 50

// Orchestrator composes the play queue, the playback engine, the
// media cache, and the library clients. Its methods are safe for
// concurrent use; engine calls are always made outside the
// orchestrator lock so engine events can re-enter freely.
type Orchestrator struct {
	log        *zap.Logger
	engine     *playback.Engine
	queue      *playqueue.State
	fetcher    *mediacache.Fetcher
	source     library.TrackSource
	engagement library.EngagementSink
	identity   *library.Identity
	publish    func(bird.PlayerState)
	pageSize   int

	version atomic.Int64

	mu      sync.Mutex
	tracks  []bird.Track
	fetched bool
	hasMore bool
	loading bool
}

// New wires an orchestrator around the given driver and
// collaborators. publish receives every state snapshot and may be nil.
func New(log *zap.Logger, driver playback.Driver, fetcher *mediacache.Fetcher, source library.TrackSource, engagement library.EngagementSink, identity *library.Identity, publish func(bird.PlayerState), opts Options) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}

	o := &Orchestrator{
		log:        log,
		queue:      playqueue.New(),
		fetcher:    fetcher,
		source:     source,
		engagement: engagement,
		identity:   identity,
		publish:    publish,
		pageSize:   opts.PageSize,
	}
	o.engine = playback.NewEngine(log, driver, fetcher, playback.Events{
		OnPosition: func(positionMS, durationMS int64) { o.publishState() },
		OnState:    func(status playback.Status) { o.publishState() },
		OnFinished: func() { o.Advance(true) },
	}, playback.Options{Tick: opts.Tick, Looping: opts.Looping})
	return o
}

// PlayTrack configures the queue around the item and starts playback.
// An empty list plays the item on its own. Social counters on the
// incoming item are merged against the library's cached copy so stale
// zeroes never clobber known counts.
func (o *Orchestrator) PlayTrack(item bird.Track, inList []bird.Track) {
	if item.ID == "" && item.AudioURL == "" {
		return
	}
	if len(inList) == 0 {
		inList = []bird.Track{item}
	}

	resolved := o.mergeIntoLibrary(item)
	o.queue.Configure(inList, resolved.ID)
	o.queue.UpdateTrack(resolved)
	o.playCurrent()
}

// PlayIndex jumps the cursor and plays that queue position. It
// reports false for an out-of-range index.
func (o *Orchestrator) PlayIndex(index int) bool {
	if !o.queue.SetCursor(index) {
		return false
	}
	o.playCurrent()
	return true
}

// Play resumes the current item, or starts the cursor item from
// idle. It never pauses.
func (o *Orchestrator) Play() {
	switch o.engine.Status() {
	case playback.StatusPlaying:
	case playback.StatusIdle:
		if _, ok := o.queue.Current(); ok {
			o.playCurrent()
		}
	default:
		o.engine.Play()
	}
}

// Pause pauses the current item.
func (o *Orchestrator) Pause() {
	o.engine.Pause()
}

// Advance moves playback forward. Manual advance always honors the
// queue's computed next index. Auto advance on natural end handles
// the repeat special cases: repeat-one restarts in place, repeat-all
// wraps at the end, repeat-off at the end pauses on the last item.
func (o *Orchestrator) Advance(auto bool) {
	if auto && o.queue.Repeat() == playqueue.RepeatOne {
		o.engine.Seek(0)
		o.engine.Play()
		o.publishState()
		return
	}

	idx, ok := o.queue.NextIndex()
	if !ok {
		if auto {
			// End of list with repeat off: stay on the last item.
			o.engine.Pause()
			o.publishState()
		}
		return
	}
	o.queue.SetCursor(idx)
	o.playCurrent()
}

// Previous steps to the prior queue position, wrapping to the end.
func (o *Orchestrator) Previous() {
	idx, ok := o.queue.PrevIndex()
	if !ok {
		return
	}
	o.queue.SetCursor(idx)
	o.playCurrent()
}

// TogglePlayPause flips transport state. From idle with a configured
// queue it starts the cursor item.
func (o *Orchestrator) TogglePlayPause() {
	switch o.engine.Status() {
	case playback.StatusPlaying:
		o.engine.Pause()
	case playback.StatusIdle:
		if _, ok := o.queue.Current(); ok {
			o.playCurrent()
		}
	default:
		o.engine.Play()
	}
}

// Seek forwards to the engine and publishes the new position.
func (o *Orchestrator) Seek(positionMS int64) {
	o.engine.Seek(positionMS)
	o.publishState()
}

// ToggleShuffle re-derives the play order and refreshes the preload
// slot, since the following item changed.
func (o *Orchestrator) ToggleShuffle() {
	o.queue.ToggleShuffle()
	o.preloadNext()
	o.publishState()
}

// SetShuffle sets shuffle explicitly.
func (o *Orchestrator) SetShuffle(on bool) {
	o.queue.SetShuffle(on)
	o.preloadNext()
	o.publishState()
}

// CycleRepeat steps off -> all -> one -> off.
func (o *Orchestrator) CycleRepeat() {
	o.queue.CycleRepeat()
	o.preloadNext()
	o.publishState()
}

// SetRepeat sets the repeat mode explicitly.
func (o *Orchestrator) SetRepeat(mode playqueue.RepeatMode) {
	o.queue.SetRepeat(mode)
	o.preloadNext()
	o.publishState()
}

// SetVolume forwards to the engine.
func (o *Orchestrator) SetVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	o.engine.SetVolume(volume)
	o.publishState()
}

// SetMute forwards to the engine.
func (o *Orchestrator) SetMute(mute bool) {
	o.engine.SetMute(mute)
	o.publishState()
}

// Stop tears down the current session.
func (o *Orchestrator) Stop() {
	o.engine.Stop()
	o.publishState()
}

// Queue exposes the play queue for read-style command handlers.
func (o *Orchestrator) Queue() *playqueue.State {
	return o.queue
}

// LoadMore appends the next library page. Concurrent calls and calls
// past the last page are no-ops. The fetch runs synchronously on the
// caller; the loading flag is published so the surface can show a
// spinner.
func (o *Orchestrator) LoadMore(ctx context.Context) {
	o.mu.Lock()
	if o.loading || (o.fetched && !o.hasMore) {
		o.mu.Unlock()
		return
	}
	if o.source == nil {
		o.mu.Unlock()
		return
	}
	o.loading = true
	offset := len(o.tracks)
	o.mu.Unlock()
	o.publishState()

	page, hasMore, err := o.source.ListTracks(ctx, offset, o.pageSize)

	o.mu.Lock()
	o.loading = false
	if err != nil {
		o.mu.Unlock()
		o.log.Warn("load more tracks failed", zap.Error(err))
		o.publishState()
		return
	}
	o.fetched = true
	o.hasMore = hasMore
	for _, t := range page {
		o.upsertTrackLocked(t)
	}
	o.mu.Unlock()
	o.publishState()
}

// LibraryTracks returns a copy of the cached library listing.
func (o *Orchestrator) LibraryTracks() []bird.Track {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]bird.Track, len(o.tracks))
	copy(out, o.tracks)
	return out
}

// Snapshot assembles the current player state.
func (o *Orchestrator) Snapshot() bird.PlayerState {
	state := bird.PlayerState{
		Status:       string(o.engine.Status()),
		Shuffle:      o.queue.Shuffle(),
		RepeatMode:   string(o.queue.Repeat()),
		StateVersion: o.version.Load(),
		TS:           time.Now().UnixMilli(),
	}
	state.PositionMS, state.DurationMS = o.engine.Progress()
	state.Volume, state.Mute = o.engine.Mix()

	if t, ok := o.queue.Current(); ok {
		track := t
		state.Track = &track
	}
	summary := o.queue.Summary()
	state.Queue = &summary

	o.mu.Lock()
	state.Library = &bird.LibraryState{
		Total:     int64(len(o.tracks)),
		HasMore:   o.hasMore,
		IsLoading: o.loading,
	}
	o.mu.Unlock()
	return state
}

// playCurrent loads and plays the queue cursor item, kicks off a
// cover art fetch, and preloads the following item.
func (o *Orchestrator) playCurrent() {
	t, ok := o.queue.Current()
	if !ok {
		return
	}

	meta := &mediacache.Metadata{
		URL:      t.AudioURL,
		Title:    t.Title,
		Artist:   t.Artist,
		CoverURL: t.CoverURL,
	}
	o.engine.Load(mediacache.ClassAudio, t.AudioURL, meta)

	if o.fetcher != nil && t.CoverURL != "" {
		coverMeta := &mediacache.Metadata{URL: t.CoverURL, Title: t.Title, Artist: t.Artist}
		go func() {
			_ = o.fetcher.FetchAndStore(context.Background(), mediacache.ClassImage, t.CoverURL, coverMeta)
		}()
	}

	o.preloadNext()
	o.publishState()
}

// preloadNext points the engine's one preload slot at whatever the
// queue would play next, if that differs from the current item.
func (o *Orchestrator) preloadNext() {
	current, ok := o.queue.Current()
	if !ok {
		return
	}
	idx, ok := o.queue.NextIndex()
	if !ok {
		return
	}
	next, ok := o.queue.At(idx)
	if !ok || next.ID == current.ID {
		return
	}
	o.engine.PreloadNext(mediacache.ClassAudio, next.AudioURL)
}

// mergeIntoLibrary reconciles an incoming track against the cached
// library copy. When the incoming copy carries only default social
// counters and the library copy has real ones, the library copy wins;
// otherwise the incoming copy refreshes the library. Returns the
// counters the player should show.
func (o *Orchestrator) mergeIntoLibrary(item bird.Track) bird.Track {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i, existing := range o.tracks {
		if existing.ID != item.ID {
			continue
		}
		if item.HasDefaultCounters() && !existing.HasDefaultCounters() {
			item.LikesCount = existing.LikesCount
			item.DislikesCount = existing.DislikesCount
			item.IsLiked = existing.IsLiked
			item.IsDisliked = existing.IsDisliked
		}
		o.tracks[i] = item
		return item
	}
	return item
}

// upsertTrackLocked applies the same stale-counter rule to incoming
// library pages.
func (o *Orchestrator) upsertTrackLocked(incoming bird.Track) {
	for i, existing := range o.tracks {
		if existing.ID != incoming.ID {
			continue
		}
		if incoming.HasDefaultCounters() && !existing.HasDefaultCounters() {
			incoming.LikesCount = existing.LikesCount
			incoming.DislikesCount = existing.DislikesCount
			incoming.IsLiked = existing.IsLiked
			incoming.IsDisliked = existing.IsDisliked
		}
		o.tracks[i] = incoming
		return
	}
	o.tracks = append(o.tracks, incoming)
}

func (o *Orchestrator) publishState() {
	if o.publish == nil {
		return
	}
	o.version.Add(1)
	o.publish(o.Snapshot())
}
