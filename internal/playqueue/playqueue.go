// Package playqueue maintains the playback order, cursor, and mode
// state independent of what is actually playing.
package playqueue

import (
	"math/rand"
	"sync"
	"time"

	"github.com/vjiki/music-ios-bird/pkg/bird"
)

// RepeatMode governs next-index computation at playlist boundaries.
type RepeatMode string

// Repeat modes, cycled off -> all -> one -> off.
const (
	RepeatOff RepeatMode = "off"
	RepeatAll RepeatMode = "all"
	RepeatOne RepeatMode = "one"
)

// ParseRepeatMode validates a mode name from the wire.
func ParseRepeatMode(name string) (RepeatMode, bool) {
	switch RepeatMode(name) {
	case RepeatOff, RepeatAll, RepeatOne:
		return RepeatMode(name), true
	default:
		return "", false
	}
}

// State holds the ordered (possibly shuffled) view over a playlist
// with a single current cursor. The cursor, when defined, always
// indexes a valid element of the active order.
type State struct {
	mu       sync.Mutex
	original []bird.Track
	active   []bird.Track
	cursor   int
	shuffle  bool
	repeat   RepeatMode
	rng      *rand.Rand
}

// New creates an empty queue with no cursor.
func New() *State {
	return &State{
		cursor: -1,
		repeat: RepeatOff,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Configure replaces the playlist and selects the item to play. The
// active order keeps the selected item first when shuffle is on. An
// empty playlist is a no-op.
func (s *State) Configure(tracks []bird.Track, selectedID string) bool {
	if len(tracks) == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.original = append([]bird.Track(nil), tracks...)
	s.rebuildActiveLocked(selectedID)
	return true
}

// Current returns the track at the cursor.
func (s *State) Current() (bird.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor < 0 || s.cursor >= len(s.active) {
		return bird.Track{}, false
	}
	return s.active[s.cursor], true
}

// At returns the track at an index of the active order.
func (s *State) At(index int) (bird.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.active) {
		return bird.Track{}, false
	}
	return s.active[index], true
}

// NextIndex computes the index after the cursor. At the end of the
// list it wraps only under repeat-all; otherwise there is no next and
// the caller decides what to do.
func (s *State) NextIndex() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.active) == 0 || s.cursor < 0 {
		return 0, false
	}
	if s.cursor+1 < len(s.active) {
		return s.cursor + 1, true
	}
	if s.repeat == RepeatAll {
		return 0, true
	}
	return 0, false
}

// PrevIndex computes the index before the cursor, wrapping to the end
// of the list at the front.
func (s *State) PrevIndex() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.active) == 0 || s.cursor < 0 {
		return 0, false
	}
	if s.cursor-1 >= 0 {
		return s.cursor - 1, true
	}
	return len(s.active) - 1, true
}

// SetCursor jumps the cursor directly. Out-of-range indices are a
// no-op.
func (s *State) SetCursor(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.active) {
		return false
	}
	s.cursor = index
	return true
}

// UpdateTrack replaces the stored copies of a track in both orders,
// keeping social counters in sync with the library.
func (s *State) UpdateTrack(track bird.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.original {
		if s.original[i].ID == track.ID {
			s.original[i] = track
		}
	}
	for i := range s.active {
		if s.active[i].ID == track.ID {
			s.active[i] = track
		}
	}
}

// ToggleShuffle flips shuffle mode, preserving the identity of the
// current item. The active order is always re-derived from the
// original order, never from the previous shuffle.
func (s *State) ToggleShuffle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shuffle = !s.shuffle
	s.rebuildActiveLocked(s.currentIDLocked())
	return s.shuffle
}

// SetShuffle sets shuffle mode explicitly.
func (s *State) SetShuffle(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shuffle == on {
		return
	}
	s.shuffle = on
	s.rebuildActiveLocked(s.currentIDLocked())
}

// Shuffle reports the current shuffle flag.
func (s *State) Shuffle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuffle
}

// CycleRepeat advances the repeat mode.
func (s *State) CycleRepeat() RepeatMode {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.repeat {
	case RepeatOff:
		s.repeat = RepeatAll
	case RepeatAll:
		s.repeat = RepeatOne
	default:
		s.repeat = RepeatOff
	}
	return s.repeat
}

// SetRepeat sets the repeat mode explicitly.
func (s *State) SetRepeat(mode RepeatMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repeat = mode
}

// Repeat reports the current repeat mode.
func (s *State) Repeat() RepeatMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repeat
}

// Snapshot returns a page of the active order.
func (s *State) Snapshot(from int64, count int64) bird.QueueGetReply {
	s.mu.Lock()
	defer s.mu.Unlock()

	length := int64(len(s.active))
	start := clamp(from, length)
	if count <= 0 {
		count = length
	}
	end := clamp(from+count, length)
	tracks := append([]bird.Track(nil), s.active[start:end]...)
	return bird.QueueGetReply{Index: int64(s.cursor), Length: length, Tracks: tracks}
}

// Summary returns the queue summary for state publication.
func (s *State) Summary() bird.QueueState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bird.QueueState{Length: int64(len(s.active)), Index: int64(s.cursor)}
}

// Active returns a copy of the active order.
func (s *State) Active() []bird.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bird.Track(nil), s.active...)
}

func (s *State) currentIDLocked() string {
	if s.cursor < 0 || s.cursor >= len(s.active) {
		return ""
	}
	return s.active[s.cursor].ID
}

// rebuildActiveLocked derives the active order from the original
// order for the current shuffle flag and re-locates the cursor by
// item identity.
func (s *State) rebuildActiveLocked(selectedID string) {
	if len(s.original) == 0 {
		s.active = nil
		s.cursor = -1
		return
	}

	selected := 0
	for i, track := range s.original {
		if track.ID == selectedID {
			selected = i
			break
		}
	}

	if !s.shuffle {
		s.active = append([]bird.Track(nil), s.original...)
		s.cursor = selected
		return
	}

	rest := make([]bird.Track, 0, len(s.original)-1)
	for i, track := range s.original {
		if i != selected {
			rest = append(rest, track)
		}
	}
	s.rng.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})
	s.active = append([]bird.Track{s.original[selected]}, rest...)
	s.cursor = 0
}

func clamp(index int64, max int64) int64 {
	if index < 0 {
		return 0
	}
	if index > max {
		return max
	}
	return index
}
