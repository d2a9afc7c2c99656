package playqueue

import (
	"testing"

	"github.com/vjiki/music-ios-bird/pkg/bird"
)

func tracks(ids ...string) []bird.Track {
	out := make([]bird.Track, 0, len(ids))
	for _, id := range ids {
		out = append(out, bird.Track{ID: id, Title: "Track " + id, AudioURL: "https://cdn/" + id + ".mp3"})
	}
	return out
}

func activeIDs(s *State) []string {
	active := s.Active()
	ids := make([]string, 0, len(active))
	for _, track := range active {
		ids = append(ids, track.ID)
	}
	return ids
}

func TestConfigureEmptyIsNoop(t *testing.T) {
	s := New()
	if s.Configure(nil, "") {
		t.Fatalf("empty playlist should be a no-op")
	}
	if _, ok := s.Current(); ok {
		t.Fatalf("cursor defined on empty queue")
	}
}

func TestConfigureSelectsCursor(t *testing.T) {
	s := New()
	if !s.Configure(tracks("a", "b", "c"), "b") {
		t.Fatalf("configure failed")
	}
	cur, ok := s.Current()
	if !ok || cur.ID != "b" {
		t.Fatalf("expected cursor at b, got %+v", cur)
	}
}

func TestShuffleKeepsSelectedFirst(t *testing.T) {
	s := New()
	s.SetShuffle(true)
	if !s.Configure(tracks("a", "b", "c", "d"), "c") {
		t.Fatalf("configure failed")
	}
	cur, ok := s.Current()
	if !ok || cur.ID != "c" {
		t.Fatalf("expected current c, got %+v", cur)
	}
	ids := activeIDs(s)
	if ids[0] != "c" {
		t.Fatalf("shuffled order must start with selected item, got %v", ids)
	}
	if len(ids) != 4 {
		t.Fatalf("shuffle changed length: %v", ids)
	}
}

func TestToggleShuffleTwiceRestoresOriginal(t *testing.T) {
	s := New()
	s.Configure(tracks("a", "b", "c", "d"), "b")

	s.ToggleShuffle()
	if cur, _ := s.Current(); cur.ID != "b" {
		t.Fatalf("shuffle on moved current item to %s", cur.ID)
	}
	s.ToggleShuffle()

	ids := activeIDs(s)
	want := []string{"a", "b", "c", "d"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("active order not restored: %v", ids)
		}
	}
	cur, ok := s.Current()
	if !ok || cur.ID != "b" {
		t.Fatalf("cursor lost identity: %+v", cur)
	}
}

func TestNextIndexRepeatAllWraps(t *testing.T) {
	s := New()
	s.Configure(tracks("a", "b", "c"), "c")
	s.SetRepeat(RepeatAll)

	next, ok := s.NextIndex()
	if !ok || next != 0 {
		t.Fatalf("expected wrap to 0, got %d ok=%v", next, ok)
	}
}

func TestNextIndexRepeatOffBoundary(t *testing.T) {
	s := New()
	s.Configure(tracks("a", "b", "c"), "c")

	if _, ok := s.NextIndex(); ok {
		t.Fatalf("expected no next at end of list with repeat off")
	}
}

func TestPrevIndexWrapsToEnd(t *testing.T) {
	s := New()
	s.Configure(tracks("a", "b", "c"), "a")

	prev, ok := s.PrevIndex()
	if !ok || prev != 2 {
		t.Fatalf("expected wrap to last index, got %d ok=%v", prev, ok)
	}

	s.SetCursor(2)
	prev, ok = s.PrevIndex()
	if !ok || prev != 1 {
		t.Fatalf("expected 1, got %d ok=%v", prev, ok)
	}
}

func TestSetCursorBounds(t *testing.T) {
	s := New()
	s.Configure(tracks("a", "b"), "a")

	if s.SetCursor(5) {
		t.Fatalf("out-of-range cursor accepted")
	}
	if !s.SetCursor(1) {
		t.Fatalf("valid cursor rejected")
	}
	if cur, _ := s.Current(); cur.ID != "b" {
		t.Fatalf("cursor not moved")
	}
}

func TestCycleRepeat(t *testing.T) {
	s := New()
	modes := []RepeatMode{RepeatAll, RepeatOne, RepeatOff}
	for _, want := range modes {
		if got := s.CycleRepeat(); got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
}

func TestUpdateTrackSyncsBothOrders(t *testing.T) {
	s := New()
	s.SetShuffle(true)
	s.Configure(tracks("a", "b", "c"), "a")

	s.UpdateTrack(bird.Track{ID: "b", Title: "Track b", LikesCount: 7, IsLiked: true})

	for _, track := range s.Active() {
		if track.ID == "b" && track.LikesCount != 7 {
			t.Fatalf("active copy not updated: %+v", track)
		}
	}
	s.ToggleShuffle() // back to original order
	for _, track := range s.Active() {
		if track.ID == "b" && track.LikesCount != 7 {
			t.Fatalf("original copy not updated: %+v", track)
		}
	}
}

func TestSnapshotPaging(t *testing.T) {
	s := New()
	s.Configure(tracks("a", "b", "c", "d"), "a")

	page := s.Snapshot(1, 2)
	if page.Length != 4 || len(page.Tracks) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Tracks[0].ID != "b" || page.Tracks[1].ID != "c" {
		t.Fatalf("unexpected page tracks: %+v", page.Tracks)
	}
}
