package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vjiki/music-ios-bird/internal/library"
	"github.com/vjiki/music-ios-bird/pkg/bird"
)

const reactionTimeout = 10 * time.Second

// Like records a like on the current track. Likes accumulate: every
// call increments the counter, and a set like flag is never cleared
// by liking again. A standing dislike is cleared and its counter
// stepped back by at most one. This mirrors the backend's engagement
// event semantics and is deliberately not a mutually exclusive
// toggle.
func (o *Orchestrator) Like() {
	o.react(library.ReactionLike)
}

// Dislike is the mirror image of Like.
func (o *Orchestrator) Dislike() {
	o.react(library.ReactionDislike)
}

func (o *Orchestrator) react(polarity string) {
	t, ok := o.queue.Current()
	if !ok {
		return
	}

	applyReaction(&t, polarity)
	o.queue.UpdateTrack(t)

	o.mu.Lock()
	for i, existing := range o.tracks {
		if existing.ID == t.ID {
			o.tracks[i] = t
			break
		}
	}
	o.mu.Unlock()

	// Optimistic local state stands even if the remote call fails.
	if o.engagement != nil {
		userID := o.identity.UserID()
		trackID := t.ID
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), reactionTimeout)
			defer cancel()
			if err := o.engagement.SendReaction(ctx, userID, trackID, polarity); err != nil {
				o.log.Warn("reaction not delivered",
					zap.String("track", trackID),
					zap.String("polarity", polarity),
					zap.Error(err))
			}
		}()
	}

	o.publishState()
}

func applyReaction(t *bird.Track, polarity string) {
	switch polarity {
	case library.ReactionLike:
		if !t.IsLiked {
			t.IsLiked = true
			if t.IsDisliked {
				t.IsDisliked = false
				if t.DislikesCount > 0 {
					t.DislikesCount--
				}
			}
		}
		t.LikesCount++
	case library.ReactionDislike:
		if !t.IsDisliked {
			t.IsDisliked = true
			if t.IsLiked {
				t.IsLiked = false
				if t.LikesCount > 0 {
					t.LikesCount--
				}
			}
		}
		t.DislikesCount++
	}
}
