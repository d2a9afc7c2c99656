// Package library holds the clients for the remote track catalogue
// and the engagement endpoint, plus the local identity provider.
package library

import (
	"context"

	"github.com/vjiki/music-ios-bird/pkg/bird"
)

// GuestUserID attributes engagement calls when no user is configured.
const GuestUserID = "guest"

// Reaction polarities accepted by the engagement endpoint.
const (
	ReactionLike    = "like"
	ReactionDislike = "dislike"
)

// TrackSource lists playable tracks a page at a time.
type TrackSource interface {
	ListTracks(ctx context.Context, offset, limit int) (tracks []bird.Track, hasMore bool, err error)
}

// EngagementSink records a like or dislike against a track. Callers
// treat it as fire and forget; implementations log failures.
type EngagementSink interface {
	SendReaction(ctx context.Context, userID, trackID, polarity string) error
}

// Identity supplies the stable user id attributed to engagement
// calls. It never gates playback.
type Identity struct {
	userID string
}

// NewIdentity wraps a configured user id.
func NewIdentity(userID string) *Identity {
	return &Identity{userID: userID}
}

// UserID returns the configured id, or the guest id when none is set.
func (i *Identity) UserID() string {
	if i == nil || i.userID == "" {
		return GuestUserID
	}
	return i.userID
}
