package library

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/vjiki/music-ios-bird/pkg/bird"
)

// FeedSource serves tracks out of one or more podcast/RSS feeds. The
// feeds are fetched lazily on first listing and cached for the
// process lifetime; entries carry no social counters.
type FeedSource struct {
	log    *zap.Logger
	parser *gofeed.Parser
	urls   []string

	mu     sync.Mutex
	loaded bool
	tracks []bird.Track
}

// NewFeedSource creates a source over the given feed URLs.
func NewFeedSource(log *zap.Logger, urls []string) *FeedSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &FeedSource{
		log:    log,
		parser: gofeed.NewParser(),
		urls:   urls,
	}
}

// ListTracks pages through the combined feed entries.
func (s *FeedSource) ListTracks(ctx context.Context, offset, limit int) ([]bird.Track, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		s.refreshLocked(ctx)
		s.loaded = true
	}

	if offset < 0 {
		offset = 0
	}
	if offset >= len(s.tracks) {
		return nil, false, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(s.tracks) {
		end = len(s.tracks)
	}
	page := make([]bird.Track, end-offset)
	copy(page, s.tracks[offset:end])
	return page, end < len(s.tracks), nil
}

// refreshLocked pulls every configured feed. A broken feed is logged
// and skipped so one bad URL does not empty the whole listing.
func (s *FeedSource) refreshLocked(ctx context.Context) {
	var tracks []bird.Track
	for _, feedURL := range s.urls {
		feed, err := s.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			s.log.Warn("feed fetch failed", zap.String("url", feedURL), zap.Error(err))
			continue
		}
		for _, item := range feed.Items {
			track, ok := feedItemTrack(feed, item)
			if !ok {
				continue
			}
			tracks = append(tracks, track)
		}
	}
	s.tracks = tracks
}

func feedItemTrack(feed *gofeed.Feed, item *gofeed.Item) (bird.Track, bool) {
	audioURL := ""
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if strings.HasPrefix(enc.Type, "audio/") || hasAudioExt(enc.URL) {
			audioURL = enc.URL
			break
		}
	}
	if audioURL == "" {
		return bird.Track{}, false
	}

	id := item.GUID
	if id == "" {
		id = audioURL
	}
	artist := feed.Title
	if item.Author != nil && item.Author.Name != "" {
		artist = item.Author.Name
	}
	coverURL := ""
	if item.Image != nil {
		coverURL = item.Image.URL
	} else if feed.Image != nil {
		coverURL = feed.Image.URL
	}
	durationMS := int64(0)
	if item.ITunesExt != nil {
		durationMS = parseFeedDuration(item.ITunesExt.Duration)
	}

	return bird.Track{
		ID:         id,
		Title:      item.Title,
		Artist:     artist,
		AudioURL:   audioURL,
		CoverURL:   coverURL,
		DurationMS: durationMS,
	}, true
}

func hasAudioExt(rawURL string) bool {
	trimmed := rawURL
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	switch {
	case strings.HasSuffix(trimmed, ".mp3"),
		strings.HasSuffix(trimmed, ".m4a"),
		strings.HasSuffix(trimmed, ".aac"),
		strings.HasSuffix(trimmed, ".ogg"):
		return true
	}
	return false
}

// parseFeedDuration accepts plain seconds or [HH:]MM:SS.
func parseFeedDuration(raw string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	if !strings.Contains(raw, ":") {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || secs < 0 {
			return 0
		}
		return secs * 1000
	}
	parts := strings.Split(raw, ":")
	if len(parts) > 3 {
		return 0
	}
	total := int64(0)
	for _, part := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || v < 0 {
			return 0
		}
		total = total*60 + v
	}
	return total * 1000
}
