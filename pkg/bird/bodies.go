package bird

// PlaybackPlayBody is the payload for playback.play. A track starts
// it in the given list (or alone); a bare index jumps within the
// current queue; an empty body resumes the current item.
type PlaybackPlayBody struct {
	Track  *Track  `json:"track,omitempty"`
	Tracks []Track `json:"tracks,omitempty"`
	Index  *int64  `json:"index,omitempty"`
}

// PlaybackSeekBody is the payload for playback.seek.
type PlaybackSeekBody struct {
	PositionMS int64 `json:"positionMs"`
}

// PlaybackSetVolumeBody is the payload for playback.setVolume.
type PlaybackSetVolumeBody struct {
	Volume float64 `json:"volume"`
}

// PlaybackSetMuteBody is the payload for playback.setMute.
type PlaybackSetMuteBody struct {
	Mute bool `json:"mute"`
}

// QueueSetShuffleBody is the payload for queue.setShuffle.
type QueueSetShuffleBody struct {
	Shuffle bool `json:"shuffle"`
}

// QueueSetRepeatBody is the payload for queue.setRepeat.
// Mode is one of off|all|one; empty cycles to the next mode.
type QueueSetRepeatBody struct {
	Mode string `json:"mode,omitempty"`
}

// QueueJumpBody jumps the cursor to an index and starts playback.
type QueueJumpBody struct {
	Index int64 `json:"index"`
}

// QueueGetBody fetches queue entries.
type QueueGetBody struct {
	From  int64 `json:"from"`
	Count int64 `json:"count"`
}

// QueueGetReply is the reply body for queue.get.
type QueueGetReply struct {
	Index  int64   `json:"index"`
	Length int64   `json:"length"`
	Tracks []Track `json:"tracks"`
}

// CacheStatsReply is the reply body for cache.stats.
type CacheStatsReply struct {
	TotalBytes    int64            `json:"totalBytes"`
	PerClassBytes map[string]int64 `json:"perClassBytes"`
	MaxBytes      int64            `json:"maxBytes,omitempty"`
}

// CacheListBody is the payload for cache.list.
type CacheListBody struct {
	Class string `json:"class"`
}

// CacheListReply is the reply body for cache.list.
type CacheListReply struct {
	Items []CacheItem `json:"items"`
}

// CacheItem describes one cached asset for browsing UIs.
type CacheItem struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Artist   string `json:"artist,omitempty"`
	CoverURL string `json:"coverUrl,omitempty"`
}

// CacheClearBody is the payload for cache.clear. An empty class
// clears every class.
type CacheClearBody struct {
	Class string `json:"class,omitempty"`
}

// CacheRemoveBody is the payload for cache.remove.
type CacheRemoveBody struct {
	Class string `json:"class"`
	URL   string `json:"url"`
}
