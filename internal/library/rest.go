package library

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vjiki/music-ios-bird/pkg/bird"
)

// RESTClient talks to the backend track service. It implements both
// TrackSource and EngagementSink.
type RESTClient struct {
	log     *zap.Logger
	baseURL string
	client  *http.Client
}

// NewRESTClient creates a client for the service at baseURL. A nil
// http client gets a default with a request timeout.
func NewRESTClient(log *zap.Logger, baseURL string, client *http.Client) *RESTClient {
	if log == nil {
		log = zap.NewNop()
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &RESTClient{
		log:     log,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// ListTracks fetches one page of the track listing.
func (c *RESTClient) ListTracks(ctx context.Context, offset, limit int) ([]bird.Track, bool, error) {
	endpoint := c.baseURL + "/api/v1/tracks?" + url.Values{
		"offset": []string{strconv.Itoa(offset)},
		"limit":  []string{strconv.Itoa(limit)},
	}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("list tracks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("list tracks: unexpected status %d", resp.StatusCode)
	}

	var page struct {
		Tracks  []bird.Track `json:"tracks"`
		HasMore bool         `json:"hasMore"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, false, fmt.Errorf("decode track page: %w", err)
	}
	return page.Tracks, page.HasMore, nil
}

// SendReaction posts an engagement event for the track. The reaction
// is recorded optimistically on the caller's side; a failure here is
// returned for logging only.
func (c *RESTClient) SendReaction(ctx context.Context, userID, trackID, polarity string) error {
	payload, err := json.Marshal(map[string]string{
		"userId": userID,
		"type":   polarity,
	})
	if err != nil {
		return fmt.Errorf("marshal reaction: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/tracks/%s/reactions", c.baseURL, url.PathEscape(trackID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send reaction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("send reaction: unexpected status %d", resp.StatusCode)
	}
	return nil
}
