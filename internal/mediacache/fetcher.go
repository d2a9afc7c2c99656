package mediacache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Fetcher bridges "is this cached" and "give me bytes". Resolution is
// synchronous and cheap; downloads always happen off the playback
// path. Caching is an optimization, never a correctness dependency:
// every failure here is logged and swallowed.
type Fetcher struct {
	log    *zap.Logger
	cache  *Cache
	client *http.Client

	mu      sync.Mutex
	pending map[string]chan struct{}
}

// NewFetcher creates a fetcher over the cache. A nil client gets a
// default with a generous download timeout.
func NewFetcher(log *zap.Logger, cache *Cache, client *http.Client) *Fetcher {
	if log == nil {
		log = zap.NewNop()
	}
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Fetcher{
		log:     log,
		cache:   cache,
		client:  client,
		pending: map[string]chan struct{}{},
	}
}

// ResolveSource returns the source playback should use right now and
// whether a background fetch should be started. Manifest URLs pass
// through verbatim and are never cached. A cache miss returns the
// remote URL immediately; playback must not wait for bytes to land.
func (f *Fetcher) ResolveSource(class Class, rawURL string) (string, bool) {
	if rawURL == "" {
		return "", false
	}
	if IsManifestURL(rawURL) {
		return rawURL, false
	}
	if path, ok := f.cache.LocalPath(class, rawURL); ok {
		return path, false
	}
	return rawURL, true
}

// FetchAndStore downloads the asset once and commits it to the cache.
// Concurrent calls for the same URL coalesce on the first in-flight
// download. The returned error is informational; callers running this
// in the background are expected to drop it.
func (f *Fetcher) FetchAndStore(ctx context.Context, class Class, rawURL string, meta *Metadata) error {
	if rawURL == "" || IsManifestURL(rawURL) {
		return nil
	}

	key := DeriveKey(rawURL)
	f.mu.Lock()
	if done, inFlight := f.pending[key]; inFlight {
		f.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	}
	done := make(chan struct{})
	f.pending[key] = done
	f.mu.Unlock()

	defer func() {
		close(done)
		f.mu.Lock()
		delete(f.pending, key)
		f.mu.Unlock()
	}()

	// Re-check after winning the pending slot; another process (or an
	// earlier fetch) may have landed the file already.
	if f.cache.Has(class, rawURL) {
		return nil
	}

	if err := f.download(ctx, class, rawURL, meta); err != nil {
		f.log.Warn("background fetch failed",
			zap.String("class", string(class)),
			zap.String("url", rawURL),
			zap.Error(err))
		return err
	}
	f.log.Debug("asset cached", zap.String("class", string(class)), zap.String("url", rawURL))
	return nil
}

func (f *Fetcher) download(ctx context.Context, class Class, rawURL string, meta *Metadata) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return f.cache.Put(class, rawURL, data, meta)
}
