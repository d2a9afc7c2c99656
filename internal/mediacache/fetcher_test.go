package mediacache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func TestResolveSourceManifestPassThrough(t *testing.T) {
	cache := newTestCache(t)
	fetcher := NewFetcher(nil, cache, nil)

	const url = "https://stream.example.com/master.m3u8?session=1"
	source, trigger := fetcher.ResolveSource(ClassAudio, url)
	if source != url {
		t.Fatalf("manifest url rewritten to %q", source)
	}
	if trigger {
		t.Fatalf("manifest url must never trigger caching")
	}

	// Even with a same-key file forced onto disk, manifests resolve remote.
	if err := cache.Put(ClassAudio, url, []byte("stale"), nil); err != nil {
		t.Fatalf("put: %v", err)
	}
	source, trigger = fetcher.ResolveSource(ClassAudio, url)
	if source != url || trigger {
		t.Fatalf("manifest resolution changed after cache mutation: %q %v", source, trigger)
	}
}

func TestResolveSourceMissThenHit(t *testing.T) {
	cache := newTestCache(t)
	fetcher := NewFetcher(nil, cache, nil)
	const url = "https://cdn.example.com/song.mp3"

	source, trigger := fetcher.ResolveSource(ClassAudio, url)
	if source != url {
		t.Fatalf("miss should resolve to remote url, got %q", source)
	}
	if !trigger {
		t.Fatalf("miss should trigger background fetch")
	}

	if err := cache.Put(ClassAudio, url, []byte("bytes"), nil); err != nil {
		t.Fatalf("put: %v", err)
	}
	source, trigger = fetcher.ResolveSource(ClassAudio, url)
	if trigger {
		t.Fatalf("hit should not trigger fetch")
	}
	if !strings.HasSuffix(source, ClassAudio.Ext()) {
		t.Fatalf("hit should resolve to local path, got %q", source)
	}
}

func TestFetchAndStore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("downloaded bytes"))
	}))
	defer server.Close()

	cache := newTestCache(t)
	fetcher := NewFetcher(nil, cache, server.Client())

	url := server.URL + "/track.mp3"
	if err := fetcher.FetchAndStore(context.Background(), ClassAudio, url, &Metadata{Title: "T"}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !cache.Has(ClassAudio, url) {
		t.Fatalf("expected cached after fetch")
	}
}

func TestFetchFailureLeavesNoEntry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	cache := newTestCache(t)
	fetcher := NewFetcher(nil, cache, server.Client())

	url := server.URL + "/broken.mp3"
	if err := fetcher.FetchAndStore(context.Background(), ClassAudio, url, nil); err == nil {
		t.Fatalf("expected error")
	}
	if cache.Has(ClassAudio, url) {
		t.Fatalf("failed download must not create a cache entry")
	}
}

func TestConcurrentFetchesCoalesce(t *testing.T) {
	var hits atomic.Int64
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte("slow bytes"))
	}))
	defer server.Close()

	cache := newTestCache(t)
	fetcher := NewFetcher(nil, cache, server.Client())
	url := server.URL + "/slow.mp3"

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = fetcher.FetchAndStore(context.Background(), ClassAudio, url, nil)
		}()
	}
	close(release)
	wg.Wait()

	if got := hits.Load(); got != 1 {
		t.Fatalf("expected one download, server saw %d", got)
	}
	if !cache.Has(ClassAudio, url) {
		t.Fatalf("expected cached after coalesced fetch")
	}
}
