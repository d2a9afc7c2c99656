package mediacache

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dhowden/tag"
	"go.uber.org/zap"
)

// Class identifies an asset class. Each class has its own cache
// directory and file extension.
type Class string

// Supported asset classes.
const (
	ClassImage Class = "image"
	ClassAudio Class = "audio"
	ClassVideo Class = "video"
)

// Classes lists all asset classes in a stable order.
var Classes = []Class{ClassImage, ClassAudio, ClassVideo}

// ParseClass validates a class name from the wire.
func ParseClass(name string) (Class, error) {
	switch Class(strings.ToLower(strings.TrimSpace(name))) {
	case ClassImage:
		return ClassImage, nil
	case ClassAudio:
		return ClassAudio, nil
	case ClassVideo:
		return ClassVideo, nil
	default:
		return "", fmt.Errorf("unknown asset class %q", name)
	}
}

// Dir returns the class subdirectory name.
func (c Class) Dir() string {
	switch c {
	case ClassImage:
		return "images"
	case ClassAudio:
		return "audio"
	default:
		return "video"
	}
}

// Ext returns the fixed file extension for the class.
func (c Class) Ext() string {
	switch c {
	case ClassImage:
		return ".jpg"
	case ClassAudio:
		return ".mp3"
	default:
		return ".mp4"
	}
}

// Metadata is the descriptive record persisted per cached asset.
// Decoding tolerates missing optional fields.
type Metadata struct {
	URL      string `json:"url"`
	Title    string `json:"title,omitempty"`
	Artist   string `json:"artist,omitempty"`
	CoverURL string `json:"coverUrl,omitempty"`
}

const sidecarName = "metadata.json"

// Cache is a content-addressable on-disk store for remote assets,
// keyed by their canonical URL. Binary payloads live next to one
// metadata.json sidecar per class; the file on disk is the source of
// truth for "is this cached", never the in-memory sidecar map.
type Cache struct {
	log  *zap.Logger
	root string

	mu   sync.Mutex
	meta map[Class]map[string]Metadata
}

// New creates the class directories under root and loads any
// persisted sidecars.
func New(log *zap.Logger, root string) (*Cache, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("cache root required")
	}
	for _, class := range Classes {
		if err := os.MkdirAll(filepath.Join(root, class.Dir()), 0o755); err != nil {
			return nil, err
		}
	}

	c := &Cache{log: log, root: root, meta: map[Class]map[string]Metadata{}}
	c.mu.Lock()
	c.reloadSidecarsLocked()
	c.mu.Unlock()
	return c, nil
}

// DeriveKey maps a remote URL to a stable cache key: a sha1 digest
// plus a sanitized tail of the URL for debuggability. Pure function
// of the URL string.
func DeriveKey(rawURL string) string {
	digest := sha1.Sum([]byte(rawURL))
	return hex.EncodeToString(digest[:]) + "-" + sanitizedTail(rawURL, 24)
}

// IsManifestURL reports whether the URL identifies an adaptive
// streaming playlist. Manifests are streamed natively by the engine
// and never cached.
func IsManifestURL(rawURL string) bool {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	} else {
		// Unparsable URL: strip query/fragment by hand.
		if i := strings.IndexAny(path, "?#"); i >= 0 {
			path = path[:i]
		}
	}
	return strings.HasSuffix(strings.ToLower(path), ".m3u8")
}

// Path returns the deterministic local path for a URL, whether or not
// the file exists.
func (c *Cache) Path(class Class, rawURL string) string {
	return filepath.Join(c.root, class.Dir(), DeriveKey(rawURL)+class.Ext())
}

// Has reports whether the asset is present on disk. It re-derives the
// key and stats the file, so it is safe on a cold start with no
// sidecar loaded.
func (c *Cache) Has(class Class, rawURL string) bool {
	info, err := os.Stat(c.Path(class, rawURL))
	return err == nil && !info.IsDir() && info.Size() > 0
}

// LocalPath returns a usable local path only if the file is actually
// present at call time.
func (c *Cache) LocalPath(class Class, rawURL string) (string, bool) {
	if !c.Has(class, rawURL) {
		return "", false
	}
	return c.Path(class, rawURL), true
}

// Put commits bytes to the deterministic path and persists metadata.
// The write is atomic (tmp file + rename); a failure leaves no entry.
func (c *Cache) Put(class Class, rawURL string, data []byte, meta *Metadata) error {
	path := c.Path(class, rawURL)
	tmp := fmt.Sprintf("%s.tmp.%d", path, time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	record := Metadata{URL: rawURL}
	if meta != nil {
		record = *meta
		record.URL = rawURL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.meta[class] == nil {
		c.meta[class] = map[string]Metadata{}
	}
	c.meta[class][DeriveKey(rawURL)] = record
	if err := c.saveSidecarLocked(class); err != nil {
		// Metadata persistence is best effort; the payload is committed.
		c.log.Debug("sidecar save failed", zap.String("class", string(class)), zap.Error(err))
	}
	return nil
}

// Remove deletes a single asset and its metadata entry.
func (c *Cache) Remove(class Class, rawURL string) error {
	if err := os.Remove(c.Path(class, rawURL)); err != nil && !os.IsNotExist(err) {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.meta[class], DeriveKey(rawURL))
	return c.saveSidecarLocked(class)
}

// Clear removes all files for the given classes (all classes when
// none are given), resets the metadata maps, and reloads sidecar
// state from disk so callers never observe phantom entries.
func (c *Cache) Clear(classes ...Class) error {
	if len(classes) == 0 {
		classes = Classes
	}

	var firstErr error
	for _, class := range classes {
		dir := filepath.Join(c.root, class.Dir())
		entries, err := os.ReadDir(dir)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	c.mu.Lock()
	for _, class := range classes {
		delete(c.meta, class)
	}
	c.reloadSidecarsLocked()
	c.mu.Unlock()
	return firstErr
}

// Size walks the class directories and sums file sizes. Always
// recomputed on demand; external mutation can happen between calls.
func (c *Cache) Size(classes ...Class) int64 {
	if len(classes) == 0 {
		classes = Classes
	}
	var total int64
	for _, class := range classes {
		dir := filepath.Join(c.root, class.Dir())
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
			return nil
		})
	}
	return total
}

// List returns metadata for every asset actually present on disk in
// the class, reconciling the sidecar against directory contents.
// Files without a sidecar entry get best-effort metadata rather than
// being dropped.
func (c *Cache) List(class Class) []Metadata {
	dir := filepath.Join(c.root, class.Dir())
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	c.mu.Lock()
	known := c.meta[class]
	c.mu.Unlock()

	items := make([]Metadata, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == sidecarName || strings.Contains(name, ".tmp.") {
			continue
		}
		key := strings.TrimSuffix(name, class.Ext())
		if meta, ok := known[key]; ok {
			items = append(items, meta)
			continue
		}
		items = append(items, c.reconstructMetadata(class, filepath.Join(dir, name), key))
	}
	return items
}

// reconstructMetadata builds degraded metadata for a payload whose
// sidecar entry is missing. Audio files get their embedded tags read;
// everything else falls back to the key's sanitized URL tail.
func (c *Cache) reconstructMetadata(class Class, path string, key string) Metadata {
	meta := Metadata{Title: tailOfKey(key)}
	if class != ClassAudio {
		return meta
	}
	f, err := os.Open(path)
	if err != nil {
		return meta
	}
	defer f.Close()
	tags, err := tag.ReadFrom(f)
	if err != nil {
		return meta
	}
	if title := strings.TrimSpace(tags.Title()); title != "" {
		meta.Title = title
	}
	meta.Artist = strings.TrimSpace(tags.Artist())
	return meta
}

func (c *Cache) sidecarPath(class Class) string {
	return filepath.Join(c.root, class.Dir(), sidecarName)
}

func (c *Cache) saveSidecarLocked(class Class) error {
	payload, err := json.MarshalIndent(c.meta[class], "", "  ")
	if err != nil {
		return err
	}
	path := c.sidecarPath(class)
	tmp := fmt.Sprintf("%s.tmp.%d", path, time.Now().UnixNano())
	if err := os.WriteFile(tmp, payload, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (c *Cache) reloadSidecarsLocked(classes ...Class) {
	if len(classes) == 0 {
		classes = Classes
	}
	for _, class := range classes {
		data, err := os.ReadFile(c.sidecarPath(class))
		if err != nil {
			c.meta[class] = map[string]Metadata{}
			continue
		}
		loaded := map[string]Metadata{}
		if err := json.Unmarshal(data, &loaded); err != nil {
			c.log.Debug("sidecar decode failed", zap.String("class", string(class)), zap.Error(err))
			loaded = map[string]Metadata{}
		}
		c.meta[class] = loaded
	}
}

// sanitizedTail keeps the last max bytes of the URL with unsafe
// characters collapsed, for a human-readable key suffix. Lossy by
// construction.
func sanitizedTail(rawURL string, max int) string {
	trimmed := rawURL
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	trimmed = strings.TrimPrefix(trimmed, "https://")
	trimmed = strings.TrimPrefix(trimmed, "http://")

	var b strings.Builder
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	tail := b.String()
	if len(tail) > max {
		tail = tail[len(tail)-max:]
	}
	return tail
}

func tailOfKey(key string) string {
	if i := strings.Index(key, "-"); i >= 0 && i+1 < len(key) {
		return key[i+1:]
	}
	return key
}
