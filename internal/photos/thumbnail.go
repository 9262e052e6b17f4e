package photos

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nfnt/resize"

	"photo-gallery/internal/models"
)

const (
	// DefaultThumbnailSize bounds both thumbnail dimensions.
	DefaultThumbnailSize = 300
	// DefaultThumbnailCacheEntries bounds how many thumbnails stay in memory.
	DefaultThumbnailCacheEntries = 512
)

// Thumbnailer renders JPEG thumbnails of photos and keeps the most recently
// used ones in memory.
type Thumbnailer struct {
	size  uint
	cache *lru.Cache[string, []byte]
}

// NewThumbnailer creates a Thumbnailer bounding images to size×size pixels
// and caching at most entries thumbnails. Zero values select the defaults.
func NewThumbnailer(size uint, entries int) *Thumbnailer {
	if size == 0 {
		size = DefaultThumbnailSize
	}
	if entries <= 0 {
		entries = DefaultThumbnailCacheEntries
	}
	cache, err := lru.New[string, []byte](entries)
	if err != nil {
		// Only reachable with a non-positive size.
		panic(err)
	}
	return &Thumbnailer{size: size, cache: cache}
}

// Thumbnail returns the JPEG thumbnail of p.
func (t *Thumbnailer) Thumbnail(p models.Photo) ([]byte, error) {
	sum := sha256.Sum256([]byte(p.URL))
	cacheKey := p.ID + ":" + hex.EncodeToString(sum[:8])

	if cached, ok := t.cache.Get(cacheKey); ok {
		return cached, nil
	}

	_, data, err := ParseDataURL(p.URL)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	thumb := resize.Thumbnail(t.size, t.size, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	out := buf.Bytes()

	t.cache.Add(cacheKey, out)
	return out, nil
}

// Forget drops every cached thumbnail of the photo with the given id.
func (t *Thumbnailer) Forget(id string) {
	prefix := id + ":"
	for _, k := range t.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			t.cache.Remove(k)
		}
	}
}

// Len returns the number of cached thumbnails.
func (t *Thumbnailer) Len() int {
	return t.cache.Len()
}
