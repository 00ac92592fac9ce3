package localsource

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"time"

	"github.com/nfnt/resize"
	"golang.org/x/sync/singleflight"

	"github.com/anacrolix/mediabrowse/cache"
	"github.com/anacrolix/mediabrowse/mediasource"
)

const (
	DefaultThumbnailSize = 256
	MaxThumbnailSize     = 1024
)

type Thumbnail struct {
	MimeType string
	Data     []byte
}

type thumbnailer struct {
	group singleflight.Group
	cache *cache.Cache[string, time.Time, Thumbnail]
}

func newThumbnailer() *thumbnailer {
	return &thumbnailer{cache: cache.New[string, time.Time, Thumbnail]()}
}

// Thumbnail scales an image file to fit within width by height, keeping the aspect ratio. Sizes of zero
// use the default, and larger sizes than the maximum are clamped. Concurrent requests for the same
// thumbnail share one decode.
func (me *Source) Thumbnail(sourceDir, name string, width, height uint) (Thumbnail, error) {
	f, err := me.Open(sourceDir, name)
	if err != nil {
		return Thumbnail{}, err
	}
	if !mimeType(f.MimeType).IsImage() {
		return Thumbnail{}, mediasource.Unresolvablef("Path is not an image.")
	}
	width, height = clampThumbnailSize(width), clampThumbnailSize(height)
	key := fmt.Sprintf("%s:%dx%d", f.Path, width, height)
	v, err, _ := me.thumbnails.group.Do(key, func() (any, error) {
		return me.thumbnails.cache.Get(key, f.Info.ModTime(), func() (Thumbnail, error) {
			return makeThumbnail(f.Path, width, height)
		})
	})
	if err != nil {
		return Thumbnail{}, mediasource.Errorf(mediasource.FaultResolve, err, "Thumbnail failed: %v", err)
	}
	return v.(Thumbnail), nil
}

func clampThumbnailSize(s uint) uint {
	if s == 0 {
		return DefaultThumbnailSize
	}
	if s > MaxThumbnailSize {
		return MaxThumbnailSize
	}
	return s
}

func makeThumbnail(path string, width, height uint) (ret Thumbnail, err error) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	img, format, err := image.Decode(f)
	if err != nil {
		return
	}
	img = resize.Thumbnail(width, height, img, resize.Lanczos3)
	var buf bytes.Buffer
	if format == "png" {
		ret.MimeType = "image/png"
		err = png.Encode(&buf, img)
	} else {
		ret.MimeType = "image/jpeg"
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85})
	}
	ret.Data = buf.Bytes()
	return
}
