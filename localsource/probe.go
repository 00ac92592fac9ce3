package localsource

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/anacrolix/ffprobe"
	"github.com/anacrolix/log"

	"github.com/anacrolix/mediabrowse/cache"
	"github.com/anacrolix/mediabrowse/dlna"
)

// ProbeFunc inspects a media file. ffprobe.Run is the usual one.
type ProbeFunc func(path string) (*ffprobe.Info, error)

// Metadata is attached to resolved local media.
type Metadata struct {
	// Relative to the source dir.
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	Duration   string `json:"duration,omitempty"`
	Bitrate    uint   `json:"bitrate,omitempty"`
	Resolution string `json:"resolution,omitempty"`
}

type prober struct {
	probe  ProbeFunc
	cache  *cache.Cache[string, time.Time, *ffprobe.Info]
	logger log.Logger
}

func newProber(probe ProbeFunc, logger log.Logger) *prober {
	return &prober{
		probe:  probe,
		cache:  cache.New[string, time.Time, *ffprobe.Info](),
		logger: logger,
	}
}

// Info returns nil if probing is disabled or ffprobe isn't installed. Results are kept until the file
// changes.
func (me *prober) Info(path string, fi os.FileInfo) *ffprobe.Info {
	if me.probe == nil {
		return nil
	}
	info, err := me.cache.Get(path, fi.ModTime(), func() (*ffprobe.Info, error) {
		return me.probe(path)
	})
	if errors.Is(err, ffprobe.ExeNotFound) {
		return nil
	}
	if err != nil {
		me.logger.Levelf(log.Warning, "error probing %q: %v", path, err)
		return nil
	}
	return info
}

func (me *prober) Metadata(path string, fi os.FileInfo) (ret Metadata) {
	ret.Size = fi.Size()
	info := me.Info(path, fi)
	if info == nil {
		return
	}
	if _, ok := info.Format["duration"]; ok {
		if d, err := info.Duration(); err == nil && d > 0 {
			ret.Duration = dlna.FormatNPTTime(d)
		}
	}
	if br, ok := info.Format["bit_rate"]; ok {
		fmt.Sscan(fmt.Sprint(br), &ret.Bitrate)
	}
	ret.Resolution = resolution(info)
	return
}

func resolution(info *ffprobe.Info) string {
	for _, strm := range info.Streams {
		if fmt.Sprint(strm["codec_type"]) != "video" {
			continue
		}
		width, height := strm["width"], strm["height"]
		if width != nil && height != nil {
			return fmt.Sprintf("%vx%v", width, height)
		}
	}
	return ""
}
