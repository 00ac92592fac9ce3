package localsource

import (
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/anacrolix/mediabrowse/mediasource"
)

// Systems without a mime.types file know few media extensions.
func init() {
	for ext, mt := range map[string]string{
		".rmvb": "application/vnd.rn-realmedia-vbr",
		".ogv":  "video/ogg",
		".ogg":  "audio/ogg",
		".flac": "audio/flac",
		".mp3":  "audio/mpeg",
		".m4a":  "audio/mp4",
		".wav":  "audio/wav",
		".mkv":  "video/x-matroska",
		".mp4":  "video/mp4",
		".m4v":  "video/mp4",
		".mpg":  "video/mpeg",
		".avi":  "video/x-msvideo",
		".webm": "video/webm",
	} {
		if err := mime.AddExtensionType(ext, mt); err != nil {
			panic(err)
		}
	}
}

// Example: "video/mpeg"
type mimeType string

func (mt mimeType) IsMedia() bool {
	return mt.IsVideo() || mt.IsAudio() || mt.IsImage()
}

func (mt mimeType) IsVideo() bool {
	return strings.HasPrefix(string(mt), "video/") || mt == "application/vnd.rn-realmedia-vbr"
}

func (mt mimeType) IsAudio() bool {
	return strings.HasPrefix(string(mt), "audio/")
}

func (mt mimeType) IsImage() bool {
	return strings.HasPrefix(string(mt), "image/")
}

func (mt mimeType) MediaClass() mediasource.MediaClass {
	switch {
	case mt.IsVideo():
		return mediasource.ClassVideo
	case mt.IsAudio():
		return mediasource.ClassMusic
	case mt.IsImage():
		return mediasource.ClassImage
	}
	return mediasource.ClassURL
}

func (mt mimeType) String() string {
	return string(mt)
}

// mimeTypeByPath guesses from the name, falling back to sniffing the content. name is relative to fsys.
func mimeTypeByPath(fsys fs.FS, name string) (ret mimeType) {
	defer func() {
		if ret == "video/x-msvideo" {
			ret = "video/avi"
		}
	}()
	ret = mimeTypeByBaseName(path.Base(name))
	if ret != "" {
		return
	}
	ret, _ = mimeTypeByContent(fsys, name)
	return
}

// Peels off extensions given to incomplete files, such as ".part".
func mimeTypeByBaseName(name string) mimeType {
	for name != "" {
		ext := strings.ToLower(path.Ext(name))
		if ext == "" {
			break
		}
		ret := mimeType(mime.TypeByExtension(ext))
		if i := strings.IndexByte(string(ret), ';'); i >= 0 {
			ret = ret[:i]
		}
		if ret.IsMedia() {
			return ret
		}
		if ext != ".part" {
			return ""
		}
		name = strings.TrimSuffix(name, path.Ext(name))
	}
	return ""
}

func mimeTypeByContent(fsys fs.FS, name string) (ret mimeType, err error) {
	f, err := fsys.Open(name)
	if err != nil {
		return
	}
	defer f.Close()
	var data [512]byte
	n, err := f.Read(data[:])
	if err != nil {
		return
	}
	ret = mimeType(http.DetectContentType(data[:n]))
	if i := strings.IndexByte(string(ret), ';'); i >= 0 {
		ret = ret[:i]
	}
	return
}
