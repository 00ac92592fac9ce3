// Package localsource serves media from directories on the local filesystem.
package localsource

import (
	"context"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/anacrolix/log"

	"github.com/anacrolix/mediabrowse/futures"
	"github.com/anacrolix/mediabrowse/mediasource"
)

const (
	Domain      = "media_source"
	DefaultName = "My media"
)

// Source is the media_source domain. Identifiers are "<source dir id>/<slash separated relative path>".
type Source struct {
	name      string
	dirs      map[string]string
	dirOrder  []string
	publicURL string
	logger    log.Logger
	prober    *prober

	thumbnails *thumbnailer
}

var _ mediasource.MediaSource = (*Source)(nil)

type Config struct {
	Name string
	// Source dir id to directory.
	Dirs map[string]string
	// Prefix of the URLs resolved media is served at, such as "http://host:8200".
	PublicURL string
	// Nil disables probing.
	Probe ProbeFunc
}

func New(cfg Config, logger log.Logger) *Source {
	ret := &Source{
		name:      cfg.Name,
		dirs:      make(map[string]string, len(cfg.Dirs)),
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
		logger:    logger.WithNames(Domain),
	}
	if ret.name == "" {
		ret.name = DefaultName
	}
	for id, dir := range cfg.Dirs {
		ret.dirs[id] = dir
		ret.dirOrder = append(ret.dirOrder, id)
	}
	sort.Strings(ret.dirOrder)
	ret.prober = newProber(cfg.Probe, ret.logger)
	ret.thumbnails = newThumbnailer()
	return ret
}

func (me *Source) Domain() string { return Domain }
func (me *Source) Name() string   { return me.name }

// SourceDirs returns the source dir ids in order.
func (me *Source) SourceDirs() []string {
	return append([]string(nil), me.dirOrder...)
}

// location is a validated file or directory under a source dir.
type location struct {
	sourceDir string
	root      string
	// Relative, slash separated, "." for the root.
	name string
	fi   fs.FileInfo
}

func (me location) identifier() string {
	if me.name == "." {
		return me.sourceDir
	}
	return me.sourceDir + "/" + me.name
}

func (me location) path() string {
	return filepath.Join(me.root, filepath.FromSlash(me.name))
}

func (me *Source) locate(identifier string, fault mediasource.Fault) (loc location, err error) {
	sourceDir, name, _ := strings.Cut(identifier, "/")
	root, ok := me.dirs[sourceDir]
	if !ok {
		err = mediasource.Errorf(fault, nil, "Unknown source directory.")
		return
	}
	name = strings.TrimSuffix(name, "/")
	if name == "" {
		name = "."
	}
	if !fs.ValidPath(name) {
		err = mediasource.Errorf(fault, nil, "Invalid path.")
		return
	}
	loc = location{sourceDir: sourceDir, root: root, name: name}
	hidden, err := isHiddenPath(root, name)
	if err != nil || hidden {
		err = mediasource.Errorf(fault, err, "Path does not exist.")
		return
	}
	loc.fi, err = os.Stat(loc.path())
	if err != nil {
		err = mediasource.Errorf(fault, err, "Path does not exist.")
	}
	return
}

func (me *Source) Browse(ctx context.Context, item mediasource.Item) (*mediasource.BrowseMedia, error) {
	if item.Identifier == "" {
		if len(me.dirOrder) == 1 {
			item.Identifier = me.dirOrder[0]
		} else {
			return me.listing(), nil
		}
	}
	loc, err := me.locate(item.Identifier, mediasource.FaultBrowse)
	if err != nil {
		return nil, err
	}
	if !loc.fi.IsDir() {
		return nil, mediasource.BrowseErrorf("Path is not a directory.")
	}
	ret := me.directoryNode(loc)
	ret.Children, err = me.readDir(ctx, loc)
	if err != nil {
		return nil, err
	}
	ret.CalculateChildrenClass()
	return ret, nil
}

func (me *Source) listing() *mediasource.BrowseMedia {
	ret := &mediasource.BrowseMedia{
		Domain:             Domain,
		Title:              me.name,
		MediaClass:         mediasource.ClassDirectory,
		ContentType:        mediasource.TypeDirectory,
		ChildrenMediaClass: mediasource.ClassDirectory,
		CanExpand:          true,
		Children:           []*mediasource.BrowseMedia{},
	}
	for _, id := range me.dirOrder {
		ret.Children = append(ret.Children, &mediasource.BrowseMedia{
			Domain:      Domain,
			Identifier:  id,
			Title:       id,
			MediaClass:  mediasource.ClassDirectory,
			ContentType: mediasource.TypeDirectory,
			CanExpand:   true,
		})
	}
	return ret
}

func (me *Source) directoryNode(loc location) *mediasource.BrowseMedia {
	title := loc.fi.Name()
	if loc.name == "." {
		title = loc.sourceDir
	}
	return &mediasource.BrowseMedia{
		Domain:      Domain,
		Identifier:  loc.identifier(),
		Title:       title,
		MediaClass:  mediasource.ClassDirectory,
		ContentType: mediasource.TypeDirectory,
		CanExpand:   true,
	}
}

// Directories first, then by name ignoring case.
func sortEntries(entries []fs.DirEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.IsDir() != b.IsDir() {
			return a.IsDir()
		}
		return strings.ToLower(a.Name()) < strings.ToLower(b.Name())
	})
}

func (me *Source) readDir(ctx context.Context, dir location) ([]*mediasource.BrowseMedia, error) {
	entries, err := os.ReadDir(dir.path())
	if err != nil {
		return nil, mediasource.Errorf(mediasource.FaultBrowse, err, "Path does not exist.")
	}
	sortEntries(entries)
	fsys := os.DirFS(dir.root)
	pool := futures.NewExecutor(runtime.NumCPU())
	defer pool.Shutdown()
	ret := []*mediasource.BrowseMedia{}
	// The results are drained even after an error so the mapper finishes.
	for r := range futures.Map(pool, entries, func(de fs.DirEntry) (*mediasource.BrowseMedia, error) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return me.entryNode(fsys, dir, de), nil
	}) {
		if r.Err != nil {
			err = r.Err
		}
		if r.Value != nil {
			ret = append(ret, r.Value)
		}
	}
	if err != nil {
		return nil, mediasource.Errorf(mediasource.FaultBrowse, err, "Browsing %s: %v", dir.identifier(), err)
	}
	return ret, nil
}

// entryNode returns nil for hidden entries and files that aren't media.
func (me *Source) entryNode(fsys fs.FS, dir location, de fs.DirEntry) *mediasource.BrowseMedia {
	loc := location{
		sourceDir: dir.sourceDir,
		root:      dir.root,
		name:      path.Join(dir.name, de.Name()),
	}
	if hidden, err := isHiddenPath(loc.root, loc.name); err != nil || hidden {
		return nil
	}
	fi, err := os.Stat(loc.path())
	if err != nil {
		me.logger.Levelf(log.Debug, "skipping %q: %v", loc.path(), err)
		return nil
	}
	loc.fi = fi
	if fi.IsDir() {
		return me.directoryNode(loc)
	}
	mt := mimeTypeByPath(fsys, loc.name)
	if !mt.IsMedia() {
		return nil
	}
	ret := &mediasource.BrowseMedia{
		Domain:      Domain,
		Identifier:  loc.identifier(),
		Title:       fi.Name(),
		MediaClass:  mt.MediaClass(),
		ContentType: mt.String(),
		CanPlay:     true,
	}
	if mt.IsImage() {
		ret.Thumbnail = me.url("thumbnail", loc)
	}
	return ret
}

func (me *Source) url(route string, loc location) string {
	segs := strings.Split(loc.name, "/")
	for i := range segs {
		segs[i] = url.PathEscape(segs[i])
	}
	return me.publicURL + "/" + route + "/" + url.PathEscape(loc.sourceDir) + "/" + strings.Join(segs, "/")
}

func (me *Source) Resolve(ctx context.Context, item mediasource.Item) (*mediasource.PlayMedia, error) {
	loc, err := me.locate(item.Identifier, mediasource.FaultResolve)
	if err != nil {
		return nil, err
	}
	if loc.fi.IsDir() {
		return nil, mediasource.Unresolvablef("Path is a directory.")
	}
	mt := mimeTypeByPath(os.DirFS(loc.root), loc.name)
	if !mt.IsMedia() {
		return nil, mediasource.Unresolvablef("Path is not media.")
	}
	md := me.prober.Metadata(loc.path(), loc.fi)
	md.Path = loc.name
	return &mediasource.PlayMedia{
		URL:      me.url("media", loc),
		MimeType: mt.String(),
		Metadata: md,
	}, nil
}

// File is a local media file ready to be served.
type File struct {
	Path     string
	MimeType string
	Info     fs.FileInfo
}

// Open validates a source dir and slash separated path the way Resolve does, for serving the media URLs
// it returns.
func (me *Source) Open(sourceDir, name string) (ret File, err error) {
	loc, err := me.locate(sourceDir+"/"+strings.TrimPrefix(name, "/"), mediasource.FaultResolve)
	if err != nil {
		return
	}
	if loc.fi.IsDir() {
		err = mediasource.Unresolvablef("Path is a directory.")
		return
	}
	mt := mimeTypeByPath(os.DirFS(loc.root), loc.name)
	if !mt.IsMedia() {
		err = mediasource.Unresolvablef("Path is not media.")
		return
	}
	return File{Path: loc.path(), MimeType: mt.String(), Info: loc.fi}, nil
}
