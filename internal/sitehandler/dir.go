package sitehandler

import (
	"io/fs"
	"os"
)

// DirSite serves the public site from a directory on disk. The directory is
// re-checked on every request so a site deployed (or removed) while the
// server runs takes effect without a restart.
type DirSite struct {
	dir string
}

func NewDirSite(dir string) *DirSite {
	return &DirSite{dir: dir}
}

// Site reports the directory as deployed once it contains an index.html.
func (d *DirSite) Site() (fs.FS, bool) {
	if d.dir == "" {
		return nil, false
	}
	if fi, err := os.Stat(d.dir); err != nil || !fi.IsDir() {
		return nil, false
	}
	fsys := os.DirFS(d.dir)
	if _, err := fs.Stat(fsys, "index.html"); err != nil {
		return nil, false
	}
	return fsys, true
}

// StaticSite wraps a fixed fs.FS, mainly for tests and embedded fallbacks.
type StaticSite struct {
	FS fs.FS
	OK bool
}

func (s StaticSite) Site() (fs.FS, bool) { return s.FS, s.OK }
