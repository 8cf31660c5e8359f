package sitehandler

import (
	"io/fs"
	"path"
	"strings"

	"github.com/rgeddes/contentd/internal/pathutil"
)

// resolvePath maps a request path onto a file in the site filesystem.
// Four shapes are recognized:
//
//	/                -> index.html
//	/about/          -> about/index.html
//	/css/site.css    -> css/site.css (anything with an extension)
//	/about           -> redirect to /about/ when about/index.html exists
//
// A non-empty redirectTo asks the caller to send the client to the
// canonical trailing-slash URL. ok=false means no file matched.
func resolvePath(urlPath string, fsys fs.FS) (file, redirectTo string, ok bool) {
	clean, dir, valid := normalizeRequestPath(urlPath)
	if !valid {
		return "", "", false
	}

	rel := strings.TrimPrefix(clean, "/")

	switch {
	case clean == "/":
		file = "index.html"
	case dir:
		file = rel + "index.html"
	case path.Ext(clean) != "":
		file = rel
	default:
		// extensionless pretty URL: canonicalize when the directory exists
		if existsFile(fsys, rel+"/index.html") {
			return "", clean + "/", true
		}
		return "", "", false
	}

	if existsFile(fsys, file) {
		return file, "", true
	}
	return "", "", false
}

// normalizeRequestPath rejects unsafe input, cleans the path and reports
// whether the request named a directory (trailing slash).
func normalizeRequestPath(p string) (clean string, dir, ok bool) {
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for _, bad := range []string{"\x00", "\\", ".."} {
		if strings.Contains(p, bad) {
			return "", false, false
		}
	}
	if pathutil.HasDotSegments(p) {
		return "", false, false
	}

	dir = strings.HasSuffix(p, "/")
	clean = path.Clean(p)
	if dir && clean != "/" {
		clean += "/"
	}
	return clean, dir && clean != "/", true
}

// existsFile reports whether name is a regular file in fsys.
func existsFile(fsys fs.FS, name string) bool {
	if name == "" || !fs.ValidPath(name) {
		return false
	}
	info, err := fs.Stat(fsys, name)
	return err == nil && !info.IsDir()
}
