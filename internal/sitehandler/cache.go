package sitehandler

import (
	"path"
	"strings"
)

// assetExts are the fingerprintable static extensions that get the long
// immutable policy.
var assetExts = map[string]bool{
	".css": true, ".js": true, ".mjs": true, ".map": true,
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true,
	".gif": true, ".svg": true, ".ico": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
}

// cacheControlForFile picks the Cache-Control policy by extension. HTML and
// extensionless files revalidate every time so content edits show up
// immediately; everything else gets the configured asset or default policy.
func cacheControlForFile(name string, o *Options) string {
	ext := strings.ToLower(path.Ext(name))
	switch {
	case ext == "" || ext == ".html":
		return o.HTMLCacheControl
	case assetExts[ext]:
		return o.AssetCacheControl
	default:
		return o.OtherCacheControl
	}
}
