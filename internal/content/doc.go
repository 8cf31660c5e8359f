// Package content is the core of the site: JSON content documents on disk,
// backup-on-write snapshots, structural validation and sanitization, and a
// service that ties them together with per-type write serialization and a
// lastModified index that change-polling clients compare against.
package content
