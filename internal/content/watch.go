package content

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rgeddes/contentd/internal/log"
	"github.com/rgeddes/contentd/internal/xerrors"
)

// WatchMetrics observes out-of-band document edits.
type WatchMetrics interface {
	IncExternalEdit(typ string)
}

// DirWatcher keeps the service's lastModified index in sync when document
// files change out-of-band (manual edit, rsync deploy). Without it a poll
// client would never hear about edits that bypass the update API.
type DirWatcher struct {
	svc     *Service
	reg     *Registry
	logger  log.Logger
	metrics WatchMetrics
	fsw     *fsnotify.Watcher
}

// NewDirWatcher begins watching the store's data directory. Call Run to
// consume events; Close is safe regardless. metrics may be nil.
func NewDirWatcher(store *FileStore, svc *Service, reg *Registry, logger log.Logger, metrics WatchMetrics) (*DirWatcher, error) {
	if logger == nil {
		logger = log.Nop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, xerrors.Wrap(err, "create fs watcher")
	}
	if err := fsw.Add(store.Dir()); err != nil {
		fsw.Close()
		return nil, xerrors.Wrapf(err, "watch %s", store.Dir())
	}
	return &DirWatcher{svc: svc, reg: reg, logger: logger, metrics: metrics, fsw: fsw}, nil
}

// Run consumes filesystem events until ctx is cancelled. Intended to be
// launched as: go w.Run(ctx).
func (w *DirWatcher) Run(ctx context.Context) error {
	w.logger.Info(ctx, "content dir watcher starting")
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "content dir watcher stopping", "reason", ctx.Err())
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Base(ev.Name)
			// ignore the store's own temp files
			if strings.Contains(name, ".tmp-") {
				continue
			}
			typ, registered := w.reg.TypeForFile(name)
			if !registered {
				continue
			}
			// use the file modtime, not time.Now(): API writes bump the index
			// after the rename lands, so their own events are no-ops here
			mod := time.Now()
			if fi, err := os.Stat(ev.Name); err == nil {
				mod = fi.ModTime()
			}
			if w.svc.ObserveModified(typ, mod) {
				if w.metrics != nil {
					w.metrics.IncExternalEdit(typ)
				}
				w.logger.Debug(ctx, "observed external content change", "type", typ, "file", name)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, "fs watcher error", "error", err)
		}
	}
}
