package content

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rgeddes/contentd/internal/log"
	"github.com/rgeddes/contentd/internal/xerrors"
)

// ServiceMetrics is implemented by the metrics package to observe the content
// core. All methods must be safe for concurrent use.
type ServiceMetrics interface {
	IncContentRead(typ string)
	IncContentWrite(typ string)
	IncSnapshotFailure(typ string)
	IncUpdateStatusPoll(typ string)
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	Store    *FileStore
	Backups  *BackupManager
	Registry *Registry
	Logger   log.Logger
	Metrics  ServiceMetrics
}

// Service orchestrates the store, backup manager, and validator. Writers for
// the same type are serialized through a per-type lock (queue policy: a
// concurrent second update waits, it is not rejected); writers for different
// types proceed independently. Readers are never blocked because the store
// replaces files atomically.
type Service struct {
	store   *FileStore
	backups *BackupManager
	reg     *Registry
	logger  log.Logger
	metrics ServiceMetrics

	mu       sync.Mutex // guards locks and modified
	locks    map[string]*sync.Mutex
	modified map[string]int64 // epoch millis per type, strictly increasing
}

// Doc is the result of a Get: the decoded body plus its lastModified stamp.
type Doc struct {
	Body         any   `json:"body"`
	LastModified int64 `json:"lastModified"`
}

// ListEntry is one row of List: storage metadata plus the index timestamp.
type ListEntry struct {
	DocInfo
	LastModified int64 `json:"lastModified"`
}

// UpdateNotice is the poll answer: whether the document changed since the
// client's remembered timestamp, and the current one.
type UpdateNotice struct {
	HasUpdate bool  `json:"hasUpdate"`
	Timestamp int64 `json:"timestamp"`
}

// NewService seeds the lastModified index from file modtimes so restarts do
// not reset poll baselines.
func NewService(opts ServiceOptions) (*Service, error) {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	s := &Service{
		store:    opts.Store,
		backups:  opts.Backups,
		reg:      opts.Registry,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
		locks:    make(map[string]*sync.Mutex),
		modified: make(map[string]int64),
	}
	docs, err := opts.Store.List()
	if err != nil {
		return nil, xerrors.Wrap(err, "seed lastModified index")
	}
	for _, d := range docs {
		s.modified[d.Type] = d.Modified.UnixMilli()
	}
	return s, nil
}

// typeLock returns the write lock for a type, creating it on first use.
func (s *Service) typeLock(typ string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[typ]
	if !ok {
		l = &sync.Mutex{}
		s.locks[typ] = l
	}
	return l
}

// bumpModified advances the index to now, or prev+1ms if the clock has not
// moved, keeping lastModified strictly increasing per type.
func (s *Service) bumpModified(typ string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := time.Now().UnixMilli()
	if prev, ok := s.modified[typ]; ok && ts <= prev {
		ts = prev + 1
	}
	s.modified[typ] = ts
	return ts
}

// ObserveModified records an externally observed modification time (the
// fsnotify watcher feeds this when a document file changes out-of-band).
// The index never moves backwards. Reports whether the index advanced.
func (s *Service) ObserveModified(typ string, t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := t.UnixMilli()
	if prev, ok := s.modified[typ]; ok && ts <= prev {
		return false
	}
	s.modified[typ] = ts
	return true
}

func (s *Service) lastModified(typ string) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.modified[typ]
	return ts, ok
}

func (s *Service) clearModified(typ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.modified, typ)
}

// Get returns the current body and lastModified for a type.
func (s *Service) Get(ctx context.Context, typ string) (Doc, error) {
	body, err := s.store.Read(typ)
	if err != nil {
		return Doc{}, err
	}
	if s.metrics != nil {
		s.metrics.IncContentRead(typ)
	}
	ts, _ := s.lastModified(typ)
	return Doc{Body: body, LastModified: ts}, nil
}

// GetSection returns one top-level key of a document's body, used by pages
// that fetch a single homepage section instead of the whole document.
func (s *Service) GetSection(ctx context.Context, typ, section string) (Doc, error) {
	doc, err := s.Get(ctx, typ)
	if err != nil {
		return Doc{}, err
	}
	obj, ok := doc.Body.(map[string]any)
	if !ok {
		return Doc{}, xerrors.Wrapf(ErrNotFound, "type %q has no sections", typ)
	}
	sec, ok := obj[section]
	if !ok {
		return Doc{}, xerrors.Wrapf(ErrNotFound, "type %q section %q", typ, section)
	}
	return Doc{Body: sec, LastModified: doc.LastModified}, nil
}

// Update validates, sanitizes, snapshots the prior state, and writes.
// Ordering is the one place it matters: snapshot-before-write, so a backup
// always reflects the state being replaced. A snapshot failure is returned
// as a *SnapshotWarning alongside success, never as a hard failure.
func (s *Service) Update(ctx context.Context, typ string, body any) (int64, *SnapshotWarning, error) {
	if _, ok := s.reg.Lookup(typ); !ok {
		return 0, nil, xerrors.Wrapf(ErrUnknownType, "%q", typ)
	}
	if problems := s.reg.Validate(typ, body); len(problems) > 0 {
		return 0, nil, &ValidationError{Type: typ, Problems: problems}
	}
	clean := Sanitize(body)

	lock := s.typeLock(typ)
	lock.Lock()
	defer lock.Unlock()

	warn := s.snapshotBestEffort(ctx, typ)
	if err := s.store.Write(typ, clean); err != nil {
		return 0, warn, err
	}
	ts := s.bumpModified(typ)
	if s.metrics != nil {
		s.metrics.IncContentWrite(typ)
	}
	s.logger.Info(ctx, "content updated", "type", typ, "last_modified", ts)
	return ts, warn, nil
}

// Delete is a logical delete: a final snapshot is taken, then the document
// is removed so Get behaves exactly like a type that never existed.
func (s *Service) Delete(ctx context.Context, typ string) (*SnapshotWarning, error) {
	if _, ok := s.reg.Lookup(typ); !ok {
		return nil, xerrors.Wrapf(ErrUnknownType, "%q", typ)
	}

	lock := s.typeLock(typ)
	lock.Lock()
	defer lock.Unlock()

	if _, err := s.store.Stat(typ); err != nil {
		return nil, err
	}
	warn := s.snapshotBestEffort(ctx, typ)
	if err := s.store.Remove(typ); err != nil {
		return warn, err
	}
	s.clearModified(typ)
	s.logger.Info(ctx, "content deleted", "type", typ)
	return warn, nil
}

// List returns metadata for every stored document.
func (s *Service) List(ctx context.Context) ([]ListEntry, error) {
	docs, err := s.store.List()
	if err != nil {
		return nil, err
	}
	out := make([]ListEntry, 0, len(docs))
	for _, d := range docs {
		ts, _ := s.lastModified(d.Type)
		out = append(out, ListEntry{DocInfo: d, LastModified: ts})
	}
	return out, nil
}

// ListBackups proxies the backup manager; empty typ lists all.
func (s *Service) ListBackups(typ string) ([]BackupInfo, error) {
	return s.backups.List(typ)
}

// Restore writes a backup's body back as the current document. A pre-restore
// safety snapshot is taken first; sanitization runs defensively but
// validation is skipped, the backup was itself a validated state when taken.
func (s *Service) Restore(ctx context.Context, backupID string) (string, int64, *SnapshotWarning, error) {
	raw, typ, err := s.backups.Restore(backupID)
	if err != nil {
		return "", 0, nil, err
	}
	if _, ok := s.reg.Lookup(typ); !ok {
		return "", 0, nil, xerrors.Wrapf(ErrUnknownType, "backup %q origin %q", backupID, typ)
	}
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", 0, nil, xerrors.Wrapf(ErrCorrupt, "backup %q: %v", backupID, err)
	}
	clean := Sanitize(body)

	lock := s.typeLock(typ)
	lock.Lock()
	defer lock.Unlock()

	warn := s.snapshotBestEffort(ctx, typ)
	if err := s.store.Write(typ, clean); err != nil {
		return "", 0, warn, err
	}
	ts := s.bumpModified(typ)
	if s.metrics != nil {
		s.metrics.IncContentWrite(typ)
	}
	s.logger.Info(ctx, "content restored", "type", typ, "backup_id", backupID, "last_modified", ts)
	return typ, ts, warn, nil
}

// HasUpdate answers a poll: true when the document changed after since
// (epoch millis). Comparison is on absolute timestamps so a client that
// missed any number of intervals still converges on the next poll.
func (s *Service) HasUpdate(ctx context.Context, typ string, since int64) (UpdateNotice, error) {
	if _, ok := s.reg.Lookup(typ); !ok {
		return UpdateNotice{}, xerrors.Wrapf(ErrUnknownType, "%q", typ)
	}
	if s.metrics != nil {
		s.metrics.IncUpdateStatusPoll(typ)
	}
	ts, ok := s.lastModified(typ)
	if !ok {
		return UpdateNotice{HasUpdate: false, Timestamp: 0}, nil
	}
	return UpdateNotice{HasUpdate: ts > since, Timestamp: ts}, nil
}

// snapshotBestEffort wraps BackupManager.Snapshot with the policy from the
// error design: log, count, and degrade to a warning. Callers must already
// hold the type's write lock.
func (s *Service) snapshotBestEffort(ctx context.Context, typ string) *SnapshotWarning {
	id, ok, err := s.backups.Snapshot(ctx, typ)
	if err != nil {
		s.logger.Warn(ctx, "backup snapshot failed, update proceeds", "type", typ, "error", err)
		if s.metrics != nil {
			s.metrics.IncSnapshotFailure(typ)
		}
		return &SnapshotWarning{Type: typ, Err: err}
	}
	if ok {
		s.logger.Debug(ctx, "backup snapshot written", "type", typ, "backup_id", id)
	}
	return nil
}
