package content

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rgeddes/contentd/internal/log"
	"github.com/rgeddes/contentd/internal/pathutil"
	"github.com/rgeddes/contentd/internal/xerrors"
)

const backupStampLayout = "20060102T150405.000000000"

// Mirror receives a copy of every successful snapshot. Implementations are
// best-effort: errors are logged by the BackupManager and never propagate.
type Mirror interface {
	Put(ctx context.Context, id string, data []byte) error
}

// BackupManager persists pre-write snapshots of content documents.
// Backups are write-once files named <type>_<UTC stamp>.json in a dedicated
// directory; nothing here ever mutates or deletes an existing backup
// (retention is deliberately external, unbounded growth is a known
// limitation of the design).
type BackupManager struct {
	dir    string
	store  *FileStore
	mirror Mirror
	logger log.Logger
}

// BackupInfo is metadata for one snapshot, newest-first in listings.
type BackupInfo struct {
	ID        string    `json:"id"`
	Type      string    `json:"originalType"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewBackupManager creates the backup directory if needed. mirror may be nil.
func NewBackupManager(dir string, store *FileStore, mirror Mirror, logger log.Logger) (*BackupManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Wrapf(err, "create backup dir %s", dir)
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &BackupManager{dir: dir, store: store, mirror: mirror, logger: logger}, nil
}

// Snapshot copies the current raw bytes for a type into a new backup.
// A missing document is not an error: ok=false and no backup is written,
// so first writes to a type proceed without a snapshot.
func (b *BackupManager) Snapshot(ctx context.Context, typ string) (id string, ok bool, err error) {
	raw, err := b.store.ReadRaw(typ)
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}

	name, err := b.nextName(typ)
	if err != nil {
		return "", false, err
	}
	p := filepath.Join(b.dir, name)
	if err := atomicWrite(p, raw); err != nil {
		return "", false, err
	}

	if b.mirror != nil {
		// offsite copy is best-effort and must never fail the snapshot
		if merr := b.mirror.Put(ctx, name, raw); merr != nil {
			b.logger.Warn(ctx, "backup mirror upload failed", "backup_id", name, "error", merr)
		}
	}

	return name, true, nil
}

// nextName produces a collision-free backup file name. Nanosecond stamps make
// collisions implausible, but a disambiguating counter is appended if a file
// with the same stamp already exists.
func (b *BackupManager) nextName(typ string) (string, error) {
	stamp := time.Now().UTC().Format(backupStampLayout)
	name := fmt.Sprintf("%s_%s.json", typ, stamp)
	for n := 1; ; n++ {
		if _, err := os.Stat(filepath.Join(b.dir, name)); os.IsNotExist(err) {
			return name, nil
		} else if err != nil {
			return "", xerrors.Wrapf(err, "stat backup %s", name)
		}
		name = fmt.Sprintf("%s_%s_%d.json", typ, stamp, n)
	}
}

// List returns backup metadata newest-first. An empty typ lists all backups;
// otherwise results are filtered to snapshots of that type.
func (b *BackupManager) List(typ string) ([]BackupInfo, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, xerrors.Wrapf(err, "read backup dir %s", b.dir)
	}

	var out []BackupInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		origin, createdAt, ok := parseBackupName(e.Name())
		if !ok {
			continue
		}
		if typ != "" && origin != typ {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, BackupInfo{
			ID:        e.Name(),
			Type:      origin,
			Size:      fi.Size(),
			CreatedAt: createdAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Restore returns the raw body stored in a backup. The caller is responsible
// for taking a pre-restore safety snapshot and writing the body back through
// the store.
func (b *BackupManager) Restore(id string) ([]byte, string, error) {
	origin, _, ok := parseBackupName(id)
	if !ok {
		return nil, "", xerrors.Wrapf(ErrBackupNotFound, "malformed id %q", id)
	}
	raw, err := os.ReadFile(filepath.Join(b.dir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", xerrors.Wrapf(ErrBackupNotFound, "%q", id)
		}
		return nil, "", xerrors.Wrapf(err, "read backup %s", id)
	}
	return raw, origin, nil
}

// parseBackupName splits <type>_<stamp>[_<n>].json into origin type and
// creation time. Rejects names with path separators or dot segments so a
// crafted id can never escape the backup directory.
func parseBackupName(name string) (origin string, createdAt time.Time, ok bool) {
	if !pathutil.IsSafeBaseName(name) {
		return "", time.Time{}, false
	}
	base := strings.TrimSuffix(name, ".json")
	if base == name {
		return "", time.Time{}, false
	}
	// stamp is the last (or second to last, with a counter) underscore field
	parts := strings.Split(base, "_")
	for i := len(parts) - 1; i > 0; i-- {
		if t, err := time.Parse(backupStampLayout, parts[i]); err == nil {
			return strings.Join(parts[:i], "_"), t.UTC(), true
		}
	}
	return "", time.Time{}, false
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
