package content

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rgeddes/contentd/internal/xerrors"
)

// FileStore reads and writes one JSON document per registered content type.
// Writes go to a temp file in the same directory followed by an atomic
// rename, so concurrent readers never observe a torn write. Disk files use
// two-space indented JSON to stay human-diffable.
type FileStore struct {
	dir string
	reg *Registry
}

// DocInfo is storage-level metadata for one document, used by list endpoints.
type DocInfo struct {
	Type     string    `json:"type"`
	FileName string    `json:"filename"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// NewFileStore creates the data directory if needed.
func NewFileStore(dir string, reg *Registry) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Wrapf(err, "create data dir %s", dir)
	}
	return &FileStore{dir: dir, reg: reg}, nil
}

// Dir returns the store's base directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(typ string) (string, error) {
	e, ok := s.reg.Lookup(typ)
	if !ok {
		return "", xerrors.Wrapf(ErrUnknownType, "%q", typ)
	}
	return filepath.Join(s.dir, e.FileName), nil
}

// Read decodes the current body for a type. ErrNotFound if no file exists,
// ErrCorrupt if the stored bytes are not valid JSON.
func (s *FileStore) Read(typ string) (any, error) {
	raw, err := s.ReadRaw(typ)
	if err != nil {
		return nil, err
	}
	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, xerrors.Wrapf(ErrCorrupt, "type %q: %v", typ, err)
	}
	return body, nil
}

// ReadRaw returns the stored bytes without decoding. Backups snapshot raw
// bytes so a corrupt document can still be preserved before an overwrite.
func (s *FileStore) ReadRaw(typ string) ([]byte, error) {
	p, err := s.path(typ)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, xerrors.Wrapf(ErrNotFound, "type %q", typ)
		}
		return nil, xerrors.Wrapf(err, "read %s", p)
	}
	return raw, nil
}

// Write persists body for a type. Partial writes are never observable: the
// document is written to <file>.tmp, fsynced, then renamed into place.
func (s *FileStore) Write(typ string, body any) error {
	p, err := s.path(typ)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		return xerrors.Wrapf(err, "marshal %q", typ)
	}
	data = append(data, '\n')
	return atomicWrite(p, data)
}

// Remove deletes the stored document. A missing file is not an error
// (idempotent delete).
func (s *FileStore) Remove(typ string) error {
	p, err := s.path(typ)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return xerrors.Wrapf(err, "remove %s", p)
	}
	return nil
}

// Stat returns metadata for one document, or ErrNotFound.
func (s *FileStore) Stat(typ string) (DocInfo, error) {
	p, err := s.path(typ)
	if err != nil {
		return DocInfo{}, err
	}
	fi, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return DocInfo{}, xerrors.Wrapf(ErrNotFound, "type %q", typ)
		}
		return DocInfo{}, xerrors.Wrapf(err, "stat %s", p)
	}
	return DocInfo{
		Type:     typ,
		FileName: filepath.Base(p),
		Size:     fi.Size(),
		Modified: fi.ModTime().UTC(),
	}, nil
}

// List enumerates the registered documents that currently exist on disk,
// sorted by type name.
func (s *FileStore) List() ([]DocInfo, error) {
	var out []DocInfo
	for _, typ := range s.reg.Types() {
		info, err := s.Stat(typ)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

// atomicWrite writes data to path via a same-directory temp file and rename.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return xerrors.Wrapf(err, "create temp in %s", dir)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return xerrors.Wrapf(err, "write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return xerrors.Wrapf(err, "sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return xerrors.Wrapf(err, "close %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return xerrors.Wrapf(err, "rename %s -> %s", tmpName, path)
	}
	return nil
}
