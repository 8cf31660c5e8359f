package content

import (
	"errors"
	"strings"
)

// Sentinel errors for the content core. Callers classify failures with
// errors.Is/As; the HTTP layer maps them to status codes.
var (
	// ErrNotFound means no document exists for the requested type.
	ErrNotFound = errors.New("content not found")

	// ErrCorrupt means the stored bytes for a document are not valid JSON.
	// This must surface as a structured error, never a crash.
	ErrCorrupt = errors.New("content corrupt")

	// ErrUnknownType means the type is not in the registry.
	ErrUnknownType = errors.New("unknown content type")

	// ErrBackupNotFound means no backup exists for the requested id.
	ErrBackupNotFound = errors.New("backup not found")
)

// ValidationError carries the full list of violated structural rules so the
// caller can report every problem at once.
type ValidationError struct {
	Type     string
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed for " + e.Type + ": " + strings.Join(e.Problems, "; ")
}

// SnapshotWarning signals that the pre-write backup failed but the update
// itself went through. It is a warning-level condition, distinguishable from
// a hard failure, per the best-effort backup policy.
type SnapshotWarning struct {
	Type string
	Err  error
}

func (w *SnapshotWarning) Error() string {
	return "backup snapshot failed for " + w.Type + ": " + w.Err.Error()
}

func (w *SnapshotWarning) Unwrap() error { return w.Err }
