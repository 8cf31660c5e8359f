package content

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rgeddes/contentd/internal/log"
)

type countingWatchMetrics struct {
	mu    sync.Mutex
	edits map[string]int
}

func (m *countingWatchMetrics) IncExternalEdit(typ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.edits == nil {
		m.edits = map[string]int{}
	}
	m.edits[typ]++
}

func (m *countingWatchMetrics) count(typ string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.edits[typ]
}

func startWatcher(t *testing.T, store *FileStore, svc *Service, m WatchMetrics) {
	t.Helper()
	w, err := NewDirWatcher(store, svc, DefaultRegistry(), log.Nop(), m)
	if err != nil {
		t.Fatalf("NewDirWatcher: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// waitFor polls cond for up to five seconds. fsnotify delivery is
// asynchronous so assertions on watcher effects have to be eventual.
func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestDirWatcher_ExternalEditAdvancesIndex(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	m := &countingWatchMetrics{}
	startWatcher(t, store, svc, m)
	ctx := context.Background()

	baseline, _, err := svc.Update(ctx, "contact", validContact("a@b.test"))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	// an out-of-band edit, bypassing the service entirely
	time.Sleep(20 * time.Millisecond) // keep the file modtime past the baseline stamp
	p := filepath.Join(store.Dir(), "contact.json")
	if err := os.WriteFile(p, []byte(`{"contact": {"edited": "by hand"}}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ok := waitFor(t, func() bool {
		notice, err := svc.HasUpdate(ctx, "contact", baseline)
		return err == nil && notice.HasUpdate
	})
	if !ok {
		t.Fatal("external edit never advanced lastModified")
	}
	if !waitFor(t, func() bool { return m.count("contact") >= 1 }) {
		t.Fatalf("external edit metric = %d", m.count("contact"))
	}
}

func TestDirWatcher_IgnoresUnregisteredFiles(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	m := &countingWatchMetrics{}
	startWatcher(t, store, svc, m)

	p := filepath.Join(store.Dir(), "notes.txt")
	if err := os.WriteFile(p, []byte("scratch"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// give the watcher a moment to (not) react
	time.Sleep(200 * time.Millisecond)
	m.mu.Lock()
	total := len(m.edits)
	m.mu.Unlock()
	if total != 0 {
		t.Fatalf("unregistered file counted as edit: %v", m.edits)
	}
}

func TestDirWatcher_RunStopsOnCancel(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	w, err := NewDirWatcher(store, svc, DefaultRegistry(), log.Nop(), nil)
	if err != nil {
		t.Fatalf("NewDirWatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestDirWatcher_MissingDirFails(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	bogus := &FileStore{dir: filepath.Join(t.TempDir(), "absent"), reg: DefaultRegistry()}
	if _, err := NewDirWatcher(bogus, svc, DefaultRegistry(), log.Nop(), nil); err == nil {
		t.Fatal("expected error watching a missing directory")
	}
}
