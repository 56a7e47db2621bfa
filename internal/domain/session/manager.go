package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/contextify/internal/domain/registry"
	"github.com/GriffinCanCode/contextify/internal/hostobj"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/logging"
	"github.com/GriffinCanCode/contextify/internal/shared/id"
)

var (
	ErrNotFound  = errors.New("snapshot not found")
	ErrInvalidID = errors.New("invalid snapshot id")
)

// Decoding keeps integers as int64 so restored numbers match the originals.
var snapshotJSON = sonic.Config{UseInt64: true}.Froze()

// Snapshot files are zstd-compressed JSON.
const snapshotExt = ".json.zst"

var (
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil)
)

// Snapshot is a saved copy of one context's globals. Functions cannot be
// serialized and come back as their "[Function]" placeholder strings.
type Snapshot struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Context     string         `json:"context"`
	CreatedAt   time.Time      `json:"created_at"`
	Globals     map[string]any `json:"globals"`
}

// Summary describes a snapshot without its globals.
type Summary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Context   string    `json:"context"`
	CreatedAt time.Time `json:"created_at"`
	Keys      int       `json:"keys"`
}

// Manager handles snapshot persistence
type Manager struct {
	snapshots sync.Map // id -> *Snapshot
	registry  *registry.Manager
	dir       string // empty keeps snapshots in memory only
	log       *logging.Logger

	mu           sync.RWMutex
	lastSaved    *time.Time
	lastRestored *time.Time
}

// NewManager creates a snapshot manager writing to dir. An empty dir keeps
// snapshots in memory.
func NewManager(reg *registry.Manager, dir string, log *logging.Logger) *Manager {
	if log == nil {
		log = logging.NewNop()
	}
	return &Manager{registry: reg, dir: dir, log: log.Named("session")}
}

// SaveOptions names a snapshot.
type SaveOptions struct {
	Name        string
	Description string
}

// Save captures the globals of context cid.
func (m *Manager) Save(ctx context.Context, cid string, opts SaveOptions) (*Snapshot, error) {
	globals, err := m.registry.Globals(cid)
	if err != nil {
		return nil, err
	}
	if globals == nil {
		globals = map[string]any{}
	}

	now := time.Now()
	snap := &Snapshot{
		ID:          id.NewSnapshotID().String(),
		Name:        opts.Name,
		Description: opts.Description,
		Context:     cid,
		CreatedAt:   now,
		Globals:     globals,
	}
	if snap.Name == "" {
		snap.Name = cid
	}

	if m.dir != "" {
		data, err := sonic.Marshal(snap)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
		}
		if err := os.MkdirAll(m.dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
		}
		if err := writeFileAtomic(m.path(snap.ID), encoder.EncodeAll(data, nil)); err != nil {
			return nil, fmt.Errorf("failed to write snapshot: %w", err)
		}
	}
	m.snapshots.Store(snap.ID, snap)

	m.mu.Lock()
	m.lastSaved = &now
	m.mu.Unlock()

	m.log.Info("snapshot saved", zap.String("snapshot", snap.ID), zap.String("context", cid))
	return snap, nil
}

// Load returns a snapshot from the cache or disk.
func (m *Manager) Load(ctx context.Context, sid string) (*Snapshot, error) {
	if !id.SnapshotID(sid).Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, sid)
	}
	if cached, ok := m.snapshots.Load(sid); ok {
		return cached.(*Snapshot), nil
	}
	if m.dir == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sid)
	}

	compressed, err := os.ReadFile(m.path(sid))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sid)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	data, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot %s: %w", sid, err)
	}

	var snap Snapshot
	if err := snapshotJSON.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", sid, err)
	}
	if snap.ID != sid {
		return nil, fmt.Errorf("snapshot %s has mismatched id %q", sid, snap.ID)
	}

	m.snapshots.Store(sid, &snap)
	return &snap, nil
}

// Restore creates a new context seeded with the snapshot's globals.
func (m *Manager) Restore(ctx context.Context, sid string) (registry.Info, error) {
	snap, err := m.Load(ctx, sid)
	if err != nil {
		return registry.Info{}, err
	}
	info, err := m.registry.Create(hostobj.FromMap(snap.Globals))
	if err != nil {
		return registry.Info{}, fmt.Errorf("failed to restore snapshot %s: %w", sid, err)
	}

	now := time.Now()
	m.mu.Lock()
	m.lastRestored = &now
	m.mu.Unlock()

	m.log.Info("snapshot restored", zap.String("snapshot", sid), zap.String("context", info.ID))
	return info, nil
}

// List returns every known snapshot, newest first. Snapshots on disk that
// are not cached yet are loaded.
func (m *Manager) List(ctx context.Context) ([]Summary, error) {
	if m.dir != "" {
		entries, err := os.ReadDir(m.dir)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to list snapshots: %w", err)
		}
		for _, e := range entries {
			sid, ok := snapshotFile(e.Name())
			if !ok || e.IsDir() {
				continue
			}
			if _, err := m.Load(ctx, sid); err != nil {
				m.log.Warn("skipping unreadable snapshot", zap.String("file", e.Name()), zap.Error(err))
			}
		}
	}

	var out []Summary
	m.snapshots.Range(func(_, v any) bool {
		s := v.(*Snapshot)
		out = append(out, Summary{ID: s.ID, Name: s.Name, Context: s.Context, CreatedAt: s.CreatedAt, Keys: len(s.Globals)})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// Delete removes a snapshot from the cache and disk.
func (m *Manager) Delete(ctx context.Context, sid string) error {
	if _, err := m.Load(ctx, sid); err != nil {
		return err
	}
	m.snapshots.Delete(sid)
	if m.dir != "" {
		if err := os.Remove(m.path(sid)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete snapshot: %w", err)
		}
	}
	return nil
}

// Stats reports when snapshots were last saved and restored.
func (m *Manager) Stats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]any{
		"last_saved":    m.lastSaved,
		"last_restored": m.lastRestored,
		"persistent":    m.dir != "",
	}
}

func (m *Manager) path(sid string) string {
	return filepath.Join(m.dir, sid+snapshotExt)
}

func snapshotFile(name string) (string, bool) {
	sid, ok := strings.CutSuffix(name, snapshotExt)
	if !ok || !id.SnapshotID(sid).Valid() {
		return "", false
	}
	return sid, true
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snap-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
