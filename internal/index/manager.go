package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"annie/internal/config"
	pkgerrors "annie/pkg/errors"
	"annie/pkg/logger"

	"go.uber.org/zap"
)

const configSuffix = ".conf"

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Manager owns the named indexes of one data directory. Each index has a
// <name>.conf holding its IndexConfig and, for persistent types, a
// <name>.bin snapshot.
type Manager struct {
	dir     string
	mu      sync.RWMutex
	indices map[string]*managedIndex
	saveCh  chan string
	stopCh  chan struct{}
	doneCh  chan struct{}
	once    sync.Once
	log     *zap.SugaredLogger
}

type managedIndex struct {
	config IndexConfig
	index  *GuardedIndex
}

// IndexStatus is one row of ListIndexes.
type IndexStatus struct {
	Name string `json:"name"`
	Info
}

// NewIndexManager loads every index found in conf.Dir and starts the
// background saver.
func NewIndexManager(conf *config.Config) (*Manager, error) {
	m := &Manager{
		dir:     conf.Dir,
		indices: make(map[string]*managedIndex),
		saveCh:  make(chan string, max(conf.Server.SaveQueue, 1)),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		log:     logger.Named("manager"),
	}
	if err := m.LoadIndexes(); err != nil {
		return nil, err
	}
	go m.monitorIndexSave()
	return m, nil
}

// LoadIndexes restores every index described by a .conf file. Indexes that
// fail to load are logged and skipped.
func (m *Manager) LoadIndexes() error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return pkgerrors.Storage("load_indexes", err)
	}
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return pkgerrors.Storage("load_indexes", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), configSuffix) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), configSuffix)
		mi, err := m.loadIndex(name)
		if err != nil {
			m.log.Errorw("Failed to load index", "index", name, "error", err)
			continue
		}
		m.indices[name] = mi
		m.log.Infow("Loaded vector index", "index", name, "type", mi.config.IndexType, "count", mi.index.Len())
	}
	return nil
}

func (m *Manager) loadIndex(name string) (*managedIndex, error) {
	data, err := os.ReadFile(m.configPath(name))
	if err != nil {
		return nil, pkgerrors.Storage("load_indexes", err)
	}
	var cfg IndexConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, pkgerrors.Corrupt("load_indexes", "index config %s: %v", name, err)
	}
	backend, err := New(&cfg)
	if err != nil {
		return nil, err
	}

	if !Persistent(cfg.IndexType) {
		m.log.Warnw("Index type is not persisted, starting empty", "index", name, "type", cfg.IndexType)
	} else if err := backend.Load(m.snapshotPath(name)); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		m.log.Infow("No snapshot found, starting empty", "index", name)
	}
	return &managedIndex{config: cfg, index: NewGuardedIndex(backend)}, nil
}

// CreateIndex creates an empty index and records its config on disk.
func (m *Manager) CreateIndex(name string, cfg *IndexConfig) (*GuardedIndex, error) {
	if !validName.MatchString(name) {
		return nil, pkgerrors.Wrap("create_index", fmt.Errorf("%w: index name %q", pkgerrors.ErrInvalidParameter, name))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.indices[name]; exists {
		return nil, pkgerrors.Wrap("create_index", fmt.Errorf("%w: %s", pkgerrors.ErrIndexExists, name))
	}
	backend, err := New(cfg)
	if err != nil {
		return nil, err
	}

	configData, err := json.Marshal(cfg)
	if err != nil {
		return nil, pkgerrors.Wrap("create_index", err)
	}
	if err := os.WriteFile(m.configPath(name), configData, 0o644); err != nil {
		return nil, pkgerrors.Storage("create_index", err)
	}

	g := NewGuardedIndex(backend)
	m.indices[name] = &managedIndex{config: *cfg, index: g}
	if Persistent(cfg.IndexType) {
		m.enqueueSave(name)
	}
	m.log.Infow("Created vector index", "index", name, "type", cfg.IndexType, "space", cfg.SpaceType, "dimension", cfg.Dimension)
	return g, nil
}

// GetIndex returns the shared handle of the named index.
func (m *Manager) GetIndex(name string) (*GuardedIndex, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mi, exists := m.indices[name]
	if !exists {
		return nil, pkgerrors.Wrap("get_index", fmt.Errorf("%w: %s", pkgerrors.ErrIndexNotFound, name))
	}
	return mi.index, nil
}

// ListIndexes reports every index, sorted by name.
func (m *Manager) ListIndexes() []IndexStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]IndexStatus, 0, len(m.indices))
	for name, mi := range m.indices {
		out = append(out, IndexStatus{Name: name, Info: mi.index.Info()})
	}
	slices.SortFunc(out, func(a, b IndexStatus) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// DeleteIndex closes the index and removes its files.
func (m *Manager) DeleteIndex(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mi, exists := m.indices[name]
	if !exists {
		return pkgerrors.Wrap("delete_index", fmt.Errorf("%w: %s", pkgerrors.ErrIndexNotFound, name))
	}
	delete(m.indices, name)
	if err := mi.index.Close(); err != nil {
		m.log.Errorw("Failed to close index", "index", name, "error", err)
	}

	for _, p := range []string{m.snapshotPath(name) + SnapshotSuffix, m.configPath(name)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			m.log.Errorw("Failed to delete index file", "path", p, "error", err)
		}
	}
	m.log.Infow("Deleted vector index and related files", "index", name)
	return nil
}

// SaveIndex writes the named index snapshot synchronously.
func (m *Manager) SaveIndex(name string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mi, exists := m.indices[name]
	if !exists {
		return pkgerrors.Wrap("save", fmt.Errorf("%w: %s", pkgerrors.ErrIndexNotFound, name))
	}
	return mi.index.Save(m.snapshotPath(name))
}

// ScheduleSave queues an asynchronous save of the named index.
func (m *Manager) ScheduleSave(name string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mi, exists := m.indices[name]
	if !exists {
		return pkgerrors.Wrap("save", fmt.Errorf("%w: %s", pkgerrors.ErrIndexNotFound, name))
	}
	if !Persistent(mi.config.IndexType) {
		return notImplemented("save")
	}
	m.enqueueSave(name)
	return nil
}

// enqueueSave never blocks; a full queue means a save is already pending.
func (m *Manager) enqueueSave(name string) {
	select {
	case m.saveCh <- name:
	default:
		m.log.Warnw("Save queue full, dropping request", "index", name)
	}
}

// monitorIndexSave saves queued indexes until Close.
func (m *Manager) monitorIndexSave() {
	defer close(m.doneCh)
	for {
		select {
		case name := <-m.saveCh:
			if err := m.SaveIndex(name); err != nil {
				if errors.Is(err, pkgerrors.ErrIndexNotFound) {
					continue
				}
				m.log.Errorw("Failed to save index", "index", name, "error", err)
				continue
			}
			m.log.Infow("Saved index to disk", "index", name)
		case <-m.stopCh:
			return
		}
	}
}

// Close stops the saver, snapshots every persistent index and closes them all.
func (m *Manager) Close() error {
	var errs []error
	m.once.Do(func() {
		close(m.stopCh)
		<-m.doneCh

		m.mu.Lock()
		defer m.mu.Unlock()
		for name, mi := range m.indices {
			if Persistent(mi.config.IndexType) {
				if err := mi.index.Save(m.snapshotPath(name)); err != nil {
					m.log.Errorw("Failed to save index on close", "index", name, "error", err)
					errs = append(errs, err)
				}
			}
			if err := mi.index.Close(); err != nil {
				m.log.Errorw("Failed to close index", "index", name, "error", err)
			}
		}
		m.indices = make(map[string]*managedIndex)
	})
	return errors.Join(errs...)
}

func (m *Manager) configPath(name string) string {
	return filepath.Join(m.dir, name+configSuffix)
}

// snapshotPath is the logical snapshot path; Save appends SnapshotSuffix.
func (m *Manager) snapshotPath(name string) string {
	return filepath.Join(m.dir, name)
}
