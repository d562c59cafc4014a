package index

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"annie/internal/config"
	pkgerrors "annie/pkg/errors"
	"annie/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testConfig(dir string) *config.Config {
	conf := config.Default()
	conf.Dir = dir
	return conf
}

func setupTestManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	manager, err := NewIndexManager(testConfig(dir))
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	return manager, dir
}

func TestManagerCreateIndex(t *testing.T) {
	manager, dir := setupTestManager(t)

	cfg := &IndexConfig{
		IndexType: FLATIndex,
		Dimension: 4,
		SpaceType: CosineSpace,
	}
	index, err := manager.CreateIndex("test_collection", cfg)
	require.NoError(t, err)
	require.NotNil(t, index)

	configData, err := os.ReadFile(filepath.Join(dir, "test_collection.conf"))
	require.NoError(t, err)
	var savedConfig IndexConfig
	require.NoError(t, json.Unmarshal(configData, &savedConfig))
	assert.Equal(t, cfg.IndexType, savedConfig.IndexType)
	assert.Equal(t, cfg.Dimension, savedConfig.Dimension)
	assert.Equal(t, cfg.SpaceType, savedConfig.SpaceType)

	// the background saver writes an initial snapshot
	assert.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, "test_collection"+SnapshotSuffix))
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	_, err = manager.CreateIndex("test_collection", cfg)
	assert.True(t, errors.Is(err, pkgerrors.ErrIndexExists))

	_, err = manager.CreateIndex("../escape", cfg)
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidParameter))

	_, err = manager.CreateIndex("bad_dim", &IndexConfig{IndexType: FLATIndex, Dimension: 0})
	assert.True(t, errors.Is(err, pkgerrors.ErrInvalidDimension))
	_, err = os.Stat(filepath.Join(dir, "bad_dim.conf"))
	assert.True(t, os.IsNotExist(err))
}

func TestManagerGetAndListIndexes(t *testing.T) {
	manager, _ := setupTestManager(t)

	_, err := manager.GetIndex("missing")
	assert.True(t, errors.Is(err, pkgerrors.ErrIndexNotFound))

	a, err := manager.CreateIndex("b_index", &IndexConfig{IndexType: FLATIndex, Dimension: 2})
	require.NoError(t, err)
	_, err = manager.CreateIndex("a_index", &IndexConfig{IndexType: HNSWIndex, Dimension: 3, SpaceType: CosineSpace})
	require.NoError(t, err)

	got, err := manager.GetIndex("b_index")
	require.NoError(t, err)
	assert.Same(t, a, got)

	require.NoError(t, a.Add([][]float32{{1, 1}}, []int64{1}))
	list := manager.ListIndexes()
	require.Len(t, list, 2)
	assert.Equal(t, "a_index", list[0].Name)
	assert.Equal(t, HNSWIndex, list[0].IndexType)
	assert.Equal(t, "b_index", list[1].Name)
	assert.Equal(t, 1, list[1].Count)
}

func TestManagerDeleteIndex(t *testing.T) {
	manager, dir := setupTestManager(t)

	_, err := manager.CreateIndex("doomed", &IndexConfig{IndexType: FLATIndex, Dimension: 2})
	require.NoError(t, err)
	require.NoError(t, manager.SaveIndex("doomed"))

	require.NoError(t, manager.DeleteIndex("doomed"))
	_, err = manager.GetIndex("doomed")
	assert.True(t, errors.Is(err, pkgerrors.ErrIndexNotFound))

	for _, name := range []string{"doomed.conf", "doomed" + SnapshotSuffix} {
		_, err = os.Stat(filepath.Join(dir, name))
		assert.True(t, os.IsNotExist(err), name)
	}

	err = manager.DeleteIndex("doomed")
	assert.True(t, errors.Is(err, pkgerrors.ErrIndexNotFound))
}

func TestManagerSaveGraphIndex(t *testing.T) {
	manager, _ := setupTestManager(t)
	_, err := manager.CreateIndex("graph", &IndexConfig{IndexType: HNSWIndex, Dimension: 2})
	require.NoError(t, err)

	assert.True(t, errors.Is(manager.SaveIndex("graph"), pkgerrors.ErrNotImplemented))
	assert.True(t, errors.Is(manager.ScheduleSave("graph"), pkgerrors.ErrNotImplemented))
	assert.True(t, errors.Is(manager.ScheduleSave("nope"), pkgerrors.ErrIndexNotFound))
}

func TestManagerReload(t *testing.T) {
	dir := t.TempDir()
	manager, err := NewIndexManager(testConfig(dir))
	require.NoError(t, err)

	flat, err := manager.CreateIndex("flat", &IndexConfig{IndexType: FLATIndex, Dimension: 2, SpaceType: ManhattanSpace})
	require.NoError(t, err)
	require.NoError(t, flat.Add([][]float32{{0, 0}, {1, 1}, {5, 5}}, []int64{10, 11, 15}))
	graph, err := manager.CreateIndex("graph", &IndexConfig{IndexType: HNSWIndex, Dimension: 2})
	require.NoError(t, err)
	require.NoError(t, graph.Add([][]float32{{0, 0}}, []int64{1}))
	require.NoError(t, manager.Close())
	// a second Close is harmless
	require.NoError(t, manager.Close())

	core, logs := observer.New(zapcore.InfoLevel)
	restore := logger.SetLogger(zap.New(core))
	defer restore()

	reopened, err := NewIndexManager(testConfig(dir))
	require.NoError(t, err)
	defer reopened.Close()

	flat, err = reopened.GetIndex("flat")
	require.NoError(t, err)
	assert.Equal(t, 3, flat.Len())
	assert.Equal(t, ManhattanSpace, flat.Info().SpaceType)
	res, err := flat.Search([]float32{4, 4}, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{15}, res.IDs)

	graph, err = reopened.GetIndex("graph")
	require.NoError(t, err)
	assert.Equal(t, 0, graph.Len())
	assert.Equal(t, 1, logs.FilterMessage("Index type is not persisted, starting empty").Len())
}

func TestManagerSkipsBrokenIndexes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "garbled.conf"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "corrupt.conf"), []byte(`{"index_type":"flat","dimension":2}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "corrupt"+SnapshotSuffix), []byte("ANNIjunk"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fresh.conf"), []byte(`{"index_type":"flat","dimension":2}`), 0o644))

	core, logs := observer.New(zapcore.InfoLevel)
	restore := logger.SetLogger(zap.New(core))
	defer restore()

	manager, err := NewIndexManager(testConfig(dir))
	require.NoError(t, err)
	defer manager.Close()

	list := manager.ListIndexes()
	require.Len(t, list, 1)
	assert.Equal(t, "fresh", list[0].Name)
	assert.Equal(t, 2, logs.FilterMessage("Failed to load index").Len())
	for _, entry := range logs.FilterMessage("Failed to load index").All() {
		assert.Equal(t, "manager", entry.LoggerName)
	}
}
