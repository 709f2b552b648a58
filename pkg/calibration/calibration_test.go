package calibration

import (
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerbot-team/tigerbot/swerve-controller/pkg/swervemodule"
)

var (
	_ swervemodule.OffsetStore = (*FileStore)(nil)
	_ swervemodule.OffsetStore = (*SQLiteStore)(nil)
	_ swervemodule.OffsetStore = (*MemoryStore)(nil)
)

func exerciseStore(t *testing.T, store swervemodule.OffsetStore) {
	t.Helper()

	_, ok, err := store.LoadOffset("FrontLeftModule")
	require.NoError(t, err)
	assert.False(t, ok, "fresh store should have no offset")

	require.NoError(t, store.SaveOffset("FrontLeftModule", -123.25))
	require.NoError(t, store.SaveOffset("RearRightModule", 7))

	v, ok, err := store.LoadOffset("FrontLeftModule")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, -123.25, v)

	// Overwrite.
	require.NoError(t, store.SaveOffset("FrontLeftModule", 0.1))
	v, ok, err = store.LoadOffset("FrontLeftModule")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0.1, v)

	v, _, err = store.LoadOffset("RearRightModule")
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)
}

func TestFileStore(t *testing.T) {
	exerciseStore(t, NewFileStore(filepath.Join(t.TempDir(), "lvuser")))
}

func TestSQLiteStore(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "cal", "offsets.db"))
	require.NoError(t, err)
	defer store.Close()
	exerciseStore(t, store)
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offsets.db")
	store, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveOffset("FrontRightModule", 33.5))
	require.NoError(t, store.Close())

	store, err = OpenSQLite(path)
	require.NoError(t, err)
	defer store.Close()
	v, ok, err := store.LoadOffset("FrontRightModule")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 33.5, v)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreConcurrent(t *testing.T) {
	store := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = store.SaveOffset("m", float64(i))
				_, _, _ = store.LoadOffset("m")
			}
		}(i)
	}
	wg.Wait()
	_, ok, _ := store.LoadOffset("m")
	assert.True(t, ok)
}

func TestFileFormat(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	require.NoError(t, store.SaveOffset("FrontLeftModule", 1.0))

	data, err := os.ReadFile(filepath.Join(dir, "FrontLeftModule_AzimuthOffset.txt"))
	require.NoError(t, err)
	// 1.0 as a big-endian double.
	assert.Equal(t, []byte{0x3f, 0xf0, 0, 0, 0, 0, 0, 0}, data)

	// Files written by the robot's previous controller.
	require.NoError(t, os.WriteFile(store.Path("RearLeftModule"),
		[]byte{0xc0, 0x5e, 0xdd, 0x2f, 0x1a, 0x9f, 0xbe, 0x77}, 0644))
	v, ok, err := store.LoadOffset("RearLeftModule")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, -123.456, v, 1e-12)
}

func TestFileStoreMalformed(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	for name, data := range map[string][]byte{
		"Empty": {},
		"Short": {0x3f, 0xf0, 0},
		"NaN":   encodeOffset(math.NaN()),
		"Inf":   encodeOffset(math.Inf(-1)),
	} {
		require.NoError(t, os.WriteFile(store.Path(name), data, 0644))
		_, ok, err := store.LoadOffset(name)
		assert.False(t, ok, name)
		assert.Equal(t, ErrMalformed, errors.Cause(err), name)
	}
}

func TestFileStoreUnreadable(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	// A directory where the file should be.
	require.NoError(t, os.Mkdir(store.Path("FrontLeftModule"), 0755))
	_, ok, err := store.LoadOffset("FrontLeftModule")
	assert.False(t, ok)
	assert.Error(t, err)
	assert.NotEqual(t, ErrMalformed, errors.Cause(err))
}
