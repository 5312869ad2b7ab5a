package history

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"espadl/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoad(t *testing.T) {
	mgr, err := NewManager(t.TempDir(), "Me@Example.com", logger.NewNopLogger())
	require.NoError(t, err)

	loaded, err := mgr.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded, "no record before the first run")

	rec := mgr.Begin("me@example.com", "ALL", "https://espa.cr.usgs.gov")
	_, err = uuid.Parse(rec.RunID)
	require.NoError(t, err, "run id must be a uuid")

	rec.Downloaded = 2
	rec.Skipped = 1
	require.NoError(t, mgr.Save(rec))
	assert.False(t, rec.FinishedAt.IsZero())

	loaded, err = mgr.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, rec.RunID, loaded.RunID)
	assert.Equal(t, 2, loaded.Downloaded)
	assert.Equal(t, 1, loaded.Skipped)
	assert.Equal(t, recordVersion, loaded.Version)
	assert.Equal(t, "me@example.com.json", filepath.Base(mgr.Path()))
	assert.NoFileExists(t, mgr.Path()+".tmp")
}

func TestTooSoon(t *testing.T) {
	mgr, err := NewManager(t.TempDir(), "me@example.com", logger.NewNopLogger())
	require.NoError(t, err)

	now := time.Now()
	_, soon := mgr.TooSoon(now, time.Hour)
	assert.False(t, soon, "first run is never too soon")

	rec := mgr.Begin("me@example.com", "O1", "")
	rec.StartedAt = now.Add(-10 * time.Minute)
	require.NoError(t, mgr.Save(rec))

	elapsed, soon := mgr.TooSoon(now, time.Hour)
	assert.True(t, soon)
	assert.Equal(t, 10*time.Minute, elapsed.Round(time.Minute))

	_, soon = mgr.TooSoon(now.Add(2*time.Hour), time.Hour)
	assert.False(t, soon)

	_, soon = mgr.TooSoon(now, 0)
	assert.False(t, soon, "a zero interval disables the check")
}

func TestCorruptHistoryIsIgnored(t *testing.T) {
	dir := t.TempDir()
	tl := logger.NewTestLogger()
	mgr, err := NewManager(dir, "me@example.com", tl)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(mgr.Path(), []byte("{not json"), 0644))

	_, err = mgr.Load()
	assert.Error(t, err)

	_, soon := mgr.TooSoon(time.Now(), time.Hour)
	assert.False(t, soon)
	assert.NotEmpty(t, tl.GetMessagesByLevel("WARN"))
}

func TestDelete(t *testing.T) {
	mgr, err := NewManager(t.TempDir(), "me@example.com", logger.NewNopLogger())
	require.NoError(t, err)

	require.NoError(t, mgr.Delete(), "deleting a missing record is fine")
	require.NoError(t, mgr.Save(mgr.Begin("me@example.com", "O1", "")))
	require.NoError(t, mgr.Delete())
	assert.NoFileExists(t, mgr.Path())
}

func TestDefaultDirectory(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("APPDATA", t.TempDir())

	mgr, err := NewManager("", "me@example.com", logger.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, "history", filepath.Base(filepath.Dir(mgr.Path())))
}

func TestFileNameSanitized(t *testing.T) {
	assert.Equal(t, "a_b.json", fileName("a/b"))
	assert.Equal(t, "default.json", fileName("  "))
}
