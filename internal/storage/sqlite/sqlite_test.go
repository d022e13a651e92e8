package sqlitestorage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threepy/vizserver/internal/database"
	gormstorage "github.com/threepy/vizserver/internal/storage/gorm"
	"github.com/threepy/vizserver/pkg/streaming"
)

func TestBackend_FileJournal(t *testing.T) {
	dir := t.TempDir()
	b, err := New(Config{Path: filepath.Join(dir, "journal.db")}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.Append(streaming.NewEnvelope(streaming.TypeSetProps, map[string]any{"name": "ball"})))

	var types []string
	require.NoError(t, b.Replay(func(env streaming.Envelope) error {
		types = append(types, env.Type)
		return nil
	}))
	assert.Equal(t, []string{streaming.TypeSetProps}, types)
}

func TestBackend_DumpOnClose(t *testing.T) {
	dir := t.TempDir()
	dump := filepath.Join(dir, "dump.db")

	b, err := New(Config{Path: filepath.Join(dir, "journal.db"), DumpPath: dump, DumpInterval: time.Hour}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Init())
	require.NoError(t, b.Append(streaming.NewEnvelope(streaming.TypeSetProps, map[string]any{"name": "ball"})))
	require.NoError(t, b.Close())

	_, err = os.Stat(dump)
	require.NoError(t, err)

	db, err := database.GetSqliteDB(dump)
	require.NoError(t, err)
	var n int64
	require.NoError(t, db.Model(&gormstorage.Entry{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}
