package service

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tabloom/tabloom-back/internal/config"
	"github.com/tabloom/tabloom-back/internal/db"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func newTestLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func newTestConfig() *config.Config {
	return &config.Config{
		JWTSecret:   "test-secret",
		JWTTTLHours: 1,
	}
}

func seedFolder(t *testing.T, gdb *gorm.DB, name string, parentID *uint64, sortOrder int) *db.Folder {
	t.Helper()
	folder := db.Folder{Name: name, ParentID: parentID, SortOrder: sortOrder}
	require.NoError(t, gdb.Create(&folder).Error)
	return &folder
}

func seedBookmark(t *testing.T, gdb *gorm.DB, url string, folderID *uint64, tagIDs ...uint64) *db.Bookmark {
	t.Helper()
	bookmark := db.Bookmark{URL: url, FolderID: folderID}
	require.NoError(t, gdb.Omit("Tags").Create(&bookmark).Error)
	for _, tagID := range tagIDs {
		require.NoError(t, gdb.Exec(
			"INSERT INTO bookmark_tags (bookmark_id, tag_id) VALUES (?, ?)",
			bookmark.ID, tagID,
		).Error)
	}
	return &bookmark
}

func seedTag(t *testing.T, gdb *gorm.DB, name string) *db.Tag {
	t.Helper()
	tag := db.Tag{Name: name}
	require.NoError(t, gdb.Create(&tag).Error)
	return &tag
}
