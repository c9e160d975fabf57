package service

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabloom/tabloom-back/internal/db"
)

func TestTagNameUniqueness(t *testing.T) {
	gdb := newTestDB(t)
	tags := NewTags(gdb, newTestLogger())

	first, err := tags.Create("React")
	require.NoError(t, err)

	_, err = tags.Create("React")
	require.Error(t, err)
	assert.Equal(t, ErrConflict, errors.Cause(err))

	// the first tag is untouched
	var row db.Tag
	require.NoError(t, gdb.First(&row, first.ID).Error)
	assert.Equal(t, "React", row.Name)

	var count int64
	require.NoError(t, gdb.Model(&db.Tag{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestTagUpdateConflictExcludesSelf(t *testing.T) {
	gdb := newTestDB(t)
	tags := NewTags(gdb, newTestLogger())

	react, err := tags.Create("React")
	require.NoError(t, err)
	_, err = tags.Create("Vue")
	require.NoError(t, err)

	// renaming to its own name is fine
	_, err = tags.Update(react.ID, "React")
	require.NoError(t, err)

	_, err = tags.Update(react.ID, "Vue")
	require.Error(t, err)
	assert.Equal(t, ErrConflict, errors.Cause(err))
}

func TestTagDeleteIsHardAndCascadesLinks(t *testing.T) {
	gdb := newTestDB(t)
	tags := NewTags(gdb, newTestLogger())

	tag := seedTag(t, gdb, "golang")
	bookmark := seedBookmark(t, gdb, "https://go.dev", nil, tag.ID)

	require.NoError(t, tags.Delete(tag.ID))

	var tagCount int64
	require.NoError(t, gdb.Model(&db.Tag{}).Count(&tagCount).Error)
	assert.Equal(t, int64(0), tagCount)

	var links int64
	require.NoError(t, gdb.Table("bookmark_tags").Count(&links).Error)
	assert.Equal(t, int64(0), links)

	// the bookmark itself survives
	var row db.Bookmark
	require.NoError(t, gdb.First(&row, bookmark.ID).Error)
	assert.False(t, row.Deleted)
}

func TestTagCountsIncludeSoftDeletedBookmarks(t *testing.T) {
	gdb := newTestDB(t)
	tags := NewTags(gdb, newTestLogger())
	bookmarks := NewBookmarks(gdb, newTestLogger())

	tag := seedTag(t, gdb, "golang")
	bookmark := seedBookmark(t, gdb, "https://go.dev", nil, tag.ID)

	require.NoError(t, bookmarks.Delete(bookmark.ID))

	list, err := tags.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	// counts derive from join rows, so the soft-deleted bookmark still counts
	assert.Equal(t, int64(1), list[0].BookmarkCount)
}

func TestTagListSortedByName(t *testing.T) {
	gdb := newTestDB(t)
	tags := NewTags(gdb, newTestLogger())

	seedTag(t, gdb, "zig")
	seedTag(t, gdb, "ada")
	seedTag(t, gdb, "go")

	list, err := tags.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "ada", list[0].Name)
	assert.Equal(t, "go", list[1].Name)
	assert.Equal(t, "zig", list[2].Name)
}

func TestTagGetFiltersDeletedBookmarks(t *testing.T) {
	gdb := newTestDB(t)
	tags := NewTags(gdb, newTestLogger())
	bookmarks := NewBookmarks(gdb, newTestLogger())

	tag := seedTag(t, gdb, "golang")
	alive := seedBookmark(t, gdb, "https://alive.example", nil, tag.ID)
	dead := seedBookmark(t, gdb, "https://dead.example", nil, tag.ID)
	require.NoError(t, bookmarks.Delete(dead.ID))

	detail, err := tags.Get(tag.ID)
	require.NoError(t, err)
	require.Len(t, detail.Bookmarks, 1)
	assert.Equal(t, alive.ID, detail.Bookmarks[0].ID)
}

func TestTagDeleteUnknownIsNotFound(t *testing.T) {
	tags := NewTags(newTestDB(t), newTestLogger())
	err := tags.Delete(404)
	require.Error(t, err)
	assert.Equal(t, ErrNotFound, errors.Cause(err))
}
