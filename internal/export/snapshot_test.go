package export

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSnapshotDistributesBookmarks(t *testing.T) {
	folders := []Folder{
		{ID: 1, Name: "Dev", SortOrder: 0},
		{ID: 2, Name: "JS", ParentID: uintPtr(1), SortOrder: 0},
	}
	bookmarks := []Bookmark{
		{ID: 1, URL: "https://ts.example", Title: strPtr("TS"), FolderID: uintPtr(2), Tags: []string{"TypeScript"}},
		{ID: 2, URL: "https://unfiled.example"},
		{ID: 3, URL: "https://gone.example", FolderID: uintPtr(77)},
	}
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	snapshot := BuildSnapshot(folders, bookmarks, []Tag{{ID: 1, Name: "TypeScript", BookmarkCount: 1}}, now)

	assert.True(t, now.Equal(snapshot.ExportedAt))
	assert.Equal(t, Version, snapshot.Version)

	require.Len(t, snapshot.Folders, 1)
	dev := snapshot.Folders[0]
	assert.Equal(t, "Dev", dev.Name)
	assert.Empty(t, dev.Bookmarks)
	require.Len(t, dev.Children, 1)

	js := dev.Children[0]
	require.Len(t, js.Bookmarks, 1)
	assert.Equal(t, uint64(1), js.Bookmarks[0].ID)

	// unfiled and dangling-folder bookmarks live only in the flat list
	assert.Len(t, snapshot.Bookmarks, 3)

	require.Len(t, snapshot.Tags, 1)
	assert.Equal(t, int64(1), snapshot.Tags[0].BookmarkCount)
}
