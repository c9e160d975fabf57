package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func sample() []Bookmark {
	return []Bookmark{
		{
			ID:       1,
			URL:      "https://go.dev/doc",
			Title:    strPtr("Go Documentation"),
			FolderID: uintPtr(10),
			Tags:     []string{"golang", "reference"},
		},
		{
			ID:    2,
			URL:   "https://www.typescriptlang.org",
			Title: strPtr("TypeScript"),
			Note:  strPtr("typed javascript"),
			Tags:  []string{"typescript"},
		},
		{
			ID:       3,
			URL:      "https://example.com/post",
			Note:     strPtr("read later, about GO routines"),
			FolderID: uintPtr(10),
			Tags:     []string{"golang", "reference", "concurrency"},
		},
	}
}

func ids(bookmarks []Bookmark) []uint64 {
	out := []uint64{}
	for _, b := range bookmarks {
		out = append(out, b.ID)
	}
	return out
}

func TestFilterNoCriteriaPassesEverything(t *testing.T) {
	got := FilterBookmarks(sample(), Criteria{})
	assert.Equal(t, []uint64{1, 2, 3}, ids(got))
}

func TestFilterSearchCaseInsensitiveAcrossFields(t *testing.T) {
	// title hit
	got := FilterBookmarks(sample(), Criteria{Search: "documentation"})
	assert.Equal(t, []uint64{1}, ids(got))

	// url hit
	got = FilterBookmarks(sample(), Criteria{Search: "TYPESCRIPTLANG"})
	assert.Equal(t, []uint64{2}, ids(got))

	// note hit
	got = FilterBookmarks(sample(), Criteria{Search: "Read Later"})
	assert.Equal(t, []uint64{3}, ids(got))

	// any field suffices
	got = FilterBookmarks(sample(), Criteria{Search: "go"})
	assert.Equal(t, []uint64{1, 3}, ids(got))
}

func TestFilterSearchNilFieldsDoNotMatch(t *testing.T) {
	got := FilterBookmarks(sample(), Criteria{Search: "no such text"})
	assert.Empty(t, got)
}

func TestFilterFolderExactMatch(t *testing.T) {
	got := FilterBookmarks(sample(), Criteria{FolderID: uintPtr(10)})
	assert.Equal(t, []uint64{1, 3}, ids(got))

	// unfiled bookmarks never match a folder selection
	got = FilterBookmarks(sample(), Criteria{FolderID: uintPtr(999)})
	assert.Empty(t, got)
}

func TestFilterTagsAreIntersection(t *testing.T) {
	// a bookmark tagged only a subset is excluded
	got := FilterBookmarks(sample(), Criteria{Tags: []string{"golang", "concurrency"}})
	require.Equal(t, []uint64{3}, ids(got))

	// a superset of the selection is included
	got = FilterBookmarks(sample(), Criteria{Tags: []string{"golang", "reference"}})
	assert.Equal(t, []uint64{1, 3}, ids(got))

	got = FilterBookmarks(sample(), Criteria{Tags: []string{"golang", "typescript"}})
	assert.Empty(t, got)
}

func TestFilterCriteriaCompose(t *testing.T) {
	got := FilterBookmarks(sample(), Criteria{
		Search:   "go",
		FolderID: uintPtr(10),
		Tags:     []string{"concurrency"},
	})
	assert.Equal(t, []uint64{3}, ids(got))
}
