package export

import "strings"

// Criteria narrows a snapshot's bookmark list. Zero values mean "no
// constraint" for their dimension.
type Criteria struct {
	// Search matches as a case-insensitive substring against title, url
	// or note; a hit on any one of them suffices.
	Search string
	// FolderID, when set, requires exact folder membership. The match is
	// not tree-aware: bookmarks in descendant folders do not qualify.
	FolderID *uint64
	// Tags requires every named tag to be present on the bookmark.
	Tags []string
}

// FilterBookmarks recomputes the visible list from scratch on every call.
// At snapshot scale there is nothing to be gained from indexing.
func FilterBookmarks(bookmarks []Bookmark, c Criteria) []Bookmark {
	out := []Bookmark{}
	for i := range bookmarks {
		if Matches(&bookmarks[i], c) {
			out = append(out, bookmarks[i])
		}
	}
	return out
}

func Matches(b *Bookmark, c Criteria) bool {
	if c.Search != "" && !searchMatches(b, c.Search) {
		return false
	}
	if c.FolderID != nil {
		if b.FolderID == nil || *b.FolderID != *c.FolderID {
			return false
		}
	}
	for _, want := range c.Tags {
		if !hasTag(b, want) {
			return false
		}
	}
	return true
}

func searchMatches(b *Bookmark, search string) bool {
	query := strings.ToLower(search)
	if strings.Contains(strings.ToLower(b.URL), query) {
		return true
	}
	if b.Title != nil && strings.Contains(strings.ToLower(*b.Title), query) {
		return true
	}
	if b.Note != nil && strings.Contains(strings.ToLower(*b.Note), query) {
		return true
	}
	return false
}

func hasTag(b *Bookmark, name string) bool {
	for _, tag := range b.Tags {
		if tag == name {
			return true
		}
	}
	return false
}
