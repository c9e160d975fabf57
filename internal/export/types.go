// Package export holds the denormalized snapshot shape served by the public
// export endpoint, plus the pure transforms over it: folder tree assembly,
// bookmark filtering, and the single-slot file cache.
package export

import "time"

const Version = "1.0"

type (
	Snapshot struct {
		ExportedAt time.Time  `json:"exportedAt"`
		Version    string     `json:"version"`
		Folders    []*Folder  `json:"folders"`
		Bookmarks  []Bookmark `json:"bookmarks"`
		Tags       []Tag      `json:"tags"`
	}

	Folder struct {
		ID        uint64     `json:"id"`
		Name      string     `json:"name"`
		ParentID  *uint64    `json:"parentId"`
		SortOrder int        `json:"sortOrder"`
		Children  []*Folder  `json:"children"`
		Bookmarks []Bookmark `json:"bookmarks"`
	}

	Bookmark struct {
		ID         uint64    `json:"id"`
		URL        string    `json:"url"`
		Title      *string   `json:"title"`
		Note       *string   `json:"note"`
		FolderID   *uint64   `json:"folderId"`
		FolderName *string   `json:"folderName"`
		Tags       []string  `json:"tags"`
		CreatedAt  time.Time `json:"createdAt"`
		UpdatedAt  time.Time `json:"updatedAt"`
	}

	Tag struct {
		ID            uint64 `json:"id"`
		Name          string `json:"name"`
		BookmarkCount int64  `json:"bookmarkCount"`
	}
)

// BuildSnapshot assembles the full export structure from flat row sets.
// Bookmarks are distributed into their owning folder node; bookmarks whose
// folder is not in the working set (unfiled ones included) appear only in
// the flat list.
func BuildSnapshot(folders []Folder, bookmarks []Bookmark, tags []Tag, now time.Time) *Snapshot {
	roots, index := BuildTree(folders)

	for i := range bookmarks {
		if bookmarks[i].FolderID == nil {
			continue
		}
		if node, ok := index[*bookmarks[i].FolderID]; ok {
			node.Bookmarks = append(node.Bookmarks, bookmarks[i])
		}
	}

	return &Snapshot{
		ExportedAt: now,
		Version:    Version,
		Folders:    roots,
		Bookmarks:  bookmarks,
		Tags:       tags,
	}
}
