package export

import "sort"

// BuildTree nests a flat folder row set into a forest. A folder whose
// parent is missing from the input (deleted, or never existed) is promoted
// to a root rather than dropped. Sibling lists are sorted ascending by
// sortOrder at every level; the tie-break order is not deterministic.
//
// The returned index maps folder id to its node so callers can attach
// per-folder payloads without re-walking the forest.
func BuildTree(folders []Folder) ([]*Folder, map[uint64]*Folder) {
	index := make(map[uint64]*Folder, len(folders))
	for i := range folders {
		node := folders[i]
		node.Children = []*Folder{}
		node.Bookmarks = []Bookmark{}
		index[node.ID] = &node
	}

	roots := []*Folder{}
	for i := range folders {
		node := index[folders[i].ID]
		if node.ParentID != nil {
			if parent, ok := index[*node.ParentID]; ok && parent != node {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	sortSiblings(roots)
	return roots, index
}

func sortSiblings(nodes []*Folder) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].SortOrder < nodes[j].SortOrder
	})
	for _, node := range nodes {
		sortSiblings(node.Children)
	}
}
