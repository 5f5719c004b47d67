package models

import (
	"time"
)

// Folder is a named node in the user's organization tree. It owns no
// content; history rows point at it through History.FolderID.
type Folder struct {
	ID         string    `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	ParentID   *string   `json:"parent_id" db:"parent_id"` // NULL = root level
	IsExpanded bool      `json:"is_expanded" db:"is_expanded"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// FolderUpdate is the set of folder columns a mutation touches.
type FolderUpdate struct {
	Name       Field[string] `json:"name"`
	ParentID   Field[string] `json:"parent_id"`
	IsExpanded Field[bool]   `json:"is_expanded"`
}

// Sparse returns a copy where explicit nulls mean "leave untouched".
func (u FolderUpdate) Sparse() FolderUpdate {
	return FolderUpdate{
		Name:       u.Name.Sparse(),
		ParentID:   u.ParentID.Sparse(),
		IsExpanded: u.IsExpanded.Sparse(),
	}
}

// IsEmpty reports whether the update touches no column.
func (u FolderUpdate) IsEmpty() bool {
	return !u.Name.Present && !u.ParentID.Present && !u.IsExpanded.Present
}

// FolderTreeNode represents a folder in the tree with nested children
type FolderTreeNode struct {
	Folder
	Children []*FolderTreeNode `json:"children"`
}

// BuildFolderTree nests a flat folder list. Folders whose parent is missing
// from the list are returned as roots. Input order is preserved among
// siblings.
func BuildFolderTree(folders []Folder) []*FolderTreeNode {
	nodes := make(map[string]*FolderTreeNode, len(folders))
	for _, f := range folders {
		nodes[f.ID] = &FolderTreeNode{Folder: f, Children: []*FolderTreeNode{}}
	}

	roots := []*FolderTreeNode{}
	for _, f := range folders {
		node := nodes[f.ID]
		if f.ParentID != nil {
			if parent, ok := nodes[*f.ParentID]; ok && parent != node {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	return roots
}
