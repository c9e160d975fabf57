package service

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tabloom/tabloom-back/internal/db"
	"github.com/tabloom/tabloom-back/internal/export"
)

type (
	Folders struct {
		db     *gorm.DB
		logger *zap.SugaredLogger
	}

	FolderInput struct {
		Name      *string
		ParentID  *uint64
		SortOrder *int
		// ParentSet distinguishes "move to root" (set, nil value) from
		// "leave parent alone" (unset).
		ParentSet bool
	}

	FolderSummary struct {
		ID        uint64
		Name      string
		SortOrder int
	}

	BookmarkSummary struct {
		ID    uint64
		URL   string
		Title *string
	}

	FolderDetail struct {
		Folder    db.Folder
		Parent    *FolderSummary
		Children  []FolderSummary
		Bookmarks []BookmarkSummary
	}
)

func NewFolders(gdb *gorm.DB, logger *zap.SugaredLogger) *Folders {
	return &Folders{db: gdb, logger: logger}
}

func (s *Folders) List() ([]db.Folder, error) {
	folders := make([]db.Folder, 0)
	res := s.db.Where("deleted = ?", false).Order("sort_order asc").Find(&folders)
	if res.Error != nil {
		return nil, res.Error
	}
	return folders, nil
}

// Tree returns the same set as List, nested.
func (s *Folders) Tree() ([]*export.Folder, error) {
	folders, err := s.List()
	if err != nil {
		return nil, err
	}
	rows := make([]export.Folder, len(folders))
	for i := range folders {
		rows[i] = export.Folder{
			ID:        folders[i].ID,
			Name:      folders[i].Name,
			ParentID:  folders[i].ParentID,
			SortOrder: folders[i].SortOrder,
		}
	}
	roots, _ := export.BuildTree(rows)
	return roots, nil
}

func (s *Folders) Get(id uint64) (*FolderDetail, error) {
	folder := db.Folder{}
	res := s.db.First(&folder, id)
	if res.Error != nil || folder.Deleted {
		return nil, errors.Wrap(ErrNotFound, "folder not found")
	}

	detail := FolderDetail{Folder: folder}

	if folder.ParentID != nil {
		parent := db.Folder{}
		if res := s.db.First(&parent, *folder.ParentID); res.Error == nil {
			detail.Parent = &FolderSummary{ID: parent.ID, Name: parent.Name, SortOrder: parent.SortOrder}
		}
	}

	children := make([]db.Folder, 0)
	res = s.db.Where("parent_id = ? AND deleted = ?", id, false).Order("sort_order asc").Find(&children)
	if res.Error != nil {
		return nil, res.Error
	}
	detail.Children = make([]FolderSummary, len(children))
	for i := range children {
		detail.Children[i] = FolderSummary{ID: children[i].ID, Name: children[i].Name, SortOrder: children[i].SortOrder}
	}

	bookmarks := make([]db.Bookmark, 0)
	res = s.db.Where("folder_id = ? AND deleted = ?", id, false).Find(&bookmarks)
	if res.Error != nil {
		return nil, res.Error
	}
	detail.Bookmarks = make([]BookmarkSummary, len(bookmarks))
	for i := range bookmarks {
		detail.Bookmarks[i] = BookmarkSummary{ID: bookmarks[i].ID, URL: bookmarks[i].URL, Title: bookmarks[i].Title}
	}

	return &detail, nil
}

func (s *Folders) Create(in FolderInput) (*db.Folder, error) {
	if in.Name == nil || *in.Name == "" {
		return nil, errors.Wrap(ErrInvalid, "folder name is required")
	}
	if in.ParentID != nil {
		if err := s.checkParent(*in.ParentID); err != nil {
			return nil, err
		}
	}

	folder := db.Folder{
		Name:     *in.Name,
		ParentID: in.ParentID,
	}
	if in.SortOrder != nil {
		folder.SortOrder = *in.SortOrder
	}
	if res := s.db.Create(&folder); res.Error != nil {
		return nil, res.Error
	}
	return &folder, nil
}

// Update applies only the supplied fields. A folder may not become its own
// parent; longer ancestor cycles are not detected here, the tree builder
// breaks them on read instead.
func (s *Folders) Update(id uint64, in FolderInput) (*db.Folder, error) {
	folder := db.Folder{}
	res := s.db.First(&folder, id)
	if res.Error != nil || folder.Deleted {
		return nil, errors.Wrap(ErrNotFound, "folder not found")
	}

	if in.ParentSet && in.ParentID != nil {
		if *in.ParentID == id {
			return nil, errors.Wrap(ErrInvalid, "folder cannot be its own parent")
		}
		if err := s.checkParent(*in.ParentID); err != nil {
			return nil, err
		}
	}

	if in.Name != nil {
		folder.Name = *in.Name
	}
	if in.ParentSet {
		folder.ParentID = in.ParentID
	}
	if in.SortOrder != nil {
		folder.SortOrder = *in.SortOrder
	}

	if res := s.db.Save(&folder); res.Error != nil {
		return nil, errors.Wrap(res.Error, "save folder")
	}
	return &folder, nil
}

// Delete soft-deletes the folder and every bookmark it directly owns in one
// transaction. Child folders are left pointing at the deleted parent; the
// tree builder promotes them to roots.
func (s *Folders) Delete(id uint64) error {
	folder := db.Folder{}
	res := s.db.First(&folder, id)
	if res.Error != nil || folder.Deleted {
		return errors.Wrap(ErrNotFound, "folder not found")
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if res := tx.Model(&db.Folder{}).Where("id = ?", id).Update("deleted", true); res.Error != nil {
			return errors.Wrap(res.Error, "soft delete folder")
		}
		if res := tx.Model(&db.Bookmark{}).Where("folder_id = ?", id).Update("deleted", true); res.Error != nil {
			return errors.Wrap(res.Error, "soft delete owned bookmarks")
		}
		return nil
	})
}

func (s *Folders) checkParent(parentID uint64) error {
	parent := db.Folder{}
	res := s.db.First(&parent, parentID)
	if res.Error != nil || parent.Deleted {
		return errors.Wrap(ErrInvalid, "parent folder not found")
	}
	return nil
}
