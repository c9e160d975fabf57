package service

import (
	"net/url"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tabloom/tabloom-back/internal/db"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

type (
	Bookmarks struct {
		db     *gorm.DB
		logger *zap.SugaredLogger
	}

	BookmarkInput struct {
		URL   *string
		Title *string
		Note  *string
		// FolderSet distinguishes "unfile" (set, nil value) from "leave
		// folder alone"; same for TagIDs, where nil means no change and
		// an empty slice clears the tag set.
		FolderID  *uint64
		FolderSet bool
		TagIDs    []uint64
		TagsSet   bool
	}

	ListParams struct {
		Search   string
		FolderID *uint64
		TagID    *uint64
		Page     int
		Limit    int
	}

	BookmarkView struct {
		Bookmark   db.Bookmark
		FolderName *string
	}

	BookmarkPage struct {
		Bookmarks  []BookmarkView
		Page       int
		Limit      int
		Total      int64
		TotalPages int
	}
)

func NewBookmarks(gdb *gorm.DB, logger *zap.SugaredLogger) *Bookmarks {
	return &Bookmarks{db: gdb, logger: logger}
}

// List applies search/folder/tag filters server-side and pages the result,
// most recently updated first. The folder filter is exact-id, not
// tree-aware.
func (s *Bookmarks) List(p ListParams) (*BookmarkPage, error) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}

	where := squirrel.And{squirrel.Eq{"b.deleted": false}}
	if p.Search != "" {
		pattern := "%" + strings.ToLower(p.Search) + "%"
		where = append(where, squirrel.Or{
			squirrel.Expr("LOWER(b.title) LIKE ?", pattern),
			squirrel.Expr("LOWER(b.url) LIKE ?", pattern),
			squirrel.Expr("LOWER(b.note) LIKE ?", pattern),
		})
	}
	if p.FolderID != nil {
		where = append(where, squirrel.Eq{"b.folder_id": *p.FolderID})
	}
	if p.TagID != nil {
		where = append(where, squirrel.Expr(
			"EXISTS (SELECT 1 FROM bookmark_tags bt WHERE bt.bookmark_id = b.id AND bt.tag_id = ?)",
			*p.TagID,
		))
	}

	countSQL, countArgs, err := squirrel.
		Select("COUNT(*)").From("bookmarks b").Where(where).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build count sql")
	}
	var total int64
	if res := s.db.Raw(countSQL, countArgs...).Scan(&total); res.Error != nil {
		return nil, errors.Wrap(res.Error, "count")
	}

	pageSQL, pageArgs, err := squirrel.
		Select("b.id").From("bookmarks b").
		Where(where).
		OrderBy("b.updated_at DESC", "b.id DESC").
		Limit(uint64(p.Limit)).
		Offset(uint64((p.Page - 1) * p.Limit)).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build page sql")
	}
	ids := make([]uint64, 0)
	if res := s.db.Raw(pageSQL, pageArgs...).Scan(&ids); res.Error != nil {
		return nil, errors.Wrap(res.Error, "scan ids")
	}

	views, err := s.views(ids)
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(p.Limit) - 1) / int64(p.Limit))
	return &BookmarkPage{
		Bookmarks:  views,
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

func (s *Bookmarks) Get(id uint64) (*BookmarkView, error) {
	bookmark := db.Bookmark{}
	res := s.db.Preload("Tags").First(&bookmark, id)
	if res.Error != nil || bookmark.Deleted {
		return nil, errors.Wrap(ErrNotFound, "bookmark not found")
	}
	view := BookmarkView{Bookmark: bookmark}
	if err := s.resolveFolderName(&view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (s *Bookmarks) Create(in BookmarkInput) (*BookmarkView, error) {
	if in.URL == nil {
		return nil, errors.Wrap(ErrInvalid, "url is required")
	}
	if err := checkURL(*in.URL); err != nil {
		return nil, err
	}
	if in.FolderID != nil {
		if err := s.checkFolder(*in.FolderID); err != nil {
			return nil, err
		}
	}
	if err := s.checkTags(in.TagIDs); err != nil {
		return nil, err
	}

	bookmark := db.Bookmark{
		URL:      *in.URL,
		Title:    in.Title,
		Note:     in.Note,
		FolderID: in.FolderID,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if res := tx.Omit("Tags").Create(&bookmark); res.Error != nil {
			return res.Error
		}
		return insertTagLinks(tx, bookmark.ID, in.TagIDs)
	})
	if err != nil {
		return nil, err
	}

	return s.Get(bookmark.ID)
}

// Update applies only the supplied fields. A supplied tag set fully
// replaces the previous one: links are deleted and re-inserted in the same
// transaction as the row update, never diffed.
func (s *Bookmarks) Update(id uint64, in BookmarkInput) (*BookmarkView, error) {
	bookmark := db.Bookmark{}
	res := s.db.First(&bookmark, id)
	if res.Error != nil || bookmark.Deleted {
		return nil, errors.Wrap(ErrNotFound, "bookmark not found")
	}

	if in.URL != nil {
		if err := checkURL(*in.URL); err != nil {
			return nil, err
		}
		bookmark.URL = *in.URL
	}
	if in.Title != nil {
		bookmark.Title = in.Title
	}
	if in.Note != nil {
		bookmark.Note = in.Note
	}
	if in.FolderSet {
		if in.FolderID != nil {
			if err := s.checkFolder(*in.FolderID); err != nil {
				return nil, err
			}
		}
		bookmark.FolderID = in.FolderID
	}
	if in.TagsSet {
		if err := s.checkTags(in.TagIDs); err != nil {
			return nil, err
		}
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if res := tx.Omit("Tags").Save(&bookmark); res.Error != nil {
			return errors.Wrap(res.Error, "save bookmark")
		}
		if !in.TagsSet {
			return nil
		}
		if res := tx.Exec("DELETE FROM bookmark_tags WHERE bookmark_id = ?", id); res.Error != nil {
			return errors.Wrap(res.Error, "clear tag links")
		}
		return insertTagLinks(tx, id, in.TagIDs)
	})
	if err != nil {
		return nil, err
	}

	return s.Get(id)
}

// Delete is a soft delete; deleting an already-deleted bookmark reports
// not found rather than succeeding twice.
func (s *Bookmarks) Delete(id uint64) error {
	bookmark := db.Bookmark{}
	res := s.db.First(&bookmark, id)
	if res.Error != nil || bookmark.Deleted {
		return errors.Wrap(ErrNotFound, "bookmark not found")
	}
	res = s.db.Model(&db.Bookmark{}).Where("id = ?", id).Update("deleted", true)
	if res.Error != nil {
		return errors.Wrap(res.Error, "soft delete bookmark")
	}
	return nil
}

func (s *Bookmarks) views(ids []uint64) ([]BookmarkView, error) {
	if len(ids) == 0 {
		return []BookmarkView{}, nil
	}

	bookmarks := make([]db.Bookmark, 0, len(ids))
	res := s.db.Preload("Tags").Where("id IN ?", ids).Find(&bookmarks)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "load page")
	}

	byID := make(map[uint64]db.Bookmark, len(bookmarks))
	for i := range bookmarks {
		byID[bookmarks[i].ID] = bookmarks[i]
	}

	views := make([]BookmarkView, 0, len(ids))
	for _, id := range ids {
		bookmark, ok := byID[id]
		if !ok {
			continue
		}
		view := BookmarkView{Bookmark: bookmark}
		if err := s.resolveFolderName(&view); err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *Bookmarks) resolveFolderName(view *BookmarkView) error {
	if view.Bookmark.FolderID == nil {
		return nil
	}
	folder := db.Folder{}
	res := s.db.First(&folder, *view.Bookmark.FolderID)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil
		}
		return res.Error
	}
	view.FolderName = &folder.Name
	return nil
}

func (s *Bookmarks) checkFolder(folderID uint64) error {
	folder := db.Folder{}
	res := s.db.First(&folder, folderID)
	if res.Error != nil || folder.Deleted {
		return errors.Wrap(ErrInvalid, "folder not found")
	}
	return nil
}

func (s *Bookmarks) checkTags(tagIDs []uint64) error {
	if len(tagIDs) == 0 {
		return nil
	}
	var count int64
	res := s.db.Model(&db.Tag{}).Where("id IN ?", tagIDs).Count(&count)
	if res.Error != nil {
		return errors.Wrap(res.Error, "check tags")
	}
	if count != int64(len(tagIDs)) {
		return errors.Wrap(ErrInvalid, "unknown tag id")
	}
	return nil
}

func insertTagLinks(tx *gorm.DB, bookmarkID uint64, tagIDs []uint64) error {
	for _, tagID := range tagIDs {
		res := tx.Exec("INSERT INTO bookmark_tags (bookmark_id, tag_id) VALUES (?, ?)", bookmarkID, tagID)
		if res.Error != nil {
			return errors.Wrap(res.Error, "insert tag link")
		}
	}
	return nil
}

func checkURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return errors.Wrap(ErrInvalid, "url must be a valid absolute URL")
	}
	return nil
}
