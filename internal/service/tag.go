package service

import (
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tabloom/tabloom-back/internal/db"
)

type (
	Tags struct {
		db     *gorm.DB
		logger *zap.SugaredLogger
	}

	// TagWithCount annotates a tag with its live join-row count. The count
	// is taken straight from the join table and so includes soft-deleted
	// bookmarks.
	TagWithCount struct {
		ID            uint64
		Name          string
		BookmarkCount int64
		CreatedAt     time.Time
		UpdatedAt     time.Time
	}

	TagDetail struct {
		Tag       db.Tag
		Bookmarks []BookmarkSummary
	}
)

func NewTags(gdb *gorm.DB, logger *zap.SugaredLogger) *Tags {
	return &Tags{db: gdb, logger: logger}
}

func (s *Tags) List() ([]TagWithCount, error) {
	return tagCounts(s.db)
}

// tagCounts is shared with the export snapshot assembly.
func tagCounts(gdb *gorm.DB) ([]TagWithCount, error) {
	sql, args, err := squirrel.
		Select(
			"t.id",
			"t.name",
			"t.created_at",
			"t.updated_at",
			"COUNT(bt.bookmark_id) AS bookmark_count",
		).
		From("tags t").
		LeftJoin("bookmark_tags bt ON bt.tag_id = t.id").
		GroupBy("t.id", "t.name", "t.created_at", "t.updated_at").
		OrderBy("t.name").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build sql")
	}

	tags := make([]TagWithCount, 0)
	res := gdb.Raw(sql, args...).Scan(&tags)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "scan")
	}
	return tags, nil
}

// Get returns the tag together with its non-deleted bookmarks.
func (s *Tags) Get(id uint64) (*TagDetail, error) {
	tag := db.Tag{}
	res := s.db.First(&tag, id)
	if res.Error != nil {
		return nil, errors.Wrap(ErrNotFound, "tag not found")
	}

	sql, args, err := squirrel.
		Select("b.id", "b.url", "b.title").
		From("bookmarks b").
		Join("bookmark_tags bt ON bt.bookmark_id = b.id").
		Where(squirrel.Eq{"bt.tag_id": id, "b.deleted": false}).
		OrderBy("b.id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build sql")
	}

	bookmarks := make([]BookmarkSummary, 0)
	res = s.db.Raw(sql, args...).Scan(&bookmarks)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "scan")
	}

	return &TagDetail{Tag: tag, Bookmarks: bookmarks}, nil
}

func (s *Tags) Create(name string) (*db.Tag, error) {
	if err := s.checkNameFree(name, 0); err != nil {
		return nil, err
	}

	tag := db.Tag{Name: name}
	if res := s.db.Create(&tag); res.Error != nil {
		return nil, res.Error
	}
	return &tag, nil
}

func (s *Tags) Update(id uint64, name string) (*db.Tag, error) {
	tag := db.Tag{}
	res := s.db.First(&tag, id)
	if res.Error != nil {
		return nil, errors.Wrap(ErrNotFound, "tag not found")
	}

	if err := s.checkNameFree(name, id); err != nil {
		return nil, err
	}

	tag.Name = name
	if res := s.db.Save(&tag); res.Error != nil {
		return nil, errors.Wrap(res.Error, "save tag")
	}
	return &tag, nil
}

// Delete removes the tag for real (no soft delete for tags) along with its
// join rows, in one transaction.
func (s *Tags) Delete(id uint64) error {
	tag := db.Tag{}
	res := s.db.First(&tag, id)
	if res.Error != nil {
		return errors.Wrap(ErrNotFound, "tag not found")
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if res := tx.Exec("DELETE FROM bookmark_tags WHERE tag_id = ?", id); res.Error != nil {
			return errors.Wrap(res.Error, "delete tag links")
		}
		if res := tx.Delete(&db.Tag{}, id); res.Error != nil {
			return errors.Wrap(res.Error, "delete tag")
		}
		return nil
	})
}

func (s *Tags) checkNameFree(name string, selfID uint64) error {
	var conflicts int64
	q := s.db.Model(&db.Tag{}).Where("name = ?", name)
	if selfID != 0 {
		q = q.Where("id <> ?", selfID)
	}
	if res := q.Count(&conflicts); res.Error != nil {
		return errors.Wrap(res.Error, "check tag name")
	}
	if conflicts > 0 {
		return errors.Wrap(ErrConflict, "tag name already exists")
	}
	return nil
}
