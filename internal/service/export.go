package service

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tabloom/tabloom-back/internal/db"
	"github.com/tabloom/tabloom-back/internal/export"
)

const staleJobMessage = "job abandoned: still running past the stale deadline"

type Export struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
	cache  *export.Cache
	now    func() time.Time
}

func NewExport(gdb *gorm.DB, logger *zap.SugaredLogger, cache *export.Cache) *Export {
	return &Export{
		db:     gdb,
		logger: logger,
		cache:  cache,
		now:    time.Now,
	}
}

// Generate assembles a point-in-time denormalized view. It performs no
// writes and offers no isolation beyond the store's default read
// consistency: a write landing mid-assembly may or may not be reflected.
func (s *Export) Generate() (*export.Snapshot, error) {
	folders := make([]db.Folder, 0)
	res := s.db.Where("deleted = ?", false).Order("sort_order asc").Find(&folders)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "load folders")
	}

	bookmarks := make([]db.Bookmark, 0)
	res = s.db.Preload("Tags").
		Where("deleted = ?", false).
		Order("updated_at desc, id desc").
		Find(&bookmarks)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "load bookmarks")
	}

	counts, err := tagCounts(s.db)
	if err != nil {
		return nil, errors.Wrap(err, "load tag counts")
	}

	folderNames := make(map[uint64]string, len(folders))
	folderRows := make([]export.Folder, len(folders))
	for i := range folders {
		folderNames[folders[i].ID] = folders[i].Name
		folderRows[i] = export.Folder{
			ID:        folders[i].ID,
			Name:      folders[i].Name,
			ParentID:  folders[i].ParentID,
			SortOrder: folders[i].SortOrder,
		}
	}

	bookmarkRows := make([]export.Bookmark, len(bookmarks))
	for i := range bookmarks {
		tagNames := make([]string, len(bookmarks[i].Tags))
		for j := range bookmarks[i].Tags {
			tagNames[j] = bookmarks[i].Tags[j].Name
		}
		sort.Strings(tagNames)

		row := export.Bookmark{
			ID:        bookmarks[i].ID,
			URL:       bookmarks[i].URL,
			Title:     bookmarks[i].Title,
			Note:      bookmarks[i].Note,
			FolderID:  bookmarks[i].FolderID,
			Tags:      tagNames,
			CreatedAt: bookmarks[i].CreatedAt,
			UpdatedAt: bookmarks[i].UpdatedAt,
		}
		if row.FolderID != nil {
			if name, ok := folderNames[*row.FolderID]; ok {
				row.FolderName = &name
			}
		}
		bookmarkRows[i] = row
	}

	tagRows := make([]export.Tag, len(counts))
	for i := range counts {
		tagRows[i] = export.Tag{
			ID:            counts[i].ID,
			Name:          counts[i].Name,
			BookmarkCount: counts[i].BookmarkCount,
		}
	}

	return export.BuildSnapshot(folderRows, bookmarkRows, tagRows, s.now()), nil
}

// LoadOrGenerate serves the read path of the public export endpoint.
// fresh=true bypasses the cache; a cache miss falls back to a live
// generation. Neither path writes the cache, only RunJob does.
func (s *Export) LoadOrGenerate(fresh bool) (*export.Snapshot, error) {
	if !fresh {
		if snapshot, ok := s.cache.Load(); ok {
			return snapshot, nil
		}
	}
	return s.Generate()
}

// RunJob generates and persists a snapshot under an ExportJob row. The job
// id is returned even when generation fails, alongside the failure itself.
// Concurrent runs race on the cache slot; the last writer wins.
func (s *Export) RunJob() (string, error) {
	job := db.ExportJob{
		ID:        uuid.New().String(),
		Status:    db.JobStatusRunning,
		StartedAt: s.now(),
	}
	if res := s.db.Create(&job); res.Error != nil {
		return "", errors.Wrap(res.Error, "create export job")
	}

	if err := s.runInner(); err != nil {
		s.finishJob(&job, db.JobStatusFailure, err.Error())
		return job.ID, err
	}

	s.finishJob(&job, db.JobStatusSuccess, "")
	return job.ID, nil
}

func (s *Export) runInner() error {
	snapshot, err := s.Generate()
	if err != nil {
		return err
	}
	path, err := s.cache.Save(snapshot)
	if err != nil {
		return err
	}
	s.logger.Infow("export snapshot persisted",
		"path", path,
		"bookmarks", len(snapshot.Bookmarks),
		"tags", len(snapshot.Tags),
	)
	return nil
}

func (s *Export) finishJob(job *db.ExportJob, status, errorMessage string) {
	finished := s.now()
	job.Status = status
	job.FinishedAt = &finished
	if errorMessage != "" {
		job.ErrorMessage = &errorMessage
	}
	if res := s.db.Save(job); res.Error != nil {
		s.logger.Errorw("failed to record export job outcome", "job", job.ID, "error", res.Error)
	}
}

func (s *Export) Jobs(limit int) ([]db.ExportJob, error) {
	if limit < 1 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}
	jobs := make([]db.ExportJob, 0)
	res := s.db.Order("started_at desc").Limit(limit).Find(&jobs)
	if res.Error != nil {
		return nil, res.Error
	}
	return jobs, nil
}

func (s *Export) Job(id string) (*db.ExportJob, error) {
	job := db.ExportJob{}
	res := s.db.First(&job, "id = ?", id)
	if res.Error != nil {
		return nil, errors.Wrap(ErrNotFound, "export job not found")
	}
	return &job, nil
}

// ReconcileStaleJobs fails any job left in running state longer than the
// given age. A crash mid-generation would otherwise pin its job to
// "running" forever. Meant to run once at startup.
func (s *Export) ReconcileStaleJobs(olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan)
	message := staleJobMessage
	finished := s.now()
	res := s.db.Model(&db.ExportJob{}).
		Where("status = ? AND started_at < ?", db.JobStatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":        db.JobStatusFailure,
			"finished_at":   &finished,
			"error_message": &message,
		})
	if res.Error != nil {
		return 0, errors.Wrap(res.Error, "reconcile stale jobs")
	}
	if res.RowsAffected > 0 {
		s.logger.Warnw("reconciled stale export jobs", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
