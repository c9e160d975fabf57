package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tabloom/tabloom-back/internal/config"
)

const (
	JobStatusRunning = "running"
	JobStatusSuccess = "success"
	JobStatusFailure = "failure"
)

type (
	// GormForkedModel is gorm.Model with a uint64 PK and without DeletedAt:
	// soft deletion here is an explicit domain flag, not gorm's.
	GormForkedModel struct {
		ID        uint64 `gorm:"primarykey"`
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	User struct {
		GormForkedModel
		Email        string `gorm:"unique;not null"`
		PasswordHash string `gorm:"not null"`
		Role         string `gorm:"not null"`
	}

	Folder struct {
		GormForkedModel
		Name      string  `gorm:"not null"`
		ParentID  *uint64 `gorm:"index"`
		SortOrder int     `gorm:"not null;default:0"`
		Deleted   bool    `gorm:"not null;default:false;index"`
	}

	Bookmark struct {
		GormForkedModel
		URL      string `gorm:"not null"`
		Title    *string
		Note     *string
		FolderID *uint64 `gorm:"index"`
		Deleted  bool    `gorm:"not null;default:false;index"`
		Tags     []Tag   `gorm:"many2many:bookmark_tags;"`
	}

	Tag struct {
		GormForkedModel
		Name      string     `gorm:"not null;uniqueIndex"`
		Bookmarks []Bookmark `gorm:"many2many:bookmark_tags;"`
	}

	// ExportJob rows are append-only: once a job reaches a terminal
	// status it is never touched again.
	ExportJob struct {
		ID           string `gorm:"primarykey"`
		Status       string `gorm:"not null"`
		StartedAt    time.Time
		FinishedAt   *time.Time
		ErrorMessage *string
	}
)

func NewGormClient(cfg *config.Config) (*gorm.DB, error) {
	newLogger := logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Info,
		Colorful:                  true,
		IgnoreRecordNotFoundError: false,
	})

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect database")
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate is separate from NewGormClient so tests can run the same schema
// against a throwaway sqlite database.
func Migrate(db *gorm.DB) error {
	for _, model := range []interface{}{&User{}, &Folder{}, &Bookmark{}, &Tag{}, &ExportJob{}} {
		if err := db.AutoMigrate(model); err != nil {
			return errors.Wrapf(err, "migrate %T", model)
		}
	}
	return nil
}
