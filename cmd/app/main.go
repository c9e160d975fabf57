package main

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/tabloom/tabloom-back/internal/config"
	"github.com/tabloom/tabloom-back/internal/db"
	"github.com/tabloom/tabloom-back/internal/export"
	"github.com/tabloom/tabloom-back/internal/service"
	"github.com/tabloom/tabloom-back/internal/transport"
)

func main() {
	app := fx.New(
		fx.Provide(
			NewSugaredLogger,
			config.NewConfig,
			db.NewGormClient,
			NewExportCache,
			service.NewAuth,
			service.NewBookmarks,
			service.NewFolders,
			service.NewTags,
			service.NewExport,
			transport.NewHTTPServer,
		),
		fx.Invoke(ReconcileExportJobs),
		fx.Invoke(func(*transport.HTTPServer) {}),
	)
	app.Run()
}

func NewSugaredLogger() (*zap.SugaredLogger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func NewExportCache(cfg *config.Config) *export.Cache {
	return export.NewCache(cfg.ExportDir)
}

// ReconcileExportJobs fails export jobs orphaned in running state by an
// earlier crash, before the server starts taking traffic.
func ReconcileExportJobs(lc fx.Lifecycle, cfg *config.Config, exportSvc *service.Export) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			olderThan := time.Duration(cfg.ExportStaleAfterMinutes) * time.Minute
			_, err := exportSvc.ReconcileStaleJobs(olderThan)
			return err
		},
	})
}
