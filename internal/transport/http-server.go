package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/tabloom/tabloom-back/internal/config"
	"github.com/tabloom/tabloom-back/internal/db"
	"github.com/tabloom/tabloom-back/internal/service"
)

type (
	LoginReq struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	RegisterReq struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=6"`
	}

	// NullableID keeps "field absent" apart from "field explicitly null"
	// on partial updates.
	NullableID struct {
		Set   bool
		Value *uint64
	}

	BookmarkCreateReq struct {
		URL      string   `json:"url" validate:"required"`
		Title    *string  `json:"title"`
		Note     *string  `json:"note"`
		FolderID *uint64  `json:"folderId"`
		TagIDs   []uint64 `json:"tagIds"`
	}

	BookmarkUpdateReq struct {
		URL      *string    `json:"url"`
		Title    *string    `json:"title"`
		Note     *string    `json:"note"`
		FolderID NullableID `json:"folderId"`
		TagIDs   *[]uint64  `json:"tagIds"`
	}

	FolderCreateReq struct {
		Name      string  `json:"name" validate:"required"`
		ParentID  *uint64 `json:"parentId"`
		SortOrder *int    `json:"sortOrder"`
	}

	FolderUpdateReq struct {
		Name      *string    `json:"name"`
		ParentID  NullableID `json:"parentId"`
		SortOrder *int       `json:"sortOrder"`
	}

	TagReq struct {
		Name string `json:"name" validate:"required"`
	}

	UserResp struct {
		ID    uint64 `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	}

	AuthResp struct {
		Token string   `json:"token"`
		User  UserResp `json:"user"`
	}

	TagRefResp struct {
		ID   uint64 `json:"id"`
		Name string `json:"name"`
	}

	BookmarkResp struct {
		ID         uint64       `json:"id"`
		URL        string       `json:"url"`
		Title      *string      `json:"title"`
		Note       *string      `json:"note"`
		FolderID   *uint64      `json:"folderId"`
		FolderName *string      `json:"folderName"`
		Tags       []TagRefResp `json:"tags"`
		CreatedAt  time.Time    `json:"createdAt"`
		UpdatedAt  time.Time    `json:"updatedAt"`
	}

	PaginationResp struct {
		Page       int   `json:"page"`
		Limit      int   `json:"limit"`
		Total      int64 `json:"total"`
		TotalPages int   `json:"totalPages"`
	}

	BookmarkListResp struct {
		Bookmarks  []BookmarkResp `json:"bookmarks"`
		Pagination PaginationResp `json:"pagination"`
	}

	FolderResp struct {
		ID        uint64    `json:"id"`
		Name      string    `json:"name"`
		ParentID  *uint64   `json:"parentId"`
		SortOrder int       `json:"sortOrder"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	FolderSummaryResp struct {
		ID        uint64 `json:"id"`
		Name      string `json:"name"`
		SortOrder int    `json:"sortOrder"`
	}

	BookmarkSummaryResp struct {
		ID    uint64  `json:"id"`
		URL   string  `json:"url"`
		Title *string `json:"title"`
	}

	FolderDetailResp struct {
		FolderResp
		Parent    *FolderSummaryResp    `json:"parent"`
		Children  []FolderSummaryResp   `json:"children"`
		Bookmarks []BookmarkSummaryResp `json:"bookmarks"`
	}

	TagResp struct {
		ID            uint64    `json:"id"`
		Name          string    `json:"name"`
		BookmarkCount int64     `json:"bookmarkCount"`
		CreatedAt     time.Time `json:"createdAt"`
		UpdatedAt     time.Time `json:"updatedAt"`
	}

	TagDetailResp struct {
		ID        uint64                `json:"id"`
		Name      string                `json:"name"`
		CreatedAt time.Time             `json:"createdAt"`
		UpdatedAt time.Time             `json:"updatedAt"`
		Bookmarks []BookmarkSummaryResp `json:"bookmarks"`
	}

	JobResp struct {
		ID           string     `json:"id"`
		Status       string     `json:"status"`
		StartedAt    time.Time  `json:"startedAt"`
		FinishedAt   *time.Time `json:"finishedAt"`
		ErrorMessage *string    `json:"errorMessage"`
	}

	CustomValidator struct {
		validator *validator.Validate
	}

	HTTPServer struct {
		auth      *service.Auth
		bookmarks *service.Bookmarks
		folders   *service.Folders
		tags      *service.Tags
		export    *service.Export
		logger    *zap.SugaredLogger
	}
)

func (o *NullableID) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

func NewHTTPServer(
	lc fx.Lifecycle,
	cfg *config.Config,
	logger *zap.SugaredLogger,
	auth *service.Auth,
	bookmarks *service.Bookmarks,
	folders *service.Folders,
	tags *service.Tags,
	exportSvc *service.Export,
) *HTTPServer {
	e := echo.New()
	e.HideBanner = true

	instance := HTTPServer{
		auth:      auth,
		bookmarks: bookmarks,
		folders:   folders,
		tags:      tags,
		export:    exportSvc,
		logger:    logger,
	}

	authG := e.Group("/auth", middleware.BodyDump(instance.LogAuthBody))
	authG.POST("/login", instance.Login)
	authG.POST("/register", instance.Register)

	bookmarkG := e.Group("/bookmarks")
	bookmarkG.GET("", instance.BookmarkList)
	bookmarkG.GET("/:id", instance.BookmarkGet)
	bookmarkG.POST("", instance.BookmarkCreate)
	bookmarkG.PUT("/:id", instance.BookmarkUpdate)
	bookmarkG.DELETE("/:id", instance.BookmarkDelete)

	folderG := e.Group("/folders")
	folderG.GET("", instance.FolderList)
	folderG.GET("/:id", instance.FolderGet)
	folderG.POST("", instance.FolderCreate)
	folderG.PUT("/:id", instance.FolderUpdate)
	folderG.DELETE("/:id", instance.FolderDelete)

	tagG := e.Group("/tags")
	tagG.GET("", instance.TagList)
	tagG.GET("/:id", instance.TagGet)
	tagG.POST("", instance.TagCreate)
	tagG.PUT("/:id", instance.TagUpdate)
	tagG.DELETE("/:id", instance.TagDelete)

	exportG := e.Group("/export")
	exportG.GET("/json", instance.ExportJSON)
	exportG.POST("/trigger", instance.ExportTrigger)
	exportG.GET("/jobs", instance.ExportJobs)
	exportG.GET("/jobs/:id", instance.ExportJob)

	e.GET("/health", instance.Health)

	e.Use(middleware.CORS())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.Use(instance.AuthMiddleware)

	e.Validator = &CustomValidator{validator: validator.New()}
	e.HTTPErrorHandler = instance.ErrorHandler

	echo.NotFoundHandler = func(c echo.Context) error {
		return c.NoContent(http.StatusNotFound)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				listen := cfg.Host + ":" + cfg.Port
				if err := e.Start(listen); err != nil && err != http.ErrServerClosed {
					e.Logger.Fatal("shutting down the server")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping HTTP server.")
			return e.Shutdown(ctx)
		},
	})

	return &instance
}

func (s *HTTPServer) Login(c echo.Context) error {
	req := LoginReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	identity, err := s.auth.Login(req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, authResp(identity))
}

func (s *HTTPServer) Register(c echo.Context) error {
	req := RegisterReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	identity, err := s.auth.Register(req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, authResp(identity))
}

func (s *HTTPServer) BookmarkList(c echo.Context) error {
	params := service.ListParams{
		Search: c.QueryParam("search"),
	}
	if v := c.QueryParam("folderId"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return errors.Wrap(service.ErrInvalid, "invalid folderId")
		}
		params.FolderID = &id
	}
	if v := c.QueryParam("tagId"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return errors.Wrap(service.ErrInvalid, "invalid tagId")
		}
		params.TagID = &id
	}
	params.Page, _ = strconv.Atoi(c.QueryParam("page"))
	params.Limit, _ = strconv.Atoi(c.QueryParam("limit"))

	page, err := s.bookmarks.List(params)
	if err != nil {
		return err
	}

	resp := BookmarkListResp{
		Bookmarks: make([]BookmarkResp, len(page.Bookmarks)),
		Pagination: PaginationResp{
			Page:       page.Page,
			Limit:      page.Limit,
			Total:      page.Total,
			TotalPages: page.TotalPages,
		},
	}
	for i := range page.Bookmarks {
		resp.Bookmarks[i] = bookmarkResp(&page.Bookmarks[i])
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) BookmarkGet(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}
	view, err := s.bookmarks.Get(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, bookmarkResp(view))
}

func (s *HTTPServer) BookmarkCreate(c echo.Context) error {
	req := BookmarkCreateReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	view, err := s.bookmarks.Create(service.BookmarkInput{
		URL:       &req.URL,
		Title:     req.Title,
		Note:      req.Note,
		FolderID:  req.FolderID,
		FolderSet: true,
		TagIDs:    req.TagIDs,
		TagsSet:   true,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, bookmarkResp(view))
}

func (s *HTTPServer) BookmarkUpdate(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}
	req := BookmarkUpdateReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	in := service.BookmarkInput{
		URL:       req.URL,
		Title:     req.Title,
		Note:      req.Note,
		FolderID:  req.FolderID.Value,
		FolderSet: req.FolderID.Set,
	}
	if req.TagIDs != nil {
		in.TagIDs = *req.TagIDs
		in.TagsSet = true
	}

	view, err := s.bookmarks.Update(id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, bookmarkResp(view))
}

func (s *HTTPServer) BookmarkDelete(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}
	if err := s.bookmarks.Delete(id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) FolderList(c echo.Context) error {
	if c.QueryParam("flat") == "true" {
		folders, err := s.folders.List()
		if err != nil {
			return err
		}
		resp := make([]FolderResp, len(folders))
		for i := range folders {
			resp[i] = folderResp(&folders[i])
		}
		return c.JSON(http.StatusOK, echo.Map{"folders": resp})
	}

	tree, err := s.folders.Tree()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"folders": tree})
}

func (s *HTTPServer) FolderGet(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}
	detail, err := s.folders.Get(id)
	if err != nil {
		return err
	}

	resp := FolderDetailResp{
		FolderResp: folderResp(&detail.Folder),
		Children:   make([]FolderSummaryResp, len(detail.Children)),
		Bookmarks:  make([]BookmarkSummaryResp, len(detail.Bookmarks)),
	}
	if detail.Parent != nil {
		resp.Parent = &FolderSummaryResp{
			ID:        detail.Parent.ID,
			Name:      detail.Parent.Name,
			SortOrder: detail.Parent.SortOrder,
		}
	}
	for i := range detail.Children {
		resp.Children[i] = FolderSummaryResp{
			ID:        detail.Children[i].ID,
			Name:      detail.Children[i].Name,
			SortOrder: detail.Children[i].SortOrder,
		}
	}
	for i := range detail.Bookmarks {
		resp.Bookmarks[i] = BookmarkSummaryResp{
			ID:    detail.Bookmarks[i].ID,
			URL:   detail.Bookmarks[i].URL,
			Title: detail.Bookmarks[i].Title,
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) FolderCreate(c echo.Context) error {
	req := FolderCreateReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	folder, err := s.folders.Create(service.FolderInput{
		Name:      &req.Name,
		ParentID:  req.ParentID,
		ParentSet: true,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, folderResp(folder))
}

func (s *HTTPServer) FolderUpdate(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}
	req := FolderUpdateReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	folder, err := s.folders.Update(id, service.FolderInput{
		Name:      req.Name,
		ParentID:  req.ParentID.Value,
		ParentSet: req.ParentID.Set,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, folderResp(folder))
}

func (s *HTTPServer) FolderDelete(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}
	if err := s.folders.Delete(id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) TagList(c echo.Context) error {
	tags, err := s.tags.List()
	if err != nil {
		return err
	}
	resp := make([]TagResp, len(tags))
	for i := range tags {
		resp[i] = TagResp{
			ID:            tags[i].ID,
			Name:          tags[i].Name,
			BookmarkCount: tags[i].BookmarkCount,
			CreatedAt:     tags[i].CreatedAt,
			UpdatedAt:     tags[i].UpdatedAt,
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"tags": resp})
}

func (s *HTTPServer) TagGet(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}
	detail, err := s.tags.Get(id)
	if err != nil {
		return err
	}

	resp := TagDetailResp{
		ID:        detail.Tag.ID,
		Name:      detail.Tag.Name,
		CreatedAt: detail.Tag.CreatedAt,
		UpdatedAt: detail.Tag.UpdatedAt,
		Bookmarks: make([]BookmarkSummaryResp, len(detail.Bookmarks)),
	}
	for i := range detail.Bookmarks {
		resp.Bookmarks[i] = BookmarkSummaryResp{
			ID:    detail.Bookmarks[i].ID,
			URL:   detail.Bookmarks[i].URL,
			Title: detail.Bookmarks[i].Title,
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) TagCreate(c echo.Context) error {
	req := TagReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}
	tag, err := s.tags.Create(req.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, TagResp{
		ID:        tag.ID,
		Name:      tag.Name,
		CreatedAt: tag.CreatedAt,
		UpdatedAt: tag.UpdatedAt,
	})
}

func (s *HTTPServer) TagUpdate(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}
	req := TagReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}
	tag, err := s.tags.Update(id, req.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TagResp{
		ID:        tag.ID,
		Name:      tag.Name,
		CreatedAt: tag.CreatedAt,
		UpdatedAt: tag.UpdatedAt,
	})
}

func (s *HTTPServer) TagDelete(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}
	if err := s.tags.Delete(id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ExportJSON is the one unauthenticated data endpoint: it serves the cached
// snapshot, or a live one with ?fresh=true or on a cache miss.
func (s *HTTPServer) ExportJSON(c echo.Context) error {
	fresh := c.QueryParam("fresh") == "true"
	snapshot, err := s.export.LoadOrGenerate(fresh)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, snapshot)
}

func (s *HTTPServer) ExportTrigger(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	jobID, err := s.export.RunJob()
	if err != nil {
		return err
	}
	s.logger.Infow("export triggered", "user", user.Email, "jobId", jobID)
	return c.JSON(http.StatusOK, echo.Map{
		"message": "Export completed",
		"jobId":   jobID,
	})
}

func (s *HTTPServer) ExportJobs(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	jobs, err := s.export.Jobs(limit)
	if err != nil {
		return err
	}
	resp := make([]JobResp, len(jobs))
	for i := range jobs {
		resp[i] = jobResp(&jobs[i])
	}
	return c.JSON(http.StatusOK, echo.Map{"jobs": resp})
}

func (s *HTTPServer) ExportJob(c echo.Context) error {
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	job, err := s.export.Job(id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, jobResp(job))
}

func (s *HTTPServer) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *HTTPServer) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	public := map[string]bool{
		"/auth/login":    true,
		"/auth/register": true,
		"/export/json":   true,
		"/health":        true,
	}
	return func(c echo.Context) error {
		if public[c.Path()] {
			return next(c)
		}

		header := c.Request().Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			return c.NoContent(http.StatusUnauthorized)
		}
		token := strings.TrimPrefix(header, "Bearer ")

		user, err := s.auth.VerifyToken(token)
		if err != nil {
			return c.NoContent(http.StatusUnauthorized)
		}

		c.Set("user", user)
		return next(c)
	}
}

// ErrorHandler maps the service error taxonomy onto HTTP statuses. Internal
// detail stays in the log; the client gets a generic message.
func (s *HTTPServer) ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	if he, ok := err.(*echo.HTTPError); ok {
		_ = c.JSON(he.Code, echo.Map{"error": he.Message})
		return
	}

	switch errors.Cause(err) {
	case service.ErrInvalid:
		_ = c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case service.ErrUnauthorized:
		_ = c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
	case service.ErrForbidden:
		_ = c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case service.ErrNotFound:
		_ = c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case service.ErrConflict:
		_ = c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	default:
		s.logger.Errorw("internal error", "path", c.Path(), "error", err)
		_ = c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}

////////

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func BindAndValidate(c echo.Context, v interface{}) error {
	var err error
	if err = c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err = c.Validate(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func GetUserFromContext(c echo.Context) (*db.User, error) {
	user, _ := c.Get("user").(*db.User)
	if user == nil {
		return nil, errors.New("no user found in context")
	}
	return user, nil
}

func GetParam(c echo.Context, name string) (string, error) {
	value := c.Param(name)
	if value == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid path param '"+name+"'")
	}
	return value, nil
}

func GetAndParseParam(c echo.Context, name string) (uint64, error) {
	v, e := GetParam(c, name)
	if e != nil {
		return 0, e
	}
	vv, e := strconv.ParseUint(v, 10, 64)
	if e != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid path param '"+name+"'")
	}
	return vv, nil
}

func authResp(identity *service.Identity) AuthResp {
	return AuthResp{
		Token: identity.Token,
		User: UserResp{
			ID:    identity.User.ID,
			Email: identity.User.Email,
			Role:  identity.User.Role,
		},
	}
}

func bookmarkResp(view *service.BookmarkView) BookmarkResp {
	tags := make([]TagRefResp, len(view.Bookmark.Tags))
	for i := range view.Bookmark.Tags {
		tags[i] = TagRefResp{
			ID:   view.Bookmark.Tags[i].ID,
			Name: view.Bookmark.Tags[i].Name,
		}
	}
	return BookmarkResp{
		ID:         view.Bookmark.ID,
		URL:        view.Bookmark.URL,
		Title:      view.Bookmark.Title,
		Note:       view.Bookmark.Note,
		FolderID:   view.Bookmark.FolderID,
		FolderName: view.FolderName,
		Tags:       tags,
		CreatedAt:  view.Bookmark.CreatedAt,
		UpdatedAt:  view.Bookmark.UpdatedAt,
	}
}

func folderResp(folder *db.Folder) FolderResp {
	return FolderResp{
		ID:        folder.ID,
		Name:      folder.Name,
		ParentID:  folder.ParentID,
		SortOrder: folder.SortOrder,
		CreatedAt: folder.CreatedAt,
		UpdatedAt: folder.UpdatedAt,
	}
}

func jobResp(job *db.ExportJob) JobResp {
	return JobResp{
		ID:           job.ID,
		Status:       job.Status,
		StartedAt:    job.StartedAt,
		FinishedAt:   job.FinishedAt,
		ErrorMessage: job.ErrorMessage,
	}
}
