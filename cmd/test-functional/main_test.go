package test_functional

import (
	"context"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "s3cret-admin-pass"
)

type (
	AuthResp struct {
		Token string `json:"token"`
		User  struct {
			ID    uint64 `json:"id"`
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
	}

	FolderResp struct {
		ID   uint64 `json:"id"`
		Name string `json:"name"`
	}

	TagResp struct {
		ID   uint64 `json:"id"`
		Name string `json:"name"`
	}

	BookmarkResp struct {
		ID         uint64  `json:"id"`
		URL        string  `json:"url"`
		Title      *string `json:"title"`
		FolderName *string `json:"folderName"`
	}

	ListResp struct {
		Bookmarks  []BookmarkResp `json:"bookmarks"`
		Pagination struct {
			Page       int   `json:"page"`
			Limit      int   `json:"limit"`
			Total      int64 `json:"total"`
			TotalPages int   `json:"totalPages"`
		} `json:"pagination"`
	}

	SnapshotResp struct {
		Version   string `json:"version"`
		Bookmarks []struct {
			URL  string   `json:"url"`
			Tags []string `json:"tags"`
		} `json:"bookmarks"`
	}

	TriggerResp struct {
		JobID string `json:"jobId"`
	}
)

func uintStr(v uint64) string { return strconv.FormatUint(v, 10) }

// obtainToken registers the first admin, or logs in when one already exists
// from a previous run against the same database.
func obtainToken(t *testing.T, ctx context.Context) string {
	t.Helper()
	cl := resty.New()

	registerURL := AppBaseURL
	registerURL.Path = "/auth/register"
	resp, err := cl.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetResult(&AuthResp{}).
		SetBody(map[string]string{"email": adminEmail, "password": adminPassword}).
		Post(registerURL.String())
	require.NoError(t, err)

	if resp.StatusCode() == http.StatusCreated {
		return resp.Result().(*AuthResp).Token
	}
	require.Equal(t, http.StatusForbidden, resp.StatusCode())

	loginURL := AppBaseURL
	loginURL.Path = "/auth/login"
	resp, err = cl.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetResult(&AuthResp{}).
		SetBody(map[string]string{"email": adminEmail, "password": adminPassword}).
		Post(loginURL.String())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	return resp.Result().(*AuthResp).Token
}

func TestRegisterValidation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	u := AppBaseURL
	u.Path = "/auth/register"

	resp, err := resty.New().R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(`{"something": "???"}`).
		Post(u.String())
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
}

func TestBookmarkFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	token := obtainToken(t, ctx)
	cl := resty.New().
		SetBaseURL(AppBaseURL.String()).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json")

	// folder
	folderResp, err := cl.R().
		SetContext(ctx).
		SetResult(&FolderResp{}).
		SetBody(map[string]interface{}{"name": "Functional"}).
		Post("/folders")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, folderResp.StatusCode())
	folder := folderResp.Result().(*FolderResp)

	// tag
	tagName := "functional-" + time.Now().Format("150405.000")
	tagResp, err := cl.R().
		SetContext(ctx).
		SetResult(&TagResp{}).
		SetBody(map[string]interface{}{"name": tagName}).
		Post("/tags")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, tagResp.StatusCode())
	tag := tagResp.Result().(*TagResp)

	// bookmark in folder with tag
	bookmarkResp, err := cl.R().
		SetContext(ctx).
		SetResult(&BookmarkResp{}).
		SetBody(map[string]interface{}{
			"url":      "https://go.dev/doc/functional",
			"title":    "functional flow",
			"folderId": folder.ID,
			"tagIds":   []uint64{tag.ID},
		}).
		Post("/bookmarks")
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, bookmarkResp.StatusCode())
	bookmark := bookmarkResp.Result().(*BookmarkResp)
	require.NotNil(t, bookmark.FolderName)
	assert.Equal(t, "Functional", *bookmark.FolderName)

	// server-side filtered listing finds it
	listResp, err := cl.R().
		SetContext(ctx).
		SetResult(&ListResp{}).
		SetQueryParam("search", "FUNCTIONAL FLOW").
		Get("/bookmarks")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, listResp.StatusCode())
	list := listResp.Result().(*ListResp)
	require.NotEmpty(t, list.Bookmarks)
	assert.Equal(t, bookmark.ID, list.Bookmarks[0].ID)

	// trigger an export job
	triggerResp, err := cl.R().
		SetContext(ctx).
		SetResult(&TriggerResp{}).
		Post("/export/trigger")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, triggerResp.StatusCode())
	assert.NotEmpty(t, triggerResp.Result().(*TriggerResp).JobID)

	// the public export surfaces the bookmark without auth
	snapshotResp, err := resty.New().R().
		SetContext(ctx).
		SetResult(&SnapshotResp{}).
		Get(AppBaseURL.String() + "/export/json")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, snapshotResp.StatusCode())
	snapshot := snapshotResp.Result().(*SnapshotResp)
	assert.Equal(t, "1.0", snapshot.Version)

	found := false
	for _, b := range snapshot.Bookmarks {
		if b.URL == "https://go.dev/doc/functional" {
			found = true
		}
	}
	assert.True(t, found)

	// cleanup: soft delete the bookmark
	deleteResp, err := cl.R().SetContext(ctx).Delete("/bookmarks/" + uintStr(bookmark.ID))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, deleteResp.StatusCode())
}

func TestAuthRequired(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	u := AppBaseURL
	u.Path = "/bookmarks"

	resp, err := resty.New().R().SetContext(ctx).Get(u.String())
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
}
