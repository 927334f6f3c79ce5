package template_test

import (
	"bytes"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"brgycert/internal/identity"
	"brgycert/internal/platform/middleware"
	"brgycert/internal/template"
)

func newTemplateServer(t *testing.T) (*httptest.Server, *identity.JWTValidator, string) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	overrideDir := t.TempDir()
	svc := template.New(template.NewInMemoryStore(), overrideDir, t.TempDir(), 1<<20, logger)

	validator := identity.NewJWTValidator("template-test-key")
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, logger))
		r.Mount("/templates", template.NewHandler(svc, logger).Routes())
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, validator, overrideDir
}

func multipartUpload(t *testing.T, url, token, filename string, content []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.Copy(part, bytes.NewReader(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPut, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestUploadTemplateRequiresManageCapability(t *testing.T) {
	srv, validator, _ := newTemplateServer(t)

	staff, err := validator.Mint(identity.Identity{Username: "clerk1", Role: identity.RoleStaff})
	require.NoError(t, err)

	resp := multipartUpload(t, srv.URL+"/templates/clearance", staff, "clearance.docx", []byte("doc"))
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestUploadTemplateAsAdmin(t *testing.T) {
	srv, validator, overrideDir := newTemplateServer(t)

	admin, err := validator.Mint(identity.Identity{Username: "admin1", Role: identity.RoleAdmin})
	require.NoError(t, err)

	resp := multipartUpload(t, srv.URL+"/templates/clearance", admin, "my-template.docx", []byte("custom template"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := os.ReadFile(filepath.Join(overrideDir, "clearance.docx"))
	require.NoError(t, err)
	require.Equal(t, "custom template", string(data))
}

func TestTemplateInfoUnknownKind(t *testing.T) {
	srv, validator, _ := newTemplateServer(t)

	staff, err := validator.Mint(identity.Identity{Username: "clerk1", Role: identity.RoleStaff})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/templates/permit", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+staff)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
