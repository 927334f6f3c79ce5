package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"brgycert/internal/certificate/handler"
	"brgycert/internal/certificate/models"
	"brgycert/internal/certificate/service"
	"brgycert/internal/certificate/store"
	"brgycert/internal/identity"
	"brgycert/internal/platform/middleware"
)

const signingKey = "handler-test-key"

type diskGenerator struct {
	store *store.InMemory
	dir   string
}

func (g *diskGenerator) Generate(ctx context.Context, cert *models.Certificate, _ identity.Identity, _ bool) error {
	out := filepath.Join(g.dir, cert.UniqueID+".docx")
	if err := os.WriteFile(out, []byte("generated document"), 0o644); err != nil {
		return err
	}
	if err := g.store.UpdateGenerated(ctx, cert.ID, out, models.StatusCompleted); err != nil {
		return err
	}
	cert.DocxPath = out
	cert.Status = models.StatusCompleted
	return nil
}

type testServer struct {
	server    *httptest.Server
	validator *identity.JWTValidator
	store     *store.InMemory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	mem := store.NewInMemory()
	gen := &diskGenerator{store: mem, dir: t.TempDir()}
	svc := service.New(mem, mem, gen, logger, "Longos")

	validator := identity.NewJWTValidator(signingKey)
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(validator, logger))
		r.Mount("/certificates", handler.New(svc, logger).Routes())
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{server: srv, validator: validator, store: mem}
}

func (ts *testServer) token(t *testing.T, role identity.Role) string {
	t.Helper()
	token, err := ts.validator.Mint(identity.Identity{Username: "tester", Role: role})
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createBody() map[string]any {
	return map[string]any{
		"full_name":     "Juan Dela Cruz",
		"address":       "123 Rizal St, Longos, Malabon City",
		"age":           34,
		"occupation":    "Carpenter",
		"purpose":       "employment",
		"document_kind": "clearance",
	}
}

func TestCreateCertificate(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, identity.RoleStaff)

	resp := ts.do(t, http.MethodPost, "/certificates", token, createBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	cert := decode[models.Certificate](t, resp)
	require.Equal(t, "Juan Dela Cruz", cert.FullName)
	require.Equal(t, models.StatusPending, cert.Status)
	require.NotEmpty(t, cert.UniqueID)
}

func TestCreateRequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/certificates", "", createBody())
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateDuplicateConflict(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, identity.RoleStaff)

	resp := ts.do(t, http.MethodPost, "/certificates", token, createBody())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/certificates", token, createBody())
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	body := decode[map[string]string](t, resp)
	require.Contains(t, body["message"], "already exists")
}

func TestCreateValidationError(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, identity.RoleStaff)

	body := createBody()
	body["full_name"] = ""
	resp := ts.do(t, http.MethodPost, "/certificates", token, body)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetCertificate(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, identity.RoleStaff)

	created := decode[models.Certificate](t, ts.do(t, http.MethodPost, "/certificates", token, createBody()))

	resp := ts.do(t, http.MethodGet, "/certificates/"+created.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[models.Certificate](t, resp)
	require.Equal(t, created.UniqueID, got.UniqueID)

	resp = ts.do(t, http.MethodGet, "/certificates/00000000-0000-0000-0000-000000000001", token, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/certificates/not-a-uuid", token, nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListCertificates(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, identity.RoleStaff)

	ts.do(t, http.MethodPost, "/certificates", token, createBody())
	other := createBody()
	other["full_name"] = "Maria Santos"
	other["document_kind"] = "residency"
	ts.do(t, http.MethodPost, "/certificates", token, other)

	resp := ts.do(t, http.MethodGet, "/certificates?q=santos", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]json.RawMessage](t, resp)

	var certs []models.Certificate
	require.NoError(t, json.Unmarshal(body["certificates"], &certs))
	require.Len(t, certs, 1)
	require.Equal(t, "Maria Santos", certs[0].FullName)
}

func TestReissueRequiresCapability(t *testing.T) {
	ts := newTestServer(t)
	staff := ts.token(t, identity.RoleStaff)
	admin := ts.token(t, identity.RoleAdmin)

	created := decode[models.Certificate](t, ts.do(t, http.MethodPost, "/certificates", staff, createBody()))
	path := "/certificates/" + created.ID.String() + "/reissue"

	resp := ts.do(t, http.MethodPost, path, staff, map[string]string{"remarks": "lost copy"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, path, admin, map[string]string{"remarks": "lost copy"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]json.RawMessage](t, resp)
	var cert models.Certificate
	require.NoError(t, json.Unmarshal(body["certificate"], &cert))
	require.True(t, cert.Reissued)
	require.Equal(t, created.UniqueID, cert.UniqueID)
}

func TestGenerateAndDownloadDocument(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, identity.RoleStaff)

	created := decode[models.Certificate](t, ts.do(t, http.MethodPost, "/certificates", token, createBody()))
	docPath := "/certificates/" + created.ID.String() + "/document"

	resp := ts.do(t, http.MethodGet, docPath, token, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/certificates/"+created.ID.String()+"/generate", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	generated := decode[models.Certificate](t, resp)
	require.Equal(t, models.StatusCompleted, generated.Status)

	resp = ts.do(t, http.MethodGet, docPath, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Disposition"), ".docx")
}

func TestReissueLogsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.token(t, identity.RoleAdmin)

	created := decode[models.Certificate](t, ts.do(t, http.MethodPost, "/certificates", admin, createBody()))
	ts.do(t, http.MethodPost, "/certificates/"+created.ID.String()+"/reissue", admin, map[string]string{"remarks": "torn"})

	resp := ts.do(t, http.MethodGet, "/certificates/"+created.ID.String()+"/logs", admin, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]json.RawMessage](t, resp)
	var logs []models.ReissueLog
	require.NoError(t, json.Unmarshal(body["reissue_logs"], &logs))
	require.Len(t, logs, 1)
	require.Equal(t, "torn", logs[0].Remarks)
}
