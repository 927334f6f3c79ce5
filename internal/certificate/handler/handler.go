// Package handler exposes the certificate lifecycle over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"brgycert/internal/certificate/models"
	"brgycert/internal/certificate/service"
	"brgycert/internal/certificate/store"
	"brgycert/internal/identity"
	"brgycert/internal/platform/middleware"
	"brgycert/pkg/cerrors"
	"brgycert/pkg/httpjson"
)

// Service is the lifecycle surface the handler consumes.
type Service interface {
	Create(ctx context.Context, actor identity.Identity, req service.CreateRequest) (*models.Certificate, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Certificate, error)
	List(ctx context.Context, filter store.Filter) ([]*models.Certificate, error)
	Logs(ctx context.Context, id uuid.UUID) ([]*models.ReissueLog, error)
	Reissue(ctx context.Context, actor identity.Identity, id uuid.UUID, remarks string) (*models.Certificate, error)
	Generate(ctx context.Context, actor identity.Identity, id uuid.UUID) (*models.Certificate, error)
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Routes returns the authenticated certificate routes, mounted by the top
// level router under /certificates.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/logs", h.logs)
	r.Get("/{id}/document", h.document)
	r.Post("/{id}/generate", h.generate)
	r.With(middleware.RequireCapability(identity.CapReissue)).Post("/{id}/reissue", h.reissue)
	return r
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetIdentity(r.Context())

	var req service.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.WriteError(w, cerrors.New(cerrors.CodeBadRequest, "malformed request body"))
		return
	}
	cert, err := h.svc.Create(r.Context(), actor, req)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, cert)
}

type listResponse struct {
	Certificates []*models.Certificate `json:"certificates"`
	Count        int                   `json:"count"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.Filter{
		Search: q.Get("q"),
		Kind:   models.DocumentKind(q.Get("kind")),
		Status: models.Status(q.Get("status")),
	}
	if v := q.Get("limit"); v != "" {
		filter.Limit, _ = strconv.Atoi(v)
	}
	if v := q.Get("offset"); v != "" {
		filter.Offset, _ = strconv.Atoi(v)
	}

	certs, err := h.svc.List(r.Context(), filter)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, listResponse{Certificates: certs, Count: len(certs)})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	cert, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, cert)
}

func (h *Handler) logs(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	logs, err := h.svc.Logs(r.Context(), id)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"reissue_logs": logs})
}

type reissueRequest struct {
	Remarks string `json:"remarks"`
}

type reissueResponse struct {
	Certificate *models.Certificate `json:"certificate"`
	Warning     string              `json:"warning,omitempty"`
}

func (h *Handler) reissue(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetIdentity(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req reissueRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpjson.WriteError(w, cerrors.New(cerrors.CodeBadRequest, "malformed request body"))
			return
		}
	}

	cert, err := h.svc.Reissue(r.Context(), actor, id, req.Remarks)
	if err != nil {
		// A failed regeneration leaves the reissue in place; surface both.
		if cert != nil {
			httpjson.Write(w, http.StatusUnprocessableEntity, reissueResponse{
				Certificate: cert,
				Warning:     "certificate reissued but document generation failed",
			})
			return
		}
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, reissueResponse{Certificate: cert})
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetIdentity(r.Context())
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	cert, err := h.svc.Generate(r.Context(), actor, id)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, cert)
}

func (h *Handler) document(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	cert, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	if cert.DocxPath == "" {
		httpjson.WriteError(w, cerrors.New(cerrors.CodeNotFound, "no generated document for this certificate"))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(cert.DocxPath)))
	http.ServeFile(w, r, cert.DocxPath)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpjson.WriteError(w, cerrors.New(cerrors.CodeBadRequest, "invalid certificate id"))
		return uuid.Nil, false
	}
	return id, true
}
