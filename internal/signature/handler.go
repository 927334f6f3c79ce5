package signature

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"brgycert/internal/identity"
	"brgycert/internal/platform/middleware"
	"brgycert/pkg/cerrors"
	"brgycert/pkg/httpjson"
)

// Handler exposes the caller's own signature registration. Mounted under
// /signatures behind authentication plus the manage-signatures capability.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequireCapability(identity.CapManageSignatures))
	r.Get("/me", h.get)
	r.Put("/me", h.upload)
	r.Patch("/me", h.setBypass)
	return r
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetIdentity(r.Context())
	rec, err := h.svc.Get(r.Context(), actor.Username)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, rec)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetIdentity(r.Context())

	if err := r.ParseMultipartForm(h.svc.maxBytes + 1024); err != nil {
		httpjson.WriteError(w, cerrors.New(cerrors.CodeBadRequest, "expected multipart form upload"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httpjson.WriteError(w, cerrors.New(cerrors.CodeBadRequest, "missing file field"))
		return
	}
	defer file.Close()

	bypass, _ := strconv.ParseBool(r.FormValue("bypass"))
	rec, err := h.svc.Upload(r.Context(), actor.Username, header.Filename, file, bypass)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, rec)
}

type bypassRequest struct {
	Bypass bool `json:"bypass"`
}

func (h *Handler) setBypass(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.GetIdentity(r.Context())

	var req bypassRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, cerrors.New(cerrors.CodeBadRequest, "malformed request body"))
		return
	}
	rec, err := h.svc.SetBypass(r.Context(), actor.Username, req.Bypass)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, rec)
}
