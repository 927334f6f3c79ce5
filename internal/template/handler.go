package template

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"brgycert/internal/certificate/models"
	"brgycert/internal/identity"
	"brgycert/internal/platform/middleware"
	"brgycert/pkg/cerrors"
	"brgycert/pkg/httpjson"
)

// Handler exposes template management. Mounted under /templates behind
// authentication; writes additionally require the manage-templates
// capability, enforced by the router.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{kind}", h.info)
	r.With(middleware.RequireCapability(identity.CapManageTemplates)).Put("/{kind}", h.upload)
	return r
}

func (h *Handler) info(w http.ResponseWriter, r *http.Request) {
	kind, ok := models.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		httpjson.WriteError(w, cerrors.New(cerrors.CodeBadRequest, "unknown document kind"))
		return
	}
	info, err := h.svc.Info(r.Context(), kind)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, info)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	kind, ok := models.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		httpjson.WriteError(w, cerrors.New(cerrors.CodeBadRequest, "unknown document kind"))
		return
	}
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

	rec, err := h.svc.Upload(r.Context(), actor.Username, kind, header.Filename, file)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, rec)
}
