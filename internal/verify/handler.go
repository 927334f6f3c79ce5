package verify

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"brgycert/pkg/cerrors"
	"brgycert/pkg/httpjson"
)

// Handler serves the public verification routes. No authentication: the
// token in the URL is the credential.
type Handler struct {
	svc     *Service
	baseURL string
	logger  *slog.Logger
}

func NewHandler(svc *Service, baseURL string, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, baseURL: baseURL, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{token}", h.verify)
	r.Get("/{token}/qr", h.qr)
	return r
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	token, ok := h.parseToken(w, r)
	if !ok {
		return
	}
	result, err := h.svc.Verify(r.Context(), token)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	httpjson.Write(w, http.StatusOK, result)
}

func (h *Handler) qr(w http.ResponseWriter, r *http.Request) {
	token, ok := h.parseToken(w, r)
	if !ok {
		return
	}
	data, err := h.svc.QRImage(r.Context(), h.baseURL, token)
	if err != nil {
		httpjson.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) parseToken(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	token, err := uuid.Parse(chi.URLParam(r, "token"))
	if err != nil {
		httpjson.WriteError(w, cerrors.New(cerrors.CodeBadRequest, "invalid verification code"))
		return uuid.Nil, false
	}
	return token, true
}
