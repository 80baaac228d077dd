package user

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/scanner-portal/internal/apperr"
	"github.com/ovaphlow/scanner-portal/internal/auth"
	"github.com/ovaphlow/scanner-portal/internal/user/entity"
	"github.com/ovaphlow/scanner-portal/pkg/utilities"
)

// Handler exposes HTTP endpoints for user operations.
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// SyncResponse is the body of a successful sync.
type SyncResponse struct {
	Created bool         `json:"created"`
	User    *entity.User `json:"user"`
}

// Sync handles POST /api/user/sync. The request body is ignored; the caller
// is identified only by its verified session.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	res, err := h.svc.Sync(r.Context(), p.Identity())
	if err != nil {
		apperr.Write(w, h.logger, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, SyncResponse{Created: res.Created, User: res.User})
}

// Me handles GET /api/user/me: the caller's stored record.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	u, err := h.svc.Get(r.Context(), p.UserID())
	if err != nil {
		apperr.Write(w, h.logger, err)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, u)
}
