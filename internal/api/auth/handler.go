package auth

import (
	"encoding/json"
	"net/http"

	"github.com/embucket/embucket/internal/api/common"
)

// Handler exposes the token-minting endpoint. There is no credential
// store to check a password against (spec §1 non-goal), so any
// caller-supplied identity is accepted as-is — the token only proves
// "this caller asked to be called X", not that X is who they say.
type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Routes() []common.Route {
	return []common.Route{
		{Path: "/auth/login", Method: http.MethodPost, Handler: h.login},
	}
}

type loginRequest struct {
	CallerID string `json:"caller_id"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CallerID == "" {
		common.RespondError(w, http.StatusBadRequest, "caller_id is required")
		return
	}

	token, err := h.service.GenerateToken(req.CallerID)
	if err != nil {
		common.RespondError(w, http.StatusInternalServerError, "failed to mint token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "embucket_session",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
	})
	common.RespondJSON(w, http.StatusOK, loginResponse{Token: token})
}
