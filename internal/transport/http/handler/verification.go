package handler

import (
	"encoding/json"
	"net/http"

	"github.com/pinion-app/api/internal/application/auth"
	"github.com/pinion-app/api/internal/pkg/validate"
	"github.com/pinion-app/api/internal/transport/http/middleware"
)

// VerifyCodeRequest submits a code for the logged-in user.
type VerifyCodeRequest struct {
	Code string `json:"code" validate:"required"`
}

// VerificationHandler handles in-session phone verification: a logged-in
// user requesting a fresh code and submitting it.
type VerificationHandler struct {
	svc auth.Service
}

func NewVerificationHandler(svc auth.Service) *VerificationHandler {
	return &VerificationHandler{svc: svc}
}

func (h *VerificationHandler) Request(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.UserFromContext(r.Context())
	if err := h.svc.RequestCode(r.Context(), u); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "code sent"})
}

func (h *VerificationHandler) Verify(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.UserFromContext(r.Context())
	var req VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := h.svc.VerifyCode(r.Context(), u, req.Code)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UserEnvelope{User: updated})
}
