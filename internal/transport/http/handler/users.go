package handler

import (
	"encoding/json"
	"net/http"

	"github.com/pinion-app/api/internal/application/auth"
	"github.com/pinion-app/api/internal/pkg/validate"
	"github.com/pinion-app/api/internal/transport/http/middleware"
)

// SetHandleRequest updates the account handle.
type SetHandleRequest struct {
	Handle string `json:"handle" validate:"required"`
}

// DeleteAccountRequest decommissions the account; the code proves the
// caller still controls the verified phone.
type DeleteAccountRequest struct {
	Code string `json:"code" validate:"required"`
}

// CheckNumbersRequest asks which numbers belong to verified accounts.
type CheckNumbersRequest struct {
	Numbers []string `json:"numbers" validate:"required"`
}

// UserHandler handles endpoints on the logged-in account.
type UserHandler struct {
	svc auth.Service
}

func NewUserHandler(svc auth.Service) *UserHandler { return &UserHandler{svc: svc} }

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, UserEnvelope{User: u})
}

func (h *UserHandler) SetHandle(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.UserFromContext(r.Context())
	var req SetHandleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := h.svc.SetHandle(r.Context(), u, req.Handle)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UserEnvelope{User: updated})
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.UserFromContext(r.Context())
	var req DeleteAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.svc.DeleteAccount(r.Context(), u, req.Code); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "account deleted"})
}

func (h *UserHandler) CheckNumbers(w http.ResponseWriter, r *http.Request) {
	var req CheckNumbersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	checks, err := h.svc.CheckNumbers(r.Context(), req.Numbers)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PhoneChecksEnvelope{Checks: checks})
}
