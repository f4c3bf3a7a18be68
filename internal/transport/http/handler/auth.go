package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pinion-app/api/internal/application/auth"
	"github.com/pinion-app/api/internal/application/challenge"
	"github.com/pinion-app/api/internal/application/session"
	"github.com/pinion-app/api/internal/domain"
	"github.com/pinion-app/api/internal/pkg/validate"
	"github.com/pinion-app/api/internal/transport/http/middleware"
)

// SignUpRequest carries an explicit-handle registration.
type SignUpRequest struct {
	Handle      string `json:"handle" validate:"required"`
	PhoneNumber string `json:"phone_number" validate:"required"`
	Name        string `json:"name"`
}

// LoginPhoneRequest starts the phone-first login flow.
type LoginPhoneRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required"`
}

// LoginPhoneConfirmRequest completes it. PhoneNumber is optional; when
// absent the number sealed in the challenge cookie is used.
type LoginPhoneConfirmRequest struct {
	PhoneNumber string `json:"phone_number"`
	Code        string `json:"code" validate:"required"`
}

// AuthHandler handles signup, login, and logout. It owns the Set-Cookie
// side of every flow; services never see HTTP.
type AuthHandler struct {
	svc        auth.Service
	sessions   session.Service
	codec      *challenge.Codec
	cookies    challenge.CookieConfig
	headerName string
}

func NewAuthHandler(svc auth.Service, sessions session.Service, codec *challenge.Codec, cookies challenge.CookieConfig, headerName string) *AuthHandler {
	return &AuthHandler{
		svc:        svc,
		sessions:   sessions,
		codec:      codec,
		cookies:    cookies,
		headerName: headerName,
	}
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req SignUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.svc.SignUp(r.Context(), req.Handle, req.PhoneNumber, req.Name)
	if err != nil {
		httpError(w, err)
		return
	}
	http.SetCookie(w, h.cookies.AuthCookie(result.AuthToken))
	h.setChallengeCookie(w, result.User.PhoneNumber)
	writeJSON(w, http.StatusCreated, LoginEnvelope{AuthToken: result.AuthToken, User: result.User})
}

func (h *AuthHandler) LoginPhone(w http.ResponseWriter, r *http.Request) {
	var req LoginPhoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.svc.LoginPhone(r.Context(), req.PhoneNumber)
	if err != nil {
		httpError(w, err)
		return
	}
	// The cleaned number comes back via the user so the cookie always
	// matches what the code was issued against.
	h.setChallengeCookie(w, user.PhoneNumber)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "code sent"})
}

func (h *AuthHandler) LoginPhoneConfirm(w http.ResponseWriter, r *http.Request) {
	var req LoginPhoneConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.svc.LoginPhoneConfirm(r.Context(), req.PhoneNumber, h.challengeFromRequest(r), req.Code)
	if err != nil {
		httpError(w, err)
		return
	}
	http.SetCookie(w, h.cookies.AuthCookie(result.AuthToken))
	h.clearChallengeCookie(w)
	writeJSON(w, http.StatusOK, LoginEnvelope{AuthToken: result.AuthToken, User: result.User})
}

// Logout revokes the presented token server-side and overwrites both
// cookies with clear tokens.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	presented := middleware.TokenFromRequest(r, h.headerName, h.cookies.AuthName)
	if err := h.sessions.Revoke(r.Context(), presented); err != nil {
		httpError(w, err)
		return
	}
	clearToken, err := h.sessions.NewClearToken()
	if err != nil {
		httpError(w, domain.Wrap(domain.KindInternal, "mint clear token", err))
		return
	}
	http.SetCookie(w, h.cookies.ClearAuthCookie(clearToken))
	h.clearChallengeCookie(w)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "logged out"})
}

// challengeFromRequest opens the challenge cookie if present and intact.
func (h *AuthHandler) challengeFromRequest(r *http.Request) *domain.ChallengePhone {
	c, err := r.Cookie(h.cookies.ChallengeName)
	if err != nil {
		return nil
	}
	number, ok := h.codec.Decode(c.Value)
	if !ok {
		return nil
	}
	return &domain.ChallengePhone{Number: number}
}

func (h *AuthHandler) setChallengeCookie(w http.ResponseWriter, number string) {
	value, err := h.codec.Encode(number)
	if err != nil {
		// The flow still works without the cookie; the client just has to
		// resubmit the number on confirm.
		slog.Error("could not seal challenge cookie", "err", err)
		return
	}
	http.SetCookie(w, h.cookies.ChallengeCookie(value))
}

func (h *AuthHandler) clearChallengeCookie(w http.ResponseWriter) {
	clearToken, err := h.sessions.NewClearToken()
	if err != nil {
		slog.Error("could not mint clear token", "err", err)
		return
	}
	http.SetCookie(w, h.cookies.ClearChallengeCookie(clearToken))
}
