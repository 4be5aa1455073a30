package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ashanw/subplanet-invoicer/internal/config"
	"github.com/ashanw/subplanet-invoicer/internal/httpx"
	"github.com/ashanw/subplanet-invoicer/internal/session"
)

// AuthHandler is the single-operator staff gate. With no password hash
// configured the gate is off and Session hands out a session to anyone,
// which is how the tool runs on a trusted LAN.
type AuthHandler struct {
	Sessions *session.Manager
	Cfg      config.Config
	Log      *zap.Logger
}

func NewAuthHandler(sm *session.Manager, cfg config.Config, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{Sessions: sm, Cfg: cfg, Log: log}
}

// Login: POST /login with {"password": ...} or a form field.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.Cfg.AuthRequired() {
		httpx.JSONError(w, http.StatusBadRequest, "login_disabled")
		return
	}
	var password string
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body struct {
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_json")
			return
		}
		password = body.Password
	} else {
		if err := r.ParseForm(); err != nil {
			httpx.JSONError(w, http.StatusBadRequest, "invalid_form")
			return
		}
		password = r.FormValue("password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.Cfg.StaffPasswordHash), []byte(password)); err != nil {
		h.Log.Warn("failed staff login", zap.String("remote", r.RemoteAddr))
		httpx.JSONError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	sid, err := h.Sessions.Create(w)
	if err != nil {
		h.Log.Error("create session", zap.Error(err))
		httpx.JSONError(w, http.StatusInternalServerError, "session_failed")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrf_token": h.Sessions.CSRFToken(sid)})
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.Sessions.Clear(w)
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// Session: GET /session returns the CSRF token for the current session. When
// the login gate is off a missing session is minted on the fly so the order
// form can fetch its token on first load.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	if sid, ok := session.FromContext(r.Context()); ok {
		httpx.JSON(w, http.StatusOK, map[string]string{"csrf_token": h.Sessions.CSRFToken(sid)})
		return
	}
	if h.Cfg.AuthRequired() {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	sid, err := h.Sessions.Create(w)
	if err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "session_failed")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrf_token": h.Sessions.CSRFToken(sid)})
}
