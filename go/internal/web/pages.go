package web

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/mcdev12/screentime/go/internal/models"
	"github.com/mcdev12/screentime/go/internal/usagetimer"
	"github.com/mcdev12/screentime/go/internal/users"
	"github.com/rs/zerolog/log"
)

type authForm struct {
	Action        string
	Register      bool
	SecondaryHref string
	SecondaryText string
	Email         string
	Errors        map[string]string
}

type pageData struct {
	Title     string
	User      *models.User
	Flashes   []string
	Form      authForm
	Devices   []models.Device
	DisplayID string
	Display   string
	Wasm      bool
}

func newRegisterForm() authForm {
	return authForm{
		Action:        "/register/",
		Register:      true,
		SecondaryHref: "/login/",
		SecondaryText: "Login",
	}
}

func newLoginForm() authForm {
	return authForm{
		Action:        "/login/",
		SecondaryHref: "/register/",
		SecondaryText: "Register",
	}
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	devices, err := h.accounts.ListDevices(r.Context(), user.ID)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to list devices")
	}

	h.render(w, r, http.StatusOK, "index.html", pageData{
		Title:     "Home",
		User:      user,
		Devices:   devices,
		DisplayID: usagetimer.DisplayID,
		Display:   usagetimer.FormatClock(0),
		Wasm:      h.wasm != nil,
	})
}

func (h *Handler) registerForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "auth.html", pageData{Title: "Register", Form: newRegisterForm()})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	req := users.RegisterRequest{
		Email:           r.PostForm.Get("email"),
		Birthdate:       r.PostForm.Get("birthdate"),
		Password:        r.PostForm.Get("password"),
		ConfirmPassword: r.PostForm.Get("confirm_password"),
		UserAgent:       r.UserAgent(),
	}

	_, err := h.accounts.Register(r.Context(), req)
	if err == nil {
		h.setFlash(w, "Account creation success")
		http.Redirect(w, r, "/login/", http.StatusFound)
		return
	}

	form := newRegisterForm()
	form.Email = users.NormalizeEmail(req.Email)
	data := pageData{Title: "Register", Form: form}

	var verr *users.ValidationError
	switch {
	case errors.As(err, &verr):
		data.Form.Errors = verr.Fields
	case errors.Is(err, users.ErrEmailTaken):
		data.Flashes = []string{"Account exists. Please login instead"}
	default:
		log.Error().Err(err).Msg("registration failed")
		http.Error(w, "registration failed", http.StatusInternalServerError)
		return
	}
	h.render(w, r, http.StatusOK, "auth.html", data)
}

func (h *Handler) loginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "auth.html", pageData{Title: "Login", Form: newLoginForm()})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	req := users.LoginRequest{
		Email:    r.PostForm.Get("email"),
		Password: r.PostForm.Get("password"),
	}

	user, err := h.accounts.Authenticate(r.Context(), req)
	if err == nil {
		session, err := h.sessions.Create(r.Context(), user.ID)
		if err != nil {
			log.Error().Err(err).Str("user_id", user.ID.String()).Msg("failed to create session")
			http.Error(w, "login failed", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{
			Name:     h.cookie.Name,
			Value:    session.Token.String(),
			Path:     "/",
			Expires:  session.ExpiresAt,
			HttpOnly: true,
			Secure:   h.cookie.Secure,
			SameSite: http.SameSiteLaxMode,
		})
		log.Info().Str("user_id", user.ID.String()).Msg("user logged in")
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	form := newLoginForm()
	form.Email = users.NormalizeEmail(req.Email)
	data := pageData{Title: "Login", Form: form}

	var verr *users.ValidationError
	switch {
	case errors.As(err, &verr):
		data.Form.Errors = verr.Fields
	case errors.Is(err, users.ErrInvalidCredentials):
		data.Flashes = []string{"Wrong email or password"}
	default:
		log.Error().Err(err).Msg("login failed")
		http.Error(w, "login failed", http.StatusInternalServerError)
		return
	}
	h.render(w, r, http.StatusOK, "auth.html", data)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := h.sessionToken(r); ok {
		if err := h.sessions.Destroy(r.Context(), token); err != nil {
			log.Error().Err(err).Msg("failed to destroy session")
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/login/", http.StatusFound)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	data.Flashes = append(h.popFlashes(w, r), data.Flashes...)

	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("failed to render template")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		log.Warn().Err(err).Str("template", name).Msg("failed to write response")
	}
}
