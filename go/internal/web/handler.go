package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/google/uuid"
	"github.com/mcdev12/screentime/go/internal/models"
	"github.com/mcdev12/screentime/go/internal/sessions"
	"github.com/mcdev12/screentime/go/internal/users"
	"github.com/rs/zerolog/log"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Accounts defines what the web layer needs from the users app
type Accounts interface {
	Register(ctx context.Context, req users.RegisterRequest) (*models.User, error)
	Authenticate(ctx context.Context, req users.LoginRequest) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListDevices(ctx context.Context, userID uuid.UUID) ([]models.Device, error)
}

// Sessions defines what the web layer needs from the sessions app
type Sessions interface {
	Create(ctx context.Context, userID uuid.UUID) (*models.Session, error)
	Resolve(ctx context.Context, token uuid.UUID) (uuid.UUID, error)
	Destroy(ctx context.Context, token uuid.UUID) error
}

// Files expected in the directory given to ServeWasm
const (
	WasmBinary = "timer.wasm"
	WasmExec   = "wasm_exec.js"
)

// CookieConfig controls the session cookie
type CookieConfig struct {
	Name   string
	Secure bool
}

func DefaultCookieConfig() CookieConfig {
	return CookieConfig{
		Name: "session",
	}
}

// Handler serves the account pages and the timer page
type Handler struct {
	accounts  Accounts
	sessions  Sessions
	cookie    CookieConfig
	templates *template.Template
	static    fs.FS
	wasm      fs.FS
}

// NewHandler parses the embedded templates and builds the page handler
func NewHandler(accounts Accounts, sessions Sessions, cookie CookieConfig) (*Handler, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to open static files: %w", err)
	}
	if cookie.Name == "" {
		cookie.Name = DefaultCookieConfig().Name
	}

	return &Handler{
		accounts:  accounts,
		sessions:  sessions,
		cookie:    cookie,
		templates: tmpl,
		static:    static,
	}, nil
}

// RegisterRoutes registers the page routes with an HTTP mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /{$}", h.requireLogin(http.HandlerFunc(h.index)))
	mux.Handle("GET /register/", h.requireLogout(http.HandlerFunc(h.registerForm)))
	mux.Handle("POST /register/", h.requireLogout(http.HandlerFunc(h.register)))
	mux.Handle("GET /login/", h.requireLogout(http.HandlerFunc(h.loginForm)))
	mux.Handle("POST /login/", h.requireLogout(http.HandlerFunc(h.login)))
	mux.Handle("GET /logout/", h.requireLogin(http.HandlerFunc(h.logout)))
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(h.static)))
	if h.wasm != nil {
		mux.Handle("GET /wasm/", http.StripPrefix("/wasm/", http.FileServerFS(h.wasm)))
	}
}

// ServeWasm switches the timer page from the WebSocket-hosted timer to the
// in-browser build. fsys must hold timer.wasm and wasm_exec.js; call it
// before RegisterRoutes.
func (h *Handler) ServeWasm(fsys fs.FS) error {
	for _, name := range []string{WasmBinary, WasmExec} {
		if _, err := fs.Stat(fsys, name); err != nil {
			return fmt.Errorf("wasm bundle incomplete: %w", err)
		}
	}
	h.wasm = fsys
	return nil
}

type userKey struct{}

// UserFromContext returns the signed-in user, or nil
func UserFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userKey{}).(*models.User)
	return user
}

// IdentifyUser returns the signed-in user's ID, or nil. Requests must have
// passed through LoadUser.
func IdentifyUser(r *http.Request) *uuid.UUID {
	if user := UserFromContext(r.Context()); user != nil {
		id := user.ID
		return &id
	}
	return nil
}

// LoadUser resolves the session cookie into a user for every request
func (h *Handler) LoadUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := h.currentUser(r); user != nil {
			r = r.WithContext(context.WithValue(r.Context(), userKey{}, user))
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) currentUser(r *http.Request) *models.User {
	token, ok := h.sessionToken(r)
	if !ok {
		return nil
	}

	ctx := r.Context()
	userID, err := h.sessions.Resolve(ctx, token)
	if err != nil {
		if !errors.Is(err, sessions.ErrNotFound) {
			log.Warn().Err(err).Msg("failed to resolve session")
		}
		return nil
	}

	user, err := h.accounts.GetUser(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("session user not found")
		return nil
	}
	return user
}

func (h *Handler) sessionToken(r *http.Request) (uuid.UUID, bool) {
	c, err := r.Cookie(h.cookie.Name)
	if err != nil {
		return uuid.Nil, false
	}
	token, err := uuid.Parse(c.Value)
	if err != nil {
		return uuid.Nil, false
	}
	return token, true
}

func (h *Handler) requireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			http.Redirect(w, r, "/login/", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) requireLogout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) != nil {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}
