package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"photo-gallery/internal/auth"
	"photo-gallery/internal/events"
	"photo-gallery/internal/guard"
	"photo-gallery/internal/models"
	"photo-gallery/internal/photos"
	"photo-gallery/internal/storage"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// ClientContextKey is the context key for the request's client state.
	ClientContextKey contextKey = "client"
	// ClientCookieName is the name of the cookie identifying a browser's local store.
	ClientCookieName = "client"
	// DefaultClientDuration is how long an idle client lasts (30 days).
	DefaultClientDuration = 30 * 24 * time.Hour
	// DefaultMaxUploadBytes bounds a single upload request.
	DefaultMaxUploadBytes = 10 << 20
)

// Options configures Handlers.
type Options struct {
	TemplateDir    string
	SecureCookie   bool
	Hasher         auth.Hasher
	ClientTTL      time.Duration
	MaxUploadBytes int64
	ThumbnailSize  uint
	ThumbnailCache int
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db     *storage.DB
	hub    *events.Hub
	schema *storage.Schema
	thumbs *photos.Thumbnailer
	opts   Options
	locks  sync.Map // client token -> *sync.Mutex
}

// NewHandlers creates a new Handlers instance. hub may be nil to disable storage events.
func NewHandlers(db *storage.DB, hub *events.Hub, opts Options) (*Handlers, error) {
	schema, err := storage.NewSchema()
	if err != nil {
		return nil, err
	}
	if opts.Hasher == nil {
		opts.Hasher = auth.PlainText{}
	}
	if opts.ClientTTL <= 0 {
		opts.ClientTTL = DefaultClientDuration
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handlers{
		db:     db,
		hub:    hub,
		schema: schema,
		thumbs: photos.NewThumbnailer(opts.ThumbnailSize, opts.ThumbnailCache),
		opts:   opts,
	}, nil
}

// Routes registers every application route on a new ServeMux.
func (h *Handlers) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	page := func(fn http.HandlerFunc) http.Handler {
		return h.ClientMiddleware(h.GuardMiddleware(fn))
	}

	mux.Handle("GET /{$}", page(h.Root))
	mux.Handle("GET /login", page(h.LoginForm))
	mux.Handle("POST /login", page(h.Login))
	mux.Handle("GET /register", page(h.RegisterForm))
	mux.Handle("POST /register", page(h.Register))
	mux.Handle("POST /logout", page(h.Logout))
	mux.Handle("GET /dashboard", page(h.Dashboard))
	mux.Handle("POST /photos", page(h.CreatePhoto))
	mux.Handle("GET /photos/{id}/edit", page(h.EditPhotoForm))
	mux.Handle("POST /photos/{id}", page(h.UpdatePhoto))
	mux.Handle("POST /photos/{id}/delete", page(h.DeletePhoto))
	mux.Handle("GET /photos/{id}/thumbnail", page(h.Thumbnail))
	mux.Handle("GET /photos/{id}/image", page(h.Image))
	mux.HandleFunc("GET /events", h.Events)

	return mux
}

// ClientState is the per-request view of one browser's local store.
type ClientState struct {
	Token       string
	Collections *storage.Collections
	Session     *auth.Manager
}

// GetClientFromContext retrieves the client state from request context.
func GetClientFromContext(r *http.Request) *ClientState {
	if st, ok := r.Context().Value(ClientContextKey).(*ClientState); ok {
		return st
	}
	return nil
}

// ClientMiddleware binds the request to the caller's local store, issuing a
// new client cookie when needed. Requests from the same client are
// serialised. Clients past the halfway point of their lifetime are renewed.
func (h *Handlers) ClientMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := h.resolveClient(w, r)
		if err != nil {
			log.Printf("Failed to resolve client: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		lock := h.clientLock(token)
		lock.Lock()
		defer lock.Unlock()

		ns := storage.ClientNamespace(token)
		store := h.db.Namespace(ns)
		if h.hub != nil {
			store = storage.Observe(store, h.hub.Listener(ns))
		}
		collections := storage.NewCollections(store, h.schema)

		session, err := auth.NewManager(collections, h.opts.Hasher)
		if err != nil {
			log.Printf("Failed to restore session: %v", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		st := &ClientState{Token: token, Collections: collections, Session: session}
		ctx := context.WithValue(r.Context(), ClientContextKey, st)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handlers) resolveClient(w http.ResponseWriter, r *http.Request) (string, error) {
	if cookie, err := r.Cookie(ClientCookieName); err == nil && cookie.Value != "" {
		if info, err := h.db.ValidateClientWithInfo(cookie.Value); err == nil {
			// Rolling lifetime: renew once past the halfway point
			now := time.Now()
			if info.ExpiresAt.Sub(now) < h.opts.ClientTTL/2 {
				if err := h.db.RenewClient(cookie.Value, now.Add(h.opts.ClientTTL)); err == nil {
					h.setClientCookie(w, cookie.Value)
				}
				// If renewal fails, just continue with the current client
			}
			return cookie.Value, nil
		}
	}

	token, err := auth.GenerateSessionToken()
	if err != nil {
		return "", fmt.Errorf("generate client token: %w", err)
	}
	if err := h.db.CreateClient(token, time.Now().Add(h.opts.ClientTTL)); err != nil {
		return "", fmt.Errorf("create client: %w", err)
	}
	h.setClientCookie(w, token)
	return token, nil
}

func (h *Handlers) clientLock(token string) *sync.Mutex {
	v, _ := h.locks.LoadOrStore(token, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// CleanExpiredClients removes expired clients with their stores and drops
// the request locks of tokens that are no longer valid.
func (h *Handlers) CleanExpiredClients() (int, error) {
	n, err := h.db.CleanExpiredClients()
	if err != nil {
		return 0, err
	}
	h.locks.Range(func(key, _ any) bool {
		if err := h.db.ValidateClient(key.(string)); errors.Is(err, sql.ErrNoRows) {
			h.locks.Delete(key)
		}
		return true
	})
	return n, nil
}

func (h *Handlers) setClientCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     ClientCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.opts.ClientTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// GuardMiddleware redirects navigations the route guard does not allow.
// It must run inside ClientMiddleware.
func (h *Handlers) GuardMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := GetClientFromContext(r)
		if st == nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if d := guard.Check(r.URL.Path, st.Session.IsAuthenticated()); !d.Allow {
			http.Redirect(w, r, d.Redirect, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Root redirects to the dashboard.
func (h *Handlers) Root(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, guard.Resolve(guard.RouteRoot), http.StatusFound)
}

// AuthViewModel holds data for the login and register pages.
type AuthViewModel struct {
	Error string
	Email string
	Name  string
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "login.html", AuthViewModel{})
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, "login.html", AuthViewModel{Error: "Invalid form submission"})
		return
	}

	st := GetClientFromContext(r)
	creds := models.LoginCredentials{
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
	}
	if err := st.Session.Login(creds); err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			log.Printf("Login error: %v", err)
		}
		h.render(w, r, "login.html", AuthViewModel{Error: st.Session.LastError(), Email: creds.Email})
		return
	}

	http.Redirect(w, r, guard.RouteDashboard, http.StatusFound)
}

// RegisterForm renders the registration page.
func (h *Handlers) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "register.html", AuthViewModel{})
}

// Register handles the registration form submission.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.render(w, r, "register.html", AuthViewModel{Error: "Invalid form submission"})
		return
	}

	st := GetClientFromContext(r)
	creds := models.RegisterCredentials{
		Email:           r.FormValue("email"),
		Name:            r.FormValue("name"),
		Password:        r.FormValue("password"),
		ConfirmPassword: r.FormValue("confirm_password"),
	}
	if err := st.Session.Register(creds); err != nil {
		h.render(w, r, "register.html", AuthViewModel{
			Error: st.Session.LastError(),
			Email: creds.Email,
			Name:  creds.Name,
		})
		return
	}

	http.Redirect(w, r, guard.RouteDashboard, http.StatusFound)
}

// Logout ends the session.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	st := GetClientFromContext(r)
	if err := st.Session.Logout(); err != nil {
		log.Printf("Failed to clear session: %v", err)
	}
	http.Redirect(w, r, guard.RouteLogin, http.StatusFound)
}

// Events streams storage change events for the caller's client.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		http.NotFound(w, r)
		return
	}
	cookie, err := r.Cookie(ClientCookieName)
	if err != nil || cookie.Value == "" {
		http.Error(w, "Unknown client", http.StatusUnauthorized)
		return
	}
	if err := h.db.ValidateClient(cookie.Value); err != nil {
		http.Error(w, "Unknown client", http.StatusUnauthorized)
		return
	}
	h.hub.Serve(w, r, storage.ClientNamespace(cookie.Value))
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, viewName string, data any) {
	h.renderStatus(w, r, http.StatusOK, viewName, data)
}

func (h *Handlers) renderStatus(w http.ResponseWriter, r *http.Request, status int, viewName string, data any) {
	tmpl, err := template.New("").Funcs(funcs).ParseFiles(
		filepath.Join(h.opts.TemplateDir, "base.html"),
		filepath.Join(h.opts.TemplateDir, viewName),
	)
	if err != nil {
		log.Printf("Template error: %v", err)
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Template execution error: %v", err)
	}
}
