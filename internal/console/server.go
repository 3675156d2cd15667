// Package console serves the local admin console. Everything under /admin
// except the login endpoints is wrapped by the admin guard.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/aivedhaguard/internal/client/admin"
	"github.com/dmitrijs2005/aivedhaguard/internal/client/client"
	"github.com/dmitrijs2005/aivedhaguard/internal/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	address string
	guard   *admin.Guard
	auth    *admin.AuthService
	metrics prometheus.Gatherer
	logger  logging.Logger
	router  chi.Router
}

func NewServer(address string, guard *admin.Guard, auth *admin.AuthService, g prometheus.Gatherer, l logging.Logger) *Server {
	s := &Server{
		address: address,
		guard:   guard,
		auth:    auth,
		metrics: g,
		logger:  l.With("module", "console"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))

	r.Route("/admin", func(r chi.Router) {
		r.Get("/login", s.loginPage)
		r.Post("/login", s.login)
		r.Post("/logout", s.logout)

		r.Group(func(r chi.Router) {
			r.Use(admin.Require(s.guard))
			r.Get("/", s.dashboard)
			r.Get("/session", s.session)
			r.With(admin.Require(s.guard, admin.RoleSuperAdmin)).Get("/settings", s.settings)
		})
	})
	return r
}

var loginTmpl = template.Must(template.New("login").Parse(`<!doctype html>
<title>AiVedha Guard admin</title>
<form method="post" action="/admin/login">
<input type="hidden" name="redirect" value="{{.Redirect}}">
<input name="email" type="email" placeholder="email">
<input name="password" type="password" placeholder="password">
<button type="submit">Sign in</button>
</form>
{{if .Error}}<p>{{.Error}}</p>{{end}}
`))

type loginView struct {
	Redirect string
	Error    string
}

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	s.renderLogin(w, http.StatusOK, loginView{Redirect: safeRedirect(r.URL.Query().Get("redirect"))})
}

func (s *Server) renderLogin(w http.ResponseWriter, status int, v loginView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = loginTmpl.Execute(w, v)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	redirect := safeRedirect(r.PostForm.Get("redirect"))

	_, err := s.auth.Login(r.Context(), r.PostForm.Get("email"), r.PostForm.Get("password"))
	switch {
	case err == nil:
		http.Redirect(w, r, redirect, http.StatusSeeOther)
	case errors.Is(err, client.ErrUnavailable):
		s.renderLogin(w, http.StatusServiceUnavailable, loginView{Redirect: redirect, Error: "Sign-in is unavailable, try again later."})
	default:
		s.logger.Warn(r.Context(), "admin sign-in failed", "error", err)
		s.renderLogin(w, http.StatusUnauthorized, loginView{Redirect: redirect, Error: "Invalid credentials."})
	}
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context()); err != nil {
		s.logger.Error(r.Context(), "admin logout failed", "error", err)
		http.Error(w, "logout failed", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, admin.LoginPath, http.StatusSeeOther)
}

type sessionView struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	Offline bool   `json:"offline"`
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	d, _ := admin.DecisionFrom(r.Context())
	writeJSON(w, http.StatusOK, sessionView{Email: d.User.Email, Name: d.User.Name, Role: d.User.Role, Offline: d.Offline})
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	d, _ := admin.DecisionFrom(r.Context())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Signed in as " + d.User.Email + " (" + d.User.Role + ")\n"))
}

func (s *Server) settings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"allowedRoles": admin.AllowedRoles})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// safeRedirect keeps post-login redirects inside the admin tree.
func safeRedirect(p string) string {
	if p == "/admin" || (strings.HasPrefix(p, "/admin/") && !strings.HasPrefix(p, "//")) {
		return p
	}
	return "/admin/"
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping console server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting console server", "address", listen.Addr().String())
	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
