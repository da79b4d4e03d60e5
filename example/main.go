// Command example is a minimal login/logout demo backed by Redis sessions.
//
// Run a local Redis (or set REDIS_HOST / REDIS_PORT) and then:
//
//	go run ./example
package main

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davrien/kvsession"
)

// users is a stand-in for a real credential backend.
var users = map[string]string{
	"admin": "secret",
	"alice": "password123",
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; background: #f0f2f5; color: #333; margin: 0; }
nav { background: #2c3e50; padding: 1rem 2rem; color: #ecf0f1; display: flex; justify-content: space-between; }
nav a { color: #ecf0f1; margin-left: 1rem; text-decoration: none; }
.container { max-width: 420px; margin: 3rem auto; padding: 2rem; background: #fff; border-radius: 8px; }
label { display: block; font-weight: 600; margin-bottom: .3rem; }
input { width: 100%; padding: .5rem; margin-bottom: 1rem; border: 1px solid #ccc; border-radius: 4px; }
button { width: 100%; padding: .6rem; background: #3498db; color: #fff; border: none; border-radius: 4px; }
.error { color: #e74c3c; text-align: center; }
</style></head>
<body>
<nav><span><strong>Demo App</strong></span>
<span>{{if .Username}}Hi, {{.Username}} <a href="/logout">Logout</a>{{else}}<a href="/login">Login</a>{{end}}</span></nav>
<div class="container">
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{if .Username}}
<h2>Welcome, {{.Username}}!</h2><p>You are logged in.</p>
{{else}}
<h2>Login</h2>
<form method="post" action="/login">
<label>Username</label><input type="text" name="username" required>
<label>Password</label><input type="password" name="password" required>
<button type="submit">Login</button>
</form>
{{end}}
</div></body></html>`))

type pageData struct {
	Title    string
	Username string
	Error    string
}

type app struct {
	sessions *kvsession.Manager
	logger   *slog.Logger
}

func (a *app) render(w http.ResponseWriter, data pageData) {
	if err := pageTmpl.Execute(w, data); err != nil {
		a.logger.Error("render failed", "error", err)
	}
}

// username returns the logged-in user for the request, or "" when the
// request carries no live session.
func (a *app) username(r *http.Request) (string, *kvsession.Session, error) {
	session, err := a.sessions.Get(r)
	if err != nil {
		return "", nil, err
	}
	if v, ok := session.Get("username"); ok {
		if name, ok := v.(string); ok {
			return name, session, nil
		}
	}
	return "", session, nil
}

func (a *app) handleHome(w http.ResponseWriter, r *http.Request) {
	name, _, err := a.username(r)
	if err != nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	if name == "" {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}
	a.render(w, pageData{Title: "Home", Username: name})
}

func (a *app) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	name, _, err := a.username(r)
	if err != nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	if name != "" {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	a.render(w, pageData{Title: "Login", Error: r.URL.Query().Get("error")})
}

func (a *app) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	if pw, ok := users[username]; !ok || pw != password {
		http.Redirect(w, r, "/login?error=Invalid+credentials", http.StatusFound)
		return
	}

	_, session, err := a.username(r)
	if err != nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	session.Set("username", username)

	// A new ID on privilege change blocks session fixation.
	if err := a.sessions.Regenerate(w, r, session); err != nil {
		a.logger.Error("failed to persist session", "error", err)
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (a *app) handleLogout(w http.ResponseWriter, r *http.Request) {
	_, session, err := a.username(r)
	if err != nil {
		http.Error(w, "session unavailable", http.StatusInternalServerError)
		return
	}
	if err := a.sessions.Destroy(w, r, session); err != nil {
		a.logger.Error("failed to destroy session", "error", err)
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (a *app) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", a.handleHome)
	mux.HandleFunc("GET /login", a.handleLoginPage)
	mux.HandleFunc("POST /login", a.handleLogin)
	mux.HandleFunc("GET /logout", a.handleLogout)
	return mux
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	host := envOr("REDIS_HOST", "127.0.0.1")
	port := envOr("REDIS_PORT", "6379")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := kvsession.NewRedisStore(ctx, kvsession.RedisConfig{
		Endpoints: []string{host + ":" + port},
		Keyspace:  kvsession.Keyspace{Namespace: "sessions", Collection: "demo"},
		Logger:    logger,
	})
	if err != nil {
		logger.Error("cannot reach session store", "error", err)
		os.Exit(1)
	}

	mgr := kvsession.NewManager(kvsession.Config{
		Store:      store,
		TTL:        24 * time.Hour,
		CookieName: "session_id",
	})

	a := &app{sessions: mgr, logger: logger}

	srv := &http.Server{
		Addr:    ":8080",
		Handler: a.routes(),
	}

	go func() {
		logger.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	// Closing the manager closes the store connection, exactly once.
	if err := mgr.Close(); err != nil {
		logger.Error("failed to close session store", "error", err)
	}
	logger.Info("server stopped")
}
