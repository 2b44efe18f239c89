package lmsauth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// NewRouter mounts every auth endpoint under /auth. Each OAuthLogin adds
// /auth/<provider> and /auth/<provider>/callback.
func NewRouter(svc *AuthService, logins ...*OAuthLogin) http.Handler {
	svc.EnsureDefaults()
	authn := svc.Authenticator()

	r := mux.NewRouter()
	r.Use(recoverer(svc.Logger), accessLog(svc.Logger))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}).Methods(http.MethodGet)

	// Registered on the root router; a /auth subrouter answers a method
	// mismatch with 404.
	a := func(path string, h http.Handler, methods ...string) {
		r.Handle("/auth"+path, h).Methods(methods...)
	}
	a("/register", http.HandlerFunc(svc.HandleRegister), http.MethodPost)
	a("/login", http.HandlerFunc(svc.HandleLogin), http.MethodPost)
	a("/logout", http.HandlerFunc(svc.HandleLogout), http.MethodPost)
	a("/refresh", http.HandlerFunc(svc.HandleRefresh), http.MethodPost)
	a("/change-password", authn.Require(svc.HandleChangePassword), http.MethodPost, http.MethodPut)
	a("/me", authn.Require(svc.HandleMe), http.MethodGet)
	a("/get-current-login-info", authn.Require(svc.HandleMe), http.MethodGet)

	for _, login := range logins {
		if login == nil || login.Provider == nil {
			continue
		}
		if login.Service == nil {
			login.Service = svc
		}
		name := login.Provider.Name()
		a("/"+name, http.HandlerFunc(login.HandleBegin), http.MethodGet)
		a("/"+name+"/callback", http.HandlerFunc(login.HandleCallback), http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"success": false, "message": "Method not allowed"})
	})

	if svc.Sessions == nil {
		return r
	}
	return svc.Sessions.LoadAndSave(r)
}

// recoverer turns a panicking handler into a generic 500.
func recoverer(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic serving request", "method", r.Method, "path", r.URL.Path, "panic", rec)
					writeJSON(w, http.StatusInternalServerError, map[string]any{
						"success": false,
						"message": "Internal server error",
						"code":    ErrCodeInternal,
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func accessLog(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start))
		})
	}
}
