package web

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"freetrack/internal/config"
	appLog "freetrack/internal/log"
	"freetrack/internal/model"
	"freetrack/internal/track"
)

// Server exposes the free-time status over HTTP: /health, /api/freetime,
// /api/config and a small embedded status page.
type Server struct {
	cfg     *config.Config
	tracker *track.Tracker
	mux     *http.ServeMux

	// In-memory cache for /api/freetime responses so a busy UI does not
	// trigger a refresh cycle per request.
	resultMu    sync.RWMutex
	resultCache *resultCache
}

type resultCache struct {
	result    model.FreeTimeResult
	updatedAt time.Time
}

//go:embed static
var embeddedStatic embed.FS

// NewServer constructs a new Server around the given tracker.
func NewServer(cfg *config.Config, tracker *track.Tracker) *Server {
	s := &Server{
		cfg:     cfg,
		tracker: tracker,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// StartServer binds to cfg.Listen and serves until the listener fails.
func StartServer(_ context.Context, cfg *config.Config, tracker *track.Tracker) error {
	s := NewServer(cfg, tracker)
	appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
	return http.ListenAndServe(cfg.Listen, s.Handler())
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password means auth is effectively off.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="freetrack", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/freetime", s.handleFreeTime)
	s.mux.HandleFunc("/api/config", s.handleConfig)
	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleFreeTime returns the current FreeTimeResult, running a refresh
// cycle when the cached response is older than 30 seconds.
func (s *Server) handleFreeTime(w http.ResponseWriter, r *http.Request) {
	const resultCacheTTL = 30 * time.Second
	now := time.Now()

	s.resultMu.RLock()
	rc := s.resultCache
	s.resultMu.RUnlock()
	if rc != nil && now.Sub(rc.updatedAt) < resultCacheTTL {
		writeJSON(w, http.StatusOK, rc.result)
		return
	}

	result := s.tracker.Refresh(r.Context(), now)

	s.resultMu.Lock()
	s.resultCache = &resultCache{result: result, updatedAt: time.Now()}
	s.resultMu.Unlock()

	writeJSON(w, http.StatusOK, result)
}

// handleConfig exposes a read-only view of the effective configuration.
// Credentials are never included.
func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	type configView struct {
		TrackingStartHour int                     `json:"tracking_start_hour"`
		TrackingEndHour   int                     `json:"tracking_end_hour"`
		IncludeWeekends   bool                    `json:"include_weekends"`
		ExcludedKeywords  []string                `json:"excluded_keywords"`
		WarningHours      float64                 `json:"warning_hours"`
		CriticalHours     float64                 `json:"critical_hours"`
		LookaheadDays     int                     `json:"lookahead_days"`
		RefreshCron       string                  `json:"refresh"`
		Calendars         []config.CalendarSource `json:"calendars"`
	}

	writeJSON(w, http.StatusOK, configView{
		TrackingStartHour: s.cfg.TrackingStartHour,
		TrackingEndHour:   s.cfg.TrackingEndHour,
		IncludeWeekends:   s.cfg.IncludeWeekends,
		ExcludedKeywords:  s.cfg.ExcludedKeywords,
		WarningHours:      s.cfg.WarningHours,
		CriticalHours:     s.cfg.CriticalHours,
		LookaheadDays:     s.cfg.LookaheadDays,
		RefreshCron:       s.cfg.RefreshCron,
		Calendars:         s.cfg.Calendars,
	})
}

// staticFileServer serves the embedded status page for everything that is
// not an API route.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "status page not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// API requests that fall through have no handler; never answer
		// them with HTML.
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			http.NotFound(w, r)
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}
