package web

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/vbonduro/album/internal/album"
	"github.com/vbonduro/album/internal/objecturl"
)

// AlbumFactory builds the album view for a new session whose URLs live
// under basePath.
type AlbumFactory func(basePath string) (*album.Album, error)

type Options struct {
	SessionTTL     time.Duration
	SessionLimit   int
	MaxUploadBytes int64
}

type Server struct {
	newAlbum  AlbumFactory
	urls      objecturl.Registry
	sessions  *expirable.LRU[string, *album.Album]
	templates embed.FS
	mux       *http.ServeMux
	tmplFuncs template.FuncMap
	opts      Options
	logger    *slog.Logger
}

func NewServer(newAlbum AlbumFactory, urls objecturl.Registry, tmpl embed.FS, opts Options, logger *slog.Logger) *Server {
	if opts.SessionLimit <= 0 {
		opts.SessionLimit = 64
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = maxPhotoSize
	}
	s := &Server{
		newAlbum:  newAlbum,
		urls:      urls,
		templates: tmpl,
		mux:       http.NewServeMux(),
		opts:      opts,
		logger:    logger,
		tmplFuncs: template.FuncMap{
			"bytes": func(n int64) string { return humanize.IBytes(uint64(n)) },
		},
	}
	// Evicted or expired sessions release their nodes and object URLs.
	s.sessions = expirable.NewLRU[string, *album.Album](opts.SessionLimit, func(id string, a *album.Album) {
		a.Close()
		s.logger.Debug("session closed", "session", id)
	}, opts.SessionTTL)
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("POST /albums/{session}/entries", s.handleSubmitEntry)
	s.mux.HandleFunc("DELETE /albums/{session}/entries/{id}", s.handleDeleteEntry)
	s.mux.HandleFunc("GET /albums/{session}/objects/{token}", s.handleGetObject)
}

// securityHeaders sets the browser security headers on every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy",
			"default-src 'self'; "+
				"script-src 'self' 'unsafe-inline' https://cdn.jsdelivr.net https://unpkg.com; "+
				"style-src 'self' 'unsafe-inline' https://cdn.jsdelivr.net; "+
				"font-src https://cdn.jsdelivr.net; "+
				"img-src 'self' data:; "+
				"connect-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestLogger(s.logger, securityHeaders(s.mux)).ServeHTTP(w, r)
}

func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("starting server", "addr", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return srv.ListenAndServe()
}

// Close ends every open session.
func (s *Server) Close() {
	s.sessions.Purge()
}

// Sessions reports how many album sessions are open.
func (s *Server) Sessions() int {
	return s.sessions.Len()
}

// renderPage parses and executes a full-page template set.
func (s *Server) renderPage(w http.ResponseWriter, data any, files ...string) error {
	tmpl, err := template.New("").Funcs(s.tmplFuncs).ParseFS(s.templates, files...)
	if err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	// Execute into a buffer so a failing template still yields a clean 500.
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base", data); err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err = buf.WriteTo(w)
	return err
}
