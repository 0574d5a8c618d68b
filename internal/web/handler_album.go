package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/vbonduro/album/internal/album"
	"github.com/vbonduro/album/internal/domain"
	"github.com/vbonduro/album/internal/markup"
	"github.com/vbonduro/album/internal/objecturl"
)

// noticeEvent is the client-side event raised through HX-Trigger when a
// request fails with a message meant for the user.
const noticeEvent = "album:notice"

type indexPage struct {
	BasePath       string
	Gallery        template.HTML
	MaxUploadBytes int64
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	basePath := "/albums/" + id

	a, err := s.newAlbum(basePath)
	if err != nil {
		http.Error(w, "failed to open album", http.StatusInternalServerError)
		s.logger.Error("create album failed", "error", err)
		return
	}
	if err := a.Start(r.Context()); err != nil {
		a.Close()
		http.Error(w, "failed to load album", http.StatusInternalServerError)
		s.logger.Error("start album failed", "error", err)
		return
	}

	var gallery bytes.Buffer
	if err := a.WriteGallery(&gallery); err != nil {
		a.Close()
		http.Error(w, "failed to render album", http.StatusInternalServerError)
		s.logger.Error("render gallery failed", "error", err)
		return
	}
	s.sessions.Add(id, a)
	s.logger.Debug("session opened", "session", id, "entries", a.Len())

	data := indexPage{
		BasePath: basePath,
		// The gallery is serialized from a parsed node tree, so its text
		// and attribute values are already escaped.
		Gallery:        template.HTML(gallery.String()),
		MaxUploadBytes: s.opts.MaxUploadBytes,
	}
	if err := s.renderPage(w, data, "base.html", "index.html"); err != nil {
		s.logger.Error("render page failed", "error", err)
	}
}

func (s *Server) handleSubmitEntry(w http.ResponseWriter, r *http.Request) {
	a, ok := s.session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to parse form", http.StatusBadRequest)
		return
	}

	files := r.MultipartForm.File["photos"]
	if len(files) == 0 {
		http.Error(w, "at least one photo is required", http.StatusBadRequest)
		return
	}

	photos := make([]domain.Photo, 0, len(files))
	for _, fh := range files {
		photo, err := s.readPhoto(fh)
		if errors.Is(err, errUnsupportedImage) {
			http.Error(w, "unsupported image format: "+fh.Filename, http.StatusBadRequest)
			return
		}
		if err != nil {
			http.Error(w, "failed to read file", http.StatusBadRequest)
			s.logger.Error("read upload failed", "file", fh.Filename, "error", err)
			return
		}
		photos = append(photos, photo)
	}

	column, err := a.Submit(r.Context(), album.Submission{
		Photos:  photos,
		Caption: r.FormValue("caption"),
	})
	if err != nil {
		if notice, ok := album.Notice(err); ok {
			s.triggerNotice(w, notice)
			http.Error(w, notice, http.StatusInsufficientStorage)
			return
		}
		if errors.Is(err, album.ErrClosed) {
			sessionExpired(w)
			return
		}
		if errors.Is(err, domain.ErrNoPhotos) {
			http.Error(w, "at least one photo is required", http.StatusBadRequest)
			return
		}
		http.Error(w, "failed to save entry", http.StatusInternalServerError)
		s.logger.Error("submit entry failed", "error", err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := markup.Render(w, column); err != nil {
		s.logger.Error("render entry failed", "error", err)
	}
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	a, ok := s.session(w, r)
	if !ok {
		return
	}

	id, err := parseID(r)
	if err != nil {
		http.Error(w, "invalid entry id", http.StatusBadRequest)
		return
	}

	if err := a.Delete(r.Context(), id); err != nil {
		http.Error(w, "failed to delete entry", http.StatusInternalServerError)
		s.logger.Error("delete entry failed", "entry_id", id, "error", err)
		return
	}
	// An empty 200 body makes the outerHTML swap drop the column.
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) {
	a, ok := s.session(w, r)
	if !ok {
		return
	}

	token := r.PathValue("token")
	photo, err := s.urls.Resolve(r.Context(), token)
	if errors.Is(err, objecturl.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "failed to resolve object", http.StatusInternalServerError)
		s.logger.Error("resolve object failed", "error", err)
		return
	}

	// Only tokens rendered by this session are served, and serving one
	// releases it.
	if !a.ImageLoaded(token) {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", photo.MimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(photo.Data)))
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(photo.Data); err != nil {
		s.logger.Error("write object failed", "error", err)
	}
}

// session returns the album for the {session} path value. A missing session
// asks HTMX to reload the page, which opens a new one.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*album.Album, bool) {
	id := r.PathValue("session")
	a, ok := s.sessions.Get(id)
	if !ok {
		sessionExpired(w)
		return nil, false
	}
	// Re-adding refreshes the expiry without evicting.
	s.sessions.Add(id, a)
	return a, true
}

func sessionExpired(w http.ResponseWriter) {
	w.Header().Set("HX-Refresh", "true")
	http.Error(w, "album session expired", http.StatusNotFound)
}

func (s *Server) triggerNotice(w http.ResponseWriter, msg string) {
	payload, err := json.Marshal(map[string]string{noticeEvent: msg})
	if err != nil {
		s.logger.Error("encode notice failed", "error", err)
		return
	}
	w.Header().Set("HX-Trigger", string(payload))
}

// parseID extracts the {id} path variable and returns it as int64.
func parseID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
