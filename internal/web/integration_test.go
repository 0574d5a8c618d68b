package web_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vbonduro/album/internal/album"
	"github.com/vbonduro/album/internal/db"
	"github.com/vbonduro/album/internal/objecturl"
	"github.com/vbonduro/album/internal/store"
	"github.com/vbonduro/album/internal/timefmt"
	"github.com/vbonduro/album/internal/web"
	"github.com/vbonduro/album/internal/web/templates"
)

// minimalJPEG is 512 bytes with the JPEG magic bytes header followed by zeros.
// http.DetectContentType identifies JPEG from the leading 0xFF 0xD8 bytes.
var minimalJPEG = jpegOfSize(512)

func jpegOfSize(n int) []byte {
	b := make([]byte, n)
	b[0] = 0xFF
	b[1] = 0xD8
	b[2] = 0xFF
	b[3] = 0xE0
	return b
}

var (
	basePathRe = regexp.MustCompile(`hx-post="(/albums/[0-9a-f-]+)/entries"`)
	imgSrcRe   = regexp.MustCompile(`<img src="([^"]+)"`)
)

type upload struct {
	name string
	data []byte
}

// newTestServer starts a web.Server backed by a fresh SQLite database limited
// to quotaBytes (0 for no limit).
func newTestServer(t *testing.T, quotaBytes int64) (*httptest.Server, *web.Server) {
	t.Helper()
	srv, ws, _ := newTestServerWithOptions(t, quotaBytes, web.Options{SessionTTL: time.Minute})
	return srv, ws
}

func newTestServerWithOptions(t *testing.T, quotaBytes int64, opts web.Options) (*httptest.Server, *web.Server, *objecturl.Memory) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "album.db"), quotaBytes)
	require.NoError(t, err)

	entries := store.NewEntryStore(database)
	urls := objecturl.NewMemory()
	times, err := timefmt.New("UTC", time.RFC3339)
	require.NoError(t, err)

	factory := func(basePath string) (*album.Album, error) {
		return album.New(album.Options{BasePath: basePath}, entries, urls, times, slog.Default())
	}
	ws := web.NewServer(factory, urls, templates.FS, opts, slog.Default())
	srv := httptest.NewServer(ws)
	t.Cleanup(func() {
		srv.Close()
		ws.Close()
		_ = database.Close()
	})
	return srv, ws, urls
}

// openAlbum loads the index page and returns the session base path.
func openAlbum(t *testing.T, srv *httptest.Server) (basePath, body string) {
	t.Helper()
	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(b))

	m := basePathRe.FindStringSubmatch(string(b))
	require.NotNil(t, m, "no form target in page:\n%s", b)
	return m[1], string(b)
}

// buildMultipartBody creates a multipart/form-data body with a "photos" field
// per upload and a "caption" field.
func buildMultipartBody(t *testing.T, caption string, uploads ...upload) (body *bytes.Buffer, contentType string) {
	t.Helper()
	body = &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, u := range uploads {
		fw, err := w.CreateFormFile("photos", u.name)
		require.NoError(t, err)
		_, err = fw.Write(u.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.WriteField("caption", caption))
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func submit(t *testing.T, srv *httptest.Server, basePath, caption string, uploads ...upload) (*http.Response, string) {
	t.Helper()
	body, contentType := buildMultipartBody(t, caption, uploads...)
	resp, err := http.Post(srv.URL+basePath+"/entries", contentType, body)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func TestIntegration_IndexOpensSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	srv, ws := newTestServer(t, 0)

	_, body := openAlbum(t, srv)
	assert.Contains(t, body, `<div id="album"`)
	assert.Contains(t, body, "50 MiB")
	assert.Contains(t, body, "prefers-color-scheme: dark")
	assert.Equal(t, 1, ws.Sessions())

	openAlbum(t, srv)
	assert.Equal(t, 2, ws.Sessions())
}

func TestIntegration_SubmitEntry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	srv, _ := newTestServer(t, 0)
	basePath, _ := openAlbum(t, srv)

	resp, body := submit(t, srv, basePath, "<script>alert(1)</script>", upload{"beach.jpg", minimalJPEG})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	assert.Contains(t, body, `data-key="1"`)
	assert.Contains(t, body, `alt="beach.jpg"`)
	assert.Contains(t, body, "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, `hx-delete="`+basePath+`/entries/1"`)
}

func TestIntegration_SubmitSeveralPhotosRendersCarousel(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	srv, _ := newTestServer(t, 0)
	basePath, _ := openAlbum(t, srv)

	resp, body := submit(t, srv, basePath, "trip",
		upload{"a.jpg", minimalJPEG}, upload{"b.jpg", minimalJPEG}, upload{"c.jpg", minimalJPEG})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	assert.Equal(t, 3, strings.Count(body, `class="carousel-item`))
	assert.Equal(t, 1, strings.Count(body, `class="carousel-item active"`))
}

func TestIntegration_SubmitRejectsBadInput(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	srv, _ := newTestServer(t, 0)
	basePath, _ := openAlbum(t, srv)

	resp, _ := submit(t, srv, basePath, "no photos")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := submit(t, srv, basePath, "pdf", upload{"doc.jpg", []byte("%PDF-1.4 not an image")})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body, "unsupported image format")
}

func TestIntegration_QuotaExceededRaisesNotice(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	srv, _ := newTestServer(t, 64*1024)
	basePath, _ := openAlbum(t, srv)

	resp, _ := submit(t, srv, basePath, "too big", upload{"big.jpg", jpegOfSize(256 * 1024)})
	require.Equal(t, http.StatusInsufficientStorage, resp.StatusCode)

	var trigger map[string]string
	require.NoError(t, json.Unmarshal([]byte(resp.Header.Get("HX-Trigger")), &trigger))
	assert.Equal(t, album.QuotaExceededNotice, trigger["album:notice"])

	// Nothing was stored, so a fresh page has no entries.
	_, page := openAlbum(t, srv)
	assert.NotContains(t, page, "data-key=")
}

func TestIntegration_ObjectURLServedOnce(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	srv, _ := newTestServer(t, 0)
	basePath, _ := openAlbum(t, srv)

	_, body := submit(t, srv, basePath, "", upload{"a.jpg", minimalJPEG})
	m := imgSrcRe.FindStringSubmatch(body)
	require.NotNil(t, m, body)

	resp, err := http.Get(srv.URL + m[1])
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Equal(t, minimalJPEG, data)

	// The token is revoked once the image has loaded.
	resp, err = http.Get(srv.URL + m[1])
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIntegration_DeleteEntry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	srv, _ := newTestServer(t, 0)
	basePath, _ := openAlbum(t, srv)

	for _, caption := range []string{"first", "second"} {
		resp, body := submit(t, srv, basePath, caption, upload{"a.jpg", minimalJPEG})
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
	}

	req, err := http.NewRequest(http.MethodDelete, srv.URL+basePath+"/entries/1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, page := openAlbum(t, srv)
	assert.Contains(t, page, `data-key="2"`)
	assert.NotContains(t, page, `data-key="1"`)
}

func TestIntegration_PageListsNewestFirst(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	srv, _ := newTestServer(t, 0)
	basePath, _ := openAlbum(t, srv)

	for _, caption := range []string{"older", "newer"} {
		resp, body := submit(t, srv, basePath, caption, upload{"a.jpg", minimalJPEG})
		require.Equal(t, http.StatusOK, resp.StatusCode, body)
	}

	_, page := openAlbum(t, srv)
	newer := strings.Index(page, `data-key="2"`)
	older := strings.Index(page, `data-key="1"`)
	require.NotEqual(t, -1, newer)
	require.NotEqual(t, -1, older)
	assert.Less(t, newer, older)
}

func TestIntegration_UnknownSessionRefreshes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	srv, _ := newTestServer(t, 0)

	resp, _ := submit(t, srv, "/albums/missing", "x", upload{"a.jpg", minimalJPEG})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("HX-Refresh"))
}

func TestIntegration_SecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t, 0)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.Contains(t, resp.Header.Get("Content-Security-Policy"), "https://cdn.jsdelivr.net")
}

func getStatus(t *testing.T, url string) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp.StatusCode
}

func TestIntegration_ObjectURLScopedToSession(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	srv, _ := newTestServer(t, 0)
	ownerPath, _ := openAlbum(t, srv)
	otherPath, _ := openAlbum(t, srv)

	_, body := submit(t, srv, ownerPath, "", upload{"a.jpg", minimalJPEG})
	m := imgSrcRe.FindStringSubmatch(body)
	require.NotNil(t, m, body)
	token := strings.TrimPrefix(m[1], ownerPath+"/objects/")

	assert.Equal(t, http.StatusNotFound, getStatus(t, srv.URL+otherPath+"/objects/"+token))
	assert.Equal(t, http.StatusNotFound, getStatus(t, srv.URL+otherPath+"/objects/"+token))
	assert.Equal(t, http.StatusOK, getStatus(t, srv.URL+m[1]))
	assert.Equal(t, http.StatusNotFound, getStatus(t, srv.URL+m[1]))
}

func TestIntegration_EvictedSessionReleasesObjectURLs(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	srv, ws, urls := newTestServerWithOptions(t, 0, web.Options{SessionTTL: time.Minute, SessionLimit: 1})
	basePath, _ := openAlbum(t, srv)

	_, body := submit(t, srv, basePath, "", upload{"a.jpg", minimalJPEG})
	m := imgSrcRe.FindStringSubmatch(body)
	require.NotNil(t, m, body)
	require.Equal(t, 1, urls.Len())

	// Opening a second page evicts the first session.
	openAlbum(t, srv)
	assert.Equal(t, 1, ws.Sessions())
	assert.Zero(t, urls.Len())

	resp, _ := submit(t, srv, basePath, "", upload{"b.jpg", minimalJPEG})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("HX-Refresh"))
	assert.Equal(t, http.StatusNotFound, getStatus(t, srv.URL+m[1]))
}
