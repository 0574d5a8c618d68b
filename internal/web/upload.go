package web

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/vbonduro/album/internal/domain"
)

// maxPhotoSize bounds an upload request when no limit is configured.
const maxPhotoSize = 50 << 20

var errUnsupportedImage = errors.New("unsupported image format")

// sniffImage returns the MIME type of data if it is an accepted image
// format. http.DetectContentType covers JPEG, PNG and GIF; WebP is matched on
// its RIFF header because the sniffing algorithm has no WebP signature.
func sniffImage(data []byte) (string, bool) {
	if len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")) {
		return "image/webp", true
	}
	switch mime := http.DetectContentType(data); mime {
	case "image/jpeg", "image/png", "image/gif":
		return mime, true
	}
	return "", false
}

// readPhoto loads one uploaded file. The file name becomes the photo name.
func (s *Server) readPhoto(fh *multipart.FileHeader) (domain.Photo, error) {
	file, err := fh.Open()
	if err != nil {
		return domain.Photo{}, err
	}
	defer closeWithLog(file, "upload file", s.logger)

	data, err := io.ReadAll(file)
	if err != nil {
		return domain.Photo{}, err
	}

	mimeType, ok := sniffImage(data)
	if !ok {
		return domain.Photo{}, errUnsupportedImage
	}
	return domain.Photo{Name: fh.Filename, MimeType: mimeType, Data: data}, nil
}
