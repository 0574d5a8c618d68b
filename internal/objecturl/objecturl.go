// Package objecturl hands out short-lived tokens that stand in for photo
// blobs, so a rendered page can reference image data by URL. A token is
// meant to be revoked as soon as the image it backs has been loaded.
package objecturl

import (
	"context"
	"errors"

	"github.com/vbonduro/album/internal/domain"
)

var ErrNotFound = errors.New("object url not found")

type Registry interface {
	// Create registers photo and returns its token.
	Create(ctx context.Context, photo domain.Photo) (string, error)
	// Resolve returns the photo behind token, or ErrNotFound.
	Resolve(ctx context.Context, token string) (domain.Photo, error)
	// Revoke forgets token. It reports true only for the call that actually
	// removed it.
	Revoke(ctx context.Context, token string) (bool, error)
}
