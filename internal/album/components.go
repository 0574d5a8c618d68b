package album

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/vbonduro/album/internal/domain"
	"github.com/vbonduro/album/internal/markup"
	"golang.org/x/net/html"
)

// eventLoad fires on an image once its object URL has been fetched.
const eventLoad = "load"

var (
	galleryTmpl = markup.MustCompile(`<div id="album" class="row row-cols-1 row-cols-sm-2 row-cols-md-3 g-3"></div>`)

	columnTmpl = markup.MustCompile(`<div class="col" data-key="{{}}">
  <div class="card shadow-sm">
    {{}}
    <div class="card-body">
      <p class="card-text">{{}}</p>
      <div class="d-flex justify-content-between align-items-center">
        {{}}
        {{}}
      </div>
    </div>
  </div>
</div>`)

	carouselTmpl = markup.MustCompile(`<div id="{{}}" class="carousel slide card-img-top" data-bs-ride="carousel">
  <div class="carousel-inner">{{}}</div>
  <button class="carousel-control-prev" type="button" data-bs-target="#{{}}" data-bs-slide="prev">
    <span class="carousel-control-prev-icon" aria-hidden="true"></span>
    <span class="visually-hidden">Previous</span>
  </button>
  <button class="carousel-control-next" type="button" data-bs-target="#{{}}" data-bs-slide="next">
    <span class="carousel-control-next-icon" aria-hidden="true"></span>
    <span class="visually-hidden">Next</span>
  </button>
</div>`)

	carouselItemTmpl = markup.MustCompile(`<div class="{{}}" data-bs-interval="{{}}">{{}}</div>`)

	cardImageTmpl = markup.MustCompile(`<img src="{{}}" class="{{}}" alt="{{}}">`)

	tooltipTmpl = markup.MustCompile(`<small class="text-body-secondary" style="cursor: default;" data-bs-toggle="tooltip" data-bs-html="true" data-bs-title="{{}}">{{}}</small>`)

	deleteButtonTmpl = markup.MustCompile(`<button type="button" class="btn btn-sm btn-outline-danger" data-primary-key="{{}}" hx-delete="{{}}" hx-target="closest [data-key]" hx-swap="outerHTML" hx-confirm="Delete this entry?">Delete</button>`)
)

var (
	tooltipPolicyOnce sync.Once
	tooltipPolicy     *bluemonday.Policy
)

// titlePolicy sanitizes tooltip titles, which Bootstrap renders as HTML. Only
// the small wrapper survives; other markup coming from the configured layout
// is stripped and text is escaped.
func titlePolicy() *bluemonday.Policy {
	tooltipPolicyOnce.Do(func() {
		tooltipPolicy = bluemonday.NewPolicy().AllowElements("small")
	})
	return tooltipPolicy
}

// renderEntry builds the gallery column for a persisted entry.
func (a *Album) renderEntry(ctx context.Context, entry *domain.Entry) (*html.Node, error) {
	if len(entry.Photos) == 0 {
		return nil, domain.ErrNoPhotos
	}

	var (
		media *html.Node
		err   error
	)
	if len(entry.Photos) > 1 {
		media, err = a.carousel(ctx, entry.Photos)
	} else {
		media, err = a.cardImage(ctx, entry.Photos[0], "card-img-top")
	}
	if err != nil {
		return nil, err
	}

	tooltip, err := a.timestampTooltip(entry.Timestamp)
	if err != nil {
		a.events.Dispose(media)
		return nil, err
	}
	button, err := deleteButtonTmpl.Render(entry.ID, a.entryURL(entry.ID))
	if err != nil {
		a.events.Dispose(media)
		return nil, err
	}

	column, err := columnTmpl.Render(entry.ID, media, entry.Caption, tooltip, button)
	if err != nil {
		a.events.Dispose(media)
		return nil, err
	}
	return column, nil
}

func (a *Album) carousel(ctx context.Context, photos []domain.Photo) (*html.Node, error) {
	interval := a.opts.CarouselInterval.Milliseconds()
	items := make([]*html.Node, 0, len(photos))
	release := func() {
		for _, item := range items {
			a.events.Dispose(item)
		}
	}

	for i, photo := range photos {
		img, err := a.cardImage(ctx, photo, "d-block w-100")
		if err != nil {
			release()
			return nil, err
		}
		class := "carousel-item"
		if i == 0 {
			class += " active"
		}
		item, err := carouselItemTmpl.Render(class, interval, img)
		if err != nil {
			a.events.Dispose(img)
			release()
			return nil, err
		}
		items = append(items, item)
	}

	id := "carousel-" + uuid.NewString()
	node, err := carouselTmpl.Render(id, items, id, id)
	if err != nil {
		release()
		return nil, err
	}
	return node, nil
}

// cardImage registers photo with the object URL registry and renders an img
// pointing at it. The token is revoked once, on whichever comes first of the
// image loading or the node being disposed.
func (a *Album) cardImage(ctx context.Context, photo domain.Photo, class string) (*html.Node, error) {
	token, err := a.urls.Create(ctx, photo)
	if err != nil {
		return nil, err
	}

	var once sync.Once
	revoke := func(*html.Node) {
		once.Do(func() { a.revoke(token) })
	}

	img, err := cardImageTmpl.Render(a.objectURL(token), class, photo.Name)
	if err != nil {
		revoke(nil)
		return nil, err
	}
	a.events.On(img, eventLoad, revoke)
	a.events.On(img, markup.EventDispose, revoke)
	return img, nil
}

func (a *Album) timestampTooltip(t time.Time) (*html.Node, error) {
	title := titlePolicy().Sanitize("<small>" + a.times.Absolute(t) + "</small>")
	return tooltipTmpl.Render(title, a.times.Relative(t))
}

// revoke runs from event handlers, after the request that created the token
// may have finished.
func (a *Album) revoke(token string) {
	if _, err := a.urls.Revoke(context.Background(), token); err != nil {
		a.logger.Warn("failed to revoke object url", "token", token, "error", err)
	}
}
