// Package album binds the entry store and the templating engine into the
// photo album view: it loads the gallery, saves new entries, and removes
// deleted ones, mutating the rendered gallery only after the store has
// committed the change.
package album

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/vbonduro/album/internal/domain"
	"github.com/vbonduro/album/internal/markup"
	"github.com/vbonduro/album/internal/objecturl"
	"github.com/vbonduro/album/internal/store"
	"golang.org/x/net/html"
)

// QuotaExceededNotice is shown to the user when an entry could not be saved
// because the store is full.
const QuotaExceededNotice = "The entry could not be saved because the album storage is full."

const defaultCarouselInterval = 3 * time.Second

var (
	ErrAlreadyStarted = errors.New("album already started")
	// ErrClosed is returned by operations on an album after Close. An entry
	// saved by a Submit that raced with Close stays persisted.
	ErrClosed = errors.New("album closed")
)

// entryRepository is the subset of store.EntryStore that Album requires.
type entryRepository interface {
	Insert(ctx context.Context, entry *domain.Entry) error
	All(ctx context.Context) iter.Seq2[*domain.Entry, error]
	Delete(ctx context.Context, id int64) error
}

type TimeFormatter interface {
	Relative(t time.Time) string
	Absolute(t time.Time) string
}

type Options struct {
	// BasePath prefixes the entry and object URLs written into the markup.
	BasePath         string
	CarouselInterval time.Duration
	Now              func() time.Time
}

// Submission is the user input for a new entry.
type Submission struct {
	Photos  []domain.Photo
	Caption string
}

// Album is one rendered view of the store. It owns the gallery node tree,
// the listeners attached to it, and the object URLs its images point at.
type Album struct {
	opts    Options
	entries entryRepository
	urls    objecturl.Registry
	times   TimeFormatter
	events  *markup.Events
	logger  *slog.Logger

	mu      sync.Mutex
	gallery *html.Node
	started bool
	closed  bool
}

func New(opts Options, entries entryRepository, urls objecturl.Registry, times TimeFormatter, logger *slog.Logger) (*Album, error) {
	if opts.CarouselInterval <= 0 {
		opts.CarouselInterval = defaultCarouselInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	gallery, err := galleryTmpl.Render()
	if err != nil {
		return nil, fmt.Errorf("failed to render gallery: %w", err)
	}

	return &Album{
		opts:    opts,
		entries: entries,
		urls:    urls,
		times:   times,
		events:  markup.NewEvents(),
		logger:  logger,
		gallery: gallery,
	}, nil
}

// Start renders every stored entry into the gallery, newest first. It may
// only be called once.
func (a *Album) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.started {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	a.started = true
	a.mu.Unlock()

	loaded := 0
	for entry, err := range a.entries.All(ctx) {
		if err != nil {
			return fmt.Errorf("failed to load entries: %w", err)
		}
		column, err := a.renderEntry(ctx, entry)
		if err != nil {
			return fmt.Errorf("failed to render entry %d: %w", entry.ID, err)
		}
		if !a.attach(column, false) {
			return ErrClosed
		}
		loaded++
	}

	a.logger.Info("album started", "entries", loaded)
	return nil
}

// Submit saves a new entry and, once it is committed, renders it at the front
// of the gallery. On failure nothing is rendered; quota failures match
// store.ErrQuotaExceeded.
func (a *Album) Submit(ctx context.Context, sub Submission) (*html.Node, error) {
	entry := &domain.Entry{
		Photos:    sub.Photos,
		Caption:   sub.Caption,
		Timestamp: a.opts.Now(),
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	if a.isClosed() {
		return nil, ErrClosed
	}

	if err := a.entries.Insert(ctx, entry); err != nil {
		if errors.Is(err, store.ErrQuotaExceeded) {
			a.logger.Warn("entry rejected, storage quota exceeded", "photos", len(entry.Photos), "error", err)
			return nil, err
		}
		return nil, fmt.Errorf("failed to save entry: %w", err)
	}
	a.logger.Info("entry saved", "entry_id", entry.ID, "photos", len(entry.Photos))

	column, err := a.renderEntry(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to render entry %d: %w", entry.ID, err)
	}

	if !a.attach(column, true) {
		return nil, ErrClosed
	}
	return column, nil
}

// Delete removes the entry with key from the store and then removes the
// gallery column carrying that key. A key that is not rendered is left
// alone after the store delete.
func (a *Album) Delete(ctx context.Context, key int64) error {
	if err := a.entries.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete entry %d: %w", key, err)
	}

	a.mu.Lock()
	column := a.column(key)
	if column != nil {
		a.gallery.RemoveChild(column)
	}
	a.mu.Unlock()

	if column == nil {
		a.logger.Debug("deleted entry was not rendered", "entry_id", key)
		return nil
	}
	a.events.Dispose(column)
	a.logger.Info("entry deleted", "entry_id", key)
	return nil
}

// ImageLoaded tells the album that the image served from token has finished
// loading, which releases the token. It reports whether a rendered image
// referenced the token.
func (a *Album) ImageLoaded(token string) bool {
	src := a.objectURL(token)

	a.mu.Lock()
	img := markup.Find(a.gallery, markup.HasAttr("src", src))
	a.mu.Unlock()

	if img == nil {
		return false
	}
	return a.events.Dispatch(img, eventLoad) > 0
}

// WriteGallery renders the gallery container and its columns to w.
func (a *Album) WriteGallery(w io.Writer) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return markup.Render(w, a.gallery)
}

// Len reports how many entries are rendered.
func (a *Album) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for c := a.gallery.FirstChild; c != nil; c = c.NextSibling {
		n++
	}
	return n
}

// Keys returns the data-key of every rendered column in display order.
func (a *Album) Keys() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var keys []string
	for c := a.gallery.FirstChild; c != nil; c = c.NextSibling {
		if v, ok := markup.Attr(c, "data-key"); ok {
			keys = append(keys, v)
		}
	}
	return keys
}

// Close removes every column from the gallery and releases the resources
// their nodes hold. Later Start and Submit calls fail with ErrClosed.
func (a *Album) Close() {
	a.mu.Lock()
	a.closed = true
	var columns []*html.Node
	for c := a.gallery.FirstChild; c != nil; c = a.gallery.FirstChild {
		a.gallery.RemoveChild(c)
		columns = append(columns, c)
	}
	a.mu.Unlock()

	for _, c := range columns {
		a.events.Dispose(c)
	}
}

// attach adds column to the gallery, at the front or the end. Once the album
// is closed the column is disposed instead and attach reports false.
func (a *Album) attach(column *html.Node, front bool) bool {
	a.mu.Lock()
	closed := a.closed
	if !closed {
		if front {
			a.gallery.InsertBefore(column, a.gallery.FirstChild)
		} else {
			a.gallery.AppendChild(column)
		}
	}
	a.mu.Unlock()

	if closed {
		a.events.Dispose(column)
		return false
	}
	return true
}

func (a *Album) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *Album) column(key int64) *html.Node {
	want := strconv.FormatInt(key, 10)
	for c := a.gallery.FirstChild; c != nil; c = c.NextSibling {
		if v, ok := markup.Attr(c, "data-key"); ok && v == want {
			return c
		}
	}
	return nil
}

func (a *Album) objectURL(token string) string {
	return a.opts.BasePath + "/objects/" + token
}

func (a *Album) entryURL(key int64) string {
	return a.opts.BasePath + "/entries/" + strconv.FormatInt(key, 10)
}

// Notice returns the user-facing message for err, if it has one.
func Notice(err error) (string, bool) {
	if errors.Is(err, store.ErrQuotaExceeded) {
		return QuotaExceededNotice, true
	}
	return "", false
}
