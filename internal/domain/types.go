package domain

import (
	"errors"
	"time"
)

var (
	ErrNoPhotos         = errors.New("entry has no photos")
	ErrAlreadyPersisted = errors.New("entry already has an id")
)

// Entry is one album record. ID is zero until the entry has been persisted.
// Entries are never modified after creation.
type Entry struct {
	ID        int64
	Photos    []Photo
	Caption   string
	Timestamp time.Time
}

// Photo is a binary image blob. Name is the file name it was uploaded with.
type Photo struct {
	Name     string
	MimeType string
	Data     []byte
}

func (e *Entry) Persisted() bool {
	return e.ID != 0
}

// Validate checks that e can be inserted into a store.
func (e *Entry) Validate() error {
	if e.Persisted() {
		return ErrAlreadyPersisted
	}
	if len(e.Photos) == 0 {
		return ErrNoPhotos
	}
	return nil
}
