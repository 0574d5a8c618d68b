package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/vbonduro/album/internal/domain"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrQuotaExceeded is returned when a write is aborted because the database
// reached its size limit. Nothing from the aborted write is persisted.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

type EntryStore struct {
	db *sql.DB
}

func NewEntryStore(db *sql.DB) *EntryStore {
	return &EntryStore{db: db}
}

// Insert persists entry and its photos in one transaction and sets
// entry.ID once the transaction has committed.
func (s *EntryStore) Insert(ctx context.Context, entry *domain.Entry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return writeError("failed to begin insert", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO entries (caption, created_at) VALUES (?, ?)
	`, entry.Caption, entry.Timestamp.UnixNano())
	if err != nil {
		return writeError("failed to insert entry", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	for i, photo := range entry.Photos {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entry_photos (entry_id, position, name, mime_type, data) VALUES (?, ?, ?, ?, ?)
		`, id, i, photo.Name, photo.MimeType, photo.Data); err != nil {
			return writeError("failed to insert photo", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return writeError("failed to commit entry", err)
	}

	entry.ID = id
	return nil
}

// All returns every entry, newest first. Each call runs a fresh query, so the
// sequence can be ranged over more than once and always reflects what was
// committed when iteration started.
func (s *EntryStore) All(ctx context.Context) iter.Seq2[*domain.Entry, error] {
	return func(yield func(*domain.Entry, error) bool) {
		rows, err := s.db.QueryContext(ctx, `
			SELECT e.id, e.caption, e.created_at, p.name, p.mime_type, p.data
			FROM entries e
			JOIN entry_photos p ON p.entry_id = e.id
			ORDER BY e.id DESC, p.position ASC
		`)
		if err != nil {
			yield(nil, fmt.Errorf("failed to list entries: %w", err))
			return
		}
		defer rows.Close()

		var current *domain.Entry
		for rows.Next() {
			var (
				id        int64
				caption   string
				createdAt int64
				photo     domain.Photo
			)
			if err := rows.Scan(&id, &caption, &createdAt, &photo.Name, &photo.MimeType, &photo.Data); err != nil {
				yield(nil, fmt.Errorf("failed to scan entry: %w", err))
				return
			}

			if current != nil && current.ID != id {
				if !yield(current, nil) {
					return
				}
				current = nil
			}
			if current == nil {
				current = &domain.Entry{ID: id, Caption: caption, Timestamp: time.Unix(0, createdAt)}
			}
			current.Photos = append(current.Photos, photo)
		}

		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("error iterating entries: %w", err))
			return
		}
		if current != nil {
			yield(current, nil)
		}
	}
}

// Delete removes the entry with id and its photos. Deleting an id that does
// not exist is not an error.
func (s *EntryStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entry_photos WHERE entry_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete photos: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// writeError wraps err with msg, marking it as ErrQuotaExceeded when SQLite
// reports that the database is full.
func writeError(msg string, err error) error {
	if isFull(err) {
		return fmt.Errorf("%s: %w: %v", msg, ErrQuotaExceeded, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isFull(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code()&0xff == sqlite3.SQLITE_FULL
}
