// package trackstore implements the durable videoID -> stream metadata
// mapping described by the data model: a SQLite-backed table with one
// writer and many concurrent readers, safe without external locking.
package trackstore

import (
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/tuncenator/ytmpd/internal/shared"
)

// VideoIDPattern is the fixed alphabet and length every videoID must match,
// shared by TrackStore's input validation and the ICY proxy's request
// validation.
var VideoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// Record is an immutable snapshot of a track's cached metadata. Callers
// must not mutate a Record after receiving it from Get.
type Record struct {
	VideoID   string
	StreamURL string
	Title     string
	Artist    string
	UpdatedAt time.Time
}

// Store is a durable key-value store mapping videoID to stream metadata,
// backed by a single-file SQLite database in WAL mode.
type Store struct {
	db     *sql.DB
	closed bool
}

// Open opens (or creates) the TrackStore database at path and ensures its
// schema is migrated. Opening at an existing file never creates a row.
func Open(path string) (*Store, error) {
	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrStoreIO, err)
	}

	shared.ConfigureDatabase(db, 4, 4)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to migrate: %v", shared.ErrStoreIO, err)
	}

	return &Store{db: db}, nil
}

// Upsert inserts or replaces the record for videoID, setting updatedAt to
// now. Fails on I/O error, on a closed store, and on invalid input (a
// malformed videoID or an empty streamURL or title).
func (s *Store) Upsert(videoID, streamURL, title, artist string) error {
	if s.closed {
		return shared.ErrStoreClosed
	}
	if !VideoIDPattern.MatchString(videoID) {
		return fmt.Errorf("%w: %q", shared.ErrInvalidVideoID, videoID)
	}
	if streamURL == "" {
		return fmt.Errorf("%w: streamURL must not be empty", shared.ErrInvalidInput)
	}
	if title == "" {
		return fmt.Errorf("%w: title must not be empty", shared.ErrInvalidInput)
	}

	now := time.Now().Unix()

	_, err := s.db.Exec(`
		INSERT INTO tracks (video_id, stream_url, title, artist, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET
			stream_url = excluded.stream_url,
			title      = excluded.title,
			artist     = excluded.artist,
			updated_at = excluded.updated_at
	`, videoID, streamURL, title, artist, now)
	if err != nil {
		return fmt.Errorf("%w: upsert failed: %v", shared.ErrStoreIO, err)
	}

	return nil
}

// Get retrieves the record for videoID. Returns shared.ErrTrackNotFound if
// no row exists.
func (s *Store) Get(videoID string) (Record, error) {
	if s.closed {
		return Record{}, shared.ErrStoreClosed
	}

	var (
		rec       Record
		updatedAt int64
	)
	row := s.db.QueryRow(`
		SELECT video_id, stream_url, title, artist, updated_at
		FROM tracks WHERE video_id = ?
	`, videoID)

	err := row.Scan(&rec.VideoID, &rec.StreamURL, &rec.Title, &rec.Artist, &updatedAt)
	if err == sql.ErrNoRows {
		return Record{}, shared.ErrTrackNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("%w: scan failed: %v", shared.ErrStoreIO, err)
	}

	rec.UpdatedAt = time.Unix(updatedAt, 0)
	return rec, nil
}

// UpdateStreamURL replaces only the stream URL and updatedAt for an
// existing videoID. Missing keys are a no-op, never an error or a new row.
func (s *Store) UpdateStreamURL(videoID, newURL string) error {
	if s.closed {
		return shared.ErrStoreClosed
	}
	if newURL == "" {
		return fmt.Errorf("%w: newURL must not be empty", shared.ErrInvalidInput)
	}

	_, err := s.db.Exec(`
		UPDATE tracks SET stream_url = ?, updated_at = ? WHERE video_id = ?
	`, newURL, time.Now().Unix(), videoID)
	if err != nil {
		return fmt.Errorf("%w: update failed: %v", shared.ErrStoreIO, err)
	}

	return nil
}

// Close flushes and releases the store's resources. Subsequent calls to any
// method fail with shared.ErrStoreClosed.
func (s *Store) Close() error {
	if s.closed {
		return shared.ErrStoreClosed
	}
	s.closed = true
	return s.db.Close()
}
