package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/siwaht/bookx/pkg/models"
)

// TrackUpdate carries a partial track update; nil fields are left untouched.
type TrackUpdate struct {
	Name      *string
	SortOrder *int
	GainDB    *float64
	Pan       *float64
	Muted     *bool
	Solo      *bool
	Locked    *bool
	Color     *string
}

// ClipUpdate carries a partial clip update; nil fields are left untouched.
type ClipUpdate struct {
	TrackID     *string
	PositionMs  *int64
	TrimStartMs *int64
	TrimEndMs   *int64
	GainDB      *float64
	Speed       *float64
	FadeInMs    *int64
	FadeOutMs   *int64
	Notes       *string
}

// CreateTrack inserts a new track row.
func (db *Database) CreateTrack(track models.Track) error {
	_, err := db.conn.Exec(`
		INSERT INTO tracks (id, book_id, name, type, sort_order, gain_db, pan, muted, solo, locked, color, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		track.ID, track.BookID, track.Name, string(track.Type), track.SortOrder,
		track.GainDB, track.Pan, track.Muted, track.Solo, track.Locked, track.Color, track.CreatedAt)
	if err != nil {
		db.logger.WithError(err).WithField("track_id", track.ID).Error("Failed to insert track")
	}
	return err
}

// GetTrackByID returns a single track by its ID.
func (db *Database) GetTrackByID(id string) (*models.Track, error) {
	row := db.conn.QueryRow(`
		SELECT id, book_id, name, type, sort_order, gain_db, pan, muted, solo, locked, color, created_at
		FROM tracks WHERE id = ?`, id)

	track, err := scanTrack(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("track %s: %w", id, ErrNotFound)
		}
		db.logger.WithError(err).WithField("track_id", id).Error("Failed to get track by ID")
		return nil, err
	}
	return track, nil
}

// UpdateTrack applies a partial update; only the supplied fields are touched.
func (db *Database) UpdateTrack(id string, update TrackUpdate) error {
	sets := []string{}
	args := []interface{}{}
	appendSet := func(col string, val interface{}) {
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}

	if update.Name != nil {
		appendSet("name", *update.Name)
	}
	if update.SortOrder != nil {
		appendSet("sort_order", *update.SortOrder)
	}
	if update.GainDB != nil {
		appendSet("gain_db", *update.GainDB)
	}
	if update.Pan != nil {
		appendSet("pan", *update.Pan)
	}
	if update.Muted != nil {
		appendSet("muted", *update.Muted)
	}
	if update.Solo != nil {
		appendSet("solo", *update.Solo)
	}
	if update.Locked != nil {
		appendSet("locked", *update.Locked)
	}
	if update.Color != nil {
		appendSet("color", *update.Color)
	}

	if len(sets) == 0 {
		// Nothing to update, but the id must still exist
		_, err := db.GetTrackByID(id)
		return err
	}

	args = append(args, id)
	result, err := db.conn.Exec("UPDATE tracks SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		db.logger.WithError(err).WithField("track_id", id).Error("Failed to update track")
		return err
	}
	return requireRow(result, "track "+id)
}

// DeleteTrack removes a track; its clips go with it via FK cascade.
func (db *Database) DeleteTrack(id string) error {
	result, err := db.conn.Exec("DELETE FROM tracks WHERE id = ?", id)
	if err != nil {
		db.logger.WithError(err).WithField("track_id", id).Error("Failed to delete track")
		return err
	}
	return requireRow(result, "track "+id)
}

// ListTracks returns all tracks for a book in sort order, each with its
// position-ordered clips nested.
func (db *Database) ListTracks(bookID string) ([]models.TrackWithClips, error) {
	rows, err := db.conn.Query(`
		SELECT id, book_id, name, type, sort_order, gain_db, pan, muted, solo, locked, color, created_at
		FROM tracks WHERE book_id = ? ORDER BY sort_order, created_at`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []models.TrackWithClips
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, models.TrackWithClips{Track: *track})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range tracks {
		clips, err := db.GetTrackClips(tracks[i].ID)
		if err != nil {
			return nil, err
		}
		tracks[i].Clips = clips
	}
	return tracks, nil
}

// CreateClip inserts a new clip row.
func (db *Database) CreateClip(clip models.Clip) error {
	_, err := db.insertClipStmt.Exec(
		clip.ID, clip.TrackID, clip.AssetID, clip.SegmentID, clip.PositionMs,
		clip.TrimStartMs, clip.TrimEndMs, clip.GainDB, clip.Speed,
		clip.FadeInMs, clip.FadeOutMs, clip.Notes, clip.CreatedAt)
	if err != nil {
		db.logger.WithError(err).WithField("clip_id", clip.ID).Error("Failed to insert clip")
	}
	return err
}

// GetClipByID returns a single clip by its ID.
func (db *Database) GetClipByID(id string) (*models.Clip, error) {
	clip, err := scanClip(db.getClipStmt.QueryRow(id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("clip %s: %w", id, ErrNotFound)
		}
		db.logger.WithError(err).WithField("clip_id", id).Error("Failed to get clip by ID")
		return nil, err
	}
	return clip, nil
}

// GetTrackClips returns all clips on a track ordered by position.
func (db *Database) GetTrackClips(trackID string) ([]models.Clip, error) {
	rows, err := db.clipsByTrack.Query(trackID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClipRows(rows)
}

// UpdateClip applies a partial update; only the supplied fields are touched.
func (db *Database) UpdateClip(id string, update ClipUpdate) error {
	sets := []string{}
	args := []interface{}{}
	appendSet := func(col string, val interface{}) {
		sets = append(sets, col+" = ?")
		args = append(args, val)
	}

	if update.TrackID != nil {
		appendSet("track_id", *update.TrackID)
	}
	if update.PositionMs != nil {
		appendSet("position_ms", *update.PositionMs)
	}
	if update.TrimStartMs != nil {
		appendSet("trim_start_ms", *update.TrimStartMs)
	}
	if update.TrimEndMs != nil {
		appendSet("trim_end_ms", *update.TrimEndMs)
	}
	if update.GainDB != nil {
		appendSet("gain_db", *update.GainDB)
	}
	if update.Speed != nil {
		appendSet("speed", *update.Speed)
	}
	if update.FadeInMs != nil {
		appendSet("fade_in_ms", *update.FadeInMs)
	}
	if update.FadeOutMs != nil {
		appendSet("fade_out_ms", *update.FadeOutMs)
	}
	if update.Notes != nil {
		appendSet("notes", *update.Notes)
	}

	if len(sets) == 0 {
		_, err := db.GetClipByID(id)
		return err
	}

	args = append(args, id)
	result, err := db.conn.Exec("UPDATE clips SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		db.logger.WithError(err).WithField("clip_id", id).Error("Failed to update clip")
		return err
	}
	return requireRow(result, "clip "+id)
}

// ApplyClipChanges performs clip creates, partial updates and deletes in a
// single transaction. Edit operations that touch several clips (split,
// duplicate, paste with ripple) use this so validation failures or write
// errors never leave a half-applied mutation behind.
func (db *Database) ApplyClipChanges(creates []models.Clip, updates map[string]ClipUpdate, deletes []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}

	for _, c := range creates {
		_, err := tx.Exec(`
			INSERT INTO clips (id, track_id, asset_id, segment_id, position_ms, trim_start_ms, trim_end_ms,
			                   gain_db, speed, fade_in_ms, fade_out_ms, notes, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.TrackID, c.AssetID, c.SegmentID, c.PositionMs, c.TrimStartMs, c.TrimEndMs,
			c.GainDB, c.Speed, c.FadeInMs, c.FadeOutMs, c.Notes, c.CreatedAt)
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	for id, update := range updates {
		sets := []string{}
		args := []interface{}{}
		appendSet := func(col string, val interface{}) {
			sets = append(sets, col+" = ?")
			args = append(args, val)
		}
		if update.TrackID != nil {
			appendSet("track_id", *update.TrackID)
		}
		if update.PositionMs != nil {
			appendSet("position_ms", *update.PositionMs)
		}
		if update.TrimStartMs != nil {
			appendSet("trim_start_ms", *update.TrimStartMs)
		}
		if update.TrimEndMs != nil {
			appendSet("trim_end_ms", *update.TrimEndMs)
		}
		if update.GainDB != nil {
			appendSet("gain_db", *update.GainDB)
		}
		if update.Speed != nil {
			appendSet("speed", *update.Speed)
		}
		if update.FadeInMs != nil {
			appendSet("fade_in_ms", *update.FadeInMs)
		}
		if update.FadeOutMs != nil {
			appendSet("fade_out_ms", *update.FadeOutMs)
		}
		if update.Notes != nil {
			appendSet("notes", *update.Notes)
		}
		if len(sets) == 0 {
			continue
		}
		args = append(args, id)
		result, err := tx.Exec("UPDATE clips SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
		if err != nil {
			tx.Rollback()
			return err
		}
		if err := requireRow(result, "clip "+id); err != nil {
			tx.Rollback()
			return err
		}
	}

	for _, id := range deletes {
		result, err := tx.Exec("DELETE FROM clips WHERE id = ?", id)
		if err != nil {
			tx.Rollback()
			return err
		}
		if err := requireRow(result, "clip "+id); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// DeleteClip removes a clip row.
func (db *Database) DeleteClip(id string) error {
	result, err := db.deleteClipStmt.Exec(id)
	if err != nil {
		db.logger.WithError(err).WithField("clip_id", id).Error("Failed to delete clip")
		return err
	}
	return requireRow(result, "clip "+id)
}

// ListMarkers returns a book's chapter markers ordered by position.
func (db *Database) ListMarkers(bookID string) ([]models.ChapterMarker, error) {
	rows, err := db.conn.Query(`
		SELECT id, chapter_id, position_ms, label
		FROM chapter_markers WHERE book_id = ? ORDER BY position_ms`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markers []models.ChapterMarker
	for rows.Next() {
		var m models.ChapterMarker
		if err := rows.Scan(&m.ID, &m.ChapterID, &m.PositionMs, &m.Label); err != nil {
			return nil, err
		}
		markers = append(markers, m)
	}
	return markers, rows.Err()
}

// ReplaceMarkers atomically swaps a book's chapter markers for a new set.
func (db *Database) ReplaceMarkers(bookID string, markers []models.ChapterMarker) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM chapter_markers WHERE book_id = ?", bookID); err != nil {
		tx.Rollback()
		return err
	}
	for _, m := range markers {
		_, err := tx.Exec(`
			INSERT INTO chapter_markers (id, book_id, chapter_id, position_ms, label)
			VALUES (?, ?, ?, ?, ?)`,
			m.ID, bookID, m.ChapterID, m.PositionMs, m.Label)
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// LoadSnapshot reads the full timeline of a book as a detached value copy.
func (db *Database) LoadSnapshot(bookID string) (*models.TimelineSnapshot, error) {
	tracks, err := db.ListTracks(bookID)
	if err != nil {
		return nil, err
	}
	markers, err := db.ListMarkers(bookID)
	if err != nil {
		return nil, err
	}

	snapshot := &models.TimelineSnapshot{Markers: markers}
	for _, t := range tracks {
		snapshot.Tracks = append(snapshot.Tracks, t.Track)
		snapshot.Clips = append(snapshot.Clips, t.Clips...)
	}
	return snapshot, nil
}

// RestoreSnapshot transactionally replaces a book's entire timeline with the
// given snapshot. Used by undo/redo.
func (db *Database) RestoreSnapshot(bookID string, snapshot *models.TimelineSnapshot) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}

	// Clips cascade with tracks
	if _, err := tx.Exec("DELETE FROM tracks WHERE book_id = ?", bookID); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec("DELETE FROM chapter_markers WHERE book_id = ?", bookID); err != nil {
		tx.Rollback()
		return err
	}

	for _, t := range snapshot.Tracks {
		_, err := tx.Exec(`
			INSERT INTO tracks (id, book_id, name, type, sort_order, gain_db, pan, muted, solo, locked, color, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.BookID, t.Name, string(t.Type), t.SortOrder,
			t.GainDB, t.Pan, t.Muted, t.Solo, t.Locked, t.Color, t.CreatedAt)
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	for _, c := range snapshot.Clips {
		_, err := tx.Exec(`
			INSERT INTO clips (id, track_id, asset_id, segment_id, position_ms, trim_start_ms, trim_end_ms,
			                   gain_db, speed, fade_in_ms, fade_out_ms, notes, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.TrackID, c.AssetID, c.SegmentID, c.PositionMs, c.TrimStartMs, c.TrimEndMs,
			c.GainDB, c.Speed, c.FadeInMs, c.FadeOutMs, c.Notes, c.CreatedAt)
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	for _, m := range snapshot.Markers {
		_, err := tx.Exec(`
			INSERT INTO chapter_markers (id, book_id, chapter_id, position_ms, label)
			VALUES (?, ?, ?, ?, ?)`,
			m.ID, bookID, m.ChapterID, m.PositionMs, m.Label)
		if err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// requireRow converts a zero-rows-affected result into ErrNotFound.
func requireRow(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrack(row rowScanner) (*models.Track, error) {
	var t models.Track
	var trackType string
	var createdAt time.Time
	err := row.Scan(&t.ID, &t.BookID, &t.Name, &trackType, &t.SortOrder,
		&t.GainDB, &t.Pan, &t.Muted, &t.Solo, &t.Locked, &t.Color, &createdAt)
	if err != nil {
		return nil, err
	}
	t.Type = models.TrackType(trackType)
	t.CreatedAt = createdAt
	return &t, nil
}

func scanClip(row rowScanner) (*models.Clip, error) {
	var c models.Clip
	err := row.Scan(&c.ID, &c.TrackID, &c.AssetID, &c.SegmentID, &c.PositionMs,
		&c.TrimStartMs, &c.TrimEndMs, &c.GainDB, &c.Speed,
		&c.FadeInMs, &c.FadeOutMs, &c.Notes, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// scanClipRows scans standard clip result sets into a slice. Callers must
// have already deferred rows.Close().
func scanClipRows(rows *sql.Rows) ([]models.Clip, error) {
	var clips []models.Clip
	for rows.Next() {
		clip, err := scanClip(rows)
		if err != nil {
			return nil, err
		}
		clips = append(clips, *clip)
	}
	return clips, rows.Err()
}
