package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a track, clip, marker, asset or job id does
// not exist. Callers check it with errors.Is; no mutation has happened when
// it is returned.
var ErrNotFound = errors.New("not found")

// Database wraps a *sql.DB providing higher-level helper methods for the
// timeline store. It is safe for concurrent use because the underlying
// *sql.DB is concurrency-safe; there is no optimistic-concurrency token,
// concurrent writers race at row granularity (last write wins).
type Database struct {
	conn   *sql.DB
	logger *logrus.Logger

	// Prepared statements for the hot clip paths
	getClipStmt    *sql.Stmt
	clipsByTrack   *sql.Stmt
	insertClipStmt *sql.Stmt
	deleteClipStmt *sql.Stmt
}

// NewDatabase opens (or creates) a SQLite database at the provided path and
// ensures all required tables and indices exist. It also applies lightweight
// performance-oriented pragmas (WAL, cache sizing). Caller should Close() it
// when finished.
func NewDatabase(dbPath string) (*Database, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	conn, err := sql.Open("sqlite3", dbPath+"?cache=shared&mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool - adjusted for SQLite
	conn.SetMaxOpenConns(5) // SQLite works better with fewer connections
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(15 * time.Minute)

	// Enable WAL mode for better concurrency
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=2000;",
		"PRAGMA temp_store=memory;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			logger.WithError(err).WithField("pragma", pragma).Warn("Failed to set pragma")
		}
	}

	db := &Database{
		conn:   conn,
		logger: logger,
	}

	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	if err := db.prepareStatements(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	logger.WithField("db_path", dbPath).Info("Database initialized successfully")
	return db, nil
}

// createTables creates tables and indices if they do not already exist.
// This is idempotent and safe to call multiple times.
func (db *Database) createTables() error {
	tracksTable := `
	CREATE TABLE IF NOT EXISTS tracks (
		id TEXT PRIMARY KEY,
		book_id TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		sort_order INTEGER DEFAULT 0,
		gain_db REAL DEFAULT 0,
		pan REAL DEFAULT 0,
		muted BOOLEAN DEFAULT FALSE,
		solo BOOLEAN DEFAULT FALSE,
		locked BOOLEAN DEFAULT FALSE,
		color TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	clipsTable := `
	CREATE TABLE IF NOT EXISTS clips (
		id TEXT PRIMARY KEY,
		track_id TEXT NOT NULL,
		asset_id TEXT NOT NULL,
		segment_id TEXT DEFAULT '',
		position_ms INTEGER NOT NULL,
		trim_start_ms INTEGER NOT NULL,
		trim_end_ms INTEGER NOT NULL,
		gain_db REAL DEFAULT 0,
		speed REAL DEFAULT 1.0,
		fade_in_ms INTEGER DEFAULT 0,
		fade_out_ms INTEGER DEFAULT 0,
		notes TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (track_id) REFERENCES tracks(id) ON DELETE CASCADE
	);`

	markersTable := `
	CREATE TABLE IF NOT EXISTS chapter_markers (
		id TEXT PRIMARY KEY,
		book_id TEXT NOT NULL,
		chapter_id TEXT DEFAULT '',
		position_ms INTEGER NOT NULL,
		label TEXT DEFAULT ''
	);`

	assetsTable := `
	CREATE TABLE IF NOT EXISTS audio_assets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		source TEXT NOT NULL,
		format TEXT NOT NULL,
		duration_ms INTEGER DEFAULT 0,
		size_bytes INTEGER DEFAULT 0,
		content_hash TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	renderJobsTable := `
	CREATE TABLE IF NOT EXISTS render_jobs (
		id TEXT PRIMARY KEY,
		book_id TEXT NOT NULL,
		status TEXT NOT NULL,
		progress INTEGER DEFAULT 0,
		qc_report TEXT,
		error TEXT,
		created_at DATETIME,
		completed_at DATETIME
	);`

	indices := []string{
		"CREATE INDEX IF NOT EXISTS idx_tracks_book ON tracks(book_id, sort_order);",
		"CREATE INDEX IF NOT EXISTS idx_clips_track ON clips(track_id, position_ms);",
		"CREATE INDEX IF NOT EXISTS idx_clips_asset ON clips(asset_id);",
		"CREATE INDEX IF NOT EXISTS idx_markers_book ON chapter_markers(book_id, position_ms);",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_assets_hash ON audio_assets(content_hash) WHERE content_hash != '';",
		"CREATE INDEX IF NOT EXISTS idx_render_jobs_status ON render_jobs(status);",
		"CREATE INDEX IF NOT EXISTS idx_render_jobs_created ON render_jobs(created_at);",
	}

	tables := []string{tracksTable, clipsTable, markersTable, assetsTable, renderJobsTable}
	for _, table := range tables {
		if _, err := db.conn.Exec(table); err != nil {
			return err
		}
	}

	for _, index := range indices {
		if _, err := db.conn.Exec(index); err != nil {
			return err
		}
	}

	return nil
}

// prepareStatements prepares commonly used SQL statements for better performance
func (db *Database) prepareStatements() error {
	var err error

	db.getClipStmt, err = db.conn.Prepare(`
		SELECT id, track_id, asset_id, segment_id, position_ms, trim_start_ms, trim_end_ms,
		       gain_db, speed, fade_in_ms, fade_out_ms, notes, created_at
		FROM clips WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare get clip statement: %w", err)
	}

	db.clipsByTrack, err = db.conn.Prepare(`
		SELECT id, track_id, asset_id, segment_id, position_ms, trim_start_ms, trim_end_ms,
		       gain_db, speed, fade_in_ms, fade_out_ms, notes, created_at
		FROM clips WHERE track_id = ? ORDER BY position_ms`)
	if err != nil {
		return fmt.Errorf("failed to prepare clips by track statement: %w", err)
	}

	db.insertClipStmt, err = db.conn.Prepare(`
		INSERT INTO clips (id, track_id, asset_id, segment_id, position_ms, trim_start_ms, trim_end_ms,
		                   gain_db, speed, fade_in_ms, fade_out_ms, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert clip statement: %w", err)
	}

	db.deleteClipStmt, err = db.conn.Prepare(`DELETE FROM clips WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete clip statement: %w", err)
	}

	return nil
}

// Close closes the underlying database connection and prepared statements.
func (db *Database) Close() error {
	statements := []*sql.Stmt{
		db.getClipStmt,
		db.clipsByTrack,
		db.insertClipStmt,
		db.deleteClipStmt,
	}

	for _, stmt := range statements {
		if stmt != nil {
			if err := stmt.Close(); err != nil {
				db.logger.WithError(err).Error("Failed to close prepared statement")
			}
		}
	}

	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
