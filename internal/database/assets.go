package database

import (
	"database/sql"
	"fmt"

	"github.com/siwaht/bookx/pkg/models"
)

// CreateAsset inserts a new audio asset registry row.
func (db *Database) CreateAsset(asset models.AudioAsset) error {
	_, err := db.conn.Exec(`
		INSERT INTO audio_assets (id, name, source, format, duration_ms, size_bytes, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		asset.ID, asset.Name, string(asset.Source), asset.Format,
		asset.DurationMs, asset.SizeBytes, asset.ContentHash, asset.CreatedAt)
	if err != nil {
		db.logger.WithError(err).WithField("asset_id", asset.ID).Error("Failed to insert asset")
	}
	return err
}

// GetAssetByID returns a single asset by its ID.
func (db *Database) GetAssetByID(id string) (*models.AudioAsset, error) {
	asset, err := scanAsset(db.conn.QueryRow(`
		SELECT id, name, source, format, duration_ms, size_bytes, content_hash, created_at
		FROM audio_assets WHERE id = ?`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("asset %s: %w", id, ErrNotFound)
		}
		db.logger.WithError(err).WithField("asset_id", id).Error("Failed to get asset by ID")
		return nil, err
	}
	return asset, nil
}

// GetAssetByHash returns the asset generated for a content hash, if any.
// This is what gives the producer its at-most-one-generation-per-prompt
// cache contract.
func (db *Database) GetAssetByHash(hash string) (*models.AudioAsset, error) {
	asset, err := scanAsset(db.conn.QueryRow(`
		SELECT id, name, source, format, duration_ms, size_bytes, content_hash, created_at
		FROM audio_assets WHERE content_hash = ?`, hash))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("asset hash %s: %w", hash, ErrNotFound)
		}
		return nil, err
	}
	return asset, nil
}

// ListAssets returns all registered assets, newest first.
func (db *Database) ListAssets() ([]models.AudioAsset, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, source, format, duration_ms, size_bytes, content_hash, created_at
		FROM audio_assets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []models.AudioAsset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *asset)
	}
	return assets, rows.Err()
}

// DeleteAsset removes an asset row together with every clip referencing it.
// The cascade keeps the timeline free of dangling asset references.
func (db *Database) DeleteAsset(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM clips WHERE asset_id = ?", id); err != nil {
		tx.Rollback()
		return err
	}
	result, err := tx.Exec("DELETE FROM audio_assets WHERE id = ?", id)
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := requireRow(result, "asset "+id); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func scanAsset(row rowScanner) (*models.AudioAsset, error) {
	var a models.AudioAsset
	var source string
	err := row.Scan(&a.ID, &a.Name, &source, &a.Format,
		&a.DurationMs, &a.SizeBytes, &a.ContentHash, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Source = models.AssetSource(source)
	return &a, nil
}
