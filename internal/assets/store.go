package assets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/siwaht/bookx/internal/database"
	"github.com/siwaht/bookx/pkg/models"
)

// Store owns the on-disk audio asset bytes and the registry rows describing
// them. The timeline itself only ever references assets by id.
type Store struct {
	dir    string
	db     *database.Database
	logger *logrus.Logger
}

// NewStore creates an asset store rooted at dir, creating it if needed.
func NewStore(dir string, db *database.Database) (*Store, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create asset directory: %w", err)
	}
	return &Store{dir: dir, db: db, logger: logger}, nil
}

// Path returns the on-disk location of an asset's bytes.
func (s *Store) Path(asset *models.AudioAsset) string {
	return filepath.Join(s.dir, asset.ID+"."+asset.Format)
}

// SaveGenerated persists produced audio bytes as a new generated asset.
// contentHash keys the asset for the producer's dedupe contract.
func (s *Store) SaveGenerated(name string, data []byte, format, contentHash string) (*models.AudioAsset, error) {
	format = strings.TrimPrefix(strings.ToLower(format), ".")
	asset := models.AudioAsset{
		ID:          uuid.New().String(),
		Name:        name,
		Source:      models.AssetGenerated,
		Format:      format,
		SizeBytes:   int64(len(data)),
		ContentHash: contentHash,
		CreatedAt:   time.Now(),
	}

	path := s.Path(&asset)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write asset bytes: %w", err)
	}

	duration, err := DurationMs(path)
	if err != nil {
		s.logger.WithError(err).WithField("asset_id", asset.ID).Warn("Failed to probe asset duration, setting to 0")
		duration = 0
	}
	asset.DurationMs = duration

	if err := s.db.CreateAsset(asset); err != nil {
		os.Remove(path)
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"asset_id":    asset.ID,
		"format":      asset.Format,
		"duration_ms": asset.DurationMs,
	}).Info("Generated asset stored")
	return &asset, nil
}

// ImportFile copies an external audio file into the store and registers it
// as an imported asset. The display name comes from embedded metadata when
// present, else from the file name.
func (s *Store) ImportFile(sourcePath string) (*models.AudioAsset, error) {
	ext := strings.ToLower(filepath.Ext(sourcePath))
	format := strings.TrimPrefix(ext, ".")
	if format != "wav" && format != "flac" && format != "mp3" {
		return nil, fmt.Errorf("unsupported import format: %s", ext)
	}

	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(sourcePath), ext)
	if file, err := os.Open(sourcePath); err == nil {
		if metadata, err := tag.ReadFrom(file); err == nil && metadata.Title() != "" {
			name = metadata.Title()
		}
		file.Close()
	}

	asset := models.AudioAsset{
		ID:        uuid.New().String(),
		Name:      name,
		Source:    models.AssetImported,
		Format:    format,
		SizeBytes: int64(len(data)),
		CreatedAt: time.Now(),
	}

	path := s.Path(&asset)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write asset bytes: %w", err)
	}

	duration, err := DurationMs(path)
	if err != nil {
		s.logger.WithError(err).WithField("source", sourcePath).Warn("Failed to probe import duration, setting to 0")
		duration = 0
	}
	asset.DurationMs = duration

	if err := s.db.CreateAsset(asset); err != nil {
		os.Remove(path)
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"asset_id": asset.ID,
		"name":     asset.Name,
		"source":   sourcePath,
	}).Info("Imported asset registered")
	return &asset, nil
}

// Delete removes an asset's bytes and registry row. Clips referencing the
// asset are deleted with it so the timeline never dangles.
func (s *Store) Delete(assetID string) error {
	asset, err := s.db.GetAssetByID(assetID)
	if err != nil {
		return err
	}
	if err := s.db.DeleteAsset(assetID); err != nil {
		return err
	}
	if err := os.Remove(s.Path(asset)); err != nil && !os.IsNotExist(err) {
		s.logger.WithError(err).WithField("asset_id", assetID).Warn("Failed to remove asset bytes")
	}
	return nil
}

// Resolve returns the registry row and on-disk path for an asset id.
func (s *Store) Resolve(assetID string) (*models.AudioAsset, string, error) {
	asset, err := s.db.GetAssetByID(assetID)
	if err != nil {
		return nil, "", err
	}
	return asset, s.Path(asset), nil
}
