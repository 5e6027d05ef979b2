package models

import "time"

// AssetSource records how an audio asset entered the system.
type AssetSource string

const (
	AssetGenerated AssetSource = "generated"
	AssetImported  AssetSource = "imported"
)

// AudioAsset describes an externally produced audio file referenced by
// clips. The timeline never owns asset bytes; it stores them in the asset
// directory and keeps this registry row per asset. ContentHash keys
// generated assets so that one distinct prompt produces at most one asset.
type AudioAsset struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Source      AssetSource `json:"source"`
	Format      string      `json:"format"` // file extension without dot: wav, flac, mp3
	DurationMs  int64       `json:"durationMs"`
	SizeBytes   int64       `json:"sizeBytes"`
	ContentHash string      `json:"contentHash,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}
