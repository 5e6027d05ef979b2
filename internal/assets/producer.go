package assets

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/siwaht/bookx/internal/database"
	"github.com/siwaht/bookx/pkg/models"
)

// Producer is the opaque external audio generator (TTS, SFX, music). It
// returns raw audio bytes and their container format for a prompt.
type Producer interface {
	Produce(ctx context.Context, prompt string) (data []byte, format string, err error)
}

// GenerationService fronts the producer with a content-hash cache: one
// distinct prompt generates at most one asset, ever. Repeated renders of
// the same material therefore reuse identical bytes.
type GenerationService struct {
	store    *Store
	db       *database.Database
	producer Producer
	logger   *logrus.Logger
}

// NewGenerationService creates the hash-keyed generation front.
func NewGenerationService(store *Store, db *database.Database, producer Producer) *GenerationService {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &GenerationService{store: store, db: db, producer: producer, logger: logger}
}

// Generate returns the asset for a prompt, producing it only when no asset
// with the prompt's content hash exists yet.
func (g *GenerationService) Generate(ctx context.Context, name, prompt string) (*models.AudioAsset, error) {
	hash := PromptHash(prompt)

	if asset, err := g.db.GetAssetByHash(hash); err == nil {
		g.logger.WithFields(logrus.Fields{
			"asset_id": asset.ID,
			"hash":     hash,
		}).Debug("Reusing generated asset for prompt")
		return asset, nil
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	if g.producer == nil {
		return nil, fmt.Errorf("no audio producer configured")
	}

	data, format, err := g.producer.Produce(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("audio generation failed: %w", err)
	}
	return g.store.SaveGenerated(name, data, format, hash)
}

// PromptHash derives the content hash keying generated assets.
func PromptHash(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// HTTPProducer calls an external generation endpoint. The endpoint accepts
// a JSON prompt and answers with audio bytes; the response Content-Type
// picks the container format.
type HTTPProducer struct {
	url    string
	client *http.Client
}

// NewHTTPProducer creates a producer against the given endpoint URL.
func NewHTTPProducer(url string) *HTTPProducer {
	return &HTTPProducer{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Minute},
	}
}

// Produce posts the prompt and returns the resulting audio bytes.
func (p *HTTPProducer) Produce(ctx context.Context, prompt string) ([]byte, string, error) {
	payload, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("producer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, "", fmt.Errorf("producer returned %d: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read producer response: %w", err)
	}

	format := "wav"
	switch resp.Header.Get("Content-Type") {
	case "audio/flac":
		format = "flac"
	case "audio/mpeg":
		format = "mp3"
	}
	return data, format, nil
}
