package render

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/siwaht/bookx/internal/assets"
	"github.com/siwaht/bookx/internal/qc"
	"github.com/siwaht/bookx/pkg/models"
)

// collectChapterClips gathers the clips of every non-muted track whose
// audible span intersects [startMs, endMs), sorted by position.
func collectChapterClips(tracks []models.TrackWithClips, startMs, endMs int64) []models.Clip {
	var clips []models.Clip
	for _, tr := range tracks {
		if tr.Muted {
			continue
		}
		for _, clip := range tr.Clips {
			if clip.PositionMs < endMs && clip.EndMs() > startMs {
				clips = append(clips, clip)
			}
		}
	}
	sort.Slice(clips, func(i, j int) bool {
		return clips[i].PositionMs < clips[j].PositionMs
	})
	return clips
}

// assembleChapter decodes each clip's audible asset range and concatenates
// the PCM in position order at the render sample rate. Concatenation is
// ordered, not mixed: per-clip gain, fade, and speed are not composited
// into the rendered stream, so output can diverge from the live preview.
func assembleChapter(cache *assets.BufferCache, clips []models.Clip, sampleRate int) ([]float64, error) {
	var out []float64
	for i := range clips {
		clip := &clips[i]
		buf, err := cache.Get(clip.AssetID)
		if err != nil {
			return nil, fmt.Errorf("asset %s unavailable: %w", clip.AssetID, err)
		}

		start := int(clip.TrimStartMs) * buf.SampleRate / 1000
		end := int(clip.TrimEndMs) * buf.SampleRate / 1000
		if start < 0 {
			start = 0
		}
		if end > len(buf.Samples) {
			end = len(buf.Samples)
		}
		if start >= end {
			continue
		}

		segment := buf.Samples[start:end]
		if buf.SampleRate != sampleRate {
			segment = assets.Resample(segment, buf.SampleRate, sampleRate)
		}
		out = append(out, segment...)
	}
	return out, nil
}

// normalizeLoudness scales the stream toward targetLUFS, then holds the
// gain back so the resulting peak never exceeds peakCeilingDB.
func normalizeLoudness(samples []float64, sampleRate int, targetLUFS, peakCeilingDB float64) {
	if len(samples) == 0 {
		return
	}
	measured := qc.IntegratedLUFS(samples, sampleRate)
	if measured <= -120 {
		// Silence; nothing to normalize.
		return
	}

	gain := math.Pow(10, (targetLUFS-measured)/20)
	peak := math.Pow(10, qc.PeakDB(samples)/20)
	ceiling := math.Pow(10, peakCeilingDB/20)
	if peak*gain > ceiling {
		gain = ceiling / peak
	}
	for i := range samples {
		samples[i] *= gain
	}
}

// writeWAV persists a mono float64 stream as 16-bit PCM.
func writeWAV(path string, samples []float64, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		buf.Data[i] = int(s * 32767)
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize wav: %w", err)
	}
	return nil
}

// sanitizeFilename removes invalid characters from filenames
func sanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}
	result = strings.TrimSpace(result)
	if result == "" {
		result = "chapter"
	}
	return result
}
