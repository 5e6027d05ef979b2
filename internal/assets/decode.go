package assets

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
)

// Buffer holds decoded mono PCM for one asset, normalized to [-1, 1].
type Buffer struct {
	Samples    []float64
	SampleRate int
}

// DurationMs returns the buffer's play time in milliseconds.
func (b *Buffer) DurationMs() int64 {
	if b.SampleRate == 0 {
		return 0
	}
	return int64(float64(len(b.Samples)) * 1000 / float64(b.SampleRate))
}

// DecodePCM decodes an asset file into normalized mono PCM. WAV and FLAC
// are supported; MP3 assets can be placed and probed but not decoded, so
// they surface an error here that render downgrades to a chapter issue.
func DecodePCM(path string) (*Buffer, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".wav":
		return decodeWAV(path)
	case ".flac":
		return decodeFLAC(path)
	default:
		return nil, fmt.Errorf("pcm decode not supported for %s", ext)
	}
}

func decodeWAV(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode wav pcm: %w", err)
	}
	if buf.Format == nil || buf.Format.SampleRate == 0 || buf.Format.NumChannels == 0 {
		return nil, fmt.Errorf("invalid wav format")
	}

	scale := float64(int64(1) << (dec.BitDepth - 1))
	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels
	samples := make([]float64, frames)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for ch := 0; ch < channels; ch++ {
			sum += float64(buf.Data[i*channels+ch]) / scale
		}
		samples[i] = sum / float64(channels)
	}
	return &Buffer{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

func decodeFLAC(path string) (*Buffer, error) {
	stream, err := flac.Open(path)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	info := stream.Info
	if info.SampleRate == 0 || info.NChannels == 0 {
		return nil, fmt.Errorf("invalid flac stream info")
	}
	scale := float64(int64(1) << (info.BitsPerSample - 1))

	var samples []float64
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse flac frame: %w", err)
		}
		blockSize := int(frame.Subframes[0].NSamples)
		channels := len(frame.Subframes)
		for i := 0; i < blockSize; i++ {
			sum := 0.0
			for ch := 0; ch < channels; ch++ {
				sum += float64(frame.Subframes[ch].Samples[i]) / scale
			}
			samples = append(samples, sum/float64(channels))
		}
	}
	return &Buffer{Samples: samples, SampleRate: int(info.SampleRate)}, nil
}

// Resample converts a sample slice between rates with linear interpolation.
// Good enough for speech-centric material; replaceable if fidelity becomes
// a concern.
func Resample(samples []float64, fromRate, toRate int) []float64 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(samples) == 0 {
		return samples
	}
	ratio := float64(fromRate) / float64(toRate)
	outLen := int(float64(len(samples)) / ratio)
	out := make([]float64, outLen)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx+1 >= len(samples) {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}
