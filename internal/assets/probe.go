package assets

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	"github.com/tcolgate/mp3"
)

// DurationMs probes the duration of an audio file in milliseconds.
func DurationMs(path string) (int64, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".wav":
		return durationWAV(path)
	case ".flac":
		return durationFLAC(path)
	case ".mp3":
		return durationMP3(path)
	default:
		return 0, fmt.Errorf("unsupported format: %s", ext)
	}
}

// WAV duration using go-audio/wav to read the header, approximating the
// sample count from the file size past the canonical 44-byte header.
func durationWAV(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, fmt.Errorf("invalid wav file")
	}
	if dec.SampleRate == 0 || dec.BitDepth == 0 || dec.NumChans == 0 {
		return 0, fmt.Errorf("invalid wav header")
	}
	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	headerSize := int64(44)
	pcmBytes := st.Size() - headerSize
	if pcmBytes < 0 {
		pcmBytes = 0
	}
	bytesPerSampleFrame := int64(dec.BitDepth/8) * int64(dec.NumChans)
	if bytesPerSampleFrame <= 0 {
		return 0, fmt.Errorf("invalid sample frame size")
	}
	sampleFrames := pcmBytes / bytesPerSampleFrame
	ms := float64(sampleFrames) * 1000 / float64(dec.SampleRate)
	return int64(ms + 0.5), nil
}

// FLAC duration via the STREAMINFO metadata block.
func durationFLAC(path string) (int64, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return 0, err
	}
	si := stream.Info
	if si.NSamples > 0 && si.SampleRate > 0 {
		ms := float64(si.NSamples) * 1000 / float64(si.SampleRate)
		return int64(ms + 0.5), nil
	}
	return 0, fmt.Errorf("flac stream missing sample info")
}

// MP3 duration using frame decoding; fallback to average bitrate estimation
// only if frames fail entirely.
func durationMP3(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	dec := mp3.NewDecoder(f)
	var total time.Duration
	var skipped int
	frames := 0
	for {
		var fr mp3.Frame
		if err := dec.Decode(&fr, &skipped); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if frames == 0 { // could not decode any frame
				return estimateFromFileSize(path, 192000) // assume 192 kbps
			}
			break // partial decode; use what we have
		}
		total += fr.Duration()
		frames++
	}
	return total.Milliseconds(), nil
}

// estimateFromFileSize provides last-resort estimation if parsing fails.
func estimateFromFileSize(path string, bitrate int) (int64, error) {
	st, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if bitrate <= 0 {
		return 0, fmt.Errorf("invalid bitrate")
	}
	return st.Size() * 8 * 1000 / int64(bitrate), nil
}
