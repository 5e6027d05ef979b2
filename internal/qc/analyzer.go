package qc

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/siwaht/bookx/internal/assets"
	"github.com/siwaht/bookx/pkg/models"
)

// Spec holds the acceptance thresholds a rendered chapter must satisfy.
// The defaults are the ACX audiobook submission requirements.
type Spec struct {
	RMSMinDB        float64
	RMSMaxDB        float64
	PeakMaxDB       float64
	NoiseFloorMaxDB float64
}

// DefaultSpec returns the ACX thresholds: RMS between -23 and -18 dB,
// true peak at or below -3 dB, noise floor at or below -60 dB.
func DefaultSpec() Spec {
	return Spec{
		RMSMinDB:        -23,
		RMSMaxDB:        -18,
		PeakMaxDB:       -3,
		NoiseFloorMaxDB: -60,
	}
}

const (
	// silenceDB stands in for -inf when a measurement window is silent.
	silenceDB = -120.0
	// clipThreshold is the absolute sample value treated as clipped.
	clipThreshold = 0.999
	// loudness gating and windowing follow the shape of ITU-R BS.1770:
	// 400 ms blocks with 75% overlap, absolute gate at -70 LUFS. The
	// K-weighting filter is approximated by a fixed offset, which is
	// accurate enough for speech-dominant material.
	lufsBlockMs   = 400
	lufsHopMs     = 100
	lufsOffset    = -0.691
	lufsGate      = -70.0
	noiseWindowMs = 100
)

// Analyzer measures rendered chapter files against a Spec.
type Analyzer struct {
	spec   Spec
	logger *logrus.Logger
}

// NewAnalyzer creates an analyzer with the given thresholds.
func NewAnalyzer(spec Spec, logger *logrus.Logger) *Analyzer {
	return &Analyzer{spec: spec, logger: logger}
}

// AnalyzeFile measures one rendered chapter file. A file that cannot be
// read or decoded yields a zeroed, failing report with an explicit issue
// instead of an error.
func (a *Analyzer) AnalyzeFile(path string) models.ChapterQCReport {
	buf, err := assets.DecodePCM(path)
	if err != nil {
		a.logger.WithError(err).WithField("path", path).Warn("QC measurement failed")
		return models.ChapterQCReport{
			Issues: []string{fmt.Sprintf("Failed to analyze audio: %v", err)},
		}
	}
	return a.AnalyzeSamples(buf.Samples, buf.SampleRate)
}

// AnalyzeSamples measures a mono PCM buffer and evaluates it against the
// spec.
func (a *Analyzer) AnalyzeSamples(samples []float64, sampleRate int) models.ChapterQCReport {
	report := models.ChapterQCReport{}
	if len(samples) == 0 || sampleRate <= 0 {
		report.Issues = []string{"Failed to analyze audio: empty stream"}
		return report
	}

	report.DurationSeconds = float64(len(samples)) / float64(sampleRate)
	report.RMSDB = rmsDB(samples)
	report.TruePeakDB = PeakDB(samples)
	report.LUFS = IntegratedLUFS(samples, sampleRate)
	report.NoiseFloorDB = noiseFloorDB(samples, sampleRate)
	report.ClippingDetected = detectClipping(samples)

	a.Evaluate(&report)
	return report
}

// Evaluate fills Issues and ACXPass from the report's measured metrics.
// Bounds are inclusive: an RMS of exactly RMSMinDB or RMSMaxDB passes.
func (a *Analyzer) Evaluate(report *models.ChapterQCReport) {
	issues := []string{}
	if report.RMSDB < a.spec.RMSMinDB || report.RMSDB > a.spec.RMSMaxDB {
		issues = append(issues, fmt.Sprintf("RMS level %.1f dB is outside the required range of %.0f to %.0f dB",
			report.RMSDB, a.spec.RMSMinDB, a.spec.RMSMaxDB))
	}
	if report.TruePeakDB > a.spec.PeakMaxDB {
		issues = append(issues, fmt.Sprintf("True peak %.1f dB exceeds the %.0f dB ceiling",
			report.TruePeakDB, a.spec.PeakMaxDB))
	}
	if report.NoiseFloorDB > a.spec.NoiseFloorMaxDB {
		issues = append(issues, fmt.Sprintf("Noise floor %.1f dB is above the %.0f dB limit",
			report.NoiseFloorDB, a.spec.NoiseFloorMaxDB))
	}
	if report.ClippingDetected {
		issues = append(issues, "Clipping detected in rendered audio")
	}
	report.Issues = issues
	report.ACXPass = len(issues) == 0
}

func rmsDB(samples []float64) float64 {
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	mean := sum / float64(len(samples))
	if mean <= 0 {
		return silenceDB
	}
	return 10 * math.Log10(mean)
}

// PeakDB returns the absolute sample peak in dBFS. The render pipeline
// uses it to hold the normalization gain under the peak ceiling.
func PeakDB(samples []float64) float64 {
	var peak float64
	for _, s := range samples {
		if v := math.Abs(s); v > peak {
			peak = v
		}
	}
	if peak <= 0 {
		return silenceDB
	}
	return 20 * math.Log10(peak)
}

// IntegratedLUFS approximates BS.1770 integrated loudness: mean square per
// overlapping 400 ms block, absolute gating at -70 LUFS, fixed offset in
// place of the K-weighting filter.
func IntegratedLUFS(samples []float64, sampleRate int) float64 {
	block := sampleRate * lufsBlockMs / 1000
	hop := sampleRate * lufsHopMs / 1000
	if block <= 0 || hop <= 0 || len(samples) < block {
		// Too short for block gating; fall back to whole-stream power.
		ms := meanSquare(samples)
		if ms <= 0 {
			return silenceDB
		}
		return lufsOffset + 10*math.Log10(ms)
	}

	var gatedSum float64
	var gatedCount int
	for start := 0; start+block <= len(samples); start += hop {
		ms := meanSquare(samples[start : start+block])
		if ms <= 0 {
			continue
		}
		loudness := lufsOffset + 10*math.Log10(ms)
		if loudness >= lufsGate {
			gatedSum += ms
			gatedCount++
		}
	}
	if gatedCount == 0 {
		return silenceDB
	}
	return lufsOffset + 10*math.Log10(gatedSum/float64(gatedCount))
}

// noiseFloorDB estimates the noise floor as the 5th-percentile RMS over
// 100 ms windows, which lands in the pauses between words for narration.
func noiseFloorDB(samples []float64, sampleRate int) float64 {
	window := sampleRate * noiseWindowMs / 1000
	if window <= 0 || len(samples) < window {
		return rmsDB(samples)
	}

	var levels []float64
	for start := 0; start+window <= len(samples); start += window {
		levels = append(levels, meanSquare(samples[start:start+window]))
	}
	sort.Float64s(levels)
	ms := levels[len(levels)*5/100]
	if ms <= 0 {
		return silenceDB
	}
	return 10 * math.Log10(ms)
}

func detectClipping(samples []float64) bool {
	for _, s := range samples {
		if math.Abs(s) >= clipThreshold {
			return true
		}
	}
	return false
}

func meanSquare(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return sum / float64(len(samples))
}
