package qc

import (
	"math"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/siwaht/bookx/pkg/models"
)

func testAnalyzer() *Analyzer {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return NewAnalyzer(DefaultSpec(), logger)
}

func TestEvaluateRMSBoundaries(t *testing.T) {
	a := testAnalyzer()

	tests := []struct {
		name     string
		rmsDB    float64
		wantPass bool
	}{
		{name: "lower bound exactly -23 passes", rmsDB: -23.0, wantPass: true},
		{name: "upper bound exactly -18 passes", rmsDB: -18.0, wantPass: true},
		{name: "just below lower bound fails", rmsDB: -23.1, wantPass: false},
		{name: "just above upper bound fails", rmsDB: -17.9, wantPass: false},
		{name: "just inside upper bound passes", rmsDB: -18.1, wantPass: true},
		{name: "mid range passes", rmsDB: -20.5, wantPass: true},
		{name: "far too loud fails", rmsDB: -10.0, wantPass: false},
		{name: "far too quiet fails", rmsDB: -40.0, wantPass: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := models.ChapterQCReport{
				RMSDB:        tt.rmsDB,
				TruePeakDB:   -6,
				NoiseFloorDB: -70,
			}
			a.Evaluate(&report)
			if report.ACXPass != tt.wantPass {
				t.Errorf("rms %.1f dB: acx_pass = %v, want %v (issues: %v)",
					tt.rmsDB, report.ACXPass, tt.wantPass, report.Issues)
			}
		})
	}
}

func TestEvaluatePeakAndNoiseFloor(t *testing.T) {
	a := testAnalyzer()

	tests := []struct {
		name         string
		peakDB       float64
		noiseFloorDB float64
		clipping     bool
		wantPass     bool
		wantIssues   int
	}{
		{name: "all within spec", peakDB: -3, noiseFloorDB: -60, wantPass: true},
		{name: "peak over ceiling", peakDB: -2.5, noiseFloorDB: -70, wantPass: false, wantIssues: 1},
		{name: "noise floor too high", peakDB: -6, noiseFloorDB: -50, wantPass: false, wantIssues: 1},
		{name: "clipping flagged", peakDB: -6, noiseFloorDB: -70, clipping: true, wantPass: false, wantIssues: 1},
		{name: "everything wrong", peakDB: 0, noiseFloorDB: -30, clipping: true, wantPass: false, wantIssues: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := models.ChapterQCReport{
				RMSDB:            -20,
				TruePeakDB:       tt.peakDB,
				NoiseFloorDB:     tt.noiseFloorDB,
				ClippingDetected: tt.clipping,
			}
			a.Evaluate(&report)
			if report.ACXPass != tt.wantPass {
				t.Errorf("acx_pass = %v, want %v", report.ACXPass, tt.wantPass)
			}
			if len(report.Issues) != tt.wantIssues {
				t.Errorf("issues = %v, want %d entries", report.Issues, tt.wantIssues)
			}
		})
	}
}

// sine generates a test tone at the given linear amplitude.
func sine(amplitude float64, seconds float64, sampleRate int) []float64 {
	n := int(seconds * float64(sampleRate))
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = amplitude * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate))
	}
	return samples
}

func TestAnalyzeSamplesSine(t *testing.T) {
	a := testAnalyzer()
	const sampleRate = 44100

	// A full-scale sine has RMS of -3.01 dB; at amplitude 0.1 that is
	// about -23 dB.
	samples := sine(0.1, 2.0, sampleRate)
	report := a.AnalyzeSamples(samples, sampleRate)

	if got, want := report.DurationSeconds, 2.0; math.Abs(got-want) > 0.01 {
		t.Errorf("duration = %.3f s, want %.3f", got, want)
	}

	wantRMS := 20*math.Log10(0.1) - 3.0103
	if math.Abs(report.RMSDB-wantRMS) > 0.1 {
		t.Errorf("rms = %.2f dB, want %.2f", report.RMSDB, wantRMS)
	}

	wantPeak := 20 * math.Log10(0.1)
	if math.Abs(report.TruePeakDB-wantPeak) > 0.1 {
		t.Errorf("peak = %.2f dB, want %.2f", report.TruePeakDB, wantPeak)
	}

	if report.ClippingDetected {
		t.Error("clipping flagged for a -20 dBFS tone")
	}
}

func TestAnalyzeSamplesClipping(t *testing.T) {
	a := testAnalyzer()
	samples := sine(1.0, 0.5, 44100)
	report := a.AnalyzeSamples(samples, 44100)

	if !report.ClippingDetected {
		t.Error("expected clipping to be detected for a full-scale tone")
	}
	if report.ACXPass {
		t.Error("full-scale tone should not pass")
	}
}

func TestAnalyzeSamplesEmpty(t *testing.T) {
	a := testAnalyzer()
	report := a.AnalyzeSamples(nil, 44100)

	if report.ACXPass {
		t.Error("empty stream should fail")
	}
	if len(report.Issues) == 0 {
		t.Error("empty stream should carry an explicit issue")
	}
	if report.RMSDB != 0 || report.DurationSeconds != 0 {
		t.Error("empty stream should produce a zeroed report")
	}
}

func TestAnalyzeFileUnreadable(t *testing.T) {
	a := testAnalyzer()
	report := a.AnalyzeFile("/nonexistent/chapter.wav")

	if report.ACXPass {
		t.Error("unreadable file should fail")
	}
	if len(report.Issues) == 0 {
		t.Error("unreadable file should carry an explicit issue")
	}
}

func TestNoiseFloorQuietTail(t *testing.T) {
	const sampleRate = 44100
	// Loud speech-like body with a quiet tail; the 5th-percentile window
	// estimate should land near the tail level, far below the body RMS.
	body := sine(0.3, 1.8, sampleRate)
	tail := sine(0.0005, 0.2, sampleRate)
	samples := append(body, tail...)

	floor := noiseFloorDB(samples, sampleRate)
	if floor > -55 {
		t.Errorf("noise floor = %.1f dB, want below -55", floor)
	}
}
