package gutter

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/jackzampolin/folio/internal/types"
)

// spreadImage draws a synthetic two-page spread: light paper with a dark
// vertical gutter band at the given fractional position.
func spreadImage(w, h int, gutterAt float64) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	gx := int(gutterAt * float64(w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(230)
			if x >= gx-2 && x <= gx+2 {
				v = 20
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestAnalyzeFindsCenteredGutter(t *testing.T) {
	img := spreadImage(800, 500, 0.5)

	a := Analyze(img)
	if math.Abs(a.SplitRatio-0.5) > 0.03 {
		t.Errorf("split ratio = %.3f, want ~0.5", a.SplitRatio)
	}
	if a.Confidence != types.ConfidenceHigh {
		t.Errorf("confidence = %s, want high (score=%.1f hasText=%v aspect=%.2f)",
			a.Confidence, a.Score, a.HasText, a.AspectRatio)
	}
}

func TestAnalyzeFindsOffCenterGutter(t *testing.T) {
	img := spreadImage(800, 500, 0.42)

	a := Analyze(img)
	if math.Abs(a.SplitRatio-0.42) > 0.03 {
		t.Errorf("split ratio = %.3f, want ~0.42", a.SplitRatio)
	}
}

// A portrait scan is a single page; its aspect ratio alone must keep
// confidence below high no matter how gutter-like a column looks.
func TestSquareOrPortraitNeverHighConfidence(t *testing.T) {
	shapes := []struct {
		w, h int
	}{
		{500, 500},  // square
		{400, 600},  // portrait
		{500, 1000}, // tall portrait
	}
	for _, s := range shapes {
		img := spreadImage(s.w, s.h, 0.5)
		a := Analyze(img)
		if a.Confidence == types.ConfidenceHigh {
			t.Errorf("%dx%d: confidence = high, want below high", s.w, s.h)
		}
	}
}

func TestGradeBoundaries(t *testing.T) {
	tests := []struct {
		name    string
		aspect  float64
		score   float64
		hasText bool
		want    types.ConfidenceLevel
	}{
		{"strong landscape", 1.5, 80, false, types.ConfidenceHigh},
		{"aspect exactly 1.0", 1.0, 80, false, types.ConfidenceLow},
		{"low score", 1.5, 20, false, types.ConfidenceLow},
		{"text at candidate", 1.5, 80, true, types.ConfidenceLow},
		{"narrow landscape", 1.05, 80, false, types.ConfidenceMedium},
		{"middling score", 1.5, 40, false, types.ConfidenceMedium},
	}
	for _, tt := range tests {
		if got := grade(tt.aspect, tt.score, tt.hasText); got != tt.want {
			t.Errorf("%s: grade = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestScoreRewardsDarkConsistentColumns(t *testing.T) {
	gutterCol := ColumnStats{P10: 10, MaxDarkRun: 95, Transitions: 2, DarkStdDev: 5}
	textCol := ColumnStats{P10: 60, MaxDarkRun: 12, Transitions: 80, DarkStdDev: 45}

	if score(gutterCol) <= score(textCol) {
		t.Errorf("gutter column scored %.1f, text column %.1f", score(gutterCol), score(textCol))
	}
}

func TestModelFitAndClamp(t *testing.T) {
	// Targets depend linearly on the darkest column position.
	samples := make([]Sample, 0, 20)
	for i := 0; i < 20; i++ {
		pos := float64(i) / 19
		samples = append(samples, Sample{
			Features: Features{DarkestIndex: pos, AspectRatio: 1.5, EdgeCenterDelta: 0.5},
			Target:   400 + 200*pos,
		})
	}

	model := &Model{}
	if err := model.Fit(samples); err != nil {
		t.Fatalf("Fit error = %v", err)
	}
	if !model.Trained {
		t.Error("model not marked trained")
	}

	// Predictions stay inside the clamp band even for extreme features.
	extreme := Features{DarkestIndex: 50, AspectRatio: 10}
	if p := model.Predict(extreme); p < clampLow || p > clampHigh {
		t.Errorf("prediction %.1f escaped clamp band", p)
	}
	negative := Features{DarkestIndex: -50, AspectRatio: 0}
	if p := model.Predict(negative); p < clampLow || p > clampHigh {
		t.Errorf("prediction %.1f escaped clamp band", p)
	}

	// The fitted model should rank a left-leaning spread below a
	// right-leaning one.
	left := model.Predict(Features{DarkestIndex: 0.1, AspectRatio: 1.5, EdgeCenterDelta: 0.5})
	right := model.Predict(Features{DarkestIndex: 0.9, AspectRatio: 1.5, EdgeCenterDelta: 0.5})
	if left >= right {
		t.Errorf("left=%.1f right=%.1f, want left < right", left, right)
	}
}

func TestModelFitEmpty(t *testing.T) {
	model := &Model{}
	if err := model.Fit(nil); err != ErrNoSamples {
		t.Errorf("err = %v, want ErrNoSamples", err)
	}
}

func TestExtractFeatures(t *testing.T) {
	img := spreadImage(800, 500, 0.5)
	stats := columnStats(downsample(img, analysisWidth))

	f := ExtractFeatures(stats, 1.6)
	// The gutter is in the middle of the band, so the darkest index sits
	// near 0.5 and the center is darker than the edges.
	if math.Abs(f.DarkestIndex-0.5) > 0.1 {
		t.Errorf("darkest index = %.2f, want ~0.5", f.DarkestIndex)
	}
	if f.EdgeCenterDelta <= 0 {
		t.Errorf("edge-center delta = %.3f, want positive", f.EdgeCenterDelta)
	}
	if f.Inverted != 0 {
		t.Error("dark gutter should not be flagged inverted")
	}
	if f.AspectRatio != 1.6 {
		t.Errorf("aspect = %.2f", f.AspectRatio)
	}
}

func TestParseProposal(t *testing.T) {
	pos, err := ParseProposal(`{"split_position": 512}`)
	if err != nil {
		t.Fatalf("ParseProposal error = %v", err)
	}
	if pos != 512 {
		t.Errorf("pos = %.0f, want 512", pos)
	}

	// Markdown fences and prose around the object are tolerated.
	pos, err = ParseProposal("The gutter is here:\n```json\n{\"split_position\": 488}\n```")
	if err != nil {
		t.Fatalf("fenced answer error = %v", err)
	}
	if pos != 488 {
		t.Errorf("pos = %.0f, want 488", pos)
	}

	// Out-of-range and malformed answers are rejected by the schema.
	if _, err := ParseProposal(`{"split_position": 1500}`); err == nil {
		t.Error("out-of-range proposal accepted")
	}
	if _, err := ParseProposal(`{"split_position": "middle"}`); err == nil {
		t.Error("non-integer proposal accepted")
	}
	if _, err := ParseProposal(`no json at all`); err == nil {
		t.Error("answer without JSON accepted")
	}
	if _, err := ParseProposal(`{"other": 1}`); err == nil {
		t.Error("proposal missing split_position accepted")
	}
}
