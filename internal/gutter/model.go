package gutter

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// ErrNoSamples is returned when fitting with an empty sample set.
var ErrNoSamples = errors.New("no calibration samples")

// Predictions and calibration targets live on a 0-1000 scale across the
// image width; predictions are clamped to the central band where a gutter
// can plausibly sit.
const (
	scaleMax   = 1000.0
	clampLow   = 400.0
	clampHigh  = 600.0
	fitEpochs  = 300
	learnRate  = 0.01
	numFeature = 5
)

// Features are the per-image inputs to the linear model, extracted from the
// same column statistics the heuristic uses.
type Features struct {
	// DarkestIndex is the position of the darkest center-band column,
	// normalized 0..1 across the band.
	DarkestIndex float64

	// BrightestIndex is the position of the brightest center-band column,
	// normalized 0..1 across the band.
	BrightestIndex float64

	// EdgeCenterDelta is mean edge brightness minus mean center brightness,
	// normalized to 0..1. Positive means the center is darker than the
	// edges, the usual gutter shadow.
	EdgeCenterDelta float64

	// Inverted is 1 when the center is brighter than the edges (a white
	// gutter on a dark scan bed), 0 otherwise.
	Inverted float64

	// AspectRatio is width over height.
	AspectRatio float64
}

func (f Features) vector() [numFeature]float64 {
	return [numFeature]float64{
		f.DarkestIndex,
		f.BrightestIndex,
		f.EdgeCenterDelta,
		f.Inverted,
		f.AspectRatio,
	}
}

// Sample pairs extracted features with a calibration target on the 0-1000
// scale.
type Sample struct {
	Features Features
	Target   float64
}

// Model is a small linear predictor of gutter position. Cheap to evaluate,
// so every page can be scored without another vision model call.
type Model struct {
	Weights [numFeature]float64 `json:"weights"`
	Bias    float64             `json:"bias"`
	Trained bool                `json:"trained"`
}

// Fit trains the model with batch gradient descent. Targets are normalized
// to 0..1 internally so the learning rate behaves across the 0-1000 scale.
func (m *Model) Fit(samples []Sample) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}

	n := float64(len(samples))
	for epoch := 0; epoch < fitEpochs; epoch++ {
		var gradW [numFeature]float64
		var gradB float64

		for _, s := range samples {
			pred := m.raw(s.Features)
			err := pred - s.Target/scaleMax
			v := s.Features.vector()
			for i := range gradW {
				gradW[i] += err * v[i]
			}
			gradB += err
		}

		for i := range m.Weights {
			m.Weights[i] -= learnRate * gradW[i] / n
		}
		m.Bias -= learnRate * gradB / n
	}

	m.Trained = true
	return nil
}

// Predict returns the estimated gutter position on the 0-1000 scale, clamped
// to the central 40-60% band.
func (m *Model) Predict(f Features) float64 {
	return clamp(m.raw(f)*scaleMax, clampLow, clampHigh)
}

// PredictRatio returns the estimate as a 0..1 fraction of image width.
func (m *Model) PredictRatio(f Features) float64 {
	return m.Predict(f) / scaleMax
}

func (m *Model) raw(f Features) float64 {
	v := f.vector()
	sum := m.Bias
	for i, w := range m.Weights {
		sum += w * v[i]
	}
	return sum
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

// SaveModel writes a fitted model to path as JSON.
func SaveModel(path string, m *Model) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal gutter model: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write gutter model: %w", err)
	}
	return nil
}

// LoadModel reads a fitted model from path. A missing file or an untrained
// model returns nil without error; the caller falls back to the heuristic.
func LoadModel(path string) (*Model, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var m Model
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("malformed gutter model: %w", err)
	}
	if !m.Trained {
		return nil, nil
	}
	return &m, nil
}

// ExtractFeatures derives the model inputs from column statistics.
func ExtractFeatures(stats []ColumnStats, aspect float64) Features {
	w := len(stats)
	lo := int(searchBandLow * float64(w))
	hi := int(searchBandHigh * float64(w))
	if hi <= lo {
		return Features{AspectRatio: aspect}
	}

	darkest, brightest := lo, lo
	for x := lo; x < hi; x++ {
		if stats[x].Mean < stats[darkest].Mean {
			darkest = x
		}
		if stats[x].Mean > stats[brightest].Mean {
			brightest = x
		}
	}

	var edgeSum, edgeN, centerSum, centerN float64
	for x := 0; x < w; x++ {
		if x < lo || x >= hi {
			edgeSum += stats[x].Mean
			edgeN++
		} else {
			centerSum += stats[x].Mean
			centerN++
		}
	}
	edgeMean := edgeSum / math.Max(1, edgeN)
	centerMean := centerSum / math.Max(1, centerN)

	inverted := 0.0
	if centerMean > edgeMean {
		inverted = 1.0
	}

	band := float64(hi - lo)
	return Features{
		DarkestIndex:    float64(darkest-lo) / band,
		BrightestIndex:  float64(brightest-lo) / band,
		EdgeCenterDelta: (edgeMean - centerMean) / 255,
		Inverted:        inverted,
		AspectRatio:     aspect,
	}
}
