package gutter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jackzampolin/folio/internal/provider"
)

// calibrationSchema constrains the vision model's answer: one integer split
// position on the 0-1000 scale.
var calibrationSchema = map[string]any{
	"type":                 "object",
	"required":             []any{"split_position"},
	"additionalProperties": false,
	"properties": map[string]any{
		"split_position": map[string]any{
			"type":    "integer",
			"minimum": 0,
			"maximum": 1000,
		},
	},
}

const calibrationPrompt = `This image is a scan of an open book showing two facing pages.
Find the gutter, the vertical seam between the two pages.
Respond with only a JSON object of the form {"split_position": N} where N is
the horizontal position of the gutter on a 0-1000 scale across the image
width. No other text.`

// Calibrator asks a vision model where the gutter sits on sample images and
// fits the linear model against those targets, so later pages are predicted
// without further model calls.
type Calibrator struct {
	provider provider.Provider
	model    string
	logger   *slog.Logger
}

// NewCalibrator creates a calibrator using the given chat provider and model.
func NewCalibrator(p provider.Provider, model string, logger *slog.Logger) *Calibrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calibrator{provider: p, model: model, logger: logger}
}

// Propose asks the vision model for a split position on one image. The
// answer is schema-validated before it is trusted.
func (c *Calibrator) Propose(ctx context.Context, img image.Image) (float64, error) {
	gray := downsample(img, analysisWidth)
	dataURL, err := encodePNGDataURL(gray)
	if err != nil {
		return 0, err
	}

	answer, err := c.provider.Chat(ctx, provider.ChatRequest{
		Model:        c.model,
		Prompt:       calibrationPrompt,
		ImageDataURL: dataURL,
		MaxTokens:    100,
	})
	if err != nil {
		return 0, fmt.Errorf("calibration call failed: %w", err)
	}

	return ParseProposal(answer)
}

// Calibrate proposes a split for each sample image, pairs it with extracted
// features, and fits a fresh model. Images whose proposal fails are skipped;
// fitting proceeds with whatever samples survive.
func (c *Calibrator) Calibrate(ctx context.Context, images []image.Image) (*Model, error) {
	samples := make([]Sample, 0, len(images))
	for i, img := range images {
		target, err := c.Propose(ctx, img)
		if err != nil {
			c.logger.Warn("calibration sample skipped", "index", i, "error", err)
			continue
		}

		bounds := img.Bounds()
		aspect := float64(bounds.Dx()) / float64(bounds.Dy())
		stats := columnStats(downsample(img, analysisWidth))

		samples = append(samples, Sample{
			Features: ExtractFeatures(stats, aspect),
			Target:   target,
		})
	}

	model := &Model{}
	if err := model.Fit(samples); err != nil {
		return nil, err
	}

	c.logger.Info("gutter model calibrated", "samples", len(samples))
	return model, nil
}

// ParseProposal extracts and validates a split position from the model's
// text answer. Tolerates surrounding prose and markdown fences.
func ParseProposal(answer string) (float64, error) {
	raw := extractJSON(answer)
	if raw == "" {
		return 0, fmt.Errorf("no JSON object in model answer")
	}

	if err := validateProposal([]byte(raw)); err != nil {
		return 0, err
	}

	var parsed struct {
		SplitPosition float64 `json:"split_position"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return 0, fmt.Errorf("malformed proposal: %w", err)
	}
	return parsed.SplitPosition, nil
}

// validateProposal checks the answer against the calibration schema.
func validateProposal(data []byte) error {
	b, err := json.Marshal(calibrationSchema)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("proposal.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("proposal.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("proposal is not valid JSON: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("proposal does not match schema: %w", err)
	}
	return nil
}

// encodePNGDataURL renders the raster as a PNG data URL for the vision call.
func encodePNGDataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode calibration image: %w", err)
	}
	return provider.DataURL(buf.Bytes()), nil
}

// extractJSON pulls the first {...} object out of a possibly chatty answer.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
