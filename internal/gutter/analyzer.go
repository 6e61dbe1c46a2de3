// Package gutter locates the vertical seam between facing pages in a
// two-page spread scan. A column-brightness heuristic scores candidate
// columns in the center band of the image; a small fitted linear model on
// top of the same features gives cheap predictions once calibrated against
// a vision model.
package gutter

import (
	"image"
	"math"
	"sort"

	"golang.org/x/image/draw"

	"github.com/jackzampolin/folio/internal/types"
)

const (
	// analysisWidth is the raster width images are downsampled to before
	// column statistics are computed.
	analysisWidth = 400

	// darkThreshold separates "dark" pixels from the rest, on the 0-255
	// grayscale.
	darkThreshold = 100

	// Candidate columns are searched only in the center band.
	searchBandLow  = 0.35
	searchBandHigh = 0.65

	// textWindow is the half-width of the column window inspected for
	// text-likeness around the candidate.
	textWindow = 3
)

// ColumnStats holds the brightness statistics of one pixel column.
type ColumnStats struct {
	Mean        float64
	Min         float64
	P10         float64 // 10th percentile brightness
	MaxDarkRun  float64 // longest dark run as percent of column height
	Transitions int     // dark/light boundary count
	DarkStdDev  float64 // standard deviation of the darkest quartile
}

// Analysis is the result of locating a gutter candidate.
type Analysis struct {
	// SplitX is the candidate column in downsampled coordinates.
	SplitX int `json:"split_x"`

	// SplitRatio is SplitX over the analysis width, 0..1.
	SplitRatio float64 `json:"split_ratio"`

	Score       float64               `json:"score"`
	HasText     bool                  `json:"has_text"`
	AspectRatio float64               `json:"aspect_ratio"`
	Confidence  types.ConfidenceLevel `json:"confidence"`
}

// Analyze downsamples the image, scores the center-band columns, and returns
// the best gutter candidate with a confidence grade.
func Analyze(img image.Image) *Analysis {
	bounds := img.Bounds()
	aspect := float64(bounds.Dx()) / float64(bounds.Dy())

	gray := downsample(img, analysisWidth)
	stats := columnStats(gray)
	return analyzeStats(stats, aspect)
}

// analyzeStats runs the scoring on precomputed column statistics. Split out
// so synthetic rasters can drive the heuristic directly.
func analyzeStats(stats []ColumnStats, aspect float64) *Analysis {
	w := len(stats)
	lo := int(searchBandLow * float64(w))
	hi := int(searchBandHigh * float64(w))

	best, bestScore := lo, math.Inf(-1)
	for x := lo; x < hi; x++ {
		if s := score(stats[x]); s > bestScore {
			bestScore = s
			best = x
		}
	}

	hasText := textLikeness(stats, best)

	a := &Analysis{
		SplitX:      best,
		SplitRatio:  float64(best) / float64(w),
		Score:       bestScore,
		HasText:     hasText,
		AspectRatio: aspect,
	}
	a.Confidence = grade(aspect, bestScore, hasText)
	return a
}

// score combines the column statistics into a single gutter likelihood.
// Dark, consistent, low-noise columns score high.
func score(s ColumnStats) float64 {
	p10Score := (255 - s.P10) / 2.55
	darkRunScore := s.MaxDarkRun
	transitionScore := math.Max(0, 100-float64(s.Transitions)/5)
	consistencyScore := math.Max(0, 50-s.DarkStdDev)

	return 0.30*p10Score + 0.35*darkRunScore + 0.20*transitionScore + 0.15*consistencyScore
}

// textLikeness checks whether the candidate column sits inside printed text
// rather than a gutter shadow. Two of the three signals must agree.
func textLikeness(stats []ColumnStats, x int) bool {
	lo := x - textWindow
	if lo < 0 {
		lo = 0
	}
	hi := x + textWindow
	if hi >= len(stats) {
		hi = len(stats) - 1
	}

	var avgTransitions, avgDarkRun, avgDarkStdDev float64
	n := float64(hi - lo + 1)
	for i := lo; i <= hi; i++ {
		avgTransitions += float64(stats[i].Transitions)
		avgDarkRun += stats[i].MaxDarkRun
		avgDarkStdDev += stats[i].DarkStdDev
	}
	avgTransitions /= n
	avgDarkRun /= n
	avgDarkStdDev /= n

	c := stats[x]
	signals := 0
	if c.Transitions > 30 && avgTransitions > 40 {
		signals++
	}
	if c.MaxDarkRun < 40 && avgDarkRun < 50 {
		signals++
	}
	if avgDarkStdDev > 30 {
		signals++
	}
	return signals >= 2
}

// grade assigns the confidence level. A spread scan is wider than tall, so
// an aspect ratio at or below 1.0 can never be a high-confidence split.
func grade(aspect, score float64, hasText bool) types.ConfidenceLevel {
	if aspect <= 1.0 || score < 30 || hasText {
		return types.ConfidenceLow
	}
	if aspect > 1.1 && score > 50 && !hasText {
		return types.ConfidenceHigh
	}
	return types.ConfidenceMedium
}

// downsample scales the image to the analysis width and converts to gray.
func downsample(img image.Image, width int) *image.Gray {
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return image.NewGray(image.Rect(0, 0, 1, 1))
	}

	height := bounds.Dy() * width / bounds.Dx()
	if height < 1 {
		height = 1
	}

	gray := image.NewGray(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, bounds, draw.Src, nil)
	return gray
}

// columnStats computes the per-column brightness statistics of a grayscale
// raster.
func columnStats(gray *image.Gray) []ColumnStats {
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	stats := make([]ColumnStats, w)

	column := make([]float64, h)
	for x := 0; x < w; x++ {
		var sum float64
		min := 255.0
		darkRun, maxDarkRun := 0, 0
		transitions := 0
		prevDark := false

		for y := 0; y < h; y++ {
			v := float64(gray.GrayAt(bounds.Min.X+x, bounds.Min.Y+y).Y)
			column[y] = v
			sum += v
			if v < min {
				min = v
			}

			dark := v < darkThreshold
			if dark {
				darkRun++
				if darkRun > maxDarkRun {
					maxDarkRun = darkRun
				}
			} else {
				darkRun = 0
			}
			if y > 0 && dark != prevDark {
				transitions++
			}
			prevDark = dark
		}

		sorted := append([]float64(nil), column...)
		sort.Float64s(sorted)

		p10 := sorted[h/10]
		quartile := sorted[:max(1, h/4)]

		stats[x] = ColumnStats{
			Mean:        sum / float64(h),
			Min:         min,
			P10:         p10,
			MaxDarkRun:  100 * float64(maxDarkRun) / float64(h),
			Transitions: transitions,
			DarkStdDev:  stdDev(quartile),
		}
	}
	return stats
}

func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}
