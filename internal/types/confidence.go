package types

// ConfidenceLevel indicates the confidence of a gutter detection.
type ConfidenceLevel string

const (
	// ConfidenceHigh indicates high confidence in the detection.
	ConfidenceHigh ConfidenceLevel = "high"
	// ConfidenceMedium indicates medium confidence in the detection.
	ConfidenceMedium ConfidenceLevel = "medium"
	// ConfidenceLow indicates low confidence in the detection.
	ConfidenceLow ConfidenceLevel = "low"
)

// ParseConfidenceLevel converts a string to a ConfidenceLevel.
// Returns ConfidenceLow if the string is not recognized.
func ParseConfidenceLevel(s string) ConfidenceLevel {
	switch s {
	case "high":
		return ConfidenceHigh
	case "medium":
		return ConfidenceMedium
	case "low":
		return ConfidenceLow
	default:
		return ConfidenceLow
	}
}
