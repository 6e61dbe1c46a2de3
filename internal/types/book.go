package types

import "time"

// Book represents one scanned book and its embedded pipeline state.
type Book struct {
	ID        string    `json:"_docID,omitempty"`
	Title     string    `json:"title"`
	Author    string    `json:"author,omitempty"`
	PageCount int       `json:"page_count"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// Summary is written by the summarize pipeline step.
	Summary      string `json:"summary,omitempty"`
	SummaryModel string `json:"summary_model,omitempty"`

	// Edition is attached by the edition pipeline step.
	Edition *Edition `json:"edition,omitempty"`

	// Pipeline is the embedded pipeline state, nil until a pipeline starts.
	Pipeline *PipelineState `json:"pipeline,omitempty"`
}

// Edition is a published edition of a digitized book.
type Edition struct {
	Version   int       `json:"version"`
	License   string    `json:"license"`
	PageCount int       `json:"page_count"`
	CreatedAt time.Time `json:"created_at"`
}
