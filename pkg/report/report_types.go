package report

import "time"

// Report is the full rendering model: every finalized scope with its
// consolidated partition, labels decorated with their catalog
// attributes.
type Report struct {
	Project     string       `json:"project"`
	GeneratedAt time.Time    `json:"generated_at"`
	Files       []FileReport `json:"files"`
}

// FileReport is one finalized scope.
type FileReport struct {
	ID      uint32         `json:"id"`
	Path    string         `json:"path"`
	Run     uint32         `json:"run,omitempty"`
	Regions []RegionReport `json:"regions"`
}

// RegionReport is one maximal constant-label-set sub-range.
type RegionReport struct {
	Start  uint32        `json:"start"`
	End    uint32        `json:"end"`
	Labels []LabelReport `json:"labels"`
}

// LabelReport decorates a label with its attributes.
type LabelReport struct {
	ID    uint32            `json:"id"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// Totals summarizes a report for the text renderer.
type Totals struct {
	Files        int
	Regions      int
	CoveredBytes uint64
	Labels       int
}
