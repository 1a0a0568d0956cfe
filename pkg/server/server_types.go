package server

import "time"

// HealthResponse reports liveness and store state.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Scopes    int       `json:"finalized_scopes"`
	Uptime    string    `json:"uptime"`
}

// RegionResponse is one consolidated region.
type RegionResponse struct {
	File   uint32   `json:"file"`
	Run    uint32   `json:"run,omitempty"`
	Start  uint32   `json:"start"`
	End    uint32   `json:"end"`
	Labels []uint32 `json:"labels"`
}

// ReferencesResponse answers /labels/{id}/references.
type ReferencesResponse struct {
	Label   uint32           `json:"label"`
	Count   int              `json:"count"`
	Regions []RegionResponse `json:"regions"`
}

// FileRegionsResponse answers /files/{id}/regions.
type FileRegionsResponse struct {
	File    uint32           `json:"file"`
	Run     uint32           `json:"run"`
	Path    string           `json:"path,omitempty"`
	Count   int              `json:"count"`
	Regions []RegionResponse `json:"regions"`
}

// VerifyRequest is the /verify body: a subject type and the expression
// its regions must satisfy.
type VerifyRequest struct {
	Subject string `json:"subject"`
	Expr    string `json:"expr"`
}

// VerifyResponse summarizes a rule check.
type VerifyResponse struct {
	Satisfied      bool                        `json:"satisfied"`
	Subjects       int                         `json:"subjects"`
	Failed         int                         `json:"failed_subjects"`
	RegionsChecked int                         `json:"regions_checked"`
	RegionsFailed  int                         `json:"regions_failed"`
	Failures       map[uint32][]RegionResponse `json:"failures,omitempty"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
