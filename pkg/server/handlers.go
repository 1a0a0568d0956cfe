package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/regions"
	"github.com/imabhichow/duvet/pkg/verify"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	scopes, err := s.eng.Scopes()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "store unavailable")
		return
	}

	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   version,
		Scopes:    len(scopes),
		Uptime:    time.Since(s.startTime).String(),
	})
}

// handleLabelReferences serves GET /labels/{id}/references.
func (s *Server) handleLabelReferences(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/labels/")
	id, action, _ := strings.Cut(rest, "/")
	if action != "references" {
		s.respondError(w, http.StatusNotFound, "not found")
		return
	}
	label, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "label id must be an integer")
		return
	}

	regs, err := s.eng.References(regions.Label(label)).Collect()
	if err != nil {
		s.log.Error("reference query failed", logging.Label(uint32(label)), logging.Error(err))
		s.respondError(w, http.StatusInternalServerError, "reference query failed")
		return
	}

	s.respondJSON(w, http.StatusOK, ReferencesResponse{
		Label:   uint32(label),
		Count:   len(regs),
		Regions: regionResponses(regs),
	})
}

// handleFileRegions serves GET /files/{id}/regions?run=N.
func (s *Server) handleFileRegions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/files/")
	id, action, _ := strings.Cut(rest, "/")
	if action != "regions" {
		s.respondError(w, http.StatusNotFound, "not found")
		return
	}
	file, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file id must be an integer")
		return
	}

	var run uint64
	if q := r.URL.Query().Get("run"); q != "" {
		run, err = strconv.ParseUint(q, 10, 32)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "run must be an integer")
			return
		}
	}

	regs, err := s.eng.FileRegions(regions.FileID(file), regions.RunID(run))
	if err != nil {
		if errors.Is(err, regions.ErrScopeNotFinalized) {
			s.respondError(w, http.StatusConflict, "scope not finalized")
			return
		}
		s.log.Error("region query failed", logging.File(uint32(file)), logging.Error(err))
		s.respondError(w, http.StatusInternalServerError, "region query failed")
		return
	}

	resp := FileRegionsResponse{
		File:    uint32(file),
		Run:     uint32(run),
		Count:   len(regs),
		Regions: regionResponses(regs),
	}
	if path, err := s.cat.Files.Path(uint32(file)); err == nil {
		resp.Path = path
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleVerify serves POST /verify: run one rule and summarize.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Subject == "" {
		s.respondError(w, http.StatusBadRequest, "subject is required")
		return
	}
	expr, err := verify.Parse(req.Expr)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "bad expression: "+err.Error())
		return
	}

	summary := verify.NewSummary()
	rule := verify.Rule{Subject: req.Subject, Expr: expr}
	if err := verify.Check(s.cat, s.eng, rule, summary); err != nil {
		s.log.Error("verify failed", logging.String("subject", req.Subject), logging.Error(err))
		s.respondError(w, http.StatusInternalServerError, "verify failed")
		return
	}

	resp := VerifyResponse{
		Satisfied:      summary.Satisfied(),
		Subjects:       len(summary.Subjects),
		RegionsChecked: summary.RegionsChecked,
		RegionsFailed:  summary.RegionsFailed,
	}
	for _, ok := range summary.Subjects {
		if !ok {
			resp.Failed++
		}
	}
	if len(summary.Failures) > 0 {
		resp.Failures = make(map[uint32][]RegionResponse, len(summary.Failures))
		for label, regs := range summary.Failures {
			resp.Failures[uint32(label)] = regionResponses(regs)
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// Helper methods

func regionResponses(regs []regions.Region) []RegionResponse {
	out := make([]RegionResponse, 0, len(regs))
	for _, r := range regs {
		labels := make([]uint32, len(r.Labels))
		for i, l := range r.Labels {
			labels[i] = uint32(l)
		}
		out = append(out, RegionResponse{
			File:   uint32(r.Scope.File),
			Run:    uint32(r.Scope.Run),
			Start:  r.Span.Start,
			End:    r.Span.End,
			Labels: labels,
		})
	}
	return out
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}
