package server

import (
	"net/http"
)

type jobsPauseRequest struct {
	Reason string `json:"reason"`
}

// handleJobsPause pauses every pending or processing job.
func (s *Server) handleJobsPause(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req jobsPauseRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if req.Reason == "" {
		req.Reason = "paused by operator"
	}

	paused, err := s.orchestrator.PauseAllActiveJobs(r.Context(), req.Reason)
	if err != nil {
		handleError(w, err, "Failed to pause jobs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs_paused": paused,
	})
}

// handleJobsResume resumes every paused job, submitting a fresh task for each.
func (s *Server) handleJobsResume(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	resumed, err := s.orchestrator.ResumeAllPausedJobs(r.Context())
	if err != nil {
		handleError(w, err, "Failed to resume jobs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs_resumed": resumed,
	})
}

// handleJobsSummary reports job counts per status.
func (s *Server) handleJobsSummary(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	counts, err := s.jobs.CountByStatus(r.Context())
	if err != nil {
		handleError(w, err, "Failed to count jobs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"counts": counts,
	})
}
