package server

import (
	"net/http"

	"github.com/ekemper/leadgen/breaker"
)

type breakerMutationRequest struct {
	Reason string `json:"reason"`
}

// handleBreakerStatus returns the current breaker record without mutating it.
func (s *Server) handleBreakerStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	rec, err := s.breaker.Snapshot(r.Context())
	if err != nil {
		handleError(w, err, "Failed to read breaker state")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// handleBreakerOpen records a failure, opening the breaker if it is closed.
func (s *Server) handleBreakerOpen(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req breakerMutationRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if req.Reason == "" {
		req.Reason = "manually opened"
	}

	outcome, err := s.breaker.RecordFailure(r.Context(), req.Reason, "manual")
	if err != nil {
		handleError(w, err, "Failed to open breaker")
		return
	}

	writeJSON(w, http.StatusOK, breakerMutationResponse(breaker.StateOpen, outcome))
}

// handleBreakerClose manually closes the breaker. This is the only way an
// open breaker closes.
func (s *Server) handleBreakerClose(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var req breakerMutationRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	outcome, err := s.breaker.ManuallyClose(r.Context(), req.Reason)
	if err != nil {
		handleError(w, err, "Failed to close breaker")
		return
	}

	writeJSON(w, http.StatusOK, breakerMutationResponse(breaker.StateClosed, outcome))
}

func breakerMutationResponse(state breaker.State, outcome *breaker.Outcome) map[string]interface{} {
	resp := map[string]interface{}{
		"state":   state,
		"outcome": outcome,
	}
	if !outcome.Transitioned {
		resp["message"] = "breaker already " + string(state)
	}
	return resp
}
