package server

import (
	"net/http"

	"github.com/ekemper/leadgen/campaign"
)

type campaignCreateRequest struct {
	Name string `json:"name"`
}

type campaignActionRequest struct {
	Message string `json:"message"`
}

// handleCampaignSummary returns campaign counts by status plus paused
// campaigns grouped by the dependency that paused them.
func (s *Server) handleCampaignSummary(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	summary, err := s.campaigns.StatusSummary(r.Context(), s.dependencies)
	if err != nil {
		handleError(w, err, "Failed to build campaign summary")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// handleCampaignAction routes /api/campaigns/ requests:
//
//	POST /api/campaigns/           create
//	GET  /api/campaigns/{id}       fetch
//	POST /api/campaigns/{id}/start validated start
//	POST /api/campaigns/{id}/resume manual resume
func (s *Server) handleCampaignAction(w http.ResponseWriter, r *http.Request) {
	parts := extractPathParts(r.URL.Path, "/api/campaigns/")

	if len(parts) == 1 && parts[0] == "" {
		if !requireMethod(w, r, http.MethodPost) {
			return
		}
		s.createCampaign(w, r)
		return
	}

	id := parts[0]
	if len(parts) == 1 {
		if !requireMethod(w, r, http.MethodGet) {
			return
		}
		s.getCampaign(w, r, id)
		return
	}

	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	switch parts[1] {
	case "start":
		s.startCampaign(w, r, id)
	case "resume":
		s.resumeCampaign(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "Unknown campaign action: "+parts[1])
	}
}

func (s *Server) createCampaign(w http.ResponseWriter, r *http.Request) {
	var req campaignCreateRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Campaign name is required")
		return
	}

	c := campaign.New(req.Name)
	if err := s.campaigns.Create(r.Context(), c); err != nil {
		handleError(w, err, "Failed to create campaign")
		return
	}

	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) getCampaign(w http.ResponseWriter, r *http.Request, id string) {
	c, err := s.campaigns.Get(r.Context(), id)
	if err != nil {
		handleError(w, err, "Failed to fetch campaign")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// startCampaign runs the dependency gates before allowing the transition.
// A campaign whose dependencies are unavailable stays in its current state.
func (s *Server) startCampaign(w http.ResponseWriter, r *http.Request, id string) {
	c, err := s.campaigns.Get(r.Context(), id)
	if err != nil {
		handleError(w, err, "Failed to fetch campaign")
		return
	}

	ok, reason := s.validator.CanStart(r.Context(), c)
	if !ok {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"started": false,
			"reason":  reason,
		})
		return
	}

	if !c.Start("Campaign started") {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"started": false,
			"reason":  "campaign is " + string(c.Status) + "; only created campaigns can start",
		})
		return
	}
	if err := s.campaigns.Update(r.Context(), c); err != nil {
		handleError(w, err, "Failed to start campaign")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"started":  true,
		"campaign": c,
	})
}

// resumeCampaign is the explicit operator action that moves a paused
// campaign back to running. Closing the breaker never does this.
func (s *Server) resumeCampaign(w http.ResponseWriter, r *http.Request, id string) {
	var req campaignActionRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if req.Message == "" {
		req.Message = "Campaign resumed by operator"
	}

	c, err := s.campaigns.Get(r.Context(), id)
	if err != nil {
		handleError(w, err, "Failed to fetch campaign")
		return
	}

	if !c.Resume(req.Message) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"resumed": false,
			"reason":  "campaign is " + string(c.Status) + "; only paused campaigns can resume",
		})
		return
	}
	if err := s.campaigns.Update(r.Context(), c); err != nil {
		handleError(w, err, "Failed to resume campaign")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"resumed":  true,
		"campaign": c,
	})
}
