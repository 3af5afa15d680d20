package campaign

import (
	"context"
	"strings"

	"github.com/ekemper/leadgen/errors"
)

// PausedRef identifies one paused campaign in the status summary
type PausedRef struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	StatusMessage string `json:"status_message"`
}

// StatusSummary reports campaign counts per status and which paused
// campaigns were paused by which third-party dependency.
type StatusSummary struct {
	Counts             map[Status]int         `json:"counts"`
	PausedByDependency map[string][]PausedRef `json:"paused_by_dependency"`
}

// StatusSummary builds the summary. Paused campaigns are keyed by the
// dependency tag recorded at pause time; records without a tag fall back to
// substring-matching the pause message against the known dependency names,
// and land under "unknown" when nothing matches.
func (s *Store) StatusSummary(ctx context.Context, dependencies []string) (*StatusSummary, error) {
	counts, err := s.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	paused, err := s.ListByStatus(ctx, StatusPaused)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list paused campaigns")
	}

	byDependency := make(map[string][]PausedRef)
	for _, c := range paused {
		dep := c.PausedDependency
		if dep == "" {
			dep = matchDependencyName(c.StatusMessage, dependencies)
		}
		if dep == "" {
			dep = "unknown"
		}
		byDependency[dep] = append(byDependency[dep], PausedRef{
			ID:            c.ID,
			Name:          c.Name,
			StatusMessage: c.StatusMessage,
		})
	}

	return &StatusSummary{
		Counts:             counts,
		PausedByDependency: byDependency,
	}, nil
}

func matchDependencyName(message string, dependencies []string) string {
	lowered := strings.ToLower(message)
	for _, dep := range dependencies {
		if strings.Contains(lowered, strings.ToLower(dep)) {
			return dep
		}
	}
	return ""
}
