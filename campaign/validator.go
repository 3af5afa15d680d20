package campaign

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Gate reports whether requests to a third-party dependency are currently
// permitted. The global circuit breaker satisfies this interface; with a
// global breaker every dependency shares one gate, but the per-dependency
// shape is kept so finer-grained breakers can slot in without rework.
type Gate interface {
	ShouldAllowRequest(ctx context.Context) bool
}

// StartValidator gates the CREATED -> RUNNING transition on third-party
// availability. Purely advisory: it never mutates campaign or breaker state.
type StartValidator struct {
	gates map[string]Gate // dependency name -> availability gate
}

// NewStartValidator creates a validator over the given dependency gates
func NewStartValidator(gates map[string]Gate) *StartValidator {
	return &StartValidator{gates: gates}
}

// CanStart reports whether the campaign may start, with a human-readable
// reason when it may not. The campaign must be CREATED and every required
// dependency must currently be permitted.
func (v *StartValidator) CanStart(ctx context.Context, c *Campaign) (bool, string) {
	if c.Status != StatusCreated {
		return false, fmt.Sprintf("campaign is %s; only created campaigns can start", c.Status)
	}

	var unavailable []string
	for name, gate := range v.gates {
		if !gate.ShouldAllowRequest(ctx) {
			unavailable = append(unavailable, name+" unavailable")
		}
	}
	if len(unavailable) > 0 {
		sort.Strings(unavailable)
		return false, strings.Join(unavailable, ", ")
	}

	return true, ""
}
