package web

import "github.com/namikmesic/promptopt/internal/session"

//go:generate templ generate

// Region ids double as SSE event names: a frame for "guidelines" replaces
// the inner HTML of the element with id "guidelines".
const (
	regionStatus     = "status"
	regionControls   = "controls"
	regionResult     = "result"
	regionGuidelines = "guidelines"
)

func busyFlag(s session.Snapshot) string {
	if s.IsOptimizing {
		return "true"
	}
	return "false"
}

func hasResult(s session.Snapshot) bool {
	return s.Result != nil && *s.Result != ""
}
