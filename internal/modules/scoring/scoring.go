// Package scoring turns raw usage telemetry into per-service activity
// scores in [0, 1]. Scores feed the recommendation engine twice: services
// scoring at or above RequiredThreshold form a user's required set, and a
// user whose every score sits below InactiveThreshold counts as inactive.
package scoring

import (
	"github.com/seatwise/seatwise/internal/domain"
	"github.com/seatwise/seatwise/internal/modules/directory"
)

const (
	// InactiveThreshold marks a user inactive when every score is below it.
	InactiveThreshold = 0.05
	// RequiredThreshold adds a service to the user's required set.
	RequiredThreshold = 0.1
)

// Scores maps each measurable service to an activity score in [0, 1].
// Services without telemetry are simply absent and read as zero.
type Scores map[domain.Service]float64

// Compute scores the most recent usage row. A nil row scores zero across
// the board.
func Compute(m *directory.UsageMetrics) Scores {
	scores := Scores{}
	if m == nil {
		return scores
	}

	scores[domain.ServiceExchange] = clamp(float64(m.EmailsSent+m.EmailsReceived) / 100)
	scores[domain.ServiceOneDrive] = clamp(float64(m.OneDriveFilesModified) / 50)
	scores[domain.ServiceSharePoint] = clamp(float64(m.SharePointEdits) / 50)
	scores[domain.ServiceTeams] = clamp(float64(m.TeamsMessages+10*m.TeamsMeetings) / 100)

	if m.HasDesktopActivation {
		scores[domain.ServiceOfficeDesktop] = 1.0
	} else {
		scores[domain.ServiceOfficeDesktop] = clamp(float64(m.OfficeWebEdits) / 30)
	}

	return scores
}

// Required returns the services whose score reaches RequiredThreshold, in
// the canonical service order.
func (s Scores) Required() []domain.Service {
	var required []domain.Service
	for _, service := range domain.AllServices {
		if s[service] >= RequiredThreshold {
			required = append(required, service)
		}
	}
	return required
}

// Peak returns the highest score, the user's overall activity level.
func (s Scores) Peak() float64 {
	peak := 0.0
	for _, score := range s {
		if score > peak {
			peak = score
		}
	}
	return peak
}

// IsInactive reports whether the user should be treated as not using their
// license at all. A disabled account is always inactive. A missing usage
// row is not evidence of inactivity: the reports may not cover the user
// yet, so only measured near-zero activity counts.
func IsInactive(accountEnabled bool, m *directory.UsageMetrics, scores Scores) bool {
	if !accountEnabled {
		return true
	}
	if m == nil {
		return false
	}
	for _, score := range scores {
		if score >= InactiveThreshold {
			return false
		}
	}
	return true
}

func clamp(raw float64) float64 {
	if raw > 1.0 {
		return 1.0
	}
	return raw
}
