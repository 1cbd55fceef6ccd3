// Package notify defines the fire-and-forget lifecycle event sink. Consumers
// (a realtime push layer, the CLI's progress output) implement Notifier;
// emitters never block on or fail from a notification.
package notify

import "github.com/joescharf/cr/internal/models"

// Notifier receives review lifecycle events. Implementations must be cheap
// and must not return errors; events are best-effort by contract.
type Notifier interface {
	ReviewStarted(reviewID string)
	AgentStarted(reviewID string, role models.Role)
	AgentCompleted(reviewID string, role models.Role, issueCount int, parsedSuccessfully bool)
	ReviewCompleted(reviewID string)
	ReviewFailed(reviewID string, reason string)
}

// Nop discards all events.
type Nop struct{}

func (Nop) ReviewStarted(string)                          {}
func (Nop) AgentStarted(string, models.Role)              {}
func (Nop) AgentCompleted(string, models.Role, int, bool) {}
func (Nop) ReviewCompleted(string)                        {}
func (Nop) ReviewFailed(string, string)                   {}
