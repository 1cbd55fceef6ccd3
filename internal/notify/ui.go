package notify

import (
	"github.com/joescharf/cr/internal/models"
	"github.com/joescharf/cr/internal/output"
)

// UINotifier prints lifecycle events through the CLI output layer.
type UINotifier struct {
	ui *output.UI
}

// NewUINotifier creates a notifier backed by the given UI.
func NewUINotifier(ui *output.UI) *UINotifier {
	return &UINotifier{ui: ui}
}

func (n *UINotifier) ReviewStarted(reviewID string) {
	n.ui.Info("review %s started", output.Cyan(reviewID))
}

func (n *UINotifier) AgentStarted(reviewID string, role models.Role) {
	n.ui.VerboseLog("agent %s running for review %s", role, reviewID)
}

func (n *UINotifier) AgentCompleted(reviewID string, role models.Role, issueCount int, parsedSuccessfully bool) {
	if !parsedSuccessfully {
		n.ui.Warning("agent %s finished without usable output", role)
		return
	}
	n.ui.Success("agent %s found %d issue(s)", role, issueCount)
}

func (n *UINotifier) ReviewCompleted(reviewID string) {
	n.ui.Success("review %s completed", output.Cyan(reviewID))
}

func (n *UINotifier) ReviewFailed(reviewID string, reason string) {
	n.ui.Error("review %s failed: %s", output.Cyan(reviewID), reason)
}
