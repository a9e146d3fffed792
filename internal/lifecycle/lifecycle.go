// Package lifecycle derives UI-facing facts about a support session from its
// status string and transcript. Nothing here touches the network.
package lifecycle

import (
	"strings"

	"supportdesk/internal/domain"
)

var statusLabels = map[string]string{
	domain.StatusActive:         "Active",
	domain.StatusPendingHandoff: "Pending",
	domain.StatusLiveAgent:      "Live",
	domain.StatusClosed:         "Closed",
}

// Label maps a status to its display label. Unknown statuses render as
// "Pending" so a newer server never breaks the dashboard.
func Label(status string) string {
	if label, ok := statusLabels[normalize(status)]; ok {
		return label
	}
	return statusLabels[domain.StatusPendingHandoff]
}

// Known reports whether the client understands the status.
func Known(status string) bool {
	_, ok := statusLabels[normalize(status)]
	return ok
}

// CanRespond gates the agent reply input.
func CanRespond(e domain.EscalationSummary, agentID string) bool {
	if agentID == "" {
		return false
	}
	return normalize(e.Status) == domain.StatusLiveAgent && e.AgentID == agentID
}

// IsClaimable reports whether a claim action should be offered.
func IsClaimable(e domain.EscalationSummary) bool {
	return normalize(e.Status) == domain.StatusPendingHandoff
}

// IsEscalatedStatus reports whether the status means a human is (or will be) involved.
func IsEscalatedStatus(status string) bool {
	switch normalize(status) {
	case domain.StatusPendingHandoff, domain.StatusLiveAgent:
		return true
	default:
		return false
	}
}

// TranscriptEscalated reports whether any message was authored by an agent.
func TranscriptEscalated(messages []domain.Message) bool {
	for _, msg := range messages {
		if msg.Role == domain.MessageRoleAgent {
			return true
		}
	}
	return false
}

// SendEscalates reports whether a chat response moved the session out of
// the plain assistant flow. An empty session_status counts as active; older
// servers omit the field.
func SendEscalates(resp domain.ChatResponse) bool {
	if resp.ShouldEscalate {
		return true
	}
	status := normalize(resp.SessionStatus)
	return status != "" && status != domain.StatusActive
}

func normalize(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}
