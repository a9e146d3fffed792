package escalations

import "supportdesk/internal/domain"

// Combine merges the server's pending listing with the sessions this agent
// has claimed. Entries are keyed by session id and a claimed entry always
// wins, so a stale listing can never revert a claim. Claimed entries come
// first in claim order, then the remaining pending entries in server order.
func Combine(pending, claimed []domain.EscalationSummary) []domain.EscalationSummary {
	out := make([]domain.EscalationSummary, 0, len(pending)+len(claimed))
	seen := make(map[string]struct{}, len(pending)+len(claimed))
	for _, item := range claimed {
		if _, ok := seen[item.SessionID]; ok {
			continue
		}
		seen[item.SessionID] = struct{}{}
		out = append(out, item)
	}
	for _, item := range pending {
		if _, ok := seen[item.SessionID]; ok {
			continue
		}
		seen[item.SessionID] = struct{}{}
		out = append(out, item)
	}
	return out
}

// CombineByID is Combine as a lookup table.
func CombineByID(pending, claimed []domain.EscalationSummary) map[string]domain.EscalationSummary {
	merged := Combine(pending, claimed)
	out := make(map[string]domain.EscalationSummary, len(merged))
	for _, item := range merged {
		out[item.SessionID] = item
	}
	return out
}
