// Package escalations holds the agent-side view of escalated sessions: the
// pending queue, the sessions claimed by the signed-in agent, and the
// conversation currently open on the dashboard.
package escalations

import (
	"context"
	"errors"
	"fmt"

	"supportdesk/internal/auth"
	"supportdesk/internal/domain"
	"supportdesk/internal/lifecycle"
)

type API interface {
	ListEscalations(ctx context.Context, agentID string) ([]domain.EscalationSummary, error)
	GetEscalation(ctx context.Context, sessionID string) (domain.EscalationDetail, error)
	ClaimEscalation(ctx context.Context, sessionID, agentID string) (domain.EscalationSummary, error)
	SendAgentMessage(ctx context.Context, sessionID, agentID, content string) (domain.AgentReplyResponse, error)
}

var errNoAgent = errors.New("agent identity required")

// Queue is bound to one agent identity for its whole life; build a new one
// after login or logout.
type Queue struct {
	api     API
	agentID string

	pending []domain.EscalationSummary
	claimed []domain.EscalationSummary
	err     error
}

func NewQueue(api API, who auth.Context) *Queue {
	agentID := ""
	if who.IsAgent() {
		agentID = who.UserID()
	}
	return &Queue{
		api:     api,
		agentID: agentID,
		pending: []domain.EscalationSummary{},
		claimed: []domain.EscalationSummary{},
	}
}

func (q *Queue) AgentID() string {
	return q.agentID
}

func (q *Queue) Pending() []domain.EscalationSummary {
	return cloneSummaries(q.pending)
}

func (q *Queue) Claimed() []domain.EscalationSummary {
	return cloneSummaries(q.claimed)
}

// Items is what the dashboard lists.
func (q *Queue) Items() []domain.EscalationSummary {
	return Combine(q.pending, q.claimed)
}

// Find looks an entry up in the merged view.
func (q *Queue) Find(sessionID string) (domain.EscalationSummary, bool) {
	for _, item := range q.Items() {
		if item.SessionID == sessionID {
			return item, true
		}
	}
	return domain.EscalationSummary{}, false
}

func (q *Queue) Err() error {
	return q.err
}

// FetchPending lists the queue without touching state. No agent means an
// empty queue, not an error.
func (q *Queue) FetchPending(ctx context.Context) ([]domain.EscalationSummary, error) {
	if q.agentID == "" {
		return []domain.EscalationSummary{}, nil
	}
	items, err := q.api.ListEscalations(ctx, q.agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load escalations: %w", err)
	}
	return items, nil
}

func (q *Queue) ApplyPending(items []domain.EscalationSummary) {
	q.pending = cloneSummaries(items)
	q.err = nil
}

func (q *Queue) Fail(err error) {
	q.err = err
}

// Refresh reloads the pending set; on failure the previous set is kept.
func (q *Queue) Refresh(ctx context.Context) ([]domain.EscalationSummary, error) {
	items, err := q.FetchPending(ctx)
	if err != nil {
		q.Fail(err)
		return q.Pending(), err
	}
	q.ApplyPending(items)
	return q.Pending(), nil
}

func (q *Queue) FetchClaim(ctx context.Context, sessionID string) (domain.EscalationSummary, error) {
	if q.agentID == "" {
		return domain.EscalationSummary{}, errNoAgent
	}
	claimed, err := q.api.ClaimEscalation(ctx, sessionID, q.agentID)
	if err != nil {
		return domain.EscalationSummary{}, fmt.Errorf("failed to claim escalation: %w", err)
	}
	if claimed.SessionID == "" {
		claimed.SessionID = sessionID
	}
	return claimed, nil
}

// ApplyClaim moves a confirmed claim out of the pending set and into the
// claimed-by-me set.
func (q *Queue) ApplyClaim(claimed domain.EscalationSummary) {
	kept := make([]domain.EscalationSummary, 0, len(q.pending))
	for _, item := range q.pending {
		if item.SessionID != claimed.SessionID {
			kept = append(kept, item)
		}
	}
	q.pending = kept
	q.upsertClaimed(claimed)
	q.err = nil
}

// Claim returns nil and leaves the pending set alone when the server
// does not confirm the claim.
func (q *Queue) Claim(ctx context.Context, sessionID string) (*domain.EscalationSummary, error) {
	claimed, err := q.FetchClaim(ctx, sessionID)
	if err != nil {
		q.Fail(err)
		return nil, err
	}
	q.ApplyClaim(claimed)
	return &claimed, nil
}

// ObserveDetail folds a session into claimed-by-me when its detail shows it
// is live with this agent, e.g. after reopening it from a deep link.
func (q *Queue) ObserveDetail(detail domain.EscalationDetail) bool {
	e := detail.Escalation
	if q.agentID == "" || e.AgentID != q.agentID || e.Status != domain.StatusLiveAgent {
		return false
	}
	q.upsertClaimed(e)
	return true
}

// ObserveReply records the metadata the server reported after an agent reply.
func (q *Queue) ObserveReply(summary domain.EscalationSummary) {
	if q.agentID == "" || summary.AgentID != q.agentID {
		return
	}
	q.upsertClaimed(summary)
}

func (q *Queue) upsertClaimed(summary domain.EscalationSummary) {
	for i, item := range q.claimed {
		if item.SessionID == summary.SessionID {
			q.claimed[i] = summary
			return
		}
	}
	q.claimed = append(q.claimed, summary)
}

// CanRespond is the classifier bound to this queue's agent.
func (q *Queue) CanRespond(e domain.EscalationSummary) bool {
	return lifecycle.CanRespond(e, q.agentID)
}

func cloneSummaries(in []domain.EscalationSummary) []domain.EscalationSummary {
	out := make([]domain.EscalationSummary, len(in))
	copy(out, in)
	return out
}
