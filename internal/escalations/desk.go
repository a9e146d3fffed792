package escalations

import (
	"context"
	"fmt"
	"strings"

	"supportdesk/internal/domain"
)

// Ticket identifies the selection a request was issued for. Completions
// carrying an old ticket are dropped.
type Ticket struct {
	SessionID  string
	generation uint64
}

// Desk is the dashboard's open conversation on top of a Queue.
type Desk struct {
	queue *Queue

	selectedID string
	generation uint64
	detail     *domain.EscalationDetail
	err        error
}

func NewDesk(queue *Queue) *Desk {
	return &Desk{queue: queue}
}

func (d *Desk) Queue() *Queue {
	return d.queue
}

func (d *Desk) Selected() string {
	return d.selectedID
}

// Select switches the open conversation. Re-selecting the current session
// keeps the loaded detail and ticket.
func (d *Desk) Select(sessionID string) Ticket {
	if sessionID != d.selectedID {
		d.selectedID = sessionID
		d.generation++
		d.detail = nil
		d.err = nil
	}
	return d.Ticket()
}

// AutoSelect opens the first listed conversation when nothing is open.
func (d *Desk) AutoSelect() (Ticket, bool) {
	if d.selectedID != "" {
		return Ticket{}, false
	}
	items := d.queue.Items()
	if len(items) == 0 {
		return Ticket{}, false
	}
	return d.Select(items[0].SessionID), true
}

func (d *Desk) Ticket() Ticket {
	return Ticket{SessionID: d.selectedID, generation: d.generation}
}

// Current reports whether t still matches the open conversation.
func (d *Desk) Current(t Ticket) bool {
	return t.SessionID != "" && t.SessionID == d.selectedID && t.generation == d.generation
}

func (d *Desk) Detail() (domain.EscalationDetail, bool) {
	if d.detail == nil {
		return domain.EscalationDetail{}, false
	}
	out := *d.detail
	out.Messages = append([]domain.Message(nil), d.detail.Messages...)
	return out, true
}

func (d *Desk) Err() error {
	return d.err
}

// CanRespond gates the reply input for the open conversation.
func (d *Desk) CanRespond() bool {
	if d.detail == nil {
		return false
	}
	return d.queue.CanRespond(d.detail.Escalation)
}

func (d *Desk) FetchDetail(ctx context.Context, t Ticket) (domain.EscalationDetail, error) {
	detail, err := d.queue.api.GetEscalation(ctx, t.SessionID)
	if err != nil {
		return domain.EscalationDetail{}, fmt.Errorf("failed to load conversation: %w", err)
	}
	return detail, nil
}

// ApplyDetail commits a fetched detail if t is still current.
func (d *Desk) ApplyDetail(t Ticket, detail domain.EscalationDetail) bool {
	if !d.Current(t) {
		return false
	}
	if detail.Escalation.SessionID == "" {
		detail.Escalation.SessionID = t.SessionID
	}
	d.detail = &detail
	d.err = nil
	d.queue.ObserveDetail(detail)
	return true
}

// FailDetail records err if t is still current; the loaded detail stays.
func (d *Desk) FailDetail(t Ticket, err error) bool {
	if !d.Current(t) {
		return false
	}
	d.err = err
	return true
}

// Load fetches and commits the open conversation's detail.
func (d *Desk) Load(ctx context.Context) error {
	t := d.Ticket()
	if t.SessionID == "" {
		d.detail = nil
		return nil
	}
	detail, err := d.FetchDetail(ctx, t)
	if err != nil {
		d.FailDetail(t, err)
		return err
	}
	d.ApplyDetail(t, detail)
	return nil
}

// CheckReply validates a reply before it is sent.
func (d *Desk) CheckReply(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", &domain.ValidationError{Field: "content", Reason: "message is empty"}
	}
	if !d.CanRespond() {
		return "", &domain.ValidationError{Field: "content", Reason: "claim the conversation to start responding"}
	}
	return content, nil
}

func (d *Desk) FetchReply(ctx context.Context, t Ticket, content string) (domain.AgentReplyResponse, error) {
	resp, err := d.queue.api.SendAgentMessage(ctx, t.SessionID, d.queue.agentID, content)
	if err != nil {
		return domain.AgentReplyResponse{}, fmt.Errorf("failed to send message: %w", err)
	}
	return resp, nil
}

// ApplyReply updates the claimed entry for the session and, if it is still
// open, replaces the transcript with the server's copy.
func (d *Desk) ApplyReply(t Ticket, content string, resp domain.AgentReplyResponse) bool {
	var meta domain.EscalationSummary
	if d.Current(t) && d.detail != nil {
		meta = d.detail.Escalation
	} else if known, ok := d.queue.Find(t.SessionID); ok {
		meta = known
	} else {
		meta = domain.EscalationSummary{SessionID: t.SessionID}
	}
	meta.Status = resp.Status
	meta.AgentID = d.queue.agentID
	meta.LastResponse = content
	d.queue.ObserveReply(meta)

	if !d.Current(t) {
		return false
	}
	d.detail = &domain.EscalationDetail{Escalation: meta, Messages: resp.Messages}
	d.err = nil
	return true
}

// Reply sends content as the agent for the open conversation.
func (d *Desk) Reply(ctx context.Context, content string) error {
	content, err := d.CheckReply(content)
	if err != nil {
		return err
	}
	t := d.Ticket()
	resp, err := d.FetchReply(ctx, t, content)
	if err != nil {
		d.FailDetail(t, err)
		return err
	}
	d.ApplyReply(t, content, resp)
	return nil
}
