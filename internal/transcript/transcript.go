// Package transcript keeps the open session's messages and reconciles
// optimistic sends with what the server confirms.
package transcript

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"supportdesk/internal/auth"
	"supportdesk/internal/domain"
	"supportdesk/internal/lifecycle"
)

type API interface {
	ListMessages(ctx context.Context, sessionID, userID string) ([]domain.Message, error)
	SendChat(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error)
}

// Ticket pins a request to the activation it was issued under.
type Ticket struct {
	SessionID  string
	generation uint64
}

// Pending is an in-flight send: the transcript length before the optimistic
// message was appended and the local id of that message.
type Pending struct {
	Ticket
	UserID      string
	Content     string
	LocalID     string
	snapshotLen int
}

// Reconciler is owned by the UI loop, like sessions.Store.
type Reconciler struct {
	api   API
	now   func() time.Time
	newID func() string

	sessionID  string
	generation uint64
	messages   []domain.Message
	escalated  bool
	citations  []domain.Citation
	cacheHit   bool
	loaded     bool
	err        error
}

func New(api API) *Reconciler {
	return &Reconciler{
		api:      api,
		now:      time.Now,
		newID:    uuid.NewString,
		messages: []domain.Message{},
	}
}

func (r *Reconciler) SessionID() string {
	return r.sessionID
}

func (r *Reconciler) Messages() []domain.Message {
	out := make([]domain.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Escalated is sticky for the open session.
func (r *Reconciler) Escalated() bool {
	return r.escalated
}

// LastCitations belong to the most recent confirmed reply.
func (r *Reconciler) LastCitations() []domain.Citation {
	return append([]domain.Citation(nil), r.citations...)
}

func (r *Reconciler) LastCacheHit() bool {
	return r.cacheHit
}

func (r *Reconciler) Loaded() bool {
	return r.loaded
}

func (r *Reconciler) Err() error {
	return r.err
}

// Sending reports whether an optimistic message is still unconfirmed.
func (r *Reconciler) Sending() bool {
	for _, msg := range r.messages {
		if msg.IsPlaceholder() {
			return true
		}
	}
	return false
}

func (r *Reconciler) placeholders() []domain.Message {
	var out []domain.Message
	for _, msg := range r.messages {
		if msg.IsPlaceholder() {
			out = append(out, msg)
		}
	}
	return out
}

func (r *Reconciler) Ticket() Ticket {
	return Ticket{SessionID: r.sessionID, generation: r.generation}
}

func (r *Reconciler) Current(t Ticket) bool {
	return t.generation == r.generation
}

// Activate opens sessionID. Switching to a different session starts a new
// generation, which empties the transcript and clears the escalated flag;
// re-activating the open session changes nothing.
func (r *Reconciler) Activate(sessionID string) Ticket {
	if sessionID != r.sessionID {
		r.sessionID = sessionID
		r.clear()
	}
	return r.Ticket()
}

// Reset forgets the open session, used on logout.
func (r *Reconciler) Reset() {
	r.sessionID = ""
	r.clear()
}

func (r *Reconciler) clear() {
	r.generation++
	r.messages = []domain.Message{}
	r.escalated = false
	r.citations = nil
	r.cacheHit = false
	r.loaded = false
	r.err = nil
}

// FetchLoad lists the messages for t without touching state. No identity
// or no session yields an empty transcript.
func (r *Reconciler) FetchLoad(ctx context.Context, who auth.Context, t Ticket) ([]domain.Message, error) {
	if !who.Authenticated() || t.SessionID == "" {
		return []domain.Message{}, nil
	}
	msgs, err := r.api.ListMessages(ctx, t.SessionID, who.UserID())
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	return msgs, nil
}

// ApplyLoaded replaces the transcript if t is still current. Messages still
// awaiting confirmation stay at the end, after the server's list.
func (r *Reconciler) ApplyLoaded(t Ticket, msgs []domain.Message) bool {
	if !r.Current(t) {
		return false
	}
	pending := r.placeholders()
	r.messages = make([]domain.Message, 0, len(msgs)+len(pending))
	r.messages = append(r.messages, msgs...)
	r.messages = append(r.messages, pending...)
	if lifecycle.TranscriptEscalated(r.messages) {
		r.escalated = true
	}
	r.loaded = true
	r.err = nil
	return true
}

// FailLoad records err if t is still current; the transcript stays.
func (r *Reconciler) FailLoad(t Ticket, err error) bool {
	if !r.Current(t) {
		return false
	}
	r.err = err
	return true
}

// Load activates sessionID and replaces its transcript with the server's.
func (r *Reconciler) Load(ctx context.Context, who auth.Context, sessionID string) error {
	t := r.Activate(sessionID)
	msgs, err := r.FetchLoad(ctx, who, t)
	if err != nil {
		r.FailLoad(t, err)
		return err
	}
	r.ApplyLoaded(t, msgs)
	return nil
}

// BeginSend appends the optimistic user message and returns what is needed
// to confirm or roll it back.
func (r *Reconciler) BeginSend(who auth.Context, content string) (Pending, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Pending{}, &domain.ValidationError{Field: "query", Reason: "message is empty"}
	}
	if !who.Authenticated() {
		return Pending{}, &domain.ValidationError{Field: "identity", Reason: "sign in to send messages"}
	}
	p := Pending{
		Ticket:      r.Ticket(),
		UserID:      who.UserID(),
		Content:     content,
		LocalID:     r.newID(),
		snapshotLen: len(r.messages),
	}
	r.messages = append(r.messages, domain.Message{
		SessionID: r.sessionID,
		Role:      domain.MessageRoleUser,
		Content:   content,
		CreatedAt: r.timestamp(),
		LocalID:   p.LocalID,
	})
	r.err = nil
	return p, nil
}

func (r *Reconciler) FetchSend(ctx context.Context, p Pending) (domain.ChatResponse, error) {
	resp, err := r.api.SendChat(ctx, domain.ChatRequest{
		UserID:    p.UserID,
		Query:     p.Content,
		SessionID: p.SessionID,
	})
	if err != nil {
		return domain.ChatResponse{}, fmt.Errorf("failed to send message: %w", err)
	}
	return resp, nil
}

// Confirm settles p with the server's reply. A send issued without an open
// session adopts the session id the server created for it.
func (r *Reconciler) Confirm(p Pending, resp domain.ChatResponse) bool {
	if !r.Current(p.Ticket) {
		return false
	}
	if r.sessionID == "" && resp.SessionID != "" {
		r.sessionID = resp.SessionID
	}
	for i := range r.messages {
		if r.messages[i].LocalID == p.LocalID {
			r.messages[i].LocalID = ""
			r.messages[i].SessionID = r.sessionID
		}
	}
	if strings.TrimSpace(resp.Answer) != "" {
		r.messages = append(r.messages, domain.Message{
			SessionID: r.sessionID,
			Role:      domain.MessageRoleAssistant,
			Content:   resp.Answer,
			CreatedAt: r.timestamp(),
		})
	}
	if lifecycle.SendEscalates(resp) {
		r.escalated = true
	}
	r.citations = append([]domain.Citation(nil), resp.Citations...)
	r.cacheHit = resp.CacheHit
	r.err = nil
	return true
}

// Rollback removes exactly the optimistic message of p and records err.
func (r *Reconciler) Rollback(p Pending, err error) bool {
	if !r.Current(p.Ticket) {
		return false
	}
	n := p.snapshotLen
	if len(r.messages) == n+1 && r.messages[n].LocalID == p.LocalID {
		r.messages = r.messages[:n]
	} else {
		kept := make([]domain.Message, 0, len(r.messages))
		for _, msg := range r.messages {
			if msg.LocalID != p.LocalID {
				kept = append(kept, msg)
			}
		}
		r.messages = kept
	}
	r.err = err
	return true
}

// Send runs a full optimistic send for the open session.
func (r *Reconciler) Send(ctx context.Context, who auth.Context, content string) (domain.ChatResponse, error) {
	p, err := r.BeginSend(who, content)
	if err != nil {
		return domain.ChatResponse{}, err
	}
	resp, err := r.FetchSend(ctx, p)
	if err != nil {
		r.Rollback(p, err)
		return domain.ChatResponse{}, err
	}
	r.Confirm(p, resp)
	return resp, nil
}

func (r *Reconciler) timestamp() string {
	return r.now().UTC().Format(time.RFC3339)
}
