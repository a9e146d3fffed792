// Package stubapi is an in-memory support API for local development and
// end-to-end tests. Chat answers are canned.
package stubapi

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"supportdesk/internal/domain"
)

// apiError carries the HTTP status and the detail text the server reports.
type apiError struct {
	status int
	detail string
}

func (e *apiError) Error() string {
	return e.detail
}

var (
	errNotFound     = &apiError{http.StatusNotFound, "Session not found"}
	errNotOwner     = &apiError{http.StatusForbidden, "Session does not belong to user"}
	errNotEscalated = &apiError{http.StatusConflict, "Session is not escalated"}
	errOtherAgent   = &apiError{http.StatusForbidden, "Session claimed by another agent"}
	errSessionInUse = &apiError{http.StatusConflict, "Session ID already in use"}
)

type account struct {
	identity domain.Identity
	passcode string
}

type record struct {
	session    domain.Session
	escalation domain.EscalationSummary
	messages   []domain.Message
	answered   map[string]bool
	seq        int
}

// store is the server's state. Every method takes the lock.
type store struct {
	mu sync.Mutex

	now   func() time.Time
	newID func() string

	accounts map[string]account
	records  map[string]*record
	queue    []string
	assigned map[string][]string
	seq      int
}

func newStore() *store {
	return &store{
		now:      time.Now,
		newID:    uuid.NewString,
		accounts: map[string]account{},
		records:  map[string]*record{},
		assigned: map[string][]string{},
	}
}

func (s *store) addAccount(identity domain.Identity, passcode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity.Email = strings.ToLower(strings.TrimSpace(identity.Email))
	s.accounts[identity.Email] = account{identity: identity, passcode: passcode}
}

func (s *store) login(email, passcode string) (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[strings.ToLower(strings.TrimSpace(email))]
	if !ok || acct.passcode != passcode {
		return domain.Identity{}, false
	}
	return acct.identity, true
}

func (s *store) stamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func (s *store) touch(rec *record) {
	s.seq++
	rec.seq = s.seq
	rec.session.UpdatedAt = s.stamp()
	rec.escalation.LastUpdated = rec.session.UpdatedAt
}

func (s *store) createLocked(sessionID, userID string) (*record, error) {
	if sessionID == "" {
		sessionID = s.newID()
	}
	if rec, ok := s.records[sessionID]; ok {
		if rec.session.UserID != userID {
			return nil, errSessionInUse
		}
		return rec, nil
	}
	now := s.stamp()
	rec := &record{
		session: domain.Session{
			SessionID: sessionID,
			UserID:    userID,
			Status:    domain.StatusActive,
			CreatedAt: now,
		},
		escalation: domain.EscalationSummary{
			SessionID: sessionID,
			UserID:    userID,
			Status:    domain.StatusActive,
			CreatedAt: now,
		},
		messages: []domain.Message{},
		answered: map[string]bool{},
	}
	s.records[sessionID] = rec
	s.touch(rec)
	return rec, nil
}

func (s *store) createSession(sessionID, userID string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.createLocked(sessionID, userID)
	if err != nil {
		return domain.Session{}, err
	}
	return rec.session, nil
}

// listSessions returns userID's sessions, most recently updated first.
func (s *store) listSessions(userID string, includeClosed bool) []domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := make([]*record, 0, len(s.records))
	for _, rec := range s.records {
		if rec.session.UserID != userID {
			continue
		}
		if !includeClosed && rec.session.Status == domain.StatusClosed {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq > recs[j].seq })
	out := make([]domain.Session, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.session)
	}
	return out
}

func (s *store) ownedLocked(sessionID, userID string) (*record, error) {
	rec, ok := s.records[sessionID]
	if !ok {
		return nil, errNotFound
	}
	if rec.session.UserID != userID {
		return nil, errNotOwner
	}
	return rec, nil
}

func (s *store) messages(sessionID, userID string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.ownedLocked(sessionID, userID)
	if err != nil {
		return nil, err
	}
	return cloneMessages(rec.messages), nil
}

func (s *store) closeSession(sessionID, userID string) (domain.CloseResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.ownedLocked(sessionID, userID)
	if err != nil {
		return domain.CloseResult{}, err
	}
	s.setStatus(rec, domain.StatusClosed)
	s.dequeue(sessionID)
	s.touch(rec)
	return domain.CloseResult{SessionID: sessionID, Status: domain.StatusClosed, ClosedAt: rec.session.UpdatedAt}, nil
}

func (s *store) setStatus(rec *record, status string) {
	rec.session.Status = status
	rec.escalation.Status = status
}

func (s *store) appendMessage(rec *record, role, content, agentID string) {
	rec.messages = append(rec.messages, domain.Message{
		ID:        s.newID(),
		SessionID: rec.session.SessionID,
		Role:      role,
		Content:   content,
		CreatedAt: s.stamp(),
		AgentID:   agentID,
	})
}

// chat records the customer's message and produces the canned reply. Asking
// for an agent or a human hands the session off; once handed off the
// assistant stays quiet and the message waits for the agent.
func (s *store) chat(req domain.ChatRequest) (domain.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.createLocked(req.SessionID, req.UserID)
	if err != nil {
		return domain.ChatResponse{}, errNotOwner
	}
	sessionID := rec.session.SessionID
	if rec.session.Status == domain.StatusClosed {
		s.setStatus(rec, domain.StatusActive)
	}
	s.appendMessage(rec, domain.MessageRoleUser, req.Query, "")
	rec.escalation.LastQuery = req.Query

	resp := domain.ChatResponse{SessionID: sessionID, Citations: []domain.Citation{}}
	switch {
	case rec.session.Status == domain.StatusPendingHandoff || rec.session.Status == domain.StatusLiveAgent:
	case wantsHuman(req.Query):
		resp.Answer = "I'm connecting you with a support agent. Someone will be with you shortly."
		resp.ShouldEscalate = true
		s.setStatus(rec, domain.StatusPendingHandoff)
		rec.escalation.EscalatedAt = s.stamp()
		rec.escalation.EscalationReason = "customer requested a human agent"
		s.enqueue(sessionID)
	default:
		key := strings.ToLower(strings.TrimSpace(req.Query))
		resp.CacheHit = rec.answered[key]
		rec.answered[key] = true
		resp.Answer = cannedAnswer(req.Query)
		resp.Citations = []domain.Citation{{Source: "kb/getting-started.md", Title: "Getting started"}}
	}
	if resp.Answer != "" {
		s.appendMessage(rec, domain.MessageRoleAssistant, resp.Answer, "")
		rec.escalation.LastResponse = resp.Answer
	}
	resp.SessionStatus = rec.session.Status
	s.touch(rec)
	return resp, nil
}

func wantsHuman(query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(q, "agent") || strings.Contains(q, "human")
}

func cannedAnswer(query string) string {
	return "Thanks for your question about \"" + strings.TrimSpace(query) + "\". Our getting started guide covers this; reply \"agent\" to reach a person."
}

func (s *store) enqueue(sessionID string) {
	for _, id := range s.queue {
		if id == sessionID {
			return
		}
	}
	s.queue = append(s.queue, sessionID)
}

func (s *store) dequeue(sessionID string) {
	kept := s.queue[:0]
	for _, id := range s.queue {
		if id != sessionID {
			kept = append(kept, id)
		}
	}
	s.queue = kept
}

func (s *store) assign(sessionID, agentID string) {
	for _, id := range s.assigned[agentID] {
		if id == sessionID {
			return
		}
	}
	s.assigned[agentID] = append(s.assigned[agentID], sessionID)
}

// escalations lists the pending queue plus, for agentID, the sessions that
// agent owns. A session listed twice keeps its later position.
func (s *store) escalations(agentID string) []domain.EscalationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := append([]string(nil), s.queue...)
	if agentID != "" {
		ids = append(ids, s.assigned[agentID]...)
	}
	pos := map[string]int{}
	out := []domain.EscalationSummary{}
	for _, id := range ids {
		rec, ok := s.records[id]
		if !ok {
			continue
		}
		if i, seen := pos[id]; seen {
			out[i] = rec.escalation
			continue
		}
		pos[id] = len(out)
		out = append(out, rec.escalation)
	}
	return out
}

func (s *store) detail(sessionID string) (domain.EscalationDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[sessionID]
	if !ok {
		return domain.EscalationDetail{}, errNotFound
	}
	return domain.EscalationDetail{Escalation: rec.escalation, Messages: cloneMessages(rec.messages)}, nil
}

func escalated(status string) bool {
	return status == domain.StatusPendingHandoff || status == domain.StatusLiveAgent
}

func (s *store) claim(sessionID, agentID string) (domain.EscalationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[sessionID]
	if !ok {
		return domain.EscalationSummary{}, errNotFound
	}
	if !escalated(rec.session.Status) {
		return domain.EscalationSummary{}, errNotEscalated
	}
	if owner := rec.escalation.AgentID; owner != "" && owner != agentID {
		return domain.EscalationSummary{}, errOtherAgent
	}
	s.setStatus(rec, domain.StatusLiveAgent)
	rec.escalation.AgentID = agentID
	s.dequeue(sessionID)
	s.assign(sessionID, agentID)
	s.touch(rec)
	return rec.escalation, nil
}

func (s *store) agentReply(sessionID, agentID, content string) (domain.AgentReplyResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[sessionID]
	if !ok {
		return domain.AgentReplyResponse{}, errNotFound
	}
	if !escalated(rec.session.Status) {
		return domain.AgentReplyResponse{}, errNotEscalated
	}
	if owner := rec.escalation.AgentID; owner != "" && owner != agentID {
		return domain.AgentReplyResponse{}, errOtherAgent
	}
	s.appendMessage(rec, domain.MessageRoleAgent, content, agentID)
	s.setStatus(rec, domain.StatusLiveAgent)
	rec.escalation.AgentID = agentID
	rec.escalation.LastResponse = content
	s.dequeue(sessionID)
	s.assign(sessionID, agentID)
	s.touch(rec)
	return domain.AgentReplyResponse{
		SessionID: sessionID,
		Status:    rec.session.Status,
		Messages:  cloneMessages(rec.messages),
	}, nil
}

func cloneMessages(in []domain.Message) []domain.Message {
	out := make([]domain.Message, len(in))
	copy(out, in)
	return out
}
