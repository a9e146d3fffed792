// Package domain holds the wire types shared by the support API client,
// the client-side stores and the TUI.
package domain

// Role of an authenticated identity.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
)

// Session status values reported by the server. The set is open: the server
// may send statuses the client does not know about yet.
const (
	StatusActive         = "active"
	StatusClosed         = "closed"
	StatusPendingHandoff = "pending_handoff"
	StatusLiveAgent      = "live_agent"
)

// Message author roles.
const (
	MessageRoleUser      = "user"
	MessageRoleAssistant = "assistant"
	MessageRoleAgent     = "agent"
)

// Identity is the server-issued user record returned by login.
type Identity struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      Role   `json:"role,omitempty"`
}

// ID returns the identity key used by every API call.
func (i Identity) ID() string {
	return i.Email
}

// IsAgent reports whether the identity may use the escalation dashboard.
func (i Identity) IsAgent() bool {
	return i.Role == RoleAgent
}

type Session struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at,omitempty"`
	Summary   string `json:"summary,omitempty"`
}

type CloseResult struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	ClosedAt  string `json:"closed_at,omitempty"`
}

// Message is one transcript entry. ID is empty for optimistic placeholders;
// LocalID never leaves the client.
type Message struct {
	ID        string `json:"id,omitempty"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	AgentID   string `json:"agent_id,omitempty"`

	LocalID string `json:"-"`
}

// IsPlaceholder reports whether the message was constructed locally and not
// yet confirmed by the server.
func (m Message) IsPlaceholder() bool {
	return m.ID == "" && m.LocalID != ""
}

type EscalationSummary struct {
	SessionID        string `json:"session_id"`
	UserID           string `json:"user_id"`
	Status           string `json:"status"`
	CreatedAt        string `json:"created_at,omitempty"`
	LastUpdated      string `json:"last_updated,omitempty"`
	EscalatedAt      string `json:"escalated_at,omitempty"`
	EscalationReason string `json:"escalation_reason,omitempty"`
	AgentID          string `json:"agent_id,omitempty"`
	LastQuery        string `json:"last_query,omitempty"`
	LastResponse     string `json:"last_response,omitempty"`
}

type EscalationDetail struct {
	Escalation EscalationSummary `json:"escalation"`
	Messages   []Message         `json:"messages"`
}

type Citation struct {
	Source string `json:"source"`
	Title  string `json:"title,omitempty"`
}

type ChatRequest struct {
	UserID    string `json:"user_id"`
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

type ChatResponse struct {
	SessionID      string     `json:"session_id"`
	Answer         string     `json:"answer"`
	Citations      []Citation `json:"citations"`
	ShouldEscalate bool       `json:"should_escalate"`
	CacheHit       bool       `json:"cache_hit"`
	SessionStatus  string     `json:"session_status"`
}

type AgentReplyResponse struct {
	SessionID string    `json:"session_id,omitempty"`
	Status    string    `json:"status"`
	Messages  []Message `json:"messages"`
}

type Health struct {
	Status string `json:"status"`
	Redis  string `json:"redis"`
	Mongo  string `json:"mongo"`
}
