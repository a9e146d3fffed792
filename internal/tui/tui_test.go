package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportdesk/internal/auth"
	"supportdesk/internal/domain"
)

type fakeAPI struct {
	identities map[string]domain.Identity

	sessions []domain.Session
	messages map[string][]domain.Message
	created  int

	chat     domain.ChatResponse
	chatErr  error
	chats    []domain.ChatRequest
	listErr  error
	listHits int

	escalations []domain.EscalationSummary
	details     map[string]domain.EscalationDetail
	replies     []string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		identities: map[string]domain.Identity{
			"cu@example.com": {Email: "cu@example.com", FirstName: "Casey", Role: domain.RoleCustomer},
			"ag@example.com": {Email: "ag@example.com", Role: domain.RoleAgent},
		},
		messages: map[string][]domain.Message{},
		details:  map[string]domain.EscalationDetail{},
	}
}

func (f *fakeAPI) Login(ctx context.Context, email, passcode string) (domain.Identity, error) {
	identity, ok := f.identities[email]
	if !ok || passcode != "secret" {
		return domain.Identity{}, &domain.NetworkError{Op: "login", StatusCode: 401, Detail: "Invalid credentials"}
	}
	return identity, nil
}

func (f *fakeAPI) ListSessions(ctx context.Context, userID string, includeClosed bool) ([]domain.Session, error) {
	f.listHits++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := []domain.Session{}
	for _, s := range f.sessions {
		if s.Status == domain.StatusClosed && !includeClosed {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeAPI) CreateSession(ctx context.Context, userID string) (domain.Session, error) {
	f.created++
	s := domain.Session{SessionID: fmt.Sprintf("new-%d", f.created), UserID: userID, Status: domain.StatusActive}
	f.sessions = append([]domain.Session{s}, f.sessions...)
	return s, nil
}

func (f *fakeAPI) CloseSession(ctx context.Context, sessionID, userID string) (domain.CloseResult, error) {
	for i := range f.sessions {
		if f.sessions[i].SessionID == sessionID {
			f.sessions[i].Status = domain.StatusClosed
			return domain.CloseResult{SessionID: sessionID, Status: domain.StatusClosed}, nil
		}
	}
	return domain.CloseResult{}, &domain.NetworkError{Op: "close session", StatusCode: 404, Detail: "Session not found"}
}

func (f *fakeAPI) ListMessages(ctx context.Context, sessionID, userID string) ([]domain.Message, error) {
	return f.messages[sessionID], nil
}

func (f *fakeAPI) SendChat(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	f.chats = append(f.chats, req)
	if f.chatErr != nil {
		return domain.ChatResponse{}, f.chatErr
	}
	resp := f.chat
	if resp.SessionID == "" {
		resp.SessionID = req.SessionID
	}
	return resp, nil
}

func (f *fakeAPI) ListEscalations(ctx context.Context, agentID string) ([]domain.EscalationSummary, error) {
	out := []domain.EscalationSummary{}
	for _, e := range f.escalations {
		if e.Status == domain.StatusPendingHandoff {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAPI) GetEscalation(ctx context.Context, sessionID string) (domain.EscalationDetail, error) {
	detail, ok := f.details[sessionID]
	if !ok {
		return domain.EscalationDetail{}, &domain.NetworkError{Op: "get escalation", StatusCode: 404, Detail: "Session not found"}
	}
	return detail, nil
}

func (f *fakeAPI) ClaimEscalation(ctx context.Context, sessionID, agentID string) (domain.EscalationSummary, error) {
	for i := range f.escalations {
		if f.escalations[i].SessionID != sessionID {
			continue
		}
		f.escalations[i].Status = domain.StatusLiveAgent
		f.escalations[i].AgentID = agentID
		detail := f.details[sessionID]
		detail.Escalation = f.escalations[i]
		f.details[sessionID] = detail
		return f.escalations[i], nil
	}
	return domain.EscalationSummary{}, &domain.NetworkError{Op: "claim escalation", StatusCode: 409, Detail: "Session is not escalated"}
}

func (f *fakeAPI) SendAgentMessage(ctx context.Context, sessionID, agentID, content string) (domain.AgentReplyResponse, error) {
	f.replies = append(f.replies, content)
	detail := f.details[sessionID]
	detail.Messages = append(detail.Messages, domain.Message{
		ID: fmt.Sprintf("m-%d", len(detail.Messages)+1), SessionID: sessionID, Role: domain.MessageRoleAgent,
		Content: content, AgentID: agentID, CreatedAt: "2026-01-02T03:04:05Z",
	})
	f.details[sessionID] = detail
	return domain.AgentReplyResponse{SessionID: sessionID, Status: domain.StatusLiveAgent, Messages: detail.Messages}, nil
}

func (f *fakeAPI) Health(ctx context.Context) (domain.Health, error) {
	return domain.Health{Status: "ok", Redis: "ok", Mongo: "ok"}, nil
}

func newTestModel(api *fakeAPI) model {
	m := newModel(api, auth.NewAuthenticator(api, nil, nil), Options{}, nil)
	return update(m, tea.WindowSizeMsg{Width: 120, Height: 40})
}

func update(m model, msg tea.Msg) model {
	next, _ := m.Update(msg)
	return next.(model)
}

// pump feeds msg to the model and runs every command it produces until the
// model goes quiet.
func pump(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	queue := []tea.Msg{msg}
	for steps := 0; len(queue) > 0; steps++ {
		require.Less(t, steps, 100, "model did not settle")
		current := queue[0]
		queue = queue[1:]
		if batch, ok := current.(tea.BatchMsg); ok {
			for _, cmd := range batch {
				if cmd != nil {
					queue = append(queue, cmd())
				}
			}
			continue
		}
		next, cmd := m.Update(current)
		m = next.(model)
		if cmd != nil {
			queue = append(queue, cmd())
		}
	}
	return m
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "ctrl+l":
		return tea.KeyMsg{Type: tea.KeyCtrlL}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func signIn(t *testing.T, m model, email string) model {
	t.Helper()
	m.email.SetValue(email)
	m.passcode.SetValue("secret")
	m.setLoginField(fieldPasscode)
	return pump(t, m, key("enter"))
}

func TestRestoreWithoutIdentityShowsLogin(t *testing.T) {
	m := newTestModel(newFakeAPI())
	m = pump(t, m, restoreDoneMsg{who: auth.Anonymous()})

	assert.True(t, m.ready)
	assert.Equal(t, screenLogin, m.screen)
	assert.Contains(t, m.View(), "SupportDesk")
}

func TestLoginRejectsMalformedEmailLocally(t *testing.T) {
	api := newFakeAPI()
	m := newTestModel(api)
	m = update(m, restoreDoneMsg{who: auth.Anonymous()})
	m.email.SetValue("not-an-email")
	m.passcode.SetValue("secret")
	m.setLoginField(fieldPasscode)

	m = update(m, key("enter"))

	assert.False(t, m.inflight)
	assert.Contains(t, m.statusLine, "login failed")
	assert.Equal(t, fieldEmail, m.loginField)
}

func TestLoginFailureIsGeneric(t *testing.T) {
	m := newTestModel(newFakeAPI())
	m = update(m, restoreDoneMsg{who: auth.Anonymous()})

	m = signIn(t, m, "nobody@example.com")

	assert.Equal(t, screenLogin, m.screen)
	assert.Equal(t, "login failed: "+auth.ErrInvalidCredentials.Error(), m.statusLine)
	assert.Empty(t, m.passcode.Value())
}

func TestCustomerLoginLoadsFirstSession(t *testing.T) {
	api := newFakeAPI()
	api.sessions = []domain.Session{
		{SessionID: "s-recent", Status: domain.StatusActive},
		{SessionID: "s-older", Status: domain.StatusActive},
	}
	api.messages["s-recent"] = []domain.Message{
		{ID: "1", SessionID: "s-recent", Role: domain.MessageRoleUser, Content: "hello"},
		{ID: "2", SessionID: "s-recent", Role: domain.MessageRoleAssistant, Content: "hi there"},
	}
	m := newTestModel(api)
	m = update(m, restoreDoneMsg{who: auth.Anonymous()})

	m = signIn(t, m, "cu@example.com")

	require.Equal(t, screenCustomer, m.screen)
	assert.Equal(t, "s-recent", m.sessions.ActiveID())
	assert.Equal(t, "s-recent", m.transcript.SessionID())
	assert.Len(t, m.transcript.Messages(), 2)
	assert.Contains(t, m.View(), "hi there")
}

func customerModel(t *testing.T, api *fakeAPI) model {
	t.Helper()
	m := newTestModel(api)
	m = update(m, restoreDoneMsg{who: auth.Anonymous()})
	return signIn(t, m, "cu@example.com")
}

func TestSendShowsPlaceholderThenReply(t *testing.T) {
	api := newFakeAPI()
	api.sessions = []domain.Session{{SessionID: "s1", Status: domain.StatusActive}}
	api.chat = domain.ChatResponse{Answer: "Reset it from settings.", SessionStatus: domain.StatusActive}
	m := customerModel(t, api)

	m.input.SetValue("how do I reset my password?")
	next, cmd := m.Update(key("enter"))
	m = next.(model)

	require.NotNil(t, cmd)
	assert.True(t, m.inflight)
	assert.True(t, m.transcript.Sending())
	require.Len(t, m.transcript.Messages(), 1)
	assert.True(t, m.transcript.Messages()[0].IsPlaceholder())
	assert.Empty(t, m.input.Value())

	m = pump(t, m, cmd())

	assert.False(t, m.inflight)
	msgs := m.transcript.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.MessageRoleUser, msgs[0].Role)
	assert.False(t, msgs[0].IsPlaceholder())
	assert.Equal(t, "Reset it from settings.", msgs[1].Content)
	require.Len(t, api.chats, 1)
	assert.Equal(t, "s1", api.chats[0].SessionID)
}

func TestSendFailureRestoresTranscriptAndInput(t *testing.T) {
	api := newFakeAPI()
	api.sessions = []domain.Session{{SessionID: "s1", Status: domain.StatusActive}}
	api.messages["s1"] = []domain.Message{{ID: "1", SessionID: "s1", Role: domain.MessageRoleUser, Content: "earlier"}}
	api.chatErr = &domain.NetworkError{Op: "send chat", StatusCode: 502}
	m := customerModel(t, api)
	require.Len(t, m.transcript.Messages(), 1)

	m.input.SetValue("are you there?")
	m = pump(t, m, key("enter"))

	assert.Len(t, m.transcript.Messages(), 1)
	assert.Equal(t, "earlier", m.transcript.Messages()[0].Content)
	assert.Equal(t, "are you there?", m.input.Value())
	assert.True(t, strings.HasPrefix(m.statusLine, "error:"))
}

func TestSendWithoutSessionAdoptsServerSession(t *testing.T) {
	api := newFakeAPI()
	api.chat = domain.ChatResponse{SessionID: "s-server", Answer: "Hello!", SessionStatus: domain.StatusActive}
	m := customerModel(t, api)
	require.Empty(t, m.transcript.SessionID())

	m.input.SetValue("hi")
	m = pump(t, m, key("enter"))

	assert.Equal(t, "s-server", m.transcript.SessionID())
	assert.Equal(t, "s-server", m.sessions.ActiveID())
	assert.Len(t, m.transcript.Messages(), 2)
}

func TestEscalatingReplyShowsBanner(t *testing.T) {
	api := newFakeAPI()
	api.sessions = []domain.Session{{SessionID: "s1", Status: domain.StatusActive}}
	api.chat = domain.ChatResponse{ShouldEscalate: true, SessionStatus: domain.StatusPendingHandoff}
	m := customerModel(t, api)

	m.input.SetValue("I want a human")
	m = pump(t, m, key("enter"))

	assert.True(t, m.transcript.Escalated())
	assert.Equal(t, "connecting you with a support agent", m.statusLine)
	assert.Len(t, m.transcript.Messages(), 1)
	assert.Contains(t, m.View(), "Escalated")
}

func TestCreateAndCloseSessionFromSidebar(t *testing.T) {
	api := newFakeAPI()
	api.sessions = []domain.Session{{SessionID: "s1", Status: domain.StatusActive}}
	m := customerModel(t, api)

	m = update(m, key("tab"))
	require.Equal(t, focusSidebar, m.focus)
	m = pump(t, m, key("n"))

	assert.Equal(t, "new-1", m.sessions.ActiveID())
	assert.Equal(t, "new-1", m.transcript.SessionID())
	assert.True(t, m.transcript.Loaded())
	assert.Equal(t, focusInput, m.focus)

	m = update(m, key("tab"))
	m = pump(t, m, key("x"))

	assert.Equal(t, "session closed", m.statusLine)
	for _, s := range m.sessions.Sessions() {
		assert.NotEqual(t, "new-1", s.SessionID)
	}
}

func TestSessionListFailureKeepsPreviousList(t *testing.T) {
	api := newFakeAPI()
	api.sessions = []domain.Session{{SessionID: "s1", Status: domain.StatusActive}}
	m := customerModel(t, api)
	require.Len(t, m.sessions.Sessions(), 1)

	api.listErr = &domain.NetworkError{Op: "list sessions", StatusCode: 500}
	m = pump(t, m, m.sessionsCmd()())

	assert.Len(t, m.sessions.Sessions(), 1)
	assert.Equal(t, "s1", m.sessions.ActiveID())
	assert.Error(t, m.sessions.Err())
	assert.Contains(t, m.statusLine, "error")
}

func TestCompletionsFromPreviousIdentityAreDropped(t *testing.T) {
	api := newFakeAPI()
	api.sessions = []domain.Session{{SessionID: "s1", Status: domain.StatusActive}}
	m := customerModel(t, api)
	stale := m.sessionsCmd()()

	m = update(m, key("ctrl+l"))
	require.Equal(t, screenLogin, m.screen)
	assert.False(t, m.who.Authenticated())

	m = update(m, stale)
	assert.Empty(t, m.sessions.Sessions())
	assert.Empty(t, m.sessions.ActiveID())
}

func TestTickSkippedWhileRequestInFlight(t *testing.T) {
	m := customerModel(t, newFakeAPI())
	m.inflight = true

	m = update(m, tickMsg{})
	assert.False(t, m.refreshing)

	m.inflight = false
	m = update(m, tickMsg{})
	assert.True(t, m.refreshing)
}

func TestRefreshRoundUpdatesTranscript(t *testing.T) {
	api := newFakeAPI()
	api.sessions = []domain.Session{{SessionID: "s1", Status: domain.StatusActive}}
	m := customerModel(t, api)
	require.Empty(t, m.transcript.Messages())

	api.messages["s1"] = []domain.Message{
		{ID: "1", SessionID: "s1", Role: domain.MessageRoleUser, Content: "help"},
		{ID: "2", SessionID: "s1", Role: domain.MessageRoleAgent, Content: "I'm here", AgentID: "ag@example.com"},
	}
	m.refreshing = true
	m = pump(t, m, m.refreshCmd()())

	assert.False(t, m.refreshing)
	assert.Len(t, m.transcript.Messages(), 2)
	assert.True(t, m.transcript.Escalated())
	assert.False(t, m.lastRefresh.IsZero())
}

func agentFixture() *fakeAPI {
	api := newFakeAPI()
	pending := domain.EscalationSummary{
		SessionID: "s-esc", UserID: "cu@example.com", Status: domain.StatusPendingHandoff,
		EscalationReason: "customer asked for a human", LastQuery: "I want a human",
	}
	api.escalations = []domain.EscalationSummary{pending}
	api.details["s-esc"] = domain.EscalationDetail{
		Escalation: pending,
		Messages: []domain.Message{
			{ID: "1", SessionID: "s-esc", Role: domain.MessageRoleUser, Content: "I want a human"},
		},
	}
	return api
}

func agentModel(t *testing.T, api *fakeAPI) model {
	t.Helper()
	m := newTestModel(api)
	m = update(m, restoreDoneMsg{who: auth.Anonymous()})
	return signIn(t, m, "ag@example.com")
}

func TestAgentSeesQueueAndClaimHint(t *testing.T) {
	m := agentModel(t, agentFixture())

	require.Equal(t, screenAgent, m.screen)
	require.Len(t, m.queue.Items(), 1)
	assert.Equal(t, "s-esc", m.desk.Selected())
	_, ok := m.desk.Detail()
	assert.True(t, ok)
	assert.False(t, m.desk.CanRespond())
	assert.Contains(t, m.View(), "Claim this conversation to start responding.")
}

func TestAgentReplyRequiresClaim(t *testing.T) {
	api := agentFixture()
	m := agentModel(t, api)

	m.input.SetValue("hello")
	m = pump(t, m, key("enter"))

	assert.Empty(t, api.replies)
	assert.Equal(t, "error: claim the conversation to start responding", m.statusLine)
}

func TestAgentClaimThenReply(t *testing.T) {
	api := agentFixture()
	m := agentModel(t, api)

	m = update(m, key("tab"))
	m = pump(t, m, key("c"))

	require.True(t, m.desk.CanRespond())
	require.Len(t, m.queue.Claimed(), 1)
	assert.Empty(t, m.queue.Pending())
	assert.Equal(t, focusInput, m.focus)

	m.input.SetValue("Hi, I can help with that.")
	m = pump(t, m, key("enter"))

	assert.Equal(t, []string{"Hi, I can help with that."}, api.replies)
	assert.Equal(t, "reply sent", m.statusLine)
	detail, ok := m.desk.Detail()
	require.True(t, ok)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, domain.MessageRoleAgent, detail.Messages[1].Role)
	claimed := m.queue.Claimed()
	assert.Equal(t, "Hi, I can help with that.", claimed[0].LastResponse)
}

func TestClaimFailureLeavesQueue(t *testing.T) {
	api := agentFixture()
	m := agentModel(t, api)

	m = update(m, claimDoneMsg{
		epoch:     m.epoch,
		sessionID: "s-esc",
		err:       fmt.Errorf("failed to claim: %w", &domain.NetworkError{Op: "claim escalation", StatusCode: 409}),
	})

	assert.Len(t, m.queue.Pending(), 1)
	assert.Empty(t, m.queue.Claimed())
	assert.True(t, strings.HasPrefix(m.statusLine, "error:"))
}

func TestDeepLinkOpensEscalation(t *testing.T) {
	api := agentFixture()
	api.details["s-mine"] = domain.EscalationDetail{
		Escalation: domain.EscalationSummary{SessionID: "s-mine", Status: domain.StatusLiveAgent, AgentID: "ag@example.com"},
	}
	m := newModel(api, auth.NewAuthenticator(api, nil, nil), Options{SessionID: "s-mine"}, nil)
	m = update(m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m = update(m, restoreDoneMsg{who: auth.Anonymous()})
	m.deepLink = "s-mine"

	m = signIn(t, m, "ag@example.com")

	assert.Equal(t, "s-mine", m.desk.Selected())
	assert.True(t, m.desk.CanRespond())
	_, found := m.queue.Find("s-mine")
	assert.True(t, found)
}

func TestQuitConfirm(t *testing.T) {
	m := customerModel(t, newFakeAPI())

	m = update(m, key("esc"))
	require.True(t, m.quitConfirm)
	assert.Contains(t, m.View(), "Quit SupportDesk?")

	m = update(m, key("n"))
	assert.False(t, m.quitConfirm)

	m = update(m, key("esc"))
	_, cmd := m.Update(key("y"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestUserMessageStripsFieldPrefix(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &domain.ValidationError{Field: "content", Reason: "reply is empty"})
	assert.Equal(t, "reply is empty", userMessage(err))
	assert.Equal(t, "boom", userMessage(errors.New("boom")))
}

func TestRefreshDuringSendKeepsUserMessage(t *testing.T) {
	api := newFakeAPI()
	api.sessions = []domain.Session{{SessionID: "s1", Status: domain.StatusActive}}
	api.messages["s1"] = []domain.Message{
		{ID: "1", SessionID: "s1", Role: domain.MessageRoleUser, Content: "hi"},
		{ID: "2", SessionID: "s1", Role: domain.MessageRoleAssistant, Content: "hello"},
	}
	api.chat = domain.ChatResponse{Answer: "Reset it from settings.", SessionStatus: domain.StatusActive}
	m := customerModel(t, api)

	refresh := m.refreshCmd()
	m.refreshing = true
	m.input.SetValue("how do I reset my password?")
	next, send := m.Update(key("enter"))
	m = next.(model)
	require.NotNil(t, send)
	require.Len(t, m.transcript.Messages(), 3)

	m = update(m, refresh())
	assert.Len(t, m.transcript.Messages(), 3)
	assert.True(t, m.transcript.Sending())

	m = pump(t, m, send())

	msgs := m.transcript.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "hello", msgs[1].Content)
	assert.Equal(t, "how do I reset my password?", msgs[2].Content)
	assert.Equal(t, domain.MessageRoleUser, msgs[2].Role)
	assert.Equal(t, "Reset it from settings.", msgs[3].Content)
}

func TestSendBeforeFirstSessionListKeepsNewSession(t *testing.T) {
	api := newFakeAPI()
	api.chat = domain.ChatResponse{SessionID: "s-server", Answer: "Hello!", SessionStatus: domain.StatusActive}
	m := newTestModel(api)
	m = update(m, restoreDoneMsg{who: auth.Anonymous()})
	who := auth.NewContext(domain.Identity{Email: "cu@example.com", Role: domain.RoleCustomer})
	m = update(m, loginDoneMsg{who: who})
	require.False(t, m.sessions.Loaded())

	m.input.SetValue("hi")
	next, send := m.Update(key("enter"))
	m = next.(model)
	require.NotNil(t, send)

	api.sessions = []domain.Session{{SessionID: "s-old", Status: domain.StatusActive}}
	m = pump(t, m, m.sessionsCmd()())
	assert.Empty(t, m.transcript.SessionID())
	assert.True(t, m.transcript.Sending())

	m = pump(t, m, send())

	assert.Equal(t, "s-server", m.transcript.SessionID())
	assert.Equal(t, "s-server", m.sessions.ActiveID())
	msgs := m.transcript.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "Hello!", msgs[1].Content)
}
