package stubapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportdesk/internal/auth"
	"supportdesk/internal/domain"
	"supportdesk/internal/escalations"
	"supportdesk/internal/lifecycle"
	"supportdesk/internal/sessions"
	"supportdesk/internal/stubapi"
	"supportdesk/internal/supportapi"
	"supportdesk/internal/transcript"
)

const (
	agentEmail    = "agent@example.com"
	customerEmail = "cu@example.com"
)

func newStub(t *testing.T) *supportapi.Client {
	t.Helper()
	srv := stubapi.New(stubapi.Config{
		Prefix:           "/v1",
		AgentEmail:       agentEmail,
		AgentPasscode:    "agent-pass",
		CustomerEmail:    customerEmail,
		CustomerPasscode: "cu-pass",
	}, nil)
	ts := httptest.NewServer(srv.Echo())
	t.Cleanup(ts.Close)
	return supportapi.New(ts.URL, "/v1", 5*time.Second, nil)
}

func login(t *testing.T, api *supportapi.Client, email, passcode string) auth.Context {
	t.Helper()
	who, err := auth.NewAuthenticator(api, nil, nil).Login(context.Background(), email, passcode)
	require.NoError(t, err)
	return who
}

func TestLoginRoles(t *testing.T) {
	api := newStub(t)

	cu := login(t, api, customerEmail, "cu-pass")
	assert.False(t, cu.IsAgent())
	ag := login(t, api, "AGENT@example.com", "agent-pass")
	assert.True(t, ag.IsAgent())
	assert.Equal(t, agentEmail, ag.UserID())

	_, err := auth.NewAuthenticator(api, nil, nil).Login(context.Background(), customerEmail, "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestHealthUnversioned(t *testing.T) {
	api := newStub(t)
	h, err := api.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
}

func TestCustomerConversation(t *testing.T) {
	api := newStub(t)
	ctx := context.Background()
	cu := login(t, api, customerEmail, "cu-pass")

	store := sessions.New(api)
	created, err := store.Create(ctx, cu)
	require.NoError(t, err)
	assert.Equal(t, created.SessionID, store.ActiveID())

	tr := transcript.New(api)
	require.NoError(t, tr.Load(ctx, cu, store.ActiveID()))
	assert.Empty(t, tr.Messages())

	_, err = tr.Send(ctx, cu, "Hello")
	require.NoError(t, err)
	assert.Len(t, tr.Messages(), 2)
	assert.False(t, tr.Escalated())
	assert.NotEmpty(t, tr.LastCitations())

	_, err = tr.Send(ctx, cu, "Hello")
	require.NoError(t, err)
	assert.True(t, tr.LastCacheHit())

	require.NoError(t, tr.Load(ctx, cu, store.ActiveID()))
	msgs := tr.Messages()
	require.Len(t, msgs, 4)
	for _, msg := range msgs {
		assert.NotEmpty(t, msg.ID)
	}

	list, err := store.List(ctx, cu, false)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, store.Close(ctx, cu, created.SessionID))
	list, err = store.List(ctx, cu, false)
	require.NoError(t, err)
	assert.Empty(t, list)
	list, err = store.List(ctx, cu, true)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.StatusClosed, list[0].Status)
}

func TestForeignSessionRejected(t *testing.T) {
	api := newStub(t)
	ctx := context.Background()
	cu := login(t, api, customerEmail, "cu-pass")
	created, err := sessions.New(api).Create(ctx, cu)
	require.NoError(t, err)

	_, err = api.ListMessages(ctx, created.SessionID, "someone@example.com")
	var netErr *domain.NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusForbidden, netErr.StatusCode)
	assert.Contains(t, netErr.Detail, "does not belong")

	_, err = api.ListMessages(ctx, "missing", customerEmail)
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusNotFound, netErr.StatusCode)
}

func TestHandoffClaimAndReply(t *testing.T) {
	api := newStub(t)
	ctx := context.Background()
	cu := login(t, api, customerEmail, "cu-pass")
	ag := login(t, api, agentEmail, "agent-pass")

	tr := transcript.New(api)
	resp, err := tr.Send(ctx, cu, "I need a human please")
	require.NoError(t, err)
	assert.True(t, resp.ShouldEscalate)
	assert.Equal(t, domain.StatusPendingHandoff, resp.SessionStatus)
	assert.True(t, tr.Escalated())
	sessionID := tr.SessionID()
	require.NotEmpty(t, sessionID)

	queue := escalations.NewQueue(api, ag)
	pending, err := queue.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, lifecycle.IsClaimable(pending[0]))
	assert.False(t, queue.CanRespond(pending[0]))

	claimed, err := queue.Claim(ctx, sessionID)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, domain.StatusLiveAgent, claimed.Status)
	assert.True(t, queue.CanRespond(*claimed))
	assert.Empty(t, queue.Pending())

	desk := escalations.NewDesk(queue)
	desk.Select(sessionID)
	require.NoError(t, desk.Load(ctx))
	require.NoError(t, desk.Reply(ctx, "Hi, I'm here to help."))
	detail, ok := desk.Detail()
	require.True(t, ok)
	last := detail.Messages[len(detail.Messages)-1]
	assert.Equal(t, domain.MessageRoleAgent, last.Role)
	assert.Equal(t, agentEmail, last.AgentID)

	// The customer sees the agent reply on the next load.
	require.NoError(t, tr.Load(ctx, cu, sessionID))
	assert.True(t, tr.Escalated())
	msgs := tr.Messages()
	assert.Equal(t, "Hi, I'm here to help.", msgs[len(msgs)-1].Content)

	// While live the assistant stays quiet.
	quiet, err := tr.Send(ctx, cu, "thanks")
	require.NoError(t, err)
	assert.Empty(t, quiet.Answer)
	assert.Equal(t, domain.StatusLiveAgent, quiet.SessionStatus)

	// The server folds the agent's own sessions into the listing.
	items, err := queue.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, domain.StatusLiveAgent, items[0].Status)
}

func TestClaimRules(t *testing.T) {
	api := newStub(t)
	ctx := context.Background()
	cu := login(t, api, customerEmail, "cu-pass")

	tr := transcript.New(api)
	_, err := tr.Send(ctx, cu, "just a question")
	require.NoError(t, err)

	var netErr *domain.NetworkError
	_, err = api.ClaimEscalation(ctx, tr.SessionID(), agentEmail)
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusConflict, netErr.StatusCode)

	_, err = tr.Send(ctx, cu, "talk to an agent")
	require.NoError(t, err)
	_, err = api.ClaimEscalation(ctx, tr.SessionID(), agentEmail)
	require.NoError(t, err)

	_, err = api.ClaimEscalation(ctx, tr.SessionID(), "other@example.com")
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusForbidden, netErr.StatusCode)

	_, err = api.SendAgentMessage(ctx, tr.SessionID(), "other@example.com", "hi")
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, http.StatusForbidden, netErr.StatusCode)
}

func TestValidationErrors(t *testing.T) {
	srv := stubapi.New(stubapi.Config{Prefix: "v1"}, nil)
	e := srv.Echo()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(`{"user_id":"cu@example.com","query":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "query is required")

	req = httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
