package sessions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportdesk/internal/auth"
	"supportdesk/internal/domain"
)

type fakeAPI struct {
	list      []domain.Session
	listErr   error
	created   domain.Session
	createErr error
	closeErr  error

	lastIncludeClosed bool
	listCalls         int
}

func (f *fakeAPI) ListSessions(ctx context.Context, userID string, includeClosed bool) ([]domain.Session, error) {
	f.listCalls++
	f.lastIncludeClosed = includeClosed
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.list, nil
}

func (f *fakeAPI) CreateSession(ctx context.Context, userID string) (domain.Session, error) {
	if f.createErr != nil {
		return domain.Session{}, f.createErr
	}
	return f.created, nil
}

func (f *fakeAPI) CloseSession(ctx context.Context, sessionID, userID string) (domain.CloseResult, error) {
	if f.closeErr != nil {
		return domain.CloseResult{}, f.closeErr
	}
	return domain.CloseResult{SessionID: sessionID, Status: domain.StatusClosed, ClosedAt: "2026-01-02T03:04:05Z"}, nil
}

func customer() auth.Context {
	return auth.NewContext(domain.Identity{Email: "cu@example.com", Role: domain.RoleCustomer})
}

func sessionsOf(ids ...string) []domain.Session {
	out := make([]domain.Session, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Session{SessionID: id, UserID: "cu@example.com", Status: domain.StatusActive})
	}
	return out
}

func TestInitialLoadSelectsFirst(t *testing.T) {
	api := &fakeAPI{list: sessionsOf("s3", "s2", "s1")}
	store := New(api)

	list, err := store.List(context.Background(), customer(), false)
	require.NoError(t, err)
	assert.Len(t, list, 3)
	assert.Equal(t, "s3", store.ActiveID())
	assert.True(t, store.Loaded())
}

func TestRefreshPreservesActiveSelection(t *testing.T) {
	api := &fakeAPI{list: sessionsOf("s3", "s2", "s1")}
	store := New(api)
	_, err := store.List(context.Background(), customer(), false)
	require.NoError(t, err)

	store.SetActive("s2")
	api.list = sessionsOf("s4", "s3", "s2", "s1")
	_, err = store.List(context.Background(), customer(), false)
	require.NoError(t, err)
	assert.Equal(t, "s2", store.ActiveID())
}

func TestRefreshDoesNotAutoSelectAfterInitialLoad(t *testing.T) {
	api := &fakeAPI{list: []domain.Session{}}
	store := New(api)
	_, err := store.List(context.Background(), customer(), false)
	require.NoError(t, err)
	assert.Equal(t, "", store.ActiveID())

	api.list = sessionsOf("s1")
	_, err = store.List(context.Background(), customer(), false)
	require.NoError(t, err)
	assert.Equal(t, "", store.ActiveID())
}

func TestDeepLinkSurvivesInitialLoad(t *testing.T) {
	api := &fakeAPI{list: sessionsOf("s3", "s2")}
	store := New(api)
	store.SetActive("s-old")

	_, err := store.List(context.Background(), customer(), false)
	require.NoError(t, err)
	assert.Equal(t, "s-old", store.ActiveID())
	_, ok := store.Active()
	assert.False(t, ok)
}

func TestFailedListKeepsPreviousState(t *testing.T) {
	api := &fakeAPI{list: sessionsOf("s2", "s1")}
	store := New(api)
	_, err := store.List(context.Background(), customer(), false)
	require.NoError(t, err)
	store.SetActive("s1")

	api.listErr = &domain.NetworkError{Op: "list sessions", StatusCode: 502}
	list, err := store.List(context.Background(), customer(), true)
	require.Error(t, err)
	assert.True(t, domain.IsNetworkError(err))
	assert.Len(t, list, 2)
	assert.Equal(t, "s1", store.ActiveID())
	assert.Error(t, store.Err())
	assert.True(t, api.lastIncludeClosed)

	api.listErr = nil
	_, err = store.List(context.Background(), customer(), false)
	require.NoError(t, err)
	assert.NoError(t, store.Err())
}

func TestCreatePrependsAndActivates(t *testing.T) {
	api := &fakeAPI{list: sessionsOf("s2", "s1"), created: domain.Session{SessionID: "s9", Status: domain.StatusActive}}
	store := New(api)
	_, err := store.List(context.Background(), customer(), false)
	require.NoError(t, err)

	created, err := store.Create(context.Background(), customer())
	require.NoError(t, err)
	assert.Equal(t, "s9", created.SessionID)
	assert.Equal(t, "s9", store.ActiveID())
	list := store.Sessions()
	require.Len(t, list, 3)
	assert.Equal(t, "s9", list[0].SessionID)

	// a stale listing that predates the create must not move the selection
	_, err = store.List(context.Background(), customer(), false)
	require.NoError(t, err)
	assert.Equal(t, "s9", store.ActiveID())
}

func TestCreateFailureLeavesListIntact(t *testing.T) {
	api := &fakeAPI{list: sessionsOf("s1"), createErr: &domain.NetworkError{Op: "create session"}}
	store := New(api)
	_, err := store.List(context.Background(), customer(), false)
	require.NoError(t, err)

	_, err = store.Create(context.Background(), customer())
	require.Error(t, err)
	assert.Len(t, store.Sessions(), 1)
	assert.Equal(t, "s1", store.ActiveID())
}

func TestApplyCreatedDeduplicates(t *testing.T) {
	store := New(&fakeAPI{})
	store.ApplyList(sessionsOf("s2", "s1"))
	store.ApplyCreated(domain.Session{SessionID: "s1", Status: domain.StatusActive})
	list := store.Sessions()
	require.Len(t, list, 2)
	assert.Equal(t, "s1", list[0].SessionID)
	assert.Equal(t, "s2", list[1].SessionID)
}

func TestCloseUpdatesStatus(t *testing.T) {
	api := &fakeAPI{list: sessionsOf("s1")}
	store := New(api)
	_, err := store.List(context.Background(), customer(), false)
	require.NoError(t, err)

	require.NoError(t, store.Close(context.Background(), customer(), "s1"))
	active, ok := store.Active()
	require.True(t, ok)
	assert.Equal(t, domain.StatusClosed, active.Status)
}

func TestSignedOutListClears(t *testing.T) {
	api := &fakeAPI{list: sessionsOf("s1")}
	store := New(api)
	_, err := store.List(context.Background(), customer(), false)
	require.NoError(t, err)

	list, err := store.List(context.Background(), auth.Anonymous(), false)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, "", store.ActiveID())
	assert.Equal(t, 1, api.listCalls)
}
