// Package sessions keeps the signed-in customer's session list and which
// session is open in the viewport.
package sessions

import (
	"context"
	"errors"
	"fmt"

	"supportdesk/internal/auth"
	"supportdesk/internal/domain"
)

// API is the part of the support API the store needs.
type API interface {
	ListSessions(ctx context.Context, userID string, includeClosed bool) ([]domain.Session, error)
	CreateSession(ctx context.Context, userID string) (domain.Session, error)
	CloseSession(ctx context.Context, sessionID, userID string) (domain.CloseResult, error)
}

var errSignedOut = errors.New("not signed in")

// Store is owned by a single goroutine (the UI loop). Network calls can run
// elsewhere through the Fetch* helpers; their results are committed with the
// Apply* methods.
type Store struct {
	api API

	sessions      []domain.Session
	activeID      string
	includeClosed bool
	loaded        bool
	err           error
}

func New(api API) *Store {
	return &Store{api: api, sessions: []domain.Session{}}
}

// Sessions returns a copy of the list in server order.
func (s *Store) Sessions() []domain.Session {
	out := make([]domain.Session, len(s.sessions))
	copy(out, s.sessions)
	return out
}

func (s *Store) ActiveID() string {
	return s.activeID
}

// Active returns the active session when it is present in the loaded list.
func (s *Store) Active() (domain.Session, bool) {
	idx := s.indexOf(s.activeID)
	if idx < 0 {
		return domain.Session{}, false
	}
	return s.sessions[idx], true
}

// SetActive selects id locally. The id does not have to be loaded yet.
func (s *Store) SetActive(id string) {
	s.activeID = id
}

func (s *Store) IncludeClosed() bool {
	return s.includeClosed
}

func (s *Store) SetIncludeClosed(include bool) {
	s.includeClosed = include
}

// Loaded reports whether a list has been committed at least once.
func (s *Store) Loaded() bool {
	return s.loaded
}

// Err is the last list/create/close failure, cleared by the next success.
func (s *Store) Err() error {
	return s.err
}

// Reset drops everything, used when the identity changes.
func (s *Store) Reset() {
	s.sessions = []domain.Session{}
	s.activeID = ""
	s.loaded = false
	s.err = nil
}

// FetchList performs the list call without touching store state.
func (s *Store) FetchList(ctx context.Context, who auth.Context, includeClosed bool) ([]domain.Session, error) {
	if !who.Authenticated() {
		return []domain.Session{}, nil
	}
	list, err := s.api.ListSessions(ctx, who.UserID(), includeClosed)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	return list, nil
}

// ApplyList commits a fetched list. The first committed list picks the
// first session when nothing is active; later refreshes never move the
// selection.
func (s *Store) ApplyList(list []domain.Session) {
	s.sessions = make([]domain.Session, len(list))
	copy(s.sessions, list)
	s.err = nil
	if !s.loaded && s.activeID == "" && len(s.sessions) > 0 {
		s.activeID = s.sessions[0].SessionID
	}
	s.loaded = true
}

// Fail records err and keeps the previous list and selection.
func (s *Store) Fail(err error) {
	s.err = err
}

// List loads sessions for who. On failure the previous list stays in place.
func (s *Store) List(ctx context.Context, who auth.Context, includeClosed bool) ([]domain.Session, error) {
	if !who.Authenticated() {
		s.Reset()
		return s.Sessions(), nil
	}
	s.includeClosed = includeClosed
	list, err := s.FetchList(ctx, who, includeClosed)
	if err != nil {
		s.Fail(err)
		return s.Sessions(), err
	}
	s.ApplyList(list)
	return s.Sessions(), nil
}

func (s *Store) FetchCreate(ctx context.Context, who auth.Context) (domain.Session, error) {
	if !who.Authenticated() {
		return domain.Session{}, errSignedOut
	}
	created, err := s.api.CreateSession(ctx, who.UserID())
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to create a new session: %w", err)
	}
	return created, nil
}

// ApplyCreated puts the session at the front and makes it active without
// waiting for a refetch that might not include it yet.
func (s *Store) ApplyCreated(created domain.Session) {
	if idx := s.indexOf(created.SessionID); idx >= 0 {
		s.sessions = append(s.sessions[:idx], s.sessions[idx+1:]...)
	}
	s.sessions = append([]domain.Session{created}, s.sessions...)
	s.activeID = created.SessionID
	s.loaded = true
	s.err = nil
}

func (s *Store) Create(ctx context.Context, who auth.Context) (domain.Session, error) {
	created, err := s.FetchCreate(ctx, who)
	if err != nil {
		s.Fail(err)
		return domain.Session{}, err
	}
	s.ApplyCreated(created)
	return created, nil
}

func (s *Store) FetchClose(ctx context.Context, who auth.Context, sessionID string) (domain.CloseResult, error) {
	if !who.Authenticated() {
		return domain.CloseResult{}, errSignedOut
	}
	result, err := s.api.CloseSession(ctx, sessionID, who.UserID())
	if err != nil {
		return domain.CloseResult{}, fmt.Errorf("failed to close session: %w", err)
	}
	return result, nil
}

// ApplyClosed mirrors the server's status onto the local copy.
func (s *Store) ApplyClosed(result domain.CloseResult) {
	s.err = nil
	idx := s.indexOf(result.SessionID)
	if idx < 0 {
		return
	}
	s.sessions[idx].Status = result.Status
	if result.ClosedAt != "" {
		s.sessions[idx].UpdatedAt = result.ClosedAt
	}
}

func (s *Store) Close(ctx context.Context, who auth.Context, sessionID string) error {
	result, err := s.FetchClose(ctx, who, sessionID)
	if err != nil {
		s.Fail(err)
		return err
	}
	s.ApplyClosed(result)
	return nil
}

func (s *Store) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, session := range s.sessions {
		if session.SessionID == id {
			return i
		}
	}
	return -1
}
