// Package supportapi is the HTTP/JSON client for the remote support API.
package supportapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"supportdesk/internal/domain"
)

const (
	DefaultPrefix  = "/v1"
	defaultTimeout = 20 * time.Second
	maxErrorDetail = 240
)

// Client calls the support API. It is safe for concurrent use; it holds no
// per-user state.
type Client struct {
	baseURL    string
	prefix     string
	httpClient *http.Client
	log        *logrus.Logger
}

// New builds a client for baseURL, versioned endpoints living under prefix.
func New(baseURL, prefix string, timeout time.Duration, log *logrus.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		prefix:     normalizePrefix(prefix),
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" || prefix == "/" {
		return ""
	}
	return "/" + strings.Trim(prefix, "/")
}

type loginRequest struct {
	Email    string `json:"email"`
	Passcode string `json:"passcode"`
}

type loginResponse struct {
	Success bool             `json:"success"`
	User    *domain.Identity `json:"user"`
}

func (c *Client) Login(ctx context.Context, email, passcode string) (domain.Identity, error) {
	var resp loginResponse
	if err := c.do(ctx, "login", http.MethodPost, c.prefix+"/auth/login", nil, loginRequest{Email: email, Passcode: passcode}, &resp); err != nil {
		return domain.Identity{}, err
	}
	if !resp.Success || resp.User == nil || strings.TrimSpace(resp.User.Email) == "" {
		return domain.Identity{}, &domain.NetworkError{Op: "login", Detail: "login rejected"}
	}
	identity := *resp.User
	if identity.Role == "" {
		identity.Role = domain.RoleCustomer
	}
	return identity, nil
}

func (c *Client) ListSessions(ctx context.Context, userID string, includeClosed bool) ([]domain.Session, error) {
	query := url.Values{}
	query.Set("user_id", userID)
	query.Set("include_closed", fmt.Sprintf("%t", includeClosed))
	var resp struct {
		Sessions []domain.Session `json:"sessions"`
	}
	if err := c.do(ctx, "list sessions", http.MethodGet, c.prefix+"/sessions", query, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Sessions == nil {
		resp.Sessions = []domain.Session{}
	}
	return resp.Sessions, nil
}

func (c *Client) CreateSession(ctx context.Context, userID string) (domain.Session, error) {
	var resp domain.Session
	body := map[string]string{"user_id": userID}
	if err := c.do(ctx, "create session", http.MethodPost, c.prefix+"/sessions", nil, body, &resp); err != nil {
		return domain.Session{}, err
	}
	if resp.SessionID == "" {
		return domain.Session{}, &domain.NetworkError{Op: "create session", Detail: "response missing session_id"}
	}
	if resp.UserID == "" {
		resp.UserID = userID
	}
	return resp, nil
}

func (c *Client) CloseSession(ctx context.Context, sessionID, userID string) (domain.CloseResult, error) {
	query := url.Values{}
	query.Set("user_id", userID)
	var resp domain.CloseResult
	path := c.prefix + "/sessions/" + url.PathEscape(sessionID) + "/close"
	if err := c.do(ctx, "close session", http.MethodPost, path, query, map[string]any{}, &resp); err != nil {
		return domain.CloseResult{}, err
	}
	if resp.SessionID == "" {
		resp.SessionID = sessionID
	}
	if resp.Status == "" {
		resp.Status = domain.StatusClosed
	}
	return resp, nil
}

func (c *Client) ListMessages(ctx context.Context, sessionID, userID string) ([]domain.Message, error) {
	query := url.Values{}
	query.Set("user_id", userID)
	var resp struct {
		Messages []domain.Message `json:"messages"`
	}
	path := c.prefix + "/sessions/" + url.PathEscape(sessionID) + "/messages"
	if err := c.do(ctx, "list messages", http.MethodGet, path, query, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Messages == nil {
		resp.Messages = []domain.Message{}
	}
	return resp.Messages, nil
}

func (c *Client) SendChat(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	var resp domain.ChatResponse
	if err := c.do(ctx, "send message", http.MethodPost, c.prefix+"/chat", nil, req, &resp); err != nil {
		return domain.ChatResponse{}, err
	}
	return resp, nil
}

// ListEscalations returns the pending queue; with agentID set the server
// also folds in sessions assigned to that agent.
func (c *Client) ListEscalations(ctx context.Context, agentID string) ([]domain.EscalationSummary, error) {
	var query url.Values
	if agentID != "" {
		query = url.Values{}
		query.Set("agent_id", agentID)
	}
	var resp struct {
		Escalations []domain.EscalationSummary `json:"escalations"`
	}
	if err := c.do(ctx, "list escalations", http.MethodGet, c.prefix+"/escalations", query, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Escalations == nil {
		resp.Escalations = []domain.EscalationSummary{}
	}
	return resp.Escalations, nil
}

func (c *Client) GetEscalation(ctx context.Context, sessionID string) (domain.EscalationDetail, error) {
	var resp domain.EscalationDetail
	path := c.prefix + "/escalations/" + url.PathEscape(sessionID)
	if err := c.do(ctx, "escalation detail", http.MethodGet, path, nil, nil, &resp); err != nil {
		return domain.EscalationDetail{}, err
	}
	if resp.Messages == nil {
		resp.Messages = []domain.Message{}
	}
	return resp, nil
}

func (c *Client) ClaimEscalation(ctx context.Context, sessionID, agentID string) (domain.EscalationSummary, error) {
	var resp domain.EscalationSummary
	path := c.prefix + "/escalations/" + url.PathEscape(sessionID) + "/claim"
	if err := c.do(ctx, "claim escalation", http.MethodPost, path, nil, map[string]string{"agent_id": agentID}, &resp); err != nil {
		return domain.EscalationSummary{}, err
	}
	return resp, nil
}

func (c *Client) SendAgentMessage(ctx context.Context, sessionID, agentID, content string) (domain.AgentReplyResponse, error) {
	var resp domain.AgentReplyResponse
	path := c.prefix + "/escalations/" + url.PathEscape(sessionID) + "/messages"
	body := map[string]string{"agent_id": agentID, "content": content}
	if err := c.do(ctx, "agent send", http.MethodPost, path, nil, body, &resp); err != nil {
		return domain.AgentReplyResponse{}, err
	}
	if resp.Messages == nil {
		resp.Messages = []domain.Message{}
	}
	return resp, nil
}

// Health is mounted outside the versioned prefix.
func (c *Client) Health(ctx context.Context) (domain.Health, error) {
	var resp domain.Health
	if err := c.do(ctx, "health", http.MethodGet, "/health", nil, nil, &resp); err != nil {
		return domain.Health{}, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return &domain.NetworkError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &domain.NetworkError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithFields(logrus.Fields{"op": op, "method": method, "path": path}).WithError(err).Warn("support api request failed")
		return &domain.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	entry := c.log.WithFields(logrus.Fields{
		"op":          op,
		"method":      method,
		"path":        path,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := errorDetail(payload)
		entry.WithField("detail", detail).Warn("support api returned error status")
		return &domain.NetworkError{Op: op, StatusCode: resp.StatusCode, Detail: detail}
	}
	entry.Debug("support api request")

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return &domain.NetworkError{Op: op, StatusCode: resp.StatusCode, Err: errors.New("non-json response payload")}
	}
	return nil
}

// errorDetail pulls FastAPI-style {"detail": "..."} out of an error body,
// falling back to a compact excerpt of the raw payload.
func errorDetail(payload []byte) string {
	var parsed struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(payload, &parsed); err == nil {
		if text, ok := parsed.Detail.(string); ok && strings.TrimSpace(text) != "" {
			return compact(text, maxErrorDetail)
		}
	}
	var echoErr struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &echoErr); err == nil && strings.TrimSpace(echoErr.Message) != "" {
		return compact(echoErr.Message, maxErrorDetail)
	}
	return compact(string(payload), maxErrorDetail)
}

func compact(text string, limit int) string {
	runes := []rune(strings.Join(strings.Fields(text), " "))
	if len(runes) <= limit {
		return string(runes)
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}
