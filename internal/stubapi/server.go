package stubapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"supportdesk/internal/domain"
)

// Config seeds the server's accounts.
type Config struct {
	Prefix           string
	AgentEmail       string
	AgentPasscode    string
	CustomerEmail    string
	CustomerPasscode string
}

type Server struct {
	prefix string
	store  *store
	log    *logrus.Logger
}

func New(cfg Config, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	prefix := "/" + strings.Trim(strings.TrimSpace(cfg.Prefix), "/")
	if prefix == "/" {
		prefix = ""
	}
	s := &Server{prefix: prefix, store: newStore(), log: log}
	if cfg.AgentEmail != "" {
		s.AddAccount(domain.Identity{Email: cfg.AgentEmail, FirstName: "Support", LastName: "Agent", Role: domain.RoleAgent}, cfg.AgentPasscode)
	}
	if cfg.CustomerEmail != "" {
		s.AddAccount(domain.Identity{Email: cfg.CustomerEmail, FirstName: "Demo", LastName: "Customer", Role: domain.RoleCustomer}, cfg.CustomerPasscode)
	}
	return s
}

// AddAccount registers a login.
func (s *Server) AddAccount(identity domain.Identity, passcode string) {
	s.store.addAccount(identity, passcode)
}

// Echo builds the HTTP server.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(s.requestLog)

	s.RegisterRoutes(e)
	return e
}

func (s *Server) RegisterRoutes(e *echo.Echo) {
	v := e.Group(s.prefix)
	v.POST("/auth/login", s.Login)

	v.GET("/sessions", s.ListSessions)
	v.POST("/sessions", s.CreateSession)
	v.GET("/sessions/:session_id/messages", s.ListMessages)
	v.POST("/sessions/:session_id/close", s.CloseSession)

	v.POST("/chat", s.Chat)

	v.GET("/escalations", s.ListEscalations)
	v.GET("/escalations/:session_id", s.GetEscalation)
	v.POST("/escalations/:session_id/claim", s.ClaimEscalation)
	v.POST("/escalations/:session_id/messages", s.AgentMessage)

	e.GET("/health", s.Health)
}

func (s *Server) requestLog(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		s.log.WithFields(logrus.Fields{
			"method": c.Request().Method,
			"path":   c.Path(),
			"status": c.Response().Status,
		}).Debug("request")
		return err
	}
}

func detail(c echo.Context, status int, text string) error {
	return c.JSON(status, map[string]string{"detail": text})
}

func fail(c echo.Context, err error) error {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return detail(c, apiErr.status, apiErr.detail)
	}
	return detail(c, http.StatusInternalServerError, err.Error())
}

// Login authenticates email/passcode.
// POST /auth/login
func (s *Server) Login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Passcode string `json:"passcode"`
	}
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid request body")
	}
	identity, ok := s.store.login(req.Email, req.Passcode)
	if !ok {
		s.log.WithField("email", req.Email).Info("login rejected")
		return detail(c, http.StatusUnauthorized, "Invalid credentials")
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "user": identity})
}

// ListSessions lists a customer's sessions.
// GET /sessions?user_id=&include_closed=
func (s *Server) ListSessions(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return detail(c, http.StatusBadRequest, "user_id is required")
	}
	includeClosed, _ := strconv.ParseBool(c.QueryParam("include_closed"))
	return c.JSON(http.StatusOK, map[string]any{"sessions": s.store.listSessions(userID, includeClosed)})
}

// CreateSession opens a session for user_id.
// POST /sessions
func (s *Server) CreateSession(c echo.Context) error {
	var req struct {
		UserID    string `json:"user_id"`
		SessionID string `json:"session_id"`
	}
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == "" {
		return detail(c, http.StatusBadRequest, "user_id is required")
	}
	session, err := s.store.createSession(req.SessionID, req.UserID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, session)
}

// ListMessages returns a session's transcript to its owner.
// GET /sessions/:session_id/messages?user_id=
func (s *Server) ListMessages(c echo.Context) error {
	msgs, err := s.store.messages(c.Param("session_id"), c.QueryParam("user_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": msgs})
}

// CloseSession marks a session closed.
// POST /sessions/:session_id/close?user_id=
func (s *Server) CloseSession(c echo.Context) error {
	result, err := s.store.closeSession(c.Param("session_id"), c.QueryParam("user_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// Chat answers a customer query.
// POST /chat
func (s *Server) Chat(c echo.Context) error {
	var req domain.ChatRequest
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == "" {
		return detail(c, http.StatusBadRequest, "user_id is required")
	}
	if strings.TrimSpace(req.Query) == "" {
		return detail(c, http.StatusBadRequest, "query is required")
	}
	resp, err := s.store.chat(req)
	if err != nil {
		return fail(c, err)
	}
	if resp.ShouldEscalate {
		s.log.WithField("session_id", resp.SessionID).Info("session handed off")
	}
	return c.JSON(http.StatusOK, resp)
}

// ListEscalations returns the pending queue and agent_id's sessions.
// GET /escalations?agent_id=
func (s *Server) ListEscalations(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"escalations": s.store.escalations(c.QueryParam("agent_id"))})
}

// GetEscalation returns a session's metadata and transcript.
// GET /escalations/:session_id
func (s *Server) GetEscalation(c echo.Context) error {
	d, err := s.store.detail(c.Param("session_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// ClaimEscalation assigns a handed-off session to an agent.
// POST /escalations/:session_id/claim
func (s *Server) ClaimEscalation(c echo.Context) error {
	var req struct {
		AgentID string `json:"agent_id"`
	}
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid request body")
	}
	if req.AgentID == "" {
		return detail(c, http.StatusBadRequest, "agent_id is required")
	}
	summary, err := s.store.claim(c.Param("session_id"), req.AgentID)
	if err != nil {
		return fail(c, err)
	}
	s.log.WithFields(logrus.Fields{"session_id": summary.SessionID, "agent_id": req.AgentID}).Info("escalation claimed")
	return c.JSON(http.StatusOK, summary)
}

// AgentMessage posts an agent reply.
// POST /escalations/:session_id/messages
func (s *Server) AgentMessage(c echo.Context) error {
	var req struct {
		AgentID string `json:"agent_id"`
		Content string `json:"content"`
	}
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "invalid request body")
	}
	if req.AgentID == "" {
		return detail(c, http.StatusBadRequest, "agent_id is required")
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return detail(c, http.StatusBadRequest, "content is required")
	}
	resp, err := s.store.agentReply(c.Param("session_id"), req.AgentID, content)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Health reports backing store status.
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, domain.Health{Status: "ok", Redis: "memory", Mongo: "memory"})
}
