// Package tui is the bubbletea front end: the login form, the customer
// workspace and the agent dashboard. Network calls run inside tea.Cmd
// closures that only use the stores' Fetch* methods; results come back as
// messages and are committed in Update.
package tui

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"

	"supportdesk/internal/auth"
	"supportdesk/internal/domain"
	"supportdesk/internal/escalations"
	"supportdesk/internal/sessions"
	"supportdesk/internal/transcript"
)

// API is everything the screens call on the support API.
type API interface {
	auth.LoginAPI
	sessions.API
	transcript.API
	escalations.API
	Health(ctx context.Context) (domain.Health, error)
}

type Options struct {
	APIURL        string
	HTTPTimeout   time.Duration
	PollInterval  time.Duration
	IncludeClosed bool
	// SessionID is opened once after sign-in.
	SessionID string
}

type screenID int

const (
	screenLogin screenID = iota
	screenCustomer
	screenAgent
	screenHelp
)

type focusID int

const (
	focusInput focusID = iota
	focusSidebar
)

type loginField int

const (
	fieldEmail loginField = iota
	fieldPasscode
)

type model struct {
	opts  Options
	api   API
	authn *auth.Authenticator
	log   *logrus.Logger

	// epoch changes on every sign-in and sign-out; completions from an
	// earlier epoch are dropped.
	epoch      int
	who        auth.Context
	sessions   *sessions.Store
	transcript *transcript.Reconciler
	queue      *escalations.Queue
	desk       *escalations.Desk
	deepLink   string

	health    domain.Health
	healthErr error

	ready       bool
	screen      screenID
	prevScreen  screenID
	focus       focusID
	loginField  loginField
	cursor      int
	statusLine  string
	logs        []string
	inflight    bool
	refreshing  bool
	lastRefresh time.Time
	quitConfirm bool

	width  int
	height int

	email    textinput.Model
	passcode textinput.Model
	input    textinput.Model
	timeline viewport.Model
	sidebar  viewport.Model
	spinner  spinner.Model

	theme uiTheme
}

type restoreDoneMsg struct {
	who auth.Context
}

type loginDoneMsg struct {
	who auth.Context
	err error
}

type logoutDoneMsg struct{}

type healthDoneMsg struct {
	health domain.Health
	err    error
}

// refreshDoneMsg carries one polling round for the current screen.
type refreshDoneMsg struct {
	epoch int

	sessions    []domain.Session
	sessionsErr error
	listed      bool

	transcriptTicket transcript.Ticket
	messages         []domain.Message
	messagesErr      error
	loadedMessages   bool

	escalations   []domain.EscalationSummary
	escalationErr error
	listedQueue   bool

	deskTicket escalations.Ticket
	detail     domain.EscalationDetail
	detailErr  error
	loadedDesk bool
}

type sessionsDoneMsg struct {
	epoch    int
	sessions []domain.Session
	err      error
}

type sessionCreatedMsg struct {
	epoch   int
	session domain.Session
	err     error
}

type sessionClosedMsg struct {
	epoch  int
	result domain.CloseResult
	err    error
}

type transcriptDoneMsg struct {
	epoch    int
	ticket   transcript.Ticket
	messages []domain.Message
	err      error
}

type sendDoneMsg struct {
	epoch   int
	pending transcript.Pending
	resp    domain.ChatResponse
	err     error
}

type queueDoneMsg struct {
	epoch int
	items []domain.EscalationSummary
	err   error
}

type claimDoneMsg struct {
	epoch     int
	sessionID string
	summary   domain.EscalationSummary
	err       error
}

type detailDoneMsg struct {
	epoch  int
	ticket escalations.Ticket
	detail domain.EscalationDetail
	err    error
}

type replyDoneMsg struct {
	epoch   int
	ticket  escalations.Ticket
	content string
	resp    domain.AgentReplyResponse
	err     error
}

type tickMsg time.Time

// New builds the root bubbletea model.
func New(api API, authn *auth.Authenticator, opts Options, log *logrus.Logger) tea.Model {
	return newModel(api, authn, opts, log)
}

func newModel(api API, authn *auth.Authenticator, opts Options, log *logrus.Logger) model {
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 20 * time.Second
	}

	email := textinput.New()
	email.Prompt = "Email    "
	email.Placeholder = "you@example.com"
	email.CharLimit = 254
	email.Focus()

	passcode := textinput.New()
	passcode.Prompt = "Passcode "
	passcode.EchoMode = textinput.EchoPassword
	passcode.EchoCharacter = '•'
	passcode.CharLimit = 128

	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#2dd4bf"))

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true
	timeline.MouseWheelDelta = 4
	sidebar := viewport.New(0, 0)
	sidebar.MouseWheelEnabled = true
	sidebar.MouseWheelDelta = 4

	m := model{
		opts:       opts,
		api:        api,
		authn:      authn,
		log:        log,
		who:        auth.Anonymous(),
		deepLink:   opts.SessionID,
		statusLine: "starting...",
		logs:       []string{},
		screen:     screenLogin,
		email:      email,
		passcode:   passcode,
		input:      input,
		timeline:   timeline,
		sidebar:    sidebar,
		spinner:    sp,
		theme:      newTheme(),
	}
	m.resetStores()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.restoreCmd(),
		m.healthCmd(),
		tickEvery(m.opts.PollInterval),
	)
}

// resetStores rebuilds every identity-bound store for m.who.
func (m *model) resetStores() {
	m.sessions = sessions.New(m.api)
	m.sessions.SetIncludeClosed(m.opts.IncludeClosed)
	m.transcript = transcript.New(m.api)
	m.queue = escalations.NewQueue(m.api, m.who)
	m.desk = escalations.NewDesk(m.queue)
	m.cursor = 0
}

// enterWorkspace switches to who's screen and starts its first load.
func (m *model) enterWorkspace(who auth.Context) tea.Cmd {
	m.epoch++
	m.who = who
	m.resetStores()
	m.inflight = false
	m.refreshing = false
	m.ready = true
	m.passcode.SetValue("")

	if !who.Authenticated() {
		m.screen = screenLogin
		m.loginField = fieldEmail
		m.email.Focus()
		m.passcode.Blur()
		m.input.Blur()
		m.renderPanes()
		return nil
	}

	m.email.Blur()
	m.passcode.Blur()
	m.focus = focusInput
	m.input.Focus()
	m.input.SetValue("")

	var cmds []tea.Cmd
	link := m.deepLink
	m.deepLink = ""
	if who.IsAgent() {
		m.screen = screenAgent
		m.input.Placeholder = "Reply to the customer"
		m.statusLine = "signed in as agent " + who.UserID()
		cmds = append(cmds, m.queueCmd())
		if link != "" {
			ticket := m.desk.Select(link)
			cmds = append(cmds, m.detailCmd(ticket))
		}
	} else {
		m.screen = screenCustomer
		m.input.Placeholder = "Ask a question"
		m.statusLine = "signed in as " + who.DisplayName()
		if link != "" {
			m.sessions.SetActive(link)
			ticket := m.transcript.Activate(link)
			cmds = append(cmds, m.transcriptCmd(ticket))
		}
		cmds = append(cmds, m.sessionsCmd())
	}
	m.appendLog(m.statusLine)
	m.renderPanes()
	return tea.Batch(cmds...)
}
