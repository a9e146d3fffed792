package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"supportdesk/internal/auth"
	"supportdesk/internal/domain"
	"supportdesk/internal/lifecycle"
)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case restoreDoneMsg:
		cmds = append(cmds, m.enterWorkspace(msg.who))
		if !msg.who.Authenticated() {
			m.statusLine = "sign in to continue"
		}
	case loginDoneMsg:
		m.inflight = false
		if msg.err != nil {
			m.logError(msg.err)
			m.statusLine = "login failed: " + userMessage(msg.err)
			m.passcode.SetValue("")
			break
		}
		cmds = append(cmds, m.enterWorkspace(msg.who))
	case logoutDoneMsg:
		m.appendLog("identity cache cleared")
	case healthDoneMsg:
		m.health = msg.health
		m.healthErr = msg.err
		if msg.err != nil {
			m.log.WithError(msg.err).Debug("health check failed")
		}
	case refreshDoneMsg:
		if msg.epoch != m.epoch {
			break
		}
		m.refreshing = false
		m.lastRefresh = time.Now()
		cmds = append(cmds, m.applyRefresh(msg))
		m.renderPanes()
	case sessionsDoneMsg:
		if msg.epoch != m.epoch {
			break
		}
		if msg.err != nil {
			m.sessions.Fail(msg.err)
			m.logError(msg.err)
			break
		}
		cmds = append(cmds, m.applySessions(msg.sessions))
		m.renderPanes()
	case sessionCreatedMsg:
		if msg.epoch != m.epoch {
			break
		}
		m.inflight = false
		if msg.err != nil {
			m.sessions.Fail(msg.err)
			m.logError(msg.err)
			break
		}
		m.sessions.ApplyCreated(msg.session)
		ticket := m.transcript.Activate(msg.session.SessionID)
		m.transcript.ApplyLoaded(ticket, []domain.Message{})
		m.cursor = 0
		m.setFocus(focusInput)
		m.statusLine = "new session started"
		m.appendLog(m.statusLine + " " + shortID(msg.session.SessionID))
		m.renderPanes()
	case sessionClosedMsg:
		if msg.epoch != m.epoch {
			break
		}
		m.inflight = false
		if msg.err != nil {
			m.sessions.Fail(msg.err)
			m.logError(msg.err)
			break
		}
		m.sessions.ApplyClosed(msg.result)
		m.statusLine = "session closed"
		m.appendLog(m.statusLine + " " + shortID(msg.result.SessionID))
		cmds = append(cmds, m.sessionsCmd())
		m.renderPanes()
	case transcriptDoneMsg:
		if msg.epoch != m.epoch {
			break
		}
		if msg.err != nil {
			if m.transcript.FailLoad(msg.ticket, msg.err) {
				m.logError(msg.err)
			}
			break
		}
		m.transcript.ApplyLoaded(msg.ticket, msg.messages)
		m.renderPanes()
	case sendDoneMsg:
		if msg.epoch != m.epoch {
			break
		}
		m.inflight = false
		cmds = append(cmds, m.finishSend(msg))
		m.renderPanes()
	case queueDoneMsg:
		if msg.epoch != m.epoch {
			break
		}
		if msg.err != nil {
			m.queue.Fail(msg.err)
			m.logError(msg.err)
			break
		}
		m.queue.ApplyPending(msg.items)
		cmds = append(cmds, m.autoSelectDesk())
		m.renderPanes()
	case claimDoneMsg:
		if msg.epoch != m.epoch {
			break
		}
		m.inflight = false
		if msg.err != nil {
			m.queue.Fail(msg.err)
			m.logError(msg.err)
			break
		}
		m.queue.ApplyClaim(msg.summary)
		ticket := m.desk.Select(msg.summary.SessionID)
		m.setFocus(focusInput)
		m.statusLine = "claimed " + shortID(msg.summary.SessionID)
		m.appendLog(m.statusLine)
		cmds = append(cmds, m.detailCmd(ticket))
		m.renderPanes()
	case detailDoneMsg:
		if msg.epoch != m.epoch {
			break
		}
		if msg.err != nil {
			if m.desk.FailDetail(msg.ticket, msg.err) {
				m.logError(msg.err)
			}
			break
		}
		m.desk.ApplyDetail(msg.ticket, msg.detail)
		m.renderPanes()
	case replyDoneMsg:
		if msg.epoch != m.epoch {
			break
		}
		m.inflight = false
		if msg.err != nil {
			m.desk.FailDetail(msg.ticket, msg.err)
			m.logError(msg.err)
			if strings.TrimSpace(m.input.Value()) == "" {
				m.input.SetValue(msg.content)
			}
			break
		}
		m.desk.ApplyReply(msg.ticket, msg.content, msg.resp)
		m.statusLine = "reply sent"
		m.renderPanes()
	case tickMsg:
		if m.ready && m.who.Authenticated() && !m.refreshing && !m.inflight {
			m.refreshing = true
			cmds = append(cmds, m.refreshCmd(), m.healthCmd())
		}
		cmds = append(cmds, tickEvery(m.opts.PollInterval))
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderPanes()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	case tea.MouseMsg:
		if m.screen != screenCustomer && m.screen != screenAgent {
			break
		}
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		cmds = append(cmds, cmd)
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.quitConfirm {
			switch msg.String() {
			case "y", "Y", "enter":
				return m, tea.Quit
			case "n", "N", "esc":
				m.quitConfirm = false
				m.statusLine = "quit canceled"
			}
			return m, nil
		}
		switch m.screen {
		case screenLogin:
			cmds = append(cmds, m.handleLoginKey(msg))
		case screenHelp:
			switch msg.String() {
			case "esc", "f1", "?", "q":
				m.screen = m.prevScreen
				m.renderPanes()
			}
		default:
			cmds = append(cmds, m.handleWorkspaceKey(msg))
		}
	}
	return m, tea.Batch(cmds...)
}

func (m *model) applyRefresh(msg refreshDoneMsg) tea.Cmd {
	var cmds []tea.Cmd
	if msg.listed {
		if msg.sessionsErr != nil {
			m.sessions.Fail(msg.sessionsErr)
			m.logError(msg.sessionsErr)
		} else {
			cmds = append(cmds, m.applySessions(msg.sessions))
		}
	}
	if msg.loadedMessages {
		if msg.messagesErr != nil {
			if m.transcript.FailLoad(msg.transcriptTicket, msg.messagesErr) {
				m.logError(msg.messagesErr)
			}
		} else {
			m.transcript.ApplyLoaded(msg.transcriptTicket, msg.messages)
		}
	}
	if msg.listedQueue {
		if msg.escalationErr != nil {
			m.queue.Fail(msg.escalationErr)
			m.logError(msg.escalationErr)
		} else {
			m.queue.ApplyPending(msg.escalations)
			cmds = append(cmds, m.autoSelectDesk())
		}
	}
	if msg.loadedDesk {
		if msg.detailErr != nil {
			if m.desk.FailDetail(msg.deskTicket, msg.detailErr) {
				m.logError(msg.detailErr)
			}
		} else {
			m.desk.ApplyDetail(msg.deskTicket, msg.detail)
		}
	}
	return tea.Batch(cmds...)
}

// applySessions commits a session list and opens whichever session the
// store now considers active.
func (m *model) applySessions(list []domain.Session) tea.Cmd {
	m.sessions.ApplyList(list)
	m.cursor = clampInt(m.cursor, 0, maxInt(0, len(list)-1))
	if m.transcript.SessionID() == "" && m.transcript.Sending() {
		// The send in flight will adopt the session the server creates.
		m.sessions.SetActive("")
		return nil
	}
	id := m.sessions.ActiveID()
	if id == "" || id == m.transcript.SessionID() {
		return nil
	}
	ticket := m.transcript.Activate(id)
	return m.transcriptCmd(ticket)
}

func (m *model) autoSelectDesk() tea.Cmd {
	ticket, ok := m.desk.AutoSelect()
	if !ok {
		return nil
	}
	return m.detailCmd(ticket)
}

func (m *model) finishSend(msg sendDoneMsg) tea.Cmd {
	if msg.err != nil {
		if m.transcript.Rollback(msg.pending, msg.err) {
			m.logError(msg.err)
			if strings.TrimSpace(m.input.Value()) == "" {
				m.input.SetValue(msg.pending.Content)
			}
		}
		return nil
	}
	wasEscalated := m.transcript.Escalated()
	if !m.transcript.Confirm(msg.pending, msg.resp) {
		return nil
	}
	var cmds []tea.Cmd
	if id := m.transcript.SessionID(); id != "" && id != m.sessions.ActiveID() {
		m.sessions.SetActive(id)
		cmds = append(cmds, m.sessionsCmd())
	}
	if m.transcript.Escalated() && !wasEscalated {
		m.statusLine = "connecting you with a support agent"
		m.appendLog(m.statusLine)
		cmds = append(cmds, m.sessionsCmd())
	} else {
		m.statusLine = ternary(msg.resp.CacheHit, "answered from cache", "answered")
	}
	return tea.Batch(cmds...)
}

func (m *model) handleLoginKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.beginQuitConfirm()
		return nil
	case "tab", "shift+tab", "up", "down":
		m.setLoginField(ternary(m.loginField == fieldEmail, fieldPasscode, fieldEmail))
		return nil
	case "enter":
		if m.loginField == fieldEmail && m.passcode.Value() == "" {
			m.setLoginField(fieldPasscode)
			return nil
		}
		return m.submitLogin()
	}
	var cmd tea.Cmd
	if m.loginField == fieldEmail {
		m.email, cmd = m.email.Update(msg)
	} else {
		m.passcode, cmd = m.passcode.Update(msg)
	}
	return cmd
}

func (m *model) setLoginField(field loginField) {
	m.loginField = field
	if field == fieldEmail {
		m.passcode.Blur()
		m.email.Focus()
		return
	}
	m.email.Blur()
	m.passcode.Focus()
}

func (m *model) submitLogin() tea.Cmd {
	if m.inflight {
		return nil
	}
	email := strings.TrimSpace(m.email.Value())
	passcode := m.passcode.Value()
	if err := auth.Validate(email, passcode); err != nil {
		m.statusLine = "login failed: " + userMessage(err)
		var verr *domain.ValidationError
		if errors.As(err, &verr) && verr.Field == "passcode" {
			m.setLoginField(fieldPasscode)
		} else {
			m.setLoginField(fieldEmail)
		}
		return nil
	}
	m.inflight = true
	m.statusLine = "signing in..."
	return m.loginCmd(email, passcode)
}

func (m *model) handleWorkspaceKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "f1":
		m.openHelp()
		return nil
	case "ctrl+l":
		prev := m.who
		cmd := m.enterWorkspace(auth.Anonymous())
		m.statusLine = "signed out"
		m.appendLog(m.statusLine)
		return tea.Batch(cmd, m.logoutCmd(prev))
	case "ctrl+r":
		if m.refreshing {
			return nil
		}
		m.refreshing = true
		m.statusLine = "refreshing..."
		return tea.Batch(m.refreshCmd(), m.healthCmd())
	case "ctrl+n":
		if m.screen == screenCustomer {
			return m.createSession()
		}
	case "tab", "shift+tab":
		m.setFocus(ternary(m.focus == focusInput, focusSidebar, focusInput))
		m.renderPanes()
		return nil
	case "esc":
		if m.focus == focusSidebar {
			m.setFocus(focusInput)
			m.renderPanes()
			return nil
		}
		m.beginQuitConfirm()
		return nil
	}
	if m.focus == focusSidebar {
		if m.screen == screenAgent {
			return m.handleQueueKey(msg)
		}
		return m.handleSessionListKey(msg)
	}
	return m.handleInputKey(msg)
}

func (m *model) handleSessionListKey(msg tea.KeyMsg) tea.Cmd {
	list := m.sessions.Sessions()
	switch msg.String() {
	case "up", "k":
		m.cursor = maxInt(0, m.cursor-1)
	case "down", "j":
		m.cursor = clampInt(m.cursor+1, 0, maxInt(0, len(list)-1))
	case "enter", " ":
		if len(list) == 0 {
			return nil
		}
		id := list[clampInt(m.cursor, 0, len(list)-1)].SessionID
		m.sessions.SetActive(id)
		ticket := m.transcript.Activate(id)
		m.setFocus(focusInput)
		m.statusLine = "opened " + shortID(id)
		m.renderPanes()
		return m.transcriptCmd(ticket)
	case "n":
		return m.createSession()
	case "x":
		if len(list) == 0 || m.inflight {
			return nil
		}
		target := list[clampInt(m.cursor, 0, len(list)-1)]
		if target.Status == domain.StatusClosed {
			m.statusLine = "session already closed"
			return nil
		}
		m.inflight = true
		m.statusLine = "closing " + shortID(target.SessionID) + "..."
		return m.closeSessionCmd(target.SessionID)
	case "a":
		m.sessions.SetIncludeClosed(!m.sessions.IncludeClosed())
		m.statusLine = ternary(m.sessions.IncludeClosed(), "showing closed sessions", "hiding closed sessions")
		return m.sessionsCmd()
	case "?":
		m.openHelp()
		return nil
	}
	m.renderPanes()
	return nil
}

func (m *model) handleQueueKey(msg tea.KeyMsg) tea.Cmd {
	items := m.queue.Items()
	switch msg.String() {
	case "up", "k":
		m.cursor = maxInt(0, m.cursor-1)
	case "down", "j":
		m.cursor = clampInt(m.cursor+1, 0, maxInt(0, len(items)-1))
	case "enter", " ":
		if len(items) == 0 {
			return nil
		}
		id := items[clampInt(m.cursor, 0, len(items)-1)].SessionID
		ticket := m.desk.Select(id)
		m.statusLine = "opened " + shortID(id)
		m.renderPanes()
		return m.detailCmd(ticket)
	case "c":
		if len(items) == 0 || m.inflight {
			return nil
		}
		target := items[clampInt(m.cursor, 0, len(items)-1)]
		if !lifecycle.IsClaimable(target) {
			m.statusLine = fmt.Sprintf("%s is %s, nothing to claim", shortID(target.SessionID), strings.ToLower(lifecycle.Label(target.Status)))
			return nil
		}
		m.inflight = true
		m.statusLine = "claiming " + shortID(target.SessionID) + "..."
		return m.claimCmd(target.SessionID)
	case "?":
		m.openHelp()
		return nil
	}
	m.renderPanes()
	return nil
}

func (m *model) handleInputKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "enter":
		return m.submitInput()
	case "pgup", "ctrl+b":
		m.timeline.LineUp(8)
		return nil
	case "pgdown", "ctrl+f":
		m.timeline.LineDown(8)
		return nil
	case "up":
		if strings.TrimSpace(m.input.Value()) == "" {
			m.timeline.LineUp(4)
			return nil
		}
	case "down":
		if strings.TrimSpace(m.input.Value()) == "" {
			m.timeline.LineDown(4)
			return nil
		}
	case "home":
		m.timeline.GotoTop()
		return nil
	case "end":
		m.timeline.GotoBottom()
		return nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return cmd
}

func (m *model) submitInput() tea.Cmd {
	if m.inflight {
		return nil
	}
	raw := strings.TrimSpace(m.input.Value())
	if raw == "" {
		return nil
	}
	if m.screen == screenAgent {
		content, err := m.desk.CheckReply(raw)
		if err != nil {
			m.logError(err)
			return nil
		}
		m.input.SetValue("")
		m.inflight = true
		m.statusLine = "sending reply..."
		return m.replyCmd(m.desk.Ticket(), content)
	}
	p, err := m.transcript.BeginSend(m.who, raw)
	if err != nil {
		m.logError(err)
		return nil
	}
	m.input.SetValue("")
	m.inflight = true
	m.statusLine = "sending..."
	m.renderPanes()
	return m.sendCmd(p)
}

func (m *model) createSession() tea.Cmd {
	if m.inflight {
		return nil
	}
	m.inflight = true
	m.statusLine = "starting a new session..."
	return m.createSessionCmd()
}

func (m *model) setFocus(focus focusID) {
	m.focus = focus
	if focus == focusInput {
		m.input.Focus()
		return
	}
	m.input.Blur()
}

func (m *model) openHelp() {
	m.prevScreen = m.screen
	m.screen = screenHelp
}

func (m *model) beginQuitConfirm() {
	m.quitConfirm = true
	m.statusLine = "quit supportdesk? (y/n)"
}

func (m *model) appendLog(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	m.logs = append(m.logs, fmt.Sprintf("%s %s", time.Now().Format("15:04:05"), compactSingleLine(trimmed, 220)))
	if len(m.logs) > 50 {
		m.logs = m.logs[len(m.logs)-50:]
	}
}

func (m *model) logError(err error) {
	if err == nil {
		return
	}
	m.log.WithError(err).Warn("request failed")
	m.appendLog("error: " + err.Error())
	m.statusLine = "error: " + compactSingleLine(userMessage(err), 160)
}

// userMessage drops the field prefix from validation errors.
func userMessage(err error) string {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return verr.Reason
	}
	return err.Error()
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
