package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"supportdesk/internal/domain"
	"supportdesk/internal/lifecycle"
)

func (m model) View() string {
	var out string
	switch {
	case !m.ready:
		out = m.theme.helpText.Render(m.spinner.View() + " connecting to " + nullCoalesce(m.opts.APIURL, "support api") + "...")
	case m.screen == screenLogin:
		out = m.renderLogin()
	default:
		header := m.renderHeader()
		content := m.renderContent()
		input := m.renderInput()
		footer := m.renderFooter()
		out = lipgloss.JoinVertical(lipgloss.Left, header, content, input, footer)
	}
	if m.quitConfirm {
		out = m.renderQuitModal()
	}
	return m.theme.root.Render(out)
}

func (m model) renderLogin() string {
	canvasWidth := maxInt(40, m.width-4)
	canvasHeight := maxInt(12, m.height-4)
	frameWidth := clampInt(canvasWidth-8, 36, 64)

	statusStyle := m.theme.helpText
	if isErrorStatus(m.statusLine) {
		statusStyle = m.theme.errorStatus
	}
	status := m.statusLine
	if m.inflight {
		status = m.spinner.View() + " " + status
	}
	body := strings.Join([]string{
		m.theme.loginTitle.Render("SupportDesk"),
		m.theme.helpText.Render("Sign in to chat with support or work the escalation queue."),
		"",
		m.email.View(),
		m.passcode.View(),
		"",
		statusStyle.Render(compactSingleLine(status, frameWidth-6)),
		m.theme.helpText.Render("Tab switch field · Enter sign in · Esc quit"),
	}, "\n")
	panel := m.theme.loginFrame.Width(frameWidth).Render(body)
	return lipgloss.Place(canvasWidth, canvasHeight, lipgloss.Center, lipgloss.Center, panel)
}

func (m model) renderHeader() string {
	workspace := "Sessions"
	if m.who.IsAgent() {
		workspace = "Escalations"
	}
	segments := []string{}
	for _, tab := range []struct {
		label  string
		active bool
	}{
		{workspace, m.screen != screenHelp},
		{"Help", m.screen == screenHelp},
	} {
		style := m.theme.tabInactive
		if tab.active {
			style = m.theme.tabActive
		}
		segments = append(segments, style.Render(tab.label))
	}
	role := "customer"
	if m.who.IsAgent() {
		role = "agent"
	}
	segments = append(segments, m.theme.helpText.Render(fmt.Sprintf(" %s (%s) ", m.who.DisplayName(), role)))
	segments = append(segments, m.renderHealth())
	joined := lipgloss.JoinHorizontal(lipgloss.Left, segments...)
	return m.theme.header.Width(maxInt(20, m.width-4)).Render(joined)
}

func (m model) renderHealth() string {
	if m.healthErr != nil {
		return m.theme.healthBad.Render("api unreachable")
	}
	if m.health.Status == "" {
		return m.theme.helpText.Render("api ...")
	}
	text := fmt.Sprintf("api %s · redis %s · mongo %s",
		m.health.Status,
		nullCoalesce(m.health.Redis, "?"),
		nullCoalesce(m.health.Mongo, "?"),
	)
	if m.health.Status != "ok" {
		return m.theme.healthBad.Render(text)
	}
	return m.theme.healthOK.Render(text)
}

func (m model) renderContent() string {
	contentHeight := maxInt(8, m.height-12)
	if m.screen == screenHelp {
		contentWidth := maxInt(40, m.width-4)
		panel := m.theme.panel.Width(contentWidth).Height(contentHeight)
		return panel.Render(m.theme.panelTitle.Render("SupportDesk Help") + "\n" + m.renderHelp())
	}
	leftWidth, rightWidth := m.paneWidths()

	sidebarStyle := m.theme.panel
	timelineStyle := m.theme.panel
	if m.focus == focusSidebar {
		sidebarStyle = m.theme.panelFocus
	}

	left := sidebarStyle.Width(leftWidth).Height(contentHeight).Render(
		m.theme.panelTitle.Render(m.sidebarTitle()) + "\n" + m.sidebar.View(),
	)
	parts := []string{m.theme.panelTitle.Render(m.timelineTitle())}
	if banner := m.renderBanner(); banner != "" {
		parts = append(parts, banner)
	}
	parts = append(parts, m.timeline.View())
	right := timelineStyle.Width(rightWidth).Height(contentHeight).Render(strings.Join(parts, "\n"))
	return lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}

func (m model) paneWidths() (int, int) {
	contentWidth := maxInt(40, m.width-4)
	leftWidth := clampInt(int(float64(contentWidth)*0.34), 28, 48)
	rightWidth := contentWidth - leftWidth - 1
	if rightWidth < 28 {
		rightWidth = 28
		leftWidth = maxInt(20, contentWidth-rightWidth-1)
	}
	return leftWidth, rightWidth
}

func (m model) sidebarTitle() string {
	if m.screen == screenAgent {
		return fmt.Sprintf("Queue (%d)", len(m.queue.Items()))
	}
	if m.sessions.IncludeClosed() {
		return "Sessions (all)"
	}
	return "Sessions"
}

func (m model) timelineTitle() string {
	if m.screen == screenAgent {
		detail, ok := m.desk.Detail()
		if !ok {
			if id := m.desk.Selected(); id != "" {
				return "Conversation " + shortID(id)
			}
			return "Conversation"
		}
		e := detail.Escalation
		return fmt.Sprintf("Conversation %s · %s · %s", shortID(e.SessionID), lifecycle.Label(e.Status), nullCoalesce(e.UserID, "unknown customer"))
	}
	id := m.transcript.SessionID()
	if id == "" {
		return "New conversation"
	}
	if s, ok := m.sessions.Active(); ok && s.SessionID == id {
		return fmt.Sprintf("Conversation %s · %s", shortID(id), lifecycle.Label(s.Status))
	}
	return "Conversation " + shortID(id)
}

// renderBanner is the single line shown above the transcript, if any.
func (m model) renderBanner() string {
	if m.screen == screenAgent {
		detail, ok := m.desk.Detail()
		if !ok {
			return ""
		}
		e := detail.Escalation
		if m.desk.CanRespond() {
			return m.theme.helpText.Render("You own this conversation. " + nullCoalesce(e.EscalationReason, ""))
		}
		if lifecycle.IsClaimable(e) {
			return m.theme.banner.Render("Claim this conversation to respond (Tab, then c)")
		}
		if e.AgentID != "" {
			return m.theme.helpText.Render("Handled by " + e.AgentID)
		}
		return ""
	}
	if m.transcript.Escalated() {
		return m.theme.banner.Render("Escalated: a support agent will join this conversation")
	}
	return ""
}

func (m model) bannerLines() int {
	if m.renderBanner() == "" {
		return 0
	}
	return 1
}

func (m model) renderSidebar() string {
	if m.screen == screenAgent {
		return m.renderQueue()
	}
	return m.renderSessionList()
}

func (m model) renderSessionList() string {
	list := m.sessions.Sessions()
	if len(list) == 0 {
		if !m.sessions.Loaded() {
			return m.theme.helpText.Render("Loading sessions...")
		}
		if err := m.sessions.Err(); err != nil {
			return m.theme.errorStatus.Render(compactSingleLine(err.Error(), 120))
		}
		return m.theme.helpText.Render("No sessions yet. Press n to start one, or just type a question.")
	}
	width := maxInt(16, m.sidebar.Width)
	activeID := m.sessions.ActiveID()
	rows := make([]string, 0, len(list)*2)
	for i, s := range list {
		marker := "  "
		if i == m.cursor && m.focus == focusSidebar {
			marker = m.theme.rowCursor.Render("› ")
		}
		label := lifecycle.Label(s.Status)
		idStyle := m.theme.helpText
		if s.SessionID == activeID {
			idStyle = m.theme.rowActive
		}
		line := marker + idStyle.Render(shortID(s.SessionID)) + " " +
			m.theme.labelStyle(label).Render(label) + " " +
			m.theme.helpText.Render(shortDate(nullCoalesce(s.UpdatedAt, s.CreatedAt)))
		rows = append(rows, line)
		if summary := strings.TrimSpace(s.Summary); summary != "" {
			rows = append(rows, "  "+m.theme.helpText.Render(truncate(compactSingleLine(summary, width), width-2)))
		}
	}
	if err := m.sessions.Err(); err != nil {
		rows = append(rows, "", m.theme.errorStatus.Render(compactSingleLine(err.Error(), width)))
	}
	return strings.Join(rows, "\n")
}

func (m model) renderQueue() string {
	items := m.queue.Items()
	if len(items) == 0 {
		if err := m.queue.Err(); err != nil {
			return m.theme.errorStatus.Render(compactSingleLine(err.Error(), 120))
		}
		return m.theme.helpText.Render("No escalations waiting.")
	}
	width := maxInt(16, m.sidebar.Width)
	selected := m.desk.Selected()
	rows := make([]string, 0, len(items)*2)
	for i, e := range items {
		marker := "  "
		if i == m.cursor && m.focus == focusSidebar {
			marker = m.theme.rowCursor.Render("› ")
		}
		label := lifecycle.Label(e.Status)
		idStyle := m.theme.helpText
		if e.SessionID == selected {
			idStyle = m.theme.rowActive
		}
		owner := ""
		switch {
		case m.queue.CanRespond(e):
			owner = m.theme.healthOK.Render(" yours")
		case lifecycle.IsClaimable(e):
			owner = m.theme.helpText.Render(" [c]laim")
		}
		rows = append(rows, marker+idStyle.Render(shortID(e.SessionID))+" "+m.theme.labelStyle(label).Render(label)+owner)
		about := nullCoalesce(e.LastQuery, nullCoalesce(e.EscalationReason, e.UserID))
		if about != "" {
			rows = append(rows, "  "+m.theme.helpText.Render(truncate(compactSingleLine(about, width), width-2)))
		}
	}
	if err := m.queue.Err(); err != nil {
		rows = append(rows, "", m.theme.errorStatus.Render(compactSingleLine(err.Error(), width)))
	}
	return strings.Join(rows, "\n")
}

func (m model) renderTimeline() string {
	if m.screen == screenAgent {
		detail, ok := m.desk.Detail()
		if !ok {
			if err := m.desk.Err(); err != nil {
				return m.theme.errorStatus.Render(compactSingleLine(err.Error(), 160))
			}
			if m.desk.Selected() != "" {
				return m.theme.helpText.Render("Loading conversation...")
			}
			return m.theme.helpText.Render("Select a conversation from the queue.")
		}
		if len(detail.Messages) == 0 {
			return m.theme.helpText.Render("No messages in this conversation.")
		}
		return m.renderMessages(detail.Messages, "Customer")
	}

	messages := m.transcript.Messages()
	if len(messages) == 0 {
		if err := m.transcript.Err(); err != nil {
			return m.theme.errorStatus.Render(compactSingleLine(err.Error(), 160))
		}
		if m.transcript.SessionID() != "" && !m.transcript.Loaded() {
			return m.theme.helpText.Render("Loading conversation...")
		}
		return m.theme.helpText.Render("No messages yet. Ask a question to get started.")
	}
	var b strings.Builder
	b.WriteString(m.renderMessages(messages, "You"))
	if citations := m.transcript.LastCitations(); len(citations) > 0 {
		sources := make([]string, 0, len(citations))
		for _, c := range citations {
			sources = append(sources, nullCoalesce(c.Title, c.Source))
		}
		b.WriteString("\n\n")
		b.WriteString(m.theme.helpText.Render("Sources: " + strings.Join(sources, ", ")))
	}
	if m.transcript.LastCacheHit() {
		b.WriteString("\n")
		b.WriteString(m.theme.helpText.Render("(answered from cache)"))
	}
	return b.String()
}

func (m model) renderMessages(messages []domain.Message, userLabel string) string {
	width := maxInt(20, m.timeline.Width-2)
	blocks := make([]string, 0, len(messages))
	for _, msg := range messages {
		speaker := userLabel
		switch msg.Role {
		case domain.MessageRoleAssistant:
			speaker = "Assistant"
		case domain.MessageRoleAgent:
			speaker = "Agent"
			if msg.AgentID != "" {
				speaker = "Agent " + msg.AgentID
			}
		}
		style, ok := m.theme.chatRole[msg.Role]
		if !ok {
			style = m.theme.helpText
		}
		header := fmt.Sprintf("%s [%s]", shortTime(msg.CreatedAt), speaker)
		if msg.IsPlaceholder() {
			header += " sending..."
			style = m.theme.chatRole["pending"]
		}
		blocks = append(blocks, style.Render(header)+"\n"+wrapText(compactMessage(msg.Content, 60), width))
	}
	return strings.Join(blocks, "\n\n")
}

func (m model) renderInput() string {
	contentWidth := maxInt(40, m.width-4)
	if m.screen == screenHelp {
		return m.theme.inputPanel.Width(contentWidth).Render(m.theme.helpText.Render("Press Esc to return."))
	}
	if m.screen == screenAgent && !m.desk.CanRespond() {
		hint := "Select a conversation from the queue."
		if m.desk.Selected() != "" {
			hint = "Claim this conversation to start responding."
		}
		return m.theme.inputPanel.Width(contentWidth).Render(m.theme.helpText.Render(hint))
	}
	inputView := m.input.View()
	if m.inflight {
		inputView = m.spinner.View() + " " + inputView
	}
	return m.theme.inputPanel.Width(contentWidth).Render(inputView)
}

func (m model) renderFooter() string {
	contentWidth := maxInt(40, m.width-4)
	statusStyle := m.theme.status
	if isErrorStatus(m.statusLine) {
		statusStyle = m.theme.errorStatus
	}
	line := statusStyle.Render(compactSingleLine(m.statusLine, 180))
	if !m.lastRefresh.IsZero() {
		line += m.theme.helpText.Render(" · synced " + m.lastRefresh.Format("15:04:05"))
	}
	var hints string
	switch {
	case m.screen == screenAgent && m.focus == focusSidebar:
		hints = "Keys: ↑/↓ move · Enter open · c claim · Tab input · Ctrl+R refresh · Ctrl+L sign out · F1 help"
	case m.screen == screenAgent:
		hints = "Keys: Enter reply · Tab queue · PgUp/PgDn scroll · Ctrl+R refresh · Ctrl+L sign out · F1 help"
	case m.focus == focusSidebar:
		hints = "Keys: ↑/↓ move · Enter open · n new · x close · a show closed · Tab input · Ctrl+L sign out · F1 help"
	default:
		hints = "Keys: Enter send · Tab sessions · Ctrl+N new · PgUp/PgDn scroll · Ctrl+L sign out · F1 help"
	}
	return m.theme.footer.Width(contentWidth).Render(line + "\n" + m.theme.helpText.Render(hints))
}

func (m model) renderHelp() string {
	lines := []string{
		"Customers",
		"  Type a question and press Enter. Replies appear under your message.",
		"  Ask for a human or an agent to be handed off to the support team.",
		"  Tab moves to the session list: n new session, x close, a toggle closed sessions.",
		"",
		"Agents",
		"  The queue lists pending handoffs and conversations you have claimed.",
		"  Tab to the queue, press c to claim, Enter to open, then type your reply.",
		"  Only the agent who claimed a live conversation can respond.",
		"",
		"Everywhere",
		"  Ctrl+R refresh now · Ctrl+L sign out · Esc quit prompt · Ctrl+C quit",
		"",
		"Recent activity",
	}
	out := m.theme.helpText.Render(strings.Join(lines, "\n"))
	if len(m.logs) == 0 {
		return out + "\n" + m.theme.helpText.Render("  (none)")
	}
	tail := m.logs[maxInt(0, len(m.logs)-8):]
	return out + "\n" + strings.Join(tail, "\n")
}

func (m model) renderQuitModal() string {
	canvasWidth := maxInt(40, m.width-4)
	canvasHeight := maxInt(12, m.height-4)
	modalWidth := clampInt(int(float64(canvasWidth)*0.5), 36, 64)

	body := strings.Join([]string{
		m.theme.errorStatus.Render("Quit SupportDesk?"),
		m.theme.helpText.Render("You stay signed in until you sign out with Ctrl+L."),
		"",
		m.theme.status.Render("[Y / Enter] Quit") + "    " + m.theme.helpText.Render("[N / Esc] Return"),
	}, "\n")
	panel := m.theme.loginFrame.Width(modalWidth).Render(body)
	return lipgloss.Place(canvasWidth, canvasHeight, lipgloss.Center, lipgloss.Center, panel)
}

// renderPanes refreshes both viewports, keeping the scroll position unless
// the pane was already at the bottom.
func (m *model) renderPanes() {
	prevTimelineYOffset := m.timeline.YOffset
	prevTimelineAtBottom := m.timeline.AtBottom()
	prevSidebarYOffset := m.sidebar.YOffset

	contentHeight := maxInt(8, m.height-12)
	leftWidth, rightWidth := m.paneWidths()
	m.timeline.Width = maxInt(20, rightWidth-4)
	m.timeline.Height = maxInt(3, contentHeight-3-m.bannerLines())
	m.sidebar.Width = maxInt(16, leftWidth-4)
	m.sidebar.Height = maxInt(3, contentHeight-3)

	m.timeline.SetContent(m.renderTimeline())
	if prevTimelineAtBottom {
		m.timeline.GotoBottom()
	} else {
		m.timeline.SetYOffset(prevTimelineYOffset)
	}
	m.sidebar.SetContent(m.renderSidebar())
	m.sidebar.SetYOffset(prevSidebarYOffset)
}

func (m *model) resize() {
	contentWidth := maxInt(40, m.width-4)
	m.input.Width = maxInt(20, contentWidth-6)
	m.email.Width = maxInt(20, minInt(48, contentWidth-20))
	m.passcode.Width = m.email.Width
}

func isErrorStatus(status string) bool {
	lower := strings.ToLower(status)
	return strings.Contains(lower, "failed") || strings.Contains(lower, "error")
}
