package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"supportdesk/internal/auth"
	"supportdesk/internal/escalations"
	"supportdesk/internal/transcript"
)

func tickEvery(interval time.Duration) tea.Cmd {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.opts.HTTPTimeout)
}

func (m model) restoreCmd() tea.Cmd {
	authn := m.authn
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		return restoreDoneMsg{who: authn.Restore(ctx)}
	}
}

func (m model) loginCmd(email, passcode string) tea.Cmd {
	authn := m.authn
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		who, err := authn.Login(ctx, email, passcode)
		return loginDoneMsg{who: who, err: err}
	}
}

func (m model) logoutCmd(current auth.Context) tea.Cmd {
	authn := m.authn
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		authn.Logout(ctx, current)
		return logoutDoneMsg{}
	}
}

func (m model) healthCmd() tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		health, err := api.Health(ctx)
		return healthDoneMsg{health: health, err: err}
	}
}

// refreshCmd fetches everything the current screen polls in one round.
func (m model) refreshCmd() tea.Cmd {
	epoch := m.epoch
	who := m.who
	store := m.sessions
	includeClosed := m.sessions.IncludeClosed()
	tr := m.transcript
	trTicket := m.transcript.Ticket()
	queue := m.queue
	desk := m.desk
	deskTicket := m.desk.Ticket()
	agent := who.IsAgent()
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		out := refreshDoneMsg{epoch: epoch}
		if agent {
			out.escalations, out.escalationErr = queue.FetchPending(ctx)
			out.listedQueue = true
			if deskTicket.SessionID != "" {
				out.deskTicket = deskTicket
				out.detail, out.detailErr = desk.FetchDetail(ctx, deskTicket)
				out.loadedDesk = true
			}
			return out
		}
		out.sessions, out.sessionsErr = store.FetchList(ctx, who, includeClosed)
		out.listed = true
		if trTicket.SessionID != "" {
			out.transcriptTicket = trTicket
			out.messages, out.messagesErr = tr.FetchLoad(ctx, who, trTicket)
			out.loadedMessages = true
		}
		return out
	}
}

func (m model) sessionsCmd() tea.Cmd {
	epoch := m.epoch
	who := m.who
	store := m.sessions
	includeClosed := m.sessions.IncludeClosed()
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		list, err := store.FetchList(ctx, who, includeClosed)
		return sessionsDoneMsg{epoch: epoch, sessions: list, err: err}
	}
}

func (m model) createSessionCmd() tea.Cmd {
	epoch := m.epoch
	who := m.who
	store := m.sessions
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		created, err := store.FetchCreate(ctx, who)
		return sessionCreatedMsg{epoch: epoch, session: created, err: err}
	}
}

func (m model) closeSessionCmd(sessionID string) tea.Cmd {
	epoch := m.epoch
	who := m.who
	store := m.sessions
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		result, err := store.FetchClose(ctx, who, sessionID)
		return sessionClosedMsg{epoch: epoch, result: result, err: err}
	}
}

func (m model) transcriptCmd(ticket transcript.Ticket) tea.Cmd {
	epoch := m.epoch
	who := m.who
	tr := m.transcript
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		msgs, err := tr.FetchLoad(ctx, who, ticket)
		return transcriptDoneMsg{epoch: epoch, ticket: ticket, messages: msgs, err: err}
	}
}

func (m model) sendCmd(p transcript.Pending) tea.Cmd {
	epoch := m.epoch
	tr := m.transcript
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		resp, err := tr.FetchSend(ctx, p)
		return sendDoneMsg{epoch: epoch, pending: p, resp: resp, err: err}
	}
}

func (m model) queueCmd() tea.Cmd {
	epoch := m.epoch
	queue := m.queue
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		items, err := queue.FetchPending(ctx)
		return queueDoneMsg{epoch: epoch, items: items, err: err}
	}
}

func (m model) claimCmd(sessionID string) tea.Cmd {
	epoch := m.epoch
	queue := m.queue
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		summary, err := queue.FetchClaim(ctx, sessionID)
		return claimDoneMsg{epoch: epoch, sessionID: sessionID, summary: summary, err: err}
	}
}

func (m model) detailCmd(ticket escalations.Ticket) tea.Cmd {
	epoch := m.epoch
	desk := m.desk
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		detail, err := desk.FetchDetail(ctx, ticket)
		return detailDoneMsg{epoch: epoch, ticket: ticket, detail: detail, err: err}
	}
}

func (m model) replyCmd(ticket escalations.Ticket, content string) tea.Cmd {
	epoch := m.epoch
	desk := m.desk
	return func() tea.Msg {
		ctx, cancel := m.requestContext()
		defer cancel()
		resp, err := desk.FetchReply(ctx, ticket, content)
		return replyDoneMsg{epoch: epoch, ticket: ticket, content: content, resp: resp, err: err}
	}
}
