package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zenwell/roomchat/internal/config"
	"github.com/zenwell/roomchat/internal/conn"
	"github.com/zenwell/roomchat/internal/directory"
	"github.com/zenwell/roomchat/internal/protocol"
	"github.com/zenwell/roomchat/internal/session"
)

type phase int

const (
	phaseName phase = iota
	phaseDirectory
	phaseChat
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	faintStyle  = lipgloss.NewStyle().Faint(true)
	selfStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// eventMsg carries one inbound realtime event into the update loop.
// The session has already applied it; the UI only re-renders.
type eventMsg protocol.Event

// roomListMsg is the result of the bootstrap directory fetch.
type roomListMsg []protocol.Room

type statusMsg string

type model struct {
	cfg config.Config
	dir *directory.Client

	mgr    *conn.Manager
	sess   *session.Session
	events chan protocol.Event

	phase    phase
	input    textinput.Model
	viewport viewport.Model
	ready    bool
	creating bool
	cursor   int
	status   string
}

func initialModel(cfg config.Config) model {
	ti := textinput.New()
	ti.Placeholder = "Enter your name..."
	ti.Focus()
	ti.CharLimit = 64
	ti.Width = 40

	return model{
		cfg:   cfg,
		dir:   directory.New(cfg.ServerURL),
		input: ti,
		phase: phaseName,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

// connect builds the client stack once the username is known: one
// connection for the whole run, shared across every room.
func (m *model) connect(username string) tea.Cmd {
	wsURL := "ws" + strings.TrimPrefix(m.cfg.ServerURL, "http") + "/ws?user=" + username

	m.events = make(chan protocol.Event, 64)
	m.mgr = conn.New(wsURL)
	m.sess = session.New(username, m.mgr, m.cfg.TypingTimeout)

	events := m.events
	sess := m.sess
	m.mgr.OnEvent(func(ev protocol.Event) {
		sess.HandleEvent(ev)
		events <- ev
	})
	m.mgr.OnOpen(sess.Rejoin)
	go m.mgr.Run()

	return tea.Batch(m.waitForEvent(), m.fetchRooms())
}

func (m model) waitForEvent() tea.Cmd {
	ch := m.events
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

// fetchRooms bootstraps the directory over HTTP, retrying a couple of
// times with backoff. A persistent failure degrades to an empty list;
// the pushed rooms event repopulates it.
func (m model) fetchRooms() tea.Cmd {
	dir := m.dir
	return func() tea.Msg {
		backoff := 500 * time.Millisecond
		for attempt := 0; ; attempt++ {
			rooms, err := dir.ListRooms()
			if err == nil {
				return roomListMsg(rooms)
			}
			if attempt == 2 {
				return roomListMsg(nil)
			}
			time.Sleep(backoff)
			backoff *= 2
		}
	}
}

func (m model) createRoom(name string) tea.Cmd {
	dir := m.dir
	return func() tea.Msg {
		if err := dir.CreateRoom(name); err != nil {
			return statusMsg(fmt.Sprintf("create room: %v", err))
		}
		return statusMsg("")
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		headerHeight := 2
		footerHeight := 3
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		m.input.Width = msg.Width - 4
		return m, nil

	case eventMsg:
		if m.phase == phaseChat {
			m.viewport.SetContent(m.renderMessages())
			m.viewport.GotoBottom()
		}
		return m, m.waitForEvent()

	case roomListMsg:
		if m.sess != nil {
			m.sess.ReplaceRooms(msg)
		}
		return m, nil

	case statusMsg:
		m.status = string(msg)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		if m.mgr != nil {
			m.mgr.Close()
		}
		return m, tea.Quit
	}

	switch m.phase {
	case phaseName:
		if msg.Type == tea.KeyEnter {
			name := strings.TrimSpace(m.input.Value())
			if name == "" {
				name = "Anonymous"
			}
			cmd := m.connect(name)
			m.phase = phaseDirectory
			m.input.SetValue("")
			m.input.Blur()
			return m, cmd
		}

	case phaseDirectory:
		if m.creating {
			switch msg.Type {
			case tea.KeyEnter:
				name := m.input.Value()
				m.creating = false
				m.input.SetValue("")
				m.input.Blur()
				if strings.TrimSpace(name) == "" {
					return m, nil
				}
				return m, m.createRoom(name)
			case tea.KeyEsc:
				m.creating = false
				m.input.SetValue("")
				m.input.Blur()
				return m, nil
			}
			break
		}

		rooms := m.sess.Snapshot().Rooms
		switch {
		case msg.Type == tea.KeyUp:
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil
		case msg.Type == tea.KeyDown:
			if m.cursor < len(rooms)-1 {
				m.cursor++
			}
			return m, nil
		case msg.Type == tea.KeyEnter:
			if m.cursor < len(rooms) {
				m.sess.JoinRoom(rooms[m.cursor].ID)
				m.phase = phaseChat
				m.input.Placeholder = "Type your message..."
				m.input.Focus()
				if m.ready {
					m.viewport.SetContent("")
				}
			}
			return m, nil
		case msg.String() == "n":
			m.creating = true
			m.input.Placeholder = "New room name..."
			m.input.Focus()
			return m, textinput.Blink
		case msg.String() == "r":
			return m, m.fetchRooms()
		case msg.String() == "q":
			if m.mgr != nil {
				m.mgr.Close()
			}
			return m, tea.Quit
		}
		return m, nil

	case phaseChat:
		switch msg.Type {
		case tea.KeyEnter:
			text := m.input.Value()
			m.input.SetValue("")
			m.sess.SendMessage(text)
			return m, nil
		case tea.KeyEsc:
			m.sess.LeaveRoom()
			m.phase = phaseDirectory
			m.cursor = 0
			m.input.SetValue("")
			return m, nil
		case tea.KeyRunes, tea.KeySpace, tea.KeyBackspace:
			// Every edit of the input counts as a keystroke for the
			// typing indicator.
			m.sess.Keystroke()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	switch m.phase {
	case phaseName:
		return fmt.Sprintf("\n  %s\n\n  %s\n", titleStyle.Render("roomchat"), m.input.View())
	case phaseDirectory:
		return m.viewDirectory()
	case phaseChat:
		return m.viewChat()
	}
	return ""
}

func (m model) viewDirectory() string {
	snap := m.sess.Snapshot()
	var b strings.Builder

	b.WriteString("  " + titleStyle.Render("Available Rooms") + "\n\n")
	if len(snap.Rooms) == 0 {
		b.WriteString(faintStyle.Render("  no rooms yet — press n to create one") + "\n")
	}
	for i, r := range snap.Rooms {
		prefix := "  "
		line := r.Name
		if i == m.cursor {
			prefix = cursorStyle.Render("> ")
		}
		b.WriteString(prefix + line + "\n")
	}

	b.WriteString("\n")
	if m.creating {
		b.WriteString("  " + m.input.View() + "\n")
	} else {
		b.WriteString(faintStyle.Render("  enter: join  n: new room  r: refresh  q: quit") + "\n")
	}
	if m.status != "" {
		b.WriteString("\n  " + errStyle.Render(m.status) + "\n")
	}
	return b.String()
}

func (m model) viewChat() string {
	if !m.ready {
		return "\n  Loading..."
	}
	snap := m.sess.Snapshot()

	roomName := snap.Room
	for _, r := range snap.Rooms {
		if r.ID == snap.Room {
			roomName = r.Name
			break
		}
	}

	header := fmt.Sprintf("  %s  %s",
		titleStyle.Render(roomName),
		faintStyle.Render(fmt.Sprintf("%d online", snap.OnlineCount)))

	typing := " "
	if snap.TypingUser != "" {
		typing = faintStyle.Render(fmt.Sprintf("  %s is typing...", snap.TypingUser))
	}

	return fmt.Sprintf("%s\n%s\n%s\n%s\n%s",
		header,
		m.viewport.View(),
		typing,
		strings.Repeat("─", max(m.viewport.Width, 1)),
		m.input.View(),
	)
}

func (m model) renderMessages() string {
	snap := m.sess.Snapshot()
	var b strings.Builder
	for _, msg := range snap.Messages {
		ts := msg.Timestamp
		if ts == 0 {
			ts = time.Now().UnixMilli()
		}
		when := time.UnixMilli(ts).Format("15:04")

		user := msg.User
		style := faintStyle
		if user == "" {
			user = "system"
		}
		if user == snap.Username {
			style = selfStyle
		}
		b.WriteString(fmt.Sprintf("%s %s  %s\n",
			faintStyle.Render(when), style.Render(user+":"), msg.Text))
	}
	return b.String()
}
