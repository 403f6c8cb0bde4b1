// Copyright (c) 2020 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go.mxclient.dev/mxclient"
	"go.mxclient.dev/mxclient/event"
	"go.mxclient.dev/mxclient/id"
	"go.mxclient.dev/mxclient/room"
	"go.mxclient.dev/mxclient/timeline"
)

var (
	roomListWidth  = 28
	styleBorder    = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("240"))
	styleSelected  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	styleUnread    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleStatusBar = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleSender    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)

type keyMap struct {
	Up, Down, Enter, Quit, Compose, MarkRead key.Binding
}

var keys = keyMap{
	Up:        key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "up")),
	Down:      key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "down")),
	Enter:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
	Quit:      key.NewBinding(key.WithKeys("ctrl+c", "esc"), key.WithHelp("esc", "quit")),
	Compose:   key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "compose")),
	MarkRead:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "mark read")),
}

// roomStateMsg is delivered whenever the joined-room set or a room's
// unread count changes; it carries no payload since the model always
// re-reads the authoritative state from conn.Rooms on receipt.
type roomStateMsg struct{}

type model struct {
	ctx  context.Context
	conn *mxclient.Connection

	rooms     []*room.Room
	cursor    int
	selected  *room.Room
	viewport  viewport.Model
	composing bool
	input     textinput.Model

	width, height int
	status        string
}

func newModel(ctx context.Context, conn *mxclient.Connection) model {
	input := textinput.New()
	input.Placeholder = "message"
	input.CharLimit = 4000

	m := model{
		ctx:      ctx,
		conn:     conn,
		viewport: viewport.New(0, 0),
		input:    input,
		status:   "connected as " + string(conn.LocalUserID()),
	}
	m.refreshRooms()
	return m
}

func (m *model) refreshRooms() {
	rooms := m.conn.Rooms.Rooms()
	m.rooms = make([]*room.Room, 0, len(rooms))
	for _, r := range rooms {
		if r.JoinState() == room.Join {
			m.rooms = append(m.rooms, r)
		}
	}
	sort.Slice(m.rooms, func(i, j int) bool { return m.rooms[i].DisplayName() < m.rooms[j].DisplayName() })
	if m.cursor >= len(m.rooms) {
		m.cursor = len(m.rooms) - 1
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func runProgram(ctx context.Context, conn *mxclient.Connection) error {
	m := newModel(ctx, conn)
	program := tea.NewProgram(m, tea.WithAltScreen())

	watchRoom := func(r *room.Room) {
		r.OnAddedMessages(func([]*timeline.Item) { program.Send(roomStateMsg{}) })
		r.OnNamesChanged(func(struct{}) { program.Send(roomStateMsg{}) })
	}
	for _, r := range conn.Rooms.Rooms() {
		watchRoom(r)
	}
	conn.Rooms.OnNewRoom(func(r *room.Room) { watchRoom(r) })
	conn.Rooms.OnJoinedRoom(func(room.TransitionPair) { program.Send(roomStateMsg{}) })
	conn.Rooms.OnLeftRoom(func(room.TransitionPair) { program.Send(roomStateMsg{}) })
	conn.Rooms.OnInvitedRoom(func(room.TransitionPair) { program.Send(roomStateMsg{}) })

	_, err := program.Run()
	return err
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = m.width - roomListWidth - 4
		m.viewport.Height = m.height - 4
		m.renderTimeline()
		return m, nil

	case roomStateMsg:
		m.refreshRooms()
		m.renderTimeline()
		return m, nil

	case tea.KeyMsg:
		if m.composing {
			return m.updateCompose(msg)
		}
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
				m.selectRoom()
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.rooms)-1 {
				m.cursor++
				m.selectRoom()
			}
		case key.Matches(msg, keys.Enter):
			m.selectRoom()
		case key.Matches(msg, keys.Compose):
			if m.selected != nil {
				m.composing = true
				m.input.Focus()
				return m, nil
			}
		case key.Matches(msg, keys.MarkRead):
			if m.selected != nil {
				m.selected.MarkMessagesAsRead(m.ctx, m.conn, lastEventID(m.selected))
			}
		}
	}
	return m, nil
}

func (m *model) updateCompose(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.composing = false
		m.input.Blur()
		m.input.Reset()
		return *m, nil
	case "enter":
		body := m.input.Value()
		m.input.Reset()
		m.composing = false
		m.input.Blur()
		if body != "" && m.selected != nil {
			m.selected.PostMarkdown(m.ctx, m.conn, body)
		}
		return *m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return *m, cmd
}

func (m *model) selectRoom() {
	if m.cursor < 0 || m.cursor >= len(m.rooms) {
		return
	}
	m.selected = m.rooms[m.cursor]
	m.renderTimeline()
}

func lastEventID(r *room.Room) id.EventID {
	tl := r.Timeline()
	item, ok := tl.FindByIndex(tl.MaxIndex())
	if !ok {
		return ""
	}
	return item.Event.ID
}

func (m *model) renderTimeline() {
	if m.selected == nil {
		m.viewport.SetContent("select a room")
		return
	}
	var b strings.Builder
	for _, item := range m.selected.Timeline().Ascending() {
		b.WriteString(renderTimelineEvent(m.selected, item.Event))
		b.WriteByte('\n')
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func renderTimelineEvent(r *room.Room, evt *event.Event) string {
	ts := time.UnixMilli(evt.Timestamp).Format("15:04")
	sender := string(evt.Sender)
	if member, ok := r.Members()[evt.Sender]; ok {
		sender = r.MemberName(member.User)
	}
	switch content := evt.Content.(type) {
	case *event.MessageEventContent:
		return fmt.Sprintf("%s %s: %s", ts, styleSender.Render(sender), content.Body)
	case *event.MemberEventContent:
		return fmt.Sprintf("%s * %s %s", ts, sender, content.Membership)
	default:
		return fmt.Sprintf("%s %s sent %s", ts, sender, evt.Type.Type)
	}
}

func (m model) View() string {
	if m.width == 0 {
		return "loading..."
	}
	list := m.renderRoomList()
	timeline := styleBorder.Width(m.viewport.Width).Height(m.viewport.Height).Render(m.viewport.View())

	body := lipgloss.JoinHorizontal(lipgloss.Top, list, timeline)

	footer := styleStatusBar.Render(m.status + " — j/k move, enter select, c compose, r mark read, esc quit")
	if m.composing {
		footer = "> " + m.input.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, footer)
}

func (m model) renderRoomList() string {
	var b strings.Builder
	for i, r := range m.rooms {
		line := r.DisplayName()
		if r.HasUnreadMessages() {
			line = styleUnread.Render(line + " •")
		}
		if i == m.cursor {
			line = styleSelected.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return styleBorder.Width(roomListWidth).Height(m.viewport.Height).Render(b.String())
}
