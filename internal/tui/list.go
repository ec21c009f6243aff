// Package tui implements the interactive rendering for list --stream: a
// single viewport that appends one row per agent as query.ListAgents
// discovers it, rather than waiting for the full pass to complete before
// printing a table. Scaled down from internal/tui/feed/model.go's
// Model/Init/Update/View shape (mutex-guarded fields, a done channel closed
// exactly once, a single-select event-channel listenForEvents command) to
// mng's much narrower need: no panels, no keybindings beyond quit.
package tui

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/imbue-ai/mng/internal/concurrency"
	"github.com/imbue-ai/mng/internal/providers"
	"github.com/imbue-ai/mng/internal/query"
	"github.com/imbue-ai/mng/internal/style"
)

// AgentEvent is one row streamed into the model as ListAgents discovers it.
type AgentEvent struct {
	View query.AgentView
}

// Model renders a live-updating list of agents as they're discovered.
// mu guards every field Update/View touch, matching the feed model's
// "all fields read by View() are read under the lock" invariant.
type Model struct {
	mu       sync.RWMutex
	rows     []query.AgentView
	vp       viewport.Model
	width    int
	height   int
	done     chan struct{}
	closeOnce sync.Once
	events   <-chan AgentEvent
	quitting bool
}

func NewModel(events <-chan AgentEvent) *Model {
	return &Model{
		vp:     viewport.New(80, 20),
		done:   make(chan struct{}),
		events: events,
	}
}

// Close signals listenForEvents to stop selecting on the event channel;
// safe to call more than once or concurrently with Update.
func (m *Model) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

func (m *Model) Init() tea.Cmd {
	return m.listenForEvents()
}

type agentEventMsg AgentEvent

func (m *Model) listenForEvents() tea.Cmd {
	m.mu.RLock()
	events := m.events
	done := m.done
	m.mu.RUnlock()

	if events == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case e, ok := <-events:
			if !ok {
				return nil
			}
			return agentEventMsg(e)
		case <-done:
			return nil
		}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.mu.Lock()
		m.width, m.height = msg.Width, msg.Height
		m.vp.Width = msg.Width
		m.vp.Height = msg.Height - 2
		m.mu.Unlock()
		m.updateContent()
		return m, nil

	case agentEventMsg:
		m.mu.Lock()
		m.rows = append(m.rows, msg.View)
		m.mu.Unlock()
		m.updateContent()
		return m, m.listenForEvents()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.mu.Lock()
			m.quitting = true
			m.mu.Unlock()
			m.Close()
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.mu.Lock()
	m.vp, cmd = m.vp.Update(msg)
	m.mu.Unlock()
	return m, cmd
}

// updateContent re-renders the table into the viewport and jumps to the
// bottom so newly streamed rows stay visible.
func (m *Model) updateContent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vp.SetContent(style.AgentTable(m.rows).Render())
	m.vp.GotoBottom()
}

// RunStreamingList drives query.ListAgents in the background, feeding every
// discovered agent into a live bubbletea program, and returns the final
// accumulated result once both the list pass and the UI have finished (the
// UI may finish first if the user quits early, in which case listing is
// left to complete but no further rows are drawn).
func RunStreamingList(ctx context.Context, g *concurrency.Group, provs map[string]providers.Provider, opts query.ListOptions) (*query.ListResult, error) {
	events := make(chan AgentEvent, 64)
	model := NewModel(events)

	origOnAgent := opts.OnAgent
	opts.OnAgent = func(v query.AgentView) {
		if origOnAgent != nil {
			origOnAgent(v)
		}
		select {
		case events <- AgentEvent{View: v}:
		case <-model.done:
		}
	}

	var result *query.ListResult
	var listErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(events)
		result, listErr = query.ListAgents(ctx, g, provs, opts)
	}()

	program := tea.NewProgram(model)
	if _, err := program.Run(); err != nil {
		model.Close()
		<-done
		return result, err
	}
	model.Close()
	<-done
	return result, listErr
}

func (m *Model) View() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.quitting {
		return ""
	}
	footer := style.Dim.Render(fmt.Sprintf("%s · q to quit", style.FormatCount("agent", len(m.rows))))
	return m.vp.View() + "\n" + footer
}
