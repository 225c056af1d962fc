package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	delivery "github.com/Till-X/xiaozhi-sever-DIY/core"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))
	firstStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	lastStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	chunkStyle     = lipgloss.NewStyle()
	interruptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle      = lipgloss.NewStyle().Faint(true)
)

type model struct {
	speak     func(text string)
	interrupt func()
	play      func(title string) (string, error)
	events    <-chan Event

	input textinput.Model
	view  viewport.Model
	lines []string
	width int

	chunks     int
	frames     int
	interrupts int
	lastChunk  time.Time
}

type eventMsg Event

func waitForEvent(events <-chan Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-events)
	}
}

func (c *Console) newModel() model {
	input := textinput.New()
	input.Placeholder = "type a sentence and press enter"
	input.CharLimit = 512
	input.Focus()

	m := model{
		speak: func(text string) { c.pipeline.Speak(text) },
		interrupt: func() {
			c.pipeline.Interrupt().Trigger()
			if c.onInterrupt != nil {
				c.onInterrupt()
			}
		},
		events: c.events,
		input:     input,
		view:      viewport.New(80, 20),
		width:     80,
	}
	if c.library != nil {
		m.play = func(title string) (string, error) {
			track, err := c.library.Queue(c.pipeline, title)
			return track.Title, err
		}
	}
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.events))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.view.Width = msg.Width
		m.view.Height = max(msg.Height-4, 3)
		m.input.Width = max(msg.Width-4, 20)
		m.refresh()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			m.interrupt()
			m.interrupts++
			m.append(interruptStyle.Render("interrupt"))
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if line == "" {
				break
			}
			if title, ok := strings.CutPrefix(line, "/play"); ok {
				m.handlePlay(strings.TrimSpace(title))
				break
			}
			m.speak(line)
			m.append(userStyle.Render("you: " + line))
		}

	case eventMsg:
		m.appendChunk(Event(msg))
		cmds = append(cmds, waitForEvent(m.events))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.view, cmd = m.view.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *model) handlePlay(title string) {
	if m.play == nil {
		m.append(interruptStyle.Render("no music library configured"))
		return
	}
	name, err := m.play(title)
	if err != nil {
		m.append(interruptStyle.Render("play failed: " + err.Error()))
		return
	}
	m.append(userStyle.Render("queued: " + name))
}

func (m *model) appendChunk(event Event) {
	gap := "      "
	if !m.lastChunk.IsZero() {
		gap = fmt.Sprintf("+%dms", event.At.Sub(m.lastChunk).Milliseconds())
	}
	m.lastChunk = event.At
	m.chunks++
	m.frames += event.Frames

	line := fmt.Sprintf("%s %6s %-6s %2df %6dB",
		event.At.Format("15:04:05.000"), gap, event.Sentence, event.Frames, event.Bytes)
	if event.Text != "" {
		line += " " + event.Text
	}

	switch event.Sentence {
	case delivery.SentenceFirst:
		line = firstStyle.Render(line)
	case delivery.SentenceLast:
		line = lastStyle.Render(line)
	default:
		line = chunkStyle.Render(line)
	}
	m.append(line)
}

func (m *model) append(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > 500 {
		m.lines = m.lines[len(m.lines)-500:]
	}
	m.refresh()
}

func (m *model) refresh() {
	m.view.SetContent(wordwrap.String(strings.Join(m.lines, "\n"), m.width))
	m.view.GotoBottom()
}

func (m model) View() string {
	title := titleStyle.Render("voicepipe console")
	status := helpStyle.Render(fmt.Sprintf(" %d chunks / %d frames / %d interrupts", m.chunks, m.frames, m.interrupts))
	help := helpStyle.Render("enter speak • /play title • esc interrupt • ctrl+c quit")
	return title + status + "\n" + m.view.View() + "\n" + m.input.View() + "\n" + help
}
