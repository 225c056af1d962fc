package console

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	delivery "github.com/Till-X/xiaozhi-sever-DIY/core"
)

func newTestModel() model {
	input := textinput.New()
	input.Focus()
	return model{
		speak:     func(string) {},
		interrupt: func() {},
		input:     input,
		view:      viewport.New(80, 20),
		width:     80,
	}
}

func update(t *testing.T, m model, msg tea.Msg) model {
	t.Helper()
	updated, _ := m.Update(msg)
	next, ok := updated.(model)
	if !ok {
		t.Fatalf("update returned an unexpected model type %T", updated)
	}
	return next
}

func TestChunkEventCountsBytes(t *testing.T) {
	event := ChunkEvent(delivery.AudioChunk{
		Sentence: delivery.SentenceMiddle,
		Frames:   [][]byte{make([]byte, 480), make([]byte, 480)},
		Text:     "hello",
	})
	if event.Frames != 2 || event.Bytes != 960 || event.Text != "hello" {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.At.IsZero() {
		t.Error("expected a timestamp")
	}
}

func TestEnterSpeaksInputLine(t *testing.T) {
	var spoken []string
	m := newTestModel()
	m.speak = func(text string) { spoken = append(spoken, text) }
	m.input.SetValue("  good morning  ")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if len(spoken) != 1 || spoken[0] != "good morning" {
		t.Fatalf("expected the trimmed line to be spoken, got %v", spoken)
	}
	if m.input.Value() != "" {
		t.Errorf("expected the input to clear, got %q", m.input.Value())
	}
}

func TestEnterIgnoresEmptyLine(t *testing.T) {
	called := false
	m := newTestModel()
	m.speak = func(string) { called = true }
	m.input.SetValue("   ")

	update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if called {
		t.Error("expected no speak call for a blank line")
	}
}

func TestPlayCommandRoutesToLibrary(t *testing.T) {
	var requested []string
	m := newTestModel()
	m.play = func(title string) (string, error) {
		requested = append(requested, title)
		return "So What", nil
	}
	m.input.SetValue("/play so what")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if len(requested) != 1 || requested[0] != "so what" {
		t.Fatalf("expected the title to reach the library, got %v", requested)
	}
	if !strings.Contains(strings.Join(m.lines, "\n"), "So What") {
		t.Error("expected the queued track in the log")
	}
}

func TestPlayCommandWithoutLibrary(t *testing.T) {
	m := newTestModel()
	m.input.SetValue("/play anything")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if !strings.Contains(strings.Join(m.lines, "\n"), "no music library") {
		t.Error("expected a missing-library notice in the log")
	}
}

func TestEscTriggersInterrupt(t *testing.T) {
	calls := 0
	m := newTestModel()
	m.interrupt = func() { calls++ }

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	if calls != 1 {
		t.Fatalf("expected one interrupt call, got %d", calls)
	}
	if m.interrupts != 1 {
		t.Errorf("expected the interrupt counter to advance, got %d", m.interrupts)
	}
}

func TestChunkEventsAccumulate(t *testing.T) {
	m := newTestModel()

	base := time.Now()
	m = update(t, m, eventMsg(Event{Sentence: delivery.SentenceFirst, Frames: 6, Bytes: 5760, At: base}))
	m = update(t, m, eventMsg(Event{Sentence: delivery.SentenceLast, Frames: 1, Bytes: 960, Text: "hi", At: base.Add(60 * time.Millisecond)}))

	if m.chunks != 2 || m.frames != 7 {
		t.Fatalf("expected 2 chunks and 7 frames, got %d and %d", m.chunks, m.frames)
	}
	log := strings.Join(m.lines, "\n")
	if !strings.Contains(log, "+60ms") {
		t.Errorf("expected pacing in the log, got %q", log)
	}
	if !strings.Contains(log, "hi") {
		t.Errorf("expected chunk text in the log, got %q", log)
	}
}
