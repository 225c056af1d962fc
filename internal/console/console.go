// Package console is an interactive terminal for driving the delivery
// pipeline by hand: type a line to speak it, queue music, trigger
// interrupts, and watch chunks leave with their pacing.
package console

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	delivery "github.com/Till-X/xiaozhi-sever-DIY/core"
	"github.com/Till-X/xiaozhi-sever-DIY/core/music"
)

// Event is one delivered chunk as the console displays it.
type Event struct {
	Sentence delivery.SentenceKind
	Frames   int
	Bytes    int
	Text     string
	At       time.Time
}

// ChunkEvent converts a delivered chunk into a console event.
func ChunkEvent(chunk delivery.AudioChunk) Event {
	bytes := 0
	for _, frame := range chunk.Frames {
		bytes += len(frame)
	}
	return Event{
		Sentence: chunk.Sentence,
		Frames:   len(chunk.Frames),
		Bytes:    bytes,
		Text:     chunk.Text,
		At:       time.Now(),
	}
}

type Console struct {
	pipeline    *delivery.Pipeline
	library     *music.Library
	events      chan Event
	onInterrupt func()
}

// New builds a console around a running pipeline. The library may be nil;
// the /play command then reports that no music is configured.
func New(pipeline *delivery.Pipeline, library *music.Library) *Console {
	return &Console{
		pipeline: pipeline,
		library:  library,
		events:   make(chan Event, 64),
	}
}

// OnInterrupt registers a hook that runs alongside every user-triggered
// interrupt, for cutting off a local playback sink.
func (c *Console) OnInterrupt(hook func()) {
	c.onInterrupt = hook
}

// Observe feeds one delivered chunk into the console's event stream. Safe
// to call from the sequencer goroutine; a full stream drops the event
// rather than stalling delivery.
func (c *Console) Observe(chunk delivery.AudioChunk) {
	select {
	case c.events <- ChunkEvent(chunk):
	default:
	}
}

// Run blocks until the user quits or the context ends.
func (c *Console) Run(ctx context.Context) error {
	program := tea.NewProgram(c.newModel(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("console stopped: %w", err)
	}
	return nil
}
