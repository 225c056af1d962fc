package cosyvoice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Till-X/xiaozhi-sever-DIY/core/synthesis"
)

// Open dials the duplex endpoint and runs one synthesis task on the
// connection. It does not return until the service acknowledges the task,
// so a returned stream is immediately ready for text.
func (e *Engine) Open(ctx context.Context, callbacks synthesis.Callbacks) (synthesis.Stream, error) {
	callbacks.EnsureDefaults()

	header := http.Header{"Authorization": {"bearer " + e.apiKey}}
	if e.dataInspection {
		header.Set("X-DashScope-DataInspection", "enable")
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, e.endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to dashscope: %w", err)
	}

	s := &stream{
		ws:        conn,
		callbacks: callbacks,
		taskID:    uuid.NewString(),
		ready:     make(chan error, 1),
	}
	go s.processIncomingMessages()

	if err := s.sendMessage(runTaskMsg(s.taskID, e)); err != nil {
		_ = s.Close(ctx)
		return nil, fmt.Errorf("failed to start synthesis task: %w", err)
	}

	select {
	case err := <-s.ready:
		if err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
	case <-ctx.Done():
		_ = s.Close(ctx)
		return nil, ctx.Err()
	case <-time.After(e.startTimeout):
		_ = s.Close(ctx)
		return nil, fmt.Errorf("task did not start within %v", e.startTimeout)
	}

	return s, nil
}

type stream struct {
	ws *websocket.Conn
	mu sync.Mutex

	callbacks synthesis.Callbacks
	taskID    string

	finished bool
	closed   bool

	ready      chan error
	readyOnce  sync.Once
	closedOnce sync.Once
}

func (s *stream) processIncomingMessages() {
	defer s.closedOnce.Do(s.callbacks.OnClosed)

	for {
		msgType, msg, err := s.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !s.isClosed() {
				log.Printf("Websocket read error: %v", err)
			}
			s.deliverReady(fmt.Errorf("connection closed before the task started: %w", err))
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if s.isClosed() || len(msg) == 0 {
				continue
			}
			s.callbacks.OnAudioData(msg)
		case websocket.TextMessage:
			var parsed incomingMessage
			if err := json.Unmarshal(msg, &parsed); err != nil {
				log.Printf("Failed to unmarshal dashscope message: %v", err)
				continue
			}
			s.processEvent(parsed.Header)
		}
	}
}

func (s *stream) processEvent(header messageHeader) {
	if s.isClosed() {
		return
	}

	switch header.Event {
	case eventTaskStarted:
		s.callbacks.OnOpen()
		s.deliverReady(nil)
	case eventResultGenerated:
		// Subtitle timestamps, no audio. Nothing consumes them yet.
	case eventTaskFinished:
		s.callbacks.OnComplete()
	case eventTaskFailed:
		s.deliverReady(fmt.Errorf("task failed: %s (%s)", header.ErrorMessage, header.ErrorCode))
		s.callbacks.OnError(header.ErrorMessage)
	}
}

func (s *stream) SendText(_ context.Context, text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("synthesis stream closed")
	}
	if s.finished {
		s.mu.Unlock()
		return fmt.Errorf("synthesis stream already finished")
	}
	s.mu.Unlock()

	if err := s.sendMessage(continueTaskMsg(s.taskID, text)); err != nil {
		return fmt.Errorf("failed to send text: %w", err)
	}
	return nil
}

func (s *stream) Finish(context.Context) error {
	s.mu.Lock()
	if s.closed || s.finished {
		s.mu.Unlock()
		return nil
	}
	s.finished = true
	s.mu.Unlock()

	if err := s.sendMessage(finishTaskMsg(s.taskID)); err != nil {
		return fmt.Errorf("failed to finish synthesis task: %w", err)
	}
	return nil
}

// Close tears the connection down without waiting for the service. The
// receive loop notices the socket going away and fires OnClosed.
func (s *stream) Close(context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	writeErr := s.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	if err := s.ws.Close(); err != nil {
		return fmt.Errorf("failed to close websocket: %w", errors.Join(writeErr, err))
	}
	return nil
}

func (s *stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *stream) deliverReady(err error) {
	s.readyOnce.Do(func() { s.ready <- err })
}

func (s *stream) sendMessage(msg outgoingMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("websocket connection closed")
	}

	if err := s.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}

const (
	actionRunTask      = "run-task"
	actionContinueTask = "continue-task"
	actionFinishTask   = "finish-task"

	eventTaskStarted     = "task-started"
	eventResultGenerated = "result-generated"
	eventTaskFinished    = "task-finished"
	eventTaskFailed      = "task-failed"
)

type outgoingMessage struct {
	Header  messageHeader `json:"header"`
	Payload payload       `json:"payload"`
}

type messageHeader struct {
	Action       string `json:"action,omitempty"`
	TaskID       string `json:"task_id"`
	Streaming    string `json:"streaming,omitempty"`
	Event        string `json:"event,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type payload struct {
	TaskGroup  string          `json:"task_group,omitempty"`
	Task       string          `json:"task,omitempty"`
	Function   string          `json:"function,omitempty"`
	Model      string          `json:"model,omitempty"`
	Parameters *taskParameters `json:"parameters,omitempty"`
	Input      taskInput       `json:"input"`
}

type taskParameters struct {
	TextType   string  `json:"text_type"`
	Voice      string  `json:"voice"`
	Format     string  `json:"format"`
	SampleRate int     `json:"sample_rate"`
	Volume     int     `json:"volume"`
	Rate       float64 `json:"rate"`
	Pitch      float64 `json:"pitch"`
}

type taskInput struct {
	Text string `json:"text,omitempty"`
}

type incomingMessage struct {
	Header messageHeader `json:"header"`
}

func runTaskMsg(taskID string, e *Engine) outgoingMessage {
	return outgoingMessage{
		Header: messageHeader{Action: actionRunTask, TaskID: taskID, Streaming: "duplex"},
		Payload: payload{
			TaskGroup: "audio",
			Task:      "tts",
			Function:  "SpeechSynthesizer",
			Model:     e.model,
			Parameters: &taskParameters{
				TextType:   "PlainText",
				Voice:      e.voice,
				Format:     "pcm",
				SampleRate: e.sampleRate,
				Volume:     e.volume,
				Rate:       e.speechRate,
				Pitch:      e.pitch,
			},
		},
	}
}

func continueTaskMsg(taskID, text string) outgoingMessage {
	return outgoingMessage{
		Header:  messageHeader{Action: actionContinueTask, TaskID: taskID, Streaming: "duplex"},
		Payload: payload{Input: taskInput{Text: text}},
	}
}

func finishTaskMsg(taskID string) outgoingMessage {
	return outgoingMessage{
		Header: messageHeader{Action: actionFinishTask, TaskID: taskID, Streaming: "duplex"},
	}
}
