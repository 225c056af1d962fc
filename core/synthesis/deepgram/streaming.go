package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/Till-X/xiaozhi-sever-DIY/core/synthesis"
)

// Open dials the speak websocket for one utterance. Deepgram has no
// task handshake; the stream accepts text as soon as the socket is up.
func (e *Engine) Open(ctx context.Context, callbacks synthesis.Callbacks) (synthesis.Stream, error) {
	callbacks.EnsureDefaults()

	conn, err := e.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open websocket: %w", err)
	}

	s := &stream{ws: conn, callbacks: callbacks}
	go s.processIncomingMessages()

	callbacks.OnOpen()
	return s, nil
}

func (e *Engine) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := url.Parse(e.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	urlValues := url.Values{}
	urlValues.Set("encoding", e.encoding.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(e.encoding.SampleRate))
	urlValues.Set("model", e.voice)
	urlValues.Set("container", "none")
	endpoint.RawQuery = urlValues.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(),
		http.Header{"Authorization": {"token " + e.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

type stream struct {
	ws *websocket.Conn
	mu sync.Mutex

	callbacks synthesis.Callbacks

	finished bool
	closed   bool

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
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if s.isClosed() || len(msg) == 0 {
				continue
			}
			s.callbacks.OnAudioData(msg)
		case websocket.TextMessage:
			s.processMessage(msg)
		}
	}
}

func (s *stream) processMessage(msg []byte) {
	var parsed struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsed); err != nil {
		log.Printf("Failed to unmarshal deepgram message: %v", err)
		return
	}
	if s.isClosed() {
		return
	}

	switch parsed.Type {
	case "Flushed":
		// The only flush is the one Finish sends, so the confirmation
		// means all audio for the stream has been delivered.
		if s.isFinished() {
			s.callbacks.OnComplete()
		}
	case "Metadata", "Cleared":
	case "Warning":
		var warning struct {
			Description string `json:"description"`
		}
		_ = json.Unmarshal(msg, &warning)
		log.Printf("Deepgram warning: %s", warning.Description)
	case "Error":
		var serviceErr struct {
			Description string `json:"description"`
			ErrMsg      string `json:"err_msg"`
		}
		_ = json.Unmarshal(msg, &serviceErr)
		message := serviceErr.Description
		if message == "" {
			message = serviceErr.ErrMsg
		}
		s.callbacks.OnError(message)
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

	if err := s.sendMessage(sendTextMsg(text)); err != nil {
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

	if err := s.sendMessage(flushMsg); err != nil {
		return fmt.Errorf("failed to flush synthesis buffer: %w", err)
	}
	return nil
}

// Close tears the connection down. A stream closed before Finish clears
// the service-side buffer first so no more audio is produced for it.
func (s *stream) Close(context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	var writeErr error
	if !s.finished {
		writeErr = s.ws.WriteJSON(clearMsg)
	}
	if err := s.ws.WriteJSON(closeMsg); err != nil {
		writeErr = errors.Join(writeErr, err)
	}
	s.mu.Unlock()

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

func (s *stream) isFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

type websocketMessage struct {
	Type string `json:"type"`
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func sendTextMsg(text string) speakMessage {
	return speakMessage{Type: "Speak", Text: text}
}

var (
	flushMsg = websocketMessage{Type: "Flush"}
	clearMsg = websocketMessage{Type: "Clear"}
	closeMsg = websocketMessage{Type: "Close"}
)

func (s *stream) sendMessage(msg any) error {
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
