package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Till-X/xiaozhi-sever-DIY/core/synthesis"
)

// scriptedSpeak plays the service side of the speak protocol: echo Speak
// text back as a binary frame, confirm Flush with Flushed.
type scriptedSpeak struct {
	upgrader websocket.Upgrader

	mu     sync.Mutex
	spoken []string
}

func (s *scriptedSpeak) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var parsed struct {
				Type string `json:"type"`
				Text string `json:"text"`
			}
			if err := json.Unmarshal(msg, &parsed); err != nil {
				continue
			}

			switch parsed.Type {
			case "Speak":
				s.mu.Lock()
				s.spoken = append(s.spoken, parsed.Text)
				s.mu.Unlock()
				_ = conn.WriteMessage(websocket.BinaryMessage, []byte(parsed.Text))
			case "Flush":
				_ = conn.WriteJSON(websocketMessage{Type: "Flushed"})
			case "Close":
				return
			}
		}
	}
}

func (s *scriptedSpeak) spokenTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

func newScriptedEngine(t *testing.T, script *scriptedSpeak) *Engine {
	t.Helper()

	server := httptest.NewServer(script.handler())
	t.Cleanup(server.Close)

	engine, err := New(synthesis.Config{APIKey: "test-key"},
		WithEndpoint("ws"+strings.TrimPrefix(server.URL, "http")))
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}
	return engine
}

func TestNewRequiresCredentials(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "")

	if _, err := New(synthesis.Config{}); !errors.Is(err, synthesis.ErrMissingCredentials) {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
}

func TestNewRejectsUnknownVoice(t *testing.T) {
	if _, err := New(synthesis.Config{APIKey: "test-key", Voice: "aura-nonexistent-en"}); err == nil {
		t.Fatalf("expected an invalid voice error")
	}
}

func TestStreamSpeaksAndCompletes(t *testing.T) {
	script := &scriptedSpeak{}
	engine := newScriptedEngine(t, script)

	var mu sync.Mutex
	var batches [][]byte
	completed := make(chan struct{})

	stream, err := engine.Open(context.Background(), synthesis.Callbacks{
		OnAudioData: func(pcm []byte) {
			mu.Lock()
			batches = append(batches, append([]byte(nil), pcm...))
			mu.Unlock()
		},
		OnComplete: func() { close(completed) },
	})
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	defer func() { _ = stream.Close(context.Background()) }()

	if err := stream.SendText(context.Background(), "good morning"); err != nil {
		t.Fatalf("failed to send text: %v", err)
	}
	if err := stream.Finish(context.Background()); err != nil {
		t.Fatalf("failed to finish stream: %v", err)
	}

	select {
	case <-completed:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for completion")
	}

	mu.Lock()
	echoed := len(batches) == 1 && string(batches[0]) == "good morning"
	mu.Unlock()
	if !echoed {
		t.Fatalf("expected the sent text echoed back as one audio frame")
	}
	if spoken := script.spokenTexts(); len(spoken) != 1 || spoken[0] != "good morning" {
		t.Fatalf("expected one speak message, got %v", spoken)
	}
}

func TestCloseBeforeFinishIsAccepted(t *testing.T) {
	script := &scriptedSpeak{}
	engine := newScriptedEngine(t, script)

	stream, err := engine.Open(context.Background(), synthesis.Callbacks{})
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}

	if err := stream.SendText(context.Background(), "cut short"); err != nil {
		t.Fatalf("failed to send text: %v", err)
	}
	if err := stream.Close(context.Background()); err != nil {
		t.Fatalf("failed to close stream: %v", err)
	}
	if err := stream.SendText(context.Background(), "after close"); err == nil {
		t.Fatalf("expected sending after close to fail")
	}
}
