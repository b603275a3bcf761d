package deepgram

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/duologue-ai/duologue-core/core/voice"
)

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type controlMessage struct {
	Type string `json:"type"`
}

// speechSession owns one speak socket for one utterance. Audio frames
// go straight to the playback device; the Flushed confirmation marks
// the end of the generated audio.
type speechSession struct {
	engine *Engine
	conn   *websocket.Conn
	connMu sync.Mutex

	flushed   chan struct{}
	flushOnce sync.Once
	failed    chan *voice.Error
	stopped   chan struct{}
	stopOnce  sync.Once
	settled   atomic.Bool
}

func (s *speechSession) readLoop() {
	for {
		msgType, msg, err := s.conn.ReadMessage()
		if err != nil {
			if s.settled.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			s.failWith(voice.Wrap(voice.CodeNetworkError, "lost connection to deepgram", err))
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if len(msg) == 0 {
				continue
			}
			if err := s.engine.playback.SendAudio(msg); err != nil {
				s.failWith(voice.Wrap(voice.CodeTTSFailed, "failed to queue audio for playback", err))
				return
			}

		case websocket.TextMessage:
			var parsed controlMessage
			if err := json.Unmarshal(msg, &parsed); err != nil {
				log.Println("failed to parse deepgram message:", err)
				continue
			}
			if parsed.Type == "Flushed" {
				s.flushOnce.Do(func() { close(s.flushed) })
			}
		}
	}
}

func (s *speechSession) send(msg any) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn.WriteJSON(msg)
}

func (s *speechSession) failWith(verr *voice.Error) {
	select {
	case s.failed <- verr:
	default:
	}
}

// halt wakes a blocked Speak without reporting an error.
func (s *speechSession) halt() {
	s.stopOnce.Do(func() { close(s.stopped) })
	s.interrupt()
}

// interrupt closes the socket. Safe to call more than once.
func (s *speechSession) interrupt() {
	s.settled.Store(true)
	s.connMu.Lock()
	_ = s.conn.WriteJSON(controlMessage{Type: "Close"})
	_ = s.conn.Close()
	s.connMu.Unlock()
}
