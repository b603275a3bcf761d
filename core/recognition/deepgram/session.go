package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"

	"github.com/duologue-ai/duologue-core/core/audio"
	"github.com/duologue-ai/duologue-core/core/recognition"
	"github.com/duologue-ai/duologue-core/core/voice"
	"github.com/duologue-ai/duologue-core/internal/utils"
)

// transcriptionSession owns one listen socket. Once settled it delivers
// no further callbacks, whatever the socket still produces.
type transcriptionSession struct {
	engine   *Engine
	conn     *websocket.Conn
	connMu   sync.Mutex
	options  recognition.StartOptions
	encoding audio.EncodingInfo

	settled atomic.Bool

	lastAudioMu sync.Mutex
	lastAudioAt time.Time

	timerMu       sync.Mutex
	noSpeechTimer *time.Timer

	// mu guards the transcript accumulated across partial finals until
	// Deepgram marks the utterance as over
	mu          sync.Mutex
	accumulated string
	confidence  float64
	unended     bool
}

// forwardAudio is the capture callback. Write failures surface through
// the read loop, so they are only logged here.
func (s *transcriptionSession) forwardAudio(chunk []byte) {
	if s.settled.Load() {
		return
	}

	s.lastAudioMu.Lock()
	s.lastAudioAt = time.Now()
	s.lastAudioMu.Unlock()

	s.connMu.Lock()
	err := s.conn.WriteMessage(websocket.BinaryMessage, chunk)
	s.connMu.Unlock()
	if err != nil && !s.settled.Load() {
		log.Println("failed to send audio to deepgram:", err)
	}
}

func (s *transcriptionSession) readLoop(ctx context.Context) {
	silenceCtx, cancelSilence := context.WithCancel(ctx)
	defer cancelSilence()
	go s.keepStreamWarm(silenceCtx)

	for {
		msgType, msg, err := s.conn.ReadMessage()
		if err != nil {
			if s.settled.Load() {
				s.close()
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.fail(voice.New(voice.CodeAborted, "deepgram ended the stream"))
				return
			}
			s.fail(voice.Wrap(voice.CodeNetworkError, "lost connection to deepgram", err))
			return
		}
		if msgType == websocket.BinaryMessage {
			continue
		}
		s.processMessage(msg)
	}
}

func (s *transcriptionSession) processMessage(msg []byte) {
	if s.settled.Load() {
		return
	}

	var header struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &header); err != nil {
		log.Println("failed to parse deepgram message:", err)
		return
	}

	switch api.TypeResponse(header.Type) {
	case api.TypeMessageResponse:
		var result api.MessageResponse
		if err := json.Unmarshal(msg, &result); err != nil {
			log.Println("failed to parse deepgram transcript:", err)
			return
		}
		s.processResult(result)

	case api.TypeUtteranceEndResponse:
		s.mu.Lock()
		unended := s.unended
		s.mu.Unlock()
		if unended {
			s.settleUtterance()
		}

	case api.TypeSpeechStartedResponse:
		s.noteSpeech()
		s.mu.Lock()
		s.unended = true
		s.mu.Unlock()
	}
}

func (s *transcriptionSession) processResult(result api.MessageResponse) {
	if len(result.Channel.Alternatives) == 0 {
		return
	}
	alternative := result.Channel.Alternatives[0]
	transcript := strings.TrimSpace(alternative.Transcript)

	if result.IsFinal {
		if transcript != "" {
			s.noteSpeech()
			s.mu.Lock()
			s.accumulated = strings.TrimSpace(s.accumulated + " " + transcript)
			s.confidence = alternative.Confidence
			s.mu.Unlock()
		}
		if result.SpeechFinal {
			s.settleUtterance()
		}
		return
	}

	if transcript == "" {
		return
	}
	s.noteSpeech()
	if s.options.PartialCallback != nil {
		s.mu.Lock()
		caption := strings.TrimSpace(s.accumulated + " " + transcript)
		s.mu.Unlock()
		s.options.PartialCallback(caption)
	}
}

// settleUtterance flushes the accumulated transcript as one final
// result. Utterances that accumulated nothing settle silently.
func (s *transcriptionSession) settleUtterance() {
	s.mu.Lock()
	transcript := strings.TrimSpace(s.accumulated)
	confidence := s.confidence
	s.accumulated = ""
	s.confidence = 0
	s.unended = false
	s.mu.Unlock()

	if transcript == "" || s.options.FinalCallback == nil {
		return
	}
	s.options.FinalCallback(transcript, confidence)
}

// fail tears the session down and reports verr, unless the session was
// already settled or superseded.
func (s *transcriptionSession) fail(verr *voice.Error) {
	if s.settled.Swap(true) {
		return
	}
	s.stopNoSpeechTimer()
	current := s.engine.clearSession(s)
	if current {
		_ = s.engine.capture.StopCapture()
	}
	s.close()
	if current && s.options.ErrorCallback != nil {
		s.options.ErrorCallback(verr)
	}
}

// shutdown is the quiet teardown used by Engine.Stop. The session is
// already detached from the engine when this runs.
func (s *transcriptionSession) shutdown() error {
	s.settled.Store(true)
	s.stopNoSpeechTimer()

	var captureErr error
	if err := s.engine.capture.StopCapture(); err != nil {
		captureErr = fmt.Errorf("failed to stop audio capture: %w", err)
	}

	s.connMu.Lock()
	_ = s.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: string(api.TypeCloseStreamResponse)})
	_ = s.conn.Close()
	s.connMu.Unlock()

	return captureErr
}

func (s *transcriptionSession) close() {
	s.connMu.Lock()
	_ = s.conn.Close()
	s.connMu.Unlock()
}

func (s *transcriptionSession) armNoSpeechTimer(timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.settled.Load() {
		return
	}
	s.noSpeechTimer = time.AfterFunc(timeout, func() {
		s.fail(voice.New(voice.CodeNoSpeech, "heard nothing before the timeout"))
	})
}

// noteSpeech disarms the no-speech timer, any sign of speech counts.
func (s *transcriptionSession) noteSpeech() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.noSpeechTimer != nil {
		s.noSpeechTimer.Stop()
		s.noSpeechTimer = nil
	}
}

func (s *transcriptionSession) stopNoSpeechTimer() {
	s.noteSpeech()
}

func (s *transcriptionSession) lastAudio() time.Time {
	s.lastAudioMu.Lock()
	defer s.lastAudioMu.Unlock()
	return s.lastAudioAt
}

func (s *transcriptionSession) sendSilence(chunk []byte) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil && !s.settled.Load() {
		log.Println("failed to send silence to deepgram:", err)
	}
}

func (s *transcriptionSession) sendKeepAlive() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if err := s.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: "KeepAlive"}); err != nil && !s.settled.Load() {
		log.Println("failed to send keepalive to deepgram:", err)
	}
}

// keepStreamWarm fills capture gaps so Deepgram does not time the
// session out. Short gaps get silence frames, long ones fall back to
// keepalive messages, and real audio resets the machine.
func (s *transcriptionSession) keepStreamWarm(ctx context.Context) {
	const tick = 50 * time.Millisecond

	chunk := make([]byte, s.encoding.BytesPerSecond()*int(tick.Milliseconds())/1000)
	for i := range chunk {
		chunk[i] = s.encoding.SilenceValue()
	}

	const (
		stateWaiting   = "waiting"
		stateSilence   = "silence"
		stateKeepAlive = "keepAlive"
	)

	state := stateWaiting
	var silenceSince *time.Time
	var lastKeepAlive *time.Time

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		switch state {
		case stateWaiting:
			if time.Since(s.lastAudio()) > tick {
				state = stateSilence
				silenceSince = utils.Ptr(time.Now())
			}

		case stateSilence:
			if time.Since(s.lastAudio()) < tick {
				state = stateWaiting
				silenceSince = nil
				continue
			}
			if time.Since(*silenceSince) >= time.Second {
				state = stateKeepAlive
				lastKeepAlive = utils.Ptr(time.Now())
				silenceSince = nil
				continue
			}
			s.sendSilence(chunk)

		case stateKeepAlive:
			if time.Since(s.lastAudio()) < tick {
				state = stateWaiting
				continue
			}
			if time.Since(*lastKeepAlive) >= 5*time.Second {
				lastKeepAlive = utils.Ptr(time.Now())
				s.sendKeepAlive()
			}
		}
	}
}
