// Package deepgram turns text into speech through Deepgram's speak API
// and queues the audio on a playback device.
package deepgram

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/duologue-ai/duologue-core/core/audio"
	"github.com/duologue-ai/duologue-core/core/synthesis"
	"github.com/duologue-ai/duologue-core/core/voice"
)

const (
	speakEndpoint  = "wss://api.deepgram.com/v1/speak"
	modelsEndpoint = "https://api.deepgram.com/v1/models"
	defaultVoice   = "aura-asteria-en"
)

// PlaybackDevice is the audio sink contract the engine consumes. The
// hardware clients satisfy it.
type PlaybackDevice interface {
	SendAudio(audio []byte) error
	AwaitMark() error
	ClearBuffer()
	Pause() error
	Resume() error
	EncodingInfo() audio.EncodingInfo
}

type Option func(*Engine)

// WithAPIKey overrides the DEEPGRAM_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(e *Engine) { e.apiKey = key }
}

// WithVoice sets the default voice model. A voice passed per speak call
// wins over it.
func WithVoice(id string) Option {
	return func(e *Engine) {
		if id != "" {
			e.voice = id
		}
	}
}

func WithPlayback(device PlaybackDevice) Option {
	return func(e *Engine) { e.playback = device }
}

type Engine struct {
	apiKey   string
	voice    string
	playback PlaybackDevice

	// overridable in tests
	speakURL  string
	modelsURL string

	mu      sync.Mutex
	session *speechSession
	paused  bool
}

func NewEngine(opts ...Option) *Engine {
	engine := Engine{
		voice:     defaultVoice,
		speakURL:  speakEndpoint,
		modelsURL: modelsEndpoint,
	}
	for _, opt := range opts {
		opt(&engine)
	}
	if engine.apiKey == "" {
		engine.apiKey = os.Getenv("DEEPGRAM_API_KEY")
	}
	return &engine
}

func (e *Engine) Availability(_ context.Context) voice.Availability {
	if e.apiKey == "" {
		return voice.Availability{Details: "deepgram api key not set"}
	}
	if e.playback == nil {
		return voice.Availability{Details: "no playback device configured"}
	}
	return voice.Availability{Synthesis: true}
}

// Speak synthesizes text and blocks until the playback device has
// drained the audio, the context is cancelled, or Stop interrupts it.
func (e *Engine) Speak(ctx context.Context, text string, opts ...synthesis.SpeakOption) error {
	options := synthesis.SpeakOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	model := e.voice
	if options.VoiceID != "" {
		model = options.VoiceID
	}

	if e.apiKey == "" {
		return voice.New(voice.CodeTTSNotAvailable, "deepgram api key not set")
	}
	if e.playback == nil {
		return voice.New(voice.CodeTTSNotAvailable, "no playback device configured")
	}

	info := e.playback.EncodingInfo()
	if info.IsZero() {
		info = audio.GetDefaultEncodingInfo()
	}
	encoding, err := validateFormat(info)
	if err != nil {
		return voice.Wrap(voice.CodeTTSFailed, "unsupported playback format", err)
	}

	if err := e.Stop(ctx); err != nil {
		log.Println("failed to stop previous playback:", err)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, e.utteranceURL(model, encoding), http.Header{"Authorization": {"token " + e.apiKey}})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return voice.Wrap(voice.CodePermissionDenied, "deepgram rejected the api key", err)
		}
		return voice.Wrap(voice.CodeNetworkError, "failed to reach deepgram", err)
	}

	session := &speechSession{
		engine:  e,
		conn:    conn,
		flushed: make(chan struct{}),
		failed:  make(chan *voice.Error, 1),
		stopped: make(chan struct{}),
	}

	e.mu.Lock()
	e.session = session
	e.paused = false
	e.mu.Unlock()

	go session.readLoop()

	defer func() {
		e.clearSession(session)
		session.interrupt()
	}()

	if err := session.send(speakMessage{Type: "Speak", Text: text}); err != nil {
		return voice.Wrap(voice.CodeNetworkError, "failed to send text to deepgram", err)
	}
	if err := session.send(controlMessage{Type: "Flush"}); err != nil {
		return voice.Wrap(voice.CodeNetworkError, "failed to flush deepgram stream", err)
	}

	select {
	case <-ctx.Done():
		e.playback.ClearBuffer()
		return voice.New(voice.CodeAborted, "playback interrupted")
	case <-session.stopped:
		return nil
	case verr := <-session.failed:
		e.playback.ClearBuffer()
		return verr
	case <-session.flushed:
	}

	// every frame is queued on the device now, wait for it to play out
	drained := make(chan struct{})
	go func() {
		_ = e.playback.AwaitMark()
		close(drained)
	}()

	select {
	case <-ctx.Done():
		e.playback.ClearBuffer()
		return voice.New(voice.CodeAborted, "playback interrupted")
	case <-session.stopped:
		return nil
	case <-drained:
	}
	return nil
}

// Pause suspends playback of the current utterance. Speaking with no
// utterance in flight is left untouched.
func (e *Engine) Pause(_ context.Context) error {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session == nil {
		return nil
	}

	if err := e.playback.Pause(); err != nil {
		return voice.Wrap(voice.CodeTTSFailed, "failed to pause playback", err)
	}
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	return nil
}

func (e *Engine) Resume(_ context.Context) error {
	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session == nil {
		return nil
	}

	if err := e.playback.Resume(); err != nil {
		return voice.Wrap(voice.CodeTTSFailed, "failed to resume playback", err)
	}
	e.mu.Lock()
	e.paused = false
	e.mu.Unlock()
	return nil
}

// Stop interrupts an in-flight Speak, discards queued audio, and leaves
// the device running for the next utterance.
func (e *Engine) Stop(_ context.Context) error {
	e.mu.Lock()
	session := e.session
	wasPaused := e.paused
	e.session = nil
	e.paused = false
	e.mu.Unlock()

	if session == nil {
		return nil
	}
	session.halt()

	e.playback.ClearBuffer()
	if wasPaused {
		if err := e.playback.Resume(); err != nil {
			return voice.Wrap(voice.CodeTTSFailed, "failed to resume playback after stop", err)
		}
	}
	return nil
}

func (e *Engine) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}

func (e *Engine) IsPaused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *Engine) clearSession(session *speechSession) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != session {
		return false
	}
	e.session = nil
	return true
}

func (e *Engine) utteranceURL(model string, encoding audio.EncodingInfo) string {
	speak, _ := url.Parse(e.speakURL)
	query := speak.Query()
	query.Set("encoding", encoding.Encoding.Name())
	query.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	query.Set("model", model)
	query.Set("container", "none")
	speak.RawQuery = query.Encode()
	return speak.String()
}

// validateFormat checks the playback format against what the speak API
// can produce with container=none.
func validateFormat(info audio.EncodingInfo) (audio.EncodingInfo, error) {
	switch info.SampleRate {
	case 8000, 16000, 24000, 32000, 48000:
	default:
		return audio.EncodingInfo{}, fmt.Errorf("unsupported sample rate %d", info.SampleRate)
	}
	switch info.Encoding {
	case audio.EncodingLinear16:
	case audio.EncodingALaw, audio.EncodingMulaw:
		if info.SampleRate != 8000 {
			return audio.EncodingInfo{}, fmt.Errorf("%s encoding requires an 8kHz stream", info.Encoding.Name())
		}
	default:
		return audio.EncodingInfo{}, fmt.Errorf("unsupported encoding %q", info.Encoding.Name())
	}
	return info, nil
}
