// Package deepgram streams microphone audio to Deepgram's live listen
// API and reports transcripts through the recognition callbacks.
package deepgram

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/duologue-ai/duologue-core/core/audio"
	"github.com/duologue-ai/duologue-core/core/recognition"
	"github.com/duologue-ai/duologue-core/core/voice"
)

const (
	listenEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
	defaultLanguage = "en-US"
)

// CaptureDevice is the audio source contract the engine consumes. The
// hardware clients and the WAV file source all satisfy it.
type CaptureDevice interface {
	Stream(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
	EncodingInfo() audio.EncodingInfo
}

type Option func(*Engine)

// WithAPIKey overrides the DEEPGRAM_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(e *Engine) { e.apiKey = key }
}

func WithModel(model string) Option {
	return func(e *Engine) {
		if model != "" {
			e.model = model
		}
	}
}

// WithLanguage sets the default recognition language. A language passed
// per start wins over it.
func WithLanguage(tag string) Option {
	return func(e *Engine) {
		if tag != "" {
			e.language = tag
		}
	}
}

func WithCapture(device CaptureDevice) Option {
	return func(e *Engine) { e.capture = device }
}

// WithNoSpeechTimeout ends a session with NO_SPEECH when nothing is
// heard for the whole duration. Zero disables the timeout, which is the
// default and the right choice for continuous sessions.
func WithNoSpeechTimeout(d time.Duration) Option {
	return func(e *Engine) { e.noSpeechTimeout = d }
}

type Engine struct {
	apiKey          string
	model           string
	language        string
	capture         CaptureDevice
	noSpeechTimeout time.Duration

	mu      sync.Mutex
	session *transcriptionSession
}

func NewEngine(opts ...Option) *Engine {
	engine := Engine{
		model:    defaultModel,
		language: defaultLanguage,
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
	if e.capture == nil {
		return voice.Availability{Details: "no capture device configured"}
	}
	return voice.Availability{Recognition: true}
}

// Start opens a listen socket and begins forwarding capture audio to
// it. Results stream through the configured callbacks until the session
// ends.
func (e *Engine) Start(ctx context.Context, opts ...recognition.StartOption) error {
	options := recognition.StartOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Language == "" {
		options.Language = e.language
	}

	if e.apiKey == "" {
		return voice.New(voice.CodeSTTNotAvailable, "deepgram api key not set")
	}
	if e.capture == nil {
		return voice.New(voice.CodeSTTNotAvailable, "no capture device configured")
	}

	info := e.capture.EncodingInfo()
	if info.IsZero() {
		info = audio.GetDefaultEncodingInfo()
	}
	encoding, err := convertEncoding(info)
	if err != nil {
		return voice.Wrap(voice.CodeAudioCaptureFailed, "unsupported capture format", err)
	}

	if err := e.Stop(ctx); err != nil {
		log.Println("failed to stop previous recognition session:", err)
	}

	config := sessionConfig{
		model:    e.model,
		language: options.Language,
		encoding: encoding,

		interimResults:  options.PartialCallback != nil,
		detectUtterance: options.FinalCallback != nil,
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, config.url(), http.Header{"Authorization": {"Token " + e.apiKey}})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return voice.Wrap(voice.CodePermissionDenied, "deepgram rejected the api key", err)
		}
		return voice.Wrap(voice.CodeNetworkError, "failed to reach deepgram", err)
	}

	session := &transcriptionSession{
		engine:      e,
		conn:        conn,
		options:     options,
		encoding:    encoding,
		lastAudioAt: time.Now(),
	}

	e.mu.Lock()
	e.session = session
	e.mu.Unlock()

	go session.readLoop(ctx)

	if err := e.capture.Stream(ctx, session.forwardAudio); err != nil {
		session.settled.Store(true)
		e.clearSession(session)
		session.close()
		return voice.Wrap(voice.CodeAudioCaptureFailed, "failed to start audio capture", err)
	}

	session.armNoSpeechTimer(e.noSpeechTimeout)
	return nil
}

// Stop ends the current session without delivering further callbacks.
// It is safe to call with no session running and from inside a result
// callback.
func (e *Engine) Stop(_ context.Context) error {
	e.mu.Lock()
	session := e.session
	e.session = nil
	e.mu.Unlock()

	if session == nil {
		return nil
	}
	return session.shutdown()
}

func (e *Engine) IsActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}

// clearSession detaches session if it is still current and reports
// whether it was.
func (e *Engine) clearSession(session *transcriptionSession) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != session {
		return false
	}
	e.session = nil
	return true
}

type sessionConfig struct {
	model    string
	language string
	encoding audio.EncodingInfo

	interimResults  bool
	detectUtterance bool
}

func (c sessionConfig) url() string {
	listenURL, _ := url.Parse(listenEndpoint)
	query := listenURL.Query()
	query.Set("encoding", c.encoding.Encoding.Name())
	query.Set("sample_rate", strconv.Itoa(c.encoding.SampleRate))
	query.Set("channels", "1")
	query.Set("model", c.model)
	if c.language != "" {
		query.Set("language", c.language)
	}
	query.Set("smart_format", "true")
	if c.detectUtterance {
		query.Set("interim_results", "true")
		query.Set("utterance_end_ms", "1000")
		query.Set("vad_events", "true")
	} else if c.interimResults {
		query.Set("interim_results", "true")
	}
	query.Set("endpointing", "300")
	listenURL.RawQuery = query.Encode()
	return listenURL.String()
}
