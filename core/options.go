package orchestration

import (
	"context"
	"log/slog"
	"time"

	"github.com/duologue-ai/duologue-core/core/recognition"
	"github.com/duologue-ai/duologue-core/core/synthesis"
	"github.com/duologue-ai/duologue-core/core/voice"
)

// RecognitionEngine is the capability contract for speech-recognition
// engines bound to an orchestrator.
//
// Start returns once the engine is capturing; results then stream through
// the configured callbacks until the session ends. A cancelled context is
// the cooperative stop signal: the engine halts and either reports ABORTED
// or ends silently. Stop may be called from within a result callback and
// must not deadlock.
type RecognitionEngine interface {
	Availability(ctx context.Context) voice.Availability
	Start(ctx context.Context, opts ...recognition.StartOption) error
	Stop(ctx context.Context) error
	IsActive() bool
}

// SynthesisEngine is the capability contract for speech-synthesis engines.
//
// Speak blocks until playback completes, fails, or the context is
// cancelled. Stop interrupts an in-flight Speak.
type SynthesisEngine interface {
	Availability(ctx context.Context) voice.Availability
	Speak(ctx context.Context, text string, opts ...synthesis.SpeakOption) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
	Voices(ctx context.Context) ([]voice.Voice, error)
	IsActive() bool
	IsPaused() bool
}

type OrchestratorOption func(*Orchestrator)

// WithLogger replaces the default telemetry-bridged logger. The logging
// policy still applies: silent failure codes are never logged.
func WithLogger(log *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

// WithErrorHandler registers the process-wide error callback. It observes
// every non-silent failure after normalization, regardless of which
// operation produced it.
func WithErrorHandler(handler func(err *voice.Error)) OrchestratorOption {
	return func(o *Orchestrator) { o.onError = handler }
}

// WithErrorMapper registers a lookup that classifies engine-specific
// failures. It runs before the built-in rules; returning false falls
// through to the failing operation's fallback code.
func WithErrorMapper(mapper func(err error) (voice.Code, bool)) OrchestratorOption {
	return func(o *Orchestrator) { o.mapCode = mapper }
}

// WithClock overrides the time source used for session and transcript
// timestamps.
func WithClock(clock func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

type ListenOptions struct {
	continuous    bool
	errorCallback func(err *voice.Error)
}

type ListenOption func(*ListenOptions)

// WithContinuous keeps the session alive past final results; the handle
// then settles only on stop, cancellation, or failure.
func WithContinuous() ListenOption {
	return func(o *ListenOptions) { o.continuous = true }
}

// WithErrorCallback registers a per-call error callback, invoked for
// non-silent failures of this session before the process-wide handler.
func WithErrorCallback(callback func(err *voice.Error)) ListenOption {
	return func(o *ListenOptions) { o.errorCallback = callback }
}

const (
	// minConversationPause is the anti-feedback floor: the loop never
	// resumes listening sooner than this after speaking, so the recognizer
	// does not transcribe the tail of its own speech.
	minConversationPause = 500 * time.Millisecond

	defaultConversationPause      = time.Second
	defaultConversationRetryDelay = time.Second
)

type ConversationOptions struct {
	pause        time.Duration
	silenceDelay time.Duration
	retryDelay   time.Duration
	captions     bool
	speakOptions []synthesis.SpeakOption
}

type ConversationOption func(*ConversationOptions)

// WithPause sets the requested pause between a spoken response and the next
// listening attempt. Values below the anti-feedback floor are raised to it.
func WithPause(pause time.Duration) ConversationOption {
	return func(o *ConversationOptions) { o.pause = pause }
}

// WithSilenceDelay sets how long the loop waits before listening again
// after a turn in which no speech was detected. The default is zero: the
// loop re-listens immediately after silence.
func WithSilenceDelay(delay time.Duration) ConversationOption {
	return func(o *ConversationOptions) { o.silenceDelay = delay }
}

// WithRetryDelay sets the wait before retrying a turn that failed with a
// recoverable error.
func WithRetryDelay(delay time.Duration) ConversationOption {
	return func(o *ConversationOptions) {
		if delay > 0 {
			o.retryDelay = delay
		}
	}
}

// WithCaptions mirrors interim recognition results into the transcript
// while the loop listens.
func WithCaptions() ConversationOption {
	return func(o *ConversationOptions) { o.captions = true }
}

// WithSpeakOptions forwards synthesis options to every spoken response.
func WithSpeakOptions(opts ...synthesis.SpeakOption) ConversationOption {
	return func(o *ConversationOptions) { o.speakOptions = append(o.speakOptions, opts...) }
}

type LoopOptions struct {
	singleTurn bool
}

type LoopOption func(*LoopOptions)

// WithSingleTurn runs exactly one listen-respond-speak turn instead of
// looping until stopped.
func WithSingleTurn() LoopOption {
	return func(o *LoopOptions) { o.singleTurn = true }
}
