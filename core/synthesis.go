package orchestration

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/duologue-ai/duologue-core/core/synthesis"
	"github.com/duologue-ai/duologue-core/core/voice"
)

// SynthesisSnapshot is the observable state of the synthesis session.
type SynthesisSnapshot struct {
	Active    bool
	Paused    bool
	StartedAt time.Time
	PausedAt  time.Time
}

type synthesisSession struct {
	id        string
	text      string
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time
	// pausedAt is zero while playback runs.
	pausedAt time.Time
}

// Speak synthesizes text and blocks until playback completes or fails. A
// running utterance is retired first. Cancelling the context aborts the
// utterance without surfacing an error.
func (o *Orchestrator) Speak(ctx context.Context, text string, opts ...synthesis.SpeakOption) error {
	if verr := o.speak(ctx, text, opts...); verr != nil && !verr.Code.Silent() {
		return verr
	}
	return nil
}

// speak is the manager-level synthesis call; unlike Speak it hands silent
// failure codes back to the caller so the conversation loop can react to
// aborts.
func (o *Orchestrator) speak(ctx context.Context, text string, opts ...synthesis.SpeakOption) *voice.Error {
	ctx, span := tracer.Start(ctx, "speak")
	defer span.End()

	o.mu.Lock()
	engine := o.synthesisEngine
	o.mu.Unlock()
	if engine == nil {
		err := voice.New(voice.CodeTTSNotAvailable, "no synthesis engine bound", voice.WithOp("synthesis"))
		return o.handleFailure(ctx, "synthesis", err, voice.CodeTTSNotAvailable, nil)
	}

	o.stopSynthesisSession(ctx, nil, true)

	sessionCtx, cancel := context.WithCancel(ctx)
	session := &synthesisSession{
		id:        uuid.NewString(),
		text:      text,
		ctx:       sessionCtx,
		cancel:    cancel,
		startedAt: o.clock(),
	}

	o.mu.Lock()
	o.synthesisSession = session
	o.lastError = nil
	// The utterance joins the transcript up front so observers see what is
	// being spoken while it plays.
	o.transcript.addFinal(RoleAssistant, text)
	o.mu.Unlock()
	o.synthesisFeed.invalidate()
	o.readinessFeed.invalidate()
	o.transcriptFeed.invalidate()

	err := engine.Speak(sessionCtx, text, opts...)

	if cleared := o.clearSynthesisSession(session); cleared != nil {
		cleared.cancel()
	}

	if err != nil {
		return o.handleFailure(sessionCtx, "synthesis", err, voice.CodeTTSFailed, nil)
	}
	return nil
}

// PauseSpeaking pauses the running utterance. Without a running, unpaused
// utterance it does nothing.
func (o *Orchestrator) PauseSpeaking(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "pause synthesis")
	defer span.End()

	o.mu.Lock()
	session := o.synthesisSession
	engine := o.synthesisEngine
	if session == nil || !session.pausedAt.IsZero() {
		o.mu.Unlock()
		return nil
	}
	session.pausedAt = o.clock()
	o.mu.Unlock()
	o.synthesisFeed.invalidate()

	if err := engine.Pause(ctx); err != nil {
		return o.handleFailure(ctx, "synthesis pause", err, voice.CodeTTSFailed, nil)
	}
	return nil
}

// ResumeSpeaking resumes a paused utterance. Without a paused utterance it
// does nothing.
func (o *Orchestrator) ResumeSpeaking(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "resume synthesis")
	defer span.End()

	o.mu.Lock()
	session := o.synthesisSession
	engine := o.synthesisEngine
	if session == nil || session.pausedAt.IsZero() {
		o.mu.Unlock()
		return nil
	}
	session.pausedAt = time.Time{}
	o.mu.Unlock()
	o.synthesisFeed.invalidate()

	if err := engine.Resume(ctx); err != nil {
		return o.handleFailure(ctx, "synthesis resume", err, voice.CodeTTSFailed, nil)
	}
	return nil
}

// StopSpeaking ends the running utterance, if any. Observers see the
// session go inactive before the engine is told to stop, and engine stop
// failures are only logged: stop always succeeds for the caller.
func (o *Orchestrator) StopSpeaking(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "stop synthesis")
	defer span.End()

	o.stopSynthesisSession(ctx, nil, true)
}

// IsSpeaking reports whether an utterance is active.
func (o *Orchestrator) IsSpeaking() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.synthesisSession != nil
}

func (o *Orchestrator) stopSynthesisSession(ctx context.Context, session *synthesisSession, stopEngine bool) bool {
	cleared := o.clearSynthesisSession(session)
	if cleared == nil {
		return false
	}

	cleared.cancel()

	if stopEngine {
		o.mu.Lock()
		engine := o.synthesisEngine
		o.mu.Unlock()
		o.stopSynthesisEngine(ctx, engine)
	}
	return true
}

func (o *Orchestrator) clearSynthesisSession(session *synthesisSession) *synthesisSession {
	o.mu.Lock()
	current := o.synthesisSession
	if current == nil || (session != nil && current != session) {
		o.mu.Unlock()
		return nil
	}
	o.synthesisSession = nil
	o.mu.Unlock()

	o.synthesisFeed.invalidate()
	return current
}

func (o *Orchestrator) stopSynthesisEngine(ctx context.Context, engine SynthesisEngine) {
	if engine == nil {
		return
	}
	if err := engine.Stop(ctx); err != nil {
		o.log.Warn("synthesis engine stop failed", slog.String("error", err.Error()))
	}
}
