package orchestration

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/duologue-ai/duologue-core/core/recognition"
	"github.com/duologue-ai/duologue-core/core/voice"
)

// SessionKind distinguishes one-shot recognition from continuous listening.
type SessionKind string

const (
	SessionOneShot    SessionKind = "one-shot"
	SessionContinuous SessionKind = "continuous"
)

// RecognitionResult is one settled recognition of a spoken turn.
type RecognitionResult struct {
	Text       string
	Confidence float64
}

// RecognitionSnapshot is the observable state of the recognition session.
type RecognitionSnapshot struct {
	Active    bool
	Kind      SessionKind
	StartedAt time.Time
}

// recognitionSession is the singleton session record: at most one exists at
// a time, and it is fully retired before a successor is created.
type recognitionSession struct {
	id        string
	kind      SessionKind
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time
	// control is the live handle observing this session, when one exists.
	control *ListenControl
}

// recognitionParams configures one manager-level session start.
type recognitionParams struct {
	kind     SessionKind
	captions bool
	control  *ListenControl

	onFinal   func(text string, confidence float64)
	onFailure func(err *voice.Error)
	// onError is the caller-provided per-call error callback, fed to the
	// error pipeline.
	onError func(err *voice.Error)
}

// startRecognition begins a recognition session, retiring any prior one
// first so no two sessions ever overlap from an observer's perspective. The
// new session is published, and the last error cleared, before the engine
// start call is issued. The returned error may carry a silent code; public
// entry points convert those into no-ops.
func (o *Orchestrator) startRecognition(ctx context.Context, params recognitionParams) (*recognitionSession, *voice.Error) {
	ctx, span := tracer.Start(ctx, "start recognition")
	defer span.End()

	o.mu.Lock()
	engine := o.recognitionEngine
	o.mu.Unlock()
	if engine == nil {
		err := voice.New(voice.CodeSTTNotAvailable, "no recognition engine bound", voice.WithOp("recognition start"))
		return nil, o.handleFailure(ctx, "recognition start", err, voice.CodeSTTNotAvailable, params.onError)
	}

	o.stopRecognitionSession(ctx, nil, true)

	sessionCtx, cancel := context.WithCancel(ctx)
	session := &recognitionSession{
		id:        uuid.NewString(),
		kind:      params.kind,
		ctx:       sessionCtx,
		cancel:    cancel,
		startedAt: o.clock(),
		control:   params.control,
	}
	if params.control != nil {
		params.control.bindSession(session)
	}

	o.mu.Lock()
	o.recognitionSession = session
	o.lastError = nil
	o.mu.Unlock()
	o.recognitionFeed.invalidate()
	o.readinessFeed.invalidate()

	opts := []recognition.StartOption{
		recognition.WithFinalCallback(func(text string, confidence float64) {
			o.finishRecognition(session, params, text, confidence)
		}),
		recognition.WithErrorCallback(func(err *voice.Error) {
			o.failRecognition(session, params, err)
		}),
	}
	if params.captions {
		opts = append(opts, recognition.WithPartialCallback(func(text string) {
			o.mu.Lock()
			if o.recognitionSession != session {
				o.mu.Unlock()
				return
			}
			o.transcript.addInterim(RoleUser, text)
			o.mu.Unlock()
			o.transcriptFeed.invalidate()
		}))
	}

	if err := engine.Start(sessionCtx, opts...); err != nil {
		verr := o.handleFailure(ctx, "recognition start", err, voice.CodeSTTFailed, params.onError)
		if cleared := o.clearRecognitionSession(session); cleared != nil {
			cleared.cancel()
		}
		return nil, verr
	}

	return session, nil
}

// finishRecognition settles one final result: the transcript gains a final
// user entry, the live handle dispatches triggers and waiters, and one-shot
// sessions stop themselves.
func (o *Orchestrator) finishRecognition(session *recognitionSession, params recognitionParams, text string, confidence float64) {
	o.mu.Lock()
	if o.recognitionSession != session {
		// Result from a retired session, drop it.
		o.mu.Unlock()
		return
	}
	o.transcript.addFinal(RoleUser, text)
	o.mu.Unlock()
	o.transcriptFeed.invalidate()

	result := RecognitionResult{Text: text, Confidence: confidence}
	if session.control != nil {
		session.control.handleFinal(result)
	}
	if params.onFinal != nil {
		params.onFinal(result.Text, result.Confidence)
	}

	if session.kind == SessionOneShot {
		o.stopRecognitionSession(o.baseContext, session, true)
	}
}

// failRecognition routes an engine-reported failure through the pipeline and
// tears the session down. Failures from already-retired sessions are
// dropped.
func (o *Orchestrator) failRecognition(session *recognitionSession, params recognitionParams, err *voice.Error) {
	o.mu.Lock()
	current := o.recognitionSession == session
	o.mu.Unlock()
	if !current {
		return
	}

	verr := o.handleFailure(session.ctx, "recognition", err, voice.CodeSTTFailed, params.onError)

	if session.control != nil {
		session.control.settleFailed(verr)
	}
	// The engine reported the failure itself, so only the bookkeeping is
	// torn down here; no stop call goes back to the engine.
	o.stopRecognitionSession(session.ctx, session, false)

	if params.onFailure != nil {
		params.onFailure(verr)
	}
}

// StopListening ends the active recognition session, if any. Observers see
// the session go inactive before the engine is told to stop, and engine
// stop failures are only logged: stop always succeeds for the caller.
func (o *Orchestrator) StopListening(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "stop recognition")
	defer span.End()

	o.stopRecognitionSession(ctx, nil, true)
}

// IsListening reports whether a recognition session is active.
func (o *Orchestrator) IsListening() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.recognitionSession != nil
}

// stopRecognitionSession retires one session: state cleared first, then the
// token cancelled, then the control handle settled, then (optionally) the
// engine stop awaited. A nil session targets whichever session is current;
// a session that is no longer current is left alone. Reports whether a
// session was stopped.
func (o *Orchestrator) stopRecognitionSession(ctx context.Context, session *recognitionSession, stopEngine bool) bool {
	cleared := o.clearRecognitionSession(session)
	if cleared == nil {
		return false
	}

	cleared.cancel()
	if cleared.control != nil {
		cleared.control.settleStopped()
	}

	if stopEngine {
		o.mu.Lock()
		engine := o.recognitionEngine
		o.mu.Unlock()
		o.stopRecognitionEngine(ctx, engine)
	}
	return true
}

// clearRecognitionSession removes the session record and republishes the
// recognition feed. With a non-nil argument it only clears when that
// session is still current; nil clears whichever session is active. Returns
// the cleared record.
func (o *Orchestrator) clearRecognitionSession(session *recognitionSession) *recognitionSession {
	o.mu.Lock()
	current := o.recognitionSession
	if current == nil || (session != nil && current != session) {
		o.mu.Unlock()
		return nil
	}
	o.recognitionSession = nil
	o.mu.Unlock()

	o.recognitionFeed.invalidate()
	return current
}

// stopRecognitionEngine awaits the engine's stop. Stop failures are logged
// and dropped.
func (o *Orchestrator) stopRecognitionEngine(ctx context.Context, engine RecognitionEngine) {
	if engine == nil {
		return
	}
	if err := engine.Stop(ctx); err != nil {
		o.log.Warn("recognition engine stop failed", slog.String("error", err.Error()))
	}
}

// listenOnce runs a bare one-shot recognition and waits for its outcome.
// The conversation loop uses this directly, bypassing the listen handle,
// and does its own failure routing on the returned error.
func (o *Orchestrator) listenOnce(ctx context.Context, captions bool) (RecognitionResult, *voice.Error) {
	results := make(chan RecognitionResult, 1)
	failures := make(chan *voice.Error, 1)

	session, verr := o.startRecognition(ctx, recognitionParams{
		kind:     SessionOneShot,
		captions: captions,
		onFinal: func(text string, confidence float64) {
			select {
			case results <- RecognitionResult{Text: text, Confidence: confidence}:
			default:
			}
		},
		onFailure: func(err *voice.Error) {
			select {
			case failures <- err:
			default:
			}
		},
	})
	if verr != nil {
		return RecognitionResult{}, verr
	}

	select {
	case result := <-results:
		return result, nil
	case failure := <-failures:
		return RecognitionResult{}, failure
	case <-ctx.Done():
		o.stopRecognitionSession(o.baseContext, session, true)
		return RecognitionResult{}, voice.Wrap(voice.CodeAborted, "", ctx.Err(), voice.WithOp("recognition"))
	}
}
