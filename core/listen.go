package orchestration

import (
	"context"
	"strings"
	"sync"

	"github.com/duologue-ai/duologue-core/core/voice"
)

// ListenResult is the future side of a listen call: it settles exactly once
// with the first final result, an error, or an empty result when the
// session is stopped before anything was recognized.
type ListenResult struct {
	done   chan struct{}
	once   sync.Once
	result RecognitionResult
	err    *voice.Error
}

func newListenResult() *ListenResult {
	return &ListenResult{done: make(chan struct{})}
}

// Done is closed once the result has settled.
func (r *ListenResult) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the result settles or the context ends. A session
// stopped before any final result settles with an empty result and no
// error.
func (r *ListenResult) Wait(ctx context.Context) (RecognitionResult, error) {
	select {
	case <-r.done:
		if r.err != nil {
			return r.result, r.err
		}
		return r.result, nil
	case <-ctx.Done():
		return RecognitionResult{}, voice.Wrap(voice.CodeAborted, "", ctx.Err(), voice.WithOp("listen wait"))
	}
}

func (r *ListenResult) resolve(result RecognitionResult) {
	r.once.Do(func() {
		r.result = result
		close(r.done)
	})
}

func (r *ListenResult) reject(err *voice.Error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// phraseTrigger pairs a normalized phrase with its callback.
type phraseTrigger struct {
	phrase   string
	callback func(*ListenControl)
}

// ListenControl is the live handle for one listen call: phrase triggers can
// be attached to it, it can stop the session early, and it exposes the
// result future.
type ListenControl struct {
	o          *Orchestrator
	result     *ListenResult
	continuous bool

	mu       sync.Mutex
	session  *recognitionSession
	triggers []phraseTrigger
}

// Result returns the future settled by this listen call.
func (c *ListenControl) Result() *ListenResult {
	return c.result
}

// When registers a callback fired whenever a final result contains phrase.
// Matching ignores case and collapses whitespace; a final that matches
// several phrases fires them in registration order. Returns the handle for
// chaining.
func (c *ListenControl) When(phrase string, callback func(*ListenControl)) *ListenControl {
	if callback == nil {
		return c
	}
	c.mu.Lock()
	c.triggers = append(c.triggers, phraseTrigger{phrase: normalizePhrase(phrase), callback: callback})
	c.mu.Unlock()
	return c
}

// Stop ends the session behind this handle. The future settles empty if no
// final result arrived first.
func (c *ListenControl) Stop(ctx context.Context) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()

	if session == nil {
		c.result.resolve(RecognitionResult{})
		return
	}
	c.o.stopRecognitionSession(ctx, session, true)
}

func (c *ListenControl) bindSession(session *recognitionSession) {
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()
}

// handleFinal dispatches triggers for one final result, then settles the
// future unless the session listens continuously.
func (c *ListenControl) handleFinal(result RecognitionResult) {
	c.mu.Lock()
	triggers := make([]phraseTrigger, len(c.triggers))
	copy(triggers, c.triggers)
	c.mu.Unlock()

	normalized := normalizePhrase(result.Text)
	for _, trigger := range triggers {
		if strings.Contains(normalized, trigger.phrase) {
			trigger.callback(c)
		}
	}

	if !c.continuous {
		c.result.resolve(result)
	}
}

func (c *ListenControl) settleStopped() {
	c.result.resolve(RecognitionResult{})
}

func (c *ListenControl) settleFailed(err *voice.Error) {
	if err == nil || err.Code.Silent() {
		c.result.resolve(RecognitionResult{})
		return
	}
	c.result.reject(err)
}

func normalizePhrase(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// Listen starts a recognition session and returns its live handle. One-shot
// sessions stop themselves after the first final result; continuous ones
// run until stopped. Captioning feeds interim results into the transcript.
// A session ended by user action or silence before it produced anything
// returns a handle whose future settles empty.
func (o *Orchestrator) Listen(ctx context.Context, opts ...ListenOption) (*ListenControl, error) {
	options := ListenOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	kind := SessionOneShot
	if options.continuous {
		kind = SessionContinuous
	}
	control := &ListenControl{
		o:          o,
		result:     newListenResult(),
		continuous: options.continuous,
	}

	_, verr := o.startRecognition(ctx, recognitionParams{
		kind:     kind,
		captions: true,
		control:  control,
		onError:  options.errorCallback,
	})
	if verr != nil {
		if verr.Code.Silent() {
			control.settleStopped()
			return control, nil
		}
		return nil, verr
	}
	return control, nil
}
