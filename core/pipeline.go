package orchestration

import (
	"context"
	"errors"
	"log/slog"

	"github.com/duologue-ai/duologue-core/core/voice"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// normalizeFailure maps a raw failure into the taxonomy: voice errors pass
// through unchanged, the injected mapper classifies engine-specific
// failures, context cancellation becomes ABORTED, and anything left gets the
// fallback code.
func (o *Orchestrator) normalizeFailure(err error, op string, fallback voice.Code) *voice.Error {
	if err == nil {
		return nil
	}
	if verr, ok := voice.AsError(err); ok {
		return verr
	}
	if o.mapCode != nil {
		if code, ok := o.mapCode(err); ok {
			return voice.Wrap(code, "", err, voice.WithOp(op))
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return voice.Wrap(voice.CodeAborted, "", err, voice.WithOp(op))
	}
	return voice.Wrap(fallback, "", err, voice.WithOp(op))
}

// handleFailure runs the error pipeline: normalize, apply the logging and
// last-error policy, then invoke the per-call and process-wide callbacks.
// Silent codes skip everything past normalization. The normalized error is
// returned; callers decide whether to propagate or swallow it.
func (o *Orchestrator) handleFailure(ctx context.Context, op string, err error, fallback voice.Code, onError func(err *voice.Error)) *voice.Error {
	verr := o.normalizeFailure(err, op, fallback)
	if verr == nil || verr.Code.Silent() {
		return verr
	}

	o.mu.Lock()
	o.lastError = verr
	o.mu.Unlock()
	o.readinessFeed.invalidate()

	o.log.Error("voice operation failed",
		slog.String("op", op),
		slog.String("code", verr.Code.String()),
		slog.String("error", verr.Error()),
	)
	span := trace.SpanFromContext(ctx)
	span.RecordError(verr)
	span.SetStatus(codes.Error, verr.Error())

	if onError != nil {
		onError(verr)
	}
	if o.onError != nil {
		o.onError(verr)
	}

	return verr
}

// LastError returns the most recent non-silent failure, if any.
func (o *Orchestrator) LastError() *voice.Error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastError
}

// ClearLastError drops the recorded failure and republishes readiness.
func (o *Orchestrator) ClearLastError() {
	o.mu.Lock()
	changed := o.lastError != nil
	o.lastError = nil
	o.mu.Unlock()

	if changed {
		o.readinessFeed.invalidate()
	}
}
