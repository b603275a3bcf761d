package orchestration

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/duologue-ai/duologue-core/core/recognition"
	"github.com/duologue-ai/duologue-core/core/voice"
)

func TestListenWithoutEngineReportsUnavailable(t *testing.T) {
	o := NewOrchestrator(WithLogger(slog.New(&recordingHandler{})))

	control, err := o.Listen(context.Background())
	if control != nil {
		t.Fatalf("expected no handle without an engine, got %v", control)
	}
	verr, ok := voice.AsError(err)
	if !ok || verr.Code != voice.CodeSTTNotAvailable {
		t.Fatalf("expected STT_NOT_AVAILABLE, got %v", err)
	}
	if last := o.LastError(); last == nil || last.Code != voice.CodeSTTNotAvailable {
		t.Fatalf("expected the failure recorded as last error, got %v", last)
	}
}

func TestListenPublishesSessionBeforeEngineStart(t *testing.T) {
	observed := make(chan RecognitionSnapshot, 1)

	var o *Orchestrator
	engine := &recognitionEngineStub{}
	engine.start = func(recognition.StartOptions) error {
		select {
		case observed <- o.RecognitionState().Snapshot():
		default:
		}
		return nil
	}

	o = NewOrchestrator()
	defer o.Close()
	o.Bind(context.Background(), engine, nil)

	if _, err := o.Listen(context.Background()); err != nil {
		t.Fatalf("expected listen to start, got %v", err)
	}

	select {
	case snapshot := <-observed:
		if !snapshot.Active || snapshot.Kind != SessionOneShot || snapshot.StartedAt.IsZero() {
			t.Fatalf("expected an active one-shot session before the engine start call, got %+v", snapshot)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the engine start call")
	}
	if o.LastError() != nil {
		t.Fatalf("expected the session start to clear the last error, got %v", o.LastError())
	}
}

func TestListenFinalSettlesAndStopsOneShot(t *testing.T) {
	engine := &recognitionEngineStub{}
	o := NewOrchestrator()
	defer o.Close()
	o.Bind(context.Background(), engine, nil)

	control, err := o.Listen(context.Background())
	if err != nil {
		t.Fatalf("expected listen to start, got %v", err)
	}

	opts := engine.options()
	if opts.FinalCallback == nil || opts.PartialCallback == nil || opts.ErrorCallback == nil {
		t.Fatalf("expected all result callbacks to be configured, got %+v", opts)
	}

	opts.FinalCallback("hello world", 0.92)

	result, err := control.Result().Wait(context.Background())
	if err != nil {
		t.Fatalf("expected the final result, got %v", err)
	}
	if result.Text != "hello world" || result.Confidence != 0.92 {
		t.Fatalf("expected the recognized text, got %+v", result)
	}

	if o.IsListening() {
		t.Fatalf("expected the one-shot session to stop itself")
	}
	if got := engine.stopCount(); got != 1 {
		t.Fatalf("expected one engine stop, got %d", got)
	}

	snapshot := o.Transcript().Snapshot()
	if len(snapshot.Entries) != 1 || snapshot.Entries[0].Role != RoleUser || snapshot.Entries[0].Text != "hello world" {
		t.Fatalf("expected a settled user transcript entry, got %v", snapshot.Entries)
	}
}

func TestListenPartialResultsDriveCaption(t *testing.T) {
	engine := &recognitionEngineStub{}
	o := NewOrchestrator()
	defer o.Close()
	o.Bind(context.Background(), engine, nil)

	if _, err := o.Listen(context.Background()); err != nil {
		t.Fatalf("expected listen to start, got %v", err)
	}
	opts := engine.options()

	opts.PartialCallback("hel")
	snapshot := o.Transcript().Snapshot()
	if !snapshot.HasCaption || snapshot.Caption != "hel" {
		t.Fatalf("expected the partial result as caption, got %+v", snapshot)
	}
	if len(snapshot.Entries) != 0 {
		t.Fatalf("expected no settled entries while interim, got %v", snapshot.Entries)
	}

	opts.PartialCallback("hello")
	if snapshot = o.Transcript().Snapshot(); snapshot.Caption != "hello" {
		t.Fatalf("expected the caption replaced in place, got %+v", snapshot)
	}

	opts.FinalCallback("hello", 1)
	snapshot = o.Transcript().Snapshot()
	if snapshot.HasCaption {
		t.Fatalf("expected no caption after the final result, got %+v", snapshot)
	}
	if len(snapshot.Entries) != 1 || snapshot.Entries[0].Text != "hello" {
		t.Fatalf("expected the settled entry, got %v", snapshot.Entries)
	}
}

func TestStopListeningIsIdempotent(t *testing.T) {
	engine := &recognitionEngineStub{}
	o := NewOrchestrator()
	defer o.Close()
	o.Bind(context.Background(), engine, nil)

	if _, err := o.Listen(context.Background(), WithContinuous()); err != nil {
		t.Fatalf("expected listen to start, got %v", err)
	}

	o.StopListening(context.Background())
	if o.IsListening() {
		t.Fatalf("expected no session after stopping")
	}
	if got := engine.stopCount(); got != 1 {
		t.Fatalf("expected one engine stop, got %d", got)
	}

	notifications := atomic.Int32{}
	o.RecognitionState().Subscribe(func() { notifications.Add(1) })

	o.StopListening(context.Background())
	if got := notifications.Load(); got != 0 {
		t.Fatalf("expected a stop without a session to not republish, got %d notifications", got)
	}
	if got := engine.stopCount(); got != 1 {
		t.Fatalf("expected no second engine stop, got %d", got)
	}
}

func TestListenSupersedesPriorSession(t *testing.T) {
	engine := &recognitionEngineStub{}
	o := NewOrchestrator()
	defer o.Close()
	o.Bind(context.Background(), engine, nil)

	first, err := o.Listen(context.Background(), WithContinuous())
	if err != nil {
		t.Fatalf("expected the first listen to start, got %v", err)
	}
	second, err := o.Listen(context.Background(), WithContinuous())
	if err != nil {
		t.Fatalf("expected the second listen to start, got %v", err)
	}

	result, err := first.Result().Wait(context.Background())
	if err != nil || result.Text != "" {
		t.Fatalf("expected the superseded handle to settle empty, got %+v %v", result, err)
	}

	if !o.IsListening() {
		t.Fatalf("expected the replacement session to be active")
	}
	if got := engine.startCount(); got != 2 {
		t.Fatalf("expected two engine starts, got %d", got)
	}
	if got := engine.stopCount(); got != 1 {
		t.Fatalf("expected one engine stop between the sessions, got %d", got)
	}

	second.Stop(context.Background())
}

func TestEngineFailureRejectsHandle(t *testing.T) {
	engine := &recognitionEngineStub{}
	o := NewOrchestrator(WithLogger(slog.New(&recordingHandler{})))
	defer o.Close()
	o.Bind(context.Background(), engine, nil)

	control, err := o.Listen(context.Background())
	if err != nil {
		t.Fatalf("expected listen to start, got %v", err)
	}

	engine.options().ErrorCallback(voice.New(voice.CodeNetworkError, "socket closed"))

	if _, err := control.Result().Wait(context.Background()); err == nil {
		t.Fatalf("expected the handle to settle with the failure")
	} else if verr, ok := voice.AsError(err); !ok || verr.Code != voice.CodeNetworkError {
		t.Fatalf("expected NETWORK_ERROR, got %v", err)
	}

	if o.IsListening() {
		t.Fatalf("expected the failed session to be retired")
	}
	if got := engine.stopCount(); got != 0 {
		t.Fatalf("expected no engine stop after an engine-reported failure, got %d", got)
	}
	if last := o.LastError(); last == nil || last.Code != voice.CodeNetworkError {
		t.Fatalf("expected the failure recorded as last error, got %v", last)
	}
}

func TestEngineSilenceSettlesHandleEmpty(t *testing.T) {
	recorder := &recordingHandler{}
	engine := &recognitionEngineStub{}
	o := NewOrchestrator(WithLogger(slog.New(recorder)))
	defer o.Close()
	o.Bind(context.Background(), engine, nil)

	control, err := o.Listen(context.Background())
	if err != nil {
		t.Fatalf("expected listen to start, got %v", err)
	}

	engine.options().ErrorCallback(voice.New(voice.CodeNoSpeech, "no speech detected"))

	result, err := control.Result().Wait(context.Background())
	if err != nil || result.Text != "" {
		t.Fatalf("expected silence to settle the handle empty, got %+v %v", result, err)
	}
	if o.LastError() != nil {
		t.Fatalf("expected silence to leave no last error, got %v", o.LastError())
	}
	if got := recorder.count(); got != 0 {
		t.Fatalf("expected silence to never be logged, got %d records", got)
	}
}

func TestStaleSessionResultsAreDropped(t *testing.T) {
	engine := &recognitionEngineStub{}
	o := NewOrchestrator()
	defer o.Close()
	o.Bind(context.Background(), engine, nil)

	if _, err := o.Listen(context.Background(), WithContinuous()); err != nil {
		t.Fatalf("expected listen to start, got %v", err)
	}
	staleOpts := engine.options()

	o.StopListening(context.Background())
	staleOpts.FinalCallback("too late", 1)

	snapshot := o.Transcript().Snapshot()
	if len(snapshot.Entries) != 0 || snapshot.HasCaption {
		t.Fatalf("expected results from a retired session to be dropped, got %+v", snapshot)
	}
}
