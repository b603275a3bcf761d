package orchestration

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jinzhu/copier"

	"github.com/duologue-ai/duologue-core/core/voice"
)

// ReadinessSnapshot is the observable health of the orchestrator.
type ReadinessSnapshot struct {
	Bound            bool
	RecognitionReady bool
	SynthesisReady   bool
	Details          string
	LastError        *voice.Error
}

// Orchestrator coordinates speech recognition and synthesis engines into
// sessions, transcripts, and conversations. All state it exposes is
// published through snapshot feeds so observers never see a half-updated
// view.
type Orchestrator struct {
	mu sync.Mutex

	recognitionEngine RecognitionEngine
	synthesisEngine   SynthesisEngine
	bound             bool
	availability      voice.Availability

	recognitionSession *recognitionSession
	synthesisSession   *synthesisSession
	conversation       *Conversation

	transcript *transcriptLog
	lastError  *voice.Error

	recognitionFeed  *Feed[RecognitionSnapshot]
	synthesisFeed    *Feed[SynthesisSnapshot]
	conversationFeed *Feed[ConversationSnapshot]
	transcriptFeed   *Feed[TranscriptSnapshot]
	readinessFeed    *Feed[ReadinessSnapshot]

	log     *slog.Logger
	onError func(err *voice.Error)
	mapCode func(err error) (voice.Code, bool)
	clock   func() time.Time

	baseContext context.Context
	closeOnce   sync.Once
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		log:         logger,
		clock:       time.Now,
		baseContext: context.Background(),
	}
	o.transcript = newTranscriptLog(func() time.Time { return o.clock() })
	o.recognitionFeed = newFeed(o.computeRecognitionSnapshot)
	o.synthesisFeed = newFeed(o.computeSynthesisSnapshot)
	o.conversationFeed = newFeed(o.computeConversationSnapshot)
	o.transcriptFeed = newFeed(o.computeTranscriptSnapshot)
	o.readinessFeed = newFeed(o.computeReadinessSnapshot)

	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Bind attaches the engines the orchestrator drives and probes their
// availability. Either engine may be nil; the unbound capability reports as
// unavailable.
func (o *Orchestrator) Bind(ctx context.Context, recognitionEngine RecognitionEngine, synthesisEngine SynthesisEngine) voice.Availability {
	ctx, span := tracer.Start(ctx, "bind engines")
	defer span.End()

	o.mu.Lock()
	o.recognitionEngine = recognitionEngine
	o.synthesisEngine = synthesisEngine
	o.bound = recognitionEngine != nil || synthesisEngine != nil
	o.mu.Unlock()

	return o.RefreshAvailability(ctx)
}

// RefreshAvailability re-probes the bound engines and republishes the
// readiness snapshot.
func (o *Orchestrator) RefreshAvailability(ctx context.Context) voice.Availability {
	o.mu.Lock()
	recognitionEngine := o.recognitionEngine
	synthesisEngine := o.synthesisEngine
	o.mu.Unlock()

	availability := voice.Availability{}
	if recognitionEngine != nil {
		report := recognitionEngine.Availability(ctx)
		availability.Recognition = report.Recognition
		availability.Details = report.Details
	}
	if synthesisEngine != nil {
		report := synthesisEngine.Availability(ctx)
		availability.Synthesis = report.Synthesis
		if report.Details != "" && report.Details != availability.Details {
			if availability.Details != "" {
				availability.Details += "; "
			}
			availability.Details += report.Details
		}
	}

	o.mu.Lock()
	o.availability = availability
	o.mu.Unlock()
	o.recognitionFeed.invalidate()
	o.synthesisFeed.invalidate()
	o.readinessFeed.invalidate()

	return availability
}

// Availability returns the capabilities reported by the last probe.
func (o *Orchestrator) Availability() voice.Availability {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.availability
}

// Voices lists the voices the synthesis engine offers. The returned slice
// is the caller's to keep.
func (o *Orchestrator) Voices(ctx context.Context) ([]voice.Voice, error) {
	o.mu.Lock()
	engine := o.synthesisEngine
	o.mu.Unlock()
	if engine == nil {
		return nil, voice.New(voice.CodeTTSNotAvailable, "no synthesis engine bound", voice.WithOp("voice list"))
	}

	engineVoices, err := engine.Voices(ctx)
	if err != nil {
		return nil, o.normalizeFailure(err, "voice list", voice.CodeTTSFailed)
	}

	voices := []voice.Voice{}
	copier.Copy(&voices, engineVoices)
	return voices, nil
}

// RecognitionState returns the feed publishing recognition snapshots.
func (o *Orchestrator) RecognitionState() *Feed[RecognitionSnapshot] {
	return o.recognitionFeed
}

// SynthesisState returns the feed publishing synthesis snapshots.
func (o *Orchestrator) SynthesisState() *Feed[SynthesisSnapshot] {
	return o.synthesisFeed
}

// ConversationState returns the feed publishing conversation snapshots.
func (o *Orchestrator) ConversationState() *Feed[ConversationSnapshot] {
	return o.conversationFeed
}

// Transcript returns the feed publishing transcript snapshots.
func (o *Orchestrator) Transcript() *Feed[TranscriptSnapshot] {
	return o.transcriptFeed
}

// Readiness returns the feed publishing readiness snapshots.
func (o *Orchestrator) Readiness() *Feed[ReadinessSnapshot] {
	return o.readinessFeed
}

// ClearTranscript drops all transcript entries.
func (o *Orchestrator) ClearTranscript() {
	o.mu.Lock()
	o.transcript.clear()
	o.mu.Unlock()
	o.transcriptFeed.invalidate()
}

// Close winds the orchestrator down: the conversation loop is stopped and
// awaited, then any leftover sessions are stopped. Close is idempotent.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		if conversation := o.currentConversation(); conversation != nil {
			conversation.Stop(o.baseContext)
			<-conversation.Done()
		}
		o.StopListening(o.baseContext)
		o.StopSpeaking(o.baseContext)
	})
}

func (o *Orchestrator) computeRecognitionSnapshot() RecognitionSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.recognitionSession == nil {
		return RecognitionSnapshot{}
	}
	return RecognitionSnapshot{
		Active:    true,
		Kind:      o.recognitionSession.kind,
		StartedAt: o.recognitionSession.startedAt,
	}
}

func (o *Orchestrator) computeSynthesisSnapshot() SynthesisSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.synthesisSession == nil {
		return SynthesisSnapshot{}
	}
	return SynthesisSnapshot{
		Active:    true,
		Paused:    !o.synthesisSession.pausedAt.IsZero(),
		StartedAt: o.synthesisSession.startedAt,
		PausedAt:  o.synthesisSession.pausedAt,
	}
}

func (o *Orchestrator) computeConversationSnapshot() ConversationSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return ConversationSnapshot{Active: o.conversation != nil}
}

func (o *Orchestrator) computeTranscriptSnapshot() TranscriptSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	caption, hasCaption := o.transcript.caption()
	return TranscriptSnapshot{
		Entries:    o.transcript.finals(),
		Caption:    caption,
		HasCaption: hasCaption,
	}
}

func (o *Orchestrator) computeReadinessSnapshot() ReadinessSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return ReadinessSnapshot{
		Bound:            o.bound,
		RecognitionReady: o.availability.Recognition,
		SynthesisReady:   o.availability.Synthesis,
		Details:          o.availability.Details,
		LastError:        o.lastError,
	}
}
