package orchestration

import (
	"context"
	"sync"
	"time"

	"github.com/duologue-ai/duologue-core/core/voice"
)

// ConversationSnapshot is the observable state of the conversation loop.
type ConversationSnapshot struct {
	Active bool
}

// Conversation is a hands-free loop alternating between listening for a
// spoken turn, asking the responder for a reply, and speaking it. The loop
// runs until stopped, the context ends, or an unrecoverable failure occurs.
type Conversation struct {
	o       *Orchestrator
	ctx     context.Context
	cancel  context.CancelFunc
	options ConversationOptions

	mu       sync.Mutex
	launched bool
	stopped  bool

	done     chan struct{}
	doneOnce sync.Once
	stopOnce sync.Once
}

// StartConversation creates a conversation, retiring any prior one first.
// The loop itself only runs once a responder is attached with
// OnRecognition.
func (o *Orchestrator) StartConversation(ctx context.Context, opts ...ConversationOption) *Conversation {
	options := ConversationOptions{
		pause:      defaultConversationPause,
		retryDelay: defaultConversationRetryDelay,
	}
	for _, opt := range opts {
		opt(&options)
	}

	if prior := o.currentConversation(); prior != nil {
		prior.Stop(ctx)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	conversation := &Conversation{
		o:       o,
		ctx:     loopCtx,
		cancel:  cancel,
		options: options,
		done:    make(chan struct{}),
	}

	o.mu.Lock()
	o.conversation = conversation
	o.mu.Unlock()
	o.conversationFeed.invalidate()

	return conversation
}

// OnRecognition attaches the responder and launches the loop. The responder
// receives each recognized turn and returns the reply to speak; an empty
// reply skips synthesis for that turn. Attaching a second responder is an
// error; attaching to a stopped conversation does nothing.
func (c *Conversation) OnRecognition(respond func(RecognitionResult) (string, error), opts ...LoopOption) *Conversation {
	options := LoopOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	if respond == nil {
		return c
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return c
	}
	if c.launched {
		c.mu.Unlock()
		err := voice.New(voice.CodeInvalidState, "conversation loop already has a responder", voice.WithOp("conversation"))
		c.o.handleFailure(c.ctx, "conversation", err, voice.CodeInvalidState, nil)
		return c
	}
	c.launched = true
	c.mu.Unlock()

	go c.run(respond, options.singleTurn)
	return c
}

func (c *Conversation) run(respond func(RecognitionResult) (string, error), singleTurn bool) {
	ctx, span := tracer.Start(c.ctx, "conversation loop")
	defer span.End()
	defer c.finish()
	defer c.o.releaseConversation(c)

	for {
		if ctx.Err() != nil || c.isStopped() {
			return
		}
		if again := c.turn(ctx, respond); !again || singleTurn {
			return
		}
	}
}

// turn runs one listen/respond/speak cycle and reports whether the loop
// should continue.
func (c *Conversation) turn(ctx context.Context, respond func(RecognitionResult) (string, error)) bool {
	result, verr := c.o.listenOnce(ctx, c.options.captions)
	if verr != nil {
		return c.handleTurnFailure(ctx, verr)
	}

	response, err := respond(result)
	if err != nil {
		verr := c.o.handleFailure(ctx, "conversation respond", err, voice.CodeConversationError, nil)
		return c.handleTurnFailure(ctx, verr)
	}

	if response != "" {
		if verr := c.o.speak(ctx, response, c.options.speakOptions...); verr != nil {
			return c.handleTurnFailure(ctx, verr)
		}
	}

	pause := c.options.pause
	if pause < minConversationPause {
		pause = minConversationPause
	}
	return c.pause(ctx, pause)
}

// handleTurnFailure decides whether the loop survives a failed turn. Aborts
// and stops end the loop quietly, silence re-listens after the configured
// delay, system-level and unrecoverable failures end the loop, anything
// else retries after a delay.
func (c *Conversation) handleTurnFailure(ctx context.Context, verr *voice.Error) bool {
	if verr == nil {
		return true
	}
	if verr.Code == voice.CodeAborted || c.isStopped() {
		return false
	}
	if verr.Code == voice.CodeNoSpeech {
		return c.pause(ctx, c.options.silenceDelay)
	}
	if verr.Code.SystemLevel() || !verr.Recoverable {
		return false
	}
	return c.pause(ctx, c.options.retryDelay)
}

// pause waits for d unless the loop context ends first; reports whether the
// loop should continue.
func (c *Conversation) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stop ends the conversation and any session it is in the middle of.
// Stopping an already-stopped conversation does nothing.
func (c *Conversation) Stop(ctx context.Context) {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopped = true
		launched := c.launched
		c.mu.Unlock()

		c.cancel()
		c.o.releaseConversation(c)
		c.o.StopListening(ctx)
		c.o.StopSpeaking(ctx)

		if !launched {
			c.finish()
		}
	})
}

// Done is closed once the loop has fully wound down.
func (c *Conversation) Done() <-chan struct{} {
	return c.done
}

func (c *Conversation) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *Conversation) finish() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (o *Orchestrator) currentConversation() *Conversation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conversation
}

func (o *Orchestrator) releaseConversation(c *Conversation) {
	o.mu.Lock()
	if o.conversation != c {
		o.mu.Unlock()
		return
	}
	o.conversation = nil
	o.mu.Unlock()

	o.conversationFeed.invalidate()
}
