package main

import (
	"fmt"
	"strings"
	"time"

	orchestration "github.com/duologue-ai/duologue-core/core"
)

// scriptedResponder turns recognized turns into spoken replies with a
// handful of canned rules. It stands in for a real dialogue backend so the
// demo runs without one.
type scriptedResponder struct {
	clock func() time.Time
}

func newScriptedResponder() *scriptedResponder {
	return &scriptedResponder{clock: time.Now}
}

func (r *scriptedResponder) respond(result orchestration.RecognitionResult) (string, error) {
	text := strings.ToLower(strings.TrimSpace(result.Text))
	if text == "" {
		return "", nil
	}

	switch {
	case strings.Contains(text, "hello") || strings.Contains(text, "hey"):
		return "Hello! I'm listening.", nil
	case strings.Contains(text, "your name"):
		return "I'm duologue, a voice session demo.", nil
	case strings.Contains(text, "what time"), strings.Contains(text, "the time"):
		return fmt.Sprintf("It's %s.", r.clock().Format("3:04 PM")), nil
	case strings.Contains(text, "thank"):
		return "You're welcome!", nil
	case strings.Contains(text, "goodbye"), strings.Contains(text, "bye"):
		return "Goodbye!", nil
	}
	return "I heard: " + result.Text, nil
}
