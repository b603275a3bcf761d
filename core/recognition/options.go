// Package recognition holds the option contract between the orchestration
// layer and speech-recognition engines.
package recognition

import "github.com/duologue-ai/duologue-core/core/voice"

type StartOptions struct {
	// PartialCallback is called with each interim hypothesis while the user
	// is still speaking. Engines may skip interim work when it is unset.
	PartialCallback func(text string)
	// FinalCallback is called once per settled utterance. Confidence is the
	// engine's estimate in [0, 1], zero when the engine does not report one.
	FinalCallback func(text string, confidence float64)
	// ErrorCallback is called when the session fails or ends without speech.
	// Engines report cancellation as ABORTED or end silently.
	ErrorCallback func(err *voice.Error)

	// Language requests a recognition language tag; empty leaves the
	// engine's configured default in place.
	Language string
}

type StartOption func(*StartOptions)

func WithPartialCallback(callback func(text string)) StartOption {
	return func(o *StartOptions) { o.PartialCallback = callback }
}

func WithFinalCallback(callback func(text string, confidence float64)) StartOption {
	return func(o *StartOptions) { o.FinalCallback = callback }
}

func WithErrorCallback(callback func(err *voice.Error)) StartOption {
	return func(o *StartOptions) { o.ErrorCallback = callback }
}

func WithLanguage(tag string) StartOption {
	return func(o *StartOptions) { o.Language = tag }
}
