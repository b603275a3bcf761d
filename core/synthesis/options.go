// Package synthesis holds the option contract between the orchestration
// layer and speech-synthesis engines.
package synthesis

type SpeakOptions struct {
	// Rate is the playback rate multiplier; zero means the engine default.
	Rate float64
	// Pitch is the pitch multiplier; zero means the engine default.
	Pitch float64
	// VoiceID selects a voice from the engine's catalog.
	VoiceID string
	// LanguageTag requests a language when no specific voice is selected.
	LanguageTag string
}

type SpeakOption func(*SpeakOptions)

func WithRate(rate float64) SpeakOption {
	return func(o *SpeakOptions) { o.Rate = rate }
}

func WithPitch(pitch float64) SpeakOption {
	return func(o *SpeakOptions) { o.Pitch = pitch }
}

func WithVoice(voiceID string) SpeakOption {
	return func(o *SpeakOptions) { o.VoiceID = voiceID }
}

func WithLanguage(tag string) SpeakOption {
	return func(o *SpeakOptions) { o.LanguageTag = tag }
}
