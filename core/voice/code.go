// Package voice defines the failure taxonomy and shared vocabulary used by
// the orchestration layer and the engine bindings.
package voice

// Code classifies a failure anywhere in the voice pipeline.
type Code string

const (
	CodeAborted            Code = "ABORTED"
	CodePermissionDenied   Code = "PERMISSION_DENIED"
	CodeNotSupported       Code = "NOT_SUPPORTED"
	CodeTTSNotAvailable    Code = "TTS_NOT_AVAILABLE"
	CodeSTTNotAvailable    Code = "STT_NOT_AVAILABLE"
	CodeNoSpeech           Code = "NO_SPEECH"
	CodeAudioCaptureFailed Code = "AUDIO_CAPTURE_FAILED"
	CodeNetworkError       Code = "NETWORK_ERROR"
	CodeTTSFailed          Code = "TTS_FAILED"
	CodeSTTFailed          Code = "STT_FAILED"
	CodeConversationError  Code = "CONVERSATION_ERROR"
	CodeInvalidState       Code = "INVALID_STATE"
)

// Silent reports whether the code describes expected control flow
// (cancellation, silence) rather than a failure. Silent codes are never
// logged and never recorded as the last error.
func (c Code) Silent() bool {
	return c == CodeAborted || c == CodeNoSpeech
}

// SystemLevel reports whether the code invalidates the whole capability
// rather than the current operation. Conversation loops treat these as fatal
// and stop instead of retrying.
func (c Code) SystemLevel() bool {
	switch c {
	case CodePermissionDenied, CodeNotSupported, CodeTTSNotAvailable, CodeSTTNotAvailable:
		return true
	}
	return false
}

func (c Code) String() string { return string(c) }
