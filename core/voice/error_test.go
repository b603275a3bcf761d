package voice

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestNewDerivesAbortedFlags(t *testing.T) {
	err := New(CodeAborted, "stopped by user")

	if !err.UserAction {
		t.Fatalf("expected aborted to be marked as a user action")
	}
	if err.Recoverable {
		t.Fatalf("expected aborted to be non-recoverable")
	}
	if err.NeedsPermission {
		t.Fatalf("expected aborted to not need permission")
	}
}

func TestNewDerivesNoSpeechFlags(t *testing.T) {
	err := New(CodeNoSpeech, "nothing heard")

	if err.UserAction {
		t.Fatalf("expected no-speech to not be a user action")
	}
	if !err.Recoverable {
		t.Fatalf("expected no-speech to be recoverable")
	}
}

func TestNewDerivesPermissionFlags(t *testing.T) {
	for _, code := range []Code{CodePermissionDenied, CodeNotSupported, CodeTTSNotAvailable, CodeSTTNotAvailable} {
		err := New(code, "")
		if !err.Recoverable {
			t.Fatalf("expected %s to be recoverable", code)
		}
		if !err.NeedsPermission {
			t.Fatalf("expected %s to need permission", code)
		}
	}
}

func TestNewDerivesOperationalFlags(t *testing.T) {
	for _, code := range []Code{CodeTTSFailed, CodeSTTFailed, CodeAudioCaptureFailed, CodeConversationError, CodeNetworkError} {
		err := New(code, "")
		if !err.Recoverable {
			t.Fatalf("expected %s to be recoverable", code)
		}
		if err.NeedsPermission {
			t.Fatalf("expected %s to not need permission", code)
		}
	}
}

func TestNewDerivesInvalidStateFlags(t *testing.T) {
	err := New(CodeInvalidState, "")

	if err.Recoverable {
		t.Fatalf("expected invalid state to be non-recoverable")
	}
}

func TestSilentCodes(t *testing.T) {
	if !CodeAborted.Silent() || !CodeNoSpeech.Silent() {
		t.Fatalf("expected aborted and no-speech to be silent")
	}
	if CodeSTTFailed.Silent() || CodePermissionDenied.Silent() {
		t.Fatalf("expected failure codes to not be silent")
	}
}

func TestSystemLevelCodes(t *testing.T) {
	for _, code := range []Code{CodePermissionDenied, CodeNotSupported, CodeTTSNotAvailable, CodeSTTNotAvailable} {
		if !code.SystemLevel() {
			t.Fatalf("expected %s to be system-level", code)
		}
	}
	for _, code := range []Code{CodeAborted, CodeNoSpeech, CodeSTTFailed, CodeNetworkError, CodeInvalidState} {
		if code.SystemLevel() {
			t.Fatalf("expected %s to not be system-level", code)
		}
	}
}

func TestErrorMessageIncludesOpAndCause(t *testing.T) {
	cause := errors.New("socket closed")
	err := Wrap(CodeNetworkError, "stream lost", cause, WithOp("recognition"))

	want := "recognition: NETWORK_ERROR: stream lost: socket closed"
	if err.Error() != want {
		t.Fatalf("expected %q, got %q", want, err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to be matchable")
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeAborted, "stopped"))

	if !errors.Is(err, New(CodeAborted, "")) {
		t.Fatalf("expected aborted errors to match by code")
	}
	if errors.Is(err, New(CodeNoSpeech, "")) {
		t.Fatalf("expected different codes to not match")
	}
}

func TestConvertPassesVoiceErrorsThrough(t *testing.T) {
	original := New(CodeSTTFailed, "engine crashed")
	converted := Convert(fmt.Errorf("wrapped: %w", original), CodeNetworkError)

	if converted != original {
		t.Fatalf("expected the original voice error back, got %v", converted)
	}
}

func TestConvertMapsCancellationToAborted(t *testing.T) {
	converted := Convert(context.Canceled, CodeSTTFailed)

	if converted.Code != CodeAborted {
		t.Fatalf("expected ABORTED, got %s", converted.Code)
	}

	converted = Convert(fmt.Errorf("stream: %w", context.DeadlineExceeded), CodeSTTFailed)
	if converted.Code != CodeAborted {
		t.Fatalf("expected deadline to convert to ABORTED, got %s", converted.Code)
	}
}

func TestConvertFallsBackToGivenCode(t *testing.T) {
	converted := Convert(errors.New("boom"), CodeTTSFailed, WithOp("synthesis"))

	if converted.Code != CodeTTSFailed {
		t.Fatalf("expected fallback code, got %s", converted.Code)
	}
	if converted.Op != "synthesis" {
		t.Fatalf("expected op to be set, got %q", converted.Op)
	}
	if converted.Cause == nil {
		t.Fatalf("expected the cause to be retained")
	}
}

func TestConvertNilIsNil(t *testing.T) {
	if converted := Convert(nil, CodeSTTFailed); converted != nil {
		t.Fatalf("expected nil, got %v", converted)
	}
}
