package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Audio.Backend != "miniaudio" {
		t.Fatalf("expected default backend, got %q", cfg.Audio.Backend)
	}
	if cfg.Recognition.Model != "nova-3" {
		t.Fatalf("expected default model, got %q", cfg.Recognition.Model)
	}
	if cfg.Conversation.PauseMS != 1000 || !cfg.Conversation.Captions {
		t.Fatalf("expected default conversation settings, got %+v", cfg.Conversation)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "duologue.yaml")
	contents := strings.Join([]string{
		"environment: production",
		"audio:",
		"  backend: portaudio",
		"  sample_rate: 48000",
		"synthesis:",
		"  voice: aura-orion-en",
	}, "\n")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Environment != "production" {
		t.Fatalf("expected environment override, got %q", cfg.Environment)
	}
	if cfg.Audio.Backend != "portaudio" || cfg.Audio.SampleRate != 48000 {
		t.Fatalf("expected audio overrides, got %+v", cfg.Audio)
	}
	if cfg.Synthesis.Voice != "aura-orion-en" {
		t.Fatalf("expected voice override, got %q", cfg.Synthesis.Voice)
	}
	if cfg.Recognition.Model != "nova-3" {
		t.Fatalf("expected untouched sections to keep defaults, got %q", cfg.Recognition.Model)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DUOLOGUE_ENVIRONMENT", "staging")
	t.Setenv("DUOLOGUE_TELEMETRY_LOG_LEVEL", "debug")
	t.Setenv("DUOLOGUE_TELEMETRY_OTLP_ENDPOINT", "localhost:4317")
	t.Setenv("DUOLOGUE_AUDIO_SAMPLE_RATE", "24000")
	t.Setenv("DUOLOGUE_DEEPGRAM_API_KEY", "secret")
	t.Setenv("DUOLOGUE_RECOGNITION_LANGUAGE", "en-GB")
	t.Setenv("DUOLOGUE_RECOGNITION_NO_SPEECH_TIMEOUT_MS", "8000")
	t.Setenv("DUOLOGUE_CONVERSATION_CAPTIONS", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Environment != "staging" {
		t.Fatalf("expected environment override, got %q", cfg.Environment)
	}
	if cfg.Telemetry.LogLevel != "debug" || cfg.Telemetry.OTLPEndpoint != "localhost:4317" {
		t.Fatalf("expected telemetry overrides, got %+v", cfg.Telemetry)
	}
	if cfg.Audio.SampleRate != 24000 {
		t.Fatalf("expected sample rate override, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Deepgram.APIKey != "secret" {
		t.Fatal("expected api key override")
	}
	if cfg.Recognition.Language != "en-GB" || cfg.Recognition.NoSpeechTimeoutMS != 8000 {
		t.Fatalf("expected recognition overrides, got %+v", cfg.Recognition)
	}
	if cfg.Conversation.Captions {
		t.Fatal("expected captions override false")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("DUOLOGUE_AUDIO_BACKEND", "pulse")
	if _, err := Load(""); err == nil {
		t.Fatal("expected an unknown backend to be rejected")
	}

	t.Setenv("DUOLOGUE_AUDIO_BACKEND", "wav")
	if _, err := Load(""); err == nil {
		t.Fatal("expected the wav backend to require a replay path")
	}

	t.Setenv("DUOLOGUE_AUDIO_REPLAY_PATH", "session.wav")
	if _, err := Load(""); err != nil {
		t.Fatalf("expected a replay path to satisfy the wav backend, got %v", err)
	}
}

func TestSchemaListsSections(t *testing.T) {
	schema, err := Schema()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, section := range []string{"telemetry", "audio", "deepgram", "recognition", "synthesis", "conversation", "no_speech_timeout_ms"} {
		if !strings.Contains(string(schema), `"`+section+`"`) {
			t.Fatalf("expected schema to list %q", section)
		}
	}
}
