// Package config loads the duologue demo configuration from YAML, applies
// DUOLOGUE_* environment overrides, and validates the result.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level" json:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure" json:"otlp_insecure"`
}

type AudioConfig struct {
	// Backend selects the audio device: miniaudio, portaudio, or wav.
	// The wav backend replays a file as the microphone and disables
	// synthesis.
	Backend    string `yaml:"backend" json:"backend"`
	SampleRate int    `yaml:"sample_rate" json:"sample_rate"`
	ReplayPath string `yaml:"replay_path" json:"replay_path"`
	RecordPath string `yaml:"record_path" json:"record_path"`
}

type DeepgramConfig struct {
	// APIKey falls back to the DEEPGRAM_API_KEY environment variable
	// when empty.
	APIKey string `yaml:"api_key" json:"api_key"`
}

type RecognitionConfig struct {
	Model             string `yaml:"model" json:"model"`
	Language          string `yaml:"language" json:"language"`
	NoSpeechTimeoutMS int    `yaml:"no_speech_timeout_ms" json:"no_speech_timeout_ms"`
}

type SynthesisConfig struct {
	Voice string `yaml:"voice" json:"voice"`
}

type ConversationConfig struct {
	PauseMS        int  `yaml:"pause_ms" json:"pause_ms"`
	SilenceDelayMS int  `yaml:"silence_delay_ms" json:"silence_delay_ms"`
	RetryDelayMS   int  `yaml:"retry_delay_ms" json:"retry_delay_ms"`
	Captions       bool `yaml:"captions" json:"captions"`
}

type Config struct {
	AppName      string             `yaml:"app_name" json:"app_name"`
	Environment  string             `yaml:"environment" json:"environment"`
	Telemetry    TelemetryConfig    `yaml:"telemetry" json:"telemetry"`
	Audio        AudioConfig        `yaml:"audio" json:"audio"`
	Deepgram     DeepgramConfig     `yaml:"deepgram" json:"deepgram"`
	Recognition  RecognitionConfig  `yaml:"recognition" json:"recognition"`
	Synthesis    SynthesisConfig    `yaml:"synthesis" json:"synthesis"`
	Conversation ConversationConfig `yaml:"conversation" json:"conversation"`
}

func Default() Config {
	return Config{
		AppName:     "duologue",
		Environment: "development",
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Audio: AudioConfig{
			Backend:    "miniaudio",
			SampleRate: 16000,
		},
		Recognition: RecognitionConfig{
			Model:    "nova-3",
			Language: "en-US",
		},
		Synthesis: SynthesisConfig{
			Voice: "aura-asteria-en",
		},
		Conversation: ConversationConfig{
			PauseMS:      1000,
			RetryDelayMS: 1000,
			Captions:     true,
		},
	}
}

// Load reads the config at path on top of the defaults. An empty path
// loads defaults only. Environment overrides are applied after the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Schema renders the JSON schema of the config file.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(&Config{})
	return json.MarshalIndent(schema, "", "  ")
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.AppName, "DUOLOGUE_APP_NAME")
	overrideString(&cfg.Environment, "DUOLOGUE_ENVIRONMENT")
	overrideString(&cfg.Telemetry.LogLevel, "DUOLOGUE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "DUOLOGUE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "DUOLOGUE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Audio.Backend, "DUOLOGUE_AUDIO_BACKEND")
	overrideInt(&cfg.Audio.SampleRate, "DUOLOGUE_AUDIO_SAMPLE_RATE")
	overrideString(&cfg.Audio.ReplayPath, "DUOLOGUE_AUDIO_REPLAY_PATH")
	overrideString(&cfg.Audio.RecordPath, "DUOLOGUE_AUDIO_RECORD_PATH")
	overrideString(&cfg.Deepgram.APIKey, "DUOLOGUE_DEEPGRAM_API_KEY")
	overrideString(&cfg.Recognition.Model, "DUOLOGUE_RECOGNITION_MODEL")
	overrideString(&cfg.Recognition.Language, "DUOLOGUE_RECOGNITION_LANGUAGE")
	overrideInt(&cfg.Recognition.NoSpeechTimeoutMS, "DUOLOGUE_RECOGNITION_NO_SPEECH_TIMEOUT_MS")
	overrideString(&cfg.Synthesis.Voice, "DUOLOGUE_SYNTHESIS_VOICE")
	overrideInt(&cfg.Conversation.PauseMS, "DUOLOGUE_CONVERSATION_PAUSE_MS")
	overrideInt(&cfg.Conversation.SilenceDelayMS, "DUOLOGUE_CONVERSATION_SILENCE_DELAY_MS")
	overrideInt(&cfg.Conversation.RetryDelayMS, "DUOLOGUE_CONVERSATION_RETRY_DELAY_MS")
	overrideBool(&cfg.Conversation.Captions, "DUOLOGUE_CONVERSATION_CAPTIONS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.AppName == "" {
		return errors.New("app_name must not be empty")
	}
	switch cfg.Telemetry.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("telemetry.log_level must be one of debug|info|warn|error")
	}
	switch cfg.Audio.Backend {
	case "miniaudio", "portaudio":
	case "wav":
		if cfg.Audio.ReplayPath == "" {
			return errors.New("audio.replay_path must be set when backend=wav")
		}
	default:
		return errors.New("audio.backend must be one of miniaudio|portaudio|wav")
	}
	if cfg.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if cfg.Recognition.NoSpeechTimeoutMS < 0 {
		return errors.New("recognition.no_speech_timeout_ms must be >= 0")
	}
	if cfg.Conversation.PauseMS < 0 {
		return errors.New("conversation.pause_ms must be >= 0")
	}
	if cfg.Conversation.SilenceDelayMS < 0 {
		return errors.New("conversation.silence_delay_ms must be >= 0")
	}
	if cfg.Conversation.RetryDelayMS < 0 {
		return errors.New("conversation.retry_delay_ms must be >= 0")
	}
	return nil
}
