package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	orchestration "github.com/duologue-ai/duologue-core/core"
	"github.com/duologue-ai/duologue-core/core/audio"
	"github.com/duologue-ai/duologue-core/core/audio/miniaudio"
	"github.com/duologue-ai/duologue-core/core/audio/portaudio"
	"github.com/duologue-ai/duologue-core/core/audio/wavfile"
	deepgramstt "github.com/duologue-ai/duologue-core/core/recognition/deepgram"
	deepgramtts "github.com/duologue-ai/duologue-core/core/synthesis/deepgram"
	"github.com/duologue-ai/duologue-core/internal/config"
)

// buildEngines opens the configured audio backend and wires the Deepgram
// engines around it. The wav backend has no speaker, so it comes back with
// a nil synthesis engine.
func buildEngines(cfg config.Config, logger *slog.Logger) (orchestration.RecognitionEngine, orchestration.SynthesisEngine, func(), error) {
	capture, playback, closeDevice, err := openAudioDevice(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	cleanup := closeDevice
	if cfg.Audio.RecordPath != "" {
		recorder, err := wavfile.NewRecorder(cfg.Audio.RecordPath, capture.EncodingInfo())
		if err != nil {
			cleanup()
			return nil, nil, nil, fmt.Errorf("failed to open the capture recording: %w", err)
		}
		capture = &recordingCapture{device: capture, recorder: recorder}
		closeRest := cleanup
		cleanup = func() {
			closeRest()
			if err := recorder.Close(); err != nil {
				logger.Warn("failed to finalize the capture recording", slog.String("error", err.Error()))
				return
			}
			logger.Info("capture recording written", slog.String("path", cfg.Audio.RecordPath))
		}
	}

	recognizer := deepgramstt.NewEngine(
		deepgramstt.WithAPIKey(cfg.Deepgram.APIKey),
		deepgramstt.WithModel(cfg.Recognition.Model),
		deepgramstt.WithLanguage(cfg.Recognition.Language),
		deepgramstt.WithCapture(capture),
		deepgramstt.WithNoSpeechTimeout(time.Duration(cfg.Recognition.NoSpeechTimeoutMS)*time.Millisecond),
	)

	var synthesizer orchestration.SynthesisEngine
	if playback != nil {
		synthesizer = deepgramtts.NewEngine(
			deepgramtts.WithAPIKey(cfg.Deepgram.APIKey),
			deepgramtts.WithVoice(cfg.Synthesis.Voice),
			deepgramtts.WithPlayback(playback),
		)
	}
	return recognizer, synthesizer, cleanup, nil
}

func openAudioDevice(cfg config.Config) (deepgramstt.CaptureDevice, deepgramtts.PlaybackDevice, func(), error) {
	switch cfg.Audio.Backend {
	case "miniaudio":
		client, err := miniaudio.NewClient(miniaudio.WithSampleRate(cfg.Audio.SampleRate))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open the miniaudio device: %w", err)
		}
		return client, client, client.Close, nil
	case "portaudio":
		client, err := portaudio.NewClient(portaudio.WithSampleRate(cfg.Audio.SampleRate))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open the portaudio device: %w", err)
		}
		return client, client, client.Close, nil
	case "wav":
		source, err := wavfile.NewSource(cfg.Audio.ReplayPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open the replay file: %w", err)
		}
		return source, nil, func() { source.StopCapture() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown audio backend %q", cfg.Audio.Backend)
	}
}

// recordingCapture tees captured audio into a WAV recorder on its way to
// the recognizer.
type recordingCapture struct {
	device   deepgramstt.CaptureDevice
	recorder *wavfile.Recorder
}

func (c *recordingCapture) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	return c.device.Stream(ctx, func(chunk []byte) {
		c.recorder.Write(chunk)
		onAudio(chunk)
	})
}

func (c *recordingCapture) StopCapture() error {
	return c.device.StopCapture()
}

func (c *recordingCapture) EncodingInfo() audio.EncodingInfo {
	return c.device.EncodingInfo()
}
