// Package miniaudio drives the default system microphone and speaker
// through the miniaudio library. A single Client can back speech
// recognition and speech synthesis at the same time.
package miniaudio

import (
	"context"
	"fmt"

	"github.com/gen2brain/malgo"

	"github.com/duologue-ai/duologue-core/core/audio"
)

type Option func(*Client)

// WithSampleRate overrides the sample rate shared by the capture and
// playback devices.
func WithSampleRate(rate int) Option {
	return func(c *Client) {
		if rate > 0 {
			c.sampleRate = uint32(rate)
		}
	}
}

type Client struct {
	// audioContext is only held so it can be uninitialized on Close
	audioContext *malgo.AllocatedContext
	sampleRate   uint32

	playbackClient
	captureClient
}

func NewClient(opts ...Option) (*Client, error) {
	client := Client{sampleRate: uint32(audio.DefaultSampleRate)}
	for _, opt := range opts {
		opt(&client)
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	client.audioContext = audioCtx

	if err := client.playbackClient.Init(audioCtx, client.sampleRate); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := client.playbackClient.Start(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	if err := client.captureClient.Init(audioCtx, client.sampleRate); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return &client, nil
}

// Stream starts the microphone and delivers raw audio to onAudio until
// StopCapture is called.
func (c *Client) Stream(_ context.Context, onAudio func(audio []byte)) error {
	return c.captureClient.Start(onAudio)
}

func (c *Client) StopCapture() error {
	return c.captureClient.Stop()
}

func (c *Client) SendAudio(audio []byte) error {
	return c.playbackClient.SendAudio(audio)
}

func (c *Client) ClearBuffer() {
	c.playbackClient.ClearBuffer()
}

func (c *Client) AwaitMark() error {
	return c.playbackClient.AwaitMark()
}

// Pause halts the speaker without discarding buffered audio, so Resume
// picks up exactly where playback stopped.
func (c *Client) Pause() error {
	return c.playbackClient.Pause()
}

func (c *Client) Resume() error {
	return c.playbackClient.Resume()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: int(c.sampleRate), Encoding: audio.EncodingLinear16}
}

func (c *Client) Close() {
	_ = c.captureClient.Uninit()
	_ = c.playbackClient.Uninit()
	if c.audioContext != nil {
		_ = c.audioContext.Uninit()
		c.audioContext.Free()
		c.audioContext = nil
	}
}
