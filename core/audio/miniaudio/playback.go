package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

type playbackClient struct {
	device *malgo.Device

	mu sync.Mutex

	// bufferMu guards buffered and marks together, the mark positions
	// are offsets into the buffered audio
	bufferMu sync.Mutex
	buffered []byte
	marks    []playbackMark
}

// playbackMark fires its callback once every byte queued before it has
// been handed to the device. Marks stay sorted by position because a
// later mark can never sit before an earlier one in the buffer.
type playbackMark struct {
	name     string
	position int
	callback func(string)
}

func (c *playbackClient) Init(audioContext *malgo.AllocatedContext, sampleRate uint32) error {
	format := malgo.FormatS16

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.SampleRate = sampleRate
	config.Playback.Format = format
	config.Playback.Channels = 1
	config.Alsa.NoMMap = 1
	config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	config.Periods = 4

	device, err := malgo.InitDevice(audioContext.Context, config, malgo.DeviceCallbacks{
		Data: c.feedDevice,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}
	c.device = device
	return nil
}

func (c *playbackClient) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("playback device not initialized")
	}
	if c.device.IsStarted() {
		return nil
	}
	if err := c.device.Start(); err != nil {
		return fmt.Errorf("failed to start playback device: %w", err)
	}
	return nil
}

// Pause halts the device without touching the buffered audio.
func (c *playbackClient) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("playback device not initialized")
	}
	if !c.device.IsStarted() {
		return nil
	}
	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to pause playback device: %w", err)
	}
	return nil
}

func (c *playbackClient) Resume() error {
	return c.Start()
}

func (c *playbackClient) SendAudio(audio []byte) error {
	c.mu.Lock()
	device := c.device
	c.mu.Unlock()
	if device == nil {
		return fmt.Errorf("playback device not initialized")
	}

	c.bufferMu.Lock()
	defer c.bufferMu.Unlock()
	c.buffered = append(c.buffered, audio...)
	return nil
}

// ClearBuffer drops all queued audio. Pending marks fire immediately,
// nothing they were waiting on can play anymore.
func (c *playbackClient) ClearBuffer() {
	c.bufferMu.Lock()
	c.buffered = nil
	interrupted := c.marks
	c.marks = nil
	c.bufferMu.Unlock()

	for _, mark := range interrupted {
		mark.callback(mark.name)
	}
}

// AwaitMark blocks until all audio queued so far has been handed to the
// device or the buffer is cleared.
func (c *playbackClient) AwaitMark() error {
	drained := make(chan struct{})
	if err := c.Mark("", func(string) { close(drained) }); err != nil {
		return err
	}
	<-drained
	return nil
}

func (c *playbackClient) Mark(name string, callback func(string)) error {
	if callback == nil {
		return fmt.Errorf("mark requires a callback")
	}
	c.bufferMu.Lock()
	defer c.bufferMu.Unlock()
	c.marks = append(c.marks, playbackMark{name: name, position: len(c.buffered), callback: callback})
	return nil
}

func (c *playbackClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	return nil
}

// feedDevice runs on the audio thread. malgo zeroes pOutput up front,
// so an underrun plays silence.
func (c *playbackClient) feedDevice(pOutput, _ []byte, _ uint32) {
	c.bufferMu.Lock()
	consumed := copy(pOutput, c.buffered)
	c.buffered = c.buffered[consumed:]
	if len(c.buffered) == 0 {
		c.buffered = nil
	}

	passed := 0
	for i := range c.marks {
		c.marks[i].position -= consumed
		if c.marks[i].position <= 0 {
			passed = i + 1
		}
	}
	var reached []playbackMark
	if passed > 0 {
		reached = append(reached, c.marks[:passed]...)
		c.marks = append(c.marks[:0:0], c.marks[passed:]...)
	}
	c.bufferMu.Unlock()

	if len(reached) > 0 {
		go func() {
			for _, mark := range reached {
				mark.callback(mark.name)
			}
		}()
	}
}
