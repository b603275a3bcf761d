// Package portaudio drives the default duplex stream through the
// portaudio blocking API. One pump goroutine alternates reads and
// writes, capture callbacks and buffered playback both hang off it.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/duologue-ai/duologue-core/core/audio"
)

const defaultBufferSize = 512

type Option func(*Client)

// WithBufferSize sets the duplex frame size. Smaller buffers lower
// latency at the cost of more wakeups.
func WithBufferSize(frames int) Option {
	return func(c *Client) {
		if frames > 0 {
			c.bufferSize = frames
		}
	}
}

func WithSampleRate(rate int) Option {
	return func(c *Client) {
		if rate > 0 {
			c.sampleRate = rate
		}
	}
}

type Client struct {
	bufferSize int
	sampleRate int
	stream     *portaudio.Stream

	in  []int16
	out []int16

	mu       sync.Mutex
	onAudio  func(audio []byte)
	paused   bool
	buffered []byte
	marks    []playbackMark

	closed chan struct{}
	done   chan struct{}
}

// playbackMark fires its callback once every byte queued before it has
// been handed to the stream. Marks stay sorted by position because a
// later mark can never sit before an earlier one in the buffer.
type playbackMark struct {
	name     string
	position int
	callback func(string)
}

func NewClient(opts ...Option) (*Client, error) {
	client := &Client{bufferSize: defaultBufferSize, sampleRate: audio.DefaultSampleRate}
	for _, opt := range opts {
		opt(client)
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	client.in = make([]int16, client.bufferSize)
	client.out = make([]int16, client.bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 1, float64(client.sampleRate), client.bufferSize, client.in, client.out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}
	client.stream = stream

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("failed to start portaudio stream: %w", err)
	}

	client.closed = make(chan struct{})
	client.done = make(chan struct{})
	go client.pump()

	return client, nil
}

// Stream delivers microphone audio to onAudio until StopCapture is
// called. The pump keeps running either way, so this returns right
// away.
func (c *Client) Stream(_ context.Context, onAudio func(audio []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return fmt.Errorf("client is closed")
	default:
	}
	c.onAudio = onAudio
	return nil
}

func (c *Client) StopCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAudio = nil
	return nil
}

func (c *Client) SendAudio(chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return fmt.Errorf("client is closed")
	default:
	}
	c.buffered = append(c.buffered, chunk...)
	return nil
}

// ClearBuffer drops all queued audio. Pending marks fire immediately,
// nothing they were waiting on can play anymore.
func (c *Client) ClearBuffer() {
	c.mu.Lock()
	c.buffered = nil
	interrupted := c.marks
	c.marks = nil
	c.mu.Unlock()

	for _, mark := range interrupted {
		mark.callback(mark.name)
	}
}

// AwaitMark blocks until all audio queued so far has been handed to the
// stream or the buffer is cleared.
func (c *Client) AwaitMark() error {
	drained := make(chan struct{})
	if err := c.Mark("", func(string) { close(drained) }); err != nil {
		return err
	}
	<-drained
	return nil
}

func (c *Client) Mark(name string, callback func(string)) error {
	if callback == nil {
		return fmt.Errorf("mark requires a callback")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.marks = append(c.marks, playbackMark{name: name, position: len(c.buffered), callback: callback})
	return nil
}

// Pause mutes playback without discarding buffered audio.
func (c *Client) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
	return nil
}

func (c *Client) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	return nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: c.sampleRate, Encoding: audio.EncodingLinear16}
}

func (c *Client) Close() {
	c.mu.Lock()
	select {
	case <-c.closed:
		c.mu.Unlock()
		return
	default:
	}
	close(c.closed)
	c.mu.Unlock()

	<-c.done
	c.ClearBuffer()
	_ = c.stream.Stop()
	_ = c.stream.Close()
	_ = portaudio.Terminate()
}

func (c *Client) pump() {
	defer close(c.done)
	for {
		select {
		case <-c.closed:
			return
		default:
		}

		if err := c.stream.Read(); err != nil {
			log.Printf("portaudio read failed: %v", err)
		}

		c.mu.Lock()
		onAudio := c.onAudio
		c.mu.Unlock()
		if onAudio != nil {
			buf := bytes.Buffer{}
			_ = binary.Write(&buf, binary.LittleEndian, c.in)
			onAudio(buf.Bytes())
		}

		c.fillOutput()
		if err := c.stream.Write(); err != nil {
			log.Printf("portaudio write failed: %v", err)
		}
	}
}

// fillOutput moves the next slice of buffered audio into the output
// frame, padding with silence on underrun or while paused.
func (c *Client) fillOutput() {
	c.mu.Lock()
	var chunk []byte
	if !c.paused {
		n := min(len(c.out)*2, len(c.buffered))
		chunk = c.buffered[:n]
		c.buffered = c.buffered[n:]
		if len(c.buffered) == 0 {
			c.buffered = nil
		}
	}
	consumed := len(chunk)
	for i := range c.out {
		if 2*i+1 < consumed {
			c.out[i] = int16(binary.LittleEndian.Uint16(chunk[2*i:]))
		} else {
			c.out[i] = 0
		}
	}

	var reached []playbackMark
	if !c.paused {
		passed := 0
		for i := range c.marks {
			c.marks[i].position -= consumed
			if c.marks[i].position <= 0 {
				passed = i + 1
			}
		}
		if passed > 0 {
			reached = append(reached, c.marks[:passed]...)
			c.marks = append(c.marks[:0:0], c.marks[passed:]...)
		}
	}
	c.mu.Unlock()

	if len(reached) > 0 {
		go func() {
			for _, mark := range reached {
				mark.callback(mark.name)
			}
		}()
	}
}
