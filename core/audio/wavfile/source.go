package wavfile

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/youpy/go-wav"

	"github.com/duologue-ai/duologue-core/core/audio"
)

// chunksPerSecond matches the cadence of a typical capture device, so
// downstream consumers cannot tell a replay from a live microphone.
const chunksPerSecond = 20

// Source replays a mono 16-bit WAV file at real-time pace. It
// satisfies the same capture contract as the hardware clients.
type Source struct {
	path string
	info audio.EncodingInfo

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSource(path string) (*Source, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	format, err := wav.NewReader(file).Format()
	if err != nil {
		return nil, fmt.Errorf("failed to read audio file header: %w", err)
	}
	if format.NumChannels != numChannels {
		return nil, fmt.Errorf("audio file must be mono, has %d channels", format.NumChannels)
	}
	if format.BitsPerSample != bitsPerSample {
		return nil, fmt.Errorf("audio file must be 16-bit, has %d bits per sample", format.BitsPerSample)
	}

	return &Source{
		path: path,
		info: audio.EncodingInfo{SampleRate: int(format.SampleRate), Encoding: audio.EncodingLinear16},
	}, nil
}

func (s *Source) EncodingInfo() audio.EncodingInfo {
	return s.info
}

// Stream delivers the file contents to onAudio in real-time sized
// chunks until the file ends, StopCapture is called, or ctx ends.
func (s *Source) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return fmt.Errorf("already streaming")
	}
	streamCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	file, err := os.Open(s.path)
	if err != nil {
		cancel()
		close(done)
		s.clear(done)
		return fmt.Errorf("failed to open audio file: %w", err)
	}

	go func() {
		defer close(done)
		defer file.Close()
		defer s.clear(done)

		reader := wav.NewReader(file)
		if _, err := reader.Format(); err != nil {
			return
		}

		chunk := make([]byte, s.info.BytesPerSecond()/chunksPerSecond)
		ticker := time.NewTicker(time.Second / chunksPerSecond)
		defer ticker.Stop()
		for {
			select {
			case <-streamCtx.Done():
				return
			case <-ticker.C:
				n, err := io.ReadFull(reader, chunk)
				if n > 0 && onAudio != nil {
					onAudio(chunk[:n])
				}
				if err != nil {
					return
				}
			}
		}
	}()
	return nil
}

func (s *Source) StopCapture() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (s *Source) clear(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == done {
		s.cancel, s.done = nil, nil
	}
}
