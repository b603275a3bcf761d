// Package wavfile reads and writes session audio as WAV files. A
// Source replays a recording as if it were a live microphone, which
// makes engine behavior reproducible without audio hardware.
package wavfile

import (
	"fmt"
	"os"
	"sync"

	"github.com/youpy/go-wav"

	"github.com/duologue-ai/duologue-core/core/audio"
)

const (
	numChannels   = 1
	bitsPerSample = 16
)

// Recorder accumulates raw linear16 audio in memory and writes it out
// as a WAV file on Close. The header needs the final sample count, so
// nothing touches the disk until then.
type Recorder struct {
	path string
	info audio.EncodingInfo

	mu     sync.Mutex
	buf    []byte
	closed bool
}

func NewRecorder(path string, info audio.EncodingInfo) (*Recorder, error) {
	if info.IsZero() {
		info = audio.GetDefaultEncodingInfo()
	}
	if info.Encoding != audio.EncodingLinear16 {
		return nil, fmt.Errorf("recording requires linear16 audio, got %q", info.Encoding.Name())
	}
	return &Recorder{path: path, info: info}, nil
}

// Write queues a chunk of raw audio. Chunks arriving after Close are
// dropped.
func (r *Recorder) Write(chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.buf = append(r.buf, chunk...)
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	buf := r.buf
	r.buf = nil
	r.mu.Unlock()

	file, err := os.Create(r.path)
	if err != nil {
		return fmt.Errorf("failed to create recording: %w", err)
	}

	sampleSize := r.info.Encoding.ByteSize()
	writer := wav.NewWriter(file, uint32(len(buf)/sampleSize), numChannels, uint32(r.info.SampleRate), bitsPerSample)
	if _, err := writer.Write(buf); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write recording: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to finish recording: %w", err)
	}
	return nil
}
