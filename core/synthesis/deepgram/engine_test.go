package deepgram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/duologue-ai/duologue-core/core/audio"
	"github.com/duologue-ai/duologue-core/core/synthesis"
	"github.com/duologue-ai/duologue-core/core/voice"
)

func TestUtteranceURLEncodesFormatAndVoice(t *testing.T) {
	engine := NewEngine(WithAPIKey("key"))

	parsed, err := url.Parse(engine.utteranceURL("aura-orion-en", audio.EncodingInfo{SampleRate: 24000, Encoding: audio.EncodingLinear16}))
	if err != nil {
		t.Fatalf("expected a valid url, got %v", err)
	}
	if parsed.Scheme != "wss" || parsed.Path != "/v1/speak" {
		t.Fatalf("expected the speak endpoint, got %v", parsed)
	}
	query := parsed.Query()
	if got := query.Get("model"); got != "aura-orion-en" {
		t.Fatalf("expected the requested voice, got %q", got)
	}
	if got := query.Get("encoding"); got != "linear16" {
		t.Fatalf("expected linear16 encoding, got %q", got)
	}
	if got := query.Get("sample_rate"); got != "24000" {
		t.Fatalf("expected 24000 sample rate, got %q", got)
	}
	if got := query.Get("container"); got != "none" {
		t.Fatalf("expected a raw stream, got %q", got)
	}
}

func TestValidateFormatRejectsUnsupported(t *testing.T) {
	if _, err := validateFormat(audio.EncodingInfo{SampleRate: 22050, Encoding: audio.EncodingLinear16}); err == nil {
		t.Fatal("expected 22.05kHz to be rejected")
	}
	if _, err := validateFormat(audio.EncodingInfo{SampleRate: 48000, Encoding: audio.EncodingALaw}); err == nil {
		t.Fatal("expected 48kHz alaw to be rejected")
	}
	if _, err := validateFormat(audio.EncodingInfo{SampleRate: 48000, Encoding: audio.EncodingLinear16}); err != nil {
		t.Fatalf("expected 48kHz linear16 to be accepted, got %v", err)
	}
}

func TestSpeakStreamsAudioToPlayback(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "token key" {
			t.Errorf("expected token auth header, got %q", got)
		}
		if got := r.URL.Query().Get("model"); got != "aura-orion-en" {
			t.Errorf("expected the requested voice, got %q", got)
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var speak speakMessage
		if err := conn.ReadJSON(&speak); err != nil || speak.Type != "Speak" || speak.Text != "hello" {
			t.Errorf("expected a speak message, got %+v (%v)", speak, err)
			return
		}
		var flush controlMessage
		if err := conn.ReadJSON(&flush); err != nil || flush.Type != "Flush" {
			t.Errorf("expected a flush message, got %+v (%v)", flush, err)
			return
		}

		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4})
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{5, 6})
		_ = conn.WriteJSON(controlMessage{Type: "Flushed"})

		// hold the socket open until the client closes it
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	playback := &playbackDeviceStub{}
	engine := NewEngine(WithAPIKey("key"), WithPlayback(playback))
	engine.speakURL = "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/speak"

	if err := engine.Speak(context.Background(), "hello", synthesis.WithVoice("aura-orion-en")); err != nil {
		t.Fatalf("expected speak to succeed, got %v", err)
	}

	if got := playback.queued(); !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6}) {
		t.Fatalf("expected all audio frames queued in order, got %v", got)
	}
	if playback.drainCount() != 1 {
		t.Fatalf("expected speak to wait for playback to drain, got %d waits", playback.drainCount())
	}
	if engine.IsActive() {
		t.Fatal("expected no active session after speak returned")
	}
}

func TestStopInterruptsSpeakQuietly(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var speak speakMessage
		if err := conn.ReadJSON(&speak); err != nil {
			return
		}
		var flush controlMessage
		if err := conn.ReadJSON(&flush); err != nil {
			return
		}

		// stream audio but never confirm the flush
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{9, 9, 9})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	playback := &playbackDeviceStub{}
	engine := NewEngine(WithAPIKey("key"), WithPlayback(playback))
	engine.speakURL = "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/speak"

	finished := make(chan error, 1)
	go func() {
		finished <- engine.Speak(context.Background(), "long story")
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(playback.queued()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for audio to arrive")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := engine.Stop(context.Background()); err != nil {
		t.Fatalf("expected stop to succeed, got %v", err)
	}

	select {
	case err := <-finished:
		if err != nil {
			t.Fatalf("expected an interrupted speak to return quietly, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for speak to return")
	}

	if playback.clearCount() == 0 {
		t.Fatal("expected stop to discard queued audio")
	}
	if engine.IsActive() {
		t.Fatal("expected no active session after stop")
	}
	if err := engine.Stop(context.Background()); err != nil {
		t.Fatalf("expected a second stop to be a no-op, got %v", err)
	}
}

func TestVoicesMapsModelCatalog(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token key" {
			t.Errorf("expected token auth header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"tts":[`+
			`{"name":"asteria","canonical_name":"aura-asteria-en","architecture":"aura","languages":["en-US"]},`+
			`{"name":"","canonical_name":"aura-luna-fr","languages":["fr"]},`+
			`{"name":"","canonical_name":"","languages":[]}]}`)
	}))
	defer server.Close()

	engine := NewEngine(WithAPIKey("key"))
	engine.modelsURL = server.URL

	voices, err := engine.Voices(context.Background())
	if err != nil {
		t.Fatalf("expected voices, got %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("expected unnamed models to be dropped, got %d voices", len(voices))
	}
	if voices[0].ID != "aura-asteria-en" || voices[0].Name != "asteria" || voices[0].LanguageTag != "en-US" {
		t.Fatalf("expected the catalog entry mapped, got %+v", voices[0])
	}
	if voices[1].ID != "aura-luna-fr" || voices[1].Name != "aura-luna-fr" || voices[1].LanguageTag != "fr" {
		t.Fatalf("expected the canonical name to stand in for a missing name, got %+v", voices[1])
	}
}

func TestVoicesReportsRejectedKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	engine := NewEngine(WithAPIKey("bad"))
	engine.modelsURL = server.URL

	_, err := engine.Voices(context.Background())
	if err == nil || !errors.Is(err, voice.New(voice.CodePermissionDenied, "")) {
		t.Fatalf("expected PERMISSION_DENIED, got %v", err)
	}
}

func TestAvailabilityReportsMissingPieces(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "")

	engine := NewEngine()
	avail := engine.Availability(context.Background())
	if avail.Synthesis || avail.Details == "" {
		t.Fatalf("expected unavailable without an api key, got %+v", avail)
	}

	engine = NewEngine(WithAPIKey("key"), WithPlayback(&playbackDeviceStub{}))
	avail = engine.Availability(context.Background())
	if !avail.Synthesis {
		t.Fatalf("expected synthesis available, got %+v", avail)
	}
	if engine.IsActive() || engine.IsPaused() {
		t.Fatal("expected an idle engine before any speak")
	}
}

type playbackDeviceStub struct {
	mu      sync.Mutex
	buf     []byte
	drains  int
	clears  int
	pauses  int
	resumes int
}

func (p *playbackDeviceStub) SendAudio(chunk []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = append(p.buf, chunk...)
	return nil
}

func (p *playbackDeviceStub) AwaitMark() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drains++
	return nil
}

func (p *playbackDeviceStub) ClearBuffer() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clears++
	p.buf = nil
}

func (p *playbackDeviceStub) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauses++
	return nil
}

func (p *playbackDeviceStub) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resumes++
	return nil
}

func (p *playbackDeviceStub) EncodingInfo() audio.EncodingInfo {
	return audio.EncodingInfo{SampleRate: 48000, Encoding: audio.EncodingLinear16}
}

func (p *playbackDeviceStub) queued() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.buf...)
}

func (p *playbackDeviceStub) drainCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.drains
}

func (p *playbackDeviceStub) clearCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clears
}
