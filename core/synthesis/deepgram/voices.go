package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/duologue-ai/duologue-core/core/voice"
)

var modelsClient = &http.Client{
	Timeout:   10 * time.Second,
	Transport: otelhttp.NewTransport(http.DefaultTransport),
}

type modelsResponse struct {
	TTS []struct {
		Name          string   `json:"name"`
		CanonicalName string   `json:"canonical_name"`
		Architecture  string   `json:"architecture"`
		Languages     []string `json:"languages"`
	} `json:"tts"`
}

// Voices lists the speech models the account can use, freshly fetched
// on every call.
func (e *Engine) Voices(ctx context.Context) ([]voice.Voice, error) {
	if e.apiKey == "" {
		return nil, voice.New(voice.CodeTTSNotAvailable, "deepgram api key not set")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.modelsURL, nil)
	if err != nil {
		return nil, voice.Wrap(voice.CodeTTSFailed, "failed to build models request", err)
	}
	req.Header.Set("Authorization", "Token "+e.apiKey)

	resp, err := modelsClient.Do(req)
	if err != nil {
		return nil, voice.Wrap(voice.CodeNetworkError, "failed to reach deepgram", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, voice.New(voice.CodePermissionDenied, "deepgram rejected the api key")
	case resp.StatusCode != http.StatusOK:
		return nil, voice.New(voice.CodeTTSFailed, fmt.Sprintf("deepgram models request returned %s", resp.Status))
	}

	var models modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		return nil, voice.Wrap(voice.CodeTTSFailed, "failed to parse models response", err)
	}

	voices := make([]voice.Voice, 0, len(models.TTS))
	for _, model := range models.TTS {
		id := model.CanonicalName
		if id == "" {
			id = model.Name
		}
		if id == "" {
			continue
		}
		name := model.Name
		if name == "" {
			name = id
		}
		languageTag := ""
		if len(model.Languages) > 0 {
			languageTag = model.Languages[0]
		}
		voices = append(voices, voice.Voice{ID: id, Name: name, LanguageTag: languageTag})
	}
	return voices, nil
}
