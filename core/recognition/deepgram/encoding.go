package deepgram

import (
	"fmt"

	"github.com/duologue-ai/duologue-core/core/audio"
)

// convertEncoding validates that the capture format is one the listen
// API accepts and returns it unchanged.
func convertEncoding(info audio.EncodingInfo) (audio.EncodingInfo, error) {
	switch info.SampleRate {
	case 8000, 16000, 24000, 32000, 48000:
	default:
		return audio.EncodingInfo{}, fmt.Errorf("unsupported sample rate %d", info.SampleRate)
	}

	switch info.Encoding {
	case audio.EncodingLinear16:
	case audio.EncodingALaw, audio.EncodingMulaw:
		if info.SampleRate != 8000 {
			return audio.EncodingInfo{}, fmt.Errorf("%s encoding requires an 8kHz stream", info.Encoding.Name())
		}
	default:
		return audio.EncodingInfo{}, fmt.Errorf("unsupported encoding %q", info.Encoding.Name())
	}

	return info, nil
}
