// Package audio holds the raw-audio vocabulary shared by capture
// devices, playback devices, and the speech engines that consume them.
package audio

// Encoding identifies the byte layout of a raw audio stream.
type Encoding string

const (
	EncodingLinear16 Encoding = "linear16"
	EncodingMulaw    Encoding = "mulaw"
	EncodingALaw     Encoding = "alaw"
)

func (e Encoding) Name() string {
	return string(e)
}

// ByteSize returns the size of a single sample in bytes, or -1 for
// encodings this package does not know about.
func (e Encoding) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

const DefaultSampleRate = 16000

// EncodingInfo describes the raw audio format a device produces or
// expects. A zero value means the device did not report a format and
// the defaults should be used instead.
type EncodingInfo struct {
	SampleRate int
	Encoding   Encoding
}

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{SampleRate: DefaultSampleRate, Encoding: EncodingLinear16}
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Encoding == ""
}

// SilenceValue returns the byte that encodes silence in this format.
func (e EncodingInfo) SilenceValue() byte {
	switch e.Encoding {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	}
	return 0
}

// BytesPerSecond returns the raw throughput of a mono stream in this
// format, or 0 when the format is unknown.
func (e EncodingInfo) BytesPerSecond() int {
	size := e.Encoding.ByteSize()
	if size <= 0 || e.SampleRate <= 0 {
		return 0
	}
	return e.SampleRate * size
}
