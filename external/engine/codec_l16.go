//go:build !opus

package engine

import (
	"encoding/binary"
	"fmt"
)

// Without the opus build tag the engines speak L16 (RFC 3551 linear PCM,
// network byte order) so the pipeline still runs end to end.
const (
	codecName            = "L16"
	audioPayloadType     = 96
	maxEncodedFrameBytes = samplesPerFrame * 2
)

type l16Codec struct{}

// acceptsPayloadType reports whether an inbound RTP payload type carries L16.
func acceptsPayloadType(pt uint8) bool {
	return pt == audioPayloadType
}

func newPCMEncoder() (pcmEncoder, error) {
	return l16Codec{}, nil
}

func newPCMDecoder() (pcmDecoder, error) {
	return l16Codec{}, nil
}

func (l16Codec) Encode(pcm []int16, data []byte) (int, error) {
	n := len(pcm) * 2
	if len(data) < n {
		return 0, fmt.Errorf("l16: output buffer too small: need %d bytes, have %d", n, len(data))
	}
	for i, s := range pcm {
		binary.BigEndian.PutUint16(data[i*2:], uint16(s))
	}
	return n, nil
}

func (l16Codec) Decode(data []byte, pcm []int16) (int, error) {
	if len(data)%(2*channels) != 0 {
		return 0, fmt.Errorf("l16: payload of %d bytes is not a whole number of frames", len(data))
	}
	samples := len(data) / 2
	if samples > len(pcm) {
		samples = len(pcm) - len(pcm)%channels
	}
	for i := 0; i < samples; i++ {
		pcm[i] = int16(binary.BigEndian.Uint16(data[i*2:]))
	}
	return samples / channels, nil
}
