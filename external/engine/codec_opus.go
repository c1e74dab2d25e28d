//go:build opus

package engine

import "github.com/hraban/opus"

const (
	codecName            = "opus"
	audioPayloadType     = 111
	maxEncodedFrameBytes = 4000

	// Discord voice marks its Opus packets with a dynamic type of its own.
	discordOpusPayloadType = 120
)

func acceptsPayloadType(pt uint8) bool {
	return pt == audioPayloadType || pt == discordOpusPayloadType
}

func newPCMEncoder() (pcmEncoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	return enc, nil
}

func newPCMDecoder() (pcmDecoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, err
	}
	return dec, nil
}
