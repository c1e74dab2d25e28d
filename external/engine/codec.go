package engine

import "time"

const (
	sampleRate      = 48000
	channels        = 2
	frameSizeMs     = 20
	samplesPerFrame = sampleRate * frameSizeMs * channels / 1000
	frameTicks      = samplesPerFrame / channels

	audioMixInterval = frameSizeMs * time.Millisecond
	maxQueuedFrames  = 25
)

type pcmEncoder interface {
	Encode(pcm []int16, data []byte) (int, error)
}

// pcmDecoder returns the number of decoded samples per channel.
type pcmDecoder interface {
	Decode(data []byte, pcm []int16) (int, error)
}
