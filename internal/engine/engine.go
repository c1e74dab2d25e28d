package engine

import "github.com/foxseedlab/mcumixer/internal/bufpool"

// Transport carries packets produced by an output engine back to the mixer.
type Transport interface {
	SendRTP(buf []byte, streamID uint32)
}

type VideoOutput interface {
	UpdateMaxSlot(n int)
	Close() error
}

type AudioOutput interface {
	SetMixabilityStatus(in AudioInput, mixable bool) error
	Close() error
}

type VideoInput interface {
	DeliverVideoData(buf []byte) int
	SetAudioInput(in AudioInput)
	Close() error
}

type AudioInput interface {
	DeliverAudioData(buf []byte) int
	Slot() int
	Level() float64
	Close() error
}

// AudioDecoder converts one RTP packet of mixed audio into interleaved PCM.
type AudioDecoder interface {
	DecodeRTP(packet []byte, pcm []int16) (int, error)
}

type Factory interface {
	NewVideoOutput(t Transport, pool *bufpool.Pool) (VideoOutput, error)
	NewAudioOutput(t Transport) (AudioOutput, error)
	NewVideoInput(slot int, out VideoOutput, pool *bufpool.Pool) (VideoInput, error)
	NewAudioInput(slot int, out AudioOutput) (AudioInput, error)
	NewAudioDecoder() (AudioDecoder, error)
}
