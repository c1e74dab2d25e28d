package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/mcumixer/internal/bufpool"
	"github.com/foxseedlab/mcumixer/internal/engine"
	"github.com/pion/rtp"
)

var (
	errForeignOutput      = errors.New("engine output was not created by this factory")
	errForeignPayloadType = errors.New("rtp payload type not handled by this codec")
)

type Options struct {
	AudioSSRC uint32
	VideoSSRC uint32
	FocusHold time.Duration
}

type Factory struct {
	opts Options
}

// CodecName reports the audio codec this build mixes with.
func CodecName() string { return codecName }

func NewFactory(opts Options) *Factory {
	return &Factory{opts: opts}
}

func (f *Factory) NewVideoOutput(t engine.Transport, pool *bufpool.Pool) (engine.VideoOutput, error) {
	return NewVideoSwitcher(t, pool, f.opts.VideoSSRC, f.opts.FocusHold), nil
}

func (f *Factory) NewAudioOutput(t engine.Transport) (engine.AudioOutput, error) {
	m, err := NewAudioMixer(t, f.opts.AudioSSRC)
	if err != nil {
		return nil, err
	}
	slog.Debug("audio mixer started", "codec", codecName, "ssrc", f.opts.AudioSSRC)
	return m, nil
}

func (f *Factory) NewVideoInput(slot int, out engine.VideoOutput, _ *bufpool.Pool) (engine.VideoInput, error) {
	s, ok := out.(*VideoSwitcher)
	if !ok {
		return nil, fmt.Errorf("video input for slot %d: %w", slot, errForeignOutput)
	}
	return s.newInput(slot), nil
}

func (f *Factory) NewAudioInput(slot int, out engine.AudioOutput) (engine.AudioInput, error) {
	m, ok := out.(*AudioMixer)
	if !ok {
		return nil, fmt.Errorf("audio input for slot %d: %w", slot, errForeignOutput)
	}
	return m.newInput(slot)
}

func (f *Factory) NewAudioDecoder() (engine.AudioDecoder, error) {
	dec, err := newPCMDecoder()
	if err != nil {
		return nil, fmt.Errorf("create %s decoder: %w", codecName, err)
	}
	return &rtpDecoder{dec: dec}, nil
}

type rtpDecoder struct {
	dec pcmDecoder
}

// DecodeRTP returns the number of interleaved samples written to pcm.
func (d *rtpDecoder) DecodeRTP(packet []byte, pcm []int16) (int, error) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(packet); err != nil {
		return 0, fmt.Errorf("parse rtp packet: %w", err)
	}
	if len(pkt.Payload) == 0 {
		return 0, nil
	}
	if !acceptsPayloadType(pkt.PayloadType) {
		return 0, fmt.Errorf("%w: %d", errForeignPayloadType, pkt.PayloadType)
	}
	n, err := d.dec.Decode(pkt.Payload, pcm)
	if err != nil {
		return 0, fmt.Errorf("decode %s payload: %w", codecName, err)
	}
	return n * channels, nil
}
