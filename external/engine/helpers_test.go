package engine

import (
	"sync"
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

type captureTransport struct {
	mu      sync.Mutex
	packets []rtp.Packet
	streams []uint32
}

func (c *captureTransport) SendRTP(buf []byte, streamID uint32) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(append([]byte(nil), buf...)); err != nil {
		panic(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = append(c.packets, pkt)
	c.streams = append(c.streams, streamID)
}

func (c *captureTransport) sent() []rtp.Packet {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]rtp.Packet(nil), c.packets...)
}

func constantFrame(v int16) []int16 {
	frame := make([]int16, samplesPerFrame)
	for i := range frame {
		frame[i] = v
	}
	return frame
}

// audioPacket encodes one frame of constant samples with the build's codec.
func audioPacket(t *testing.T, seq uint16, v int16) []byte {
	t.Helper()
	enc, err := newPCMEncoder()
	require.NoError(t, err)
	payload := make([]byte, maxEncodedFrameBytes)
	n, err := enc.Encode(constantFrame(v), payload)
	require.NoError(t, err)
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    audioPayloadType,
			SequenceNumber: seq,
			Timestamp:      uint32(seq) * frameTicks,
			SSRC:           0xabcd,
		},
		Payload: payload[:n],
	}
	buf, err := pkt.Marshal()
	require.NoError(t, err)
	return buf
}

func videoPacket(t *testing.T, ssrc uint32, seq uint16, ts uint32, payload []byte) []byte {
	t.Helper()
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         true,
			PayloadType:    96,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           ssrc,
		},
		Payload: payload,
	}
	buf, err := pkt.Marshal()
	require.NoError(t, err)
	return buf
}

type levelInput struct {
	mu    sync.Mutex
	level float64
}

func (l *levelInput) DeliverAudioData(buf []byte) int { return len(buf) }
func (l *levelInput) Slot() int                       { return 0 }
func (l *levelInput) Close() error                    { return nil }

func (l *levelInput) Level() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

func (l *levelInput) set(v float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = v
}
