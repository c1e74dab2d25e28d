package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foxseedlab/mcumixer/internal/engine"
	"github.com/pion/rtp"
)

// AudioMixer sums the decoded frames of every mixable input once per frame
// interval and sends the encoded result as a single RTP stream.
type AudioMixer struct {
	transport engine.Transport
	ssrc      uint32
	enc       pcmEncoder

	mu        sync.Mutex
	mixable   map[*audioInput]struct{}
	mixed     []int16
	encoded   []byte
	seq       uint16
	timestamp uint32
	closed    bool

	started bool
	stop    chan struct{}
	done    chan struct{}
}

func newAudioMixer(t engine.Transport, ssrc uint32) (*AudioMixer, error) {
	enc, err := newPCMEncoder()
	if err != nil {
		return nil, fmt.Errorf("create %s encoder: %w", codecName, err)
	}
	return &AudioMixer{
		transport: t,
		ssrc:      ssrc,
		enc:       enc,
		mixable:   make(map[*audioInput]struct{}),
		mixed:     make([]int16, samplesPerFrame),
		encoded:   make([]byte, maxEncodedFrameBytes),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

func NewAudioMixer(t engine.Transport, ssrc uint32) (*AudioMixer, error) {
	m, err := newAudioMixer(t, ssrc)
	if err != nil {
		return nil, err
	}
	m.started = true
	go m.run(audioMixInterval)
	return m, nil
}

func (m *AudioMixer) run(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.mixOnce()
		}
	}
}

// mixOnce mixes one frame. It reports whether a packet was sent.
func (m *AudioMixer) mixOnce() bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	ts := m.timestamp
	m.timestamp += frameTicks
	if !m.mixQueuedFrames() {
		m.mu.Unlock()
		return false
	}
	n, err := m.enc.Encode(m.mixed, m.encoded)
	if err != nil {
		m.mu.Unlock()
		slog.Warn("failed to encode mixed audio frame", "codec", codecName, "error", err)
		return false
	}
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    audioPayloadType,
			SequenceNumber: m.seq,
			Timestamp:      ts,
			SSRC:           m.ssrc,
		},
		Payload: m.encoded[:n],
	}
	m.seq++
	buf, err := pkt.Marshal()
	m.mu.Unlock()
	if err != nil {
		slog.Warn("failed to marshal mixed audio packet", "error", err)
		return false
	}
	m.transport.SendRTP(buf, m.ssrc)
	return true
}

func (m *AudioMixer) mixQueuedFrames() bool {
	clear(m.mixed)
	contributed := false
	for in := range m.mixable {
		frame, ok := in.pop()
		if !ok {
			continue
		}
		contributed = true
		for i := 0; i < len(frame) && i < samplesPerFrame; i++ {
			m.mixed[i] = clampPCM(int32(m.mixed[i]) + int32(frame[i]))
		}
	}
	return contributed
}

func clampPCM(v int32) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

func (m *AudioMixer) SetMixabilityStatus(in engine.AudioInput, mixable bool) error {
	ai, ok := in.(*audioInput)
	if !ok || ai.mixer != m {
		return errors.New("audio input does not belong to this mixer")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("audio mixer is closed")
	}
	if mixable {
		m.mixable[ai] = struct{}{}
	} else {
		delete(m.mixable, ai)
	}
	return nil
}

func (m *AudioMixer) MixableCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mixable)
}

func (m *AudioMixer) forget(in *audioInput) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mixable, in)
}

// Close stops the mix loop. No packet is sent after Close returns.
func (m *AudioMixer) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mixable = make(map[*audioInput]struct{})
	close(m.stop)
	started := m.started
	m.mu.Unlock()
	if started {
		<-m.done
	}
	return nil
}

func (m *AudioMixer) newInput(slot int) (*audioInput, error) {
	dec, err := newPCMDecoder()
	if err != nil {
		return nil, fmt.Errorf("create %s decoder for slot %d: %w", codecName, slot, err)
	}
	return &audioInput{
		slot:  slot,
		mixer: m,
		dec:   dec,
		pcm:   make([]int16, samplesPerFrame),
	}, nil
}

type frameQueue struct {
	frames [][]int16
}

func (q *frameQueue) push(frame []int16) {
	q.frames = append(q.frames, frame)
}

func (q *frameQueue) pop() ([]int16, bool) {
	if len(q.frames) == 0 {
		return nil, false
	}
	f := q.frames[0]
	q.frames = q.frames[1:]
	return f, true
}

func (q *frameQueue) len() int {
	return len(q.frames)
}

// levelSmoothing weights the previous level against the newest frame.
const levelSmoothing = 0.8

type audioInput struct {
	slot  int
	mixer *AudioMixer
	dec   pcmDecoder

	mu     sync.Mutex
	queue  frameQueue
	pcm    []int16
	closed bool

	level atomic.Uint64
}

func (in *audioInput) DeliverAudioData(buf []byte) int {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(buf); err != nil || len(pkt.Payload) == 0 {
		return 0
	}
	if !acceptsPayloadType(pkt.PayloadType) {
		slog.Debug("dropping audio packet with foreign payload type", "slot", in.slot, "codec", codecName, "payload_type", pkt.PayloadType)
		return 0
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return 0
	}
	n, err := in.dec.Decode(pkt.Payload, in.pcm)
	if err != nil {
		slog.Debug("failed to decode audio packet", "slot", in.slot, "codec", codecName, "error", err)
		return 0
	}
	if n <= 0 {
		return 0
	}
	total := n * channels
	if total > samplesPerFrame {
		total = samplesPerFrame
	}
	frame := make([]int16, total)
	copy(frame, in.pcm[:total])
	in.queue.push(frame)
	if in.queue.len() > maxQueuedFrames {
		in.queue.pop()
	}
	in.updateLevel(frame)
	return len(buf)
}

func (in *audioInput) pop() ([]int16, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.queue.pop()
}

func (in *audioInput) updateLevel(frame []int16) {
	var sum float64
	for _, s := range frame {
		v := float64(s) / 32768
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(frame)))
	prev := math.Float64frombits(in.level.Load())
	in.level.Store(math.Float64bits(prev*levelSmoothing + rms*(1-levelSmoothing)))
}

func (in *audioInput) Slot() int {
	return in.slot
}

// Level is the smoothed RMS of recent frames in [0, 1].
func (in *audioInput) Level() float64 {
	return math.Float64frombits(in.level.Load())
}

func (in *audioInput) Close() error {
	in.mixer.forget(in)
	in.mu.Lock()
	defer in.mu.Unlock()
	in.closed = true
	in.queue = frameQueue{}
	return nil
}
