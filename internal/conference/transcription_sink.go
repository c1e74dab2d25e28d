package conference

import (
	"encoding/binary"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/foxseedlab/mcumixer/internal/engine"
	"github.com/foxseedlab/mcumixer/internal/media"
	"github.com/foxseedlab/mcumixer/internal/transcriber"
)

const (
	transcriptionQueueSize = 64
	// Interleaved samples of a 120 ms stereo frame at 48 kHz.
	transcriptionMaxSamples = 1920 * 6
)

// transcriptionSink subscribes to the mixed audio and streams it to the
// transcriber as PCM. Delivery never blocks the mixer; packets are dropped
// when the worker falls behind.
type transcriptionSink struct {
	conferenceID string
	dec          engine.AudioDecoder
	writer       transcriber.StreamWriter

	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	dropped   atomic.Int64
	mu        sync.Mutex
	closed    bool
}

var _ media.Sink = (*transcriptionSink)(nil)

func newTranscriptionSink(conferenceID string, dec engine.AudioDecoder, writer transcriber.StreamWriter) *transcriptionSink {
	s := &transcriptionSink{
		conferenceID: conferenceID,
		dec:          dec,
		writer:       writer,
		queue:        make(chan []byte, transcriptionQueueSize),
		done:         make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *transcriptionSink) DeliverAudioData(buf []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	select {
	case s.queue <- append([]byte(nil), buf...):
		return len(buf)
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			slog.Warn("transcription queue full; dropping mixed audio", "conference_id", s.conferenceID, "dropped", n)
		}
		return 0
	}
}

func (s *transcriptionSink) DeliverVideoData([]byte) int { return 0 }

func (s *transcriptionSink) VideoSinkSSRC() uint32 { return 0 }

func (s *transcriptionSink) FeedbackSource() media.FeedbackSource { return nil }

func (s *transcriptionSink) Dropped() int64 {
	return s.dropped.Load()
}

func (s *transcriptionSink) run() {
	defer close(s.done)
	pcm := make([]int16, transcriptionMaxSamples)
	var out []byte
	for packet := range s.queue {
		n, err := s.dec.DecodeRTP(packet, pcm)
		if err != nil {
			slog.Debug("failed to decode mixed audio for transcription", "error", err, "conference_id", s.conferenceID)
			continue
		}
		out = out[:0]
		for _, v := range pcm[:n] {
			out = binary.LittleEndian.AppendUint16(out, uint16(v))
		}
		if err := s.writer.Write(out); err != nil {
			slog.Warn("failed to write audio to transcriber", "error", err, "conference_id", s.conferenceID)
		}
	}
}

// Close drains queued audio, then closes the transcriber stream.
func (s *transcriptionSink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
		<-s.done
		s.closeErr = s.writer.Close()
	})
	return s.closeErr
}
