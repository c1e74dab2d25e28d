package feedback

import (
	"log/slog"
	"sync/atomic"

	"github.com/pion/rtcp"
)

// Recorder is told about every feedback packet the sink sees.
type Recorder interface {
	FeedbackReceived(kind string)
}

// DiscardSink parses subscriber RTCP so it can be counted, then drops it.
// Nothing is routed back to publishers yet.
type DiscardSink struct {
	recorder  Recorder
	discarded atomic.Uint64
	malformed atomic.Uint64
}

func NewDiscardSink(recorder Recorder) *DiscardSink {
	return &DiscardSink{recorder: recorder}
}

func (s *DiscardSink) DeliverFeedback(buf []byte) int {
	if len(buf) == 0 {
		return 0
	}
	pkts, err := rtcp.Unmarshal(buf)
	if err != nil {
		s.malformed.Add(1)
		s.record("malformed")
		slog.Debug("dropping malformed rtcp feedback", "error", err, "bytes", len(buf))
		return 0
	}
	for _, pkt := range pkts {
		s.record(Kind(pkt))
	}
	s.discarded.Add(uint64(len(pkts)))
	return len(buf)
}

func (s *DiscardSink) record(kind string) {
	if s.recorder != nil {
		s.recorder.FeedbackReceived(kind)
	}
}

func (s *DiscardSink) Discarded() uint64 {
	return s.discarded.Load()
}

func (s *DiscardSink) Malformed() uint64 {
	return s.malformed.Load()
}

func Kind(pkt rtcp.Packet) string {
	switch pkt.(type) {
	case *rtcp.SenderReport:
		return "sender_report"
	case *rtcp.ReceiverReport:
		return "receiver_report"
	case *rtcp.SourceDescription:
		return "sdes"
	case *rtcp.Goodbye:
		return "bye"
	case *rtcp.PictureLossIndication:
		return "pli"
	case *rtcp.FullIntraRequest:
		return "fir"
	case *rtcp.TransportLayerNack:
		return "nack"
	case *rtcp.ReceiverEstimatedMaximumBitrate:
		return "remb"
	case *rtcp.TransportLayerCC:
		return "twcc"
	default:
		return "other"
	}
}
