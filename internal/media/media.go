package media

// Type discriminates the media carried by an RTP packet.
type Type int

const (
	Other Type = iota
	Audio
	Video
)

func (t Type) String() string {
	switch t {
	case Audio:
		return "audio"
	case Video:
		return "video"
	default:
		return "other"
	}
}

// Source identifies a publisher. Implementations must be comparable
// (normally a pointer) because the mixer keys its registry by the value.
type Source interface {
	SourceID() string
}

type FeedbackSink interface {
	DeliverFeedback(buf []byte) int
}

type FeedbackSource interface {
	SetFeedbackSink(sink FeedbackSink)
	FeedbackSink() FeedbackSink
}

// Sink receives mixed output. FeedbackSource returns nil when the sink
// cannot produce receiver feedback.
type Sink interface {
	DeliverAudioData(buf []byte) int
	DeliverVideoData(buf []byte) int
	VideoSinkSSRC() uint32
	FeedbackSource() FeedbackSource
}

// Unprotector turns a protected inbound RTP packet into a plain one.
type Unprotector interface {
	UnprotectRTP(dst, buf []byte) ([]byte, error)
}
