package transcriber

import "context"

// StreamWriter accepts 48 kHz stereo LINEAR16 little-endian PCM.
type StreamWriter interface {
	Write(pcm []byte) error
	Close() error
}

type ResultReceiver interface {
	OnResult(segmentIndex int, text string, isFinal bool)
	OnError(err error)
}

type Transcriber interface {
	StartStreaming(ctx context.Context, conferenceID, language string, receiver ResultReceiver) (StreamWriter, error)
}
