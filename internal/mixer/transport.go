package mixer

import (
	"sync/atomic"

	"github.com/foxseedlab/mcumixer/internal/media"
)

// transport is handed to an output engine so it can push mixed packets back
// into the mixer. It goes quiet once the engine it belongs to is torn down.
type transport struct {
	mixer  *Mixer
	media  media.Type
	closed atomic.Bool
}

func (t *transport) SendRTP(buf []byte, streamID uint32) {
	if t.closed.Load() {
		return
	}
	t.mixer.ReceiveRTPData(buf, t.media, streamID)
}
