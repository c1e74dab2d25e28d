package mixer

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/foxseedlab/mcumixer/internal/bufpool"
	"github.com/foxseedlab/mcumixer/internal/engine"
	"github.com/foxseedlab/mcumixer/internal/media"
)

// protectedReceiver owns one publisher's input side. Its lock only
// serializes packets of that publisher against each other and against close.
type protectedReceiver struct {
	mu        sync.Mutex
	closed    bool
	video     engine.VideoInput
	audio     engine.AudioInput
	unprotect media.Unprotector
	pool      *bufpool.Pool
}

func newProtectedReceiver(video engine.VideoInput, audio engine.AudioInput, unprotect media.Unprotector, pool *bufpool.Pool) *protectedReceiver {
	return &protectedReceiver{
		video:     video,
		audio:     audio,
		unprotect: unprotect,
		pool:      pool,
	}
}

func (r *protectedReceiver) deliverAudioData(buf []byte) int {
	return r.deliver(buf, r.audio.DeliverAudioData)
}

func (r *protectedReceiver) deliverVideoData(buf []byte) int {
	return r.deliver(buf, r.video.DeliverVideoData)
}

func (r *protectedReceiver) deliver(buf []byte, push func([]byte) int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0
	}
	if r.unprotect == nil {
		return push(buf)
	}

	dst := r.pool.Get(len(buf))
	defer r.pool.Put(dst)
	plain, err := r.unprotect.UnprotectRTP(dst[:0], buf)
	if err != nil {
		slog.Debug("dropping rtp packet that failed to unprotect", "error", err, "bytes", len(buf))
		return 0
	}
	if push(plain) <= 0 {
		return 0
	}
	return len(buf)
}

func (r *protectedReceiver) close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return errors.Join(r.video.Close(), r.audio.Close())
}
