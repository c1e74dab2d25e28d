// Package mixer is the core of the conferencing unit. It keeps the publisher
// and subscriber registries, assigns composition slots, and moves packets
// between publishers, the mixing engines and subscribers.
package mixer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/foxseedlab/mcumixer/internal/bufpool"
	"github.com/foxseedlab/mcumixer/internal/engine"
	"github.com/foxseedlab/mcumixer/internal/media"
)

var (
	// ErrPublisherExists marks a caller contract breach: each source is
	// published at most once.
	ErrPublisherExists = errors.New("publisher already registered")
	ErrNotInitialized  = errors.New("mixer is not initialized")
)

type FeedbackSinkFactory func() (media.FeedbackSink, error)

// UnprotectorFactory builds the per-publisher unprotect state. A nil factory
// means inbound packets are already plain RTP.
type UnprotectorFactory func() (media.Unprotector, error)

type Factory func() (*Mixer, error)

type Dependencies struct {
	Engines         engine.Factory
	NewFeedbackSink FeedbackSinkFactory
	NewUnprotector  UnprotectorFactory
	Observer        Observer
	BufferSize      int
}

type Mixer struct {
	deps Dependencies
	obs  Observer

	// mu guards the publisher registry, the slot table and every resource
	// built by Init.
	mu             sync.RWMutex
	ready          bool
	feedback       media.FeedbackSink
	pool           *bufpool.Pool
	videoTransport *transport
	audioTransport *transport
	videoOut       engine.VideoOutput
	audioOut       engine.AudioOutput
	publishers     map[media.Source]*publisher
	slots          []media.Source

	subMu       sync.Mutex
	subscribers map[string]media.Sink
	subCount    atomic.Int32
}

type publisher struct {
	slot     int
	receiver *protectedReceiver
}

func New(deps Dependencies) (*Mixer, error) {
	if deps.Engines == nil {
		return nil, fmt.Errorf("mixer requires an engine factory")
	}
	if deps.NewFeedbackSink == nil {
		deps.NewFeedbackSink = func() (media.FeedbackSink, error) { return discardFeedback{}, nil }
	}
	obs := deps.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	m := &Mixer{
		deps:        deps,
		obs:         obs,
		publishers:  make(map[media.Source]*publisher),
		subscribers: make(map[string]media.Sink),
	}
	if err := m.Init(); err != nil {
		return nil, err
	}
	return m, nil
}

// Init resets the mixer. Existing publishers and subscribers are released
// and the engines are rebuilt from scratch. On failure everything built so
// far is closed and the mixer stays uninitialized.
func (m *Mixer) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CloseAll()
	if err := m.teardownLocked(); err != nil {
		slog.Warn("mixer teardown before init reported errors", "error", err)
	}

	feedback, err := m.deps.NewFeedbackSink()
	if err != nil {
		return fmt.Errorf("create feedback sink: %w", err)
	}
	pool := bufpool.New(m.deps.BufferSize)

	videoTransport := &transport{mixer: m, media: media.Video}
	videoOut, err := m.deps.Engines.NewVideoOutput(videoTransport, pool)
	if err != nil {
		release(feedback)
		return fmt.Errorf("create video output engine: %w", err)
	}

	audioTransport := &transport{mixer: m, media: media.Audio}
	audioOut, err := m.deps.Engines.NewAudioOutput(audioTransport)
	if err != nil {
		videoTransport.closed.Store(true)
		_ = videoOut.Close()
		release(feedback)
		return fmt.Errorf("create audio output engine: %w", err)
	}

	m.feedback = feedback
	m.pool = pool
	m.videoTransport = videoTransport
	m.videoOut = videoOut
	m.audioTransport = audioTransport
	m.audioOut = audioOut
	m.ready = true
	slog.Debug("mixer initialized", "buffer_size", pool.Size())
	return nil
}

// Close releases subscribers, publishers and the engines. The mixer can be
// revived with Init.
func (m *Mixer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseAll()
	return m.teardownLocked()
}

func (m *Mixer) teardownLocked() error {
	var errs []error
	released := len(m.publishers)
	for src, p := range m.publishers {
		if err := p.receiver.close(); err != nil {
			errs = append(errs, fmt.Errorf("release publisher %s: %w", src.SourceID(), err))
		}
		delete(m.publishers, src)
	}
	m.slots = m.slots[:0]
	if released > 0 {
		m.obs.PublishersChanged(0)
	}

	if m.videoTransport != nil {
		m.videoTransport.closed.Store(true)
	}
	if m.audioTransport != nil {
		m.audioTransport.closed.Store(true)
	}
	if m.videoOut != nil {
		if err := m.videoOut.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close video output engine: %w", err))
		}
	}
	if m.audioOut != nil {
		if err := m.audioOut.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audio output engine: %w", err))
		}
	}
	release(m.feedback)

	m.ready = false
	m.feedback = nil
	m.pool = nil
	m.videoTransport = nil
	m.audioTransport = nil
	m.videoOut = nil
	m.audioOut = nil
	return errors.Join(errs...)
}

// FeedbackSink is the shared sink every feedback-capable subscriber is bound
// to. It is nil while the mixer is uninitialized.
func (m *Mixer) FeedbackSink() media.FeedbackSink {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.feedback
}

func (m *Mixer) BufferPool() *bufpool.Pool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pool
}

func release(v any) {
	c, ok := v.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		slog.Warn("failed to release mixer resource", "error", err)
	}
}

type discardFeedback struct{}

func (discardFeedback) DeliverFeedback(buf []byte) int { return len(buf) }
