package mixer

import (
	"fmt"
	"log/slog"

	"github.com/foxseedlab/mcumixer/internal/media"
)

// AddPublisher attaches a new inbound stream. The publisher gets the lowest
// free slot and one video and one audio input processor bound to it.
// Registering the same source twice is a caller bug and is reported as
// ErrPublisherExists without touching the existing entry.
func (m *Mixer) AddPublisher(src media.Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if src == nil {
		return fmt.Errorf("publisher source is nil")
	}
	if !m.ready {
		return ErrNotInitialized
	}
	if existing, ok := m.publishers[src]; ok {
		slog.Error("publisher added while its input processors are still registered", "source", src.SourceID(), "slot", existing.slot)
		return fmt.Errorf("%w: %s", ErrPublisherExists, src.SourceID())
	}

	slot := m.assignSlotLocked(src)
	slog.Debug("addPublisher - assigned slot", "source", src.SourceID(), "slot", slot)
	m.videoOut.UpdateMaxSlot(m.maxSlotLocked())

	p, err := m.newPublisherLocked(slot)
	if err != nil {
		m.slots[slot] = nil
		m.videoOut.UpdateMaxSlot(m.maxSlotLocked())
		return fmt.Errorf("add publisher %s: %w", src.SourceID(), err)
	}
	m.publishers[src] = p

	if err := m.audioOut.SetMixabilityStatus(p.receiver.audio, true); err != nil {
		slog.Warn("failed to mark publisher audio as mixable", "error", err, "source", src.SourceID(), "slot", slot)
	}
	m.obs.PublishersChanged(len(m.publishers))
	return nil
}

func (m *Mixer) newPublisherLocked(slot int) (*publisher, error) {
	video, err := m.deps.Engines.NewVideoInput(slot, m.videoOut, m.pool)
	if err != nil {
		return nil, fmt.Errorf("create video input processor: %w", err)
	}
	audio, err := m.deps.Engines.NewAudioInput(slot, m.audioOut)
	if err != nil {
		_ = video.Close()
		return nil, fmt.Errorf("create audio input processor: %w", err)
	}
	video.SetAudioInput(audio)

	var unprotector media.Unprotector
	if m.deps.NewUnprotector != nil {
		unprotector, err = m.deps.NewUnprotector()
		if err != nil {
			_ = video.Close()
			_ = audio.Close()
			return nil, fmt.Errorf("create rtp unprotector: %w", err)
		}
	}
	return &publisher{
		slot:     slot,
		receiver: newProtectedReceiver(video, audio, unprotector, m.pool),
	}, nil
}

// RemovePublisher detaches a publisher and frees its slot. Unknown sources
// are ignored.
func (m *Mixer) RemovePublisher(src media.Source) {
	m.mu.Lock()
	p, ok := m.publishers[src]
	if !ok {
		m.mu.Unlock()
		return
	}
	slot, found := m.slotOfLocked(src)
	if !found {
		m.mu.Unlock()
		panic(fmt.Sprintf("mixer: registered publisher %s holds no slot", src.SourceID()))
	}
	m.slots[slot] = nil
	delete(m.publishers, src)

	if err := m.audioOut.SetMixabilityStatus(p.receiver.audio, false); err != nil {
		slog.Warn("failed to clear publisher mixability", "error", err, "source", src.SourceID(), "slot", slot)
	}
	m.videoOut.UpdateMaxSlot(m.maxSlotLocked())
	remaining := len(m.publishers)
	m.mu.Unlock()

	if err := p.receiver.close(); err != nil {
		slog.Warn("failed to release publisher input processors", "error", err, "source", src.SourceID(), "slot", slot)
	}
	slog.Debug("removePublisher - released slot", "source", src.SourceID(), "slot", slot)
	m.obs.PublishersChanged(remaining)
}

// GetSlot reports the slot held by src.
func (m *Mixer) GetSlot(src media.Source) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.slotOfLocked(src)
}

// MaxSlot is the number of occupied slots, which sizes the composition
// grid. Freed slots are left as holes and reused lowest first, so the value
// can be smaller than the highest slot index plus one.
func (m *Mixer) MaxSlot() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.maxSlotLocked()
}

func (m *Mixer) Publishers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.publishers)
}

func (m *Mixer) DeliverAudioData(buf []byte, src media.Source) int {
	if len(buf) == 0 {
		return 0
	}
	r := m.receiverOf(src)
	if r == nil {
		return 0
	}
	n := r.deliverAudioData(buf)
	if n > 0 {
		m.obs.InboundDelivered(media.Audio, n)
	}
	return n
}

// DeliverVideoData is called concurrently by publisher goroutines. The
// registry is only read-locked for the lookup, so publishers never wait on
// each other's packets.
func (m *Mixer) DeliverVideoData(buf []byte, src media.Source) int {
	if len(buf) == 0 {
		return 0
	}
	r := m.receiverOf(src)
	if r == nil {
		return 0
	}
	n := r.deliverVideoData(buf)
	if n > 0 {
		m.obs.InboundDelivered(media.Video, n)
	}
	return n
}

func (m *Mixer) receiverOf(src media.Source) *protectedReceiver {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.publishers[src]
	if !ok {
		return nil
	}
	return p.receiver
}

func (m *Mixer) assignSlotLocked(src media.Source) int {
	for i, occupant := range m.slots {
		if occupant == nil {
			m.slots[i] = src
			return i
		}
	}
	m.slots = append(m.slots, src)
	return len(m.slots) - 1
}

func (m *Mixer) slotOfLocked(src media.Source) (int, bool) {
	for i, occupant := range m.slots {
		if occupant != nil && occupant == src {
			return i, true
		}
	}
	return -1, false
}

func (m *Mixer) maxSlotLocked() int {
	n := 0
	for _, occupant := range m.slots {
		if occupant != nil {
			n++
		}
	}
	return n
}
