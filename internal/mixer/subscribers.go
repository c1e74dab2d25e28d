package mixer

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/foxseedlab/mcumixer/internal/media"
)

// AddSubscriber registers sink under peerID, replacing any sink already
// registered for that peer. The mixer owns the sink from here on and closes
// it on removal when it implements io.Closer. An uninitialized mixer has no
// feedback sink to bind, so it refuses the subscriber and the caller keeps
// ownership.
func (m *Mixer) AddSubscriber(sink media.Sink, peerID string) error {
	if sink == nil {
		return fmt.Errorf("subscriber sink for %s is nil", peerID)
	}
	slog.Debug("adding subscriber", "peer_id", peerID, "video_sink_ssrc", sink.VideoSinkSSRC())

	m.mu.RLock()
	if !m.ready {
		m.mu.RUnlock()
		return ErrNotInitialized
	}
	feedback := m.feedback
	m.subMu.Lock()
	if fb := sink.FeedbackSource(); fb != nil {
		slog.Debug("binding subscriber feedback source", "peer_id", peerID)
		fb.SetFeedbackSink(feedback)
	}
	prev, replaced := m.subscribers[peerID]
	if replaced && prev != sink {
		unbindFeedback(prev)
	}
	m.subscribers[peerID] = sink
	count := len(m.subscribers)
	m.subCount.Store(int32(count))
	m.subMu.Unlock()
	m.mu.RUnlock()

	if replaced && prev != sink {
		slog.Debug("replaced subscriber sink", "peer_id", peerID)
		release(prev)
	}
	m.obs.SubscribersChanged(count)
	return nil
}

func (m *Mixer) RemoveSubscriber(peerID string) {
	slog.Debug("removing subscriber", "peer_id", peerID)
	m.subMu.Lock()
	sink, ok := m.subscribers[peerID]
	if !ok {
		m.subMu.Unlock()
		return
	}
	unbindFeedback(sink)
	delete(m.subscribers, peerID)
	count := len(m.subscribers)
	m.subCount.Store(int32(count))
	m.subMu.Unlock()

	release(sink)
	m.obs.SubscribersChanged(count)
}

// CloseAll drops every subscriber after unbinding its feedback source.
// Publishers stay registered; Close releases them.
func (m *Mixer) CloseAll() {
	m.subMu.Lock()
	slog.Debug("mixer closeAll", "subscribers", len(m.subscribers))
	sinks := make([]media.Sink, 0, len(m.subscribers))
	for peerID, sink := range m.subscribers {
		unbindFeedback(sink)
		sinks = append(sinks, sink)
		delete(m.subscribers, peerID)
	}
	m.subCount.Store(0)
	m.subMu.Unlock()

	for _, sink := range sinks {
		release(sink)
	}
	if len(sinks) > 0 {
		m.obs.SubscribersChanged(0)
	}
	slog.Debug("closed all media in this mixer")
}

// Subscribers lists registered peer ids in lexical order.
func (m *Mixer) Subscribers() []string {
	m.subMu.Lock()
	ids := make([]string, 0, len(m.subscribers))
	for peerID := range m.subscribers {
		ids = append(ids, peerID)
	}
	m.subMu.Unlock()
	sort.Strings(ids)
	return ids
}

// ReceiveRTPData fans a mixed packet out to every subscriber. The registry
// lock is held for the whole iteration, so one slow sink delays the others
// and any concurrent membership change.
func (m *Mixer) ReceiveRTPData(buf []byte, t media.Type, streamID uint32) {
	if len(buf) == 0 || t == media.Other || m.subCount.Load() == 0 {
		return
	}

	m.subMu.Lock()
	defer m.subMu.Unlock()
	switch t {
	case media.Audio:
		for _, sink := range m.subscribers {
			sink.DeliverAudioData(buf)
		}
	case media.Video:
		for _, sink := range m.subscribers {
			sink.DeliverVideoData(buf)
		}
	}
	m.obs.FannedOut(t, streamID, len(m.subscribers), len(buf))
}

func unbindFeedback(sink media.Sink) {
	if sink == nil {
		return
	}
	if fb := sink.FeedbackSource(); fb != nil {
		fb.SetFeedbackSink(nil)
	}
}
