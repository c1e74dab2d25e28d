package mixer

import (
	"errors"
	"sync"

	"github.com/foxseedlab/mcumixer/internal/bufpool"
	"github.com/foxseedlab/mcumixer/internal/engine"
	"github.com/foxseedlab/mcumixer/internal/media"
)

type fakeSource struct{ id string }

func (s *fakeSource) SourceID() string { return s.id }

type fakeEngines struct {
	mu              sync.Mutex
	videoOutputs    []*fakeVideoOutput
	audioOutputs    []*fakeAudioOutput
	videoInputs     []*fakeVideoInput
	audioInputs     []*fakeAudioInput
	failVideoOutput error
	failAudioOutput error
	failAudioInput  error
}

func (f *fakeEngines) NewVideoOutput(t engine.Transport, _ *bufpool.Pool) (engine.VideoOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failVideoOutput != nil {
		return nil, f.failVideoOutput
	}
	out := &fakeVideoOutput{transport: t}
	f.videoOutputs = append(f.videoOutputs, out)
	return out, nil
}

func (f *fakeEngines) NewAudioOutput(t engine.Transport) (engine.AudioOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAudioOutput != nil {
		return nil, f.failAudioOutput
	}
	out := &fakeAudioOutput{transport: t, mixable: make(map[engine.AudioInput]bool)}
	f.audioOutputs = append(f.audioOutputs, out)
	return out, nil
}

func (f *fakeEngines) NewVideoInput(slot int, out engine.VideoOutput, _ *bufpool.Pool) (engine.VideoInput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in := &fakeVideoInput{slot: slot, out: out}
	f.videoInputs = append(f.videoInputs, in)
	return in, nil
}

func (f *fakeEngines) NewAudioInput(slot int, out engine.AudioOutput) (engine.AudioInput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAudioInput != nil {
		return nil, f.failAudioInput
	}
	in := &fakeAudioInput{slot: slot, out: out}
	f.audioInputs = append(f.audioInputs, in)
	return in, nil
}

func (f *fakeEngines) NewAudioDecoder() (engine.AudioDecoder, error) {
	return nil, errors.New("not supported")
}

func (f *fakeEngines) lastVideoOutput() *fakeVideoOutput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.videoOutputs[len(f.videoOutputs)-1]
}

func (f *fakeEngines) lastAudioOutput() *fakeAudioOutput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audioOutputs[len(f.audioOutputs)-1]
}

func (f *fakeEngines) inputCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.videoInputs)
}

type fakeVideoOutput struct {
	mu        sync.Mutex
	transport engine.Transport
	maxSlots  []int
	closed    bool
}

func (o *fakeVideoOutput) UpdateMaxSlot(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.maxSlots = append(o.maxSlots, n)
}

func (o *fakeVideoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func (o *fakeVideoOutput) lastMaxSlot() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.maxSlots) == 0 {
		return -1
	}
	return o.maxSlots[len(o.maxSlots)-1]
}

func (o *fakeVideoOutput) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

type fakeAudioOutput struct {
	mu        sync.Mutex
	transport engine.Transport
	mixable   map[engine.AudioInput]bool
	closed    bool
}

func (o *fakeAudioOutput) SetMixabilityStatus(in engine.AudioInput, mixable bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if mixable {
		o.mixable[in] = true
	} else {
		delete(o.mixable, in)
	}
	return nil
}

func (o *fakeAudioOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}

func (o *fakeAudioOutput) isMixable(in engine.AudioInput) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mixable[in]
}

func (o *fakeAudioOutput) mixableCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.mixable)
}

type fakeVideoInput struct {
	mu      sync.Mutex
	slot    int
	out     engine.VideoOutput
	audio   engine.AudioInput
	packets [][]byte
	closed  bool
}

func (in *fakeVideoInput) DeliverVideoData(buf []byte) int {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.packets = append(in.packets, append([]byte(nil), buf...))
	return len(buf)
}

func (in *fakeVideoInput) SetAudioInput(a engine.AudioInput) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.audio = a
}

func (in *fakeVideoInput) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.closed = true
	return nil
}

func (in *fakeVideoInput) received() [][]byte {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([][]byte(nil), in.packets...)
}

type fakeAudioInput struct {
	mu      sync.Mutex
	slot    int
	out     engine.AudioOutput
	packets [][]byte
	closed  bool
}

func (in *fakeAudioInput) DeliverAudioData(buf []byte) int {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.packets = append(in.packets, append([]byte(nil), buf...))
	return len(buf)
}

func (in *fakeAudioInput) Slot() int      { return in.slot }
func (in *fakeAudioInput) Level() float64 { return 0 }

func (in *fakeAudioInput) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.closed = true
	return nil
}

func (in *fakeAudioInput) received() [][]byte {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([][]byte(nil), in.packets...)
}

func (in *fakeAudioInput) isClosed() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.closed
}

type fakeFeedbackSource struct {
	mu   sync.Mutex
	sink media.FeedbackSink
}

func (f *fakeFeedbackSource) SetFeedbackSink(sink media.FeedbackSink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sink = sink
}

func (f *fakeFeedbackSource) FeedbackSink() media.FeedbackSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sink
}

type fakeSink struct {
	mu       sync.Mutex
	ssrc     uint32
	feedback *fakeFeedbackSource
	audio    [][]byte
	video    [][]byte
	closed   bool
	entered  chan struct{}
	release  chan struct{}
}

func newFakeSink(withFeedback bool) *fakeSink {
	s := &fakeSink{ssrc: 42}
	if withFeedback {
		s.feedback = &fakeFeedbackSource{}
	}
	return s
}

func (s *fakeSink) DeliverAudioData(buf []byte) int {
	if s.entered != nil {
		s.entered <- struct{}{}
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, append([]byte(nil), buf...))
	return len(buf)
}

func (s *fakeSink) DeliverVideoData(buf []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.video = append(s.video, append([]byte(nil), buf...))
	return len(buf)
}

func (s *fakeSink) VideoSinkSSRC() uint32 { return s.ssrc }

func (s *fakeSink) FeedbackSource() media.FeedbackSource {
	if s.feedback == nil {
		return nil
	}
	return s.feedback
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) counts() (audio, video int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.audio), len(s.video)
}

func (s *fakeSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeFeedbackSink struct {
	mu      sync.Mutex
	packets int
	closed  bool
}

func (f *fakeFeedbackSink) DeliverFeedback(buf []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.packets++
	return len(buf)
}

func (f *fakeFeedbackSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type xorUnprotector struct {
	key  byte
	fail bool
}

func (u *xorUnprotector) UnprotectRTP(dst, buf []byte) ([]byte, error) {
	if u.fail {
		return nil, errors.New("auth tag mismatch")
	}
	for _, b := range buf {
		dst = append(dst, b^u.key)
	}
	return dst, nil
}

type countingObserver struct {
	mu          sync.Mutex
	publishers  int
	subscribers int
	inbound     map[media.Type]int
	fanouts     map[media.Type]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{inbound: make(map[media.Type]int), fanouts: make(map[media.Type]int)}
}

func (o *countingObserver) PublishersChanged(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.publishers = n
}

func (o *countingObserver) SubscribersChanged(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subscribers = n
}

func (o *countingObserver) InboundDelivered(t media.Type, bytes int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inbound[t] += bytes
}

func (o *countingObserver) FannedOut(t media.Type, _ uint32, _, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fanouts[t]++
}
