package engine

import (
	"testing"
	"time"

	"github.com/foxseedlab/mcumixer/internal/bufpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestSwitcher(hold time.Duration) (*VideoSwitcher, *captureTransport, *fakeClock, *bufpool.Pool) {
	tr := &captureTransport{}
	pool := bufpool.New(bufpool.DefaultBufferSize)
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	s := NewVideoSwitcher(tr, pool, 5000, hold)
	s.now = clock.Now
	return s, tr, clock, pool
}

func TestVideoSwitcher_Layout(t *testing.T) {
	s, _, _, _ := newTestSwitcher(0)
	assert.Equal(t, GridLayout{}, s.Layout())

	for _, slot := range []int{0, 1, 2, 4, 3} {
		s.newInput(slot)
	}
	s.UpdateMaxSlot(5)

	layout := s.Layout()
	assert.Equal(t, 3, layout.Columns)
	assert.Equal(t, 2, layout.Rows)
	require.Len(t, layout.Cells, 5)
	assert.Equal(t, Cell{Slot: 0, Row: 0, Column: 0}, layout.Cells[0])
	assert.Equal(t, Cell{Slot: 3, Row: 1, Column: 0}, layout.Cells[3])
	assert.Equal(t, Cell{Slot: 4, Row: 1, Column: 1}, layout.Cells[4])
}

func TestVideoSwitcher_ForwardsLowestSlotRewritten(t *testing.T) {
	s, tr, _, pool := newTestSwitcher(time.Second)
	low := s.newInput(0)
	high := s.newInput(1)

	payload := []byte{1, 2, 3, 4}
	pkt := videoPacket(t, 0x1111, 500, 90000, payload)
	assert.Equal(t, len(pkt), high.DeliverVideoData(videoPacket(t, 0x2222, 10, 1000, payload)))
	assert.Equal(t, len(pkt), low.DeliverVideoData(pkt))
	low.DeliverVideoData(videoPacket(t, 0x1111, 501, 93000, payload))

	sent := tr.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, uint32(5000), sent[0].SSRC)
	assert.Equal(t, []uint32{0x1111}, sent[0].CSRC)
	assert.Equal(t, payload, sent[0].Payload)
	assert.True(t, sent[0].Marker)
	assert.Equal(t, sent[0].SequenceNumber+1, sent[1].SequenceNumber)
	assert.Equal(t, uint32(3000), sent[1].Timestamp-sent[0].Timestamp)
	assert.Equal(t, 0, s.Focus())
	assert.Zero(t, pool.InUse())
}

func TestVideoSwitcher_FocusFollowsLoudestAfterHold(t *testing.T) {
	s, tr, clock, _ := newTestSwitcher(time.Second)
	first := s.newInput(0)
	second := s.newInput(1)
	quiet, loud := &levelInput{level: 0.1}, &levelInput{}
	first.SetAudioInput(quiet)
	second.SetAudioInput(loud)

	first.DeliverVideoData(videoPacket(t, 1, 1, 3000, []byte{1}))
	require.Equal(t, 0, s.Focus())

	loud.set(0.6)
	clock.advance(500 * time.Millisecond)
	second.DeliverVideoData(videoPacket(t, 2, 1, 123456, []byte{2}))
	assert.Equal(t, 0, s.Focus(), "focus must be held")

	clock.advance(time.Second)
	second.DeliverVideoData(videoPacket(t, 2, 2, 126456, []byte{2}))
	assert.Equal(t, 1, s.Focus())

	sent := tr.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, []uint32{2}, sent[1].CSRC)
	assert.Equal(t, sent[0].SequenceNumber+1, sent[1].SequenceNumber)
	assert.Equal(t, sent[0].Timestamp+videoFrameTicks, sent[1].Timestamp)
}

func TestVideoSwitcher_SmallLevelDifferenceKeepsFocus(t *testing.T) {
	s, _, clock, _ := newTestSwitcher(0)
	first := s.newInput(0)
	second := s.newInput(1)
	first.SetAudioInput(&levelInput{level: 0.30})
	second.SetAudioInput(&levelInput{level: 0.31})

	first.DeliverVideoData(videoPacket(t, 1, 1, 0, []byte{1}))
	clock.advance(time.Second)
	second.DeliverVideoData(videoPacket(t, 2, 1, 0, []byte{1}))
	assert.Equal(t, 0, s.Focus())
}

func TestVideoSwitcher_ClosingFocusedInputFallsBack(t *testing.T) {
	s, tr, _, _ := newTestSwitcher(time.Hour)
	first := s.newInput(0)
	second := s.newInput(3)

	first.DeliverVideoData(videoPacket(t, 1, 1, 0, []byte{1}))
	require.NoError(t, first.Close())
	assert.Equal(t, -1, s.Focus())
	assert.Zero(t, first.DeliverVideoData(videoPacket(t, 1, 2, 0, []byte{1})))

	second.DeliverVideoData(videoPacket(t, 2, 1, 0, []byte{1}))
	assert.Equal(t, 3, s.Focus())
	assert.Len(t, tr.sent(), 2)
}

func TestVideoSwitcher_StripsPadding(t *testing.T) {
	s, tr, _, _ := newTestSwitcher(0)
	in := s.newInput(0)

	pkt := videoPacket(t, 1, 1, 0, []byte{9, 9})
	pkt[0] |= 0x20
	pkt = append(pkt, 0, 0, 3)
	assert.Equal(t, len(pkt), in.DeliverVideoData(pkt))

	sent := tr.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []byte{9, 9}, sent[0].Payload)
}

func TestVideoSwitcher_ClosedDropsEverything(t *testing.T) {
	s, tr, _, _ := newTestSwitcher(0)
	in := s.newInput(0)
	require.NoError(t, s.Close())

	assert.Zero(t, in.DeliverVideoData(videoPacket(t, 1, 1, 0, []byte{1})))
	assert.Zero(t, in.DeliverVideoData([]byte{0x80}))
	assert.Empty(t, tr.sent())
}

func TestFactory_RejectsForeignOutputs(t *testing.T) {
	f := NewFactory(Options{AudioSSRC: 1, VideoSSRC: 2})

	_, err := f.NewVideoInput(0, nil, nil)
	assert.ErrorIs(t, err, errForeignOutput)
	_, err = f.NewAudioInput(0, nil)
	assert.ErrorIs(t, err, errForeignOutput)

	out, err := f.NewVideoOutput(&captureTransport{}, nil)
	require.NoError(t, err)
	in, err := f.NewVideoInput(2, out, nil)
	require.NoError(t, err)
	require.NoError(t, in.Close())
	require.NoError(t, out.Close())

	audio, err := f.NewAudioOutput(&captureTransport{})
	require.NoError(t, err)
	defer audio.Close()
	ain, err := f.NewAudioInput(4, audio)
	require.NoError(t, err)
	assert.Equal(t, 4, ain.Slot())
}

func TestRTPDecoder_DecodesOneFrame(t *testing.T) {
	dec, err := NewFactory(Options{}).NewAudioDecoder()
	require.NoError(t, err)

	pcm := make([]int16, samplesPerFrame)
	n, err := dec.DecodeRTP(audioPacket(t, 0, 100), pcm)
	require.NoError(t, err)
	assert.Equal(t, samplesPerFrame, n)

	_, err = dec.DecodeRTP([]byte{0x80}, pcm)
	assert.Error(t, err)
}
