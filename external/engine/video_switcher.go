package engine

import (
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/foxseedlab/mcumixer/internal/bufpool"
	"github.com/foxseedlab/mcumixer/internal/engine"
	"github.com/pion/rtp"
)

const (
	// videoFrameTicks is one frame at 30 fps on the 90 kHz video clock.
	videoFrameTicks = 90000 / 30
	// focusMargin is how much louder a speaker must be to take focus.
	focusMargin = 0.02
)

type Cell struct {
	Slot   int
	Row    int
	Column int
}

// GridLayout places every occupied slot on a square-ish grid.
type GridLayout struct {
	Columns int
	Rows    int
	Cells   []Cell
}

// VideoSwitcher forwards the focused publisher's video onto a single
// outgoing stream. Focus follows the loudest linked audio input once the
// current focus has been held for the configured time.
type VideoSwitcher struct {
	transport engine.Transport
	pool      *bufpool.Pool
	ssrc      uint32
	hold      time.Duration
	now       func() time.Time

	mu         sync.Mutex
	inputs     map[int]*videoInput
	maxSlot    int
	focus      int
	focusSince time.Time
	seq        uint16
	tsOffset   uint32
	lastTS     uint32
	rebase     bool
	closed     bool
}

func NewVideoSwitcher(t engine.Transport, pool *bufpool.Pool, ssrc uint32, hold time.Duration) *VideoSwitcher {
	if pool == nil {
		pool = bufpool.New(bufpool.DefaultBufferSize)
	}
	return &VideoSwitcher{
		transport: t,
		pool:      pool,
		ssrc:      ssrc,
		hold:      hold,
		now:       time.Now,
		inputs:    make(map[int]*videoInput),
		focus:     -1,
	}
}

func (s *VideoSwitcher) UpdateMaxSlot(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxSlot = n
}

func (s *VideoSwitcher) Layout() GridLayout {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots := make([]int, 0, len(s.inputs))
	for slot := range s.inputs {
		slots = append(slots, slot)
	}
	slices.Sort(slots)
	n := max(s.maxSlot, len(slots))
	if n == 0 {
		return GridLayout{}
	}
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	layout := GridLayout{
		Columns: cols,
		Rows:    (n + cols - 1) / cols,
		Cells:   make([]Cell, 0, len(slots)),
	}
	for i, slot := range slots {
		layout.Cells = append(layout.Cells, Cell{Slot: slot, Row: i / cols, Column: i % cols})
	}
	return layout
}

// Focus returns the slot currently forwarded, or -1.
func (s *VideoSwitcher) Focus() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focus
}

func (s *VideoSwitcher) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.inputs = make(map[int]*videoInput)
	s.focus = -1
	return nil
}

func (s *VideoSwitcher) newInput(slot int) *videoInput {
	in := &videoInput{slot: slot, switcher: s}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs[slot] = in
	return in
}

func (s *VideoSwitcher) removeInput(in *videoInput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inputs[in.slot] != in {
		return
	}
	delete(s.inputs, in.slot)
	if s.focus == in.slot {
		s.focus = -1
	}
}

func (s *VideoSwitcher) refocusLocked() {
	if _, ok := s.inputs[s.focus]; !ok {
		lowest := -1
		for slot := range s.inputs {
			if lowest < 0 || slot < lowest {
				lowest = slot
			}
		}
		if lowest >= 0 {
			s.setFocusLocked(lowest)
		}
		return
	}
	if s.now().Sub(s.focusSince) < s.hold {
		return
	}
	best := s.focus
	bestLevel := s.inputs[s.focus].level() + focusMargin
	for slot, in := range s.inputs {
		if lvl := in.level(); lvl > bestLevel {
			best, bestLevel = slot, lvl
		}
	}
	if best != s.focus {
		s.setFocusLocked(best)
	}
}

func (s *VideoSwitcher) setFocusLocked(slot int) {
	slog.Debug("video focus changed", "from", s.focus, "to", slot)
	s.focus = slot
	s.focusSince = s.now()
	s.rebase = true
}

func (s *VideoSwitcher) forward(in *videoInput, h *rtp.Header, payload []byte, size int) int {
	s.mu.Lock()
	if s.closed || s.inputs[in.slot] != in {
		s.mu.Unlock()
		return 0
	}
	s.refocusLocked()
	if in.slot != s.focus {
		s.mu.Unlock()
		return size
	}
	if s.rebase {
		s.tsOffset = s.lastTS + videoFrameTicks - h.Timestamp
		s.rebase = false
	}
	out := rtp.Header{
		Version:        2,
		Marker:         h.Marker,
		PayloadType:    h.PayloadType,
		SequenceNumber: s.seq,
		Timestamp:      h.Timestamp + s.tsOffset,
		SSRC:           s.ssrc,
		CSRC:           []uint32{h.SSRC},
	}
	s.seq++
	s.lastTS = out.Timestamp
	s.mu.Unlock()

	total := out.MarshalSize() + len(payload)
	buf := s.pool.Get(total)
	defer s.pool.Put(buf)
	n, err := out.MarshalTo(buf)
	if err != nil {
		slog.Warn("failed to marshal forwarded video header", "slot", in.slot, "error", err)
		return 0
	}
	copy(buf[n:], payload)
	s.transport.SendRTP(buf[:total], s.ssrc)
	return size
}

type videoInput struct {
	slot     int
	switcher *VideoSwitcher

	mu    sync.Mutex
	audio engine.AudioInput
}

func (in *videoInput) DeliverVideoData(buf []byte) int {
	var h rtp.Header
	n, err := h.Unmarshal(buf)
	if err != nil {
		return 0
	}
	end := len(buf)
	if h.Padding && end > n {
		pad := int(buf[end-1])
		if pad > end-n {
			return 0
		}
		end -= pad
	}
	return in.switcher.forward(in, &h, buf[n:end], len(buf))
}

func (in *videoInput) SetAudioInput(a engine.AudioInput) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.audio = a
}

func (in *videoInput) level() float64 {
	in.mu.Lock()
	a := in.audio
	in.mu.Unlock()
	if a == nil {
		return 0
	}
	return a.Level()
}

func (in *videoInput) Close() error {
	in.switcher.removeInput(in)
	return nil
}
