package conference

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/foxseedlab/mcumixer/internal/discord"
	"github.com/foxseedlab/mcumixer/internal/engine"
	"github.com/foxseedlab/mcumixer/internal/media"
	"github.com/foxseedlab/mcumixer/internal/repository"
)

// Core is the part of the mixer a conference drives.
type Core interface {
	AddPublisher(src media.Source) error
	RemovePublisher(src media.Source)
	GetSlot(src media.Source) (int, bool)
	DeliverAudioData(buf []byte, src media.Source) int
	AddSubscriber(sink media.Sink, peerID string) error
	Close() error
}

type CoreFactory func() (Core, error)

type DecoderFactory func() (engine.AudioDecoder, error)

// participant is the publisher identity of one voice member.
type participant struct {
	userID string
}

func (p *participant) SourceID() string {
	return p.userID
}

type conference struct {
	record    *repository.Conference
	guildID   string
	channelID string
	voice     discord.VoiceConnection
	core      Core
	cancel    context.CancelFunc
	packets   atomic.Int64

	// transcribing is set once, before the conference is published.
	transcribing bool

	mu         sync.Mutex
	stopped    bool
	members    map[string]struct{}
	departed   map[string]struct{}
	publishers map[string]*participant
	seen       []string
	peak       int
}

func newConference(record *repository.Conference, guildID, channelID string, voice discord.VoiceConnection, core Core, cancel context.CancelFunc) *conference {
	return &conference{
		record:     record,
		guildID:    guildID,
		channelID:  channelID,
		voice:      voice,
		core:       core,
		cancel:     cancel,
		members:    make(map[string]struct{}),
		departed:   make(map[string]struct{}),
		publishers: make(map[string]*participant),
	}
}

func (c *conference) id() string {
	return c.record.ID
}

func (c *conference) publisher(userID string) (*participant, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.publishers[userID]
	return p, ok
}

func (c *conference) memberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.members)
}

func (c *conference) peakPublishers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peak
}

// seenUserIDs lists every user that ever published, in join order.
func (c *conference) seenUserIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.seen)
}
