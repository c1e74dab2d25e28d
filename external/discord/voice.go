package discord

import (
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/pion/rtp"
)

// discordOpusPayloadType is the dynamic payload type Discord assigns to Opus.
const discordOpusPayloadType = 120

type voiceConnection struct {
	vc       *discordgo.VoiceConnection
	speakers *speakerTable
}

func newVoiceConnection(vc *discordgo.VoiceConnection) *voiceConnection {
	v := &voiceConnection{vc: vc, speakers: newSpeakerTable()}
	vc.AddHandler(func(_ *discordgo.VoiceConnection, vs *discordgo.VoiceSpeakingUpdate) {
		if vs == nil || vs.UserID == "" {
			return
		}
		v.speakers.attribute(uint32(vs.SSRC), vs.UserID)
	})
	return v
}

func (v *voiceConnection) Disconnect() error {
	return v.vc.Disconnect()
}

func (v *voiceConnection) ReceiveRTP(callback func(userID string, packet []byte)) {
	if v.vc.OpusRecv == nil {
		return
	}
	v.pump(v.vc.OpusRecv, callback)
}

func (v *voiceConnection) pump(packets <-chan *discordgo.Packet, callback func(userID string, packet []byte)) {
	for p := range packets {
		if p == nil {
			continue
		}
		userID, ok := v.speakers.speaker(p.SSRC)
		if !ok {
			continue
		}
		buf, ok := packetToRTP(p)
		if !ok {
			continue
		}
		callback(userID, buf)
	}
}

// packetToRTP restores the RTP framing discordgo strips from received voice.
func packetToRTP(p *discordgo.Packet) ([]byte, bool) {
	if p == nil || len(p.Opus) == 0 {
		return nil, false
	}
	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    discordOpusPayloadType,
			SequenceNumber: p.Sequence,
			Timestamp:      p.Timestamp,
			SSRC:           p.SSRC,
		},
		Payload: p.Opus,
	}
	buf, err := pkt.Marshal()
	if err != nil {
		return nil, false
	}
	return buf, true
}

// speakerTable attributes voice SSRCs to users. Discord announces the
// mapping in a speaking update; packets that arrive before it cannot be
// given to a publisher and are dropped.
type speakerTable struct {
	mu         sync.RWMutex
	bySSRC     map[uint32]string
	unassigned map[uint32]int
}

func newSpeakerTable() *speakerTable {
	return &speakerTable{bySSRC: make(map[uint32]string), unassigned: make(map[uint32]int)}
}

// attribute records the sender of an SSRC. A user who reconnects gets a
// new SSRC, so the old one is released.
func (t *speakerTable) attribute(ssrc uint32, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for old, id := range t.bySSRC {
		if id == userID && old != ssrc {
			delete(t.bySSRC, old)
		}
	}
	t.bySSRC[ssrc] = userID
	if dropped := t.unassigned[ssrc]; dropped > 0 {
		slog.Debug("voice ssrc attributed after dropping early packets", "ssrc", ssrc, "user_id", userID, "dropped", dropped)
		delete(t.unassigned, ssrc)
	}
}

func (t *speakerTable) speaker(ssrc uint32) (string, bool) {
	t.mu.RLock()
	userID, ok := t.bySSRC[ssrc]
	t.mu.RUnlock()
	if ok {
		return userID, true
	}
	t.mu.Lock()
	t.unassigned[ssrc]++
	t.mu.Unlock()
	return "", false
}
