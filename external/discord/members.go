package discord

import (
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/foxseedlab/mcumixer/internal/discord"
)

// memberDirectory resolves voice channel members to names and bot flags.
// It prefers what the gateway already told us and only then asks REST.
// Answers are kept for the life of the client; a member leaving voice
// drops the entry so a rejoin picks up a new nickname.
type memberDirectory struct {
	session *discordgo.Session

	mu    sync.Mutex
	known map[string]discordpkg.Member
}

func newMemberDirectory(s *discordgo.Session) *memberDirectory {
	return &memberDirectory{session: s, known: make(map[string]discordpkg.Member)}
}

func directoryKey(guildID, userID string) string {
	return guildID + "/" + userID
}

func (d *memberDirectory) lookup(guildID, userID string, state *discordgo.VoiceState) discordpkg.Member {
	key := directoryKey(guildID, userID)
	d.mu.Lock()
	if m, ok := d.known[key]; ok {
		d.mu.Unlock()
		return m
	}
	d.mu.Unlock()

	m, ok := d.resolve(guildID, userID, state)
	if !ok {
		return discordpkg.Member{UserID: userID, DisplayName: userID}
	}
	d.mu.Lock()
	d.known[key] = m
	d.mu.Unlock()
	return m
}

func (d *memberDirectory) forget(guildID, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.known, directoryKey(guildID, userID))
}

func (d *memberDirectory) resolve(guildID, userID string, state *discordgo.VoiceState) (discordpkg.Member, bool) {
	if state != nil {
		if m, ok := memberFromDiscord(userID, state.Member); ok {
			return m, true
		}
	}
	if d.session.State != nil {
		if d.session.State.User != nil && d.session.State.User.ID == userID {
			u := d.session.State.User
			return discordpkg.Member{UserID: userID, DisplayName: displayName("", u, userID), IsBot: true}, true
		}
		if gm, err := d.session.State.Member(guildID, userID); err == nil {
			if m, ok := memberFromDiscord(userID, gm); ok {
				return m, true
			}
		}
	}
	if gm, err := d.session.GuildMember(guildID, userID); err == nil {
		if m, ok := memberFromDiscord(userID, gm); ok {
			return m, true
		}
	}
	if u, err := d.session.User(userID); err == nil && u != nil {
		return discordpkg.Member{UserID: userID, DisplayName: displayName("", u, userID), IsBot: u.Bot}, true
	}
	return discordpkg.Member{}, false
}

func memberFromDiscord(userID string, gm *discordgo.Member) (discordpkg.Member, bool) {
	if gm == nil || gm.User == nil {
		return discordpkg.Member{}, false
	}
	return discordpkg.Member{
		UserID:      userID,
		DisplayName: displayName(gm.Nick, gm.User, userID),
		IsBot:       gm.User.Bot,
	}, true
}

// displayName picks the guild nickname, then the global name, then the
// username.
func displayName(nick string, u *discordgo.User, fallback string) string {
	for _, name := range []string{nick, u.GlobalName, u.Username} {
		if name != "" {
			return name
		}
	}
	return fallback
}

// ChannelMembers lists who sits in the voice channel right now, from the
// gateway's voice state cache.
func (c *Client) ChannelMembers(guildID, channelID string) ([]discordpkg.Member, error) {
	if c.session == nil || c.session.State == nil {
		return nil, nil
	}
	guild, err := c.session.State.Guild(guildID)
	if err != nil || guild == nil {
		return nil, nil
	}
	members := make([]discordpkg.Member, 0, len(guild.VoiceStates))
	seen := make(map[string]struct{}, len(guild.VoiceStates))
	for _, vs := range guild.VoiceStates {
		if vs == nil || vs.ChannelID != channelID || vs.UserID == "" {
			continue
		}
		if _, ok := seen[vs.UserID]; ok {
			continue
		}
		seen[vs.UserID] = struct{}{}
		members = append(members, c.directory.lookup(guildID, vs.UserID, vs))
	}
	return members, nil
}

func (c *Client) RegisterVoiceStateUpdateHandler(handler func(discordpkg.VoiceStateEvent)) {
	c.session.AddHandler(func(_ *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
		event, ok := c.voiceStateEvent(vs)
		if !ok {
			return
		}
		handler(event)
	})
}

// voiceStateEvent turns a gateway update into a channel move. Mute and
// deafen toggles, which keep the channel, are not moves.
func (c *Client) voiceStateEvent(vs *discordgo.VoiceStateUpdate) (discordpkg.VoiceStateEvent, bool) {
	if vs == nil || vs.VoiceState == nil || vs.GuildID == "" || vs.UserID == "" {
		return discordpkg.VoiceStateEvent{}, false
	}
	before := ""
	if vs.BeforeUpdate != nil {
		before = vs.BeforeUpdate.ChannelID
	}
	if before == vs.ChannelID {
		return discordpkg.VoiceStateEvent{}, false
	}
	member := c.directory.lookup(vs.GuildID, vs.UserID, vs.VoiceState)
	if vs.ChannelID == "" {
		c.directory.forget(vs.GuildID, vs.UserID)
	}
	return discordpkg.VoiceStateEvent{
		GuildID:         vs.GuildID,
		UserID:          vs.UserID,
		UserIsBot:       member.IsBot,
		BeforeChannelID: before,
		AfterChannelID:  vs.ChannelID,
	}, true
}

func uniqueUserIDs(userIDs []string) []string {
	out := make([]string, 0, len(userIDs))
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
