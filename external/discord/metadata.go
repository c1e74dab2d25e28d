package discord

import (
	"context"
	"fmt"
	"log/slog"

	discordpkg "github.com/foxseedlab/mcumixer/internal/discord"
)

// ResolveConferenceMetadata names the guild, the channel and everyone who
// published during a conference. Unresolvable names fall back to ids.
func (c *Client) ResolveConferenceMetadata(_ context.Context, guildID, channelID string, userIDs []string) (discordpkg.ConferenceMetadata, error) {
	meta := discordpkg.ConferenceMetadata{
		GuildID:     guildID,
		GuildName:   guildID,
		ChannelID:   channelID,
		ChannelName: channelID,
	}
	if c.session == nil {
		return meta, fmt.Errorf("discord session is not initialized")
	}
	if name := c.guildName(guildID); name != "" {
		meta.GuildName = name
	} else {
		slog.Warn("discord guild name could not be resolved; using guild id", "guild_id", guildID)
	}
	if name := c.channelName(channelID); name != "" {
		meta.ChannelName = name
	} else {
		slog.Warn("discord channel name could not be resolved; using channel id", "channel_id", channelID)
	}
	for _, userID := range uniqueUserIDs(userIDs) {
		meta.Members = append(meta.Members, c.directory.lookup(guildID, userID, nil))
	}
	return meta, nil
}

func (c *Client) guildName(guildID string) string {
	if c.session.State != nil {
		if g, err := c.session.State.Guild(guildID); err == nil && g.Name != "" {
			return g.Name
		}
	}
	g, err := c.session.Guild(guildID)
	if err != nil || g == nil {
		return ""
	}
	return g.Name
}

func (c *Client) channelName(channelID string) string {
	if c.session.State != nil {
		if ch, err := c.session.State.Channel(channelID); err == nil && ch.Name != "" {
			return ch.Name
		}
	}
	ch, err := c.session.Channel(channelID)
	if err != nil || ch == nil {
		return ""
	}
	return ch.Name
}
