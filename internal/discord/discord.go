package discord

import "context"

type FileMessage struct {
	ChannelID string
	Content   string
	Filename  string
	FileBody  []byte
}

type VoiceStateEvent struct {
	GuildID         string
	UserID          string
	UserIsBot       bool
	BeforeChannelID string
	AfterChannelID  string
}

// Member is one person (or bot) in a voice channel, as shown in conference
// records. DisplayName falls back to UserID when Discord has no name.
type Member struct {
	UserID      string
	DisplayName string
	IsBot       bool
}

type ConferenceMetadata struct {
	GuildID     string
	GuildName   string
	ChannelID   string
	ChannelName string
	Members     []Member
}

type Client interface {
	Connect(ctx context.Context) error
	Close() error
	JoinVoiceChannel(guildID, channelID string) (VoiceConnection, error)
	SendChannelMessage(channelID, content string) error
	SendChannelMessageWithFile(msg FileMessage) error
	RegisterVoiceStateUpdateHandler(handler func(VoiceStateEvent))
	ChannelMembers(guildID, channelID string) ([]Member, error)
	GetBotUserID() (string, error)
	ResolveConferenceMetadata(ctx context.Context, guildID, channelID string, userIDs []string) (ConferenceMetadata, error)
	Run() error
}

// VoiceConnection hands received voice to the callback as complete RTP
// packets. Only packets whose sender is known are delivered. ReceiveRTP
// blocks until the connection goes away.
type VoiceConnection interface {
	Disconnect() error
	ReceiveRTP(callback func(userID string, packet []byte))
}
