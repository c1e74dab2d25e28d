package discord

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	discordpkg "github.com/foxseedlab/mcumixer/internal/discord"
)

type Client struct {
	token     string
	session   *discordgo.Session
	directory *memberDirectory

	mu        sync.Mutex
	botUserID string

	closeOnce sync.Once
	done      chan struct{}
}

func NewClient(token string) discordpkg.Client {
	return &Client{
		token: token,
		done:  make(chan struct{}),
	}
}

func (c *Client) attach(s *discordgo.Session) {
	c.session = s
	c.directory = newMemberDirectory(s)
}

func (c *Client) Connect(_ context.Context) error {
	s, err := discordgo.New("Bot " + c.token)
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.MakeIntent(discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates)
	s.State.TrackVoice = true
	c.attach(s)
	if err := s.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	if _, err := c.GetBotUserID(); err != nil {
		return fmt.Errorf("resolve bot user: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

// Run blocks until Close is called. The gateway runs on discordgo's own
// goroutines once Connect has returned.
func (c *Client) Run() error {
	<-c.done
	return nil
}

func (c *Client) GetBotUserID() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.botUserID != "" {
		return c.botUserID, nil
	}
	if c.session == nil {
		return "", fmt.Errorf("discord session is not initialized")
	}
	if c.session.State != nil && c.session.State.User != nil && c.session.State.User.ID != "" {
		c.botUserID = c.session.State.User.ID
		return c.botUserID, nil
	}
	u, err := c.session.User("@me")
	if err != nil {
		return "", err
	}
	c.botUserID = u.ID
	return c.botUserID, nil
}

func (c *Client) JoinVoiceChannel(guildID, channelID string) (discordpkg.VoiceConnection, error) {
	vc, err := c.session.ChannelVoiceJoin(guildID, channelID, false, false)
	if err != nil {
		return nil, fmt.Errorf("join voice channel %s: %w", channelID, err)
	}
	return newVoiceConnection(vc), nil
}

func (c *Client) SendChannelMessage(channelID, content string) error {
	_, err := c.session.ChannelMessageSend(channelID, content)
	return err
}

func (c *Client) SendChannelMessageWithFile(msg discordpkg.FileMessage) error {
	_, err := c.session.ChannelMessageSendComplex(msg.ChannelID, &discordgo.MessageSend{
		Content: msg.Content,
		Files: []*discordgo.File{
			{Name: msg.Filename, ContentType: "text/plain", Reader: bytes.NewReader(msg.FileBody)},
		},
	})
	return err
}
