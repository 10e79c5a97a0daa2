package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"herald/internal/domain"
)

const (
	discordMaxMsgLen = 2000
)

// discordAPI is the subset of *discordgo.Session used for sending.
type discordAPI interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord receives guild and direct messages over the gateway and replies
// through the REST API.
type Discord struct {
	token   string
	guildID string
	api     discordAPI
	logger  *slog.Logger

	sendMu sync.Mutex
}

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	Token string
	// GuildID limits inbound messages to one guild. Direct messages always pass.
	GuildID string
	Logger  *slog.Logger
}

// NewDiscord creates a new Discord channel handler.
func NewDiscord(cfg DiscordConfig) *Discord {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Discord{
		token:   cfg.Token,
		guildID: cfg.GuildID,
		logger:  cfg.Logger,
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) MaxMessageLength() int { return discordMaxMsgLen }

// Start connects to Discord and dispatches each message to handler on its
// own goroutine until ctx is done.
func (d *Discord) Start(ctx context.Context, handler domain.MessageHandler) error {
	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if s.State == nil || s.State.User == nil {
			return
		}
		msg, ok := discordInbound(m.Message, s.State.User, d.guildID)
		if !ok {
			return
		}
		d.logger.Debug("discord message received",
			"author", msg.SenderName,
			"channel_id", msg.ChatID,
			"content_len", len(msg.Body()),
		)
		go handler.Handle(ctx, msg)
	})

	// Set before Open so handlers started by the gateway can send.
	d.api = session
	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	d.logger.Info("discord bot connected", "user", session.State.User.Username)

	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")
	return session.Close()
}

// discordInbound converts a gateway message. The agent's own messages and
// messages from other guilds are skipped. Mentions of the agent are
// rewritten to "@username" so they read like any other handle.
func discordInbound(m *discordgo.Message, self *discordgo.User, guildID string) (domain.InboundMessage, bool) {
	if m == nil || m.Author == nil || m.Author.ID == self.ID {
		return domain.InboundMessage{}, false
	}
	if guildID != "" && m.GuildID != "" && m.GuildID != guildID {
		return domain.InboundMessage{}, false
	}

	text := m.Content
	mention := "@" + self.Username
	text = strings.ReplaceAll(text, "<@"+self.ID+">", mention)
	text = strings.ReplaceAll(text, "<@!"+self.ID+">", mention)

	msg := domain.InboundMessage{
		ID:          m.ID,
		Channel:     "discord",
		ChatID:      m.ChannelID,
		ChatType:    domain.ChatGroup,
		SenderID:    m.Author.ID,
		SenderName:  m.Author.Username,
		SenderIsBot: m.Author.Bot,
		Text:        strings.TrimSpace(text),
		Timestamp:   m.Timestamp,
	}
	if m.GuildID == "" {
		msg.ChatType = domain.ChatDirect
	}
	if m.MessageReference != nil {
		msg.ReplyToID = m.MessageReference.MessageID
	}
	if len(m.Attachments) > 0 {
		a := m.Attachments[0]
		kind := "file"
		if strings.HasPrefix(a.ContentType, "image/") {
			kind = "photo"
		}
		msg.Attachment = &domain.Attachment{Ref: a.URL, MimeType: a.ContentType, Kind: kind}
	}
	return msg, true
}

// ResolveAttachmentURL returns ref unchanged; Discord attachment refs are
// already CDN URLs.
func (d *Discord) ResolveAttachmentURL(ctx context.Context, ref string) (string, error) {
	if !strings.HasPrefix(ref, "http") {
		return "", fmt.Errorf("discord: not an attachment url: %q", ref)
	}
	return ref, nil
}

func (d *Discord) SendMessage(ctx context.Context, chatID, text string, opts domain.SendOptions) (domain.SentMessage, error) {
	if d.api == nil {
		return domain.SentMessage{}, errors.New("discord: not connected")
	}
	data := &discordgo.MessageSend{Content: text}
	if opts.ReplyToID != "" {
		data.Reference = &discordgo.MessageReference{MessageID: opts.ReplyToID, ChannelID: chatID}
	}

	d.sendMu.Lock()
	defer d.sendMu.Unlock()

	sent, err := d.api.ChannelMessageSendComplex(chatID, data, discordgo.WithContext(ctx))
	if err != nil {
		return domain.SentMessage{}, fmt.Errorf("discord send: %w", err)
	}
	return domain.SentMessage{
		ID:        sent.ID,
		ChatID:    chatID,
		Text:      text,
		ReplyToID: opts.ReplyToID,
		SentAt:    sent.Timestamp,
	}, nil
}
