package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"herald/internal/domain"
)

const (
	telegramMaxMsgLen      = 4096
	telegramMaxSendRetries = 3
)

// telegramAPI is the subset of *tgbotapi.BotAPI the channel uses.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Telegram receives messages by long polling and sends replies through the
// Bot API.
type Telegram struct {
	token  string
	bot    telegramAPI
	logger *slog.Logger

	// sendMu serializes outbound sends.
	sendMu sync.Mutex
	sleep  func(context.Context, time.Duration) error
}

type TelegramConfig struct {
	Token  string
	Logger *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:  cfg.Token,
		logger: cfg.Logger,
		sleep:  sleepCtx,
	}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) MaxMessageLength() int { return telegramMaxMsgLen }

// Start connects to Telegram and dispatches each update to handler on its
// own goroutine until ctx is done.
func (t *Telegram) Start(ctx context.Context, handler domain.MessageHandler) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg, ok := telegramInbound(update)
			if !ok {
				continue
			}
			t.logger.Debug("telegram message received",
				"chat_id", msg.ChatID,
				"sender", msg.SenderID,
				"text_len", len(msg.Body()),
			)
			go handler.Handle(ctx, msg)
		}
	}
}

// telegramInbound converts an update to an InboundMessage. Updates without
// a message or chat are skipped.
func telegramInbound(update tgbotapi.Update) (domain.InboundMessage, bool) {
	m := update.Message
	if m == nil || m.Chat == nil {
		return domain.InboundMessage{}, false
	}

	msg := domain.InboundMessage{
		ID:        strconv.Itoa(m.MessageID),
		Channel:   "telegram",
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		ChatType:  telegramChatType(m.Chat.Type),
		Text:      strings.TrimSpace(m.Text),
		Caption:   strings.TrimSpace(m.Caption),
		Timestamp: time.Unix(int64(m.Date), 0),
	}
	if m.From != nil {
		msg.SenderID = strconv.FormatInt(m.From.ID, 10)
		msg.SenderName = m.From.UserName
		if msg.SenderName == "" {
			msg.SenderName = strings.TrimSpace(m.From.FirstName + " " + m.From.LastName)
		}
		msg.SenderIsBot = m.From.IsBot
	}
	if m.ReplyToMessage != nil {
		msg.ReplyToID = strconv.Itoa(m.ReplyToMessage.MessageID)
	}

	switch {
	case len(m.Photo) > 0:
		// Sizes are ascending; take the largest.
		msg.Attachment = &domain.Attachment{Ref: m.Photo[len(m.Photo)-1].FileID, MimeType: "image/jpeg", Kind: "photo"}
	case m.Document != nil:
		msg.Attachment = &domain.Attachment{Ref: m.Document.FileID, MimeType: m.Document.MimeType, Kind: "document"}
	}
	return msg, true
}

func telegramChatType(t string) domain.ChatType {
	switch t {
	case "private":
		return domain.ChatDirect
	case "channel":
		return domain.ChatPublic
	default:
		return domain.ChatGroup
	}
}

// ResolveAttachmentURL returns the download URL for a file id.
func (t *Telegram) ResolveAttachmentURL(ctx context.Context, ref string) (string, error) {
	if t.bot == nil {
		return "", errors.New("telegram: not connected")
	}
	url, err := t.bot.GetFileDirectURL(ref)
	if err != nil {
		return "", fmt.Errorf("telegram file url: %w", err)
	}
	return url, nil
}

// SendMessage sends one message, retrying rate-limit and transient errors.
func (t *Telegram) SendMessage(ctx context.Context, chatID, text string, opts domain.SendOptions) (domain.SentMessage, error) {
	if t.bot == nil {
		return domain.SentMessage{}, errors.New("telegram: not connected")
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return domain.SentMessage{}, fmt.Errorf("invalid chat ID: %w", err)
	}

	msg := tgbotapi.NewMessage(id, text)
	if opts.ReplyToID != "" {
		if replyTo, err := strconv.Atoi(opts.ReplyToID); err == nil {
			msg.ReplyToMessageID = replyTo
			msg.AllowSendingWithoutReply = true
		}
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		sent, err := t.bot.Send(msg)
		if err == nil {
			return domain.SentMessage{
				ID:        strconv.Itoa(sent.MessageID),
				ChatID:    chatID,
				Text:      text,
				ReplyToID: opts.ReplyToID,
				SentAt:    time.Unix(int64(sent.Date), 0),
			}, nil
		}
		lastErr = err

		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) && tgErr.Code != 429 && tgErr.Code < 500 {
			break
		}
		if attempt == telegramMaxSendRetries {
			break
		}

		backoff := time.Duration(attempt+1) * time.Second
		if tgErr != nil && tgErr.RetryAfter > 0 {
			backoff = time.Duration(tgErr.RetryAfter) * time.Second
		}
		t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff, "attempt", attempt+1)
		if err := t.sleep(ctx, backoff); err != nil {
			return domain.SentMessage{}, err
		}
	}
	return domain.SentMessage{}, fmt.Errorf("telegram send: %w", lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
