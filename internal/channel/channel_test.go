package channel

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"herald/internal/domain"
	"herald/internal/httpx"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func noSleep(context.Context, time.Duration) error { return nil }

// --- Telegram ---

type fakeTelegramAPI struct {
	sent    []tgbotapi.MessageConfig
	errs    []error
	fileURL string
}

func (f *fakeTelegramAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg := c.(tgbotapi.MessageConfig)
	f.sent = append(f.sent, msg)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return tgbotapi.Message{}, err
		}
	}
	return tgbotapi.Message{MessageID: 99, Date: 1700000000}, nil
}

func (f *fakeTelegramAPI) GetFileDirectURL(fileID string) (string, error) {
	return f.fileURL + fileID, nil
}

func newTestTelegram(api *fakeTelegramAPI) *Telegram {
	tg := NewTelegram(TelegramConfig{Token: "t", Logger: testLogger()})
	tg.bot = api
	tg.sleep = noSleep
	return tg
}

func TestTelegramInbound_Text(t *testing.T) {
	update := tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID:      7,
		Date:           1700000000,
		Chat:           &tgbotapi.Chat{ID: -100, Type: "supergroup"},
		From:           &tgbotapi.User{ID: 42, UserName: "alice"},
		Text:           "  hello @nova  ",
		ReplyToMessage: &tgbotapi.Message{MessageID: 5},
	}}

	msg, ok := telegramInbound(update)
	if !ok {
		t.Fatal("expected message")
	}
	if msg.ID != "7" || msg.ChatID != "-100" || msg.SenderID != "42" || msg.SenderName != "alice" {
		t.Fatalf("unexpected ids: %+v", msg)
	}
	if msg.ChatType != domain.ChatGroup || msg.Text != "hello @nova" || msg.ReplyToID != "5" {
		t.Fatalf("unexpected fields: %+v", msg)
	}
	if !msg.Timestamp.Equal(time.Unix(1700000000, 0)) {
		t.Fatalf("unexpected timestamp %v", msg.Timestamp)
	}
}

func TestTelegramInbound_PhotoUsesLargestSize(t *testing.T) {
	update := tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		Chat:      &tgbotapi.Chat{ID: 9, Type: "private"},
		From:      &tgbotapi.User{ID: 9, FirstName: "Bob", IsBot: true},
		Caption:   "look",
		Photo:     []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}},
	}}

	msg, ok := telegramInbound(update)
	if !ok {
		t.Fatal("expected message")
	}
	if msg.ChatType != domain.ChatDirect || !msg.SenderIsBot || msg.SenderName != "Bob" {
		t.Fatalf("unexpected sender fields: %+v", msg)
	}
	if msg.Body() != "look" || msg.Attachment == nil || msg.Attachment.Ref != "large" || !msg.Attachment.IsImage() {
		t.Fatalf("unexpected attachment: %+v", msg.Attachment)
	}
}

func TestTelegramInbound_SkipsNonMessages(t *testing.T) {
	if _, ok := telegramInbound(tgbotapi.Update{}); ok {
		t.Fatal("update without message should be skipped")
	}
}

func TestTelegram_SendMessageWithReply(t *testing.T) {
	api := &fakeTelegramAPI{}
	tg := newTestTelegram(api)

	sent, err := tg.SendMessage(context.Background(), "123", "hi", domain.SendOptions{ReplyToID: "7"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent.ID != "99" || sent.ChatID != "123" || sent.ReplyToID != "7" {
		t.Fatalf("unexpected sent record: %+v", sent)
	}
	if len(api.sent) != 1 || api.sent[0].ReplyToMessageID != 7 || api.sent[0].ChatID != 123 {
		t.Fatalf("unexpected request: %+v", api.sent)
	}
}

func TestTelegram_SendRetriesRateLimit(t *testing.T) {
	limited := &tgbotapi.Error{Code: 429, Message: "Too Many Requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 1}}
	api := &fakeTelegramAPI{errs: []error{limited, nil}}
	tg := newTestTelegram(api)

	if _, err := tg.SendMessage(context.Background(), "1", "hi", domain.SendOptions{}); err != nil {
		t.Fatalf("expected success after retry: %v", err)
	}
	if len(api.sent) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(api.sent))
	}
}

func TestTelegram_SendDoesNotRetryBadRequest(t *testing.T) {
	api := &fakeTelegramAPI{errs: []error{&tgbotapi.Error{Code: 400, Message: "chat not found"}}}
	tg := newTestTelegram(api)

	if _, err := tg.SendMessage(context.Background(), "1", "hi", domain.SendOptions{}); err == nil {
		t.Fatal("expected error")
	}
	if len(api.sent) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(api.sent))
	}
}

func TestTelegram_InvalidChatID(t *testing.T) {
	tg := newTestTelegram(&fakeTelegramAPI{})
	if _, err := tg.SendMessage(context.Background(), "abc", "hi", domain.SendOptions{}); err == nil {
		t.Fatal("expected error for non-numeric chat id")
	}
}

func TestTelegram_ResolveAttachmentURL(t *testing.T) {
	tg := newTestTelegram(&fakeTelegramAPI{fileURL: "https://files/"})
	url, err := tg.ResolveAttachmentURL(context.Background(), "abc")
	if err != nil || url != "https://files/abc" {
		t.Fatalf("unexpected url %q, %v", url, err)
	}
}

// --- Discord ---

type fakeDiscordAPI struct {
	channelID string
	data      *discordgo.MessageSend
	err       error
}

func (f *fakeDiscordAPI) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channelID, f.data = channelID, data
	if f.err != nil {
		return nil, f.err
	}
	return &discordgo.Message{ID: "m1", ChannelID: channelID, Content: data.Content}, nil
}

func TestDiscordInbound_RewritesMention(t *testing.T) {
	self := &discordgo.User{ID: "bot", Username: "nova"}
	m := &discordgo.Message{
		ID:               "1",
		ChannelID:        "c1",
		GuildID:          "g1",
		Content:          "<@bot> what's up, <@!bot>?",
		Author:           &discordgo.User{ID: "u1", Username: "alice"},
		MessageReference: &discordgo.MessageReference{MessageID: "0"},
		Attachments:      []*discordgo.MessageAttachment{{URL: "https://cdn/x.png", ContentType: "image/png"}},
	}

	msg, ok := discordInbound(m, self, "g1")
	if !ok {
		t.Fatal("expected message")
	}
	if msg.Text != "@nova what's up, @nova?" {
		t.Fatalf("unexpected text %q", msg.Text)
	}
	if msg.ChatType != domain.ChatGroup || msg.ReplyToID != "0" || msg.SenderName != "alice" {
		t.Fatalf("unexpected fields: %+v", msg)
	}
	if !msg.Attachment.IsImage() || msg.Attachment.Ref != "https://cdn/x.png" {
		t.Fatalf("unexpected attachment: %+v", msg.Attachment)
	}
}

func TestDiscordInbound_Filters(t *testing.T) {
	self := &discordgo.User{ID: "bot", Username: "nova"}

	own := &discordgo.Message{Author: self, GuildID: "g1"}
	if _, ok := discordInbound(own, self, ""); ok {
		t.Fatal("own message should be skipped")
	}

	other := &discordgo.Message{Author: &discordgo.User{ID: "u"}, GuildID: "g2"}
	if _, ok := discordInbound(other, self, "g1"); ok {
		t.Fatal("message from another guild should be skipped")
	}

	dm := &discordgo.Message{Author: &discordgo.User{ID: "u"}, Content: "hey"}
	msg, ok := discordInbound(dm, self, "g1")
	if !ok || msg.ChatType != domain.ChatDirect {
		t.Fatalf("direct message should pass as direct, got %+v ok=%v", msg, ok)
	}
}

func TestDiscord_SendMessageWithReference(t *testing.T) {
	api := &fakeDiscordAPI{}
	d := NewDiscord(DiscordConfig{Token: "t", Logger: testLogger()})
	d.api = api

	sent, err := d.SendMessage(context.Background(), "c1", "hello", domain.SendOptions{ReplyToID: "m0"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if sent.ID != "m1" || sent.ReplyToID != "m0" {
		t.Fatalf("unexpected sent record: %+v", sent)
	}
	if api.data.Reference == nil || api.data.Reference.MessageID != "m0" {
		t.Fatalf("expected message reference, got %+v", api.data)
	}
}

func TestDiscord_SendError(t *testing.T) {
	d := NewDiscord(DiscordConfig{Logger: testLogger()})
	d.api = &fakeDiscordAPI{err: errors.New("403")}
	if _, err := d.SendMessage(context.Background(), "c1", "x", domain.SendOptions{}); err == nil {
		t.Fatal("expected error")
	}
}

// --- Feed ---

func TestFeed_SendMessage(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/tweets" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"1850","text":"gm"}}`))
	}))
	defer srv.Close()

	f := NewFeed(FeedConfig{APIBase: srv.URL, BearerToken: "tok", Username: "@nova", Logger: testLogger()})
	sent, err := f.SendMessage(context.Background(), "ignored", "gm", domain.SendOptions{ReplyToID: "1700"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if auth != "Bearer tok" {
		t.Fatalf("unexpected auth %q", auth)
	}
	reply, _ := got["reply"].(map[string]any)
	if got["text"] != "gm" || reply["in_reply_to_tweet_id"] != "1700" {
		t.Fatalf("unexpected body: %v", got)
	}
	if sent.ID != "1850" || sent.URL != "https://x.com/nova/status/1850" || sent.ChatID != "nova" {
		t.Fatalf("unexpected sent record: %+v", sent)
	}
}

func TestFeed_RejectedPost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"duplicate content"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewFeed(FeedConfig{APIBase: srv.URL, Username: "nova", Logger: testLogger()})
	_, err := f.SendMessage(context.Background(), "", "gm", domain.SendOptions{})
	var se *httpx.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 StatusError, got %v", err)
	}
}

func TestFeed_RetriesServerError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"2","text":"x"}}`))
	}))
	defer srv.Close()

	fast := httpx.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}
	f := NewFeed(FeedConfig{APIBase: srv.URL, Username: "nova", Retry: &fast, Logger: testLogger()})
	if _, err := f.SendMessage(context.Background(), "", "x", domain.SendOptions{}); err != nil {
		t.Fatalf("expected success after retry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestFeed_Limits(t *testing.T) {
	f := NewFeed(FeedConfig{Username: "nova"})
	if f.MaxMessageLength() != 280 || f.Name() != "feed" || f.Username() != "nova" {
		t.Fatalf("unexpected feed identity: %d %s %s", f.MaxMessageLength(), f.Name(), f.Username())
	}
}
