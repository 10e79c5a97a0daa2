package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"herald/internal/domain"
	"herald/internal/httpx"
)

const (
	feedMaxPostLen     = 280
	feedDefaultAPIBase = "https://api.x.com"
	feedPublicBase     = "https://x.com"
)

// Feed publishes short posts to an X-compatible v2 API.
type Feed struct {
	apiBase  string
	token    string
	username string
	client   *http.Client
	retry    httpx.RetryPolicy
	logger   *slog.Logger

	sendMu sync.Mutex
	now    func() time.Time
}

type FeedConfig struct {
	APIBase     string
	BearerToken string
	Username    string
	Client      *http.Client
	// Retry overrides httpx.DefaultRetry.
	Retry  *httpx.RetryPolicy
	Logger *slog.Logger
}

func NewFeed(cfg FeedConfig) *Feed {
	if cfg.APIBase == "" {
		cfg.APIBase = feedDefaultAPIBase
	}
	if cfg.Client == nil {
		cfg.Client = httpx.NewClient(30 * time.Second)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	retry := httpx.DefaultRetry
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	return &Feed{
		apiBase:  strings.TrimRight(cfg.APIBase, "/"),
		token:    cfg.BearerToken,
		username: strings.TrimPrefix(cfg.Username, "@"),
		client:   cfg.Client,
		retry:    retry,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

func (f *Feed) Name() string { return "feed" }

func (f *Feed) MaxMessageLength() int { return feedMaxPostLen }

// Username is the posting account without a leading "@".
func (f *Feed) Username() string { return f.username }

type feedPostRequest struct {
	Text  string         `json:"text"`
	Reply *feedPostReply `json:"reply,omitempty"`
}

type feedPostReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type feedPostResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// SendMessage publishes text. chatID is ignored; posts always go to the
// configured account's timeline.
func (f *Feed) SendMessage(ctx context.Context, chatID, text string, opts domain.SendOptions) (domain.SentMessage, error) {
	body := feedPostRequest{Text: text}
	if opts.ReplyToID != "" {
		body.Reply = &feedPostReply{InReplyToTweetID: opts.ReplyToID}
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return domain.SentMessage{}, fmt.Errorf("marshal: %w", err)
	}

	f.sendMu.Lock()
	defer f.sendMu.Unlock()

	resp, err := httpx.Do(ctx, f.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.apiBase+"/2/tweets", bytes.NewReader(jsonBody))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+f.token)
		return req, nil
	}, f.retry, f.logger)
	if err != nil {
		return domain.SentMessage{}, fmt.Errorf("feed post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.SentMessage{}, fmt.Errorf("feed post: %w", &httpx.StatusError{StatusCode: resp.StatusCode, Body: string(respBody)})
	}

	var out feedPostResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.SentMessage{}, fmt.Errorf("feed post: decode: %w", err)
	}
	if out.Data.ID == "" {
		return domain.SentMessage{}, fmt.Errorf("feed post: response has no id")
	}

	f.logger.Info("feed post published", "id", out.Data.ID, "len", len([]rune(text)))
	return domain.SentMessage{
		ID:        out.Data.ID,
		ChatID:    f.username,
		Text:      text,
		URL:       f.PostURL(out.Data.ID),
		ReplyToID: opts.ReplyToID,
		SentAt:    f.now(),
	}, nil
}

// PostURL is the permanent public link for a post id.
func (f *Feed) PostURL(id string) string {
	return fmt.Sprintf("%s/%s/status/%s", feedPublicBase, f.username, id)
}
