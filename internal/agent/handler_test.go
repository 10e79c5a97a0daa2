package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"herald/internal/domain"
	"herald/internal/ids"
	"herald/internal/reply"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type memStore struct {
	mu      sync.Mutex
	records []domain.MemoryRecord
}

func (s *memStore) CreateRecord(_ context.Context, r domain.MemoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *memStore) QueryRecords(_ context.Context, roomID string, _ domain.RecordQuery) ([]domain.MemoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.MemoryRecord
	for _, r := range s.records {
		if r.RoomID == roomID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) AppendLog(context.Context, domain.LogEntry) error { return nil }
func (s *memStore) Close() error                                     { return nil }

func (s *memStore) snapshot() []domain.MemoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.MemoryRecord(nil), s.records...)
}

type fixedPolicy struct {
	decision domain.Decision
	mu       sync.Mutex
	calls    int
}

func (p *fixedPolicy) Decide(context.Context, domain.InboundMessage, *domain.ConversationState) domain.Decision {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.decision
}

type blockingPipeline struct {
	text    string
	entered chan struct{}
	release chan struct{}
	panics  bool

	mu    sync.Mutex
	calls int
	last  reply.Request
}

func (p *blockingPipeline) Generate(_ context.Context, req reply.Request) *domain.Content {
	p.mu.Lock()
	p.calls++
	p.last = req
	p.mu.Unlock()
	if p.entered != nil {
		p.entered <- struct{}{}
	}
	if p.release != nil {
		<-p.release
	}
	if p.panics {
		panic("model exploded")
	}
	if p.text == "" {
		return nil
	}
	return &domain.Content{Text: p.text, Action: "CONTINUE"}
}

func (p *blockingPipeline) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type recordingSender struct {
	mu      sync.Mutex
	chatIDs []string
	texts   []string
	replyTo []string
	err     error
}

func (s *recordingSender) Send(_ context.Context, chatID, text, replyToID string) ([]domain.SentMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.chatIDs = append(s.chatIDs, chatID)
	s.texts = append(s.texts, text)
	s.replyTo = append(s.replyTo, replyToID)
	return []domain.SentMessage{{ID: "out-1", ChatID: chatID, Text: text, SentAt: time.Now()}}, nil
}

type fakeResolver struct{ calls int }

func (r *fakeResolver) ResolveAttachmentURL(_ context.Context, ref string) (string, error) {
	r.calls++
	return "https://files.example/" + ref, nil
}

type fakeDescriber struct{ urls []string }

func (d *fakeDescriber) Describe(_ context.Context, url string) (domain.ImageDescription, error) {
	d.urls = append(d.urls, url)
	return domain.ImageDescription{Title: "cat", Description: "a cat"}, nil
}

type fixture struct {
	store    *memStore
	policy   *fixedPolicy
	pipeline *blockingPipeline
	sender   *recordingSender
}

func newFixture() *fixture {
	return &fixture{
		store:    &memStore{},
		policy:   &fixedPolicy{decision: domain.DecisionRespond},
		pipeline: &blockingPipeline{text: "hello back"},
		sender:   &recordingSender{},
	}
}

func (f *fixture) handler(mod func(*HandlerConfig)) *Handler {
	cfg := HandlerConfig{
		AgentID:    "agent-1",
		Channel:    "telegram",
		Store:      f.store,
		Policy:     f.policy,
		Pipeline:   f.pipeline,
		Dispatcher: f.sender,
		Logger:     testLogger(),
	}
	if mod != nil {
		mod(&cfg)
	}
	return NewHandler(cfg)
}

func groupMsg(id, text string) domain.InboundMessage {
	return domain.InboundMessage{
		ID:         id,
		Channel:    "telegram",
		ChatID:     "-100",
		ChatType:   domain.ChatGroup,
		SenderID:   "42",
		SenderName: "alice",
		Text:       text,
		Timestamp:  time.Unix(1_700_000_000, 0),
	}
}

func TestHandle_RespondFlow(t *testing.T) {
	f := newFixture()
	msg := groupMsg("7", "hi there")
	msg.ReplyToID = "6"

	f.handler(nil).Handle(context.Background(), msg)

	if len(f.sender.texts) != 1 || f.sender.texts[0] != "hello back" {
		t.Fatalf("sent %v", f.sender.texts)
	}
	if f.sender.chatIDs[0] != "-100" || f.sender.replyTo[0] != "7" {
		t.Fatalf("sent to %v replying to %v", f.sender.chatIDs, f.sender.replyTo)
	}
	if f.pipeline.last.Tier != domain.TierLarge || f.pipeline.last.Trigger == nil {
		t.Fatalf("unexpected request %+v", f.pipeline.last)
	}

	recs := f.store.snapshot()
	if len(recs) != 2 {
		t.Fatalf("records = %d, want inbound + reply", len(recs))
	}
	in, out := recs[0], recs[1]
	roomID := ids.Room("-100", "agent-1")
	if in.ID != ids.Message("7", "agent-1") || in.UserID != ids.User("42") || in.RoomID != roomID {
		t.Errorf("inbound ids = %+v", in)
	}
	if in.Content.InReplyTo != ids.Message("6", "agent-1") || in.Content.Source != "telegram" {
		t.Errorf("inbound content = %+v", in.Content)
	}
	if len(in.Embedding) != domain.EmbeddingDimension {
		t.Errorf("embedding length = %d", len(in.Embedding))
	}
	if out.UserID != "agent-1" || out.RoomID != roomID || out.Content.InReplyTo != in.ID {
		t.Errorf("reply record = %+v", out)
	}
	if out.Content.Text != "hello back" || out.Content.Action != "CONTINUE" {
		t.Errorf("reply content = %+v", out.Content)
	}
}

func TestHandle_NonRespondDecisionsSkipGeneration(t *testing.T) {
	for _, d := range []domain.Decision{domain.DecisionIgnore, domain.DecisionStop} {
		f := newFixture()
		f.policy.decision = d
		f.handler(nil).Handle(context.Background(), groupMsg("1", "hmm"))

		if f.pipeline.callCount() != 0 || len(f.sender.texts) != 0 {
			t.Errorf("%v: expected no generation or send", d)
		}
		if len(f.store.snapshot()) != 1 {
			t.Errorf("%v: inbound message should still be recorded", d)
		}
	}
}

func TestHandle_DropsMessagesWhileBusy(t *testing.T) {
	f := newFixture()
	f.pipeline.entered = make(chan struct{}, 1)
	f.pipeline.release = make(chan struct{})
	h := f.handler(nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Handle(context.Background(), groupMsg("1", "first"))
	}()
	<-f.pipeline.entered

	if !h.Busy() {
		t.Fatal("handler should be busy during generation")
	}
	h.Handle(context.Background(), groupMsg("2", "second"))
	h.Handle(context.Background(), groupMsg("3", "third"))

	close(f.pipeline.release)
	<-done

	if got := f.pipeline.callCount(); got != 1 {
		t.Fatalf("generation calls = %d, want 1", got)
	}
	if f.policy.calls != 1 {
		t.Fatalf("policy calls = %d, want 1", f.policy.calls)
	}
	if h.Busy() {
		t.Fatal("guard not released")
	}
	// a later message is processed normally
	f.pipeline.entered = nil
	f.pipeline.release = nil
	h.Handle(context.Background(), groupMsg("4", "fourth"))
	if got := f.pipeline.callCount(); got != 2 {
		t.Fatalf("generation calls = %d, want 2", got)
	}
}

func TestHandle_PanicReleasesGuard(t *testing.T) {
	f := newFixture()
	f.pipeline.panics = true
	h := f.handler(nil)

	h.Handle(context.Background(), groupMsg("1", "boom"))
	if h.Busy() {
		t.Fatal("guard not released after panic")
	}

	f.pipeline.panics = false
	h.Handle(context.Background(), groupMsg("2", "again"))
	if len(f.sender.texts) != 1 {
		t.Fatalf("sent %v after recovery", f.sender.texts)
	}
}

func TestHandle_Filters(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*HandlerConfig)
		msg  func() domain.InboundMessage
	}{
		{"no sender", nil, func() domain.InboundMessage {
			m := groupMsg("1", "hi")
			m.SenderID = ""
			return m
		}},
		{"bot sender", func(c *HandlerConfig) { c.IgnoreBotMessages = true }, func() domain.InboundMessage {
			m := groupMsg("1", "hi")
			m.SenderIsBot = true
			return m
		}},
		{"direct message", func(c *HandlerConfig) { c.IgnoreDirectMessages = true }, func() domain.InboundMessage {
			m := groupMsg("1", "hi")
			m.ChatType = domain.ChatDirect
			return m
		}},
		{"no text", nil, func() domain.InboundMessage {
			m := groupMsg("1", "")
			m.Attachment = &domain.Attachment{Ref: "f1", Kind: "photo"}
			return m
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.handler(tt.mod).Handle(context.Background(), tt.msg())
			if len(f.store.snapshot()) != 0 || f.policy.calls != 0 {
				t.Fatal("message should be skipped before any processing")
			}
		})
	}
}

func TestHandle_DescribesImagesWithoutMerging(t *testing.T) {
	f := newFixture()
	res, desc := &fakeResolver{}, &fakeDescriber{}
	h := f.handler(func(c *HandlerConfig) {
		c.Resolver = res
		c.Describer = desc
	})

	msg := groupMsg("1", "")
	msg.Caption = "look at this"
	msg.Attachment = &domain.Attachment{Ref: "file-9", Kind: "photo"}
	h.Handle(context.Background(), msg)

	if len(desc.urls) != 1 || desc.urls[0] != "https://files.example/file-9" {
		t.Fatalf("describer urls = %v", desc.urls)
	}
	recs := f.store.snapshot()
	if recs[0].Content.Text != "look at this" {
		t.Fatalf("description leaked into content: %q", recs[0].Content.Text)
	}
}

func TestHandle_SendFailureRecordsNoReply(t *testing.T) {
	f := newFixture()
	f.sender.err = errors.New("forbidden")
	f.handler(nil).Handle(context.Background(), groupMsg("1", "hi"))

	if n := len(f.store.snapshot()); n != 1 {
		t.Fatalf("records = %d, want only the inbound one", n)
	}
}

func TestHandle_NilGenerationSendsNothing(t *testing.T) {
	f := newFixture()
	f.pipeline.text = ""
	f.handler(nil).Handle(context.Background(), groupMsg("1", "hi"))
	if len(f.sender.texts) != 0 {
		t.Fatal("nothing should be sent")
	}
}
