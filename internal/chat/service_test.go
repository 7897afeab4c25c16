package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/finchat/internal/ai"
	"github.com/suPer8Hu/finchat/internal/index"
	"gorm.io/gorm"
)

type recordingProvider struct {
	last  []ai.Message
	reply string
	err   error
}

func (p *recordingProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	_ = ctx
	// copy to avoid mutations
	p.last = append([]ai.Message(nil), messages...)
	if p.err != nil {
		return "", p.err
	}
	if p.reply == "" {
		return "ok", nil
	}
	return p.reply, nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// a private in-memory database per test
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, prov ai.Provider, idx index.Index, opts Options) (*Service, *Repo, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	repo := NewRepo(db)

	reg := ai.NewRegistry()
	reg.Register("fake", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		_ = model
		return prov, nil
	})
	opts.DefaultProvider = "fake"
	return NewService(repo, reg, idx, opts), repo, db
}

func TestSendMessage_WritesUserAndAssistant(t *testing.T) {
	prov := &recordingProvider{}
	svc, _, db := newTestService(t, prov, nil, Options{ContextWindowSize: 20})

	reply, assistantID, err := svc.SendMessage(context.Background(), "client-session-1", "Hello")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if reply != "ok" {
		t.Fatalf("unexpected reply: %q", reply)
	}
	if assistantID == 0 {
		t.Fatalf("expected assistant message id to be set")
	}

	var sessions int64
	if err := db.Model(&Session{}).Where("session_id = ?", "client-session-1").Count(&sessions).Error; err != nil {
		t.Fatalf("count sessions: %v", err)
	}
	if sessions != 1 {
		t.Fatalf("expected session to be created lazily, got %d rows", sessions)
	}

	var msgs []Message
	if err := db.Where("session_id = ?", "client-session-1").
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		t.Fatalf("query messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "Hello" {
		t.Fatalf("unexpected user msg: role=%q content=%q", msgs[0].Role, msgs[0].Content)
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "ok" {
		t.Fatalf("unexpected assistant msg: role=%q content=%q", msgs[1].Role, msgs[1].Content)
	}
}

func TestSendMessage_UsesContextWindow(t *testing.T) {
	prov := &recordingProvider{}
	window := 3
	svc, repo, _ := newTestService(t, prov, nil, Options{ContextWindowSize: window})

	sid := "client-session-2"
	if _, err := repo.GetOrCreateSession(context.Background(), sid, "fake", ""); err != nil {
		t.Fatalf("create session: %v", err)
	}

	// seed messages: 5 messages already in history
	for i := 0; i < 5; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		if err := repo.InsertMessage(context.Background(), &Message{
			SessionID: sid,
			Role:      role,
			Content:   "seed",
		}); err != nil {
			t.Fatalf("seed msg %d: %v", i, err)
		}
	}

	// sending a new message: history grows, but provider should get only `window` most recent msgs
	if _, _, err := svc.SendMessage(context.Background(), sid, "new"); err != nil {
		t.Fatalf("send message: %v", err)
	}

	if len(prov.last) != window {
		t.Fatalf("expected provider to receive %d messages, got %d", window, len(prov.last))
	}
	// The newest message in provider input should be the user message we just sent.
	if prov.last[len(prov.last)-1].Role != "user" || prov.last[len(prov.last)-1].Content != "new" {
		t.Fatalf("expected last provider msg to be new user msg, got role=%q content=%q",
			prov.last[len(prov.last)-1].Role, prov.last[len(prov.last)-1].Content)
	}
}

func TestSendMessage_PrependsRetrievedDocuments(t *testing.T) {
	prov := &recordingProvider{}
	idx := index.NewMemory()
	svc, _, _ := newTestService(t, prov, idx, Options{TopK: 1})
	ctx := context.Background()

	if _, err := svc.AddDocument(ctx, "Overdraft", "Overdraft fees are waived under 50 dollars."); err != nil {
		t.Fatalf("add doc: %v", err)
	}
	if _, err := svc.AddDocument(ctx, "Cards", "Virtual cards can be frozen from settings."); err != nil {
		t.Fatalf("add doc: %v", err)
	}
	job, err := svc.CreateIndexJob(ctx)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := svc.RunIndexJob(ctx, job.ID); err != nil {
		t.Fatalf("run job: %v", err)
	}

	if _, _, err := svc.SendMessage(ctx, "s", "are overdraft fees charged?"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(prov.last) != 2 || prov.last[0].Role != ai.RoleSystem {
		t.Fatalf("expected system context + user message, got %+v", prov.last)
	}
	if !strings.Contains(prov.last[0].Content, "Overdraft fees are waived") ||
		strings.Contains(prov.last[0].Content, "Virtual cards") {
		t.Fatalf("unexpected retrieval context: %q", prov.last[0].Content)
	}
}

func TestSendMessage_ProviderFailure(t *testing.T) {
	prov := &recordingProvider{err: errors.New("model offline")}
	svc, repo, _ := newTestService(t, prov, nil, Options{})

	_, _, err := svc.SendMessage(context.Background(), "s", "hi")
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("expected ErrProvider, got %v", err)
	}

	history, err := repo.ListHistory(context.Background(), "s")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Role != "user" {
		t.Fatalf("expected only the user message to be stored, got %+v", history)
	}
}

func TestSendMessage_Validation(t *testing.T) {
	svc, _, _ := newTestService(t, &recordingProvider{}, nil, Options{})

	if _, _, err := svc.SendMessage(context.Background(), "", "hi"); !errors.Is(err, ErrSessionIDRequired) {
		t.Fatalf("expected ErrSessionIDRequired, got %v", err)
	}
	if _, _, err := svc.SendMessage(context.Background(), "s", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestHistory_OldestFirstAndUnknownEmpty(t *testing.T) {
	prov := &recordingProvider{reply: "pong"}
	svc, _, _ := newTestService(t, prov, nil, Options{})
	ctx := context.Background()

	for _, text := range []string{"one", "two"} {
		if _, _, err := svc.SendMessage(ctx, "s", text); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	history, err := svc.History(ctx, "s")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	want := []string{"one", "pong", "two", "pong"}
	if len(history) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(history))
	}
	for i, m := range history {
		if m.Content != want[i] {
			t.Fatalf("message %d: got %q want %q", i, m.Content, want[i])
		}
	}

	empty, err := svc.History(ctx, "never-used")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty history, got %d", len(empty))
	}
}

type failingIndex struct{}

func (failingIndex) Rebuild(context.Context, []index.Document) error {
	return errors.New("redis down")
}

func (failingIndex) Search(context.Context, string, int) ([]index.Hit, error) {
	return nil, errors.New("redis down")
}

func TestRunIndexJob_RecordsOutcome(t *testing.T) {
	ctx := context.Background()

	svc, _, _ := newTestService(t, &recordingProvider{}, index.NewMemory(), Options{})
	if _, err := svc.AddDocument(ctx, "Budget", "Budgets reset monthly."); err != nil {
		t.Fatalf("add doc: %v", err)
	}
	job, err := svc.CreateIndexJob(ctx)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if job.Status != JobQueued || len(job.ID) != 26 {
		t.Fatalf("unexpected new job %+v", job)
	}
	if err := svc.RunIndexJob(ctx, job.ID); err != nil {
		t.Fatalf("run job: %v", err)
	}
	got, err := svc.GetIndexJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != JobSucceeded || got.DocumentCount == nil || *got.DocumentCount != 1 {
		t.Fatalf("unexpected job after success %+v", got)
	}

	failing, _, _ := newTestService(t, &recordingProvider{}, failingIndex{}, Options{})
	job, err = failing.CreateIndexJob(ctx)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := failing.RunIndexJob(ctx, job.ID); err == nil {
		t.Fatal("expected rebuild error")
	}
	got, err = failing.GetIndexJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != JobFailed || got.Error == nil || *got.Error != "redis down" {
		t.Fatalf("unexpected job after failure %+v", got)
	}

	if err := svc.RunIndexJob(ctx, "01UNKNOWNJOB0000000000000"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected not found for unknown job, got %v", err)
	}
}

func TestRunIndexJob_RedeliveryKeepsOutcome(t *testing.T) {
	ctx := context.Background()
	idx := index.NewMemory()

	svc, _, _ := newTestService(t, &recordingProvider{}, idx, Options{})
	if _, err := svc.AddDocument(ctx, "Budget", "Budgets reset monthly."); err != nil {
		t.Fatalf("add doc: %v", err)
	}
	job, err := svc.CreateIndexJob(ctx)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := svc.RunIndexJob(ctx, job.ID); err != nil {
		t.Fatalf("run job: %v", err)
	}

	// a second delivery of the same job must not rebuild or rewrite it
	if _, err := svc.AddDocument(ctx, "Savings", "Savings earn interest."); err != nil {
		t.Fatalf("add doc: %v", err)
	}
	if err := svc.RunIndexJob(ctx, job.ID); err != nil {
		t.Fatalf("rerun job: %v", err)
	}
	got, err := svc.GetIndexJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != JobSucceeded || got.DocumentCount == nil || *got.DocumentCount != 1 {
		t.Fatalf("redelivery changed the job: %+v", got)
	}
	if idx.Size() != 1 {
		t.Fatalf("redelivery rebuilt the index: size %d", idx.Size())
	}
}

func TestSendMessage_IndexFailureIsNotFatal(t *testing.T) {
	prov := &recordingProvider{}
	svc, _, _ := newTestService(t, prov, failingIndex{}, Options{TopK: 3})

	if _, _, err := svc.SendMessage(context.Background(), "s", "hello there"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(prov.last) != 1 || prov.last[0].Role != ai.RoleUser {
		t.Fatalf("expected only the user message, got %+v", prov.last)
	}
}
