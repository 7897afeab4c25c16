package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/finchat/internal/ai"
	"github.com/suPer8Hu/finchat/internal/common"
	"github.com/suPer8Hu/finchat/internal/index"
	"go.uber.org/zap"
)

var (
	ErrEmptyMessage      = errors.New("message is empty")
	ErrSessionIDRequired = errors.New("session_id is required")
	// ErrProvider wraps failures of the upstream model provider.
	ErrProvider = errors.New("ai provider failed")
)

const defaultProvider = "ollama"

type Options struct {
	ContextWindowSize int
	TopK              int
	DefaultProvider   string
	DefaultModel      string
	Logger            *zap.Logger
}

type Service struct {
	repo     *Repo
	registry *ai.Registry
	index    index.Index
	logger   *zap.Logger

	contextWindowSize int
	topK              int
	defaultProvider   string
	defaultModel      string
}

func NewService(repo *Repo, registry *ai.Registry, idx index.Index, opts Options) *Service {
	if opts.ContextWindowSize <= 0 || opts.ContextWindowSize > 100 {
		opts.ContextWindowSize = 20
	}
	if opts.TopK < 0 {
		opts.TopK = 0
	}
	if opts.DefaultProvider == "" {
		opts.DefaultProvider = defaultProvider
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		repo:              repo,
		registry:          registry,
		index:             idx,
		logger:            opts.Logger,
		contextWindowSize: opts.ContextWindowSize,
		topK:              opts.TopK,
		defaultProvider:   opts.DefaultProvider,
		defaultModel:      opts.DefaultModel,
	}
}

func (s *Service) providerForSession(ctx context.Context, sess *Session) (ai.Provider, error) {
	p := sess.Provider
	if p == "" {
		p = s.defaultProvider
	}
	return s.registry.Get(ctx, p, sess.Model)
}

// History returns the conversation oldest first. Unknown sessions have an
// empty history.
func (s *Service) History(ctx context.Context, sessionID string) ([]Message, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrSessionIDRequired
	}
	return s.repo.ListHistory(ctx, sessionID)
}

func (s *Service) SendMessage(ctx context.Context, sessionID string, content string) (reply string, assistantMsgID uint64, err error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", 0, ErrSessionIDRequired
	}
	if strings.TrimSpace(content) == "" {
		return "", 0, ErrEmptyMessage
	}

	// 1) session ids are minted by clients; the first message creates the row
	session, err := s.repo.GetOrCreateSession(ctx, sessionID, s.defaultProvider, s.defaultModel)
	if err != nil {
		return "", 0, err
	}

	provider, err := s.providerForSession(ctx, session)
	if err != nil {
		return "", 0, err
	}

	// 2) store user message (strong consistency)
	userMsg := &Message{
		SessionID: sessionID,
		Role:      ai.RoleUser,
		Content:   content,
	}
	if err := s.repo.InsertMessage(ctx, userMsg); err != nil {
		return "", 0, err
	}

	// 3) build provider messages from recent DB history
	recentDesc, err := s.repo.ListRecentMessagesDesc(ctx, sessionID, s.contextWindowSize)
	if err != nil {
		return "", 0, err
	}

	providerMsgs := make([]ai.Message, 0, len(recentDesc)+1)
	if sys := s.retrievalContext(ctx, content); sys != "" {
		providerMsgs = append(providerMsgs, ai.Message{Role: ai.RoleSystem, Content: sys})
	}
	// reverse to ASC (oldest -> newest)
	for i := len(recentDesc) - 1; i >= 0; i-- {
		m := recentDesc[i]
		providerMsgs = append(providerMsgs, ai.Message{Role: m.Role, Content: m.Content})
	}

	// 4) call provider
	reply, err = provider.Chat(ctx, providerMsgs)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	// 5) store assistant message (strong consistency)
	assistantMsg := &Message{
		SessionID: sessionID,
		Role:      ai.RoleAssistant,
		Content:   reply,
	}
	if err := s.repo.InsertMessage(ctx, assistantMsg); err != nil {
		return "", 0, err
	}

	return reply, assistantMsg.ID, nil
}

// retrievalContext renders the best matching documents as a system prompt.
// Index failures only cost the extra context.
func (s *Service) retrievalContext(ctx context.Context, query string) string {
	if s.index == nil || s.topK == 0 {
		return ""
	}
	hits, err := s.index.Search(ctx, query, s.topK)
	if err != nil {
		s.logger.Warn("index search failed", zap.Error(err))
		return ""
	}
	if len(hits) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("You are a personal finance assistant. Use these knowledge base excerpts when they are relevant:\n")
	for _, h := range hits {
		fmt.Fprintf(&b, "\n## %s\n%s\n", h.Title, h.Content)
	}
	return b.String()
}

func (s *Service) AddDocument(ctx context.Context, title, content string) (*Document, error) {
	d := &Document{Title: strings.TrimSpace(title), Content: content}
	if err := s.repo.CreateDocument(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// CreateIndexJob records a queued refresh request.
func (s *Service) CreateIndexJob(ctx context.Context) (*IndexJob, error) {
	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	j := &IndexJob{ID: id, Status: JobQueued}
	if err := s.repo.CreateIndexJob(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

// FailIndexJob marks a job that could not be handed to the worker.
func (s *Service) FailIndexJob(ctx context.Context, jobID string, reason string) error {
	return s.repo.MarkIndexJobFailed(ctx, jobID, reason)
}

func (s *Service) GetIndexJob(ctx context.Context, jobID string) (*IndexJob, error) {
	return s.repo.GetIndexJobByID(ctx, jobID)
}

// RunIndexJob rebuilds the index from every stored document and records the
// outcome on the job. Only queued jobs run; others are left as they are.
func (s *Service) RunIndexJob(ctx context.Context, jobID string) error {
	start := time.Now()

	claimed, err := s.repo.UpdateIndexJobStatusRunning(ctx, jobID)
	if err != nil {
		return err
	}
	if !claimed {
		j, err := s.repo.GetIndexJobByID(ctx, jobID)
		if err != nil {
			return err
		}
		// redelivered or already handled; the recorded outcome stands
		s.logger.Info("skipping index job", zap.String("job_id", jobID), zap.String("status", string(j.Status)))
		return nil
	}

	count, err := s.rebuildIndex(ctx)
	if err != nil {
		if markErr := s.repo.MarkIndexJobFailed(ctx, jobID, err.Error()); markErr != nil {
			s.logger.Error("mark index job failed", zap.String("job_id", jobID), zap.Error(markErr))
		}
		s.logger.Warn("index rebuild failed",
			zap.String("job_id", jobID), zap.Duration("cost", time.Since(start)), zap.Error(err))
		return err
	}

	if err := s.repo.MarkIndexJobSucceeded(ctx, jobID, count); err != nil {
		return err
	}
	s.logger.Info("index rebuilt",
		zap.String("job_id", jobID), zap.Int("documents", count), zap.Duration("cost", time.Since(start)))
	return nil
}

func (s *Service) rebuildIndex(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, errors.New("no retrieval index configured")
	}
	docs, err := s.repo.ListDocuments(ctx)
	if err != nil {
		return 0, err
	}
	idxDocs := make([]index.Document, len(docs))
	for i, d := range docs {
		idxDocs[i] = index.Document{ID: d.ID, Title: d.Title, Content: d.Content}
	}
	if err := s.index.Rebuild(ctx, idxDocs); err != nil {
		return 0, err
	}
	return len(docs), nil
}
