package chat

import (
	"context"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Migrate creates or updates every table the backend owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Session{}, &Message{}, &Document{}, &IndexJob{})
}

func (r *Repo) GetSessionBySessionID(ctx context.Context, sessionID string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetOrCreateSession returns the session for sessionID, creating it with
// the given provider and model when it does not exist yet.
func (r *Repo) GetOrCreateSession(ctx context.Context, sessionID, provider, model string) (*Session, error) {
	s := Session{SessionID: sessionID}
	if err := r.db.WithContext(ctx).
		Where(Session{SessionID: sessionID}).
		Attrs(Session{Provider: provider, Model: model}).
		FirstOrCreate(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListHistory returns the whole conversation in ASC id order (oldest -> newest).
func (r *Repo) ListHistory(ctx context.Context, sessionID string) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListRecentMessagesDesc returns the most recent messages in DESC id order (newest -> oldest).
func (r *Repo) ListRecentMessagesDesc(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		Limit(limit).
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// Documents
func (r *Repo) CreateDocument(ctx context.Context, d *Document) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *Repo) ListDocuments(ctx context.Context) ([]Document, error) {
	var docs []Document
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

// Index job CRUD
func (r *Repo) CreateIndexJob(ctx context.Context, job *IndexJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) GetIndexJobByID(ctx context.Context, id string) (*IndexJob, error) {
	var j IndexJob
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// UpdateIndexJobStatusRunning claims a queued job. It reports false when the
// job is missing or already past queued.
func (r *Repo) UpdateIndexJobStatusRunning(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&IndexJob{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) MarkIndexJobSucceeded(ctx context.Context, id string, docCount int) error {
	return r.db.WithContext(ctx).Model(&IndexJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":         JobSucceeded,
			"document_count": docCount,
			"error":          nil,
		}).Error
}

func (r *Repo) MarkIndexJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&IndexJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":         JobFailed,
			"error":          errMsg,
			"document_count": nil,
		}).Error
}
