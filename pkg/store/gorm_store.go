package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"scripturechat/pkg/domain"
)

const migrateLockID int64 = 51728391

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&SessionModel{}, &MessageModel{}, &HistoryModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateSession records a new session.
func (s *GormStore) CreateSession(ctx context.Context, session domain.Session) error {
	model := SessionModel{ID: session.ID, UserID: session.UserID, CreatedAt: session.CreatedAt}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// GetSession returns one session by ID.
func (s *GormStore) GetSession(ctx context.Context, id string) (domain.Session, bool, error) {
	var model SessionModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Session{}, false, nil
		}
		return domain.Session{}, false, err
	}
	return domain.Session{ID: model.ID, UserID: model.UserID, CreatedAt: model.CreatedAt}, true, nil
}

// AppendMessage records a transcript entry. The database assigns Seq.
func (s *GormStore) AppendMessage(ctx context.Context, msg domain.ChatMessage) (domain.ChatMessage, error) {
	if strings.TrimSpace(msg.SessionID) == "" {
		return domain.ChatMessage{}, ErrMissingSession
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	model, err := messageToModel(msg)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ChatMessage{}, fmt.Errorf("%w: %s", ErrDuplicateMessage, msg.ID)
		}
		return domain.ChatMessage{}, err
	}
	msg.Seq = model.Seq
	return msg, nil
}

// ListMessages returns the whole transcript of a session in order.
func (s *GormStore) ListMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	var models []MessageModel
	if err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Order("seq ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	msgs := make([]domain.ChatMessage, 0, len(models))
	for _, model := range models {
		msgs = append(msgs, messageFromModel(model))
	}
	return msgs, nil
}

// AppendHistory records a submitted query.
func (s *GormStore) AppendHistory(ctx context.Context, entry domain.HistoryEntry) error {
	model := HistoryModel{ID: entry.ID, UserID: entry.UserID, Text: entry.Text, CreatedAt: entry.CreatedAt}
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// ListHistory returns the latest queries of a user, newest first.
func (s *GormStore) ListHistory(ctx context.Context, userID string, limit int) ([]domain.HistoryEntry, error) {
	var models []HistoryModel
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(historyLimit(limit)).
		Find(&models).Error; err != nil {
		return nil, err
	}
	items := make([]domain.HistoryEntry, 0, len(models))
	for _, m := range models {
		items = append(items, domain.HistoryEntry{ID: m.ID, UserID: m.UserID, Text: m.Text, CreatedAt: m.CreatedAt})
	}
	return items, nil
}

// DeleteHistory removes one entry owned by userID.
func (s *GormStore) DeleteHistory(ctx context.Context, userID, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&HistoryModel{}, "id = ? AND user_id = ?", id, userID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func messageToModel(msg domain.ChatMessage) (MessageModel, error) {
	var rawResults []byte
	if msg.IsBot() {
		results := msg.Results
		if results == nil {
			results = []domain.ScriptureResult{}
		}
		var err error
		if rawResults, err = json.Marshal(results); err != nil {
			return MessageModel{}, fmt.Errorf("encode results: %w", err)
		}
	}
	return MessageModel{
		ID:         msg.ID,
		SessionID:  msg.SessionID,
		Kind:       string(msg.Kind),
		Text:       msg.Text,
		Results:    rawResults,
		Error:      msg.Error,
		Commentary: msg.Commentary,
		CreatedAt:  msg.CreatedAt,
	}, nil
}

func messageFromModel(m MessageModel) domain.ChatMessage {
	msg := domain.ChatMessage{
		ID:         m.ID,
		SessionID:  m.SessionID,
		Kind:       domain.MessageKind(m.Kind),
		Text:       m.Text,
		Error:      m.Error,
		Commentary: m.Commentary,
		Seq:        m.Seq,
		CreatedAt:  m.CreatedAt,
	}
	if msg.IsBot() {
		msg.Results = []domain.ScriptureResult{}
		if len(m.Results) > 0 {
			if err := json.Unmarshal(m.Results, &msg.Results); err != nil {
				slog.Warn("stored scripture results unreadable", "message_id", m.ID, "session_id", m.SessionID, "err", err)
				msg.Results = []domain.ScriptureResult{}
			}
		}
	}
	return msg
}
