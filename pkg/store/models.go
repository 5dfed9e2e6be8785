package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type SessionModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null"`
}

type MessageModel struct {
	ID         string         `gorm:"primaryKey"`
	SessionID  string         `gorm:"not null;index:idx_message_order,priority:1"`
	Seq        int64          `gorm:"autoIncrement;not null;index:idx_message_order,priority:3"`
	Kind       string         `gorm:"not null"`
	Text       string         `gorm:"type:text"`
	Results    datatypes.JSON `gorm:"type:jsonb"`
	Error      *string        `gorm:"type:text"`
	Commentary string         `gorm:"type:text"`
	CreatedAt  time.Time      `gorm:"not null;index:idx_message_order,priority:2"`
}

type HistoryModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index"`
	Text      string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}
