package models

import "time"

// ChatMessage is one turn in a plant-specific conversation. Seq fixes the
// insertion order within a plant's log.
type ChatMessage struct {
	ID        string    `json:"id" gorm:"type:char(36);primaryKey"`
	PlantID   string    `json:"plantId" gorm:"type:char(36);not null;uniqueIndex:idx_chat_plant_seq,priority:1"`
	Seq       int64     `json:"seq" gorm:"not null;uniqueIndex:idx_chat_plant_seq,priority:2"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	FromUser  bool      `json:"isUser" gorm:"not null"`
	CreatedAt time.Time `json:"timestamp" gorm:"not null"`
}

func (ChatMessage) TableName() string { return "chat_messages" }
