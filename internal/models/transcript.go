package models

import (
	"time"

	"gorm.io/gorm"
)

// TranscriptEvent 表示一段已定稿的逐字稿
// 只有定稿（is_final = true）的片段會寫入資料庫，
// 未定稿的片段屬於即時字幕，由 TranscriptService 在記憶體中維護
type TranscriptEvent struct {
	gorm.Model
	RoomID        uint      `gorm:"index;not null" json:"room_id"`
	ParticipantID uint      `json:"participant_id"`
	SpeakerName   string    `json:"speaker_name"`
	Text          string    `gorm:"type:text" json:"text"`
	IsFinal       bool      `json:"is_final"`
	SpokenAt      time.Time `json:"spoken_at"`
}
