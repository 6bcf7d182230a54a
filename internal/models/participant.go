package models

import (
	"time"

	"gorm.io/gorm"
)

// Participant 表示某位來電者在房間中的成員記錄
// 一個 Participant 可以多次斷線重連，不會因此產生新的記錄
type Participant struct {
	gorm.Model
	RoomID      uint              `gorm:"index;not null" json:"room_id"`
	UserID      *uint             `json:"user_id"` // 為空表示訪客
	DisplayName string            `json:"display_name"`
	Status      ParticipantStatus `gorm:"type:varchar(20);not null" json:"status"`
	IsActive    bool              `json:"is_active"` // 目前是否在線
	JoinedAt    time.Time         `json:"joined_at"`
	LeftAt      *time.Time        `json:"left_at"`
}

// ParticipantStatus 定義成員狀態的類型
type ParticipantStatus string

const (
	ParticipantStatusWaiting ParticipantStatus = "waiting" // 在等候室等待主持人批准
	ParticipantStatusActive  ParticipantStatus = "active"  // 已進入房間
	ParticipantStatusDenied  ParticipantStatus = "denied"  // 已被拒絕，終止狀態
)

// IsGuest 判斷成員是否為訪客（沒有綁定使用者身分）
func (p *Participant) IsGuest() bool {
	return p.UserID == nil
}
