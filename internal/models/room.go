package models

import (
	"time"

	"gorm.io/gorm"
)

// Room 表示一個會議房間
type Room struct {
	gorm.Model
	Slug            string     `gorm:"uniqueIndex;not null" json:"slug"` // 對外連結用的短代碼
	Title           string     `json:"title"`
	Status          RoomStatus `gorm:"type:varchar(20);not null" json:"status"`
	CreatorID       *uint      `json:"creator_id"`        // 建立者，臨時房間可為空
	CalendarEventID *uint      `json:"calendar_event_id"` // 關聯的行事曆事件，可為空
	StartedAt       *time.Time `json:"started_at"`        // 第一位成員成功加入的時間
	EndedAt         *time.Time `json:"ended_at"`
}

// RoomStatus 定義房間狀態的類型
type RoomStatus string

const (
	RoomStatusScheduled RoomStatus = "scheduled"
	RoomStatusActive    RoomStatus = "active"
	RoomStatusEnded     RoomStatus = "ended"
)

// CanTransition 檢查房間狀態是否允許推進到 next
// 房間狀態只能單向前進：scheduled → active → ended，不會倒退
func (s RoomStatus) CanTransition(next RoomStatus) bool {
	switch s {
	case RoomStatusScheduled:
		return next == RoomStatusActive || next == RoomStatusEnded
	case RoomStatusActive:
		return next == RoomStatusEnded
	default:
		return false
	}
}
