package repository

import (
	"meeting_web/internal/models"
	"meeting_web/internal/storage"
)

type TranscriptRepository interface {
	Create(event *models.TranscriptEvent) error
	// FindFinalByRoom 查詢房間內最近 limit 筆定稿逐字稿，依寫入時間由舊到新排序
	FindFinalByRoom(roomID uint, limit int) ([]models.TranscriptEvent, error)
}

type transcriptRepository struct {
	db *storage.PostgresDB
}

func NewTranscriptRepository(db *storage.PostgresDB) TranscriptRepository {
	return &transcriptRepository{db: db}
}

func (r *transcriptRepository) Create(event *models.TranscriptEvent) error {
	return r.db.Create(event).Error
}

func (r *transcriptRepository) FindFinalByRoom(roomID uint, limit int) ([]models.TranscriptEvent, error) {
	var events []models.TranscriptEvent
	// 先以新到舊取出最近 limit 筆，再反轉回由舊到新
	err := r.db.Where("room_id = ? AND is_final = ?", roomID, true).
		Order("created_at desc").Limit(limit).Find(&events).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events, nil
}
