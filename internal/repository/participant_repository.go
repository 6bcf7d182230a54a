package repository

import (
	"time"

	"meeting_web/internal/models"
	"meeting_web/internal/storage"
)

type ParticipantRepository interface {
	Create(participant *models.Participant) error
	FindByID(id uint) (*models.Participant, error)
	Update(participant *models.Participant) error
	// FindActiveByRoom 查詢房間內所有在線成員，依加入時間排序
	FindActiveByRoom(roomID uint) ([]models.Participant, error)
	// DeactivateByRoomAndUser 將同一使用者在房間內的在線記錄全部下線
	// 用於維持「同一身分同時只有一筆在線記錄」的約束
	DeactivateByRoomAndUser(roomID, userID uint) error
	// CountActiveByRoomAndUser 計算某使用者在房間內的在線記錄數
	CountActiveByRoomAndUser(roomID, userID uint) (int64, error)
}

type participantRepository struct {
	db *storage.PostgresDB
}

func NewParticipantRepository(db *storage.PostgresDB) ParticipantRepository {
	return &participantRepository{db: db}
}

func (r *participantRepository) Create(participant *models.Participant) error {
	return r.db.Create(participant).Error
}

func (r *participantRepository) FindByID(id uint) (*models.Participant, error) {
	var participant models.Participant
	err := r.db.First(&participant, id).Error
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *participantRepository) Update(participant *models.Participant) error {
	return r.db.Save(participant).Error
}

func (r *participantRepository) FindActiveByRoom(roomID uint) ([]models.Participant, error) {
	var participants []models.Participant
	err := r.db.Where("room_id = ? AND is_active = ?", roomID, true).
		Order("joined_at asc").Find(&participants).Error
	return participants, err
}

func (r *participantRepository) DeactivateByRoomAndUser(roomID, userID uint) error {
	return r.db.Model(&models.Participant{}).
		Where("room_id = ? AND user_id = ? AND is_active = ?", roomID, userID, true).
		Updates(map[string]interface{}{"is_active": false, "left_at": time.Now()}).Error
}

func (r *participantRepository) CountActiveByRoomAndUser(roomID, userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Participant{}).
		Where("room_id = ? AND user_id = ? AND is_active = ?", roomID, userID, true).
		Count(&count).Error
	return count, err
}
