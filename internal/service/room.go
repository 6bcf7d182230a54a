package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"meeting_web/internal/models"
	"meeting_web/internal/repository"
)

// RoomService 負責房間本身的建立與查詢
// 房間的狀態推進（active、ended）由 AdmissionService 與 IdleReaper 處理
type RoomService struct {
	roomRepo repository.RoomRepository
}

func NewRoomService(roomRepo repository.RoomRepository) *RoomService {
	return &RoomService{roomRepo: roomRepo}
}

// CreateRoom 建立一個新的排程中房間
// creatorID 為空表示臨時房間；calendarEventID 可關聯到行事曆事件
func (s *RoomService) CreateRoom(title string, creatorID, calendarEventID *uint) (*models.Room, error) {
	room := &models.Room{
		Slug:            newSlug(),
		Title:           title,
		Status:          models.RoomStatusScheduled,
		CreatorID:       creatorID,
		CalendarEventID: calendarEventID,
	}
	if err := s.roomRepo.Create(room); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}
	return room, nil
}

// GetRoom 依 ID 查詢房間
func (s *RoomService) GetRoom(roomID uint) (*models.Room, error) {
	room, err := s.roomRepo.FindByID(roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}
	return room, nil
}

// ResolveRoom 依路徑參數查詢房間，參數可以是數字 ID 或對外連結的短代碼
func (s *RoomService) ResolveRoom(ref string) (*models.Room, error) {
	if id, err := strconv.ParseUint(ref, 10, 32); err == nil {
		return s.GetRoom(uint(id))
	}

	room, err := s.roomRepo.FindBySlug(ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}
	return room, nil
}

// ListRooms 查詢所有房間
func (s *RoomService) ListRooms() ([]models.Room, error) {
	rooms, err := s.roomRepo.FindAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}
	return rooms, nil
}

// newSlug 產生對外連結用的短代碼
func newSlug() string {
	return strings.Split(uuid.NewString(), "-")[0]
}
