package service

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"meeting_web/internal/bus"
	"meeting_web/internal/models"
	"meeting_web/internal/repository"
)

// 批准政策：誰可以批准或拒絕等候室中的成員
const (
	AdmitPolicyAnyMember = "any_member" // 任何已登入成員皆可（預設，刻意的低門檻設計）
	AdmitPolicyHostOnly  = "host_only"  // 僅限房間建立者
)

// AdmissionService 負責成員的入場狀態機與房間狀態推進
// 狀態機：waiting → active（批准）、waiting → denied（拒絕）、
// active → active（重連）；任何狀態都可下線（is_active = false），記錄永不刪除
type AdmissionService struct {
	roomRepo        repository.RoomRepository
	participantRepo repository.ParticipantRepository
	sessions        *SessionManager
	eventBus        *bus.Bus
	admitPolicy     string
}

func NewAdmissionService(roomRepo repository.RoomRepository, participantRepo repository.ParticipantRepository,
	sessions *SessionManager, eventBus *bus.Bus, admitPolicy string) *AdmissionService {
	if admitPolicy == "" {
		admitPolicy = AdmitPolicyAnyMember
	}
	return &AdmissionService{
		roomRepo:        roomRepo,
		participantRepo: participantRepo,
		sessions:        sessions,
		eventBus:        eventBus,
		admitPolicy:     admitPolicy,
	}
}

// RequestJoin 處理加入房間的請求
//
// 有可用的會話標記時直接喚醒原本的成員記錄（保留原狀態，不重新排隊）；
// 否則建立新記錄：訪客進等候室，已登入的來電者直接入場。
// 已登入身分在同一房間內同時只會有一筆在線記錄。
// 副作用：排程中的房間在第一次成功加入時推進為 active。
func (s *AdmissionService) RequestJoin(room *models.Room, userID *uint, displayName, sessionKey string) (*models.Participant, error) {
	if room.Status == models.RoomStatusEnded {
		return nil, ErrRoomEnded
	}

	// 嘗試接回既有的成員記錄
	if participantID, ok := s.sessions.Resolve(sessionKey, room.ID); ok {
		participant, err := s.participantRepo.FindByID(participantID)
		if err == nil && participant.RoomID == room.ID {
			return s.reactivate(room, participant)
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
		}
		// 標記指向的記錄不存在，當作全新加入
		s.sessions.Clear(sessionKey, room.ID)
	}

	// 已登入身分：先把先前的在線記錄下線，維持唯一在線的約束
	status := models.ParticipantStatusWaiting
	if userID != nil {
		if err := s.participantRepo.DeactivateByRoomAndUser(room.ID, *userID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
		}
		if err := s.assertNoActiveRow(room.ID, *userID); err != nil {
			return nil, err
		}
		// 已登入的來電者不需要等候室
		status = models.ParticipantStatusActive
	}

	participant := &models.Participant{
		RoomID:      room.ID,
		UserID:      userID,
		DisplayName: displayName,
		Status:      status,
		IsActive:    true,
		JoinedAt:    time.Now(),
	}
	if err := s.participantRepo.Create(participant); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}
	s.sessions.Persist(sessionKey, room.ID, participant.ID)

	if err := s.activateRoom(room); err != nil {
		return nil, err
	}

	s.eventBus.PublishRoomChange(room.ID, bus.KindParticipant)
	return participant, nil
}

// reactivate 喚醒既有的成員記錄（重新整理或斷線重連）
// 狀態保持原樣：waiting 回到等候室、active 直接回到房間，
// denied 是終止狀態，維持下線並原樣回傳，由呼叫端轉為拒絕結果
func (s *AdmissionService) reactivate(room *models.Room, participant *models.Participant) (*models.Participant, error) {
	if participant.Status == models.ParticipantStatusDenied {
		return participant, nil
	}

	// 已登入身分重連時，同樣先把其他在線記錄下線再喚醒這一筆
	if participant.UserID != nil {
		if err := s.participantRepo.DeactivateByRoomAndUser(room.ID, *participant.UserID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
		}
	}

	participant.IsActive = true
	participant.LeftAt = nil
	if err := s.participantRepo.Update(participant); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}

	if err := s.activateRoom(room); err != nil {
		return nil, err
	}

	s.eventBus.PublishRoomChange(room.ID, bus.KindParticipant)
	return participant, nil
}

// assertNoActiveRow 確認某個身分在房間內已經沒有在線記錄
// 房間操作有正確序列化的話這裡永遠不會失敗，
// 一旦失敗代表程式有錯，不是可重試的狀況
func (s *AdmissionService) assertNoActiveRow(roomID, userID uint) error {
	count, err := s.participantRepo.CountActiveByRoomAndUser(roomID, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}
	if count > 0 {
		return fmt.Errorf("%w: room=%d user=%d", ErrDuplicateActiveParticipant, roomID, userID)
	}
	return nil
}

// activateRoom 在第一次成功加入時把排程中的房間推進為 active
func (s *AdmissionService) activateRoom(room *models.Room) error {
	if room.Status != models.RoomStatusScheduled {
		return nil
	}

	now := time.Now()
	room.Status = models.RoomStatusActive
	room.StartedAt = &now
	if err := s.roomRepo.Update(room); err != nil {
		return fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}
	s.eventBus.PublishRoomChange(room.ID, bus.KindRoom)
	return nil
}

// Admit 批准等候室中的成員進入房間
func (s *AdmissionService) Admit(actorUserID uint, participantID uint) error {
	participant, err := s.findParticipant(participantID)
	if err != nil {
		return err
	}
	if err := s.checkAdmitPermission(actorUserID, participant.RoomID); err != nil {
		return err
	}

	switch participant.Status {
	case models.ParticipantStatusDenied:
		// 拒絕是終止狀態，不能再批准
		return ErrParticipantDenied
	case models.ParticipantStatusActive:
		return nil
	}

	participant.Status = models.ParticipantStatusActive
	if err := s.participantRepo.Update(participant); err != nil {
		return fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}

	s.eventBus.PublishRoomChange(participant.RoomID, bus.KindParticipant)
	return nil
}

// Deny 拒絕成員進入房間，成員會看到終止性的拒絕畫面
// 會話標記刻意不清除：帶著同一把金鑰重新加入仍然是 denied，
// 只有換一個新的客戶端會話才會產生新的成員記錄
func (s *AdmissionService) Deny(actorUserID uint, participantID uint) error {
	participant, err := s.findParticipant(participantID)
	if err != nil {
		return err
	}
	if err := s.checkAdmitPermission(actorUserID, participant.RoomID); err != nil {
		return err
	}

	now := time.Now()
	participant.Status = models.ParticipantStatusDenied
	participant.IsActive = false
	participant.LeftAt = &now
	if err := s.participantRepo.Update(participant); err != nil {
		return fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}

	s.eventBus.PublishRoomChange(participant.RoomID, bus.KindParticipant)
	return nil
}

// Leave 處理成員明確離開房間，並清除會話標記
// 呼叫端帶的金鑰必須指向這筆成員記錄：
// 成員 ID 是公開資訊（快照裡看得到），不能光憑 ID 就替別人辦離開
func (s *AdmissionService) Leave(participantID uint, sessionKey string) error {
	participant, err := s.findParticipant(participantID)
	if err != nil {
		return err
	}
	if resolved, ok := s.sessions.Resolve(sessionKey, participant.RoomID); !ok || resolved != participantID {
		return ErrNotAuthorized
	}

	if err := s.deactivate(participant); err != nil {
		return err
	}
	s.sessions.Clear(sessionKey, participant.RoomID)
	return nil
}

// Disconnect 處理連線中斷，保留會話標記讓成員之後可以接回原記錄
func (s *AdmissionService) Disconnect(participantID uint) error {
	participant, err := s.findParticipant(participantID)
	if err != nil {
		return err
	}
	return s.deactivate(participant)
}

func (s *AdmissionService) deactivate(participant *models.Participant) error {
	if participant.IsActive {
		now := time.Now()
		participant.IsActive = false
		participant.LeftAt = &now
		if err := s.participantRepo.Update(participant); err != nil {
			return fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
		}
		s.eventBus.PublishRoomChange(participant.RoomID, bus.KindParticipant)
	}
	return nil
}

// checkAdmitPermission 依設定的批准政策檢查呼叫端權限
func (s *AdmissionService) checkAdmitPermission(actorUserID uint, roomID uint) error {
	// 未登入的呼叫端（訪客）一律不能批准或拒絕
	if actorUserID == 0 {
		return ErrNotAuthorized
	}
	if s.admitPolicy != AdmitPolicyHostOnly {
		return nil
	}

	room, err := s.roomRepo.FindByID(roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRoomNotFound
		}
		return fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}
	if room.CreatorID == nil || *room.CreatorID != actorUserID {
		return ErrNotAuthorized
	}
	return nil
}

func (s *AdmissionService) findParticipant(participantID uint) (*models.Participant, error) {
	participant, err := s.participantRepo.FindByID(participantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}
	return participant, nil
}
