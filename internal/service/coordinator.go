package service

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"gorm.io/gorm"

	"meeting_web/internal/bus"
	"meeting_web/internal/models"
	"meeting_web/internal/repository"
)

// JoinResult 的狀態
const (
	JoinStatusActive  = "active"  // 已進入房間
	JoinStatusWaiting = "waiting" // 在等候室等待批准
	JoinStatusDenied  = "denied"  // 已被拒絕，終止狀態
)

// JoinResult 是加入房間的結果
type JoinResult struct {
	Status      string              `json:"status"`
	Participant *models.Participant `json:"participant"`
	Room        *models.Room        `json:"room"`
}

// RoomSnapshot 是訂閱端收到的房間即時狀態
// 底層資料每次異動都會重新發出一份
type RoomSnapshot struct {
	Room                *models.Room         `json:"room"`
	ActiveParticipants  []models.Participant `json:"active_participants"`
	WaitingParticipants []models.Participant `json:"waiting_participants"`
	Transcript          *TranscriptView      `json:"transcript"`
}

// roomLocks 是以房間 ID 為鍵的互斥鎖註冊表
// 同一個房間的所有狀態變化（入場、批准、拒絕、回收計時器）都必須
// 拿到同一把鎖之後逐一處理；不同房間之間完全平行
type roomLocks struct {
	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

func newRoomLocks() *roomLocks {
	return &roomLocks{locks: make(map[uint]*sync.Mutex)}
}

func (l *roomLocks) get(roomID uint) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[roomID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[roomID] = lock
	}
	return lock
}

// RoomCoordinator 把入場控制、會話接續、逐字稿與閒置回收
// 組合成每個房間一條序列化的控制流程，對外提供房間協調的公開介面
type RoomCoordinator struct {
	roomRepo        repository.RoomRepository
	participantRepo repository.ParticipantRepository
	admission       *AdmissionService
	transcripts     *TranscriptService
	reaper          *IdleReaper
	eventBus        *bus.Bus
	locks           *roomLocks
}

func NewRoomCoordinator(roomRepo repository.RoomRepository, participantRepo repository.ParticipantRepository,
	admission *AdmissionService, transcripts *TranscriptService, reaper *IdleReaper,
	eventBus *bus.Bus, locks *roomLocks) *RoomCoordinator {
	return &RoomCoordinator{
		roomRepo:        roomRepo,
		participantRepo: participantRepo,
		admission:       admission,
		transcripts:     transcripts,
		reaper:          reaper,
		eventBus:        eventBus,
		locks:           locks,
	}
}

// Join 處理加入房間的請求
// userID 為空表示訪客；sessionKey 是客戶端持有的會話金鑰，
// 帶著同一把金鑰重新加入會接回原本的成員記錄與狀態
func (c *RoomCoordinator) Join(roomID uint, userID *uint, displayName, sessionKey string) (*JoinResult, error) {
	lock := c.locks.get(roomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := c.findRoom(roomID)
	if err != nil {
		return nil, err
	}

	participant, err := c.admission.RequestJoin(room, userID, displayName, sessionKey)
	if err != nil {
		return nil, err
	}

	c.refreshReaper(roomID)

	result := &JoinResult{Participant: participant, Room: room}
	switch participant.Status {
	case models.ParticipantStatusActive:
		result.Status = JoinStatusActive
	case models.ParticipantStatusDenied:
		result.Status = JoinStatusDenied
	default:
		result.Status = JoinStatusWaiting
	}
	return result, nil
}

// Leave 處理成員明確離開房間，會話標記一併清除
func (c *RoomCoordinator) Leave(participantID uint, sessionKey string) error {
	roomID, err := c.roomOfParticipant(participantID)
	if err != nil {
		return err
	}

	lock := c.locks.get(roomID)
	lock.Lock()
	defer lock.Unlock()

	if err := c.admission.Leave(participantID, sessionKey); err != nil {
		return err
	}
	c.transcripts.ClearSpeaker(roomID, participantID)
	c.refreshReaper(roomID)
	return nil
}

// Disconnect 處理連線中斷，保留會話標記讓成員之後重連
func (c *RoomCoordinator) Disconnect(participantID uint) error {
	roomID, err := c.roomOfParticipant(participantID)
	if err != nil {
		return err
	}

	lock := c.locks.get(roomID)
	lock.Lock()
	defer lock.Unlock()

	if err := c.admission.Disconnect(participantID); err != nil {
		return err
	}
	c.refreshReaper(roomID)
	return nil
}

// Admit 批准等候室中的成員
func (c *RoomCoordinator) Admit(actorUserID uint, participantID uint) error {
	roomID, err := c.roomOfParticipant(participantID)
	if err != nil {
		return err
	}

	lock := c.locks.get(roomID)
	lock.Lock()
	defer lock.Unlock()

	if err := c.admission.Admit(actorUserID, participantID); err != nil {
		return err
	}
	c.refreshReaper(roomID)
	return nil
}

// Deny 拒絕等候室中的成員
func (c *RoomCoordinator) Deny(actorUserID uint, participantID uint) error {
	roomID, err := c.roomOfParticipant(participantID)
	if err != nil {
		return err
	}

	lock := c.locks.get(roomID)
	lock.Lock()
	defer lock.Unlock()

	if err := c.admission.Deny(actorUserID, participantID); err != nil {
		return err
	}
	c.transcripts.ClearSpeaker(roomID, participantID)
	c.refreshReaper(roomID)
	return nil
}

// PushFragment 接收一段語音辨識片段並交給逐字稿服務
func (c *RoomCoordinator) PushFragment(roomID, participantID uint, speakerName, text string, isFinal bool) error {
	return c.transcripts.OnFragment(roomID, participantID, speakerName, text, isFinal)
}

// Subscribe 訂閱房間狀態，底層每次異動都會重新發出一份快照
// 回傳的取消函式務必呼叫，否則訂閱會一直留著
func (c *RoomCoordinator) Subscribe(roomID uint) (<-chan RoomSnapshot, func(), error) {
	if _, err := c.findRoom(roomID); err != nil {
		return nil, nil, err
	}

	events, cancelSub := c.eventBus.Subscribe(bus.RoomTopic(roomID))
	snapshots := make(chan RoomSnapshot, 8)
	done := make(chan struct{})

	go func() {
		defer close(snapshots)

		// 先發一份目前狀態，訂閱端不必等第一次異動
		if snapshot, err := c.Snapshot(roomID); err == nil {
			select {
			case snapshots <- *snapshot:
			case <-done:
				return
			}
		}

		for {
			select {
			case <-done:
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				snapshot, err := c.Snapshot(roomID)
				if err != nil {
					log.Printf("產生房間 %d 快照失敗: %v", roomID, err)
					continue
				}
				select {
				case snapshots <- *snapshot:
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			cancelSub()
			close(done)
		})
	}
	return snapshots, cancel, nil
}

// Snapshot 組合房間目前的完整狀態
func (c *RoomCoordinator) Snapshot(roomID uint) (*RoomSnapshot, error) {
	room, err := c.findRoom(roomID)
	if err != nil {
		return nil, err
	}

	participants, err := c.participantRepo.FindActiveByRoom(roomID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}

	active := make([]models.Participant, 0, len(participants))
	waiting := make([]models.Participant, 0)
	for _, p := range participants {
		switch p.Status {
		case models.ParticipantStatusActive:
			active = append(active, p)
		case models.ParticipantStatusWaiting:
			waiting = append(waiting, p)
		}
	}

	transcript, err := c.transcripts.View(roomID)
	if err != nil {
		return nil, err
	}

	return &RoomSnapshot{
		Room:                room,
		ActiveParticipants:  active,
		WaitingParticipants: waiting,
		Transcript:          transcript,
	}, nil
}

// refreshReaper 把最新的在場人數通知閒置回收器
// 呼叫端必須已持有房間鎖
func (c *RoomCoordinator) refreshReaper(roomID uint) {
	participants, err := c.participantRepo.FindActiveByRoom(roomID)
	if err != nil {
		log.Printf("無法查詢房間 %d 的在場人數: %v", roomID, err)
		return
	}
	count := 0
	for _, p := range participants {
		if p.Status == models.ParticipantStatusActive {
			count++
		}
	}
	c.reaper.OnParticipantCountChanged(roomID, count)
}

func (c *RoomCoordinator) findRoom(roomID uint) (*models.Room, error) {
	room, err := c.roomRepo.FindByID(roomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}
	return room, nil
}

// Participant 依 ID 查詢成員記錄
func (c *RoomCoordinator) Participant(participantID uint) (*models.Participant, error) {
	participant, err := c.participantRepo.FindByID(participantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}
	return participant, nil
}

func (c *RoomCoordinator) roomOfParticipant(participantID uint) (uint, error) {
	participant, err := c.participantRepo.FindByID(participantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrParticipantNotFound
		}
		return 0, fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}
	return participant.RoomID, nil
}
