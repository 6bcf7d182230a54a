package service

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"meeting_web/internal/bus"
	"meeting_web/internal/models"
	"meeting_web/internal/repository"
)

// IdleReaper 負責終止閒置的房間
//
// 在線人數歸零時啟動一個寬限計時器（每個房間同時最多一個），
// 寬限期內有人回來就取消；計時器到期時重新確認人數後才把房間結束。
// 計時器到期的處理與入場操作走同一把房間鎖，
// 避免「剛好有人加入」和「計時器剛好到期」同時進行
type IdleReaper struct {
	roomRepo        repository.RoomRepository
	participantRepo repository.ParticipantRepository
	transcripts     *TranscriptService
	eventBus        *bus.Bus
	locks           *roomLocks
	grace           time.Duration

	mu         sync.Mutex // 保護 timers map 與 generation
	generation uint64
	timers     map[uint]*reapTimer
}

// reapTimer 是單一房間的寬限計時器
// generation 讓到期的處理流程能認出自己那一顆計時器：
// 等鎖期間被取消又重新布署的話，map 裡的 generation 已經不同，
// 舊的流程必須放棄，不能把新計時器的寬限期吃掉
type reapTimer struct {
	timer      *time.Timer
	generation uint64
}

func NewIdleReaper(roomRepo repository.RoomRepository, participantRepo repository.ParticipantRepository,
	transcripts *TranscriptService, eventBus *bus.Bus, locks *roomLocks, grace time.Duration) *IdleReaper {
	return &IdleReaper{
		roomRepo:        roomRepo,
		participantRepo: participantRepo,
		transcripts:     transcripts,
		eventBus:        eventBus,
		locks:           locks,
		grace:           grace,
		timers:          make(map[uint]*reapTimer),
	}
}

// OnParticipantCountChanged 依最新的在場人數調整計時器狀態
// 人數歸零且沒有計時器時啟動一個；人數回升且有計時器時取消
func (r *IdleReaper) OnParticipantCountChanged(roomID uint, activeCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if activeCount > 0 {
		if entry, ok := r.timers[roomID]; ok {
			entry.timer.Stop()
			delete(r.timers, roomID)
		}
		return
	}

	if _, ok := r.timers[roomID]; ok {
		return
	}
	r.generation++
	generation := r.generation
	entry := &reapTimer{generation: generation}
	entry.timer = time.AfterFunc(r.grace, func() {
		r.reap(roomID, generation)
	})
	r.timers[roomID] = entry
}

// reap 是寬限計時器到期後的處理
func (r *IdleReaper) reap(roomID uint, generation uint64) {
	// 與入場操作互斥：拿到房間鎖之後才能動房間狀態
	lock := r.locks.get(roomID)
	lock.Lock()
	defer lock.Unlock()

	// 計時器在等鎖的期間可能已被取消（有人剛加入），
	// 甚至取消後又布署了一顆新的；只有自己那一顆還在才能繼續
	r.mu.Lock()
	entry, ok := r.timers[roomID]
	if !ok || entry.generation != generation {
		r.mu.Unlock()
		return
	}
	delete(r.timers, roomID)
	r.mu.Unlock()

	// 重新確認人數，確保不會在還有人的情況下結束房間
	count, err := r.countAdmitted(roomID)
	if err != nil {
		log.Printf("閒置房間回收失敗，無法查詢在場人數: %v", err)
		return
	}
	if count > 0 {
		return
	}

	room, err := r.roomRepo.FindByID(roomID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("閒置房間回收失敗，無法查詢房間 %d: %v", roomID, err)
		}
		return
	}
	if !room.Status.CanTransition(models.RoomStatusEnded) {
		return
	}

	now := time.Now()
	room.Status = models.RoomStatusEnded
	room.EndedAt = &now
	if err := r.roomRepo.Update(room); err != nil {
		// 寫入失敗由儲存層的重試機制處理，這裡不重複布署計時器
		log.Printf("閒置房間回收失敗，無法更新房間 %d: %v", roomID, err)
		return
	}

	r.transcripts.ClearRoom(roomID)
	r.eventBus.PublishRoomChange(roomID, bus.KindRoom)
	log.Printf("房間 %d 閒置超過寬限期，已自動結束", roomID)
}

// countAdmitted 計算房間內已入場且在線的成員數
// 等候室中的成員不算在內
func (r *IdleReaper) countAdmitted(roomID uint) (int, error) {
	participants, err := r.participantRepo.FindActiveByRoom(roomID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}
	count := 0
	for _, p := range participants {
		if p.Status == models.ParticipantStatusActive {
			count++
		}
	}
	return count, nil
}

// Stop 取消所有尚未到期的計時器，服務關閉時呼叫
func (r *IdleReaper) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for roomID, entry := range r.timers {
		entry.timer.Stop()
		delete(r.timers, roomID)
	}
}
