package service

import (
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"meeting_web/internal/bus"
	"meeting_web/internal/models"
)

// 測試用的記憶體 repositories
// 服務層依賴的是 repository 介面，測試不需要真的 PostgreSQL

type memRoomRepo struct {
	mu     sync.Mutex
	nextID uint
	rooms  map[uint]models.Room
}

func newMemRoomRepo() *memRoomRepo {
	return &memRoomRepo{rooms: make(map[uint]models.Room)}
}

func (r *memRoomRepo) Create(room *models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	room.ID = r.nextID
	room.CreatedAt = time.Now()
	r.rooms[room.ID] = *room
	return nil
}

func (r *memRoomRepo) FindByID(id uint) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &room, nil
}

func (r *memRoomRepo) FindBySlug(slug string) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, room := range r.rooms {
		if room.Slug == slug {
			return &room, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRoomRepo) Update(room *models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[room.ID] = *room
	return nil
}

func (r *memRoomRepo) FindAll() ([]models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms := make([]models.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	return rooms, nil
}

type memParticipantRepo struct {
	mu           sync.Mutex
	nextID       uint
	participants map[uint]models.Participant
}

func newMemParticipantRepo() *memParticipantRepo {
	return &memParticipantRepo{participants: make(map[uint]models.Participant)}
}

func (r *memParticipantRepo) Create(p *models.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	p.ID = r.nextID
	p.CreatedAt = time.Now()
	r.participants[p.ID] = *p
	return nil
}

func (r *memParticipantRepo) FindByID(id uint) (*models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (r *memParticipantRepo) Update(p *models.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[p.ID] = *p
	return nil
}

func (r *memParticipantRepo) FindActiveByRoom(roomID uint) ([]models.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]models.Participant, 0)
	for _, p := range r.participants {
		if p.RoomID == roomID && p.IsActive {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].JoinedAt.Before(result[j].JoinedAt)
	})
	return result, nil
}

func (r *memParticipantRepo) DeactivateByRoomAndUser(roomID, userID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for id, p := range r.participants {
		if p.RoomID == roomID && p.UserID != nil && *p.UserID == userID && p.IsActive {
			p.IsActive = false
			p.LeftAt = &now
			r.participants[id] = p
		}
	}
	return nil
}

func (r *memParticipantRepo) CountActiveByRoomAndUser(roomID, userID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, p := range r.participants {
		if p.RoomID == roomID && p.UserID != nil && *p.UserID == userID && p.IsActive {
			count++
		}
	}
	return count, nil
}

type memTranscriptRepo struct {
	mu     sync.Mutex
	nextID uint
	events []models.TranscriptEvent
}

func newMemTranscriptRepo() *memTranscriptRepo {
	return &memTranscriptRepo{}
}

func (r *memTranscriptRepo) Create(event *models.TranscriptEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	event.ID = r.nextID
	event.CreatedAt = time.Now()
	r.events = append(r.events, *event)
	return nil
}

func (r *memTranscriptRepo) FindFinalByRoom(roomID uint, limit int) ([]models.TranscriptEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	matched := make([]models.TranscriptEvent, 0)
	for _, e := range r.events {
		if e.RoomID == roomID && e.IsFinal {
			matched = append(matched, e)
		}
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

// testEngine 把完整的協調引擎組起來，全部掛在記憶體 repositories 上
type testEngine struct {
	rooms        *memRoomRepo
	participants *memParticipantRepo
	events       *memTranscriptRepo
	eventBus     *bus.Bus
	sessions     *SessionManager
	locks        *roomLocks
	admission    *AdmissionService
	transcripts  *TranscriptService
	reaper       *IdleReaper
	coordinator  *RoomCoordinator
}

type engineOptions struct {
	grace        time.Duration
	minInterval  time.Duration
	historyLimit int
	admitPolicy  string
}

func defaultEngineOptions() engineOptions {
	return engineOptions{
		grace:        time.Hour, // 預設測試不觸發回收
		minInterval:  800 * time.Millisecond,
		historyLimit: 100,
		admitPolicy:  AdmitPolicyAnyMember,
	}
}

func newTestEngine(opts engineOptions) *testEngine {
	rooms := newMemRoomRepo()
	participants := newMemParticipantRepo()
	events := newMemTranscriptRepo()
	eventBus := bus.New()
	sessions := NewSessionManager()
	locks := newRoomLocks()

	transcripts := NewTranscriptService(events, eventBus, opts.minInterval, opts.historyLimit)
	admission := NewAdmissionService(rooms, participants, sessions, eventBus, opts.admitPolicy)
	reaper := NewIdleReaper(rooms, participants, transcripts, eventBus, locks, opts.grace)
	coordinator := NewRoomCoordinator(rooms, participants, admission, transcripts, reaper, eventBus, locks)

	return &testEngine{
		rooms:        rooms,
		participants: participants,
		events:       events,
		eventBus:     eventBus,
		sessions:     sessions,
		locks:        locks,
		admission:    admission,
		transcripts:  transcripts,
		reaper:       reaper,
		coordinator:  coordinator,
	}
}

// createRoom 建立一個測試用房間
func (e *testEngine) createRoom(status models.RoomStatus, creatorID *uint) *models.Room {
	room := &models.Room{
		Slug:      newSlug(),
		Title:     "測試房間",
		Status:    status,
		CreatorID: creatorID,
	}
	if err := e.rooms.Create(room); err != nil {
		panic(err)
	}
	return room
}

func uintPtr(v uint) *uint {
	return &v
}
