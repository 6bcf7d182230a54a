package service

import (
	"fmt"
	"sync"
	"time"

	"meeting_web/internal/bus"
	"meeting_web/internal/models"
	"meeting_web/internal/repository"
)

// LiveCaption 表示某位發言者目前的即時字幕（未定稿）
type LiveCaption struct {
	ParticipantID uint      `json:"participant_id"`
	Name          string    `json:"name"`
	Text          string    `json:"text"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TranscriptView 是訂閱端看到的合併逐字稿：定稿記錄加上各發言者的即時字幕
type TranscriptView struct {
	Finalized []models.TranscriptEvent `json:"finalized"`
	Live      map[uint]LiveCaption     `json:"live"`
}

// TranscriptService 合併語音辨識輸出的逐字稿片段
//
// 辨識器每秒會送出多次未定稿片段，同一位發言者只保留最新一筆
// （後寫覆蓋前寫），對外廣播另外套用每位發言者的最小間隔限制，
// 讓寫入量跟語意內容成正比，而不是跟語速成正比。
// 定稿片段直接寫入資料庫，不做任何限流。
type TranscriptService struct {
	transcriptRepo repository.TranscriptRepository
	eventBus       *bus.Bus
	minInterval    time.Duration
	historyLimit   int
	now            func() time.Time // 可注入的時鐘，方便測試限流邏輯

	mu       sync.Mutex
	live     map[uint]map[uint]LiveCaption // roomID -> participantID -> 即時字幕
	lastEmit map[uint]map[uint]time.Time   // roomID -> participantID -> 上次廣播時間
}

func NewTranscriptService(transcriptRepo repository.TranscriptRepository, eventBus *bus.Bus,
	minInterval time.Duration, historyLimit int) *TranscriptService {
	return &TranscriptService{
		transcriptRepo: transcriptRepo,
		eventBus:       eventBus,
		minInterval:    minInterval,
		historyLimit:   historyLimit,
		now:            time.Now,
		live:           make(map[uint]map[uint]LiveCaption),
		lastEmit:       make(map[uint]map[uint]time.Time),
	}
}

// OnFragment 處理一段語音辨識片段
//
// 未定稿：更新該發言者的即時字幕，距離上次廣播不足最小間隔時
// 靜默略過這次廣播（不排隊、不報錯，未定稿本來就是可拋棄的），
// 但最新字幕仍會保留在記憶體中，下次廣播時一定是最新內容。
// 定稿：寫入資料庫並清掉該發言者的即時字幕。
func (s *TranscriptService) OnFragment(roomID, participantID uint, speakerName, text string, isFinal bool) error {
	if isFinal {
		return s.finalize(roomID, participantID, speakerName, text)
	}

	s.mu.Lock()
	if s.live[roomID] == nil {
		s.live[roomID] = make(map[uint]LiveCaption)
	}
	now := s.now()
	s.live[roomID][participantID] = LiveCaption{
		ParticipantID: participantID,
		Name:          speakerName,
		Text:          text,
		UpdatedAt:     now,
	}

	last, seen := s.lastEmit[roomID][participantID]
	if seen && now.Sub(last) < s.minInterval {
		s.mu.Unlock()
		return nil
	}
	if s.lastEmit[roomID] == nil {
		s.lastEmit[roomID] = make(map[uint]time.Time)
	}
	s.lastEmit[roomID][participantID] = now
	s.mu.Unlock()

	s.eventBus.PublishRoomChange(roomID, bus.KindTranscript)
	return nil
}

func (s *TranscriptService) finalize(roomID, participantID uint, speakerName, text string) error {
	event := &models.TranscriptEvent{
		RoomID:        roomID,
		ParticipantID: participantID,
		SpeakerName:   speakerName,
		Text:          text,
		IsFinal:       true,
		SpokenAt:      s.now(),
	}
	if err := s.transcriptRepo.Create(event); err != nil {
		return fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}

	s.mu.Lock()
	delete(s.live[roomID], participantID)
	delete(s.lastEmit[roomID], participantID)
	s.mu.Unlock()

	s.eventBus.PublishRoomChange(roomID, bus.KindTranscript)
	return nil
}

// View 回傳房間目前的合併逐字稿
func (s *TranscriptService) View(roomID uint) (*TranscriptView, error) {
	finalized, err := s.transcriptRepo.FindFinalByRoom(roomID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAdapterUnavailable, err)
	}

	s.mu.Lock()
	live := make(map[uint]LiveCaption, len(s.live[roomID]))
	for id, caption := range s.live[roomID] {
		live[id] = caption
	}
	s.mu.Unlock()

	return &TranscriptView{Finalized: finalized, Live: live}, nil
}

// ClearSpeaker 清掉單一發言者的即時字幕與限流狀態
// 成員離開或被拒絕時呼叫，讓記憶體中的狀態跟在場的發言者成正比
func (s *TranscriptService) ClearSpeaker(roomID, participantID uint) {
	s.mu.Lock()
	_, hadCaption := s.live[roomID][participantID]
	delete(s.live[roomID], participantID)
	delete(s.lastEmit[roomID], participantID)
	s.mu.Unlock()

	if hadCaption {
		s.eventBus.PublishRoomChange(roomID, bus.KindTranscript)
	}
}

// ClearRoom 清掉房間的即時字幕狀態，房間結束時呼叫
func (s *TranscriptService) ClearRoom(roomID uint) {
	s.mu.Lock()
	delete(s.live, roomID)
	delete(s.lastEmit, roomID)
	s.mu.Unlock()
}
