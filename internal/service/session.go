package service

import (
	"sync"

	"github.com/google/uuid"
)

// SessionManager 管理會話標記：(客戶端會話, 房間) → 成員 ID
// 客戶端重新整理頁面後帶著同一把會話金鑰回來，
// 就能接回原本的成員記錄，不必重新排隊等候批准
type SessionManager struct {
	mu      sync.RWMutex
	markers map[string]map[uint]uint // sessionKey -> roomID -> participantID
}

func NewSessionManager() *SessionManager {
	return &SessionManager{
		markers: make(map[string]map[uint]uint),
	}
}

// NewSessionKey 發給客戶端一把新的會話金鑰
func (m *SessionManager) NewSessionKey() string {
	return uuid.NewString()
}

// Resolve 讀取會話標記，回傳成員 ID 與是否存在
func (m *SessionManager) Resolve(sessionKey string, roomID uint) (uint, bool) {
	if sessionKey == "" {
		return 0, false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	rooms, ok := m.markers[sessionKey]
	if !ok {
		return 0, false
	}
	participantID, ok := rooms[roomID]
	return participantID, ok
}

// Persist 寫入會話標記
func (m *SessionManager) Persist(sessionKey string, roomID, participantID uint) {
	if sessionKey == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.markers[sessionKey] == nil {
		m.markers[sessionKey] = make(map[uint]uint)
	}
	m.markers[sessionKey][roomID] = participantID
}

// Clear 清除某個房間的會話標記，成員明確離開時呼叫
func (m *SessionManager) Clear(sessionKey string, roomID uint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rooms, ok := m.markers[sessionKey]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(m.markers, sessionKey)
		}
	}
}
