package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meeting_web/internal/models"
)

// waitForRoomStatus 輪詢等待房間變成預期狀態
func waitForRoomStatus(t *testing.T, e *testEngine, roomID uint, want models.RoomStatus, timeout time.Duration) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		room, err := e.rooms.FindByID(roomID)
		require.NoError(t, err)
		if room.Status == want {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestIdleRoomEndsAfterGracePeriod(t *testing.T) {
	opts := defaultEngineOptions()
	opts.grace = 30 * time.Millisecond
	e := newTestEngine(opts)
	room := e.createRoom(models.RoomStatusScheduled, nil)
	key := e.sessions.NewSessionKey()

	result, err := e.coordinator.Join(room.ID, uintPtr(7), "業務阿華", key)
	require.NoError(t, err)

	// 最後一位成員離開，人數歸零
	require.NoError(t, e.coordinator.Leave(result.Participant.ID, key))

	require.True(t, waitForRoomStatus(t, e, room.ID, models.RoomStatusEnded, time.Second))

	ended, err := e.rooms.FindByID(room.ID)
	require.NoError(t, err)
	assert.NotNil(t, ended.EndedAt)
}

func TestRejoinWithinGraceCancelsReap(t *testing.T) {
	opts := defaultEngineOptions()
	opts.grace = 80 * time.Millisecond
	e := newTestEngine(opts)
	room := e.createRoom(models.RoomStatusScheduled, nil)
	key := e.sessions.NewSessionKey()

	result, err := e.coordinator.Join(room.ID, uintPtr(7), "業務阿華", key)
	require.NoError(t, err)
	require.NoError(t, e.coordinator.Leave(result.Participant.ID, key))

	// 寬限期內有人回來
	_, err = e.coordinator.Join(room.ID, uintPtr(7), "業務阿華", e.sessions.NewSessionKey())
	require.NoError(t, err)

	// 等超過原本的寬限期，房間不能被結束
	time.Sleep(200 * time.Millisecond)
	current, err := e.rooms.FindByID(room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusActive, current.Status)
}

func TestTransientDisconnectDoesNotEndRoom(t *testing.T) {
	opts := defaultEngineOptions()
	opts.grace = 80 * time.Millisecond
	e := newTestEngine(opts)
	room := e.createRoom(models.RoomStatusScheduled, nil)
	key := e.sessions.NewSessionKey()

	result, err := e.coordinator.Join(room.ID, uintPtr(7), "業務阿華", key)
	require.NoError(t, err)

	// 短暫斷線後重連（同一把會話金鑰）
	require.NoError(t, e.coordinator.Disconnect(result.Participant.ID))
	time.Sleep(20 * time.Millisecond)
	_, err = e.coordinator.Join(room.ID, uintPtr(7), "業務阿華", key)
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	current, err := e.rooms.FindByID(room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusActive, current.Status)
}

func TestReapRechecksCountBeforeEnding(t *testing.T) {
	opts := defaultEngineOptions()
	opts.grace = 30 * time.Millisecond
	e := newTestEngine(opts)
	room := e.createRoom(models.RoomStatusActive, nil)

	// 直接通知人數歸零，但在計時器到期前偷偷塞進一位在場成員，
	// 模擬通知與實際狀態短暫不一致的情況
	e.reaper.OnParticipantCountChanged(room.ID, 0)
	require.NoError(t, e.participants.Create(&models.Participant{
		RoomID:   room.ID,
		Status:   models.ParticipantStatusActive,
		IsActive: true,
		JoinedAt: time.Now(),
	}))

	time.Sleep(150 * time.Millisecond)

	// 到期時重新確認人數，發現還有人就放棄
	current, err := e.rooms.FindByID(room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusActive, current.Status)
}

func TestOnlyWaitingParticipantsDoNotKeepRoomAlive(t *testing.T) {
	opts := defaultEngineOptions()
	opts.grace = 30 * time.Millisecond
	e := newTestEngine(opts)
	room := e.createRoom(models.RoomStatusScheduled, nil)

	// 只有等候室中的訪客，沒有任何已入場成員
	_, err := e.coordinator.Join(room.ID, nil, "訪客小明", e.sessions.NewSessionKey())
	require.NoError(t, err)

	require.True(t, waitForRoomStatus(t, e, room.ID, models.RoomStatusEnded, time.Second))
}

func TestRepeatedZeroCountArmsSingleTimer(t *testing.T) {
	opts := defaultEngineOptions()
	opts.grace = 50 * time.Millisecond
	e := newTestEngine(opts)
	room := e.createRoom(models.RoomStatusActive, nil)

	// 重複通知歸零只會有一個計時器；一次回升就全部取消
	e.reaper.OnParticipantCountChanged(room.ID, 0)
	e.reaper.OnParticipantCountChanged(room.ID, 0)
	e.reaper.OnParticipantCountChanged(room.ID, 1)

	time.Sleep(150 * time.Millisecond)
	current, err := e.rooms.FindByID(room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusActive, current.Status)
}

func TestStaleReapDoesNotConsumeRearmedTimer(t *testing.T) {
	opts := defaultEngineOptions()
	opts.grace = 60 * time.Millisecond
	e := newTestEngine(opts)
	room := e.createRoom(models.RoomStatusActive, nil)

	// 先佔住房間鎖，讓第一個計時器到期後卡在等鎖
	lock := e.locks.get(room.ID)
	lock.Lock()
	e.reaper.OnParticipantCountChanged(room.ID, 0)
	time.Sleep(100 * time.Millisecond)

	// 等鎖期間有人回來又離開：舊計時器取消，新的寬限期重新起算
	e.reaper.OnParticipantCountChanged(room.ID, 1)
	e.reaper.OnParticipantCountChanged(room.ID, 0)
	lock.Unlock()

	// 舊的回收流程拿到鎖後必須放棄，不能吃掉新計時器的寬限期
	time.Sleep(20 * time.Millisecond)
	current, err := e.rooms.FindByID(room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusActive, current.Status)

	// 新的寬限期照常走完
	require.True(t, waitForRoomStatus(t, e, room.ID, models.RoomStatusEnded, time.Second))
}

func TestReaperStopCancelsPendingTimers(t *testing.T) {
	opts := defaultEngineOptions()
	opts.grace = 30 * time.Millisecond
	e := newTestEngine(opts)
	room := e.createRoom(models.RoomStatusActive, nil)

	e.reaper.OnParticipantCountChanged(room.ID, 0)
	e.reaper.Stop()

	time.Sleep(100 * time.Millisecond)
	current, err := e.rooms.FindByID(room.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusActive, current.Status)
}
