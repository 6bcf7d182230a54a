package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meeting_web/internal/bus"
	"meeting_web/internal/models"
)

func TestInterimFragmentsMergeIntoOneFinalEvent(t *testing.T) {
	e := newTestEngine(defaultEngineOptions())
	room := e.createRoom(models.RoomStatusActive, nil)

	require.NoError(t, e.transcripts.OnFragment(room.ID, 1, "小美", "hel", false))
	require.NoError(t, e.transcripts.OnFragment(room.ID, 1, "小美", "hello", false))
	require.NoError(t, e.transcripts.OnFragment(room.ID, 1, "小美", "hello there", true))

	view, err := e.transcripts.View(room.ID)
	require.NoError(t, err)

	// 定稿之後即時字幕清空，定稿記錄只有一筆
	assert.Empty(t, view.Live)
	require.Len(t, view.Finalized, 1)
	assert.Equal(t, "hello there", view.Finalized[0].Text)
	assert.True(t, view.Finalized[0].IsFinal)
}

func TestInterimLastWriteWinsPerSpeaker(t *testing.T) {
	e := newTestEngine(defaultEngineOptions())
	room := e.createRoom(models.RoomStatusActive, nil)

	require.NoError(t, e.transcripts.OnFragment(room.ID, 1, "小美", "第一句", false))
	require.NoError(t, e.transcripts.OnFragment(room.ID, 1, "小美", "第一句改", false))
	require.NoError(t, e.transcripts.OnFragment(room.ID, 2, "阿強", "另一位", false))

	view, err := e.transcripts.View(room.ID)
	require.NoError(t, err)

	// 每位發言者只保留最新一筆，發言者之間互不影響
	require.Len(t, view.Live, 2)
	assert.Equal(t, "第一句改", view.Live[1].Text)
	assert.Equal(t, "另一位", view.Live[2].Text)
	// 未定稿片段不會寫入資料庫
	assert.Empty(t, view.Finalized)
}

func TestInterimRateLimitDropsButKeepsLatest(t *testing.T) {
	e := newTestEngine(defaultEngineOptions())
	room := e.createRoom(models.RoomStatusActive, nil)

	// 注入可控制的時鐘
	current := time.Unix(1700000000, 0)
	e.transcripts.now = func() time.Time { return current }

	events, cancel := e.eventBus.Subscribe(bus.RoomTopic(room.ID))
	defer cancel()

	// 同一位發言者在最小間隔內連續送出 10 筆未定稿片段
	const n = 10
	for i := 0; i < n; i++ {
		text := fmt.Sprintf("片段 %d", i)
		require.NoError(t, e.transcripts.OnFragment(room.ID, 1, "小美", text, false))
		current = current.Add(100 * time.Millisecond)
	}

	// 廣播次數少於片段數（被限流的不排隊、直接略過）
	broadcasts := len(events)
	assert.Less(t, broadcasts, n)
	assert.Greater(t, broadcasts, 0)

	// 但最新的字幕內容不會遺失（後寫覆蓋前寫）
	view, err := e.transcripts.View(room.ID)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("片段 %d", n-1), view.Live[1].Text)
}

func TestRateLimitIsPerSpeaker(t *testing.T) {
	e := newTestEngine(defaultEngineOptions())
	room := e.createRoom(models.RoomStatusActive, nil)

	current := time.Unix(1700000000, 0)
	e.transcripts.now = func() time.Time { return current }

	events, cancel := e.eventBus.Subscribe(bus.RoomTopic(room.ID))
	defer cancel()

	// 兩位發言者同時開口，各自的第一筆都要廣播
	require.NoError(t, e.transcripts.OnFragment(room.ID, 1, "小美", "甲", false))
	require.NoError(t, e.transcripts.OnFragment(room.ID, 2, "阿強", "乙", false))

	assert.Equal(t, 2, len(events))
}

func TestFinalFragmentsAreNeverRateLimited(t *testing.T) {
	e := newTestEngine(defaultEngineOptions())
	room := e.createRoom(models.RoomStatusActive, nil)

	current := time.Unix(1700000000, 0)
	e.transcripts.now = func() time.Time { return current }

	// 同一位發言者緊接著定稿兩句，兩筆都要寫入
	require.NoError(t, e.transcripts.OnFragment(room.ID, 1, "小美", "第一句。", true))
	require.NoError(t, e.transcripts.OnFragment(room.ID, 1, "小美", "第二句。", true))

	view, err := e.transcripts.View(room.ID)
	require.NoError(t, err)
	require.Len(t, view.Finalized, 2)
	assert.Equal(t, "第一句。", view.Finalized[0].Text)
	assert.Equal(t, "第二句。", view.Finalized[1].Text)
}

func TestFinalizeOrderPreservedPerSpeaker(t *testing.T) {
	e := newTestEngine(defaultEngineOptions())
	room := e.createRoom(models.RoomStatusActive, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, e.transcripts.OnFragment(room.ID, 1, "小美", fmt.Sprintf("句子 %d", i), true))
	}

	view, err := e.transcripts.View(room.ID)
	require.NoError(t, err)
	require.Len(t, view.Finalized, 5)
	// 定稿記錄依接受順序由舊到新排列
	for i, event := range view.Finalized {
		assert.Equal(t, fmt.Sprintf("句子 %d", i), event.Text)
	}
}

func TestViewHonorsHistoryLimit(t *testing.T) {
	opts := defaultEngineOptions()
	opts.historyLimit = 3
	e := newTestEngine(opts)
	room := e.createRoom(models.RoomStatusActive, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, e.transcripts.OnFragment(room.ID, 1, "小美", fmt.Sprintf("句子 %d", i), true))
	}

	view, err := e.transcripts.View(room.ID)
	require.NoError(t, err)
	// 只保留最近 3 筆，仍然由舊到新
	require.Len(t, view.Finalized, 3)
	assert.Equal(t, "句子 2", view.Finalized[0].Text)
	assert.Equal(t, "句子 4", view.Finalized[2].Text)
}

func TestLeaveClearsSpeakerLiveCaption(t *testing.T) {
	e := newTestEngine(defaultEngineOptions())
	room := e.createRoom(models.RoomStatusScheduled, nil)
	key := e.sessions.NewSessionKey()

	result, err := e.coordinator.Join(room.ID, uintPtr(7), "業務阿華", key)
	require.NoError(t, err)
	require.NoError(t, e.transcripts.OnFragment(room.ID, result.Participant.ID, "業務阿華", "講到一半", false))

	require.NoError(t, e.coordinator.Leave(result.Participant.ID, key))

	// 離開的發言者不會在快照裡留下過期的即時字幕
	view, err := e.transcripts.View(room.ID)
	require.NoError(t, err)
	assert.NotContains(t, view.Live, result.Participant.ID)
}

func TestDenyClearsSpeakerLiveCaption(t *testing.T) {
	e := newTestEngine(defaultEngineOptions())
	room := e.createRoom(models.RoomStatusScheduled, nil)

	guest, err := e.coordinator.Join(room.ID, nil, "訪客小明", e.sessions.NewSessionKey())
	require.NoError(t, err)
	require.NoError(t, e.transcripts.OnFragment(room.ID, guest.Participant.ID, "訪客小明", "還在等候室", false))

	require.NoError(t, e.coordinator.Deny(7, guest.Participant.ID))

	view, err := e.transcripts.View(room.ID)
	require.NoError(t, err)
	assert.NotContains(t, view.Live, guest.Participant.ID)
}

func TestClearRoomDropsLiveState(t *testing.T) {
	e := newTestEngine(defaultEngineOptions())
	room := e.createRoom(models.RoomStatusActive, nil)

	require.NoError(t, e.transcripts.OnFragment(room.ID, 1, "小美", "講到一半", false))
	e.transcripts.ClearRoom(room.ID)

	view, err := e.transcripts.View(room.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Live)
}
