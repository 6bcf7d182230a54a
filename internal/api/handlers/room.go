package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"meeting_web/internal/service"
)

// 客戶端會話金鑰放在這個請求頭，WebSocket 連接改用 query 參數
const sessionKeyHeader = "X-Session-Key"

// RoomHandler 處理與會議房間相關的請求
type RoomHandler struct {
	roomService *service.RoomService
	coordinator *service.RoomCoordinator
	sessions    *service.SessionManager
}

// NewRoomHandler 創建一個新的 RoomHandler 實例
func NewRoomHandler(roomService *service.RoomService, coordinator *service.RoomCoordinator,
	sessions *service.SessionManager) *RoomHandler {
	return &RoomHandler{
		roomService: roomService,
		coordinator: coordinator,
		sessions:    sessions,
	}
}

// CreateRoom 處理創建新房間的請求
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var input struct {
		Title           string `json:"title" binding:"required"`
		CalendarEventID *uint  `json:"calendar_event_id"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	creatorID := currentUserID(c)
	room, err := h.roomService.CreateRoom(input.Title, creatorID, input.CalendarEventID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "創建房間失敗"})
		return
	}

	c.JSON(http.StatusCreated, room)
}

// GetRoom 處理獲取房間訊息的請求，路徑參數可以是 ID 或短代碼
func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.roomService.ResolveRoom(c.Param("ref"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, room)
}

// ListRooms 處理獲取房間列表的請求
func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.roomService.ListRooms()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, rooms)
}

// JoinRoom 處理加入房間的請求，允許訪客
// 客戶端第一次加入時會拿到一把會話金鑰，
// 之後重新整理帶著同一把金鑰回來就能接回原本的成員記錄
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	room, err := h.roomService.ResolveRoom(c.Param("ref"))
	if err != nil {
		respondError(c, err)
		return
	}

	var input struct {
		DisplayName string `json:"display_name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionKey := c.GetHeader(sessionKeyHeader)
	if sessionKey == "" {
		sessionKey = h.sessions.NewSessionKey()
	}

	result, err := h.coordinator.Join(room.ID, currentUserID(c), input.DisplayName, sessionKey)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_key": sessionKey,
		"status":      result.Status,
		"participant": result.Participant,
		"room":        result.Room,
	})
}

// LeaveRoom 處理成員明確離開房間的請求
// 請求頭的會話金鑰必須指向這位成員，拿著別人的 ID 離不了場
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	participantID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "無效的成員 ID"})
		return
	}

	sessionKey := c.GetHeader(sessionKeyHeader)
	if err := h.coordinator.Leave(uint(participantID), sessionKey); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "成功離開房間"})
}

// Admit 處理批准等候室成員的請求
func (h *RoomHandler) Admit(c *gin.Context) {
	participantID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "無效的成員 ID"})
		return
	}

	userID, _ := c.Get("userID")
	if err := h.coordinator.Admit(userID.(uint), uint(participantID)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "已批准進入房間"})
}

// Deny 處理拒絕等候室成員的請求
func (h *RoomHandler) Deny(c *gin.Context) {
	participantID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "無效的成員 ID"})
		return
	}

	userID, _ := c.Get("userID")
	if err := h.coordinator.Deny(userID.(uint), uint(participantID)); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "已拒絕進入房間"})
}

// currentUserID 從上下文取出已登入的使用者 ID，訪客回傳 nil
func currentUserID(c *gin.Context) *uint {
	if userID, exists := c.Get("userID"); exists {
		id := userID.(uint)
		return &id
	}
	return nil
}

// respondError 把服務層的錯誤分類轉換為對應的 HTTP 狀態碼
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrParticipantNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrRoomEnded):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrParticipantDenied):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrAdapterUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
