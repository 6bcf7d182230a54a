package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"meeting_web/internal/models"
	"meeting_web/internal/service"
)

// 定義 WebSocket 升級器
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 注意：在生產環境中，應該檢查 origin
	},
}

// WebSocketHandler 處理 WebSocket 連接
type WebSocketHandler struct {
	wsManager   *service.WebSocketManager
	roomService *service.RoomService
	coordinator *service.RoomCoordinator
	sessions    *service.SessionManager
}

// NewWebSocketHandler 創建一個新的 WebSocketHandler 實例
func NewWebSocketHandler(wsManager *service.WebSocketManager, roomService *service.RoomService,
	coordinator *service.RoomCoordinator, sessions *service.SessionManager) *WebSocketHandler {
	return &WebSocketHandler{
		wsManager:   wsManager,
		roomService: roomService,
		coordinator: coordinator,
		sessions:    sessions,
	}
}

// HandleWebSocket 處理 WebSocket 連接請求
// 客戶端必須先呼叫加入房間的 API 拿到會話金鑰，再帶著金鑰來連接；
// 等候室中的成員也能連接，這樣才能即時看到自己被批准
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	room, err := h.roomService.ResolveRoom(c.Param("ref"))
	if err != nil {
		respondError(c, err)
		return
	}

	// WebSocket 連接無法自訂請求頭，會話金鑰改放 query 參數
	sessionKey := c.Query("session")
	participantID, ok := h.sessions.Resolve(sessionKey, room.ID)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "尚未加入此房間"})
		return
	}

	participant, err := h.coordinator.Participant(participantID)
	if err != nil {
		respondError(c, err)
		return
	}
	if participant.Status == models.ParticipantStatusDenied {
		c.JSON(http.StatusForbidden, gin.H{"error": "已被拒絕進入房間"})
		return
	}

	// 升級 HTTP 連接為 WebSocket 連接
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "升級WebSocket失敗"})
		return
	}

	// 處理客戶端連接，回傳時連接已結束
	h.wsManager.HandleConnection(conn, room.ID, participant.ID, participant.DisplayName)
}
