package service

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// Client 代表一個 WebSocket 客戶端連接
type Client struct {
	Conn          *websocket.Conn // WebSocket 連接
	RoomID        uint            // 房間 ID
	ParticipantID uint            // 成員 ID
	DisplayName   string          // 成員顯示名稱
}

// InboundMessage 是客戶端送上來的訊息
// 目前只有語音辨識片段一種
type InboundMessage struct {
	Type    string `json:"type"` // "transcript"
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// OutboundMessage 是送往客戶端的訊息，每次房間狀態異動都會帶一份快照
type OutboundMessage struct {
	Type     string        `json:"type"` // "snapshot"
	Snapshot *RoomSnapshot `json:"snapshot"`
}

// WebSocketManager 管理所有的 WebSocket 連接
// 每條連接對應一個房間訂閱：收到快照就往下推，
// 收到語音辨識片段就交給協調器處理
type WebSocketManager struct {
	coordinator *RoomCoordinator
}

// NewWebSocketManager 創建並初始化新的 WebSocket 管理器
func NewWebSocketManager(coordinator *RoomCoordinator) *WebSocketManager {
	return &WebSocketManager{coordinator: coordinator}
}

// HandleConnection 處理新的 WebSocket 連接請求
// 連接中斷時成員會被標記為下線（is_active = false），
// 但會話標記保留，讓客戶端重新整理後能接回原記錄
func (m *WebSocketManager) HandleConnection(conn *websocket.Conn, roomID, participantID uint, displayName string) {
	snapshots, cancel, err := m.coordinator.Subscribe(roomID)
	if err != nil {
		log.Printf("訂閱房間 %d 失敗: %v", roomID, err)
		conn.Close()
		return
	}

	client := &Client{
		Conn:          conn,
		RoomID:        roomID,
		ParticipantID: participantID,
		DisplayName:   displayName,
	}

	// 確保連接關閉時清理資源
	defer func() {
		cancel()
		conn.Close()
		if err := m.coordinator.Disconnect(participantID); err != nil {
			log.Printf("標記成員 %d 下線失敗: %v", participantID, err)
		}
	}()

	go m.writePump(client, snapshots)
	m.readPump(client)
}

// readPump 持續監聽並處理從客戶端接收的訊息
func (m *WebSocketManager) readPump(client *Client) {
	client.Conn.SetReadLimit(8192)
	client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket unexpected close error: %v", err)
			}
			break
		}

		var msg InboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("message parse error: %v", err)
			continue
		}

		if msg.Type != "transcript" {
			continue
		}
		err = m.coordinator.PushFragment(client.RoomID, client.ParticipantID, client.DisplayName, msg.Text, msg.IsFinal)
		if err != nil {
			log.Printf("處理逐字稿片段失敗: %v", err)
		}
	}
}

// writePump 把房間快照推送給客戶端，並定期送出心跳
func (m *WebSocketManager) writePump(client *Client, snapshots <-chan RoomSnapshot) {
	// 心跳間隔要比讀取端的 60 秒期限短
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case snapshot, ok := <-snapshots:
			client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(OutboundMessage{Type: "snapshot", Snapshot: &snapshot})
			if err != nil {
				log.Printf("message encoding error: %v", err)
				continue
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
