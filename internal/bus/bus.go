package bus

import (
	"fmt"
	"sync"
)

// 事件種類，對應發生異動的記錄類型
const (
	KindParticipant = "participant"
	KindTranscript  = "transcript"
	KindRoom        = "room"
)

const subscriberBufferSize = 64

// Event 表示一筆記錄異動通知
// 通知本身不攜帶資料內容，訂閱端收到後自行重新查詢
type Event struct {
	Topic  string `json:"topic"`
	Kind   string `json:"kind"`
	RoomID uint   `json:"room_id"`
}

// RoomTopic 回傳房間對應的主題名稱
func RoomTopic(roomID uint) string {
	return fmt.Sprintf("room:%d", roomID)
}

// Bus 是行程內的主題式發布/訂閱匯流排
type Bus struct {
	mu   sync.RWMutex // 保護 subs map 的讀寫鎖
	subs map[string]map[chan Event]struct{}
}

func New() *Bus {
	return &Bus{
		subs: make(map[string]map[chan Event]struct{}),
	}
}

// Subscribe 訂閱某個主題，回傳事件通道與取消函式
// 取消函式可重複呼叫，只有第一次會生效
func (b *Bus) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[chan Event]struct{})
	}
	b.subs[topic][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.subs[topic]; ok {
				delete(subs, ch)
				// 主題沒有訂閱者時移除
				if len(subs) == 0 {
					delete(b.subs, topic)
				}
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish 發布事件給主題下的所有訂閱者
// 訂閱者的通道滿了就丟棄最舊的一筆再塞入，不會卡住發布端；
// 通知只代表「有異動」，訂閱端重新查詢時自然會拿到最新狀態
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[evt.Topic] {
		select {
		case ch <- evt:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- evt:
			default:
			}
		}
	}
}

// PublishRoomChange 是針對房間主題的發布捷徑
func (b *Bus) PublishRoomChange(roomID uint, kind string) {
	b.Publish(Event{
		Topic:  RoomTopic(roomID),
		Kind:   kind,
		RoomID: roomID,
	})
}
