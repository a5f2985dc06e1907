package websocket

import "time"

// MessageType - тип сообщения ленты
type MessageType string

const (
	// MessageTypeAlert - оповещение (перезапуск потока, ошибка выставления, расхождение)
	MessageTypeAlert MessageType = "alert"

	// MessageTypePosition - позиция создана, изменена или закрыта
	MessageTypePosition MessageType = "position"
)

// Message - конверт сообщения ленты
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

func newMessage(t MessageType, data interface{}) *Message {
	return &Message{Type: t, Timestamp: time.Now().UTC(), Data: data}
}
