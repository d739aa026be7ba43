package dto

import "time"

// PrivateMessageDTO 表示通过 /get_messages 返回给客户端的单条私信记录。
// 列表以 JSON 数组编码，替代旧协议中不安全的 eval 风格列表。
type PrivateMessageDTO struct {
	ID     uint      `json:"id"`
	From   string    `json:"from"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
	Read   bool      `json:"read"`
}
