package domain

import "time"

// Message 表示一条聊天室广播消息，只追加，不修改。
// 同一聊天室内的消息顺序由广播器的到达顺序决定。
type Message struct {
	ID         uint      `gorm:"primaryKey"`           // 消息唯一标识符 (主键)
	ChatroomID uint      `gorm:"index;not null"`       // 消息所属聊天室 ID (外键关联 Chatroom.ID)
	UserID     uint      `gorm:"index;not null"`       // 发送者的用户 ID (外键关联 User.ID)
	Body       string    `gorm:"type:text;not null"`   // 消息正文
	Timestamp  time.Time `gorm:"autoCreateTime;index"` // 消息落库时间 (GORM 自动填充)
}
