package domain

import "time"

// PrivateMessage 表示一条私信。
// 内容只追加；Read 标志独立可变，修改已读状态不影响消息内容。
type PrivateMessage struct {
	ID          uint      `gorm:"primaryKey"`           // 私信唯一标识符 (主键)
	SenderID    uint      `gorm:"index;not null"`       // 发送者用户 ID (外键关联 User.ID)
	RecipientID uint      `gorm:"index;not null"`       // 接收者用户 ID (外键关联 User.ID)
	Body        string    `gorm:"type:text;not null"`   // 私信正文
	Read        bool      `gorm:"not null;default:false"` // 已读标志
	Timestamp   time.Time `gorm:"autoCreateTime;index"` // 私信落库时间 (GORM 自动填充)
}
