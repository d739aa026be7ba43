package domain

import "time"

// Chatroom 表示一个持久化的聊天室。
// 聊天室在本设计中只会被创建，不会被删除或重命名。
type Chatroom struct {
	ID         uint      `gorm:"primaryKey"`                                // 聊天室唯一标识符 (主键)
	Name       string    `gorm:"type:varchar(191);uniqueIndex:idx_chatroom_name;not null"` // 聊天室名称，全局唯一
	AdminID    uint      `gorm:"index;not null"`                            // 创建者/管理员的用户 ID (外键关联 User.ID)
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	LastActive time.Time `gorm:"index"` // 最近一次消息广播时间，由后台任务刷新
}
