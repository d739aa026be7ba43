package domain

import "time"

// ChatroomMember 表示用户与聊天室之间的持久化成员关系。
// 复合主键 (ChatroomID, UserID) 保证成员关系插入天然幂等。
// 注意：成员关系与"活跃在场"是两个概念，后者只存在于内存中。
type ChatroomMember struct {
	ChatroomID uint      `gorm:"primaryKey;autoIncrement:false"` // 外键关联 Chatroom.ID
	UserID     uint      `gorm:"primaryKey;autoIncrement:false"` // 外键关联 User.ID
	CreatedAt  time.Time `gorm:"autoCreateTime"`                 // 首次加入时间
}

// TableName 指定 GORM 使用的表名。
func (ChatroomMember) TableName() string { return "chatroom_members" }
