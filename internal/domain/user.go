// Package domain 定义了应用程序中使用的数据结构 (数据库模型)。
package domain

import "time"

// User 表示聊天系统中的一个注册用户。
type User struct {
	ID           uint      `gorm:"primaryKey"` // 用户唯一标识符 (主键)
	Username     string    `gorm:"type:varchar(191);uniqueIndex:idx_username;not null"`
	PasswordHash string    `gorm:"type:text;not null"`        // 存储加盐后的密码哈希，不能为空
	Salt         string    `gorm:"type:varchar(64);not null"` // 每用户独立的随机盐值
	CreatedAt    time.Time `gorm:"autoCreateTime"`            // 用户记录创建时间 (GORM 自动填充)
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}
