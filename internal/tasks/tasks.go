package tasks

import (
	"encoding/json"
)

// 定义任务类型常量
const (
	// TypeMessageRetention 是周期性私信保留清理任务
	TypeMessageRetention = "messages:retention"
	// TypeChatroomActivity 是周期性聊天室活跃时间刷新任务
	TypeChatroomActivity = "chatrooms:activity"
)

// MessageRetentionPayload 定义了私信保留清理任务的数据结构
type MessageRetentionPayload struct {
	// RetentionDays 是已读私信的保留天数，超过即被清理
	RetentionDays int `json:"retention_days"`
}

// NewMessageRetentionTask 创建私信保留清理任务的 payload
func NewMessageRetentionTask(retentionDays int) ([]byte, error) {
	payload := MessageRetentionPayload{RetentionDays: retentionDays}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return payloadBytes, nil
}

// ChatroomActivityPayload 定义了聊天室活跃时间刷新任务的数据结构。
// 任务执行时会读取当前有在场用户的聊天室并刷新其 last_active。
type ChatroomActivityPayload struct{}

// NewChatroomActivityTask 创建聊天室活跃时间刷新任务的 payload
func NewChatroomActivityTask() ([]byte, error) {
	return json.Marshal(ChatroomActivityPayload{})
}
