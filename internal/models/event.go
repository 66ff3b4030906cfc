package models

import (
	"time"
)

// EventType 标记 Delegate 生命周期事件的种类。
type EventType string

const (
	EventTypeCreate EventType = "CREATE"
	EventTypeUpdate EventType = "UPDATE"
	EventTypeDelete EventType = "DELETE"
)

// DelegateEvent 是注册表在每次生命周期变迁时对外发布的事件。
// 发布是 fire-and-forget 的：事件发布失败不会影响变迁本身。
type DelegateEvent struct {
	EntityID  string    `json:"entityId"`  // 发生变迁的 Delegate ID
	AccountID string    `json:"accountId"` // 所属租户
	Type      EventType `json:"type"`
	At        time.Time `json:"at"`
}
