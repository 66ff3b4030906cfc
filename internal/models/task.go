package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// TaskType 区分任务载荷的形态以及由哪个执行器处理。
type TaskType string

const (
	TaskTypeHTTP  TaskType = "HTTP"  // 发起一次 HTTP 请求并回传响应
	TaskTypeShell TaskType = "SHELL" // 在 Delegate 所在主机执行脚本
	TaskTypePing  TaskType = "PING"  // 连通性探测，原样回显
)

// DelegateTask 是下发给 Delegate 的一个工作单元。
// 任务从创建起一直留在队列中，直到针对其 ID 的响应被处理后才会删除；
// 任务ID 不会被复用。
type DelegateTask struct {
	TaskID     string          `bson:"_id" json:"taskId"`             // 任务唯一ID (UUID)
	AccountID  string          `bson:"account_id" json:"accountId"`   // 所属租户的账户ID
	AppID      string          `bson:"app_id,omitempty" json:"appId,omitempty"` // 所属应用ID
	WaitID     string          `bson:"wait_id" json:"waitId"`         // 关联令牌，调用方挂起在这个ID上等待结果
	TaskType   TaskType        `bson:"task_type" json:"taskType"`     // 任务类型，决定 Parameters 的结构
	Parameters json.RawMessage `bson:"parameters" json:"parameters"`  // 类型化载荷，按 TaskType 解码
	CreatedAt  time.Time       `bson:"created_at" json:"createdAt"`   // 入队时间
}

// DelegateTaskResponse 是 Delegate 执行完任务后的回传结果。
// 它只被关联器消费一次，不做持久化。
type DelegateTaskResponse struct {
	AccountID string          `json:"accountId"`
	TaskID    string          `json:"taskId"`
	Response  json.RawMessage `json:"response"` // 不透明的结果载荷
}

// HTTPTaskParams 是 TaskTypeHTTP 的载荷。
type HTTPTaskParams struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

// ShellTaskParams 是 TaskTypeShell 的载荷。
type ShellTaskParams struct {
	Script         string `json:"script"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

// PingTaskParams 是 TaskTypePing 的载荷。
type PingTaskParams struct {
	Message string `json:"message,omitempty"`
}

// DecodeParameters 按任务类型把原始载荷解码成对应的参数结构。
// 未知类型在这里失败，而不是在入队时失败，以保证队列的前向兼容。
func (t *DelegateTask) DecodeParameters() (interface{}, error) {
	switch t.TaskType {
	case TaskTypeHTTP:
		var p HTTPTaskParams
		if err := json.Unmarshal(t.Parameters, &p); err != nil {
			return nil, fmt.Errorf("decode HTTP task parameters: %w", err)
		}
		return &p, nil
	case TaskTypeShell:
		var p ShellTaskParams
		if err := json.Unmarshal(t.Parameters, &p); err != nil {
			return nil, fmt.Errorf("decode SHELL task parameters: %w", err)
		}
		return &p, nil
	case TaskTypePing:
		var p PingTaskParams
		if len(t.Parameters) > 0 {
			if err := json.Unmarshal(t.Parameters, &p); err != nil {
				return nil, fmt.Errorf("decode PING task parameters: %w", err)
			}
		}
		return &p, nil
	default:
		return nil, fmt.Errorf("unknown task type %q", t.TaskType)
	}
}
