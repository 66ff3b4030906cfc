package models

import (
	"time"
)

// DelegateStatus 定义了 Delegate 的启用状态
type DelegateStatus string

const (
	DelegateStatusEnabled  DelegateStatus = "ENABLED"
	DelegateStatusDisabled DelegateStatus = "DISABLED"
)

// Delegate 代表一个注册到编排中心的远程执行节点。
// (AccountID, HostName, IP) 三元组构成它的身份签名：同一台机器上的
// Delegate 重启、重连后通过该签名完成幂等注册，不会产生重复记录。
type Delegate struct {
	ID            string         `bson:"_id" json:"id"`                      // Delegate 唯一ID (首次注册时生成的 UUID)
	AccountID     string         `bson:"account_id" json:"accountId"`        // 所属租户的账户ID
	IP            string         `bson:"ip" json:"ip"`                       // Delegate 上报的IP地址
	HostName      string         `bson:"host_name" json:"hostName"`          // Delegate 所在主机名
	Status        DelegateStatus `bson:"status" json:"status"`               // 启用状态
	LastHeartBeat int64          `bson:"last_heart_beat" json:"lastHeartBeat"` // 最近一次心跳 (Unix 毫秒，单调不减)
	CreatedAt     time.Time      `bson:"created_at" json:"createdAt"`        // 首次注册时间
}

// TouchHeartBeat 将心跳推进到给定时刻，心跳只会前进不会回退。
func (d *Delegate) TouchHeartBeat(at time.Time) {
	ms := at.UnixMilli()
	if ms > d.LastHeartBeat {
		d.LastHeartBeat = ms
	}
}
