package models

import (
	"time"

	"gorm.io/datatypes"
)

// Account 是一条租户记录。账户本身的增删改查不属于调度核心，
// 这里只作为核心消费的外部协作方：按ID解析账户密钥，供安装包生成使用。
type Account struct {
	ID          string         `gorm:"primaryKey;size:64" json:"id"`
	CompanyName string         `gorm:"size:255" json:"companyName"`
	AccountKey  string         `gorm:"size:128;not null" json:"accountKey"` // Delegate 引导脚本中下发的租户密钥
	Settings    datatypes.JSON `gorm:"type:json" json:"settings,omitempty"` // 租户级开关等弱结构配置
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// TableName 指定 GORM 使用的表名。
func (Account) TableName() string {
	return "accounts"
}
