package accounts

import (
	"errors"

	"fleetmaster/internal/models"

	"gorm.io/gorm"
)

// Store 封装了账户数据的数据库访问。
type Store struct {
	DB *gorm.DB
}

// NewStore 创建一个新的账户 Store。
func NewStore(db *gorm.DB) *Store {
	return &Store{DB: db}
}

// AutoMigrate 确保账户表结构存在。
func (s *Store) AutoMigrate() error {
	return s.DB.AutoMigrate(&models.Account{})
}

// CreateAccount 在数据库中创建一个新账户。
func (s *Store) CreateAccount(account *models.Account) error {
	return s.DB.Create(account).Error
}

// GetAccountByID 通过 ID 查找账户，账户不存在时返回 (nil, nil)。
func (s *Store) GetAccountByID(id string) (*models.Account, error) {
	var account models.Account
	if err := s.DB.Where("id = ?", id).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// GetAccountKey 返回账户的安装密钥，供安装脚本渲染使用。
func (s *Store) GetAccountKey(id string) (string, error) {
	account, err := s.GetAccountByID(id)
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", models.NewNotFoundError("account", id)
	}
	return account.AccountKey, nil
}

// UpdateAccount 更新账户信息。
func (s *Store) UpdateAccount(account *models.Account) error {
	return s.DB.Save(account).Error
}
