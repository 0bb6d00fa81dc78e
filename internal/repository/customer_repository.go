package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"autoline-go/internal/model"
)

// CustomerRepository 提供对 CRM 客户档案的只读查询，
// 管道用它把平台用户 ID 解析为内部客户身份。
type CustomerRepository interface {
	FindByLineUserID(ctx context.Context, lineUserID string) (*model.Customer, error)
}

type mysqlCustomerRepository struct {
	db *gorm.DB
}

// NewCustomerRepository 创建一个新的 CustomerRepository 实例。
func NewCustomerRepository(db *gorm.DB) CustomerRepository {
	return &mysqlCustomerRepository{db: db}
}

// FindByLineUserID 按平台用户 ID 查找客户档案，未找到时返回 (nil, nil)。
func (r *mysqlCustomerRepository) FindByLineUserID(ctx context.Context, lineUserID string) (*model.Customer, error) {
	var customer model.Customer
	err := r.db.WithContext(ctx).
		Where("line_user_id = ?", lineUserID).
		First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find customer: %w", err)
	}
	return &customer, nil
}
