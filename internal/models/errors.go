package models

import (
	"errors"
	"fmt"
)

// ValidationError 表示创建/入队路径上的非法输入，在任何持久化写入之前被拒绝。
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on field %q: %s", e.Field, e.Message)
}

// NewValidationError 构造一个字段级的校验错误。
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError 表示按ID读取或更新时记录不存在，直接透传给调用方，不做内部重试。
type NotFoundError struct {
	Kind string // 实体种类，例如 "delegate"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// NewNotFoundError 构造一个实体缺失错误。
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// StorageError 包装持久化协作方的失败，原样向上传播，重试策略属于调用方。
type StorageError struct {
	Op  string // 失败的存储操作，例如 "delegate.create"
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError 包装一个底层存储错误。
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// IsValidation 判断 err 是否为校验错误。
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound 判断 err 是否为记录缺失错误。
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}
