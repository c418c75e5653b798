package repository

import (
	"errors"
	"fmt"
)

// 通用仓储错误
var (
	// ErrNotFound 实体不存在
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists 实体已存在
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrInvalidID ID 无效
	ErrInvalidID = errors.New("invalid entity ID")

	// ErrInvalidData 数据无效
	ErrInvalidData = errors.New("invalid entity data")
)

// 用户相关错误
var (
	ErrUserNotFound = fmt.Errorf("user: %w", ErrNotFound)
)

// 设备相关错误
var (
	ErrDeviceNotFound = fmt.Errorf("device: %w", ErrNotFound)
)
