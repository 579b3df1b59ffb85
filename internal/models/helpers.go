package models

import "github.com/google/uuid"

// NewRunID 生成运行ID
func NewRunID() string {
	return uuid.New().String()
}
