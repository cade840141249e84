package model

import (
	"time"
)

// WizardSession 会话状态的存储行，状态整体以 JSON 保存
type WizardSession struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Step      string    `json:"step" gorm:"size:20;not null"` // input, draft, approved, final
	Payload   string    `json:"payload" gorm:"type:text"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
