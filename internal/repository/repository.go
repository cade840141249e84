package repository

import (
	"errors"

	"github.com/eduadocs/backend/internal/domain"
)

// ErrNotFound 记录不存在错误
var ErrNotFound = errors.New("record not found")

// SessionRepository 向导会话存储。会话只保存在进程内，过期后不可再读取。
type SessionRepository interface {
	Save(state domain.SessionState) error
	Get(id string) (domain.SessionState, error)
	Delete(id string) error
	DeleteExpired() (int64, error)
	Count() (int, error)
}
