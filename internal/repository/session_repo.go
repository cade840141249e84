package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/eduadocs/backend/internal/domain"
	"github.com/eduadocs/backend/internal/model"
	"gorm.io/gorm"
)

type sessionRepository struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// NewSessionRepository 基于 gorm 的会话存储，过期的会话视为不存在
func NewSessionRepository(db *gorm.DB, ttl time.Duration) SessionRepository {
	return &sessionRepository{db: db, ttl: ttl, now: time.Now}
}

func (r *sessionRepository) Save(state domain.SessionState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", state.ID, err)
	}

	row := &model.WizardSession{
		ID:        state.ID,
		Step:      string(state.Step),
		Payload:   string(payload),
		ExpiresAt: r.now().Add(r.ttl),
		CreatedAt: state.CreatedAt,
	}
	return r.db.Save(row).Error
}

func (r *sessionRepository) Get(id string) (domain.SessionState, error) {
	var row model.WizardSession
	err := r.db.Where("id = ? AND expires_at > ?", id, r.now()).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.SessionState{}, ErrNotFound
	}
	if err != nil {
		return domain.SessionState{}, err
	}

	var state domain.SessionState
	if err := json.Unmarshal([]byte(row.Payload), &state); err != nil {
		return domain.SessionState{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return state, nil
}

func (r *sessionRepository) Delete(id string) error {
	return r.db.Delete(&model.WizardSession{}, "id = ?", id).Error
}

// DeleteExpired 清理过期会话
func (r *sessionRepository) DeleteExpired() (int64, error) {
	result := r.db.Where("expires_at <= ?", r.now()).Delete(&model.WizardSession{})
	return result.RowsAffected, result.Error
}

func (r *sessionRepository) Count() (int, error) {
	var count int64
	err := r.db.Model(&model.WizardSession{}).Where("expires_at > ?", r.now()).Count(&count).Error
	return int(count), err
}
