// Package memory 进程内会话存储
package memory

import (
	"time"

	"github.com/eduadocs/backend/internal/domain"
	"github.com/eduadocs/backend/internal/repository"
	"github.com/patrickmn/go-cache"
)

type SessionRepository struct {
	cache *cache.Cache
}

// NewSessionRepository 会话在 ttl 内无访问即过期，每 cleanup 间隔清理一次
func NewSessionRepository(ttl, cleanup time.Duration) *SessionRepository {
	return &SessionRepository{
		cache: cache.New(ttl, cleanup),
	}
}

// Save 保存副本，调用方后续修改不会影响已保存的状态
func (r *SessionRepository) Save(state domain.SessionState) error {
	r.cache.Set(state.ID, state.Clone(), cache.DefaultExpiration)
	return nil
}

func (r *SessionRepository) Get(id string) (domain.SessionState, error) {
	if x, found := r.cache.Get(id); found {
		return x.(domain.SessionState).Clone(), nil
	}
	return domain.SessionState{}, repository.ErrNotFound
}

func (r *SessionRepository) Delete(id string) error {
	r.cache.Delete(id)
	return nil
}

func (r *SessionRepository) DeleteExpired() (int64, error) {
	before := r.cache.ItemCount()
	r.cache.DeleteExpired()
	return int64(before - r.cache.ItemCount()), nil
}

func (r *SessionRepository) Count() (int, error) {
	return r.cache.ItemCount(), nil
}
