package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eduadocs/backend/internal/domain"
	"github.com/eduadocs/backend/internal/eventbus"
	"github.com/eduadocs/backend/internal/repository"
	"github.com/eduadocs/backend/internal/service/ingest"
	"github.com/eduadocs/backend/internal/service/statemachine"
	"github.com/eduadocs/backend/internal/service/wizard"
	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// 错误定义
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNoArtifact      = errors.New("no document has been generated for this session")
)

// WizardService 管理会话生命周期并把用户动作交给向导控制器。
// 同一会话的动作串行执行，上一个动作完成前下一个动作等待。
type WizardService struct {
	repo       repository.SessionRepository
	controller *wizard.Controller
	ingest     *ingest.Service
	bus        *eventbus.WizardEventBus
	locks      sync.Map
	now        func() time.Time
}

// NewWizardService 创建向导服务
func NewWizardService(repo repository.SessionRepository, controller *wizard.Controller, ingestService *ingest.Service, bus *eventbus.WizardEventBus) *WizardService {
	return &WizardService{
		repo:       repo,
		controller: controller,
		ingest:     ingestService,
		bus:        bus,
		now:        time.Now,
	}
}

// Create 创建新会话
func (s *WizardService) Create(ctx context.Context) (domain.SessionState, error) {
	state := domain.NewSessionState(uuid.NewString(), s.now())
	if err := s.repo.Save(state); err != nil {
		return domain.SessionState{}, fmt.Errorf("保存会话失败: %w", err)
	}

	klog.V(6).Infof("会话已创建: sessionID=%s", state.ID)
	s.publish(ctx, eventbus.WizardEvent{
		Type:      eventbus.WizardEventSessionCreated,
		SessionID: state.ID,
		To:        state.Step,
		State:     state,
	})
	return state, nil
}

// Get 获取会话当前状态
func (s *WizardService) Get(_ context.Context, id string) (domain.SessionState, error) {
	return s.load(id)
}

// End 结束会话并清除其全部数据
func (s *WizardService) End(ctx context.Context, id string) error {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	state, err := s.load(id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(id); err != nil {
		return fmt.Errorf("删除会话失败: %w", err)
	}
	s.ingest.Forget(id)
	s.locks.Delete(id)

	klog.V(6).Infof("会话已结束: sessionID=%s", id)
	s.publish(ctx, eventbus.WizardEvent{
		Type:      eventbus.WizardEventSessionEnded,
		SessionID: id,
		From:      state.Step,
	})
	return nil
}

// Apply 执行一次用户动作。出错时返回会话当前（未改变的）状态。
func (s *WizardService) Apply(ctx context.Context, id string, cmd wizard.Command) (domain.SessionState, error) {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	state, err := s.load(id)
	if err != nil {
		return domain.SessionState{}, err
	}

	next, err := s.controller.Apply(ctx, state, cmd)
	if err != nil {
		klog.V(6).Infof("动作执行失败: sessionID=%s, action=%s, step=%s, error=%v", id, cmd.Action, state.Step, err)
		s.publish(ctx, eventbus.WizardEvent{
			Type:      eventbus.WizardEventActionRejected,
			SessionID: id,
			Action:    cmd.Action,
			From:      state.Step,
			To:        state.Step,
			State:     state,
			Error:     err.Error(),
		})
		return state, err
	}

	if err := s.repo.Save(next); err != nil {
		return state, fmt.Errorf("保存会话失败: %w", err)
	}

	s.publish(ctx, eventbus.WizardEvent{
		Type:      eventbus.WizardEventStepChanged,
		SessionID: id,
		Action:    cmd.Action,
		From:      state.Step,
		To:        next.Step,
		State:     next,
	})
	return next, nil
}

// Upload 登记参考资料，并更新会话的资料可用标记
func (s *WizardService) Upload(ctx context.Context, id string, files []ingest.File) (domain.SessionState, []domain.UploadedDocument, error) {
	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	state, err := s.load(id)
	if err != nil {
		return domain.SessionState{}, nil, err
	}

	docs, err := s.ingest.Ingest(ctx, id, files)
	if err != nil {
		return state, nil, classifyIngestError(err)
	}

	next := state.Clone()
	next.DocumentsAvailable = s.ingest.DocumentsAvailable(id)
	next.UpdatedAt = s.now()
	if err := s.repo.Save(next); err != nil {
		return state, nil, fmt.Errorf("保存会话失败: %w", err)
	}

	s.publish(ctx, eventbus.WizardEvent{
		Type:      eventbus.WizardEventDocumentsUploaded,
		SessionID: id,
		From:      state.Step,
		To:        next.Step,
		State:     next,
	})
	return next, docs, nil
}

// Documents 会话已上传的资料
func (s *WizardService) Documents(_ context.Context, id string) ([]domain.UploadedDocument, error) {
	if _, err := s.load(id); err != nil {
		return nil, err
	}
	return s.ingest.List(id), nil
}

// Artifact 获取已生成的下载文件，仅在 final 步骤可用
func (s *WizardService) Artifact(_ context.Context, id string) (*domain.Artifact, error) {
	state, err := s.load(id)
	if err != nil {
		return nil, err
	}
	if !statemachine.HasArtifact(state.Step) || state.Artifact == nil {
		return nil, ErrNoArtifact
	}
	return state.Artifact, nil
}

// AvailableActions 当前步骤可用的动作
func (s *WizardService) AvailableActions(state domain.SessionState) []domain.Action {
	return s.controller.AvailableActions(state)
}

// CleanupExpired 清理过期会话
func (s *WizardService) CleanupExpired() (int64, error) {
	return s.repo.DeleteExpired()
}

// ActiveSessions 当前未过期的会话数量
func (s *WizardService) ActiveSessions() (int, error) {
	return s.repo.Count()
}

func (s *WizardService) load(id string) (domain.SessionState, error) {
	state, err := s.repo.Get(id)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.SessionState{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("读取会话失败: %w", err)
	}
	return state, nil
}

// classifyIngestError 文件本身不合规属于输入错误，其余视为外部服务失败
func classifyIngestError(err error) error {
	switch {
	case errors.Is(err, ingest.ErrNoFiles),
		errors.Is(err, ingest.ErrTooManyFiles),
		errors.Is(err, ingest.ErrFileTooLarge),
		errors.Is(err, ingest.ErrUnsupportedType):
		return &wizard.ValidationError{Fields: []string{"files"}, Message: err.Error()}
	}
	return &wizard.ExternalServiceError{Service: "ingestion", Err: err}
}

func (s *WizardService) lock(id string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *WizardService) publish(ctx context.Context, event eventbus.WizardEvent) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, event.Type, event); err != nil {
		klog.Warningf("向导事件处理失败: type=%s, sessionID=%s, error=%v", event.Type, event.SessionID, err)
	}
}
