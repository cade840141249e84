package subscriber

import (
	"context"
	"sync"

	"github.com/eduadocs/backend/internal/domain"
	"github.com/eduadocs/backend/internal/eventbus"
	"k8s.io/klog/v2"
)

// WizardStats 向导运行统计
type WizardStats struct {
	SessionsCreated    int                         `json:"sessions_created"`
	SessionsEnded      int                         `json:"sessions_ended"`
	ActionsRejected    int                         `json:"actions_rejected"`
	DocumentsGenerated int                         `json:"documents_generated"`
	Uploads            int                         `json:"uploads"`
	Arrivals           map[domain.Step]int         `json:"arrivals"`
	Formats            map[domain.OutputFormat]int `json:"formats"`
}

// WizardEventSubscriber 记录向导事件日志并汇总统计
type WizardEventSubscriber struct {
	mutex sync.Mutex
	stats WizardStats
}

func NewWizardEventSubscriber() *WizardEventSubscriber {
	return &WizardEventSubscriber{
		stats: WizardStats{
			Arrivals: make(map[domain.Step]int),
			Formats:  make(map[domain.OutputFormat]int),
		},
	}
}

func (s *WizardEventSubscriber) Register(bus *eventbus.WizardEventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(eventbus.WizardEventSessionCreated, s.handleSessionCreated)
	bus.Subscribe(eventbus.WizardEventStepChanged, s.handleStepChanged)
	bus.Subscribe(eventbus.WizardEventActionRejected, s.handleActionRejected)
	bus.Subscribe(eventbus.WizardEventDocumentsUploaded, s.handleDocumentsUploaded)
	bus.Subscribe(eventbus.WizardEventSessionEnded, s.handleSessionEnded)
}

// Stats 返回统计快照
func (s *WizardEventSubscriber) Stats() WizardStats {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out := s.stats
	out.Arrivals = make(map[domain.Step]int, len(s.stats.Arrivals))
	for k, v := range s.stats.Arrivals {
		out.Arrivals[k] = v
	}
	out.Formats = make(map[domain.OutputFormat]int, len(s.stats.Formats))
	for k, v := range s.stats.Formats {
		out.Formats[k] = v
	}
	return out
}

func (s *WizardEventSubscriber) handleSessionCreated(ctx context.Context, event eventbus.WizardEvent) error {
	s.mutex.Lock()
	s.stats.SessionsCreated++
	s.stats.Arrivals[event.To]++
	s.mutex.Unlock()

	klog.V(6).Infof("会话创建事件处理成功: sessionID=%s", event.SessionID)
	return nil
}

// handleStepChanged 处理步骤迁移事件
func (s *WizardEventSubscriber) handleStepChanged(ctx context.Context, event eventbus.WizardEvent) error {
	s.mutex.Lock()
	s.stats.Arrivals[event.To]++
	if event.Action == domain.ActionGenerateDocument && event.State.Artifact != nil {
		s.stats.DocumentsGenerated++
		s.stats.Formats[event.State.Artifact.Format]++
	}
	s.mutex.Unlock()

	klog.V(6).Infof("步骤迁移事件处理成功: sessionID=%s, action=%s, %s -> %s", event.SessionID, event.Action, event.From, event.To)
	return nil
}

func (s *WizardEventSubscriber) handleActionRejected(ctx context.Context, event eventbus.WizardEvent) error {
	s.mutex.Lock()
	s.stats.ActionsRejected++
	s.mutex.Unlock()

	klog.V(6).Infof("动作被拒绝事件处理成功: sessionID=%s, action=%s, step=%s, error=%s", event.SessionID, event.Action, event.From, event.Error)
	return nil
}

func (s *WizardEventSubscriber) handleDocumentsUploaded(ctx context.Context, event eventbus.WizardEvent) error {
	s.mutex.Lock()
	s.stats.Uploads++
	s.mutex.Unlock()

	klog.V(6).Infof("资料上传事件处理成功: sessionID=%s, documentsAvailable=%t", event.SessionID, event.State.DocumentsAvailable)
	return nil
}

func (s *WizardEventSubscriber) handleSessionEnded(ctx context.Context, event eventbus.WizardEvent) error {
	s.mutex.Lock()
	s.stats.SessionsEnded++
	s.mutex.Unlock()

	klog.V(6).Infof("会话结束事件处理成功: sessionID=%s", event.SessionID)
	return nil
}
