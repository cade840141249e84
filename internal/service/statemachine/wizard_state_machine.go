package statemachine

import (
	"fmt"

	"github.com/eduadocs/backend/internal/domain"
	"k8s.io/klog/v2"
)

// WizardTransition 由当前步骤和触发动作唯一确定一条迁移
type WizardTransition struct {
	From   domain.Step
	Action domain.Action
}

// WizardStateMachine 向导状态机
type WizardStateMachine struct {
	// 定义所有合法的状态迁移及其目标步骤
	allowedTransitions map[WizardTransition]domain.Step
}

// NewWizardStateMachine 创建新的向导状态机
func NewWizardStateMachine() *WizardStateMachine {
	sm := &WizardStateMachine{
		allowedTransitions: make(map[WizardTransition]domain.Step),
	}

	// input -> draft -> approved -> final
	// draft -> input，approved -> draft/input，final -> approved/input
	transitions := []struct {
		From   domain.Step
		Action domain.Action
		To     domain.Step
	}{
		// 表单提交
		{domain.StepInput, domain.ActionSubmit, domain.StepDraft},

		// 草稿审阅
		{domain.StepDraft, domain.ActionRegenerate, domain.StepDraft},
		{domain.StepDraft, domain.ActionSave, domain.StepDraft},
		{domain.StepDraft, domain.ActionApprove, domain.StepApproved},
		{domain.StepDraft, domain.ActionBack, domain.StepInput},

		// 已确认
		{domain.StepApproved, domain.ActionGenerateDocument, domain.StepFinal},
		{domain.StepApproved, domain.ActionEdit, domain.StepDraft},
		{domain.StepApproved, domain.ActionStartOver, domain.StepInput},

		// 已生成
		{domain.StepFinal, domain.ActionCreateNew, domain.StepInput},
		{domain.StepFinal, domain.ActionViewContent, domain.StepApproved},
	}

	for _, t := range transitions {
		sm.allowedTransitions[WizardTransition{From: t.From, Action: t.Action}] = t.To
	}

	return sm
}

// Target 返回迁移的目标步骤
func (sm *WizardStateMachine) Target(from domain.Step, action domain.Action) (domain.Step, bool) {
	to, ok := sm.allowedTransitions[WizardTransition{From: from, Action: action}]
	return to, ok
}

// CanTransition 检查动作在当前步骤是否可用
func (sm *WizardStateMachine) CanTransition(from domain.Step, action domain.Action) bool {
	_, ok := sm.Target(from, action)
	return ok
}

// ValidateTransition 验证状态迁移并返回目标步骤
func (sm *WizardStateMachine) ValidateTransition(from domain.Step, action domain.Action) (domain.Step, error) {
	to, ok := sm.Target(from, action)
	if !ok {
		return from, &InvalidStateTransitionError{
			From:   string(from),
			Action: string(action),
		}
	}
	return to, nil
}

// Transition 执行状态迁移（带日志）
func (sm *WizardStateMachine) Transition(from domain.Step, action domain.Action, sessionID string) (domain.Step, error) {
	to, err := sm.ValidateTransition(from, action)
	if err != nil {
		klog.V(6).Infof("向导状态迁移被拒绝: sessionID=%s, %s --%s-->, error=%v",
			sessionID, from, action, err)
		return from, err
	}

	klog.V(6).Infof("向导状态迁移成功: sessionID=%s, %s --%s--> %s", sessionID, from, action, to)
	return to, nil
}

// AvailableActions 当前步骤下可触发的动作，按界面展示顺序排列
func (sm *WizardStateMachine) AvailableActions(from domain.Step) []domain.Action {
	var actions []domain.Action
	for _, action := range domain.Actions {
		if sm.CanTransition(from, action) {
			actions = append(actions, action)
		}
	}
	return actions
}

// InvalidStateTransitionError 无效的状态迁移错误
type InvalidStateTransitionError struct {
	From   string
	Action string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid wizard transition: action %q is not allowed in step %q", e.Action, e.From)
}

// IsEditable 判断当前步骤是否允许修改草稿
func IsEditable(step domain.Step) bool {
	return step == domain.StepDraft
}

// HasArtifact 判断当前步骤是否可以下载文件
func HasArtifact(step domain.Step) bool {
	return step == domain.StepFinal
}
