// Package wizard 实现文档生成向导：input -> draft -> approved -> final。
//
// 每个动作接收当前会话状态并返回新的状态，控制器本身不持有任何会话数据。
// 出错时返回的状态与传入的状态相同。
package wizard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eduadocs/backend/internal/domain"
	"github.com/eduadocs/backend/internal/service/statemachine"
	"k8s.io/klog/v2"
)

// DraftGenerator 草稿生成能力，可替换为真实的模型服务
type DraftGenerator interface {
	GenerateDraft(ctx context.Context, req domain.GenerationRequest) (string, error)
}

// Exporter 文档导出能力
type Exporter interface {
	Export(ctx context.Context, req domain.ExportRequest) (*domain.Artifact, error)
}

// Command 一次用户动作及其参数
type Command struct {
	Action  domain.Action        `json:"action"`
	Form    *domain.FormData     `json:"form,omitempty"`
	Content *string              `json:"content,omitempty"`
	Format  domain.OutputFormat  `json:"format,omitempty"`
	Style   *domain.StyleOptions `json:"style,omitempty"`
}

// Controller 向导控制器
type Controller struct {
	sm        *statemachine.WizardStateMachine
	generator DraftGenerator
	exporter  Exporter
	now       func() time.Time
}

// NewController 创建向导控制器
func NewController(generator DraftGenerator, exporter Exporter) *Controller {
	return &Controller{
		sm:        statemachine.NewWizardStateMachine(),
		generator: generator,
		exporter:  exporter,
		now:       time.Now,
	}
}

// AvailableActions 当前步骤下可用的动作
func (c *Controller) AvailableActions(state domain.SessionState) []domain.Action {
	return c.sm.AvailableActions(state.Step)
}

// Apply 按动作类型分发
func (c *Controller) Apply(ctx context.Context, state domain.SessionState, cmd Command) (domain.SessionState, error) {
	switch cmd.Action {
	case domain.ActionSubmit:
		if cmd.Form == nil {
			return state, &ValidationError{Fields: []string{"subject", "topic"}, Message: "form data is required"}
		}
		return c.Submit(ctx, state, *cmd.Form)
	case domain.ActionRegenerate:
		return c.Regenerate(ctx, state)
	case domain.ActionSave:
		if cmd.Content == nil {
			return state, &ValidationError{Fields: []string{"content"}, Message: "edited content is required"}
		}
		return c.SaveEdits(ctx, state, *cmd.Content)
	case domain.ActionApprove:
		return c.Approve(ctx, state, cmd.Content)
	case domain.ActionBack:
		return c.Back(ctx, state)
	case domain.ActionGenerateDocument:
		style := domain.DefaultStyleOptions()
		if cmd.Style != nil {
			style = *cmd.Style
		}
		return c.GenerateDocument(ctx, state, cmd.Format, style)
	case domain.ActionEdit:
		return c.EditContent(ctx, state)
	case domain.ActionStartOver:
		return c.StartOver(ctx, state)
	case domain.ActionCreateNew:
		return c.CreateNew(ctx, state)
	case domain.ActionViewContent:
		return c.ViewContent(ctx, state)
	}
	return state, &ValidationError{Fields: []string{"action"}, Message: fmt.Sprintf("unknown action %q", cmd.Action)}
}

// Submit 校验表单并生成第一版草稿
func (c *Controller) Submit(ctx context.Context, state domain.SessionState, input domain.FormData) (domain.SessionState, error) {
	to, err := c.sm.Transition(state.Step, domain.ActionSubmit, state.ID)
	if err != nil {
		return state, err
	}

	form, err := NormalizeForm(input)
	if err != nil {
		klog.V(6).Infof("表单校验失败: sessionID=%s, error=%v", state.ID, err)
		return state, err
	}

	next := state.Clone()
	next.Form = &form
	draft, err := c.generate(ctx, next)
	if err != nil {
		return state, err
	}
	next.GeneratedDraft = draft
	next.ApprovedContent = ""
	next.Artifact = nil

	return c.enter(state, next, to)
}

// Regenerate 用当前表单重新生成草稿，覆盖已有草稿
func (c *Controller) Regenerate(ctx context.Context, state domain.SessionState) (domain.SessionState, error) {
	to, err := c.sm.Transition(state.Step, domain.ActionRegenerate, state.ID)
	if err != nil {
		return state, err
	}
	if state.Form == nil {
		return state, &PreconditionError{Step: to, Reason: "form data is missing"}
	}

	next := state.Clone()
	draft, err := c.generate(ctx, next)
	if err != nil {
		return state, err
	}
	next.GeneratedDraft = draft

	return c.enter(state, next, to)
}

// SaveEdits 用编辑后的文本替换草稿
func (c *Controller) SaveEdits(_ context.Context, state domain.SessionState, content string) (domain.SessionState, error) {
	to, err := c.sm.Transition(state.Step, domain.ActionSave, state.ID)
	if err != nil {
		return state, err
	}

	next := state.Clone()
	next.GeneratedDraft = content
	return c.enter(state, next, to)
}

// Approve 确认草稿。content 非空时先保存编辑内容，再以草稿作为确认内容。
func (c *Controller) Approve(_ context.Context, state domain.SessionState, content *string) (domain.SessionState, error) {
	to, err := c.sm.Transition(state.Step, domain.ActionApprove, state.ID)
	if err != nil {
		return state, err
	}

	next := state.Clone()
	if content != nil {
		next.GeneratedDraft = *content
	}
	if strings.TrimSpace(next.GeneratedDraft) == "" {
		return state, &ValidationError{Fields: []string{"content"}, Message: "cannot approve empty content"}
	}
	next.ApprovedContent = next.GeneratedDraft
	next.Artifact = nil

	return c.enter(state, next, to)
}

// Back 从草稿返回表单，保留已有数据
func (c *Controller) Back(_ context.Context, state domain.SessionState) (domain.SessionState, error) {
	return c.move(state, domain.ActionBack)
}

// GenerateDocument 根据确认内容导出可下载文件
func (c *Controller) GenerateDocument(ctx context.Context, state domain.SessionState, format domain.OutputFormat, style domain.StyleOptions) (domain.SessionState, error) {
	to, err := c.sm.Transition(state.Step, domain.ActionGenerateDocument, state.ID)
	if err != nil {
		return state, err
	}
	if !format.Valid() {
		return state, &ValidationError{Fields: []string{"format"}, Message: fmt.Sprintf("unsupported output format %q", format)}
	}
	if err := checkEntry(to, state); err != nil {
		return state, err
	}

	artifact, err := c.exporter.Export(ctx, domain.ExportRequest{
		Content: state.ApprovedContent,
		Form:    *state.Form,
		Format:  format,
		Style:   style,
	})
	if err != nil {
		klog.Errorf("文档导出失败: sessionID=%s, format=%s, error=%v", state.ID, format, err)
		return state, &ExternalServiceError{Service: "export", Err: err}
	}
	if artifact == nil || len(artifact.Content) == 0 {
		return state, &ExternalServiceError{Service: "export", Err: fmt.Errorf("export produced no content")}
	}

	next := state.Clone()
	next.Artifact = artifact
	return c.enter(state, next, to)
}

// EditContent 从已确认返回草稿编辑
func (c *Controller) EditContent(_ context.Context, state domain.SessionState) (domain.SessionState, error) {
	return c.move(state, domain.ActionEdit)
}

// StartOver 在已确认步骤放弃当前文档
func (c *Controller) StartOver(_ context.Context, state domain.SessionState) (domain.SessionState, error) {
	return c.reset(state, domain.ActionStartOver)
}

// CreateNew 在已生成步骤开始新文档
func (c *Controller) CreateNew(_ context.Context, state domain.SessionState) (domain.SessionState, error) {
	return c.reset(state, domain.ActionCreateNew)
}

// ViewContent 从已生成返回查看确认内容
func (c *Controller) ViewContent(_ context.Context, state domain.SessionState) (domain.SessionState, error) {
	return c.move(state, domain.ActionViewContent)
}

// move 无副作用的迁移
func (c *Controller) move(state domain.SessionState, action domain.Action) (domain.SessionState, error) {
	to, err := c.sm.Transition(state.Step, action, state.ID)
	if err != nil {
		return state, err
	}
	return c.enter(state, state.Clone(), to)
}

func (c *Controller) reset(state domain.SessionState, action domain.Action) (domain.SessionState, error) {
	to, err := c.sm.Transition(state.Step, action, state.ID)
	if err != nil {
		return state, err
	}
	next := state.Reset(c.now())
	next.Step = to
	klog.V(6).Infof("会话已重置: sessionID=%s", state.ID)
	return next, nil
}

// enter 校验目标步骤的前置条件后提交迁移
func (c *Controller) enter(prev, next domain.SessionState, to domain.Step) (domain.SessionState, error) {
	if err := checkEntry(to, next); err != nil {
		klog.Warningf("进入步骤前置条件不满足: sessionID=%s, step=%s, error=%v", prev.ID, to, err)
		return prev, err
	}
	next.Step = to
	next.UpdatedAt = c.now()
	return next, nil
}

func (c *Controller) generate(ctx context.Context, state domain.SessionState) (string, error) {
	draft, err := c.generator.GenerateDraft(ctx, domain.GenerationRequest{
		Form:               *state.Form,
		DocumentsAvailable: state.DocumentsAvailable,
	})
	if err != nil {
		klog.Errorf("草稿生成失败: sessionID=%s, error=%v", state.ID, err)
		return "", &ExternalServiceError{Service: "generation", Err: err}
	}
	klog.V(6).Infof("草稿生成完成: sessionID=%s, 长度=%d", state.ID, len(draft))
	return draft, nil
}

// checkEntry 各步骤的进入条件
func checkEntry(to domain.Step, state domain.SessionState) error {
	switch to {
	case domain.StepInput:
		return nil
	case domain.StepDraft:
		if state.Form == nil {
			return &PreconditionError{Step: to, Reason: "form data is missing"}
		}
		return nil
	case domain.StepApproved:
		if state.Form == nil {
			return &PreconditionError{Step: to, Reason: "form data is missing"}
		}
		if state.ApprovedContent == "" {
			return &PreconditionError{Step: to, Reason: "approved content is empty"}
		}
		return nil
	case domain.StepFinal:
		if state.Form == nil {
			return &PreconditionError{Step: to, Reason: "form data is missing"}
		}
		if state.ApprovedContent == "" {
			return &PreconditionError{Step: to, Reason: "approved content is empty"}
		}
		return nil
	}
	return &PreconditionError{Step: to, Reason: "unknown step"}
}
