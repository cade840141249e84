package domain

import (
	"fmt"
	"time"
)

// Step 向导当前所处的步骤
type Step string

const (
	StepInput    Step = "input"    // 填写表单（初始态/重置态）
	StepDraft    Step = "draft"    // 审阅草稿
	StepApproved Step = "approved" // 内容已确认，等待导出
	StepFinal    Step = "final"    // 文档已生成，可下载
)

// Steps 按流程顺序列出所有步骤
var Steps = []Step{StepInput, StepDraft, StepApproved, StepFinal}

// Valid 判断步骤是否为已定义的取值
func (s Step) Valid() bool {
	switch s {
	case StepInput, StepDraft, StepApproved, StepFinal:
		return true
	}
	return false
}

// Action 用户在向导中可触发的动作
type Action string

const (
	ActionSubmit           Action = "submit"            // 提交表单
	ActionRegenerate       Action = "regenerate"        // 重新生成草稿
	ActionSave             Action = "save"              // 保存草稿修改
	ActionApprove          Action = "approve"           // 确认草稿
	ActionBack             Action = "back"              // 返回表单
	ActionGenerateDocument Action = "generate_document" // 生成下载文件
	ActionEdit             Action = "edit"              // 回到草稿继续编辑
	ActionStartOver        Action = "start_over"        // 重新开始
	ActionCreateNew        Action = "create_new"        // 新建文档
	ActionViewContent      Action = "view_content"      // 查看已确认内容
)

// Actions 所有动作，顺序即界面上的展示顺序
var Actions = []Action{
	ActionSubmit,
	ActionRegenerate,
	ActionSave,
	ActionApprove,
	ActionBack,
	ActionGenerateDocument,
	ActionEdit,
	ActionStartOver,
	ActionCreateNew,
	ActionViewContent,
}

// Valid 判断动作是否为已定义的取值
func (a Action) Valid() bool {
	for _, action := range Actions {
		if a == action {
			return true
		}
	}
	return false
}

// IsReset 判断动作是否会清空会话数据
func (a Action) IsReset() bool {
	return a == ActionStartOver || a == ActionCreateNew
}

// FormData 用户在输入步骤提交的表单
type FormData struct {
	DocumentType DocumentType `json:"document_type" yaml:"document_type"`
	Subject      string       `json:"subject" yaml:"subject"`
	Topic        string       `json:"topic" yaml:"topic"`
	Details      string       `json:"details" yaml:"details"`
	Audience     string       `json:"audience" yaml:"audience"`
	Context      string       `json:"context" yaml:"context"`
	Language     Language     `json:"language" yaml:"language"`
	LLMProvider  Provider     `json:"llm_provider" yaml:"llm_provider"`
	UseWebSearch bool         `json:"use_web_search" yaml:"use_web_search"`
}

// Artifact 导出得到的可下载文件
type Artifact struct {
	Filename  string       `json:"filename"`
	MimeType  string       `json:"mime_type"`
	Format    OutputFormat `json:"format"`
	Size      int          `json:"size"`
	Content   []byte       `json:"content,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// SessionState 单个会话的向导状态，只在会话生命周期内有效
type SessionState struct {
	ID                 string    `json:"id"`
	Step               Step      `json:"generation_step"`
	Form               *FormData `json:"form_data,omitempty"`
	GeneratedDraft     string    `json:"generated_draft"`
	ApprovedContent    string    `json:"approved_content"`
	DocumentsAvailable bool      `json:"documents_available"`
	Artifact           *Artifact `json:"artifact,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// NewSessionState 创建处于输入步骤的空会话
func NewSessionState(id string, now time.Time) SessionState {
	return SessionState{
		ID:        id,
		Step:      StepInput,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone 深拷贝会话状态，调用方修改副本不会影响原值
func (s SessionState) Clone() SessionState {
	out := s
	if s.Form != nil {
		form := *s.Form
		out.Form = &form
	}
	if s.Artifact != nil {
		artifact := *s.Artifact
		artifact.Content = append([]byte(nil), s.Artifact.Content...)
		out.Artifact = &artifact
	}
	return out
}

// Reset 清空表单与生成物，回到输入步骤。
// 已上传的资料属于会话本身，不随重置清除。
func (s SessionState) Reset(now time.Time) SessionState {
	out := NewSessionState(s.ID, s.CreatedAt)
	out.DocumentsAvailable = s.DocumentsAvailable
	out.UpdatedAt = now
	return out
}

// String 便于日志输出
func (s SessionState) String() string {
	return fmt.Sprintf("session(id=%s, step=%s, draft=%d, approved=%d)",
		s.ID, s.Step, len(s.GeneratedDraft), len(s.ApprovedContent))
}

// GenerationRequest 草稿生成的输入
type GenerationRequest struct {
	Form               FormData
	DocumentsAvailable bool
}

// StyleOptions 导出样式选项
type StyleOptions struct {
	IncludeTitle    bool   `json:"include_title" yaml:"include_title"`
	IncludeMetadata bool   `json:"include_metadata" yaml:"include_metadata"`
	FontFamily      string `json:"font_family" yaml:"font_family"`
	FontSize        int    `json:"font_size" yaml:"font_size"`
}

// DefaultStyleOptions 默认导出样式
func DefaultStyleOptions() StyleOptions {
	return StyleOptions{
		IncludeTitle:    true,
		IncludeMetadata: true,
		FontFamily:      "Arial",
		FontSize:        12,
	}
}

// ExportRequest 文档导出的输入
type ExportRequest struct {
	Content string
	Form    FormData
	Format  OutputFormat
	Style   StyleOptions
}

// UploadedDocument 已接收的上传资料
type UploadedDocument struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int    `json:"size"`
}
