package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/eduadocs/backend/internal/domain"
	"github.com/eduadocs/backend/internal/eventbus"
	"github.com/eduadocs/backend/internal/service"
	"github.com/eduadocs/backend/internal/service/ingest"
	"github.com/eduadocs/backend/internal/service/statemachine"
	"github.com/eduadocs/backend/internal/service/wizard"
	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
)

const (
	// maxUploadMemory multipart 表单在内存中保留的最大字节数，超出部分落到临时文件
	maxUploadMemory = 32 << 20
	// uploadSlack multipart 边界和表单字段占用的额外字节
	uploadSlack = 1 << 20
)

type WizardHandler struct {
	service       *service.WizardService
	bus           *eventbus.WizardEventBus
	defaultFormat domain.OutputFormat
	uploadLimits  ingest.Options
}

// NewWizardHandler defaultFormat 用于 generate 请求未指定格式的情况
func NewWizardHandler(service *service.WizardService, bus *eventbus.WizardEventBus, defaultFormat domain.OutputFormat) *WizardHandler {
	return &WizardHandler{
		service:       service,
		bus:           bus,
		defaultFormat: defaultFormat,
	}
}

// WithUploadLimits 在读取文件之前按上传限制拒绝过大的请求
func (h *WizardHandler) WithUploadLimits(limits ingest.Options) *WizardHandler {
	h.uploadLimits = limits
	return h
}

// SessionResponse 会话状态响应，附带当前步骤可用的动作。
// 文件内容不放在 JSON 中，通过 download 接口获取。
type SessionResponse struct {
	domain.SessionState
	AvailableActions []domain.Action `json:"available_actions"`
	Editable         bool            `json:"editable"`
}

// ContentRequest save / approve 的请求体
type ContentRequest struct {
	Content *string `json:"content"`
}

// GenerateRequest generate 的请求体
type GenerateRequest struct {
	Format domain.OutputFormat  `json:"format"`
	Style  *domain.StyleOptions `json:"style"`
}

// OptionsResponse 表单可选值
type OptionsResponse struct {
	DocumentTypes []domain.DocumentType `json:"document_types"`
	Providers     []domain.Provider     `json:"providers"`
	Languages     []domain.Language     `json:"languages"`
	Formats       []domain.OutputFormat `json:"formats"`
	DefaultFormat domain.OutputFormat   `json:"default_format"`
	Style         domain.StyleOptions   `json:"default_style"`
}

func (h *WizardHandler) response(state domain.SessionState) SessionResponse {
	resp := SessionResponse{
		SessionState:     state.Clone(),
		AvailableActions: h.service.AvailableActions(state),
		Editable:         statemachine.IsEditable(state.Step),
	}
	if resp.Artifact != nil {
		resp.Artifact.Content = nil
	}
	return resp
}

// Create 创建会话
func (h *WizardHandler) Create(c *gin.Context) {
	state, err := h.service.Create(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, h.response(state))
}

func (h *WizardHandler) Get(c *gin.Context) {
	state, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, state, err)
		return
	}
	c.JSON(http.StatusOK, h.response(state))
}

// Delete 结束会话
func (h *WizardHandler) Delete(c *gin.Context) {
	if err := h.service.End(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, domain.SessionState{}, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session ended"})
}

// Submit 提交表单并生成草稿
func (h *WizardHandler) Submit(c *gin.Context) {
	var form domain.FormData
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.apply(c, wizard.Command{Action: domain.ActionSubmit, Form: &form})
}

func (h *WizardHandler) Regenerate(c *gin.Context) {
	h.apply(c, wizard.Command{Action: domain.ActionRegenerate})
}

// Save 保存草稿编辑
func (h *WizardHandler) Save(c *gin.Context) {
	var req ContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Content == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	h.apply(c, wizard.Command{Action: domain.ActionSave, Content: req.Content})
}

// Approve 确认草稿，可同时提交最后一次编辑
func (h *WizardHandler) Approve(c *gin.Context) {
	var req ContentRequest
	// 请求体可以为空
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	h.apply(c, wizard.Command{Action: domain.ActionApprove, Content: req.Content})
}

func (h *WizardHandler) Back(c *gin.Context) {
	h.apply(c, wizard.Command{Action: domain.ActionBack})
}

// Generate 生成最终文件
func (h *WizardHandler) Generate(c *gin.Context) {
	var req GenerateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Format == "" {
		req.Format = h.defaultFormat
	}
	h.apply(c, wizard.Command{Action: domain.ActionGenerateDocument, Format: req.Format, Style: req.Style})
}

func (h *WizardHandler) Edit(c *gin.Context) {
	h.apply(c, wizard.Command{Action: domain.ActionEdit})
}

func (h *WizardHandler) StartOver(c *gin.Context) {
	h.apply(c, wizard.Command{Action: domain.ActionStartOver})
}

func (h *WizardHandler) CreateNew(c *gin.Context) {
	h.apply(c, wizard.Command{Action: domain.ActionCreateNew})
}

func (h *WizardHandler) ViewContent(c *gin.Context) {
	h.apply(c, wizard.Command{Action: domain.ActionViewContent})
}

// Upload 上传参考资料（files[]，仅 PDF/TXT）
func (h *WizardHandler) Upload(c *gin.Context) {
	limits := h.uploadLimits
	if limits.MaxFiles > 0 && limits.MaxFileBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(limits.MaxFiles)*limits.MaxFileBytes+uploadSlack)
	}
	if err := c.Request.ParseMultipartForm(maxUploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload exceeds the allowed size"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form: " + err.Error()})
		return
	}
	headers := c.Request.MultipartForm.File["files"]
	if len(headers) == 0 {
		headers = c.Request.MultipartForm.File["files[]"]
	}

	files := make([]ingest.File, 0, len(headers))
	for _, header := range headers {
		if limits.MaxFileBytes > 0 && header.Size > limits.MaxFileBytes {
			h.fail(c, domain.SessionState{}, &wizard.ValidationError{
				Fields:  []string{"files"},
				Message: fmt.Sprintf("%v: %s", ingest.ErrFileTooLarge, header.Filename),
			})
			return
		}
		data, err := readMultipartFile(header)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		files = append(files, ingest.File{Name: header.Filename, Data: data})
	}

	state, docs, err := h.service.Upload(c.Request.Context(), c.Param("id"), files)
	if err != nil {
		h.fail(c, state, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"documents": docs,
		"state":     h.response(state),
	})
}

func readMultipartFile(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("打开上传文件失败: %s: %w", header.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Documents 列出会话已上传的资料
func (h *WizardHandler) Documents(c *gin.Context) {
	docs, err := h.service.Documents(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, domain.SessionState{}, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

// Download 下载最终文件
func (h *WizardHandler) Download(c *gin.Context) {
	artifact, err := h.service.Artifact(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrNoArtifact) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.fail(c, domain.SessionState{}, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	c.Data(http.StatusOK, artifact.MimeType, artifact.Content)
}

// Events 以 SSE 推送会话事件，连接断开或会话结束时返回
func (h *WizardHandler) Events(c *gin.Context) {
	id := c.Param("id")
	if h.bus == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "event stream is disabled"})
		return
	}
	if _, err := h.service.Get(c.Request.Context(), id); err != nil {
		h.fail(c, domain.SessionState{}, err)
		return
	}

	events := make(chan eventbus.WizardEvent, 16)
	unsubscribe := eventbus.SubscribeAll(h.bus, func(ctx context.Context, event eventbus.WizardEvent) error {
		if event.SessionID != id {
			return nil
		}
		select {
		case events <- event:
		default:
			klog.V(6).Infof("事件推送队列已满，丢弃事件: sessionID=%s, type=%s", id, event.Type)
		}
		return nil
	})
	defer unsubscribe()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"time": time.Now().Unix()})
			return true
		case event := <-events:
			c.SSEvent(string(event.Type), gin.H{
				"action": event.Action,
				"from":   event.From,
				"to":     event.To,
				"error":  event.Error,
			})
			return event.Type != eventbus.WizardEventSessionEnded
		}
	})
}

// Options 表单下拉框的可选值
func (h *WizardHandler) Options(c *gin.Context) {
	c.JSON(http.StatusOK, OptionsResponse{
		DocumentTypes: domain.DocumentTypes,
		Providers:     domain.Providers,
		Languages:     domain.Languages,
		Formats:       domain.OutputFormats,
		DefaultFormat: h.defaultFormat,
		Style:         domain.DefaultStyleOptions(),
	})
}

func (h *WizardHandler) apply(c *gin.Context, cmd wizard.Command) {
	state, err := h.service.Apply(c.Request.Context(), c.Param("id"), cmd)
	if err != nil {
		h.fail(c, state, err)
		return
	}
	c.JSON(http.StatusOK, h.response(state))
}

// fail 把向导错误映射为 HTTP 状态码，会话存在时一并返回未改变的状态
func (h *WizardHandler) fail(c *gin.Context, state domain.SessionState, err error) {
	var transitionErr *statemachine.InvalidStateTransitionError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		status = http.StatusNotFound
	case wizard.IsValidation(err):
		status = http.StatusBadRequest
	case errors.As(err, &transitionErr), wizard.IsPrecondition(err):
		status = http.StatusConflict
	case wizard.IsExternal(err):
		status = http.StatusBadGateway
	}

	body := gin.H{"error": err.Error()}
	if state.ID != "" {
		body["state"] = h.response(state)
	}
	if status == http.StatusInternalServerError {
		klog.Errorf("请求处理失败: path=%s, error=%v", c.FullPath(), err)
	}
	c.JSON(status, body)
}

// RegisterRoutes 注册向导相关路由
func (h *WizardHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/options", h.Options)

	sessions := api.Group("/sessions")
	{
		sessions.POST("", h.Create)
		sessions.GET("/:id", h.Get)
		sessions.DELETE("/:id", h.Delete)
		sessions.GET("/:id/events", h.Events)
		sessions.GET("/:id/documents", h.Documents)
		sessions.POST("/:id/documents", h.Upload)
		sessions.POST("/:id/submit", h.Submit)
		sessions.POST("/:id/regenerate", h.Regenerate)
		sessions.POST("/:id/save", h.Save)
		sessions.POST("/:id/approve", h.Approve)
		sessions.POST("/:id/back", h.Back)
		sessions.POST("/:id/generate", h.Generate)
		sessions.POST("/:id/edit", h.Edit)
		sessions.POST("/:id/start-over", h.StartOver)
		sessions.POST("/:id/create-new", h.CreateNew)
		sessions.POST("/:id/view-content", h.ViewContent)
		sessions.GET("/:id/download", h.Download)
	}
}
