package draftgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/eduadocs/backend/internal/domain"
	"github.com/eduadocs/backend/internal/utils"
	"k8s.io/klog/v2"
)

// 错误定义
var (
	ErrNoKnowledgeSource = errors.New("未开启网络搜索且没有上传资料")
	ErrEmptyModelOutput  = errors.New("模型未返回任何内容")
)

// ChatModelGenerator 通过 ChatModel 生成草稿。
// 模板草稿作为用户消息发送，模型负责扩写。
type ChatModelGenerator struct {
	chatModel model.BaseChatModel
	templates map[domain.DocumentType]prompt.ChatTemplate
	opts      []model.Option
}

// NewChatModelGenerator 创建基于 ChatModel 的草稿生成器
func NewChatModelGenerator(chatModel model.BaseChatModel, opts ...model.Option) *ChatModelGenerator {
	return &ChatModelGenerator{
		chatModel: chatModel,
		templates: buildTemplates(),
		opts:      opts,
	}
}

// GenerateDraft 调用模型生成草稿
func (g *ChatModelGenerator) GenerateDraft(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if !req.Form.UseWebSearch && !req.DocumentsAvailable {
		return "", ErrNoKnowledgeSource
	}

	messages, err := renderMessages(ctx, g.templates, req)
	if err != nil {
		return "", err
	}

	klog.V(6).Infof("[draftgen.ChatModel] 调用模型: provider=%s, messages=%d", req.Form.LLMProvider, len(messages))
	resp, err := g.chatModel.Generate(ctx, messages, g.opts...)
	if err != nil {
		return "", fmt.Errorf("模型调用失败: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", ErrEmptyModelOutput
	}

	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		klog.V(6).Infof("[draftgen.ChatModel] token 用量: prompt=%d, completion=%d",
			resp.ResponseMeta.Usage.PromptTokens, resp.ResponseMeta.Usage.CompletionTokens)
	}
	return utils.ExtractMarkdown(resp.Content), nil
}
