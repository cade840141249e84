// Package draftgen 提供草稿生成策略。
//
// TemplateGenerator 只做确定性的模板渲染，不访问网络；
// ChatModelGenerator 把同一份提示词交给注入的 ChatModel，用于接入真实的生成服务。
package draftgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/eduadocs/backend/internal/domain"
	"k8s.io/klog/v2"
)

// 错误定义
var (
	ErrNoTemplateOutput = errors.New("模板未产生任何输出内容")
	ErrUnknownDocType   = errors.New("未知的文档类型")
)

const notSpecified = "not specified"

const draftHeader = `# {document_type}: {topic}

- Subject: {subject}
- Topic: {topic}
- Audience: {audience}
- Language: {language}
- Generated with: {llm_provider} ({model})
- Sources: {sources}

`

const summaryBody = `## Overview

This summary introduces {topic} within {subject} for a {audience} audience.

## Key Concepts

1. Definition of {topic} and where it fits in {subject}.
2. The main processes and terms a {audience} student should recognise.
3. Common misconceptions about {topic}.

## Requested Details

{details}

## Context

{context}

## Review Questions

- How would you explain {topic} in your own words?
- Which idea from {subject} does {topic} depend on?
`

const exerciseListBody = `## Instructions

Answer the following exercises about {topic} ({subject}). Target audience: {audience}.

## Exercises

1. Define {topic} and give one example.
2. Describe the steps involved in {topic}.
3. Compare {topic} with a related concept from {subject}.
4. Apply {topic} to a real-world situation.
5. Challenge: explain why {topic} matters for further study in {subject}.

## Requested Details

{details}

## Context

{context}
`

const exerciseCorrectionBody = `## Correction Guide

Worked solutions for exercises on {topic} ({subject}), written for a {audience} audience.

## Solutions

1. Definition: a complete answer names {topic} and gives a correct example.
2. Process: the answer lists each step of {topic} in order.
3. Comparison: the answer states one similarity and one difference.
4. Application: the answer links {topic} to an observable situation.
5. Challenge: the answer connects {topic} to later topics in {subject}.

## Grading Notes

{details}

## Context

{context}
`

const systemPrompt = `You are an assistant that writes educational documents. Write the document in {language}. ` +
	`Keep the structure of the draft and use Markdown.`

// TemplateGenerator 基于 eino 提示词模板渲染草稿
type TemplateGenerator struct {
	templates map[domain.DocumentType]prompt.ChatTemplate
}

// NewTemplateGenerator 创建模板草稿生成器
func NewTemplateGenerator() *TemplateGenerator {
	return &TemplateGenerator{
		templates: buildTemplates(),
	}
}

// GenerateDraft 渲染草稿，相同的表单总是得到相同的结果
func (g *TemplateGenerator) GenerateDraft(ctx context.Context, req domain.GenerationRequest) (string, error) {
	messages, err := renderMessages(ctx, g.templates, req)
	if err != nil {
		return "", err
	}

	// 最后一条用户消息即草稿正文
	draft := messages[len(messages)-1].Content
	if strings.TrimSpace(draft) == "" {
		return "", ErrNoTemplateOutput
	}
	klog.V(6).Infof("[draftgen.Template] 草稿渲染完成: type=%s, 长度=%d", req.Form.DocumentType, len(draft))
	return draft, nil
}

// buildTemplates 每种文档类型一套模板
func buildTemplates() map[domain.DocumentType]prompt.ChatTemplate {
	templates := make(map[domain.DocumentType]prompt.ChatTemplate, len(domain.DocumentTypes))
	for _, docType := range domain.DocumentTypes {
		templates[docType] = prompt.FromMessages(schema.FString,
			schema.SystemMessage(systemPrompt),
			schema.UserMessage(draftHeader+bodyFor(docType)),
		)
	}
	return templates
}

func bodyFor(docType domain.DocumentType) string {
	switch docType {
	case domain.DocumentTypeSummary:
		return summaryBody
	case domain.DocumentTypeExerciseList:
		return exerciseListBody
	case domain.DocumentTypeExerciseCorrection:
		return exerciseCorrectionBody
	}
	return ""
}

// renderMessages 用表单填充模板
func renderMessages(ctx context.Context, templates map[domain.DocumentType]prompt.ChatTemplate, req domain.GenerationRequest) ([]*schema.Message, error) {
	tpl, ok := templates[req.Form.DocumentType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDocType, req.Form.DocumentType)
	}

	messages, err := tpl.Format(ctx, variables(req))
	if err != nil {
		return nil, fmt.Errorf("渲染提示词模板失败: %w", err)
	}
	if len(messages) == 0 {
		return nil, ErrNoTemplateOutput
	}
	return messages, nil
}

// variables 模板变量，空值统一替换为占位文本
func variables(req domain.GenerationRequest) map[string]any {
	form := req.Form
	return map[string]any{
		"document_type": string(form.DocumentType),
		"subject":       form.Subject,
		"topic":         form.Topic,
		"audience":      orDefault(form.Audience, "General"),
		"details":       orDefault(form.Details, notSpecified),
		"context":       orDefault(form.Context, notSpecified),
		"language":      orDefault(string(form.Language), string(domain.LanguageEnglish)),
		"llm_provider":  string(form.LLMProvider),
		"model":         orDefault(form.LLMProvider.DefaultModel(), notSpecified),
		"sources":       sources(req),
	}
}

func sources(req domain.GenerationRequest) string {
	var parts []string
	if req.Form.UseWebSearch {
		parts = append(parts, "web search")
	}
	if req.DocumentsAvailable {
		parts = append(parts, "uploaded documents")
	}
	if len(parts) == 0 {
		return "model knowledge only"
	}
	return strings.Join(parts, ", ")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
