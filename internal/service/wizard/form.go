package wizard

import (
	"fmt"
	"strings"

	"github.com/eduadocs/backend/internal/domain"
)

// 表单缺省值
const (
	DefaultAudience = "General"
)

// NormalizeForm 去除首尾空白并校验表单。
// subject 和 topic 为必填项；其他枚举字段为空时取默认值。
func NormalizeForm(input domain.FormData) (domain.FormData, error) {
	form := input
	form.Subject = strings.TrimSpace(form.Subject)
	form.Topic = strings.TrimSpace(form.Topic)
	form.Details = strings.TrimSpace(form.Details)
	form.Audience = strings.TrimSpace(form.Audience)
	form.Context = strings.TrimSpace(form.Context)

	var missing []string
	if form.Subject == "" {
		missing = append(missing, "subject")
	}
	if form.Topic == "" {
		missing = append(missing, "topic")
	}
	if len(missing) > 0 {
		return input, &ValidationError{Fields: missing, Message: "required fields are empty"}
	}

	if form.DocumentType == "" {
		form.DocumentType = domain.DocumentTypeSummary
	}
	if form.Language == "" {
		form.Language = domain.LanguageEnglish
	}
	if form.LLMProvider == "" {
		form.LLMProvider = domain.ProviderOpenAI
	}
	if form.Audience == "" {
		form.Audience = DefaultAudience
	}

	var invalid []string
	if !form.DocumentType.Valid() {
		invalid = append(invalid, "document_type")
	}
	if !form.Language.Valid() {
		invalid = append(invalid, "language")
	}
	if !form.LLMProvider.Valid() {
		invalid = append(invalid, "llm_provider")
	}
	if len(invalid) > 0 {
		return input, &ValidationError{
			Fields:  invalid,
			Message: fmt.Sprintf("unsupported option values (document_type=%q, language=%q, llm_provider=%q)", form.DocumentType, form.Language, form.LLMProvider),
		}
	}

	return form, nil
}
