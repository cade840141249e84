package domain

import (
	"fmt"
	"strings"
	"unicode"
)

// DocumentType 要生成的教学文档类型
type DocumentType string

const (
	DocumentTypeSummary            DocumentType = "Summary"             // 知识总结
	DocumentTypeExerciseList       DocumentType = "Exercise List"       // 练习题
	DocumentTypeExerciseCorrection DocumentType = "Exercise Correction" // 练习讲评
)

var DocumentTypes = []DocumentType{
	DocumentTypeSummary,
	DocumentTypeExerciseList,
	DocumentTypeExerciseCorrection,
}

func (t DocumentType) Valid() bool {
	switch t {
	case DocumentTypeSummary, DocumentTypeExerciseList, DocumentTypeExerciseCorrection:
		return true
	}
	return false
}

// Provider 表单中选择的模型服务商，仅作为配置记录
type Provider string

const (
	ProviderOpenAI    Provider = "OpenAI"
	ProviderAnthropic Provider = "Anthropic"
	ProviderGemini    Provider = "Google Gemini"
	ProviderOllama    Provider = "Ollama"
)

var Providers = []Provider{ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderOllama}

func (p Provider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderOllama:
		return true
	}
	return false
}

// DefaultModel 服务商对应的默认模型名
func (p Provider) DefaultModel() string {
	switch p {
	case ProviderOpenAI:
		return "gpt-4.1-nano"
	case ProviderAnthropic:
		return "claude-3-5-haiku-latest"
	case ProviderGemini:
		return "gemini-2.0-flash"
	case ProviderOllama:
		return "llama3.1"
	}
	return ""
}

// Language 输出语言
type Language string

const (
	LanguageEnglish    Language = "English"
	LanguagePortuguese Language = "Português"
	LanguageSpanish    Language = "Español"
	LanguageFrench     Language = "Français"
	LanguageJapanese   Language = "日本語"
	LanguageMandarin   Language = "普通话"
	LanguageRussian    Language = "Русский"
	LanguageHindi      Language = "हिंदी"
)

var Languages = []Language{
	LanguageEnglish,
	LanguagePortuguese,
	LanguageSpanish,
	LanguageFrench,
	LanguageJapanese,
	LanguageMandarin,
	LanguageRussian,
	LanguageHindi,
}

func (l Language) Valid() bool {
	for _, lang := range Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// OutputFormat 导出文件格式
type OutputFormat string

const (
	FormatText     OutputFormat = "txt"
	FormatMarkdown OutputFormat = "md"
	FormatHTML     OutputFormat = "html"
	FormatZip      OutputFormat = "zip"
)

var OutputFormats = []OutputFormat{FormatText, FormatMarkdown, FormatHTML, FormatZip}

func (f OutputFormat) Valid() bool {
	switch f {
	case FormatText, FormatMarkdown, FormatHTML, FormatZip:
		return true
	}
	return false
}

// Extension 文件扩展名
func (f OutputFormat) Extension() string {
	return string(f)
}

// MimeType 下载时使用的 Content-Type
func (f OutputFormat) MimeType() string {
	switch f {
	case FormatText:
		return "text/plain; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	case FormatZip:
		return "application/zip"
	}
	return "application/octet-stream"
}

// ArtifactFilename 生成 {subject}_{topic}.<ext> 格式的文件名
func ArtifactFilename(subject, topic string, format OutputFormat) string {
	return fmt.Sprintf("%s_%s.%s", filenamePart(subject), filenamePart(topic), format.Extension())
}

// filenamePart 去掉路径分隔符和控制字符，保留空格
func filenamePart(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || unicode.IsControl(r) {
			return '-'
		}
		return r
	}, s)
	if s == "" {
		return "untitled"
	}
	return s
}
