// Package exporter 把确认后的内容导出为可下载文件。
package exporter

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"regexp"
	"strings"
	"time"

	"github.com/eduadocs/backend/internal/domain"
	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// 错误定义
var (
	ErrEmptyContent      = errors.New("导出内容为空")
	ErrUnsupportedFormat = errors.New("不支持的导出格式")
)

const (
	minFontSize = 8
	maxFontSize = 72
)

// fontFamilyPattern 字体名只允许字母数字、空格、逗号、连字符和引号
var fontFamilyPattern = regexp.MustCompile(`^[\p{L}\p{N} ,'\-]+$`)

// Service 文档导出服务
type Service struct {
	policy *bluemonday.Policy
	now    func() time.Time
}

// New 创建导出服务
func New() *Service {
	return &Service{
		policy: bluemonday.UGCPolicy(),
		now:    time.Now,
	}
}

// Export 按格式生成文件内容与文件名
func (s *Service) Export(ctx context.Context, req domain.ExportRequest) (*domain.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrEmptyContent
	}

	var (
		data []byte
		err  error
	)
	switch req.Format {
	case domain.FormatText:
		data = s.renderText(req)
	case domain.FormatMarkdown:
		data = s.renderMarkdown(req)
	case domain.FormatHTML:
		data, err = s.renderHTML(req)
	case domain.FormatZip:
		data, err = s.renderZip(req)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("导出 %s 失败: %w", req.Format, err)
	}

	artifact := &domain.Artifact{
		Filename:  domain.ArtifactFilename(req.Form.Subject, req.Form.Topic, req.Format),
		MimeType:  req.Format.MimeType(),
		Format:    req.Format,
		Size:      len(data),
		Content:   data,
		CreatedAt: s.now(),
	}
	klog.V(6).Infof("[exporter.Export] 导出完成: filename=%s, size=%d", artifact.Filename, artifact.Size)
	return artifact, nil
}

func title(form domain.FormData) string {
	return fmt.Sprintf("%s: %s", form.Subject, form.Topic)
}

// metadataLines 元信息，按固定顺序输出
func metadataLines(form domain.FormData) [][2]string {
	return [][2]string{
		{"Document type", string(form.DocumentType)},
		{"Subject", form.Subject},
		{"Topic", form.Topic},
		{"Audience", form.Audience},
		{"Language", string(form.Language)},
	}
}

func (s *Service) renderText(req domain.ExportRequest) []byte {
	var buf bytes.Buffer
	if req.Style.IncludeTitle {
		t := title(req.Form)
		buf.WriteString(t + "\n")
		buf.WriteString(strings.Repeat("=", len([]rune(t))) + "\n\n")
	}
	if req.Style.IncludeMetadata {
		for _, kv := range metadataLines(req.Form) {
			if kv[1] != "" {
				fmt.Fprintf(&buf, "%s: %s\n", kv[0], kv[1])
			}
		}
		buf.WriteString("\n")
	}
	buf.WriteString(req.Content)
	if !strings.HasSuffix(req.Content, "\n") {
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

func (s *Service) renderMarkdown(req domain.ExportRequest) []byte {
	var buf bytes.Buffer
	if req.Style.IncludeTitle {
		fmt.Fprintf(&buf, "# %s\n\n", title(req.Form))
	}
	if req.Style.IncludeMetadata {
		for _, kv := range metadataLines(req.Form) {
			if kv[1] != "" {
				fmt.Fprintf(&buf, "- **%s:** %s\n", kv[0], kv[1])
			}
		}
		buf.WriteString("\n")
	}
	buf.WriteString(req.Content)
	if !strings.HasSuffix(req.Content, "\n") {
		buf.WriteString("\n")
	}
	return buf.Bytes()
}

var htmlPage = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>body { font-family: {{.FontFamily}}; font-size: {{.FontSize}}pt; }</style>
</head>
<body>
{{- if .IncludeTitle}}
<h1>{{.Title}}</h1>
{{- end}}
{{- if .Metadata}}
<ul class="metadata">
{{- range .Metadata}}
<li><strong>{{index . 0}}:</strong> {{index . 1}}</li>
{{- end}}
</ul>
{{- end}}
{{- range .Paragraphs}}
<p>{{.}}</p>
{{- end}}
</body>
</html>
`))

type htmlView struct {
	Title        string
	IncludeTitle bool
	FontFamily   template.CSS
	FontSize     int
	Metadata     [][2]string
	Paragraphs   []template.HTML
}

func (s *Service) renderHTML(req domain.ExportRequest) ([]byte, error) {
	view := htmlView{
		Title:        title(req.Form),
		IncludeTitle: req.Style.IncludeTitle,
		FontFamily:   template.CSS(fontFamily(req.Style.FontFamily)),
		FontSize:     fontSize(req.Style.FontSize),
	}
	if req.Style.IncludeMetadata {
		for _, kv := range metadataLines(req.Form) {
			if kv[1] != "" {
				view.Metadata = append(view.Metadata, kv)
			}
		}
	}
	// 用户可能在草稿里写入 HTML，清洗后保留安全标签
	for _, p := range splitParagraphs(req.Content) {
		clean := s.policy.Sanitize(strings.ReplaceAll(p, "\n", "<br>"))
		view.Paragraphs = append(view.Paragraphs, template.HTML(clean))
	}

	var buf bytes.Buffer
	if err := htmlPage.Execute(&buf, view); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// archiveMetadata zip 包内 metadata.yaml 的结构
type archiveMetadata struct {
	Form       domain.FormData     `yaml:"form"`
	Style      domain.StyleOptions `yaml:"style"`
	ExportedAt time.Time           `yaml:"exported_at"`
}

func (s *Service) renderZip(req domain.ExportRequest) ([]byte, error) {
	buf := new(bytes.Buffer)
	zipWriter := zip.NewWriter(buf)

	contentFile, err := zipWriter.Create("content.md")
	if err != nil {
		return nil, err
	}
	if _, err := contentFile.Write(s.renderMarkdown(req)); err != nil {
		return nil, err
	}

	meta, err := yaml.Marshal(archiveMetadata{Form: req.Form, Style: req.Style, ExportedAt: s.now()})
	if err != nil {
		return nil, err
	}
	metaFile, err := zipWriter.Create("metadata.yaml")
	if err != nil {
		return nil, err
	}
	if _, err := metaFile.Write(meta); err != nil {
		return nil, err
	}

	if err := zipWriter.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func splitParagraphs(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	var out []string
	for _, p := range strings.Split(content, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func fontFamily(f string) string {
	f = strings.TrimSpace(f)
	if f == "" || !fontFamilyPattern.MatchString(f) {
		return domain.DefaultStyleOptions().FontFamily
	}
	return f
}

func fontSize(size int) int {
	if size < minFontSize || size > maxFontSize {
		return domain.DefaultStyleOptions().FontSize
	}
	return size
}
