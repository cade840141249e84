package utils

import (
	"strings"

	"k8s.io/klog/v2"
)

// ExtractMarkdown 模型常把整篇内容包在 ```markdown 代码块里，
// 只有当整段输出就是一个代码块时才去掉外层围栏，否则原样返回。
func ExtractMarkdown(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") {
		return content
	}

	firstLine := strings.IndexByte(trimmed, '\n')
	if firstLine < 0 {
		return content
	}
	lang := strings.ToLower(strings.TrimSpace(trimmed[3:firstLine]))
	if lang != "" && lang != "markdown" && lang != "md" {
		return content
	}

	body := strings.TrimSuffix(trimmed[firstLine+1:], "```")
	// 内部还有围栏说明外层并非单个代码块
	if strings.Contains(body, "\n```") {
		return content
	}

	klog.V(6).Infof("[ExtractMarkdown] 去除外层 Markdown 代码块, lang=%q", lang)
	return strings.TrimRight(body, "\r\n") + "\n"
}
