package report

import (
	"fmt"
	"strings"

	"github.com/LJTian/DongmanReport/internal/collector"
)

const digestHeader = "📢 最新动漫资讯如下：\n"

// FormatText 生成文字版简讯：标题行 + 每条一个序号块，保持接口返回顺序
func FormatText(items []collector.NewsItem) string {
	var sb strings.Builder
	sb.WriteString(digestHeader)
	for i, it := range items {
		title := stripNewlines(orDefault(it.Title, "未知标题"))
		link := stripNewlines(orDefault(it.URL, "未知链接"))
		fmt.Fprintf(&sb, "No.%d《%s》\n🔗%s\n", i+1, title, link)
	}
	return sb.String()
}

func stripNewlines(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// truncateRunes 按 rune 截断，超过 limit 时追加 suffix，避免中文被截成半个字符
func truncateRunes(s string, limit int, suffix string) string {
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit]) + suffix
}
