package report

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/LJTian/DongmanReport/internal/collector"
)

var textRunes = []rune("ab动漫资讯 《》\n\r🔗.:/")

func newsItemGen() *rapid.Generator[collector.NewsItem] {
	return rapid.Custom(func(t *rapid.T) collector.NewsItem {
		pic := ""
		if rapid.Bool().Draw(t, "hasPic") {
			pic = "https://img.example.com/" + rapid.StringMatching(`[a-z0-9]{1,8}`).Draw(t, "pic") + ".jpg"
		}
		return collector.NewsItem{
			Title:       rapid.StringOfN(rapid.RuneFrom(textRunes), 0, 30, -1).Draw(t, "title"),
			URL:         rapid.StringOfN(rapid.RuneFrom(textRunes), 0, 30, -1).Draw(t, "url"),
			Description: rapid.StringOfN(rapid.RuneFrom(textRunes), 0, 150, -1).Draw(t, "desc"),
			CTime:       "2024-01-03 10:00",
			PicURL:      pic,
		}
	})
}

func TestFormatTextNumberedBlocksInOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		items := rapid.SliceOfN(newsItemGen(), 0, 12).Draw(t, "items")
		out := FormatText(items)

		lines := strings.Split(out, "\n")
		// 标题行 + 每条两行 + 末尾换行产生的空串
		if len(lines) != 2+2*len(items) {
			t.Fatalf("got %d lines for %d items:\n%s", len(lines), len(items), out)
		}
		if lines[0] != "📢 最新动漫资讯如下：" {
			t.Fatalf("unexpected header %q", lines[0])
		}
		for i, it := range items {
			// 先取默认值再去换行：只有字段为空才用默认值
			title := stripNewlines(orDefault(it.Title, "未知标题"))
			link := stripNewlines(orDefault(it.URL, "未知链接"))
			if want := fmt.Sprintf("No.%d《%s》", i+1, title); lines[1+2*i] != want {
				t.Fatalf("line %d = %q, want %q", 1+2*i, lines[1+2*i], want)
			}
			if want := "🔗" + link; lines[2+2*i] != want {
				t.Fatalf("line %d = %q, want %q", 2+2*i, lines[2+2*i], want)
			}
		}
	})
}

func TestFormatTextEmpty(t *testing.T) {
	assert.Equal(t, "📢 最新动漫资讯如下：\n", FormatText(nil))
}

func TestFormatTextDefaults(t *testing.T) {
	out := FormatText([]collector.NewsItem{{}})
	assert.Equal(t, "📢 最新动漫资讯如下：\nNo.1《未知标题》\n🔗未知链接\n", out)
}

func TestFormatTextNewlineOnlyFields(t *testing.T) {
	out := FormatText([]collector.NewsItem{{Title: "\n", URL: "\r\n"}})
	assert.Equal(t, "📢 最新动漫资讯如下：\nNo.1《》\n🔗\n", out)
}

func TestTruncateRunesLength(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringOfN(rapid.RuneFrom([]rune("a动漫。")), 0, 250, -1).Draw(t, "s")
		n := len([]rune(s))
		out := truncateRunes(s, 100, "...")
		if n <= 100 {
			if out != s {
				t.Fatalf("short string changed: %q -> %q", s, out)
			}
			return
		}
		if got := len([]rune(out)); got != 103 {
			t.Fatalf("truncated length = %d, want 103", got)
		}
		if !strings.HasSuffix(out, "...") || !strings.HasPrefix(s, strings.TrimSuffix(out, "...")) {
			t.Fatalf("bad truncation %q", out)
		}
	})
}
