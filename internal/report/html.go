package report

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/LJTian/DongmanReport/internal/collector"
)

const (
	// Placeholder 模板中被替换为资讯卡片的占位符
	Placeholder = "<!-- NEWS_CONTENT -->"

	descriptionLimit  = 100
	descriptionSuffix = "..."
)

// ErrTemplate 读取模板失败
var ErrTemplate = errors.New("read report template failed")

var unitTmpl = template.Must(template.New("news-unit").Parse(`
<div class="news-unit">
    <img src="{{.PicURL}}" alt="news image">
    <div class="text-block">
        <div class="title">{{.Title}}</div>
        <div class="description">{{.Description}}</div>
        <div class="ctime">{{.CTime}}</div>
    </div>
</div>`))

// HTMLRenderer 把资讯列表填进静态 HTML 模板，供浏览器截图
type HTMLRenderer struct {
	templatePath string
	logger       *zap.Logger
}

func NewHTMLRenderer(templatePath string, logger *zap.Logger) *HTMLRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTMLRenderer{templatePath: templatePath, logger: logger.Named("html")}
}

// TemplatePath 返回模板文件路径
func (r *HTMLRenderer) TemplatePath() string {
	return r.templatePath
}

// Render 每次调用都重新读取模板。没有配图的资讯会被跳过（文字版仍会包含它们）。
func (r *HTMLRenderer) Render(items []collector.NewsItem) (string, error) {
	raw, err := os.ReadFile(r.templatePath)
	if err != nil {
		r.logger.Error("read template failed", zap.String("path", r.templatePath), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrTemplate, err)
	}

	var units bytes.Buffer
	for _, it := range items {
		if it.PicURL == "" {
			r.logger.Warn("skip news without image", zap.String("title", it.Title))
			continue
		}
		unit := struct {
			PicURL      string
			Title       string
			Description string
			CTime       string
		}{
			PicURL:      it.PicURL,
			Title:       orDefault(it.Title, "未知标题"),
			Description: truncateRunes(orDefault(it.Description, "无描述"), descriptionLimit, descriptionSuffix),
			CTime:       orDefault(it.CTime, "未知时间"),
		}
		if err := unitTmpl.Execute(&units, unit); err != nil {
			return "", fmt.Errorf("execute unit template: %w", err)
		}
	}

	doc := strings.ReplaceAll(string(raw), Placeholder, units.String())
	r.logger.Debug("generated html", zap.Int("bytes", len(doc)), zap.String("html", doc))
	return doc, nil
}
