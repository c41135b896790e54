package dongman

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/LJTian/DongmanReport/internal/collector"
	"github.com/LJTian/DongmanReport/internal/plugin"
	"github.com/LJTian/DongmanReport/internal/report"
)

const (
	TriggerText  = "动漫简讯"
	TriggerImage = "动漫快讯"

	textNum  = 10
	imageNum = 6
)

var errEmptyNews = errors.New("news list is empty")

const helpText = `动漫资讯获取助手
指令：
1. 发送"动漫简讯"：获取文字版动漫资讯，包含标题和原文链接
2. 发送"动漫快讯"：获取图片版动漫资讯，包含标题、简介和发布时间

注意：
- 文字版显示10条最新资讯
- 图片版显示6条最新资讯
- 图片版支持查看新闻配图`

// NewsFetcher 按 key 与条数拉取资讯
type NewsFetcher interface {
	FetchNews(ctx context.Context, apiKey string, num int) ([]collector.NewsItem, error)
}

// Renderer 把资讯填进 HTML 模板
type Renderer interface {
	Render(items []collector.NewsItem) (string, error)
}

// Screenshotter 把 HTML 渲染为 PNG
type Screenshotter interface {
	Screenshot(ctx context.Context, html string) ([]byte, error)
	Close() error
}

type command struct {
	num   int
	image bool
}

var commands = map[string]command{
	TriggerText:  {num: textNum},
	TriggerImage: {num: imageNum, image: true},
}

// Options 构造插件所需的依赖
type Options struct {
	// Dir 插件目录，config.json 与 templates/ 位于其中
	Dir      string
	Fetcher  NewsFetcher
	Renderer Renderer
	Browser  Screenshotter
	Logger   *zap.Logger
}

// Plugin 响应“动漫简讯”“动漫快讯”两个指令
type Plugin struct {
	configPath string
	fetcher    NewsFetcher
	renderer   Renderer
	browser    Screenshotter
	logger     *zap.Logger
}

func New(opts Options) *Plugin {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	renderer := opts.Renderer
	if renderer == nil {
		renderer = report.NewHTMLRenderer(TemplatePath(opts.Dir), logger)
	}
	return &Plugin{
		configPath: ConfigPath(opts.Dir),
		fetcher:    opts.Fetcher,
		renderer:   renderer,
		browser:    opts.Browser,
		logger:     logger.Named("dongman"),
	}
}

func ConfigPath(dir string) string {
	return filepath.Join(dir, "config.json")
}

func TemplatePath(dir string) string {
	return filepath.Join(dir, "templates", "news_template.html")
}

func (p *Plugin) Meta() plugin.Meta {
	return plugin.Meta{
		Name:     "dongmanReport",
		Desc:     "获取动漫相关资讯，支持文字版和图片版",
		Version:  "3.0",
		Author:   "zxy",
		Priority: 500,
	}
}

func (p *Plugin) Help() string {
	return helpText
}

// HandleContext 只处理完全匹配指令的文本消息；命中后必定写入一条回复并设置 BreakPass
func (p *Plugin) HandleContext(ctx context.Context, ec *plugin.EventContext) {
	if ec.Context.Type != plugin.ContextText {
		return
	}
	content := strings.TrimSpace(ec.Context.Content)
	if _, ok := commands[content]; !ok {
		return
	}
	p.logger.Info("received command", zap.String("content", content))

	reply, err := p.Handle(ctx, content)
	if err != nil {
		p.logger.Error("handle command failed",
			zap.String("content", content),
			zap.Stringer("kind", KindOf(err)),
			zap.Error(err),
		)
		reply = plugin.TextReply(userMessage(err, p.configPath))
	}
	ec.Reply = reply
	ec.Action = plugin.BreakPass
}

// Handle 执行一条指令并返回回复，失败时可用 KindOf 取得分类
func (p *Plugin) Handle(ctx context.Context, trigger string) (*plugin.Reply, error) {
	cmd, ok := commands[strings.TrimSpace(trigger)]
	if !ok {
		return nil, errors.New("unknown command: " + trigger)
	}

	// 每次请求都重新读取配置
	key := LoadAPIKey(p.configPath, p.logger)
	if key == "" {
		return nil, &Error{Kind: KindConfigMissing}
	}

	items, err := p.fetcher.FetchNews(ctx, key, cmd.num)
	if err != nil {
		return nil, &Error{Kind: KindFetchFailed, Err: err}
	}
	if len(items) == 0 {
		return nil, &Error{Kind: KindFetchFailed, Err: errEmptyNews}
	}

	if !cmd.image {
		return plugin.TextReply(report.FormatText(items)), nil
	}

	html, err := p.renderer.Render(items)
	if err != nil {
		return nil, &Error{Kind: KindRenderFailed, Err: err}
	}
	if p.browser == nil {
		return nil, &Error{Kind: KindBrowserInitFailed, Err: errors.New("no browser configured")}
	}
	png, err := p.browser.Screenshot(ctx, html)
	if err != nil {
		return nil, classify(err)
	}
	p.logger.Debug("image generated", zap.Int("bytes", len(png)))
	return plugin.ImageReply(png), nil
}

// Close 释放浏览器
func (p *Plugin) Close() error {
	if p.browser == nil {
		return nil
	}
	return p.browser.Close()
}
