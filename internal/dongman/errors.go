package dongman

import (
	"errors"
	"fmt"

	"github.com/LJTian/DongmanReport/internal/browser"
	"github.com/LJTian/DongmanReport/internal/collector"
	"github.com/LJTian/DongmanReport/internal/report"
)

// Kind 请求失败的分类
type Kind int

const (
	KindConfigMissing Kind = iota + 1
	KindFetchFailed
	KindRenderFailed
	KindBrowserInitFailed
)

func (k Kind) String() string {
	switch k {
	case KindConfigMissing:
		return "config_missing"
	case KindFetchFailed:
		return "fetch_failed"
	case KindRenderFailed:
		return "render_failed"
	case KindBrowserInitFailed:
		return "browser_init_failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error 带分类的请求错误
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf 返回错误链上的分类，无法识别时返回 0
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	switch {
	case errors.Is(err, collector.ErrFetchFailed):
		return KindFetchFailed
	case errors.Is(err, browser.ErrInitFailed):
		return KindBrowserInitFailed
	case errors.Is(err, browser.ErrRenderFailed), errors.Is(err, report.ErrTemplate):
		return KindRenderFailed
	}
	return 0
}

func classify(err error) *Error {
	return &Error{Kind: KindOf(err), Err: err}
}

// userMessage 把错误转换成发给用户的提示
func userMessage(err error, configPath string) string {
	switch KindOf(err) {
	case KindConfigMissing:
		return fmt.Sprintf("请先配置%s文件", configPath)
	case KindFetchFailed:
		return "获取资讯失败，请稍后重试"
	case KindBrowserInitFailed:
		return "浏览器初始化失败，请稍后重试"
	case KindRenderFailed:
		if errors.Is(err, browser.ErrRenderFailed) {
			return "生成图片失败，请稍后重试"
		}
	}
	return "处理请求失败，请稍后重试"
}
