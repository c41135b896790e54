package browser

import (
	"context"
	"errors"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	viewportWidth  = 600
	viewportHeight = 1335
	renderTimeout  = 60 * time.Second
)

// 等待页面内所有图片加载结束（成功或失败都算结束）
const waitImagesJS = `new Promise(function (resolve) {
  var pending = Array.prototype.filter.call(document.images, function (img) { return !img.complete; });
  if (pending.length === 0) { resolve(true); return; }
  var left = pending.length;
  var done = function () { if (--left === 0) resolve(true); };
  pending.forEach(function (img) {
    img.addEventListener("load", done);
    img.addEventListener("error", done);
  });
})`

// ChromeLauncher 通过 chromedp 启动 headless Chrome
type ChromeLauncher struct {
	// ExecPath 为空时由 chromedp 自动查找
	ExecPath  string
	NoSandbox bool
	Logger    *zap.Logger
}

func (l *ChromeLauncher) Launch(ctx context.Context) (Browser, error) {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if l.NoSandbox {
		opts = append(opts, chromedp.NoSandbox, chromedp.Flag("disable-setuid-sandbox", true))
	}
	if l.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.ExecPath))
	}

	// 浏览器生命周期由 Close 控制，不挂在请求上下文上
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(logger.Sugar().Errorf),
	)

	stop := context.AfterFunc(ctx, cancelBrowser)
	err := chromedp.Run(browserCtx)
	if !stop() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, err
	}

	return &chromeBrowser{
		ctx:           browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
	}, nil
}

type chromeBrowser struct {
	ctx           context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
}

func (b *chromeBrowser) Screenshot(ctx context.Context, html string) ([]byte, error) {
	// 每次渲染一个新标签页，结束即关闭
	tabCtx, cancelTab := chromedp.NewContext(b.ctx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, renderTimeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	var (
		settled bool
		buf     []byte
	)
	err := chromedp.Run(tabCtx,
		chromedp.EmulateViewport(viewportWidth, viewportHeight),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(waitImagesJS, &settled, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
		chromedp.FullScreenshot(&buf, 100),
	)
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, ErrEmptyScreenshot
	}
	return buf, nil
}

func (b *chromeBrowser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancelBrowser()
	b.cancelAlloc()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
