package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State 浏览器会话状态
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrInitFailed      = errors.New("browser init failed")
	ErrRenderFailed    = errors.New("render screenshot failed")
	ErrClosed          = errors.New("browser session closed")
	// ErrEmptyScreenshot 页面渲染成功但没有得到图片，浏览器本身仍可用
	ErrEmptyScreenshot = errors.New("empty screenshot")
)

const launchTimeout = 30 * time.Second

// Browser 一个已启动的浏览器实例
type Browser interface {
	// Screenshot 在新标签页中加载 html 并返回整页 PNG
	Screenshot(ctx context.Context, html string) ([]byte, error)
	Close() error
}

// Launcher 负责启动浏览器进程
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Session 持有唯一的浏览器实例，首次截图时懒启动，渲染失败后重建。
// 所有方法并发安全，同一时刻最多存活一个浏览器。
type Session struct {
	mu       sync.Mutex
	launcher Launcher
	browser  Browser
	state    State
	logger   *zap.Logger
}

func NewSession(launcher Launcher, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{launcher: launcher, logger: logger.Named("browser")}
}

// State 返回当前状态
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start 启动浏览器，已就绪时直接返回
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return ErrClosed
	case StateReady:
		return nil
	}
	return s.startLocked(ctx)
}

func (s *Session) startLocked(ctx context.Context) error {
	// 启动不跟随请求取消，否则超时的请求会连带拖垮重建
	launchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), launchTimeout)
	defer cancel()

	b, err := s.launcher.Launch(launchCtx)
	if err != nil {
		s.browser = nil
		s.state = StateUninitialized
		s.logger.Error("launch browser failed", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}
	s.browser = b
	s.state = StateReady
	s.logger.Info("browser ready")
	return nil
}

// Screenshot 渲染 html 为 PNG。
// 失败时关闭当前浏览器并尝试重建一次，结束后会话要么 Ready 要么 Uninitialized。
func (s *Session) Screenshot(ctx context.Context, html string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil, ErrClosed
	}
	if s.state != StateReady {
		if err := s.startLocked(ctx); err != nil {
			return nil, err
		}
	}

	png, err := s.browser.Screenshot(ctx, html)
	if err == nil && len(png) == 0 {
		err = ErrEmptyScreenshot
	}
	if err == nil {
		return png, nil
	}
	if errors.Is(err, ErrEmptyScreenshot) {
		s.logger.Warn("screenshot is empty, keep browser", zap.Int("html_bytes", len(html)))
		return nil, fmt.Errorf("%w: %w", ErrRenderFailed, err)
	}

	s.state = StateError
	s.logger.Error("screenshot failed, reinitializing browser", zap.Error(err))
	s.teardownLocked()
	if rerr := s.startLocked(ctx); rerr != nil {
		s.logger.Warn("browser reinit failed, will retry on next request", zap.Error(rerr))
	}
	return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
}

// Close 关闭浏览器，之后的调用都返回 ErrClosed。重复关闭无副作用。
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil
	}
	err := s.teardownLocked()
	s.state = StateClosed
	return err
}

func (s *Session) teardownLocked() error {
	if s.browser == nil {
		s.state = StateUninitialized
		return nil
	}
	err := s.browser.Close()
	if err != nil {
		s.logger.Warn("close browser failed", zap.Error(err))
	}
	s.browser = nil
	s.state = StateUninitialized
	return err
}
