package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Registry 按优先级从高到低保存插件并依次分发事件
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{logger: logger.Named("registry")}
}

// Register 注册插件，同名插件只能注册一次
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Meta().Name
	for _, existing := range r.plugins {
		if strings.EqualFold(existing.Meta().Name, name) {
			return fmt.Errorf("plugin %q already registered", name)
		}
	}
	r.plugins = append(r.plugins, p)
	sort.SliceStable(r.plugins, func(i, j int) bool {
		return r.plugins[i].Meta().Priority > r.plugins[j].Meta().Priority
	})
	r.logger.Info("plugin registered",
		zap.String("name", name),
		zap.String("version", p.Meta().Version),
		zap.Int("priority", p.Meta().Priority),
	)
	return nil
}

// Plugins 返回按优先级排序的插件快照
func (r *Registry) Plugins() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Plugin, len(r.plugins))
	copy(out, r.plugins)
	return out
}

// Dispatch 依次调用插件，遇到 Break 或 BreakPass 停止
func (r *Registry) Dispatch(ctx context.Context, ec *EventContext) {
	for _, p := range r.Plugins() {
		p.HandleContext(ctx, ec)
		if ec.Action != Continue {
			r.logger.Debug("event handled",
				zap.String("plugin", p.Meta().Name),
				zap.Stringer("action", ec.Action),
			)
			return
		}
	}
}

// HelpText 汇总所有插件的帮助信息
func (r *Registry) HelpText() string {
	var sb strings.Builder
	for _, p := range r.Plugins() {
		help := strings.TrimSpace(p.Help())
		if help == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "【%s】\n%s", p.Meta().Name, help)
	}
	return sb.String()
}

// Close 关闭全部插件，错误合并返回
func (r *Registry) Close() error {
	var errs []error
	for _, p := range r.Plugins() {
		if err := p.Close(); err != nil {
			r.logger.Warn("close plugin failed", zap.String("name", p.Meta().Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("close %s: %w", p.Meta().Name, err))
		}
	}
	return errors.Join(errs...)
}
