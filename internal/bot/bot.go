package bot

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/LJTian/DongmanReport/internal/onebot"
	"github.com/LJTian/DongmanReport/internal/plugin"
	"github.com/LJTian/DongmanReport/internal/storage"
)

const (
	defaultQueueSize = 64
	helpCommand      = "#help"
)

var ErrQueueFull = errors.New("event queue is full")

// Dispatcher 插件链
type Dispatcher interface {
	Dispatch(ctx context.Context, ec *plugin.EventContext)
	HelpText() string
}

// Sender 把回复发回聊天平台
type Sender interface {
	SendReply(ctx context.Context, to onebot.Target, reply *plugin.Reply) error
}

type job struct {
	to onebot.Target
	ec *plugin.EventContext
}

// Bot 单个 worker 串行消费事件队列，插件因此不会被并发调用
type Bot struct {
	plugins Dispatcher
	sender  Sender
	dedup   storage.Deduper
	queue   chan job
	logger  *zap.Logger
}

func New(plugins Dispatcher, sender Sender, dedup storage.Deduper, queueSize int, logger *zap.Logger) *Bot {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if dedup == nil {
		dedup = storage.NewMemoryDedup(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		plugins: plugins,
		sender:  sender,
		dedup:   dedup,
		queue:   make(chan job, queueSize),
		logger:  logger.Named("bot"),
	}
}

// Submit 接收一个 OneBot 事件：非消息事件与重复事件直接忽略
func (b *Bot) Submit(ctx context.Context, ev *onebot.Event) error {
	if !ev.IsMessage() {
		return nil
	}
	if key := ev.DedupKey(); key != "" {
		seen, err := b.dedup.Seen(ctx, key)
		if err != nil {
			// 去重失败时宁可重复处理也不丢消息
			b.logger.Warn("dedup check failed", zap.String("key", key), zap.Error(err))
		} else if seen {
			b.logger.Debug("duplicate event dropped", zap.String("key", key))
			return nil
		}
	}
	return b.enqueue(job{to: ev.Target(), ec: ev.ToEventContext()})
}

// Trigger 以文本消息的形式把 content 投递给插件链，回复发往 to
func (b *Bot) Trigger(to onebot.Target, content string) error {
	return b.enqueue(job{to: to, ec: plugin.NewTextEvent(content, map[string]any{"session_id": to.String()})})
}

func (b *Bot) enqueue(j job) error {
	select {
	case b.queue <- j:
		return nil
	default:
		b.logger.Warn("queue full, event dropped", zap.Stringer("target", j.to))
		return ErrQueueFull
	}
}

// Run 处理队列直到 ctx 结束
func (b *Bot) Run(ctx context.Context) {
	b.logger.Info("worker started")
	defer b.logger.Info("worker stopped")
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-b.queue:
			b.handleSafely(ctx, j)
		}
	}
}

// handleSafely 插件或浏览器 panic 只丢弃当前消息，worker 继续运行
func (b *Bot) handleSafely(ctx context.Context, j job) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic while handling event",
				zap.Stringer("target", j.to),
				zap.String("content", j.ec.Context.Content),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()
	b.Handle(ctx, j.to, j.ec)
}

// Handle 同步处理一条消息并发送回复
func (b *Bot) Handle(ctx context.Context, to onebot.Target, ec *plugin.EventContext) {
	if ec.Context.Type == plugin.ContextText && strings.TrimSpace(ec.Context.Content) == helpCommand {
		ec.Reply = plugin.TextReply(b.plugins.HelpText())
		ec.Action = plugin.BreakPass
	} else {
		b.plugins.Dispatch(ctx, ec)
	}

	if ec.Action == plugin.Continue || ec.Reply == nil {
		return
	}
	if err := b.sender.SendReply(ctx, to, ec.Reply); err != nil {
		b.logger.Error("deliver reply failed", zap.Stringer("target", to), zap.Error(err))
	}
}
