package scheduler

import (
	"errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/LJTian/DongmanReport/internal/onebot"
)

// Pusher 把一条指令投递给插件链，回复发往 to
type Pusher interface {
	Trigger(to onebot.Target, content string) error
}

// Scheduler 定时向配置的群推送资讯
type Scheduler struct {
	cron    *cron.Cron
	trigger string
	groups  []int64
	pusher  Pusher
	logger  *zap.Logger
}

func New(spec, trigger string, groups []int64, pusher Pusher, logger *zap.Logger) (*Scheduler, error) {
	if len(groups) == 0 {
		return nil, errors.New("no push groups configured")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := cron.New()

	s := &Scheduler{
		cron:    c,
		trigger: trigger,
		groups:  groups,
		pusher:  pusher,
		logger:  logger.Named("scheduler"),
	}

	_, err := c.AddFunc(spec, s.runOnce)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("push scheduler started", zap.String("trigger", s.trigger), zap.Int64s("groups", s.groups))
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce 对外暴露的单次执行入口，方便手动触发推送
func (s *Scheduler) RunOnce() {
	s.runOnce()
}

func (s *Scheduler) runOnce() {
	s.logger.Info("start push job", zap.String("trigger", s.trigger))

	pushed := 0
	for _, g := range s.groups {
		if err := s.pusher.Trigger(onebot.Target{GroupID: g}, s.trigger); err != nil {
			s.logger.Error("push failed", zap.Int64("group", g), zap.Error(err))
			continue
		}
		pushed++
	}
	// 这里只是入队，实际发送由 bot worker 完成
	s.logger.Info("push job done", zap.Int("queued", pushed), zap.Int("groups", len(s.groups)))
}
