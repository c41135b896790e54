package scheduler

import (
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/LJTian/DongmanReport/internal/onebot"
)

type fakePusher struct {
	failGroup int64
	got       []onebot.Target
	contents  []string
}

func (p *fakePusher) Trigger(to onebot.Target, content string) error {
	p.got = append(p.got, to)
	p.contents = append(p.contents, content)
	if to.GroupID == p.failGroup {
		return errors.New("queue full")
	}
	return nil
}

func TestRunOncePushesEveryGroup(t *testing.T) {
	p := &fakePusher{failGroup: 2}
	s, err := New("0 9 * * *", "动漫简讯", []int64{1, 2, 3}, p, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	s.RunOnce()

	if len(p.got) != 3 {
		t.Fatalf("expected 3 pushes, got %d", len(p.got))
	}
	for i, g := range []int64{1, 2, 3} {
		if p.got[i].GroupID != g || p.contents[i] != "动漫简讯" {
			t.Fatalf("push %d = %+v %q", i, p.got[i], p.contents[i])
		}
	}
}

func TestNewRejectsBadSpec(t *testing.T) {
	if _, err := New("not a cron", "动漫简讯", []int64{1}, &fakePusher{}, nil); err == nil {
		t.Fatalf("expected error for invalid cron spec")
	}
}

func TestNewRequiresGroups(t *testing.T) {
	if _, err := New("0 9 * * *", "动漫简讯", nil, &fakePusher{}, nil); err == nil {
		t.Fatalf("expected error without groups")
	}
}

func TestStartStop(t *testing.T) {
	s, err := New("@every 1h", "动漫快讯", []int64{1}, &fakePusher{}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	s.Start()
	s.Stop()
}
