package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/LJTian/DongmanReport/internal/onebot"
	"github.com/LJTian/DongmanReport/internal/plugin"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type echoPlugin struct {
	mu       sync.Mutex
	inFlight int
	maxSeen  int
	handled  []string
}

func (p *echoPlugin) Dispatch(ctx context.Context, ec *plugin.EventContext) {
	p.mu.Lock()
	p.inFlight++
	if p.inFlight > p.maxSeen {
		p.maxSeen = p.inFlight
	}
	p.handled = append(p.handled, ec.Context.Content)
	p.mu.Unlock()

	time.Sleep(time.Millisecond)

	if ec.Context.Type == plugin.ContextText && ec.Context.Content == "动漫简讯" {
		ec.Reply = plugin.TextReply("digest")
		ec.Action = plugin.BreakPass
	}

	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()
}

func (p *echoPlugin) HelpText() string { return "help!" }

type sent struct {
	to    onebot.Target
	reply *plugin.Reply
}

type recordSender struct {
	mu   sync.Mutex
	sent []sent
	ch   chan struct{}
}

func newRecordSender() *recordSender {
	return &recordSender{ch: make(chan struct{}, 64)}
}

func (s *recordSender) SendReply(ctx context.Context, to onebot.Target, reply *plugin.Reply) error {
	s.mu.Lock()
	s.sent = append(s.sent, sent{to: to, reply: reply})
	s.mu.Unlock()
	s.ch <- struct{}{}
	return nil
}

func (s *recordSender) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for reply %d", i+1)
		}
	}
}

func runBot(t *testing.T, b *Bot) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func msgEvent(id int64, text string) *onebot.Event {
	return &onebot.Event{PostType: "message", MessageType: "group", MessageID: onebot.ID(id), UserID: 1, GroupID: 2, SelfID: 3, RawMessage: text}
}

func TestSubmitDeliversReply(t *testing.T) {
	p := &echoPlugin{}
	s := newRecordSender()
	b := New(p, s, nil, 0, zaptest.NewLogger(t))
	stop := runBot(t, b)
	defer stop()

	require.NoError(t, b.Submit(context.Background(), msgEvent(1, "动漫简讯")))
	s.wait(t, 1)

	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.sent, 1)
	assert.Equal(t, onebot.Target{GroupID: 2, UserID: 1}, s.sent[0].to)
	assert.Equal(t, "digest", s.sent[0].reply.Text)
}

func TestDuplicateEventHandledOnce(t *testing.T) {
	p := &echoPlugin{}
	s := newRecordSender()
	b := New(p, s, nil, 0, zaptest.NewLogger(t))
	stop := runBot(t, b)

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Submit(context.Background(), msgEvent(42, "动漫简讯")))
	}
	require.NoError(t, b.Submit(context.Background(), msgEvent(43, "动漫简讯")))
	s.wait(t, 2)
	stop()

	assert.Len(t, s.sent, 2)
	assert.Len(t, p.handled, 2)
}

func TestEventsWithoutMessageIDAreNotDeduped(t *testing.T) {
	p := &echoPlugin{}
	s := newRecordSender()
	b := New(p, s, nil, 0, zaptest.NewLogger(t))
	stop := runBot(t, b)

	require.NoError(t, b.Submit(context.Background(), msgEvent(0, "动漫简讯")))
	require.NoError(t, b.Submit(context.Background(), msgEvent(0, "动漫简讯")))
	s.wait(t, 2)
	stop()

	assert.Len(t, s.sent, 2)
}

type panicPlugin struct {
	echoPlugin
}

func (p *panicPlugin) Dispatch(ctx context.Context, ec *plugin.EventContext) {
	if ec.Context.Content == "boom" {
		panic("plugin exploded")
	}
	p.echoPlugin.Dispatch(ctx, ec)
}

func TestWorkerSurvivesPanic(t *testing.T) {
	p := &panicPlugin{}
	s := newRecordSender()
	b := New(p, s, nil, 0, zaptest.NewLogger(t))
	stop := runBot(t, b)

	require.NoError(t, b.Trigger(onebot.Target{GroupID: 2}, "boom"))
	require.NoError(t, b.Trigger(onebot.Target{GroupID: 2}, "动漫简讯"))
	s.wait(t, 1)
	stop()

	require.Len(t, s.sent, 1)
	assert.Equal(t, "digest", s.sent[0].reply.Text)
}

func TestNoReplyWhenUnmatched(t *testing.T) {
	p := &echoPlugin{}
	s := newRecordSender()
	b := New(p, s, nil, 0, zaptest.NewLogger(t))

	b.Handle(context.Background(), onebot.Target{UserID: 1}, plugin.NewTextEvent("随便聊聊", nil))
	assert.Empty(t, s.sent)
	assert.Equal(t, []string{"随便聊聊"}, p.handled)
}

func TestHelpCommand(t *testing.T) {
	p := &echoPlugin{}
	s := newRecordSender()
	b := New(p, s, nil, 0, zaptest.NewLogger(t))

	b.Handle(context.Background(), onebot.Target{UserID: 1}, plugin.NewTextEvent(" #help ", nil))
	require.Len(t, s.sent, 1)
	assert.Equal(t, "help!", s.sent[0].reply.Text)
	assert.Empty(t, p.handled)
}

func TestWorkerSerializesCalls(t *testing.T) {
	p := &echoPlugin{}
	s := newRecordSender()
	b := New(p, s, nil, 32, zaptest.NewLogger(t))
	stop := runBot(t, b)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			assert.NoError(t, b.Submit(context.Background(), msgEvent(id, "动漫简讯")))
		}(int64(i + 100))
	}
	wg.Wait()
	s.wait(t, 20)
	stop()

	assert.Equal(t, 1, p.maxSeen)
}

func TestQueueFull(t *testing.T) {
	b := New(&echoPlugin{}, newRecordSender(), nil, 1, zaptest.NewLogger(t))
	require.NoError(t, b.Trigger(onebot.Target{GroupID: 1}, "动漫简讯"))
	assert.ErrorIs(t, b.Trigger(onebot.Target{GroupID: 1}, "动漫简讯"), ErrQueueFull)
}

func TestNonMessageIgnored(t *testing.T) {
	b := New(&echoPlugin{}, newRecordSender(), nil, 1, zaptest.NewLogger(t))
	require.NoError(t, b.Submit(context.Background(), &onebot.Event{PostType: "meta_event"}))
	assert.Len(t, b.queue, 0)
}
