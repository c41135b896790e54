package onebot

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/LJTian/DongmanReport/internal/plugin"
)

// actionServer 模拟 NapCat：先推一条无关事件，再回应请求
type actionServer struct {
	t        *testing.T
	status   string
	silent   bool
	requests chan map[string]any
	auth     chan string
}

func newActionServer(t *testing.T, status string, silent bool) (*actionServer, string) {
	s := &actionServer{t: t, status: status, silent: silent, requests: make(chan map[string]any, 4), auth: make(chan string, 4)}
	srv := httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(srv.Close)
	return s, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (s *actionServer) serve(w http.ResponseWriter, r *http.Request) {
	s.auth <- r.Header.Get("Authorization")
	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var req map[string]any
	if err := conn.ReadJSON(&req); err != nil {
		return
	}
	s.requests <- req
	if s.silent {
		// 不回应，等客户端超时断开
		_, _, _ = conn.ReadMessage()
		return
	}
	_ = conn.WriteJSON(map[string]any{"post_type": "meta_event", "meta_event_type": "heartbeat"})
	_ = conn.WriteJSON(map[string]any{"status": "ok", "retcode": 0, "echo": "someone_else"})
	_ = conn.WriteJSON(map[string]any{"status": s.status, "retcode": 100, "wording": "bad group", "echo": req["echo"], "data": map[string]any{"message_id": 1}})
}

func TestSendReplyText(t *testing.T) {
	s, url := newActionServer(t, "ok", false)
	c := NewClient(url, "secret", zaptest.NewLogger(t))

	err := c.SendReply(context.Background(), Target{GroupID: 20002}, plugin.TextReply("你好"))
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", <-s.auth)
	req := <-s.requests
	assert.Equal(t, "send_group_msg", req["action"])
	assert.True(t, strings.HasPrefix(req["echo"].(string), "send_group_msg_"))

	params := req["params"].(map[string]any)
	assert.Equal(t, float64(20002), params["group_id"])
	msg := params["message"].([]any)[0].(map[string]any)
	assert.Equal(t, "text", msg["type"])
	assert.Equal(t, "你好", msg["data"].(map[string]any)["text"])
}

func TestSendReplyImage(t *testing.T) {
	s, url := newActionServer(t, "ok", false)
	c := NewClient(url, "", zaptest.NewLogger(t))

	png := []byte("\x89PNG fake")
	require.NoError(t, c.SendReply(context.Background(), Target{UserID: 10001}, plugin.ImageReply(png)))

	assert.Equal(t, "", <-s.auth)
	req := <-s.requests
	assert.Equal(t, "send_private_msg", req["action"])
	params := req["params"].(map[string]any)
	assert.Equal(t, float64(10001), params["user_id"])
	seg := params["message"].([]any)[0].(map[string]any)
	assert.Equal(t, "image", seg["type"])
	assert.Equal(t, "base64://"+base64.StdEncoding.EncodeToString(png), seg["data"].(map[string]any)["file"])
}

func TestCallFailedStatus(t *testing.T) {
	_, url := newActionServer(t, "failed", false)
	c := NewClient(url, "", zaptest.NewLogger(t))

	resp, err := c.Call(context.Background(), "send_group_msg", map[string]any{"group_id": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad group")
	require.NotNil(t, resp)
	assert.Equal(t, 100, resp.RetCode)
}

func TestCallTimeout(t *testing.T) {
	_, url := newActionServer(t, "ok", true)
	c := NewClient(url, "", zaptest.NewLogger(t))
	c.SetTimeout(200 * time.Millisecond)

	start := time.Now()
	_, err := c.Call(context.Background(), "get_status", nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCallNotConfigured(t *testing.T) {
	c := NewClient("", "", zaptest.NewLogger(t))
	_, err := c.Call(context.Background(), "get_status", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSendNilReply(t *testing.T) {
	c := NewClient("", "", zaptest.NewLogger(t))
	assert.NoError(t, c.SendReply(context.Background(), Target{UserID: 1}, nil))
}

func TestImageSegmentJSON(t *testing.T) {
	raw, err := json.Marshal(ImageSegment([]byte{1, 2, 3}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"image","data":{"file":"base64://AQID"}}`, string(raw))
}
