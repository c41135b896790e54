package onebot

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/LJTian/DongmanReport/internal/plugin"
)

const defaultCallTimeout = 15 * time.Second

// ErrNotConfigured 未配置 OneBot websocket 地址
var ErrNotConfigured = errors.New("onebot ws url not configured")

// Request 动作请求
type Request struct {
	Action string `json:"action"`
	Params any    `json:"params"`
	Echo   string `json:"echo"`
}

// Response 动作响应，按 echo 与请求配对
type Response struct {
	Status  string          `json:"status"`
	RetCode int             `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Wording string          `json:"wording"`
	Echo    string          `json:"echo"`
}

// Segment 消息段
type Segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func TextSegment(text string) Segment {
	return Segment{Type: "text", Data: map[string]any{"text": text}}
}

// ImageSegment 以 base64:// 方式内联图片
func ImageSegment(png []byte) Segment {
	return Segment{Type: "image", Data: map[string]any{"file": "base64://" + base64.StdEncoding.EncodeToString(png)}}
}

// Client 通过 websocket 调用 OneBot 动作，每次调用单独建立连接
type Client struct {
	url     string
	token   string
	timeout time.Duration
	dialer  *websocket.Dialer
	logger  *zap.Logger
}

func NewClient(url, token string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:     url,
		token:   token,
		timeout: defaultCallTimeout,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:  logger.Named("onebot"),
	}
}

// SetTimeout 设置单次调用在没有 ctx 截止时间时的超时
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Call 发送一个动作并等待 echo 相同的响应
func (c *Client) Call(ctx context.Context, action string, params any) (*Response, error) {
	if c.url == "" {
		return nil, ErrNotConfigured
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.url, header)
	if err != nil {
		return nil, fmt.Errorf("dial onebot: %w", err)
	}
	defer conn.Close()
	// ctx 取消时关闭连接以打断阻塞的读
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	req := Request{Action: action, Params: params, Echo: action + "_" + uuid.NewString()}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	}
	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("write %s: %w", action, err)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("wait %s response: %w", action, ctx.Err())
			}
			return nil, fmt.Errorf("read %s response: %w", action, err)
		}
		var resp Response
		if err := json.Unmarshal(msg, &resp); err != nil {
			continue
		}
		// 同一连接上还会收到事件推送，只认自己的 echo
		if resp.Echo != req.Echo {
			continue
		}
		if resp.Status != "ok" {
			return &resp, fmt.Errorf("onebot %s failed: retcode=%d %s", action, resp.RetCode, firstNonEmpty(resp.Wording, resp.Message))
		}
		c.logger.Debug("action done", zap.String("action", action), zap.String("echo", req.Echo))
		return &resp, nil
	}
}

// SendMessage 向目标发送消息段
func (c *Client) SendMessage(ctx context.Context, to Target, segments []Segment) error {
	var (
		action string
		params map[string]any
	)
	if to.GroupID != 0 {
		action = "send_group_msg"
		params = map[string]any{"group_id": to.GroupID, "message": segments}
	} else {
		action = "send_private_msg"
		params = map[string]any{"user_id": to.UserID, "message": segments}
	}
	_, err := c.Call(ctx, action, params)
	return err
}

// SendReply 把插件回复转成消息段发送
func (c *Client) SendReply(ctx context.Context, to Target, reply *plugin.Reply) error {
	if reply == nil {
		return nil
	}
	var seg Segment
	switch reply.Type {
	case plugin.ReplyImage:
		seg = ImageSegment(reply.Image)
	default:
		seg = TextSegment(reply.Text)
	}
	if err := c.SendMessage(ctx, to, []Segment{seg}); err != nil {
		c.logger.Error("send reply failed", zap.Stringer("target", to), zap.Stringer("type", reply.Type), zap.Error(err))
		return err
	}
	c.logger.Info("reply sent", zap.Stringer("target", to), zap.Stringer("type", reply.Type))
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
