package onebot

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/LJTian/DongmanReport/internal/plugin"
)

// ID 兼容数字与字符串两种写法的 QQ 号 / 群号 / 消息 ID
type ID int64

func (id *ID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		*id = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse onebot id %q: %w", s, err)
	}
	*id = ID(n)
	return nil
}

// Event OneBot v11 上报事件中用到的字段
type Event struct {
	PostType    string `json:"post_type"`
	MessageType string `json:"message_type"`
	SubType     string `json:"sub_type"`
	MessageID   ID     `json:"message_id"`
	UserID      ID     `json:"user_id"`
	GroupID     ID     `json:"group_id"`
	SelfID      ID     `json:"self_id"`
	RawMessage  string `json:"raw_message"`
	Time        int64  `json:"time"`
}

// Target 回复目标，GroupID 非 0 时发群消息
type Target struct {
	UserID  int64
	GroupID int64
}

func (t Target) String() string {
	if t.GroupID != 0 {
		return "group:" + strconv.FormatInt(t.GroupID, 10)
	}
	return "private:" + strconv.FormatInt(t.UserID, 10)
}

func DecodeEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode onebot event: %w", err)
	}
	return &ev, nil
}

// IsMessage 私聊或群聊消息事件
func (e *Event) IsMessage() bool {
	return e.PostType == "message" && (e.MessageType == "private" || e.MessageType == "group")
}

// DedupKey 用于事件去重；没有 message_id 的事件无法去重，返回空串
func (e *Event) DedupKey() string {
	if e.MessageID == 0 {
		return ""
	}
	return fmt.Sprintf("%d:%d", int64(e.SelfID), int64(e.MessageID))
}

func (e *Event) Target() Target {
	if e.MessageType == "group" {
		return Target{GroupID: int64(e.GroupID), UserID: int64(e.UserID)}
	}
	return Target{UserID: int64(e.UserID)}
}

var cqPattern = regexp.MustCompile(`\[CQ:[a-zA-Z0-9_]+(?:,[^\]]*)?\]`)

var cqUnescaper = strings.NewReplacer("&#91;", "[", "&#93;", "]", "&#44;", ",", "&amp;", "&")

// Text 去掉 CQ 码（@、表情、图片等）后的纯文本
func (e *Event) Text() string {
	return strings.TrimSpace(cqUnescaper.Replace(cqPattern.ReplaceAllString(e.RawMessage, "")))
}

// HasNonText 消息中是否只有 CQ 码而没有文字
func (e *Event) HasNonText() bool {
	return cqPattern.MatchString(e.RawMessage)
}

// ToEventContext 转成插件链使用的事件。纯图片等无文字消息标记为非文本。
func (e *Event) ToEventContext() *plugin.EventContext {
	text := e.Text()
	kwargs := map[string]any{
		"session_id": e.Target().String(),
		"is_group":   e.MessageType == "group",
		"user_id":    int64(e.UserID),
		"msg_id":     int64(e.MessageID),
	}
	if text == "" && e.HasNonText() {
		return &plugin.EventContext{Context: plugin.Context{Type: plugin.ContextImage, Content: e.RawMessage, Kwargs: kwargs}}
	}
	return plugin.NewTextEvent(text, kwargs)
}
