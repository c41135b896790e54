package plugin

import "context"

// ContextType 消息内容类型
type ContextType int

const (
	ContextText ContextType = iota
	ContextImage
	ContextVoice
	ContextFile
)

func (t ContextType) String() string {
	switch t {
	case ContextText:
		return "TEXT"
	case ContextImage:
		return "IMAGE"
	case ContextVoice:
		return "VOICE"
	case ContextFile:
		return "FILE"
	default:
		return "UNKNOWN"
	}
}

// Context 一条收到的消息
type Context struct {
	Type    ContextType
	Content string
	// Kwargs 宿主附带的会话信息，例如 session_id、is_group
	Kwargs map[string]any
}

// ReplyType 回复类型
type ReplyType int

const (
	ReplyText ReplyType = iota
	ReplyImage
)

func (t ReplyType) String() string {
	if t == ReplyImage {
		return "IMAGE"
	}
	return "TEXT"
}

// Reply 插件产生的回复，Image 为 PNG 字节
type Reply struct {
	Type  ReplyType
	Text  string
	Image []byte
}

func TextReply(s string) *Reply {
	return &Reply{Type: ReplyText, Text: s}
}

func ImageReply(png []byte) *Reply {
	return &Reply{Type: ReplyImage, Image: png}
}

// EventAction 插件处理后对事件链的指示
type EventAction int

const (
	// Continue 交给后续插件
	Continue EventAction = iota
	// Break 停止后续插件，但仍走宿主默认逻辑
	Break
	// BreakPass 停止后续插件并跳过默认逻辑，直接发送回复
	BreakPass
)

func (a EventAction) String() string {
	switch a {
	case Break:
		return "BREAK"
	case BreakPass:
		return "BREAK_PASS"
	default:
		return "CONTINUE"
	}
}

// EventContext 在插件链中传递的可变事件
type EventContext struct {
	Context Context
	Reply   *Reply
	Action  EventAction
}

func NewTextEvent(content string, kwargs map[string]any) *EventContext {
	return &EventContext{Context: Context{Type: ContextText, Content: content, Kwargs: kwargs}}
}

// Meta 插件注册信息
type Meta struct {
	Name     string
	Desc     string
	Version  string
	Author   string
	Priority int
}

// Plugin 宿主调用的插件接口。宿主保证对同一插件串行调用 HandleContext。
type Plugin interface {
	Meta() Meta
	HandleContext(ctx context.Context, ec *EventContext)
	Help() string
	Close() error
}
