package api

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LJTian/DongmanReport/internal/bot"
	"github.com/LJTian/DongmanReport/internal/collector"
	"github.com/LJTian/DongmanReport/internal/onebot"
)

const (
	defaultNewsNum = 10
	maxNewsNum     = 50
	maxEventBytes  = 1 << 20
)

// EventSubmitter 接收 OneBot 上报事件
type EventSubmitter interface {
	Submit(ctx context.Context, ev *onebot.Event) error
}

// NewsFetcher 资讯预览用的数据源
type NewsFetcher interface {
	FetchNews(ctx context.Context, apiKey string, num int) ([]collector.NewsItem, error)
}

type Server struct {
	events EventSubmitter
	news   NewsFetcher
	apiKey func() string
	// secret 为空时只接受本机上报
	secret string
	logger *zap.Logger
}

func NewServer(events EventSubmitter, news NewsFetcher, apiKey func() string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{events: events, news: news, apiKey: apiKey, logger: logger.Named("api")}
}

// SetEventSecret 设置 OneBot HTTP 上报的签名密钥
func (s *Server) SetEventSecret(secret string) {
	s.secret = secret
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)
	r.POST("/onebot/event", s.onebotEvent)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/news", s.listNews)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// onebotEvent 接收 NapCat 等实现的 HTTP 上报，入队后立即返回，回复走 websocket
func (s *Server) onebotEvent(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request", "message": "read body failed"})
		return
	}
	if !s.authorizedEvent(c, body) {
		s.logger.Warn("rejected unauthenticated onebot event", zap.String("remote", c.Request.RemoteAddr))
		c.JSON(http.StatusUnauthorized, gin.H{"code": "unauthorized", "message": "invalid signature"})
		return
	}
	ev, err := onebot.DecodeEvent(body)
	if err != nil {
		s.logger.Warn("invalid onebot event", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"code": "bad_request", "message": "invalid event"})
		return
	}

	if err := s.events.Submit(c.Request.Context(), ev); err != nil {
		if errors.Is(err, bot.ErrQueueFull) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"code": "busy", "message": "too many pending events"})
			return
		}
		s.logger.Error("submit event failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal_error", "message": "internal server error"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) authorizedEvent(c *gin.Context, body []byte) bool {
	if s.secret != "" {
		return onebot.VerifySignature(s.secret, body, c.GetHeader(onebot.SignatureHeader))
	}
	ip := net.ParseIP(c.RemoteIP())
	return ip != nil && ip.IsLoopback()
}

func (s *Server) listNews(c *gin.Context) {
	num, err := strconv.Atoi(c.DefaultQuery("num", strconv.Itoa(defaultNewsNum)))
	if err != nil || num <= 0 {
		num = defaultNewsNum
	}
	if num > maxNewsNum {
		num = maxNewsNum
	}

	key := s.apiKey()
	if key == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":    "config_missing",
			"message": "TIAN_API_KEY not configured",
		})
		return
	}

	items, err := s.news.FetchNews(c.Request.Context(), key, num)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"code":    "fetch_failed",
			"message": "fetch news failed",
		})
		return
	}
	if items == nil {
		items = []collector.NewsItem{}
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    items,
	})
}
