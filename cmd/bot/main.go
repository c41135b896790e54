package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/LJTian/DongmanReport/internal/api"
	"github.com/LJTian/DongmanReport/internal/bot"
	"github.com/LJTian/DongmanReport/internal/browser"
	"github.com/LJTian/DongmanReport/internal/collector"
	"github.com/LJTian/DongmanReport/internal/config"
	"github.com/LJTian/DongmanReport/internal/dongman"
	"github.com/LJTian/DongmanReport/internal/logging"
	"github.com/LJTian/DongmanReport/internal/onebot"
	"github.com/LJTian/DongmanReport/internal/plugin"
	"github.com/LJTian/DongmanReport/internal/scheduler"
	"github.com/LJTian/DongmanReport/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fetcher := collector.NewTianAPIFetcher(cfg.NewsEndpoint, logger)
	session := browser.NewSession(&browser.ChromeLauncher{
		ExecPath:  cfg.ChromePath,
		NoSandbox: cfg.NoSandbox,
		Logger:    logger,
	}, logger)

	registry := plugin.NewRegistry(logger)
	dm := dongman.New(dongman.Options{
		Dir:     cfg.PluginDir,
		Fetcher: fetcher,
		Browser: session,
		Logger:  logger,
	})
	if err := registry.Register(dm); err != nil {
		logger.Fatal("register plugin failed", zap.Error(err))
	}

	// 预热浏览器，避免首个“动漫快讯”耗时过长；失败时首次请求会再试
	go func() {
		if err := session.Start(ctx); err != nil {
			logger.Warn("browser warmup failed", zap.Error(err))
		}
	}()

	dedup := storage.New(cfg.RedisAddr, logger)
	client := onebot.NewClient(cfg.OneBotWSURL, cfg.OneBotToken, logger)
	b := bot.New(registry, client, dedup, 0, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Run(ctx)
	}()

	var push *scheduler.Scheduler
	if cfg.PushCron != "" {
		push, err = scheduler.New(cfg.PushCron, cfg.PushTrigger, cfg.PushGroups, b, logger)
		if err != nil {
			logger.Fatal("init push scheduler failed", zap.Error(err))
		}
		push.Start()
	}

	r := gin.Default()
	// 若配置了访问密码，则对资讯接口启用 Basic Auth（健康检查与 OneBot 上报免认证）
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass))
	}
	apiKey := func() string {
		return dongman.LoadAPIKey(dongman.ConfigPath(cfg.PluginDir), logger)
	}
	apiServer := api.NewServer(b, fetcher, apiKey, logger)
	if cfg.OneBotSecret == "" {
		logger.Warn("ONEBOT_SECRET not set, only loopback onebot events are accepted")
	}
	apiServer.SetEventSecret(cfg.OneBotSecret)
	apiServer.RegisterRoutes(r)

	srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: r}
	go func() {
		logger.Info("starting bot server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server exit", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	if push != nil {
		push.Stop()
	}
	wg.Wait()
	if err := registry.Close(); err != nil {
		logger.Warn("close plugins failed", zap.Error(err))
	}
	if c, ok := dedup.(io.Closer); ok {
		_ = c.Close()
	}
}

// basicAuthMiddleware 为资讯接口增加一个简单的 Basic Auth 访问密码。
// /health 与 /onebot/event 不做认证。
func basicAuthMiddleware(user, pass string) gin.HandlerFunc {
	const realm = "Restricted"
	uBytes := []byte(user)
	pBytes := []byte(pass)

	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), uBytes) != 1 ||
			subtle.ConstantTimeCompare([]byte(p), pBytes) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="`+realm+`"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}
