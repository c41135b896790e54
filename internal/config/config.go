package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 机器人宿主进程的配置。
// 加载顺序：内置默认值 -> BOT_CONFIG 指向的 YAML 文件 -> 环境变量。
type Config struct {
	AppPort   string `yaml:"app_port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// PluginDir 插件目录，config.json 与 templates/ 均相对于此目录
	PluginDir    string `yaml:"plugin_dir"`
	NewsEndpoint string `yaml:"news_endpoint"`

	OneBotWSURL  string `yaml:"onebot_ws_url"`
	OneBotToken  string `yaml:"onebot_token"`
	// OneBotSecret HTTP 上报签名密钥，为空时只接受本机上报
	OneBotSecret string `yaml:"onebot_secret"`

	// RedisAddr 为空时使用进程内去重
	RedisAddr string `yaml:"redis_addr"`

	// PushCron 为空时不启用定时推送
	PushCron    string  `yaml:"push_cron"`
	PushGroups  []int64 `yaml:"push_groups"`
	PushTrigger string  `yaml:"push_trigger"`

	ChromePath string `yaml:"chrome_path"`
	NoSandbox  bool   `yaml:"no_sandbox"`

	// 同时配置时 /api/v1 启用 Basic Auth
	BasicAuthUser string `yaml:"basic_auth_user"`
	BasicAuthPass string `yaml:"basic_auth_pass"`
}

// Default 返回内置默认配置
func Default() *Config {
	return &Config{
		AppPort:      "9000",
		LogLevel:     "info",
		LogFormat:    "json",
		PluginDir:    "plugins/dongman",
		NewsEndpoint: "https://apis.tianapi.com/dongman/index",
		OneBotWSURL:  "ws://127.0.0.1:3001",
		PushTrigger:  "动漫简讯",
		NoSandbox:    true,
	}
}

func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("BOT_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.AppPort = getEnv("APP_PORT", cfg.AppPort)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.PluginDir = getEnv("PLUGIN_DIR", cfg.PluginDir)
	cfg.NewsEndpoint = getEnv("TIAN_API_ENDPOINT", cfg.NewsEndpoint)
	cfg.OneBotWSURL = getEnv("ONEBOT_WS_URL", cfg.OneBotWSURL)
	cfg.OneBotToken = getEnv("ONEBOT_TOKEN", cfg.OneBotToken)
	cfg.OneBotSecret = getEnv("ONEBOT_SECRET", cfg.OneBotSecret)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.PushCron = getEnv("PUSH_CRON", cfg.PushCron)
	cfg.PushTrigger = getEnv("PUSH_TRIGGER", cfg.PushTrigger)
	cfg.ChromePath = getEnv("CHROME_PATH", cfg.ChromePath)
	cfg.NoSandbox = getEnvBool("CHROME_NO_SANDBOX", cfg.NoSandbox)
	cfg.BasicAuthUser = getEnv("APP_BASIC_USER", cfg.BasicAuthUser)
	cfg.BasicAuthPass = getEnv("APP_BASIC_PASS", cfg.BasicAuthPass)
	if groups := parseGroupIDs(os.Getenv("PUSH_GROUPS")); len(groups) > 0 {
		cfg.PushGroups = groups
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// parseGroupIDs 解析逗号分隔的群号，非法项直接跳过
func parseGroupIDs(raw string) []int64 {
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		out = append(out, id)
	}
	return out
}
