package dongman

import (
	"encoding/json"
	"os"
	"strings"

	"go.uber.org/zap"
)

type pluginConfig struct {
	TianAPIKey string `json:"TIAN_API_KEY"`
}

// LoadAPIKey 读取插件目录下 config.json 的 TIAN_API_KEY。
// 文件缺失、无法解析或 key 为空都返回 ""，由调用方按未配置处理。
func LoadAPIKey(path string, logger *zap.Logger) string {
	if logger == nil {
		logger = zap.NewNop()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read plugin config failed", zap.String("path", path), zap.Error(err))
		return ""
	}
	var cfg pluginConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		logger.Error("parse plugin config failed", zap.String("path", path), zap.Error(err))
		return ""
	}
	key := strings.TrimSpace(cfg.TianAPIKey)
	if key == "" {
		logger.Error("TIAN_API_KEY is empty", zap.String("path", path))
	}
	return key
}
