// report 一次性执行插件指令的命令行入口，适合手动检查接口与模板
//
// Usage:
//
//	report digest            # 打印文字版简讯
//	report card -o out.png   # 生成图片版快讯
//	report news --num 3      # 以 JSON 输出原始资讯
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/LJTian/DongmanReport/internal/browser"
	"github.com/LJTian/DongmanReport/internal/collector"
	"github.com/LJTian/DongmanReport/internal/config"
	"github.com/LJTian/DongmanReport/internal/dongman"
	"github.com/LJTian/DongmanReport/internal/logging"
	"github.com/LJTian/DongmanReport/internal/plugin"
)

func main() {
	var pluginDir string

	rootCmd := &cobra.Command{
		Use:           "report",
		Short:         "动漫资讯插件命令行",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&pluginDir, "plugin-dir", "", "插件目录（默认读取 PLUGIN_DIR）")

	rootCmd.AddCommand(digestCmd(&pluginDir))
	rootCmd.AddCommand(cardCmd(&pluginDir))
	rootCmd.AddCommand(newsCmd(&pluginDir))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

type env struct {
	cfg     *config.Config
	logger  *zap.Logger
	fetcher *collector.TianAPIFetcher
}

func setup(pluginDir string) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if pluginDir != "" {
		cfg.PluginDir = pluginDir
	}
	logger, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, fetcher: collector.NewTianAPIFetcher(cfg.NewsEndpoint, logger)}, nil
}

func digestCmd(pluginDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "digest",
		Short: "打印文字版动漫简讯",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(*pluginDir)
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			p := dongman.New(dongman.Options{Dir: e.cfg.PluginDir, Fetcher: e.fetcher, Logger: e.logger})
			reply, err := run(cmd.Context(), p, dongman.TriggerText, 30*time.Second)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), reply.Text)
			return nil
		},
	}
}

func cardCmd(pluginDir *string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "card",
		Short: "生成图片版动漫快讯",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(*pluginDir)
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			session := browser.NewSession(&browser.ChromeLauncher{
				ExecPath:  e.cfg.ChromePath,
				NoSandbox: e.cfg.NoSandbox,
				Logger:    e.logger,
			}, e.logger)
			p := dongman.New(dongman.Options{Dir: e.cfg.PluginDir, Fetcher: e.fetcher, Browser: session, Logger: e.logger})
			defer p.Close()

			reply, err := run(cmd.Context(), p, dongman.TriggerImage, 2*time.Minute)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, reply.Image, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ 已写入 %s (%d bytes)\n", output, len(reply.Image))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "dongman.png", "输出 PNG 路径")
	return cmd
}

func newsCmd(pluginDir *string) *cobra.Command {
	var num int

	cmd := &cobra.Command{
		Use:   "news",
		Short: "以 JSON 输出原始资讯",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(*pluginDir)
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			path := dongman.ConfigPath(e.cfg.PluginDir)
			key := dongman.LoadAPIKey(path, e.logger)
			if key == "" {
				return fmt.Errorf("请先配置%s文件", path)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			items, err := e.fetcher.FetchNews(ctx, key, num)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(items)
		},
	}

	cmd.Flags().IntVarP(&num, "num", "n", 10, "资讯条数")
	return cmd
}

// run 执行指令，把分类错误转成与聊天中一致的提示
func run(ctx context.Context, p *dongman.Plugin, trigger string, timeout time.Duration) (*plugin.Reply, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ec := plugin.NewTextEvent(trigger, nil)
	p.HandleContext(ctx, ec)
	if ec.Reply == nil {
		return nil, errors.New("no reply for " + trigger)
	}
	want := plugin.ReplyText
	if trigger == dongman.TriggerImage {
		want = plugin.ReplyImage
	}
	if ec.Reply.Type != want {
		return nil, errors.New(ec.Reply.Text)
	}
	return ec.Reply, nil
}
