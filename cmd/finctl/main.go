// finctl 是 FinKit 的命令行客户端, 用于与单个远端媒体服务器交互。
//
// 用法:
//
//	finctl [全局选项] <命令> [命令参数]
//
// 全局选项:
//
//	-c, --config   配置文件路径 (JSON/YAML, 可选)
//	--vault        本地保险库文件路径 (默认: <用户配置目录>/finkit/vault.db)
//	--log-level    日志级别 (默认: warn)
//	-t, --timeout  命令超时时间 (默认: 30s)
//
// 命令:
//
//	discover <地址>        探测服务器地址, 打印可达的基础 URL 与身份信息
//	login <地址>           登录服务器并把会话持久化到本地保险库
//	get <路径>             以当前会话执行一次 GET 请求并输出响应体
//	pins list              列出已钉扎的证书指纹
//	pins revoke <主机名>   吊销指定主机的指纹 (下次连接重新信任)
//	logout                 注销当前会话并清理本地凭据
//	help                   显示帮助信息
//
// 保险库口令通过环境变量 FINCTL_VAULT_SECRET 传入, 避免出现在进程
// 参数列表与 shell 历史里。login 的密码同理走 FINCTL_PASSWORD。
//
// 退出码:
//
//	0: 命令执行成功
//	1: 命令执行失败 (网络失败、认证失败等)
//	2: 参数错误 (缺少必需参数、未知命令等)
//
// 示例:
//
//	finctl discover media.example.com
//	FINCTL_VAULT_SECRET=s3cret FINCTL_PASSWORD=pw finctl login media.example.com --user alice
//	finctl get /System/Info
//	finctl pins list
//	finctl logout
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"
)

// defaultTimeout 默认超时时间。
const defaultTimeout = 30 * time.Second

// 版本信息（可通过 -ldflags 注入，例如:
//
//	go build -ldflags "-X main.Version=1.0.0 -X main.GitCommit=$(git rev-parse --short HEAD) -X main.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// ）。
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

// createApp 创建 CLI 应用。
func createApp() *cli.Command {
	return &cli.Command{
		Name:    "finctl",
		Usage:   "FinKit 媒体服务器命令行客户端",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildTime),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径",
			},
			&cli.StringFlag{
				Name:  "vault",
				Usage: "本地保险库文件路径",
				Value: defaultVaultPath(),
			},
			&cli.StringFlag{
				Name:    "vault-secret",
				Usage:   "保险库口令",
				Sources: cli.EnvVars("FINCTL_VAULT_SECRET"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "日志级别 (debug/info/warn/error)",
				Value: "warn",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "命令超时时间",
				Value:   defaultTimeout,
			},
		},
		Commands:       createCommands(),
		DefaultCommand: "help",
		Authors: []any{
			"FinKit Team",
		},
		// 设计决策: 禁止 urfave/cli 直接调用 os.Exit，
		// 由 run() 统一处理退出码映射，确保与文档退出码契约一致。
		ExitErrHandler: func(_ context.Context, _ *cli.Command, err error) {
			// ExitCoder 错误（如未知命令）的消息需在此输出，
			// 替代 HandleExitCoder 的默认 os.Exit 行为。
			if _, ok := err.(cli.ExitCoder); ok {
				fmt.Fprintln(os.Stderr, err)
			}
		},
	}
}

func run() int {
	app := createApp()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 设置信号处理
	setupSignalHandler(cancel)

	if err := app.Run(ctx, os.Args); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "参数错误: %v\n", usageErr)
			return 2
		}
		// CLI 框架产生的参数错误（如未知 flag、未知命令）也返回退出码 2，
		// 与文档契约"参数错误 → 退出码 2"保持一致。
		if isCLIUsageError(err) {
			// ExitErrHandler 或 flag 解析器已向 stderr 输出错误详情，此处仅设置退出码
			return 2
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}

	return 0
}

// defaultVaultPath 把保险库放进用户配置目录, 失败时退回当前目录。
func defaultVaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "finkit-vault.db"
	}
	return filepath.Join(dir, "finkit", "vault.db")
}
